// Package billing reports finished voice sessions to Stripe as billing
// meter events. Reporting is best-effort: failures are logged by the caller
// and never affect the session.
package billing

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/client"

	"github.com/relaykit/voicerelay/pkg/gateway/live/session"
)

// Config holds the Stripe wiring. The reporter is only constructed when a
// secret key is configured.
type Config struct {
	APIKey      string
	CustomerID  string
	InputMeter  string
	OutputMeter string
}

// Reporter implements session.UsageReporter against the Stripe billing
// meter API.
type Reporter struct {
	cfg    Config
	logger *slog.Logger

	// post is the single network seam; tests substitute it.
	post func(params *stripe.BillingMeterEventParams) error
}

func NewReporter(cfg Config, logger *slog.Logger) *Reporter {
	if logger == nil {
		logger = slog.Default()
	}
	api := &client.API{}
	api.Init(cfg.APIKey, nil)
	return &Reporter{
		cfg:    cfg,
		logger: logger,
		post: func(params *stripe.BillingMeterEventParams) error {
			_, err := api.BillingMeterEvents.New(params)
			return err
		},
	}
}

// ReportSessionUsage emits one meter event per audio direction with a
// non-zero duration. The record identifier makes retries idempotent on the
// Stripe side.
func (r *Reporter) ReportSessionUsage(ctx context.Context, rec session.UsageRecord) error {
	type event struct {
		meter   string
		suffix  string
		seconds float64
	}
	events := []event{
		{r.cfg.InputMeter, "in", rec.InputSeconds},
		{r.cfg.OutputMeter, "out", rec.OutputSeconds},
	}
	for _, ev := range events {
		if ev.meter == "" || ev.seconds <= 0 {
			continue
		}
		params := &stripe.BillingMeterEventParams{
			Params:     stripe.Params{Context: ctx},
			EventName:  stripe.String(ev.meter),
			Identifier: stripe.String(rec.RecordID + ":" + ev.suffix),
			Payload: map[string]string{
				"stripe_customer_id": r.cfg.CustomerID,
				"value":              formatSeconds(ev.seconds),
			},
		}
		if err := r.post(params); err != nil {
			return fmt.Errorf("post meter event %s: %w", ev.meter, err)
		}
	}
	return nil
}

func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
