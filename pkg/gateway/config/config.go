package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Addr string

	DatabaseURL string

	// Live AI backend.
	GeminiAPIKey string
	LiveModel    string

	// PCM16 mono sample rates negotiated with clients and the backend.
	InputSampleRate  int
	OutputSampleRate int

	// Per-minute audio pricing used for session cost estimates.
	CostInputPerMinute  float64
	CostOutputPerMinute float64

	// Knowledge documents folded into the system instruction are truncated
	// at this many characters.
	KnowledgeCharLimit int

	// CORS
	CORSAllowedOrigins map[string]struct{} // empty => disabled

	// Client WebSocket transport.
	WSMaxMessageBytes int64
	WSWriteTimeout    time.Duration
	WSPingInterval    time.Duration

	MaxUploadBytes int64

	// Operational defaults
	ReadHeaderTimeout   time.Duration
	ShutdownGracePeriod time.Duration

	// Stripe usage reporting (disabled unless the key is set).
	StripeSecretKey   string
	StripeCustomerID  string
	StripeInputMeter  string
	StripeOutputMeter string
}

func LoadFromEnv() (Config, error) {
	cfg := Config{
		Addr:                envOr("VOICERELAY_ADDR", ":8080"),
		DatabaseURL:         strings.TrimSpace(os.Getenv("VOICERELAY_DATABASE_URL")),
		GeminiAPIKey:        strings.TrimSpace(os.Getenv("GEMINI_API_KEY")),
		LiveModel:           envOr("VOICERELAY_LIVE_MODEL", "gemini-2.5-flash-native-audio-preview-09-2025"),
		InputSampleRate:     envIntOr("VOICERELAY_INPUT_SAMPLE_RATE", 16000),
		OutputSampleRate:    envIntOr("VOICERELAY_OUTPUT_SAMPLE_RATE", 24000),
		CostInputPerMinute:  envFloat64Or("VOICERELAY_COST_INPUT_PER_MIN", 0.60),
		CostOutputPerMinute: envFloat64Or("VOICERELAY_COST_OUTPUT_PER_MIN", 2.40),
		KnowledgeCharLimit:  envIntOr("VOICERELAY_KNOWLEDGE_CHAR_LIMIT", 120_000),
		CORSAllowedOrigins:  make(map[string]struct{}),
		WSMaxMessageBytes:   envInt64Or("VOICERELAY_WS_MAX_MESSAGE_BYTES", 1<<20), // 1 MiB
		WSWriteTimeout:      envDurationOr("VOICERELAY_WS_WRITE_TIMEOUT", 5*time.Second),
		WSPingInterval:      envDurationOr("VOICERELAY_WS_PING_INTERVAL", 20*time.Second),
		MaxUploadBytes:      envInt64Or("VOICERELAY_MAX_UPLOAD_BYTES", 8<<20), // 8 MiB
		ReadHeaderTimeout:   envDurationOr("VOICERELAY_READ_HEADER_TIMEOUT", 10*time.Second),
		ShutdownGracePeriod: envDurationOr("VOICERELAY_SHUTDOWN_GRACE_PERIOD", 15*time.Second),
		StripeSecretKey:     strings.TrimSpace(os.Getenv("STRIPE_SECRET_KEY")),
		StripeCustomerID:    strings.TrimSpace(os.Getenv("VOICERELAY_STRIPE_CUSTOMER_ID")),
		StripeInputMeter:    envOr("VOICERELAY_STRIPE_METER_INPUT", "voice_input_seconds"),
		StripeOutputMeter:   envOr("VOICERELAY_STRIPE_METER_OUTPUT", "voice_output_seconds"),
	}

	for _, origin := range splitCSV(os.Getenv("VOICERELAY_CORS_ORIGINS")) {
		cfg.CORSAllowedOrigins[origin] = struct{}{}
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("VOICERELAY_DATABASE_URL must be set")
	}
	if cfg.GeminiAPIKey == "" {
		return Config{}, fmt.Errorf("GEMINI_API_KEY must be set")
	}
	if strings.TrimSpace(cfg.LiveModel) == "" {
		return Config{}, fmt.Errorf("VOICERELAY_LIVE_MODEL must not be empty")
	}
	if cfg.InputSampleRate <= 0 {
		return Config{}, fmt.Errorf("VOICERELAY_INPUT_SAMPLE_RATE must be > 0")
	}
	if cfg.OutputSampleRate <= 0 {
		return Config{}, fmt.Errorf("VOICERELAY_OUTPUT_SAMPLE_RATE must be > 0")
	}
	if cfg.CostInputPerMinute < 0 {
		return Config{}, fmt.Errorf("VOICERELAY_COST_INPUT_PER_MIN must be >= 0")
	}
	if cfg.CostOutputPerMinute < 0 {
		return Config{}, fmt.Errorf("VOICERELAY_COST_OUTPUT_PER_MIN must be >= 0")
	}
	if cfg.KnowledgeCharLimit < 0 {
		return Config{}, fmt.Errorf("VOICERELAY_KNOWLEDGE_CHAR_LIMIT must be >= 0")
	}
	if cfg.WSMaxMessageBytes <= 0 {
		return Config{}, fmt.Errorf("VOICERELAY_WS_MAX_MESSAGE_BYTES must be > 0")
	}
	if cfg.WSWriteTimeout <= 0 {
		return Config{}, fmt.Errorf("VOICERELAY_WS_WRITE_TIMEOUT must be > 0")
	}
	if cfg.WSPingInterval <= 0 {
		return Config{}, fmt.Errorf("VOICERELAY_WS_PING_INTERVAL must be > 0")
	}
	if cfg.MaxUploadBytes <= 0 {
		return Config{}, fmt.Errorf("VOICERELAY_MAX_UPLOAD_BYTES must be > 0")
	}
	if cfg.ReadHeaderTimeout <= 0 {
		return Config{}, fmt.Errorf("VOICERELAY_READ_HEADER_TIMEOUT must be > 0")
	}
	if cfg.ShutdownGracePeriod <= 0 {
		return Config{}, fmt.Errorf("VOICERELAY_SHUTDOWN_GRACE_PERIOD must be > 0")
	}
	if cfg.StripeSecretKey != "" && cfg.StripeCustomerID == "" {
		return Config{}, fmt.Errorf("VOICERELAY_STRIPE_CUSTOMER_ID must be set when STRIPE_SECRET_KEY is set")
	}

	return cfg, nil
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envInt64Or(key string, def int64) int64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func envIntOr(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func envFloat64Or(key string, def float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return def
	}
	return n
}

func envDurationOr(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}

func splitCSV(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
