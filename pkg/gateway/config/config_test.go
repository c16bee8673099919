package config

import (
	"strings"
	"testing"
	"time"
)

var gatewayEnvKeys = []string{
	"VOICERELAY_ADDR",
	"VOICERELAY_DATABASE_URL",
	"GEMINI_API_KEY",
	"VOICERELAY_LIVE_MODEL",
	"VOICERELAY_INPUT_SAMPLE_RATE",
	"VOICERELAY_OUTPUT_SAMPLE_RATE",
	"VOICERELAY_COST_INPUT_PER_MIN",
	"VOICERELAY_COST_OUTPUT_PER_MIN",
	"VOICERELAY_KNOWLEDGE_CHAR_LIMIT",
	"VOICERELAY_CORS_ORIGINS",
	"VOICERELAY_WS_MAX_MESSAGE_BYTES",
	"VOICERELAY_WS_WRITE_TIMEOUT",
	"VOICERELAY_WS_PING_INTERVAL",
	"VOICERELAY_MAX_UPLOAD_BYTES",
	"VOICERELAY_READ_HEADER_TIMEOUT",
	"VOICERELAY_SHUTDOWN_GRACE_PERIOD",
	"STRIPE_SECRET_KEY",
	"VOICERELAY_STRIPE_CUSTOMER_ID",
	"VOICERELAY_STRIPE_METER_INPUT",
	"VOICERELAY_STRIPE_METER_OUTPUT",
}

func clearGatewayEnv(t *testing.T) {
	t.Helper()
	for _, key := range gatewayEnvKeys {
		t.Setenv(key, "")
	}
	t.Setenv("VOICERELAY_DATABASE_URL", "postgres://localhost/voicerelay")
	t.Setenv("GEMINI_API_KEY", "test-key")
}

func TestLoadFromEnv_Defaults(t *testing.T) {
	clearGatewayEnv(t)

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}

	if cfg.Addr != ":8080" {
		t.Fatalf("Addr = %q, want :8080", cfg.Addr)
	}
	if cfg.LiveModel != "gemini-2.5-flash-native-audio-preview-09-2025" {
		t.Fatalf("LiveModel = %q", cfg.LiveModel)
	}
	if cfg.InputSampleRate != 16000 || cfg.OutputSampleRate != 24000 {
		t.Fatalf("sample rates = %d/%d, want 16000/24000", cfg.InputSampleRate, cfg.OutputSampleRate)
	}
	if cfg.CostInputPerMinute != 0.60 || cfg.CostOutputPerMinute != 2.40 {
		t.Fatalf("costs = %v/%v, want 0.60/2.40", cfg.CostInputPerMinute, cfg.CostOutputPerMinute)
	}
	if cfg.KnowledgeCharLimit != 120_000 {
		t.Fatalf("KnowledgeCharLimit = %d, want 120000", cfg.KnowledgeCharLimit)
	}
	if cfg.WSMaxMessageBytes != 1<<20 {
		t.Fatalf("WSMaxMessageBytes = %d, want %d", cfg.WSMaxMessageBytes, int64(1<<20))
	}
	if cfg.WSWriteTimeout != 5*time.Second {
		t.Fatalf("WSWriteTimeout = %v, want 5s", cfg.WSWriteTimeout)
	}
	if cfg.WSPingInterval != 20*time.Second {
		t.Fatalf("WSPingInterval = %v, want 20s", cfg.WSPingInterval)
	}
	if cfg.MaxUploadBytes != 8<<20 {
		t.Fatalf("MaxUploadBytes = %d, want %d", cfg.MaxUploadBytes, int64(8<<20))
	}
	if cfg.ShutdownGracePeriod != 15*time.Second {
		t.Fatalf("ShutdownGracePeriod = %v, want 15s", cfg.ShutdownGracePeriod)
	}
	if len(cfg.CORSAllowedOrigins) != 0 {
		t.Fatalf("CORSAllowedOrigins = %v, want empty", cfg.CORSAllowedOrigins)
	}
	if cfg.StripeSecretKey != "" {
		t.Fatalf("StripeSecretKey = %q, want empty", cfg.StripeSecretKey)
	}
}

func TestLoadFromEnv_RequiredKeys(t *testing.T) {
	clearGatewayEnv(t)
	t.Setenv("VOICERELAY_DATABASE_URL", "")

	if _, err := LoadFromEnv(); err == nil || !strings.Contains(err.Error(), "VOICERELAY_DATABASE_URL") {
		t.Fatalf("err = %v, want database url error", err)
	}

	clearGatewayEnv(t)
	t.Setenv("GEMINI_API_KEY", "")
	if _, err := LoadFromEnv(); err == nil || !strings.Contains(err.Error(), "GEMINI_API_KEY") {
		t.Fatalf("err = %v, want api key error", err)
	}
}

func TestLoadFromEnv_Overrides(t *testing.T) {
	clearGatewayEnv(t)
	t.Setenv("VOICERELAY_ADDR", ":9090")
	t.Setenv("VOICERELAY_INPUT_SAMPLE_RATE", "8000")
	t.Setenv("VOICERELAY_COST_INPUT_PER_MIN", "1.25")
	t.Setenv("VOICERELAY_CORS_ORIGINS", "https://app.example.com, https://admin.example.com")
	t.Setenv("VOICERELAY_WS_WRITE_TIMEOUT", "2s")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}
	if cfg.Addr != ":9090" {
		t.Fatalf("Addr = %q", cfg.Addr)
	}
	if cfg.InputSampleRate != 8000 {
		t.Fatalf("InputSampleRate = %d", cfg.InputSampleRate)
	}
	if cfg.CostInputPerMinute != 1.25 {
		t.Fatalf("CostInputPerMinute = %v", cfg.CostInputPerMinute)
	}
	if cfg.WSWriteTimeout != 2*time.Second {
		t.Fatalf("WSWriteTimeout = %v", cfg.WSWriteTimeout)
	}
	if len(cfg.CORSAllowedOrigins) != 2 {
		t.Fatalf("CORSAllowedOrigins = %v", cfg.CORSAllowedOrigins)
	}
	if _, ok := cfg.CORSAllowedOrigins["https://app.example.com"]; !ok {
		t.Fatalf("origin missing: %v", cfg.CORSAllowedOrigins)
	}
}

func TestLoadFromEnv_Validation(t *testing.T) {
	cases := []struct {
		key, value, wantSubstr string
	}{
		{"VOICERELAY_INPUT_SAMPLE_RATE", "0", "VOICERELAY_INPUT_SAMPLE_RATE"},
		{"VOICERELAY_OUTPUT_SAMPLE_RATE", "-1", "VOICERELAY_OUTPUT_SAMPLE_RATE"},
		{"VOICERELAY_COST_INPUT_PER_MIN", "-0.5", "VOICERELAY_COST_INPUT_PER_MIN"},
		{"VOICERELAY_WS_MAX_MESSAGE_BYTES", "0", "VOICERELAY_WS_MAX_MESSAGE_BYTES"},
		{"STRIPE_SECRET_KEY", "sk_test_x", "VOICERELAY_STRIPE_CUSTOMER_ID"},
	}
	for _, tc := range cases {
		t.Run(tc.key, func(t *testing.T) {
			clearGatewayEnv(t)
			t.Setenv(tc.key, tc.value)
			_, err := LoadFromEnv()
			if err == nil || !strings.Contains(err.Error(), tc.wantSubstr) {
				t.Fatalf("err = %v, want mention of %s", err, tc.wantSubstr)
			}
		})
	}
}
