package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	t.Setenv("TAX_RATE_PERCENT", "")
	t.Setenv("REPORT_CACHE_TTL_SECONDS", "")
	t.Setenv("AUTH_SECRET", "")

	cfg := Load()
	if cfg.TaxRatePercent != 10 {
		t.Fatalf("tax rate = %v, want 10", cfg.TaxRatePercent)
	}
	if cfg.ReportCacheTTLSeconds != 30 {
		t.Fatalf("report TTL = %d, want 30", cfg.ReportCacheTTLSeconds)
	}
	if cfg.AuthSecret != "" {
		t.Fatalf("expected empty AUTH_SECRET when unset, got %q", cfg.AuthSecret)
	}
	if cfg.Port != "8080" {
		t.Fatalf("port = %s, want 8080", cfg.Port)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("TAX_RATE_PERCENT", "11")
	t.Setenv("REPORT_CACHE_TTL_SECONDS", "60")
	t.Setenv("PORT", "9090")

	cfg := Load()
	if cfg.TaxRatePercent != 11 {
		t.Fatalf("tax rate = %v, want 11", cfg.TaxRatePercent)
	}
	if cfg.ReportCacheTTLSeconds != 60 {
		t.Fatalf("report TTL = %d, want 60", cfg.ReportCacheTTLSeconds)
	}
	if cfg.Address() != ":9090" {
		t.Fatalf("address = %s, want :9090", cfg.Address())
	}
}

func TestLoadRejectsOutOfRangeTaxRate(t *testing.T) {
	t.Setenv("TAX_RATE_PERCENT", "250")

	cfg := Load()
	if cfg.TaxRatePercent != 10 {
		t.Fatalf("tax rate = %v, want fallback 10", cfg.TaxRatePercent)
	}
}
