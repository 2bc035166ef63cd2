package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultValidates(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestValidateReportsEveryViolation(t *testing.T) {
	cfg := Default()
	cfg.Risk.RiskPercentage = -1  // invalid
	cfg.Risk.EntryTimes = 0       // invalid
	cfg.Signal.BuyFamily = "macd" // invalid
	cfg.Stop.Mode = "chandelier"  // invalid

	err := cfg.Validate()
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
	for _, want := range []string{"risk_percentage", "entry_times", "buy_family", "stop.mode"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error %q does not mention %s", err, want)
		}
	}
}

func TestValidateSMATerms(t *testing.T) {
	cfg := Default()
	cfg.Signal.SMAFastTerm = 50
	cfg.Signal.SMASlowTerm = 20
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error when fast SMA is slower than slow SMA")
	}
}

func TestWindowSizeFollowsEnabledComponents(t *testing.T) {
	cfg := Default()
	// donchian 16/16, volatility 5, psar 30
	if got := cfg.WindowSize(); got != 30 {
		t.Fatalf("expected window 30, got %d", got)
	}
	cfg.Signal.BuyFamily = FamilySMACross
	if got := cfg.WindowSize(); got != 180 {
		t.Fatalf("expected window 180 with sma cross, got %d", got)
	}
	cfg.Signal.BuyFamily = FamilyDonchian
	cfg.Stop.Mode = StopFixedAF
	if got := cfg.WindowSize(); got != 16 {
		t.Fatalf("expected window 16, got %d", got)
	}
}

func TestValidateHistory(t *testing.T) {
	cfg := Default()
	if err := cfg.ValidateHistory(10); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid for short history, got %v", err)
	}
	if err := cfg.ValidateHistory(31); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoadYAMLOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "run.yaml")
	doc := `
market:
  symbol: ETH/USD
risk:
  entry_times: 3
signal:
  buy_family: pivot
stop:
  mode: fixed_af
`
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Market.Symbol != "ETH/USD" || cfg.Risk.EntryTimes != 3 {
		t.Fatalf("yaml values not applied: %+v", cfg)
	}
	if cfg.Signal.BuyFamily != FamilyPivot || cfg.Stop.Mode != StopFixedAF {
		t.Fatalf("yaml enums not applied: %+v", cfg.Signal)
	}
	// untouched fields keep their defaults
	if cfg.Risk.StopRange != 4 || cfg.Signal.SellTerm != 16 {
		t.Fatalf("defaults lost: %+v", cfg.Risk)
	}
}

func TestEnvOverrides(t *testing.T) {
	cfg := Default()
	env := map[string]string{
		"GOPYRA_SYMBOL":      "XRP/USD",
		"GOPYRA_START_FUNDS": "5000",
	}
	lookup := func(k string) (string, bool) { v, ok := env[k]; return v, ok }
	if err := cfg.applyEnv(lookup); err != nil {
		t.Fatalf("applyEnv: %v", err)
	}
	if cfg.Market.Symbol != "XRP/USD" || cfg.Backtest.StartFunds != 5000 {
		t.Fatalf("env overrides not applied: %+v", cfg)
	}

	env["GOPYRA_LEVERAGE"] = "lots"
	if err := cfg.applyEnv(lookup); err == nil {
		t.Fatalf("expected parse error for non-numeric leverage")
	}
}
