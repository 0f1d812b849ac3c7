package config

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func TestLoadFromEnv(t *testing.T) {
	admin := uuid.New()
	t.Setenv("USD_TO_TND_RATE", "3.15")
	t.Setenv("ADMIN_USER_IDS", admin.String()+", not-a-uuid ,")
	t.Setenv("CONFLICT_RETRY_BASE_MS", "40")
	t.Setenv("ASSIGNMENT_TIMEOUT_SECONDS", "bogus")

	cfg := Load()

	if !cfg.USDToTNDRate.Equal(decimal.RequireFromString("3.15")) {
		t.Errorf("rate = %s", cfg.USDToTNDRate)
	}
	if len(cfg.AdminUserIDs) != 1 || !cfg.IsAdmin(admin) {
		t.Errorf("admin ids = %v", cfg.AdminUserIDs)
	}
	if cfg.ConflictRetryBase != 40*time.Millisecond {
		t.Errorf("retry base = %v", cfg.ConflictRetryBase)
	}
	if cfg.AssignmentTimeout != 24*time.Hour {
		t.Errorf("assignment timeout should fall back, got %v", cfg.AssignmentTimeout)
	}
	if cfg.ChatStartGrace != time.Minute {
		t.Errorf("chat start grace = %v", cfg.ChatStartGrace)
	}
}

func TestValidateFixesBadRate(t *testing.T) {
	cfg := &Config{USDToTNDRate: decimal.NewFromInt(-1), BaseCurrency: "TND", ConflictMaxRetries: -2}
	cfg.Validate(zap.NewNop())
	if !cfg.USDToTNDRate.Equal(decimal.NewFromInt(3)) {
		t.Errorf("rate = %s", cfg.USDToTNDRate)
	}
	if cfg.ConflictMaxRetries != 0 {
		t.Errorf("retries = %d", cfg.ConflictMaxRetries)
	}
}
