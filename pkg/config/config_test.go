package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "books.db", cfg.Database.Path)
	assert.Equal(t, 14, cfg.Lending.LoanPeriodDays)
	assert.Equal(t, 5, cfg.Lending.MaxBooksPerUser)
	assert.Equal(t, "1", cfg.Lending.FinePerDay.String())
	assert.Equal(t, 30*time.Second, cfg.Storage.Cooldown)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DB_DRIVER", "postgres")
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("LOAN_PERIOD_DAYS", "21")
	t.Setenv("FINE_PER_DAY", "0.50")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 21, cfg.Lending.LoanPeriodDays)
	assert.Equal(t, "0.5", cfg.Lending.FinePerDay.String())
	assert.Contains(t, cfg.Database.PostgresDSN(), "host=db.internal")
	assert.NotContains(t, cfg.String(), cfg.Auth.JWTSecret)
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{name: "non numeric loan period", key: "LOAN_PERIOD_DAYS", value: "two weeks"},
		{name: "zero loan period", key: "LOAN_PERIOD_DAYS", value: "0"},
		{name: "bad fine", key: "FINE_PER_DAY", value: "one dollar"},
		{name: "negative fine", key: "FINE_PER_DAY", value: "-1"},
		{name: "bad driver", key: "DB_DRIVER", value: "mysql"},
		{name: "bad cooldown", key: "STORAGE_COOLDOWN", value: "soon"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
