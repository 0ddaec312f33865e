package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("BOT_TOKEN", "123:abc")
	t.Setenv("ADMIN_IDS", "1079919031,42")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []int64{1079919031, 42}, cfg.AdminIDs)
	assert.Equal(t, "sqlite", cfg.StorageDriver)
	assert.Equal(t, "savings_bot.db", cfg.SQLitePath)
	assert.Equal(t, "local", cfg.LedgerLock)
	assert.Equal(t, 5, cfg.LedgerMaxRetries)
	assert.Equal(t, []int{1, 0}, cfg.RemindDaysBefore)
	assert.Equal(t, 10, cfg.RemindHour)
	assert.Equal(t, time.Minute, cfg.RemindEvery)
	assert.Empty(t, cfg.HTTPAddr)
}

func TestLoadRequiresToken(t *testing.T) {
	t.Setenv("BOT_TOKEN", "")

	_, err := Load()
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
		ok   bool
	}{
		{"postgres without url", Config{StorageDriver: "postgres", LedgerLock: "local"}, false},
		{"postgres with url", Config{StorageDriver: "Postgres", DatabaseURL: "postgres://x", LedgerLock: "local"}, true},
		{"unknown driver", Config{StorageDriver: "mysql", LedgerLock: "local"}, false},
		{"unknown lock", Config{StorageDriver: "memory", LedgerLock: "etcd"}, false},
		{"bad hour", Config{StorageDriver: "memory", LedgerLock: "redis", RemindHour: 24}, false},
		{"negative retries", Config{StorageDriver: "memory", LedgerLock: "local", LedgerMaxRetries: -1}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestValidateDropsOutOfRangeReminderOffsets(t *testing.T) {
	cfg := Config{StorageDriver: "memory", LedgerLock: "local", RemindDaysBefore: []int{7, -1, 40, 0}}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, []int{7, 0}, cfg.RemindDaysBefore)
}

func TestLocationFallsBackToUTC(t *testing.T) {
	assert.Equal(t, time.UTC, Config{Timezone: "Nowhere/Special"}.Location())
}
