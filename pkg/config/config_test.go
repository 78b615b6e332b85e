package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fredbills.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "sqlite3", cfg.Database.Driver)
	assert.Equal(t, "0 0 * * *", cfg.Schedule.DailyBillCheck)
	assert.Equal(t, "5 0 * * *", cfg.Schedule.AutoPay)
	assert.Equal(t, int32(2), cfg.Currency.MinorDigits)
	assert.False(t, cfg.SMTP.Enabled())
}

func TestLoadFileOverlaysDefaults(t *testing.T) {
	path := writeConfig(t, `
[database]
driver = "postgres"
dsn = "host=localhost dbname=bills sslmode=disable"

[schedule]
timezone = "Europe/Berlin"

[smtp]
host = "smtp.example.com"
notify_email = "me@example.com"
`)
	cfg := Default()
	require.NoError(t, LoadFile(path, &cfg))

	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "Europe/Berlin", cfg.Schedule.Timezone)
	assert.Equal(t, "5 0 * * *", cfg.Schedule.AutoPay, "keys absent from the file keep defaults")
	assert.Equal(t, "587", cfg.SMTP.Port)
	assert.True(t, cfg.SMTP.Enabled())

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "Europe/Berlin", loc.String())
}

func TestLoadFileRejectsUnknownKeys(t *testing.T) {
	path := writeConfig(t, "[server]\nprot = \"9000\"\n")
	cfg := Default()
	assert.ErrorContains(t, LoadFile(path, &cfg), "server.prot")
}

func TestLoadEnvironmentWins(t *testing.T) {
	path := writeConfig(t, "[server]\nport = \"9000\"\n[log]\nlevel = \"warn\"\n")
	t.Setenv(PathEnv, path)
	t.Setenv("PORT", "9100")
	t.Setenv("DB_CONN", "bills.db")
	t.Setenv("TZ_NAME", "UTC")
	t.Setenv("CURRENCY_MINOR_DIGITS", "0")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "9100", cfg.Server.Port)
	assert.Equal(t, "bills.db", cfg.Database.DSN)
	assert.Equal(t, int32(0), cfg.Currency.MinorDigits)
	if _, set := os.LookupEnv("LOG_LEVEL"); !set {
		assert.Equal(t, "warn", cfg.Log.Level)
	}
}

func TestLoadValidation(t *testing.T) {
	t.Setenv(PathEnv, "")
	t.Setenv("DB_CONN", "bills.db")

	t.Run("bad_timezone", func(t *testing.T) {
		t.Setenv("TZ_NAME", "Mars/Olympus_Mons")
		_, err := Load()
		assert.ErrorContains(t, err, "invalid timezone")
	})
	t.Run("bad_minor_digits", func(t *testing.T) {
		t.Setenv("TZ_NAME", "UTC")
		t.Setenv("CURRENCY_MINOR_DIGITS", "9")
		_, err := Load()
		assert.Error(t, err)
	})
	t.Run("empty_dsn", func(t *testing.T) {
		t.Setenv("TZ_NAME", "UTC")
		t.Setenv("CURRENCY_MINOR_DIGITS", "2")
		t.Setenv("DB_CONN", "")
		_, err := Load()
		assert.ErrorContains(t, err, "DB_CONN")
	})
	t.Run("missing_file", func(t *testing.T) {
		t.Setenv(PathEnv, filepath.Join(t.TempDir(), "absent.toml"))
		_, err := Load()
		assert.ErrorContains(t, err, "reading config")
	})
}
