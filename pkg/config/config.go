// Package config loads fredBills settings from an optional TOML file and the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

// PathEnv names the environment variable holding the TOML config path.
const PathEnv = "FREDBILLS_CONFIG"

// Config holds application configuration.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Database DatabaseConfig `toml:"database"`
	Log      LogConfig      `toml:"log"`
	Schedule ScheduleConfig `toml:"schedule"`
	SMTP     SMTPConfig     `toml:"smtp"`
	Currency CurrencyConfig `toml:"currency"`
}

type ServerConfig struct {
	Port string `toml:"port"`
}

type DatabaseConfig struct {
	Driver string `toml:"driver"` // sqlite3 or postgres
	DSN    string `toml:"dsn"`
}

type LogConfig struct {
	Level string `toml:"level"`
}

// ScheduleConfig controls the background jobs. Timezone is an IANA name and
// also decides where calendar days and months begin.
type ScheduleConfig struct {
	Timezone       string `toml:"timezone"`
	DailyBillCheck string `toml:"daily_bill_check"`
	AutoPay        string `toml:"auto_pay"`
}

// SMTPConfig configures auto-pay failure emails. Leaving Host empty disables them.
type SMTPConfig struct {
	Host        string `toml:"host,omitempty"`
	Port        string `toml:"port"`
	Username    string `toml:"username,omitempty"`
	Password    string `toml:"password,omitempty"`
	SenderEmail string `toml:"sender_email,omitempty"`
	NotifyEmail string `toml:"notify_email,omitempty"`
}

// Enabled reports whether failure emails can be sent.
func (c SMTPConfig) Enabled() bool {
	return c.Host != "" && c.NotifyEmail != ""
}

type CurrencyConfig struct {
	MinorDigits int32 `toml:"minor_digits"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Server:   ServerConfig{Port: "8080"},
		Database: DatabaseConfig{Driver: "sqlite3", DSN: "fredbills.db"},
		Log:      LogConfig{Level: "info"},
		Schedule: ScheduleConfig{
			Timezone:       "Local",
			DailyBillCheck: "0 0 * * *",
			AutoPay:        "5 0 * * *",
		},
		SMTP:     SMTPConfig{Port: "587"},
		Currency: CurrencyConfig{MinorDigits: 2},
	}
}

// Load builds the configuration from defaults, then the TOML file named by
// FREDBILLS_CONFIG (if any), then environment variables.
func Load() (*Config, error) {
	cfg := Default()
	if path := os.Getenv(PathEnv); path != "" {
		if err := LoadFile(path, &cfg); err != nil {
			return nil, err
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadFile overlays the TOML file at path onto cfg. Keys missing from the
// file keep their current values.
func LoadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config: %w", err)
	}
	meta, err := toml.Decode(string(data), cfg)
	if err != nil {
		return fmt.Errorf("parsing config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("parsing config: unknown key %q", undecoded[0].String())
	}
	return nil
}

func applyEnv(cfg *Config) error {
	cfg.Server.Port = getEnv("PORT", cfg.Server.Port)
	cfg.Database.Driver = getEnv("DB_DRIVER", cfg.Database.Driver)
	cfg.Database.DSN = getEnv("DB_CONN", cfg.Database.DSN)
	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)
	cfg.Schedule.Timezone = getEnv("TZ_NAME", cfg.Schedule.Timezone)
	cfg.Schedule.DailyBillCheck = getEnv("CRON_DAILY_BILL_CHECK", cfg.Schedule.DailyBillCheck)
	cfg.Schedule.AutoPay = getEnv("CRON_AUTO_PAY", cfg.Schedule.AutoPay)
	cfg.SMTP.Host = getEnv("SMTP_HOST", cfg.SMTP.Host)
	cfg.SMTP.Port = getEnv("SMTP_PORT", cfg.SMTP.Port)
	cfg.SMTP.Username = getEnv("SMTP_USERNAME", cfg.SMTP.Username)
	cfg.SMTP.Password = getEnv("SMTP_PASSWORD", cfg.SMTP.Password)
	cfg.SMTP.SenderEmail = getEnv("SENDER_EMAIL", cfg.SMTP.SenderEmail)
	cfg.SMTP.NotifyEmail = getEnv("NOTIFY_EMAIL", cfg.SMTP.NotifyEmail)

	if v, ok := os.LookupEnv("CURRENCY_MINOR_DIGITS"); ok {
		digits, err := strconv.ParseInt(v, 10, 32)
		if err != nil {
			return fmt.Errorf("CURRENCY_MINOR_DIGITS: %w", err)
		}
		cfg.Currency.MinorDigits = int32(digits)
	}
	return nil
}

func (c *Config) validate() error {
	if c.Database.DSN == "" {
		return fmt.Errorf("DB_CONN is required")
	}
	if c.Currency.MinorDigits < 0 || c.Currency.MinorDigits > 4 {
		return fmt.Errorf("currency minor digits must be between 0 and 4, got %d", c.Currency.MinorDigits)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location resolves Schedule.Timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Schedule.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.Schedule.Timezone, err)
	}
	return loc, nil
}

func getEnv(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultVal
}
