package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
	"go.uber.org/zap/zapcore"

	"github.com/Simplici0/importcost/internal/form"
)

// Config holds application configuration sourced from environment variables.
type Config struct {
	AppEnv             string           `envconfig:"APP_ENV" default:"dev"`
	Port               string           `envconfig:"PORT" default:"8080"`
	LogLevel           string           `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat          string           `envconfig:"LOG_FORMAT" default:"console"`
	PercentMode        form.PercentMode `envconfig:"PERCENT_MODE" default:"percent"`
	FillDefaults       bool             `envconfig:"FILL_DEFAULTS" default:"false"`
	CORSAllowedOrigins []string         `envconfig:"CORS_ALLOWED_ORIGINS"`

	// Embedded so envconfig does not prefix the variable names.
	Defaults
}

// Defaults are the values offered for empty entry fields.
type Defaults struct {
	ExchangeRate        decimal.Decimal `envconfig:"DEFAULT_EXCHANGE_RATE" default:"5.56"`
	IntlFreightRateUSD  decimal.Decimal `envconfig:"DEFAULT_INTL_FREIGHT_RATE_USD" default:"7.50"`
	IntlFreightExtraUSD decimal.Decimal `envconfig:"DEFAULT_INTL_FREIGHT_EXTRA_USD" default:"0.00"`
	AdminFeeFixedUSD    decimal.Decimal `envconfig:"DEFAULT_ADMIN_FEE_FIXED_USD" default:"1.90"`
	AdminFeePercent     decimal.Decimal `envconfig:"DEFAULT_ADMIN_FEE_PERCENT" default:"0.005"` // fraction
	DomesticFreightUSD  decimal.Decimal `envconfig:"DEFAULT_DOMESTIC_FREIGHT_USD" default:"1.93"`
	HandlingFeeUSD      decimal.Decimal `envconfig:"DEFAULT_HANDLING_FEE_USD" default:"10.00"`
}

// Load reads a local .env file when present, then the environment.
func Load() (Config, error) {
	return LoadFrom(".env")
}

// LoadFrom is Load with an explicit dotenv path. Variables already present in
// the environment win over the file; production should use real env injection.
func LoadFrom(path string) (Config, error) {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load %s: %w", path, err)
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("read environment: %w", err)
	}

	mode, err := form.ParsePercentMode(string(cfg.PercentMode))
	if err != nil {
		return Config{}, fmt.Errorf("PERCENT_MODE: %w", err)
	}
	cfg.PercentMode = mode
	cfg.LogFormat = strings.ToLower(strings.TrimSpace(cfg.LogFormat))
	cfg.CORSAllowedOrigins = trimAll(cfg.CORSAllowedOrigins)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// IsDev reports whether the app runs in a development environment.
func (c Config) IsDev() bool {
	env := strings.ToLower(strings.TrimSpace(c.AppEnv))
	return env == "" || env == "dev" || env == "development" || env == "local"
}

// FormDefaults converts the configured defaults for the form layer.
func (c Config) FormDefaults() form.Defaults {
	d := c.Defaults
	return form.Defaults{
		AdminFeeFixedUSD:    d.AdminFeeFixedUSD,
		AdminFeePercent:     d.AdminFeePercent,
		DomesticFreightUSD:  d.DomesticFreightUSD,
		HandlingFeeUSD:      d.HandlingFeeUSD,
		ExchangeRate:        d.ExchangeRate,
		IntlFreightRateUSD:  d.IntlFreightRateUSD,
		IntlFreightExtraUSD: d.IntlFreightExtraUSD,
	}
}

func (c Config) validate() error {
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("LOG_LEVEL: %w", err)
	}
	if c.LogFormat != "console" && c.LogFormat != "json" {
		return fmt.Errorf("LOG_FORMAT: unknown format %q (want console or json)", c.LogFormat)
	}
	if strings.TrimSpace(c.Port) == "" {
		return errors.New("PORT must not be empty")
	}

	d := c.Defaults
	if !d.ExchangeRate.IsPositive() {
		return fmt.Errorf("DEFAULT_EXCHANGE_RATE must be greater than 0, got %s", d.ExchangeRate)
	}
	nonNegative := []struct {
		name  string
		value decimal.Decimal
	}{
		{"DEFAULT_INTL_FREIGHT_RATE_USD", d.IntlFreightRateUSD},
		{"DEFAULT_INTL_FREIGHT_EXTRA_USD", d.IntlFreightExtraUSD},
		{"DEFAULT_ADMIN_FEE_FIXED_USD", d.AdminFeeFixedUSD},
		{"DEFAULT_ADMIN_FEE_PERCENT", d.AdminFeePercent},
		{"DEFAULT_DOMESTIC_FREIGHT_USD", d.DomesticFreightUSD},
		{"DEFAULT_HANDLING_FEE_USD", d.HandlingFeeUSD},
	}
	for _, f := range nonNegative {
		if f.value.IsNegative() {
			return fmt.Errorf("%s must be greater than or equal to 0, got %s", f.name, f.value)
		}
	}
	return nil
}

func trimAll(values []string) []string {
	out := values[:0]
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
