package config

import (
	"fmt"

	env "github.com/caarlos0/env/v11"
	"github.com/shopspring/decimal"
)

type Config struct {
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	AppEnv      string `env:"APP_ENV" envDefault:"production"`
	HTTPAddr    string `env:"HTTP_ADDR" envDefault:":8080"`
	MetricsAddr string `env:"METRICS_ADDR" envDefault:":9090"`

	SimTicks     int64 `env:"SIM_TICKS" envDefault:"50"`
	FirstAgentID int64 `env:"FIRST_AGENT_ID" envDefault:"1000"`

	TicksPerYear         int64  `env:"TICKS_PER_YEAR" envDefault:"100"`
	DefaultLoanRate      string `env:"DEFAULT_LOAN_RATE" envDefault:"0.07"`
	DefaultLoanTermTicks int64  `env:"DEFAULT_LOAN_TERM_TICKS" envDefault:"50"`

	// Pennies.
	DepositMatchTolerance int64 `env:"DEPOSIT_MATCH_TOLERANCE" envDefault:"0"`
	ConservationTolerance int64 `env:"CONSERVATION_TOLERANCE" envDefault:"0"`

	FingerprintKey string `env:"FINGERPRINT_KEY" envDefault:"ledger-fingerprint"`
}

func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	return &cfg, nil
}

// LoanRate parses DefaultLoanRate. Load has already validated it.
func (c *Config) LoanRate() decimal.Decimal {
	rate, err := decimal.NewFromString(c.DefaultLoanRate)
	if err != nil {
		return decimal.Zero
	}
	return rate
}

func (c *Config) validate() error {
	rate, err := decimal.NewFromString(c.DefaultLoanRate)
	if err != nil {
		return fmt.Errorf("DEFAULT_LOAN_RATE: %w", err)
	}
	if rate.IsNegative() {
		return fmt.Errorf("DEFAULT_LOAN_RATE must not be negative: %s", rate)
	}
	if c.TicksPerYear <= 0 {
		return fmt.Errorf("TICKS_PER_YEAR must be positive: %d", c.TicksPerYear)
	}
	if c.FirstAgentID <= 0 {
		return fmt.Errorf("FIRST_AGENT_ID must be positive: %d", c.FirstAgentID)
	}
	if c.DepositMatchTolerance < 0 || c.ConservationTolerance < 0 {
		return fmt.Errorf("tolerances must not be negative")
	}
	return nil
}
