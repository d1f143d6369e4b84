package library

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Policy holds the lending rules for one deployment. It is threaded into the
// engine explicitly rather than compiled in, so tests and deployments can
// vary it.
type Policy struct {
	LoanDays   int `yaml:"loan_days"`
	MaxBorrow  int `yaml:"max_borrow"`
	FinePerDay int `yaml:"fine_per_day"`
}

// DefaultPolicy matches the stock deployment: 14-day loans, 3 books per
// member, 2 currency units per overdue day.
func DefaultPolicy() Policy {
	return Policy{LoanDays: 14, MaxBorrow: 3, FinePerDay: 2}
}

func (p Policy) validate() error {
	if p.LoanDays < 1 {
		return fmt.Errorf("loan_days must be at least 1, got %d", p.LoanDays)
	}
	if p.MaxBorrow < 1 {
		return fmt.Errorf("max_borrow must be at least 1, got %d", p.MaxBorrow)
	}
	if p.FinePerDay < 0 {
		return fmt.Errorf("fine_per_day cannot be negative, got %d", p.FinePerDay)
	}
	return nil
}

// Config is the CLI configuration: where the database lives and which
// lending policy applies.
type Config struct {
	DBPath string `yaml:"db_path"`
	Policy Policy `yaml:"policy"`
}

// LoadConfig reads the YAML file at path (a missing file just yields the
// defaults) and then applies environment overrides: LIBRARY_DB,
// LIBRARY_LOAN_DAYS, LIBRARY_MAX_BORROW and LIBRARY_FINE_PER_DAY.
func LoadConfig(path string) (Config, error) {
	cfg := Config{DBPath: "library.db", Policy: DefaultPolicy()}

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// defaults apply
		case err != nil:
			return cfg, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	if v := os.Getenv("LIBRARY_DB"); v != "" {
		cfg.DBPath = v
	}
	overrides := []struct {
		env string
		dst *int
	}{
		{"LIBRARY_LOAN_DAYS", &cfg.Policy.LoanDays},
		{"LIBRARY_MAX_BORROW", &cfg.Policy.MaxBorrow},
		{"LIBRARY_FINE_PER_DAY", &cfg.Policy.FinePerDay},
	}
	for _, ov := range overrides {
		v := os.Getenv(ov.env)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("%s: %w", ov.env, err)
		}
		*ov.dst = n
	}

	if err := cfg.Policy.validate(); err != nil {
		return cfg, fmt.Errorf("lending policy: %w", err)
	}
	return cfg, nil
}
