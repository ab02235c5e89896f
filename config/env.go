package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Environment overrides. Values in the process environment win over
// values read from .env files.
const (
	EnvPrefix     = "RISKDESK_"
	EnvEquity     = EnvPrefix + "EQUITY"
	EnvSymbols    = EnvPrefix + "SYMBOLS"
	EnvInterval   = EnvPrefix + "INTERVAL"
	EnvLogLevel   = EnvPrefix + "LOG_LEVEL"
	EnvJournalDB  = EnvPrefix + "JOURNAL_DB"
	EnvMetrics    = EnvPrefix + "METRICS_ADDR"
	EnvWebhookURL = EnvPrefix + "WEBHOOK_URL"
	EnvTimezone   = EnvPrefix + "TIMEZONE"
)

// ApplyEnv overlays RISKDESK_* settings from the given .env files and the
// process environment. Missing files are ignored.
func (c *Config) ApplyEnv(files ...string) error {
	vars := make(map[string]string)
	for _, f := range files {
		m, err := godotenv.Read(f)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return fmt.Errorf("read %s: %w", f, err)
		}
		for k, v := range m {
			vars[k] = v
		}
	}
	for _, kv := range os.Environ() {
		k, v, _ := strings.Cut(kv, "=")
		if strings.HasPrefix(k, EnvPrefix) {
			vars[k] = v
		}
	}
	return c.applyVars(vars)
}

func (c *Config) applyVars(vars map[string]string) error {
	for k, v := range vars {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		switch k {
		case EnvEquity:
			eq, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("%s: %w", k, err)
			}
			c.Account.Equity = eq
		case EnvSymbols:
			var syms []string
			for _, s := range strings.Split(v, ",") {
				if s = strings.TrimSpace(s); s != "" {
					syms = append(syms, s)
				}
			}
			c.Scheduler.Symbols = syms
		case EnvInterval:
			c.Scheduler.Interval = v
		case EnvLogLevel:
			c.Log.Level = strings.ToLower(v)
		case EnvJournalDB:
			c.Journal.Type = "sqlite"
			c.Journal.DBPath = v
		case EnvMetrics:
			c.Metrics.Enabled = true
			c.Metrics.Addr = v
		case EnvWebhookURL:
			c.Notify.WebhookURL = v
		case EnvTimezone:
			c.Risk.Timezone = v
		}
	}
	return nil
}
