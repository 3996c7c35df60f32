package config

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// EnvToken overrides telegram.token so the secret can stay out of the
// config file.
const EnvToken = "CASTBOT_TELEGRAM_TOKEN"

// LoadDotEnv reads .env files into the process environment. Missing files
// are skipped; variables already set win.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	existing := make([]string, 0, len(files))
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	return godotenv.Load(existing...)
}

func applyEnv(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv(EnvToken)); v != "" {
		cfg.Telegram.Token = v
	}
}
