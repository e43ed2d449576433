package config

import (
	"log"

	"github.com/caarlos0/env/v6"
)

type Config struct {
	TelegramBotToken string `env:"TELEGRAM_BOT_TOKEN,required"`
	AdminUserID      int64  `env:"ADMIN_USER"`

	// Storage
	DBPath string `env:"DB_PATH" envDefault:"data/anima.db"`

	// Profile tuning
	ConfidenceStep   float64 `env:"CONFIDENCE_STEP" envDefault:"0.05"`
	PublishThreshold float64 `env:"PUBLISH_THRESHOLD" envDefault:"0.6"`
	AnchorCap        int     `env:"ANCHOR_CAP" envDefault:"50"`

	// Quality rubric
	TargetLenMin int      `env:"TARGET_LEN_MIN" envDefault:"90"`
	TargetLenMax int      `env:"TARGET_LEN_MAX" envDefault:"350"`
	EmpathyTerms []string `env:"EMPATHY_TERMS" envSeparator:";"`
	BannedTerms  []string `env:"BANNED_TERMS" envSeparator:";"`

	// Reports
	ReportCron string `env:"REPORT_CRON" envDefault:"0 21 * * *"`
}

func New() *Config {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		log.Fatalf("failed to parse config: %v", err)
	}
	return cfg
}
