package main

import (
	"context"
	"log"

	"github.com/joho/godotenv"

	"anima-bot/internal/config"
	"anima-bot/internal/engine"
	"anima-bot/internal/profile"
	"anima-bot/internal/quality"
	"anima-bot/internal/scheduler"
	"anima-bot/internal/store"
	"anima-bot/internal/telegram"
)

func main() {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Warning: .env file not found: %v", err)
	}

	cfg := config.New()

	st, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		log.Fatalf("failed to init store: %v", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			log.Printf("failed to close store: %v", err)
		}
	}()

	updater := profile.NewUpdater(cfg.ConfidenceStep, cfg.PublishThreshold, cfg.AnchorCap)
	eval := quality.NewEvaluator(cfg.TargetLenMin, cfg.TargetLenMax, emptyToNil(cfg.EmpathyTerms), emptyToNil(cfg.BannedTerms))
	eng := engine.New(st, updater, eval)

	bot, err := telegram.New(cfg.TelegramBotToken, eng, cfg.AdminUserID)
	if err != nil {
		log.Fatalf("failed to create bot: %v", err)
	}

	sched := scheduler.New(cfg.ReportCron)
	sched.SetReportFunction(bot.DailyReport)
	if err := sched.Start(); err != nil {
		log.Printf("failed to start scheduler: %v", err)
	}
	defer sched.Stop()

	bot.Start(context.Background())
}

func emptyToNil(terms []string) []string {
	if len(terms) == 0 {
		return nil
	}
	return terms
}
