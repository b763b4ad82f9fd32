package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/kopertop/ai-dnd-expo-sub002/internal/domain"
	"github.com/kopertop/ai-dnd-expo-sub002/internal/engine"
	"github.com/kopertop/ai-dnd-expo-sub002/internal/session"
	"github.com/kopertop/ai-dnd-expo-sub002/internal/version"
	"github.com/kopertop/ai-dnd-expo-sub002/pkg/logger"
)

func init() {
	// .env удобен локально; в проде переменные приходят из окружения
	_ = godotenv.Load()
	logger.Init()
}

func main() {
	// 1. Парсинг конфигурации
	var invite string
	var recordDir string
	flag.StringVar(&invite, "invite", "", "Invite code (overrides ENCOUNTER_INVITE_CODE)")
	flag.StringVar(&recordDir, "record", "", "Session record directory (overrides ENCOUNTER_RECORD_DIR)")
	flag.Parse()

	logger.Log.Info("Starting encounter client...")
	logger.Log.Info(version.String())

	if invite != "" {
		os.Setenv("ENCOUNTER_INVITE_CODE", invite)
	}
	if recordDir != "" {
		os.Setenv("ENCOUNTER_RECORD_DIR", recordDir)
	}

	cfg, err := session.ParseConfig()
	if err != nil {
		logger.Log.Fatal("Config error: ", err)
	}

	// 2. Подключение к сессии
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sess, err := session.Join(ctx, cfg)
	if err != nil {
		logger.Log.Fatal("Failed to join session: ", err)
	}

	// 3. Логируем жизнь сессии: снапшоты и исходы действий
	events := sess.Coordinator().Events()
	go func() {
		for ev := range events {
			fields := logrus.Fields{"type": ev.Type}
			if ev.Kind != domain.ActionUnknown {
				fields["action"] = ev.Kind.String()
			}
			if ev.TargetID != "" {
				fields["target"] = ev.TargetID
			}
			switch ev.Type {
			case engine.EventSynced:
				fields["version"] = ev.Version
				logger.Log.WithFields(fields).Debug("State synced")
			case engine.EventRolledBack, engine.EventRejected:
				fields["reason"] = ev.Err
				logger.Log.WithFields(fields).Warn("Action failed")
			default:
				logger.Log.WithFields(fields).Info("Action event")
			}
		}
	}()

	// Graceful Shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case <-stop:
		logger.Log.Info("Shutting down...")
	case err := <-sess.Fatal():
		logger.Log.WithError(err).Error("Session ended by backend")
	}

	sess.Close()
	logger.Log.Info("Done.")
}
