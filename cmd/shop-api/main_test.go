package main

import (
	"testing"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shop/internal/app"
)

func TestSetupLogger(t *testing.T) {
	logger := log.New()
	cfg := app.DefaultConfig()

	if err := setupLogger(logger, cfg); err != nil {
		t.Fatalf("setupLogger: %v", err)
	}
	if _, ok := logger.Formatter.(*log.TextFormatter); !ok {
		t.Fatalf("expected text formatter, got %T", logger.Formatter)
	}
	if logger.GetLevel() != log.InfoLevel {
		t.Fatalf("expected info level, got %s", logger.GetLevel())
	}

	cfg.LogFormat = "json"
	cfg.LogLevel = "debug"
	if err := setupLogger(logger, cfg); err != nil {
		t.Fatalf("setupLogger json: %v", err)
	}
	if _, ok := logger.Formatter.(*log.JSONFormatter); !ok {
		t.Fatalf("expected json formatter, got %T", logger.Formatter)
	}
	if logger.GetLevel() != log.DebugLevel {
		t.Fatalf("expected debug level, got %s", logger.GetLevel())
	}
}

func TestSetupLogger_InvalidLevel(t *testing.T) {
	cfg := app.DefaultConfig()
	cfg.LogLevel = "chatty"
	if err := setupLogger(log.New(), cfg); err == nil {
		t.Fatal("expected error for invalid level")
	}
}
