// Command shop-api запускает REST API магазина.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shop/internal/app"
	"github.com/vladislavdragonenkov/shop/internal/version"
)

// setupLogger настраивает формат и уровень логирования для сервиса.
func setupLogger(logger *log.Logger, cfg app.Config) error {
	if cfg.LogFormat == "json" {
		logger.SetFormatter(&log.JSONFormatter{})
	} else {
		logger.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logger.SetLevel(level)
	return nil
}

func main() {
	showVersion := flag.Bool("version", false, "print build information and exit")
	flag.Parse()
	if *showVersion {
		fmt.Println(version.String())
		return
	}

	cfg, err := app.LoadFromEnv()
	if err != nil {
		log.WithError(err).Fatal("некорректная конфигурация")
	}
	if err := setupLogger(log.StandardLogger(), cfg); err != nil {
		log.WithError(err).Fatal("некорректный уровень логирования")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(log.Fields{
		"http_addr":    cfg.HTTPAddr,
		"grpc_addr":    cfg.GRPCAddr,
		"metrics_addr": cfg.MetricsAddr,
		"storage":      cfg.StorageDriver,
		"kafka":        cfg.KafkaEnabled(),
		"build":        version.String(),
	}).Info("запускаем shop-api")

	if err := app.Run(ctx, cfg); err != nil {
		log.WithError(err).Fatal("приложение завершилось с ошибкой")
	}

	log.Info("shop-api остановлен")
}
