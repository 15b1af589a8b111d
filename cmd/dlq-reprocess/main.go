// Command dlq-reprocess возвращает недоставленные события заказов из DLQ в topic событий.
// По умолчанию работает в режиме dry-run и только логирует кандидатов.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shop/internal/messaging/kafka"
)

const clientID = "shop-dlq-reprocess"

type config struct {
	brokers     []string
	sourceTopic string
	targetTopic string
	limit       int
	execute     bool
	fromNewest  bool
	idleTimeout time.Duration
}

func (c config) mode() string {
	if c.execute {
		return "execute"
	}
	return "dry-run"
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	cfg, err := parseConfig(os.Args[1:], os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		fail("%v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, connectKafka); err != nil {
		fail("dlq replay failed: %v", err)
	}
}

func parseConfig(args []string, output io.Writer) (config, error) {
	var (
		cfg     config
		brokers string
	)
	fs := flag.NewFlagSet("dlq-reprocess", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.StringVar(&brokers, "brokers", os.Getenv("SHOP_KAFKA_BROKERS"), "comma-separated Kafka brokers")
	fs.StringVar(&cfg.sourceTopic, "source-topic", envOr("SHOP_KAFKA_DLQ_TOPIC", kafka.TopicDeadLetterQueue), "DLQ topic to read")
	fs.StringVar(&cfg.targetTopic, "target-topic", envOr("SHOP_KAFKA_ORDER_TOPIC", kafka.TopicOrderEvents), "topic to republish events to")
	fs.IntVar(&cfg.limit, "limit", 100, "max messages to scan across partitions")
	fs.BoolVar(&cfg.execute, "execute", false, "republish messages instead of a dry-run")
	fs.BoolVar(&cfg.fromNewest, "from-newest", false, "start from the newest messages of each partition")
	fs.DurationVar(&cfg.idleTimeout, "idle-timeout", 2*time.Second, "stop reading a partition after this much silence")
	if err := fs.Parse(args); err != nil {
		return config{}, err
	}

	cfg.brokers = splitList(brokers)
	cfg.sourceTopic = strings.TrimSpace(cfg.sourceTopic)
	cfg.targetTopic = strings.TrimSpace(cfg.targetTopic)
	return cfg, cfg.validate()
}

func (c config) validate() error {
	switch {
	case len(c.brokers) == 0:
		return errors.New("kafka brokers are required (-brokers or SHOP_KAFKA_BROKERS)")
	case c.sourceTopic == "":
		return errors.New("source-topic is required")
	case c.targetTopic == "":
		return errors.New("target-topic is required")
	case c.sourceTopic == c.targetTopic:
		return errors.New("source-topic and target-topic must differ")
	case c.limit <= 0:
		return errors.New("limit must be > 0")
	case c.idleTimeout <= 0:
		return errors.New("idle-timeout must be > 0")
	}
	return nil
}

func envOr(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// connector открывает DLQ и, в режиме execute, producer для целевого topic.
type connector func(cfg config) (dlqSource, replaySink, error)

func run(ctx context.Context, cfg config, connect connector) error {
	logger := log.WithFields(log.Fields{
		"source_topic": cfg.sourceTopic,
		"target_topic": cfg.targetTopic,
		"mode":         cfg.mode(),
	})
	logger.WithField("limit", cfg.limit).Info("starting dlq replay")

	source, sink, err := connect(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if sink != nil {
			_ = sink.Close()
		}
		_ = source.Close()
	}()

	r := newReplayer(cfg, source, sink, logger)
	stats, err := r.Run(ctx)
	logger.WithFields(log.Fields{
		"scanned":  stats.scanned,
		"replayed": stats.replayed,
		"skipped":  stats.skipped,
	}).Info("dlq replay finished")
	return err
}

func fail(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
