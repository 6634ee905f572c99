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

	"github.com/vladislavdragonenkov/wholesale/internal/messaging/kafka"
)

type config struct {
	brokers []string
	replay  kafka.ReplayOptions
}

func readConfig(args []string, getenv func(string) string) (config, error) {
	var (
		cfg        config
		brokersRaw string
	)

	fs := flag.NewFlagSet("dlq-reprocess", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&brokersRaw, "brokers", "", "Kafka brokers as comma-separated list (fallback: KAFKA_BROKERS)")
	fs.StringVar(&cfg.replay.SourceTopic, "source-topic", kafka.TopicDeadLetterQueue, "DLQ source topic")
	fs.StringVar(&cfg.replay.FallbackTopic, "target-topic", kafka.TopicOrderEvents, "topic for messages without x-original-topic header")
	fs.IntVar(&cfg.replay.Limit, "limit", 100, "max number of messages to scan")
	fs.BoolVar(&cfg.replay.Execute, "execute", false, "republish messages; default is dry-run")
	fs.DurationVar(&cfg.replay.IdleTimeout, "idle-timeout", 2*time.Second, "idle timeout per partition")
	if err := fs.Parse(args); err != nil {
		return config{}, err
	}

	if strings.TrimSpace(brokersRaw) == "" {
		brokersRaw = getenv("KAFKA_BROKERS")
	}
	for _, broker := range strings.Split(brokersRaw, ",") {
		if broker = strings.TrimSpace(broker); broker != "" {
			cfg.brokers = append(cfg.brokers, broker)
		}
	}

	switch {
	case len(cfg.brokers) == 0:
		return config{}, errors.New("kafka brokers are required (-brokers or KAFKA_BROKERS)")
	case strings.TrimSpace(cfg.replay.SourceTopic) == "":
		return config{}, errors.New("source-topic is required")
	case cfg.replay.SourceTopic == cfg.replay.FallbackTopic:
		return config{}, errors.New("target-topic must differ from source-topic")
	case cfg.replay.Limit <= 0:
		return config{}, errors.New("limit must be > 0")
	case cfg.replay.IdleTimeout <= 0:
		return config{}, errors.New("idle-timeout must be > 0")
	}
	return cfg, nil
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetLevel(log.InfoLevel)

	cfg, err := readConfig(os.Args[1:], os.Getenv)
	if err != nil {
		fail("%v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	replayer, err := kafka.OpenDeadLetterReplayer(cfg.brokers, cfg.replay)
	if err != nil {
		fail("%v", err)
	}
	defer func() { _ = replayer.Close() }()

	stats, err := replayer.Replay(ctx)
	if err != nil {
		fail("dlq replay failed: %v", err)
	}
	fmt.Printf("dlq replay: scanned=%d replayed=%d skipped=%d execute=%t\n",
		stats.Scanned, stats.Replayed, stats.Skipped, cfg.replay.Execute)
}

func fail(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
