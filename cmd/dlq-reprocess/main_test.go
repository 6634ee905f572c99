package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/wholesale/internal/messaging/kafka"
)

func envOf(values map[string]string) func(string) string {
	return func(key string) string { return values[key] }
}

func TestReadConfig_Defaults(t *testing.T) {
	cfg, err := readConfig(nil, envOf(map[string]string{"KAFKA_BROKERS": "kafka-1:9092, kafka-2:9092,"}))
	require.NoError(t, err)

	require.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.brokers)
	require.Equal(t, kafka.ReplayOptions{
		SourceTopic:   kafka.TopicDeadLetterQueue,
		FallbackTopic: kafka.TopicOrderEvents,
		Limit:         100,
		IdleTimeout:   2 * time.Second,
	}, cfg.replay)
}

func TestReadConfig_Flags(t *testing.T) {
	cfg, err := readConfig([]string{
		"-brokers=localhost:9092",
		"-source-topic=custom.dlq",
		"-target-topic=custom.orders",
		"-limit=5",
		"-execute",
		"-idle-timeout=500ms",
	}, envOf(map[string]string{"KAFKA_BROKERS": "ignored:9092"}))
	require.NoError(t, err)

	require.Equal(t, []string{"localhost:9092"}, cfg.brokers)
	require.Equal(t, "custom.dlq", cfg.replay.SourceTopic)
	require.Equal(t, "custom.orders", cfg.replay.FallbackTopic)
	require.Equal(t, 5, cfg.replay.Limit)
	require.True(t, cfg.replay.Execute)
	require.Equal(t, 500*time.Millisecond, cfg.replay.IdleTimeout)
}

func TestReadConfig_Errors(t *testing.T) {
	cases := map[string][]string{
		"no brokers":        nil,
		"empty source":      {"-brokers=k:9092", "-source-topic="},
		"loop to dlq":       {"-brokers=k:9092", "-target-topic=" + kafka.TopicDeadLetterQueue},
		"zero limit":        {"-brokers=k:9092", "-limit=0"},
		"zero idle timeout": {"-brokers=k:9092", "-idle-timeout=0s"},
		"unknown flag":      {"-brokers=k:9092", "-from-newest"},
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := readConfig(args, envOf(nil))
			require.Error(t, err)
		})
	}
}
