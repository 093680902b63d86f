package config

import "github.com/spf13/viper"

// Config holds typed configuration for the autopilotd service.
type Config struct {
	LogLevel          string
	HTTPPort          string
	MetricsAddr       string
	KafkaBrokers      string
	SignalsTopic      string
	NotifyTopic       string
	ConsumerGroup     string
	RedisAddr         string
	PostgresDSN       string
	ResyncCron        string
	SnapshotRateLimit int
	OTelEndpoint      string
}

// Load reads all values from the given viper instance.
func Load(v *viper.Viper) Config {
	return Config{
		LogLevel:          v.GetString("log_level"),
		HTTPPort:          v.GetString("http_port"),
		MetricsAddr:       v.GetString("metrics_addr"),
		KafkaBrokers:      v.GetString("kafka_brokers"),
		SignalsTopic:      v.GetString("signals_topic"),
		NotifyTopic:       v.GetString("notify_topic"),
		ConsumerGroup:     v.GetString("consumer_group"),
		RedisAddr:         v.GetString("redis_addr"),
		PostgresDSN:       v.GetString("postgres_dsn"),
		ResyncCron:        v.GetString("resync_cron"),
		SnapshotRateLimit: v.GetInt("snapshot_rate_limit"),
		OTelEndpoint:      v.GetString("otel_endpoint"),
	}
}
