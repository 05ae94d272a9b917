package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"gopkg.in/yaml.v3"

	"judgecore/internal/platform/cache"
	"judgecore/internal/platform/db"
	"judgecore/internal/platform/mq"
	"judgecore/internal/platform/storage"
	"judgecore/internal/sandbox/engine"
	"judgecore/internal/sandbox/profile"
	"judgecore/pkg/utils/logger"
)

const (
	defaultHTTPAddr        = "0.0.0.0:8086"
	defaultReadTimeout     = 5 * time.Second
	defaultWriteTimeout    = 10 * time.Second
	defaultIdleTimeout     = 60 * time.Second
	defaultShutdownTimeout = 10 * time.Second
	defaultWorkDir         = "/var/lib/judgecore/work"
	defaultMaxConcurrent   = 4
	defaultEventTopic      = "submission.judged"
)

// ServerConfig holds the read-only status HTTP server settings.
type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	IdleTimeout  time.Duration `yaml:"idleTimeout"`
}

// RabbitMQConfigYAML mirrors mq.RabbitMQConfig with yaml tags, since the
// job queue's primary transport is configured from this file rather than
// composed from the status-event bus's Kafka settings.
type RabbitMQConfigYAML struct {
	URL            string        `yaml:"url"`
	PrefetchCount  int           `yaml:"prefetchCount"`
	ReconnectDelay time.Duration `yaml:"reconnectDelay"`
}

// KafkaConfig holds the event bus's Kafka settings. The job queue itself
// runs on RabbitMQ; Kafka here only carries best-effort submission.judged
// notifications, matching the at-most-once semantics spec.md assigns that
// channel.
type KafkaConfig struct {
	Brokers      []string      `yaml:"brokers"`
	ClientID     string        `yaml:"clientID"`
	MinBytes     int           `yaml:"minBytes"`
	MaxBytes     int           `yaml:"maxBytes"`
	MaxWait      time.Duration `yaml:"maxWait"`
	BatchSize    int           `yaml:"batchSize"`
	BatchTimeout time.Duration `yaml:"batchTimeout"`
	DialTimeout  time.Duration `yaml:"dialTimeout"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	RequiredAcks int           `yaml:"requiredAcks"`
	Compression  string        `yaml:"compression"`
	StatusTopic  string        `yaml:"statusTopic"`
}

// DatapackConfig holds the local disk cache fronting object storage for
// out-of-line test case data.
type DatapackConfig struct {
	RootDir    string `yaml:"rootDir"`
	MaxEntries int    `yaml:"maxEntries"`
	MaxBytes   int64  `yaml:"maxBytes"`
}

// SandboxConfig holds sandbox engine settings.
type SandboxConfig struct {
	CgroupRoot           string `yaml:"cgroupRoot"`
	SeccompDir           string `yaml:"seccompDir"`
	HelperPath           string `yaml:"helperPath"`
	StdoutStderrMaxBytes int64  `yaml:"stdoutStderrMaxBytes"`
	EnableSeccomp        bool   `yaml:"enableSeccomp"`
	EnableCgroup         bool   `yaml:"enableCgroup"`
	EnableNamespaces     bool   `yaml:"enableNamespaces"`
}

// LanguageConfig holds the sandbox task profiles the worker serves out of
// process memory, keyed by (languageID, taskType).
type LanguageConfig struct {
	Profiles []profile.TaskProfile `yaml:"profiles"`
}

// WorkerConfig holds job-consumption tuning.
type WorkerConfig struct {
	// MaxConcurrentJobs bounds in-flight judging jobs, passed straight
	// through to queue.JobQueue.Consume as the prefetch count.
	MaxConcurrentJobs int    `yaml:"maxConcurrentJobs"`
	WorkDir           string `yaml:"workDir"`
}

// AppConfig holds judge-worker config.
type AppConfig struct {
	Server   ServerConfig        `yaml:"server"`
	Logger   logger.Config       `yaml:"logger"`
	Database db.MySQLConfig      `yaml:"database"`
	Redis    cache.RedisConfig   `yaml:"redis"`
	MinIO    storage.MinIOConfig `yaml:"minio"`
	RabbitMQ RabbitMQConfigYAML  `yaml:"rabbitmq"`
	Kafka    KafkaConfig         `yaml:"kafka"`
	Datapack DatapackConfig      `yaml:"datapack"`
	Sandbox  SandboxConfig       `yaml:"sandbox"`
	Language LanguageConfig      `yaml:"language"`
	Worker   WorkerConfig        `yaml:"worker"`
}

func loadYAML(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file failed: %w", err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse config file failed: %w", err)
	}
	return nil
}

// loadAppConfig reads the YAML config at path and applies the DATABASE_URL,
// REDIS_ADDR, RABBITMQ_URL, WORK_DIR and MAX_CONCURRENT_JOBS environment
// overrides, so a deployment can run off env vars alone without a bespoke
// config file. WORKER_COUNT is not read.
func loadAppConfig(path string) (*AppConfig, error) {
	var cfg AppConfig
	if path != "" {
		if err := loadYAML(path, &cfg); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("RABBITMQ_URL"); v != "" {
		cfg.RabbitMQ.URL = v
	}
	if v := os.Getenv("WORK_DIR"); v != "" {
		cfg.Worker.WorkDir = v
	}
	if v := os.Getenv("MAX_CONCURRENT_JOBS"); v != "" {
		if n, err := parsePositiveInt(v); err == nil {
			cfg.Worker.MaxConcurrentJobs = n
		}
	}

	if cfg.Database.DSN == "" {
		return nil, fmt.Errorf("database dsn is required")
	}
	if cfg.RabbitMQ.URL == "" {
		return nil, fmt.Errorf("rabbitmq url is required")
	}

	applyRedisDefaults(&cfg.Redis)
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = defaultHTTPAddr
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = defaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = defaultWriteTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = defaultIdleTimeout
	}
	if cfg.Worker.WorkDir == "" {
		cfg.Worker.WorkDir = defaultWorkDir
	}
	if cfg.Worker.MaxConcurrentJobs <= 0 {
		cfg.Worker.MaxConcurrentJobs = defaultMaxConcurrent
	}
	if cfg.RabbitMQ.PrefetchCount <= 0 {
		cfg.RabbitMQ.PrefetchCount = cfg.Worker.MaxConcurrentJobs
	}
	if cfg.Kafka.StatusTopic == "" {
		cfg.Kafka.StatusTopic = defaultEventTopic
	}
	if cfg.Datapack.MaxEntries <= 0 {
		cfg.Datapack.MaxEntries = 256
	}
	return &cfg, nil
}

func parsePositiveInt(s string) (int, error) {
	var n int
	if _, err := fmt.Sscanf(s, "%d", &n); err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, fmt.Errorf("value must be positive")
	}
	return n, nil
}

func applyRedisDefaults(cfg *cache.RedisConfig) {
	if cfg == nil || cfg.Addr == "" {
		return
	}
	defaults := cache.DefaultRedisConfig()
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaults.MaxRetries
	}
	if cfg.MinRetryBackoff == 0 {
		cfg.MinRetryBackoff = defaults.MinRetryBackoff
	}
	if cfg.MaxRetryBackoff == 0 {
		cfg.MaxRetryBackoff = defaults.MaxRetryBackoff
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = defaults.DialTimeout
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = defaults.ReadTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = defaults.WriteTimeout
	}
	if cfg.PoolSize == 0 {
		cfg.PoolSize = defaults.PoolSize
	}
	if cfg.MinIdleConns == 0 {
		cfg.MinIdleConns = defaults.MinIdleConns
	}
	if cfg.PoolTimeout == 0 {
		cfg.PoolTimeout = defaults.PoolTimeout
	}
	if cfg.ConnMaxIdleTime == 0 {
		cfg.ConnMaxIdleTime = defaults.ConnMaxIdleTime
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = defaults.ConnMaxLifetime
	}
}

func (k KafkaConfig) toMQConfig() mq.KafkaConfig {
	return mq.KafkaConfig{
		Brokers:      k.Brokers,
		ClientID:     k.ClientID,
		MinBytes:     k.MinBytes,
		MaxBytes:     k.MaxBytes,
		MaxWait:      k.MaxWait,
		BatchSize:    k.BatchSize,
		BatchTimeout: k.BatchTimeout,
		DialTimeout:  k.DialTimeout,
		ReadTimeout:  k.ReadTimeout,
		WriteTimeout: k.WriteTimeout,
		RequiredAcks: kafka.RequiredAcks(k.RequiredAcks),
		Compression:  parseCompression(k.Compression),
	}
}

func parseCompression(raw string) kafka.Compression {
	switch strings.ToLower(raw) {
	case "gzip":
		return kafka.Gzip
	case "snappy":
		return kafka.Snappy
	case "lz4":
		return kafka.Lz4
	case "zstd":
		return kafka.Zstd
	default:
		return kafka.Compression(0)
	}
}

func (r RabbitMQConfigYAML) toMQConfig() mq.RabbitMQConfig {
	return mq.RabbitMQConfig{
		URL:            r.URL,
		PrefetchCount:  r.PrefetchCount,
		ReconnectDelay: r.ReconnectDelay,
	}
}

func (s SandboxConfig) toEngineConfig() engine.Config {
	return engine.Config{
		CgroupRoot:           s.CgroupRoot,
		SeccompDir:           s.SeccompDir,
		HelperPath:           s.HelperPath,
		StdoutStderrMaxBytes: s.StdoutStderrMaxBytes,
		EnableSeccomp:        s.EnableSeccomp,
		EnableCgroup:         s.EnableCgroup,
		EnableNamespaces:     s.EnableNamespaces,
	}
}
