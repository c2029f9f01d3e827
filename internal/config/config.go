package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the full service configuration. Values come from an
// optional YAML file, overridden by environment variables.
type Config struct {
	ServerAddr string `yaml:"serverAddr"`
	LogLevel   string `yaml:"logLevel"`

	MongoDB  MongoDBConfig  `yaml:"mongodb"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Facility FacilityConfig `yaml:"facility"`
	Purge    PurgeConfig    `yaml:"purge"`
}

// MongoDBConfig configures the MongoDB connection
type MongoDBConfig struct {
	URI            string        `yaml:"uri"`
	Database       string        `yaml:"database"`
	ConnectTimeout time.Duration `yaml:"connectTimeout"`
	MaxPoolSize    uint64        `yaml:"maxPoolSize"`
	MinPoolSize    uint64        `yaml:"minPoolSize"`
}

// KafkaConfig configures the event producer
type KafkaConfig struct {
	Brokers      []string      `yaml:"brokers"`
	ClientID     string        `yaml:"clientId"`
	BatchSize    int           `yaml:"batchSize"`
	BatchTimeout time.Duration `yaml:"batchTimeout"`
	RequiredAcks int           `yaml:"requiredAcks"`
}

// FacilityConfig sets the facility the service runs for and its default
// execution policies. Policies persisted on the facility document win.
type FacilityConfig struct {
	FacilityID                string `yaml:"facilityId"`
	RequireBadgeAuth          bool   `yaml:"requireBadgeAuth"`
	DropDoneCountOnPathChange bool   `yaml:"dropDoneCountOnPathChange"`
	PalletizerPrefixLen       int    `yaml:"palletizerPrefixLen"`
}

// PurgeConfig controls the retention job for completed records
type PurgeConfig struct {
	Schedule  string        `yaml:"schedule"`
	Retention time.Duration `yaml:"retention"`
	BatchSize int           `yaml:"batchSize"`
}

// Default returns the configuration used when nothing else is set
func Default() *Config {
	return &Config{
		ServerAddr: ":8080",
		LogLevel:   "info",
		MongoDB: MongoDBConfig{
			URI:            "mongodb://localhost:27017",
			Database:       "fulfillment_db",
			ConnectTimeout: 10 * time.Second,
			MaxPoolSize:    100,
			MinPoolSize:    10,
		},
		Kafka: KafkaConfig{
			Brokers:      []string{"localhost:9092"},
			ClientID:     "fulfillment-engine",
			BatchSize:    100,
			BatchTimeout: 10 * time.Millisecond,
			RequiredAcks: -1,
		},
		Facility: FacilityConfig{
			FacilityID:                "DEFAULT",
			RequireBadgeAuth:          false,
			DropDoneCountOnPathChange: true,
			PalletizerPrefixLen:       6,
		},
		Purge: PurgeConfig{
			Schedule:  "0 0 2 * * *",
			Retention: 30 * 24 * time.Hour,
			BatchSize: 500,
		},
	}
}

// Load builds the configuration: defaults, then the YAML file named by
// CONFIG_FILE when present, then environment overrides.
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.ServerAddr = getEnv("SERVER_ADDR", c.ServerAddr)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)

	c.MongoDB.URI = getEnv("MONGODB_URI", c.MongoDB.URI)
	c.MongoDB.Database = getEnv("MONGODB_DATABASE", c.MongoDB.Database)

	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	c.Kafka.ClientID = getEnv("KAFKA_CLIENT_ID", c.Kafka.ClientID)

	c.Facility.FacilityID = getEnv("FACILITY_ID", c.Facility.FacilityID)
	if v := os.Getenv("REQUIRE_BADGE_AUTH"); v != "" {
		c.Facility.RequireBadgeAuth = v == "true"
	}
	if v := os.Getenv("PALLETIZER_PREFIX_LEN"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Facility.PalletizerPrefixLen = n
		}
	}

	c.Purge.Schedule = getEnv("PURGE_SCHEDULE", c.Purge.Schedule)
	if v := os.Getenv("PURGE_RETENTION"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Purge.Retention = d
		}
	}
}

// Validate rejects configurations the service cannot start with
func (c *Config) Validate() error {
	if c.ServerAddr == "" {
		return fmt.Errorf("serverAddr is required")
	}
	if c.MongoDB.URI == "" {
		return fmt.Errorf("mongodb.uri is required")
	}
	if c.MongoDB.Database == "" {
		return fmt.Errorf("mongodb.database is required")
	}
	if len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers is required")
	}
	if c.Facility.FacilityID == "" {
		return fmt.Errorf("facility.facilityId is required")
	}
	if c.Purge.Retention <= 0 {
		return fmt.Errorf("purge.retention must be positive")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
