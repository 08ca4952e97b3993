package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gocql/gocql"

	domainlisting "campustrade/internal/domain/listing"
)

// Config aggregates server configuration loaded from environment variables.
// Backends whose address is empty fall back to in-process implementations.
type Config struct {
	Env         string
	InstanceID  string
	HTTPAddr    string
	CORSOrigins []string

	JWTSecret  string
	DevLogin   bool
	SessionTTL time.Duration

	ScyllaHosts             []string
	ScyllaKeyspace          string
	ScyllaUsername          string
	ScyllaPassword          string
	ScyllaConsistency       gocql.Consistency
	ScyllaTimeout           time.Duration
	ScyllaReplicationFactor int

	MongoURI string
	MongoDB  string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	KafkaBrokers      []string
	KafkaInsertsTopic string
	KafkaGroupPrefix  string

	S3Endpoint       string
	S3PublicEndpoint string
	S3AccessKey      string
	S3SecretKey      string
	S3Bucket         string
	S3UseSSL         bool

	PresenceTTL   time.Duration
	PresenceSweep string

	SeedListings []domainlisting.Listing
}

// Load parses configuration from the current environment.
func Load() (Config, error) {
	cfg := Config{
		Env:               getEnv("APP_ENV", "dev"),
		InstanceID:        strings.TrimSpace(os.Getenv("INSTANCE_ID")),
		HTTPAddr:          getEnv("HTTP_ADDR", ":8080"),
		CORSOrigins:       splitAndTrim(getEnv("CORS_ORIGINS", "*")),
		JWTSecret:         os.Getenv("JWT_SECRET"),
		ScyllaHosts:       splitAndTrim(os.Getenv("SCYLLA_HOSTS")),
		ScyllaKeyspace:    strings.TrimSpace(getEnv("SCYLLA_KEYSPACE", "campustrade_chat")),
		ScyllaUsername:    strings.TrimSpace(os.Getenv("SCYLLA_USERNAME")),
		ScyllaPassword:    strings.TrimSpace(os.Getenv("SCYLLA_PASSWORD")),
		MongoURI:          strings.TrimSpace(os.Getenv("MONGO_URI")),
		MongoDB:           getEnv("MONGO_DB", "campustrade"),
		RedisAddr:         strings.TrimSpace(os.Getenv("REDIS_ADDR")),
		RedisPassword:     os.Getenv("REDIS_PASSWORD"),
		KafkaBrokers:      splitAndTrim(os.Getenv("KAFKA_BROKERS")),
		KafkaInsertsTopic: getEnv("KAFKA_INSERTS_TOPIC", "chat.messages.inserted"),
		KafkaGroupPrefix:  getEnv("KAFKA_GROUP_PREFIX", "campustrade-gateway"),
		S3Endpoint:        strings.TrimSpace(os.Getenv("S3_ENDPOINT")),
		S3PublicEndpoint:  getEnv("S3_PUBLIC_ENDPOINT", ""),
		S3AccessKey:       getEnv("S3_ACCESS_KEY", "minioadmin"),
		S3SecretKey:       getEnv("S3_SECRET_KEY", "minioadmin"),
		S3Bucket:          getEnv("S3_BUCKET", "campustrade-avatars"),
		PresenceSweep:     getEnv("PRESENCE_SWEEP", "@every 30s"),
	}

	var err error
	if cfg.InstanceID == "" {
		if cfg.InstanceID, err = os.Hostname(); err != nil {
			return Config{}, fmt.Errorf("INSTANCE_ID unset and hostname unavailable: %w", err)
		}
	}
	if cfg.DevLogin, err = parseBoolEnv("AUTH_DEV_LOGIN", false); err != nil {
		return Config{}, err
	}
	if cfg.SessionTTL, err = parseDurationEnv("SESSION_TTL", 24*time.Hour); err != nil {
		return Config{}, err
	}
	if cfg.ScyllaTimeout, err = parseDurationEnv("SCYLLA_TIMEOUT", 5*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.ScyllaConsistency, err = parseConsistency(getEnv("SCYLLA_CONSISTENCY", "quorum")); err != nil {
		return Config{}, err
	}
	if cfg.ScyllaReplicationFactor, err = parseIntEnv("SCYLLA_REPLICATION_FACTOR", 1); err != nil {
		return Config{}, err
	}
	if cfg.RedisDB, err = parseIntEnv("REDIS_DB", 0); err != nil {
		return Config{}, err
	}
	if cfg.S3UseSSL, err = parseBoolEnv("S3_USE_SSL", false); err != nil {
		return Config{}, err
	}
	if cfg.PresenceTTL, err = parseDurationEnv("PRESENCE_TTL", 90*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.SeedListings, err = parseListings(os.Getenv("SEED_LISTINGS")); err != nil {
		return Config{}, err
	}

	if len(cfg.JWTSecret) < 16 {
		return Config{}, fmt.Errorf("JWT_SECRET must be at least 16 bytes")
	}
	if cfg.SessionTTL <= 0 {
		return Config{}, fmt.Errorf("SESSION_TTL must be positive")
	}
	if cfg.PresenceTTL <= 0 {
		return Config{}, fmt.Errorf("PRESENCE_TTL must be positive")
	}
	if cfg.ScyllaReplicationFactor < 1 {
		cfg.ScyllaReplicationFactor = 1
	}
	if cfg.S3PublicEndpoint == "" {
		cfg.S3PublicEndpoint = cfg.S3Endpoint
	}
	return cfg, nil
}

// ConsumerGroup names this instance's Kafka consumer group. Every instance
// needs every insert, so the group is per instance, and it stays the same
// across restarts so committed offsets are reused.
func (c Config) ConsumerGroup() string {
	return c.KafkaGroupPrefix + "-" + c.InstanceID
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}

func parseDurationEnv(key string, def time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s duration: %w", key, err)
	}
	return d, nil
}

func parseBoolEnv(key string, def bool) (bool, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "t", "true", "yes", "y", "on":
		return true, nil
	case "0", "f", "false", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid %s boolean: %q", key, raw)
	}
}

func parseIntEnv(key string, def int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s integer: %w", key, err)
	}
	return v, nil
}

func parseConsistency(raw string) (gocql.Consistency, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "quorum":
		return gocql.Quorum, nil
	case "one":
		return gocql.One, nil
	case "local_quorum", "localquorum":
		return gocql.LocalQuorum, nil
	case "all":
		return gocql.All, nil
	default:
		return gocql.Quorum, fmt.Errorf("unsupported SCYLLA_CONSISTENCY: %s", raw)
	}
}

// parseListings reads "id:seller[:title]" entries separated by commas.
func parseListings(raw string) ([]domainlisting.Listing, error) {
	var out []domainlisting.Listing
	for _, entry := range splitAndTrim(raw) {
		parts := strings.SplitN(entry, ":", 3)
		if len(parts) < 2 || strings.TrimSpace(parts[0]) == "" || strings.TrimSpace(parts[1]) == "" {
			return nil, fmt.Errorf("invalid SEED_LISTINGS entry %q: want id:seller[:title]", entry)
		}
		l := domainlisting.Listing{ID: strings.TrimSpace(parts[0]), SellerID: strings.TrimSpace(parts[1])}
		if len(parts) == 3 {
			l.Title = strings.TrimSpace(parts[2])
		}
		out = append(out, l)
	}
	return out, nil
}
