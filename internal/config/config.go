package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/withObsrvr/obsrvr-auction-snapshotter/internal/region"
)

type Config struct {
	Log         LogConfig
	Schedule    ScheduleConfig
	Fetch       FetchConfig
	Marketplace MarketplaceConfig
	Regions     []region.Region
	Storage     StorageConfig
	Catalog     CatalogConfig
	Events      EventsConfig
	Checkpoint  CheckpointConfig
	Metrics     MetricsConfig
}

type LogConfig struct {
	Format string
	Level  string
}

type ScheduleConfig struct {
	RunMinute    int
	PollInterval time.Duration
	Location     *time.Location
}

type FetchConfig struct {
	Timeout time.Duration
	Workers int
}

type MarketplaceConfig struct {
	ClientID     string
	ClientSecret string
	TokenURL     string
}

type StorageConfig struct {
	Backend string // "mongo" | "local" | "gcs" | "s3" | "mem"

	MongoURI      string
	MongoDatabase string

	LocalDir   string
	GCSBucket  string
	S3Bucket   string
	S3Endpoint string
	S3Region   string
	Prefix     string
	Format     string // "parquet" | "jsonl.zst"
}

type CatalogConfig struct {
	PostgresDSN string
	Namespace   string
}

type EventsConfig struct {
	Mode          string // "none" | "file" | "nats"
	Dir           string
	NATSURL       string
	SubjectPrefix string
	Stream        string
}

type CheckpointConfig struct {
	Enabled bool
	Dir     string
}

type MetricsConfig struct {
	Enabled bool
	Address string
}

// MustLoad loads configuration or exits the process.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		log.Fatalf("[config] %v", err)
	}
	return cfg
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first when present; real environment variables win.
func Load() (Config, error) {
	log.Println("[config] loading")

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	var errs []error

	runMinute, err := parseInt("SCHEDULE_RUN_MINUTE", 3)
	errs = append(errs, err)
	pollInterval, err := parseDuration("SCHEDULE_POLL_INTERVAL", 20*time.Second)
	errs = append(errs, err)
	fetchTimeout, err := parseDuration("FETCH_TIMEOUT", 20*time.Second)
	errs = append(errs, err)
	workers, err := parseInt("FETCH_WORKERS", 1)
	errs = append(errs, err)
	checkpointEnabled, err := parseBool("CHECKPOINT_ENABLED", true)
	errs = append(errs, err)
	metricsEnabled, err := parseBool("METRICS_ENABLED", true)
	errs = append(errs, err)

	loc := time.Local
	if tz := os.Getenv("SCHEDULE_TIMEZONE"); tz != "" {
		loc, err = time.LoadLocation(tz)
		if err != nil {
			errs = append(errs, fmt.Errorf("SCHEDULE_TIMEZONE: %w", err))
		}
	}

	regions := region.Defaults()
	if path := os.Getenv("REGIONS_FILE"); path != "" {
		reg, err := region.LoadFile(path)
		if err != nil {
			errs = append(errs, err)
		} else {
			regions = reg.All()
		}
	}

	if err := errors.Join(errs...); err != nil {
		return Config{}, err
	}

	cfg := Config{
		Log: LogConfig{
			Format: getenvDefault("LOG_FORMAT", "text"),
			Level:  getenvDefault("LOG_LEVEL", "info"),
		},
		Schedule: ScheduleConfig{
			RunMinute:    runMinute,
			PollInterval: pollInterval,
			Location:     loc,
		},
		Fetch: FetchConfig{
			Timeout: fetchTimeout,
			Workers: workers,
		},
		Marketplace: MarketplaceConfig{
			ClientID:     os.Getenv("MARKETPLACE_CLIENT_ID"),
			ClientSecret: os.Getenv("MARKETPLACE_CLIENT_SECRET"),
			TokenURL:     getenvDefault("MARKETPLACE_TOKEN_URL", "https://oauth.battle.net/token"),
		},
		Regions: regions,
		Storage: StorageConfig{
			Backend:       strings.ToLower(getenvDefault("STORAGE_BACKEND", "mongo")),
			MongoURI:      getenvDefault("MONGO_URI", "mongodb://localhost:27017"),
			MongoDatabase: getenvDefault("MONGO_DATABASE", "Blizzard"),
			LocalDir:      getenvDefault("LOCAL_DIR", "./data"),
			GCSBucket:     os.Getenv("GCS_BUCKET"),
			S3Bucket:      os.Getenv("S3_BUCKET"),
			S3Endpoint:    os.Getenv("S3_ENDPOINT"),
			S3Region:      os.Getenv("S3_REGION"),
			Prefix:        getenvDefault("STORAGE_PREFIX", "snapshots/"),
			Format:        getenvDefault("STORAGE_FORMAT", "parquet"),
		},
		Catalog: CatalogConfig{
			PostgresDSN: os.Getenv("CATALOG_DSN"),
			Namespace:   getenvDefault("CATALOG_NAMESPACE", "auctions"),
		},
		Events: EventsConfig{
			Mode:          strings.ToLower(getenvDefault("EVENTS_MODE", "none")),
			Dir:           getenvDefault("EVENTS_DIR", "./events"),
			NATSURL:       getenvDefault("NATS_URL", "nats://127.0.0.1:4222"),
			SubjectPrefix: getenvDefault("NATS_SUBJECT_PREFIX", "auctions.snapshots"),
			Stream:        getenvDefault("NATS_STREAM", "AUCTION_SNAPSHOTS"),
		},
		Checkpoint: CheckpointConfig{
			Enabled: checkpointEnabled,
			Dir:     getenvDefault("CHECKPOINT_DIR", "./state"),
		},
		Metrics: MetricsConfig{
			Enabled: metricsEnabled,
			Address: getenvDefault("METRICS_ADDRESS", ":9090"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks value ranges that the env parsers cannot.
func (c Config) Validate() error {
	if c.Schedule.RunMinute < 0 || c.Schedule.RunMinute > 59 {
		return fmt.Errorf("SCHEDULE_RUN_MINUTE must be 0-59, got %d", c.Schedule.RunMinute)
	}
	if c.Schedule.PollInterval <= 0 {
		return fmt.Errorf("SCHEDULE_POLL_INTERVAL must be positive")
	}
	if c.Fetch.Timeout <= 0 {
		return fmt.Errorf("FETCH_TIMEOUT must be positive")
	}
	if c.Fetch.Workers < 1 {
		return fmt.Errorf("FETCH_WORKERS must be at least 1, got %d", c.Fetch.Workers)
	}
	switch c.Storage.Backend {
	case "mongo", "local", "gcs", "s3", "mem":
	default:
		return fmt.Errorf("unknown STORAGE_BACKEND %q", c.Storage.Backend)
	}
	switch c.Events.Mode {
	case "none", "file", "nats":
	default:
		return fmt.Errorf("unknown EVENTS_MODE %q", c.Events.Mode)
	}
	return nil
}

func getenvDefault(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func parseInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return def, fmt.Errorf("%s: %w", key, err)
	}
	return parsed, nil
}

func parseDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	parsed, err := time.ParseDuration(v)
	if err != nil {
		return def, fmt.Errorf("%s: %w", key, err)
	}
	return parsed, nil
}

func parseBool(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return def, fmt.Errorf("%s: %w", key, err)
	}
	return parsed, nil
}
