package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"playforge/utils"
)

// Storage drivers selectable with STORE_DRIVER.
const (
	DriverMongo    = "mongo"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type Config struct {
	Port     string
	Env      string
	LogLevel string

	StoreDriver  string
	MongoURI     string
	DatabaseName string
	DatabaseURL  string

	JWTSecret     string
	JWTIssuer     string
	JWTExpiration time.Duration

	B2ApplicationKeyID string
	B2ApplicationKey   string
	B2BucketName       string
	B2URLExpiration    time.Duration

	AllowedOrigins []string

	PollDefaultDuration  time.Duration
	MirrorRefreshTimeout time.Duration
	BoardCacheSize       int
	RenderCacheSize      int

	OrphanSweepInterval time.Duration
	OrphanGracePeriod   time.Duration

	FrameCount    int
	FrameBytes    int
	FrameMaxBytes int64
}

// Load reads the configuration from the environment. Parse failures and
// missing required values are reported together.
func Load() (*Config, error) {
	p := &parser{}

	cfg := &Config{
		Port:     getEnv("PORT", "8080"),
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		StoreDriver:  strings.ToLower(getEnv("STORE_DRIVER", DriverMongo)),
		MongoURI:     getMongoURI(),
		DatabaseName: getEnv("DATABASE_NAME", "playforge"),
		DatabaseURL:  getEnv("DATABASE_URL", ""),

		JWTSecret:     getEnv("JWT_SECRET", ""),
		JWTIssuer:     getEnv("JWT_ISSUER", "playforge"),
		JWTExpiration: p.duration("JWT_EXPIRATION", "24h"),

		B2ApplicationKeyID: firstEnv("B2_APPLICATION_KEY_ID", "B2_KEY_ID", "BACKBLAZE_KEY_ID"),
		B2ApplicationKey:   firstEnv("B2_APPLICATION_KEY", "B2_APP_KEY", "BACKBLAZE_APP_KEY"),
		B2BucketName:       firstEnv("B2_BUCKET_NAME", "B2_BUCKET", "BACKBLAZE_BUCKET"),
		B2URLExpiration:    p.duration("B2_URL_EXPIRATION", "24h"),

		AllowedOrigins: parseStringSlice(getEnv("ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:5173")),

		PollDefaultDuration:  p.duration("POLL_DEFAULT_DURATION", "168h"),
		MirrorRefreshTimeout: p.duration("MIRROR_REFRESH_TIMEOUT", "10s"),
		BoardCacheSize:       p.int("BOARD_CACHE_SIZE", "64"),
		RenderCacheSize:      p.int("RENDER_CACHE_SIZE", "256"),

		OrphanSweepInterval: p.duration("ORPHAN_SWEEP_INTERVAL", "1h"),
		OrphanGracePeriod:   p.duration("ORPHAN_GRACE_PERIOD", "10m"),

		FrameCount:    p.int("FRAME_COUNT", "6"),
		FrameBytes:    p.int("FRAME_BYTES", "65536"),
		FrameMaxBytes: p.int64("FRAME_MAX_BYTES", "8388608"),
	}

	if err := errors.Join(p.errs...); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// B2Enabled reports whether frame uploads can reach Backblaze.
func (c *Config) B2Enabled() bool {
	return c.B2ApplicationKeyID != "" && c.B2ApplicationKey != "" && c.B2BucketName != ""
}

func getMongoURI() string {
	if uri := firstEnv("MONGO_URI", "MONGODB_URI"); uri != "" {
		return uri
	}
	return "mongodb://localhost:27017"
}

// Log prints the effective configuration with secrets masked.
func (c *Config) Log() {
	log := utils.Component("config")
	log.Info("Configuration loaded:")
	log.Infof("  Port: %s", c.Port)
	log.Infof("  Environment: %s", c.Env)
	log.Infof("  Store driver: %s", c.StoreDriver)
	switch c.StoreDriver {
	case DriverMongo:
		log.Infof("  Database: %s", c.DatabaseName)
		log.Infof("  MongoDB URI: %s", maskConnectionString(c.MongoURI))
	case DriverPostgres:
		log.Infof("  Database URL: %s", maskConnectionString(c.DatabaseURL))
	}
	log.Infof("  JWT Secret: %s", maskSecret(c.JWTSecret))
	log.Infof("  JWT Issuer: %s", c.JWTIssuer)
	log.Infof("  B2 Key ID: %s", maskSecret(c.B2ApplicationKeyID))
	log.Infof("  B2 Bucket: %s", c.B2BucketName)
	log.Infof("  Allowed Origins: %v", c.AllowedOrigins)
	log.Infof("  Poll default duration: %v", c.PollDefaultDuration)
	log.Infof("  Mirror refresh timeout: %v", c.MirrorRefreshTimeout)
	log.Infof("  Orphan sweep: every %v, grace %v", c.OrphanSweepInterval, c.OrphanGracePeriod)
}

func maskSecret(secret string) string {
	if secret == "" {
		return "[NOT SET]"
	}
	if len(secret) <= 8 {
		return "[HIDDEN]"
	}
	return secret[:4] + "***" + secret[len(secret)-4:]
}

func maskConnectionString(uri string) string {
	if uri == "" {
		return "[NOT SET]"
	}
	if strings.Contains(uri, "@") {
		parts := strings.Split(uri, "@")
		if len(parts) >= 2 {
			return "[CREDENTIALS_HIDDEN]@" + parts[len(parts)-1]
		}
	}
	return uri
}

func (c *Config) validate() error {
	var missingVars []string

	required := map[string]string{
		"JWT_SECRET": c.JWTSecret,
	}
	switch c.StoreDriver {
	case DriverMongo:
		required["MONGO_URI"] = c.MongoURI
		required["DATABASE_NAME"] = c.DatabaseName
	case DriverPostgres:
		required["DATABASE_URL"] = c.DatabaseURL
	case DriverMemory:
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q (want %s, %s or %s)", c.StoreDriver, DriverMongo, DriverPostgres, DriverMemory)
	}

	for key, value := range required {
		if value == "" {
			missingVars = append(missingVars, key)
		}
	}

	if len(missingVars) > 0 {
		return fmt.Errorf("missing required environment variables: %v", missingVars)
	}

	if c.PollDefaultDuration <= 0 {
		return errors.New("POLL_DEFAULT_DURATION must be positive")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func firstEnv(keys ...string) string {
	for _, key := range keys {
		if value := os.Getenv(key); value != "" {
			return value
		}
	}
	return ""
}

// parser collects conversion errors so Load can report all of them at once.
type parser struct {
	errs []error
}

func (p *parser) int64(key, defaultValue string) int64 {
	s := getEnv(key, defaultValue)
	i, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("failed to parse %s=%q as integer", key, s))
	}
	return i
}

func (p *parser) int(key, defaultValue string) int {
	return int(p.int64(key, defaultValue))
}

func (p *parser) duration(key, defaultValue string) time.Duration {
	s := getEnv(key, defaultValue)
	d, err := time.ParseDuration(s)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("failed to parse %s=%q as duration", key, s))
	}
	return d
}

func CreateContext(timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), timeout)
}

func parseStringSlice(s string) []string {
	if s == "" {
		return []string{}
	}

	parts := strings.Split(s, ",")
	var result []string
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
