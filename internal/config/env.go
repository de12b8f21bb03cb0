package config

import (
    "os"
    "strconv"
    "strings"
    "time"

    "github.com/joho/godotenv"
)

// LoggingConfig holds logging-related configuration.
type LoggingConfig struct {
    Level      string
    Pretty     bool
    File       string
    MaxSizeMB  int
    MaxBackups int
    MaxAgeDays int
    Compress   bool
}

// AxiomConfig holds Axiom logging configuration.
type AxiomConfig struct {
    Send          bool
    APIKey        string
    OrgID         string
    Dataset       string
    FlushInterval time.Duration
}

// ServerConfig holds the HTTP host settings.
type ServerConfig struct {
    Port          string
    MaxUploadMB   int
    JobTimeout    time.Duration
    StatusTTL     time.Duration
    SessionIdle   time.Duration
    ThumbScale    float64
    ThumbMaxWidth int
}

// DispatchConfig controls how finished outputs are delivered.
type DispatchConfig struct {
    Target       string // "local"|"s3"
    Delay        time.Duration
    Retries      int
    ResultDir    string
    ResultMaxAge time.Duration
    S3Bucket     string
    S3Prefix     string
    Password     string
}

// SourcesConfig configures cloud import.
type SourcesConfig struct {
    DriveBaseURL string
}

// Config is the top-level configuration.
type Config struct {
    Environment string
    RedisURL    string
    Logging     LoggingConfig
    Axiom       AxiomConfig
    Server      ServerConfig
    Dispatch    DispatchConfig
    Sources     SourcesConfig
}

// LoadDotEnv reads .env files when present. Variables already set win.
func LoadDotEnv(files ...string) {
    if len(files) == 0 { files = []string{".env"} }
    for _, f := range files {
        if _, err := os.Stat(f); err == nil { _ = godotenv.Load(f) }
    }
}

// FromEnv loads configuration from environment with sensible defaults.
func FromEnv() Config {
    cfg := Config{
        Environment: getEnv("ENVIRONMENT", "production"),
        RedisURL:    getEnv("REDIS_URL", ""),
    }

    // Logging defaults
    cfg.Logging = LoggingConfig{
        Level:      getEnv("LOG_LEVEL", "info"),
        Pretty:     parseBool(getEnv("LOG_PRETTY", devDefaultPretty())),
        File:       getEnv("LOG_FILE", "logs/pdfassembly.log"),
        MaxSizeMB:  parseInt(getEnv("LOG_MAX_SIZE_MB", "100"), 100),
        MaxBackups: parseInt(getEnv("LOG_MAX_BACKUPS", "10"), 10),
        MaxAgeDays: parseInt(getEnv("LOG_MAX_AGE_DAYS", "30"), 30),
        Compress:   parseBool(getEnv("LOG_COMPRESS", "true")),
    }

    // Axiom defaults
    baseDataset := getEnv("AXIOM_DATASET", "dev")
    cfg.Axiom = AxiomConfig{
        Send:          parseBool(getEnv("SEND_LOGS_TO_AXIOM", "0")),
        APIKey:        getEnv("AXIOM_API_KEY", ""),
        OrgID:         getEnv("AXIOM_ORG_ID", ""),
        Dataset:       baseDataset + "_pdfassembly",
        FlushInterval: parseDuration(getEnv("AXIOM_FLUSH_INTERVAL", "10s"), 10*time.Second),
    }

    cfg.Server = ServerConfig{
        Port:          getEnv("PORT", "8080"),
        MaxUploadMB:   parseInt(getEnv("MAX_UPLOAD_MB", "100"), 100),
        JobTimeout:    parseDuration(getEnv("JOB_TIMEOUT", "5m"), 5*time.Minute),
        StatusTTL:     parseDuration(getEnv("STATUS_TTL", "24h"), 24*time.Hour),
        SessionIdle:   parseDuration(getEnv("SESSION_IDLE_TIMEOUT", "2h"), 2*time.Hour),
        ThumbScale:    parseFloat(getEnv("THUMB_SCALE", "0.2"), 0.2),
        ThumbMaxWidth: parseInt(getEnv("THUMB_MAX_WIDTH", "0"), 0),
    }

    cfg.Dispatch = DispatchConfig{
        Target:       strings.ToLower(getEnv("DELIVERY_TARGET", "local")),
        Delay:        parseDuration(getEnv("DISPATCH_DELAY", "100ms"), 100*time.Millisecond),
        Retries:      parseInt(getEnv("DISPATCH_RETRIES", "2"), 2),
        ResultDir:    getEnv("RESULT_DIR", "uploads/results"),
        ResultMaxAge: parseDuration(getEnv("RESULT_MAX_AGE", "24h"), 24*time.Hour),
        S3Bucket:     getEnv("AWS_S3_BUCKET", ""),
        S3Prefix:     getEnv("S3_PREFIX", "assembly"),
        Password:     getEnv("DELIVERY_PASSWORD", ""),
    }
    if cfg.Dispatch.Target != "s3" { cfg.Dispatch.Target = "local" }

    cfg.Sources = SourcesConfig{
        DriveBaseURL: getEnv("DRIVE_BASE_URL", "https://www.googleapis.com/drive/v3"),
    }

    return cfg
}

// Helpers
func getEnv(key, def string) string {
    if v := os.Getenv(key); v != "" {
        return v
    }
    return def
}

func parseInt(s string, def int) int {
    if s == "" { return def }
    if n, err := strconv.Atoi(s); err == nil { return n }
    return def
}

func parseFloat(s string, def float64) float64 {
    if s == "" { return def }
    if f, err := strconv.ParseFloat(s, 64); err == nil { return f }
    return def
}

func parseBool(s string) bool {
    v := strings.ToLower(strings.TrimSpace(s))
    return v == "1" || v == "true" || v == "yes" || v == "on"
}

func parseDuration(s string, def time.Duration) time.Duration {
    if s == "" { return def }
    if d, err := time.ParseDuration(s); err == nil { return d }
    return def
}

func devDefaultPretty() string {
    env := strings.ToLower(os.Getenv("ENVIRONMENT"))
    if env == "dev" || env == "development" || env == "local" { return "true" }
    return "false"
}
