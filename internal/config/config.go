// internal/config/config.go
package conf

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Główny config aplikacji
type Config struct {
	LogFile  string         `json:"log_file"`
	LogLevel string         `json:"log_level"`
	Database DatabaseConfig `json:"database"`
	HTTP     HTTPConfig     `json:"http"`
	Auth     AuthConfig     `json:"auth"`
	Import   ImportConfig   `json:"import"`
	Blob     BlobConfig     `json:"blob"`
	Jobs     JobsConfig     `json:"jobs"`
	Drafts   DraftsConfig   `json:"drafts"`
	AWS      AWSConfig      `json:"aws"`
}

type DatabaseConfig struct {
	Driver       string `json:"driver"` // postgres | mysql | sqlite | sqlite3
	DSN          string `json:"dsn"`
	MaxOpenConns int    `json:"max_open_conns"`
	MaxIdleConns int    `json:"max_idle_conns"`
}

type HTTPConfig struct {
	Port           string   `json:"port"`
	AllowedOrigins []string `json:"allowed_origins"`
	MaxUploadMB    int64    `json:"max_upload_mb"`
}

type AuthConfig struct {
	JWTSecret     string `json:"jwt_secret"`
	WebhookSecret string `json:"webhook_secret"`
}

type ImportConfig struct {
	InsertChunkSize   int `json:"insert_chunk_size"`
	LookupPageSize    int `json:"lookup_page_size"`
	MaxReportedErrors int `json:"max_reported_errors"`
}

type BlobConfig struct {
	Backend string `json:"backend"` // local | s3
	Dir     string `json:"dir"`
	Bucket  string `json:"bucket"`
	Prefix  string `json:"prefix"`
}

type JobsConfig struct {
	Backend         string `json:"backend"` // inproc | sqs | http
	QueueURL        string `json:"queue_url"`
	FunctionsURL    string `json:"functions_url"`
	PollWaitSeconds int32  `json:"poll_wait_seconds"`
}

type DraftsConfig struct {
	Backend   string `json:"backend"` // memory | redis | db
	RedisAddr string `json:"redis_addr"`
	TTLHours  int    `json:"ttl_hours"`
}

type AWSConfig struct {
	Region   string `json:"region"`
	Endpoint string `json:"endpoint"` // np. LocalStack
}

// Default zwraca konfigurację startową (lokalny tryb, sqlite + katalog na pliki).
func Default() *Config {
	return &Config{
		LogFile:  "",
		LogLevel: "info",
		Database: DatabaseConfig{
			Driver:       "sqlite",
			DSN:          "pricebridge.db",
			MaxOpenConns: 10,
			MaxIdleConns: 5,
		},
		HTTP: HTTPConfig{
			Port:        "8080",
			MaxUploadMB: 20,
		},
		Import: ImportConfig{
			InsertChunkSize:   500,
			LookupPageSize:    1000,
			MaxReportedErrors: 10,
		},
		Blob: BlobConfig{
			Backend: "local",
			Dir:     "./data/imports",
			Prefix:  "imports",
		},
		Jobs: JobsConfig{
			Backend:         "inproc",
			PollWaitSeconds: 20,
		},
		Drafts: DraftsConfig{
			Backend:  "memory",
			TTLHours: 24 * 7,
		},
	}
}

func LoadOrCreate(path string) (*Config, bool, error) {
	// upewnij się, że katalog istnieje
	_ = os.MkdirAll(filepath.Dir(path), 0o755)

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := Default()
			if err := Save(path, cfg); err != nil {
				return nil, false, fmt.Errorf("błąd zapisu domyślnego configa: %w", err)
			}
			return cfg, true, nil
		}
		return nil, false, fmt.Errorf("błąd otwierania configa: %w", err)
	}
	defer f.Close()

	// brakujące sekcje dostają wartości domyślne
	cfg := Default()
	if err := json.NewDecoder(f).Decode(cfg); err != nil {
		return nil, false, fmt.Errorf("błąd parsowania configa: %w", err)
	}
	cfg.fillDefaults()
	return cfg, false, nil
}

func Save(path string, cfg *Config) error {
	_ = os.MkdirAll(filepath.Dir(path), 0o755)
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(cfg)
}

// ApplyEnv nadpisuje config zmiennymi środowiskowymi (i plikiem .env, jeśli jest).
func (c *Config) ApplyEnv(envFiles ...string) {
	_ = godotenv.Load(envFiles...)

	setStr := func(dst *string, key string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}

	setStr(&c.LogFile, "LOG_FILE")
	setStr(&c.LogLevel, "LOG_LEVEL")
	setStr(&c.Database.Driver, "DATABASE_DRIVER")
	setStr(&c.Database.DSN, "DATABASE_URL")
	setStr(&c.HTTP.Port, "PORT")
	setStr(&c.Auth.JWTSecret, "JWT_SECRET")
	setStr(&c.Auth.WebhookSecret, "WEBHOOK_SECRET")
	setStr(&c.Blob.Backend, "BLOB_BACKEND")
	setStr(&c.Blob.Dir, "BLOB_DIR")
	setStr(&c.Blob.Bucket, "S3_BUCKET")
	setStr(&c.Jobs.Backend, "JOB_BACKEND")
	setStr(&c.Jobs.QueueURL, "SQS_QUEUE_URL")
	setStr(&c.Jobs.FunctionsURL, "FUNCTIONS_URL")
	setStr(&c.Drafts.Backend, "DRAFTS_BACKEND")
	setStr(&c.Drafts.RedisAddr, "REDIS_ADDR")
	setStr(&c.AWS.Region, "AWS_REGION")
	setStr(&c.AWS.Endpoint, "AWS_ENDPOINT")

	if v := strings.TrimSpace(os.Getenv("ALLOWED_ORIGINS")); v != "" {
		var origins []string
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		c.HTTP.AllowedOrigins = origins
	}
	if v := strings.TrimSpace(os.Getenv("MAX_UPLOAD_MB")); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			c.HTTP.MaxUploadMB = n
		}
	}
	c.fillDefaults()
}

func (c *Config) fillDefaults() {
	d := Default()
	if c.Import.InsertChunkSize <= 0 {
		c.Import.InsertChunkSize = d.Import.InsertChunkSize
	}
	if c.Import.LookupPageSize <= 0 {
		c.Import.LookupPageSize = d.Import.LookupPageSize
	}
	if c.Import.MaxReportedErrors <= 0 {
		c.Import.MaxReportedErrors = d.Import.MaxReportedErrors
	}
	if c.HTTP.Port == "" {
		c.HTTP.Port = d.HTTP.Port
	}
	if c.HTTP.MaxUploadMB <= 0 {
		c.HTTP.MaxUploadMB = d.HTTP.MaxUploadMB
	}
	if c.Jobs.PollWaitSeconds <= 0 || c.Jobs.PollWaitSeconds > 20 {
		c.Jobs.PollWaitSeconds = d.Jobs.PollWaitSeconds
	}
	if c.Drafts.TTLHours <= 0 {
		c.Drafts.TTLHours = d.Drafts.TTLHours
	}
}
