package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Generator GeneratorConfig `yaml:"generator"`
	Minio     MinioConfig     `yaml:"minio"`
	Sentry    SentryConfig    `yaml:"sentry"`
	Log       LogConfig       `yaml:"log"`
}

type ServerConfig struct {
	Port           int               `yaml:"port"`
	ReadTimeout    time.Duration     `yaml:"read_timeout"`
	WriteTimeout   time.Duration     `yaml:"write_timeout"`
	IdleTimeout    time.Duration     `yaml:"idle_timeout"`
	AllowedOrigins []string          `yaml:"allowed_origins"`
	APIKeys        map[string]string `yaml:"api_keys"` // api key -> user id
	RateLimit      RateLimitConfig   `yaml:"rate_limit"`
	MaxUploadMB    int64             `yaml:"max_upload_mb"`
}

type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

type DatabaseConfig struct {
	Driver   string `yaml:"driver"` // sqlite | mysql | postgres
	Path     string `yaml:"path"`   // sqlite only
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"sslmode"`
}

type PipelineConfig struct {
	OCREndpoint       string          `yaml:"ocr_endpoint"`
	OCRAPIKey         string          `yaml:"ocr_api_key"`
	OCRTimeout        time.Duration   `yaml:"ocr_timeout"`
	FileStore         FileStoreConfig `yaml:"file_store"`
	RedactionEndpoint string          `yaml:"redaction_endpoint"`
	RedactionTimeout  time.Duration   `yaml:"redaction_timeout"`
	StagingSubdir     string          `yaml:"staging_subdir"`
	OutputSubdir      string          `yaml:"output_subdir"`
	WorkDir           string          `yaml:"work_dir"`
	KeepWorkFiles     bool            `yaml:"keep_work_files"`
	Retry             RetryConfig     `yaml:"retry"`
	MaxPages          int             `yaml:"max_pages"`
}

type FileStoreConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	Username       string        `yaml:"username"`
	Password       string        `yaml:"password"`
	PrivateKeyPath string        `yaml:"private_key_path"`
	KnownHostsPath string        `yaml:"known_hosts_path"`
	Root           string        `yaml:"root"`
	DialTimeout    time.Duration `yaml:"dial_timeout"`
}

type RetryConfig struct {
	MaxAttempts     int           `yaml:"max_attempts"`
	InitialInterval time.Duration `yaml:"initial_interval"`
	MaxInterval     time.Duration `yaml:"max_interval"`
}

type GeneratorConfig struct {
	Provider        string        `yaml:"provider"` // openai | vertex
	APIKey          string        `yaml:"api_key"`
	BaseURL         string        `yaml:"base_url"`
	Model           string        `yaml:"model"`
	Timeout         time.Duration `yaml:"timeout"`
	ProjectID       string        `yaml:"project_id"`
	Region          string        `yaml:"region"`
	AllowedChapters []string      `yaml:"allowed_chapters"`
}

type MinioConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Endpoint   string `yaml:"endpoint"`
	AccessKey  string `yaml:"accessKey"`
	SecretKey  string `yaml:"secretKey"`
	BucketName string `yaml:"bucketName"`
	Region     string `yaml:"region"`
	UseSSL     bool   `yaml:"useSSL"`
}

type SentryConfig struct {
	DSN         string `yaml:"dsn"`
	Environment string `yaml:"environment"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json | console
}

// Default returns a config with every optional value filled in.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: time.Hour,
			IdleTimeout:  60 * time.Second,
			RateLimit:    RateLimitConfig{RequestsPerSecond: 2, Burst: 5},
			MaxUploadMB:  25,
		},
		Database: DatabaseConfig{
			Driver:  "sqlite",
			Path:    "medcoder.db",
			SSLMode: "disable",
		},
		Pipeline: PipelineConfig{
			OCRTimeout:       1000 * time.Second,
			RedactionTimeout: 2000 * time.Second,
			FileStore: FileStoreConfig{
				Port:        22,
				DialTimeout: 30 * time.Second,
			},
			StagingSubdir: "hipaa_input",
			OutputSubdir:  "hipaa_output",
			Retry: RetryConfig{
				MaxAttempts:     3,
				InitialInterval: 2 * time.Second,
				MaxInterval:     30 * time.Second,
			},
			MaxPages: 200,
		},
		Generator: GeneratorConfig{
			Provider:        "openai",
			Model:           "gpt-4o-mini",
			Timeout:         5 * time.Minute,
			Region:          "us-central1",
			AllowedChapters: []string{"F", "G", "R"},
		},
		Log: LogConfig{Level: "info", Format: "json"},
	}
}

// Load baca file config.yaml di atas Default, lalu override dari env.
// A missing file is fine when the environment carries everything.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

const envPrefix = "MEDCODER_"

func (c *Config) applyEnv() error {
	str := func(name string, dst *string) {
		if v, ok := os.LookupEnv(envPrefix + name); ok {
			*dst = v
		}
	}
	var errs []error
	num := func(name string, dst *int) {
		if v, ok := os.LookupEnv(envPrefix + name); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, name, err))
				return
			}
			*dst = n
		}
	}
	dur := func(name string, dst *time.Duration) {
		if v, ok := os.LookupEnv(envPrefix + name); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, name, err))
				return
			}
			*dst = d
		}
	}
	flag := func(name string, dst *bool) {
		if v, ok := os.LookupEnv(envPrefix + name); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, name, err))
				return
			}
			*dst = b
		}
	}

	num("PORT", &c.Server.Port)

	str("DB_DRIVER", &c.Database.Driver)
	str("DB_PATH", &c.Database.Path)
	str("DB_HOST", &c.Database.Host)
	num("DB_PORT", &c.Database.Port)
	str("DB_USER", &c.Database.User)
	str("DB_PASSWORD", &c.Database.Password)
	str("DB_NAME", &c.Database.Name)

	p := &c.Pipeline
	str("OCR_ENDPOINT", &p.OCREndpoint)
	str("OCR_API_KEY", &p.OCRAPIKey)
	dur("OCR_TIMEOUT", &p.OCRTimeout)
	str("REDACTION_ENDPOINT", &p.RedactionEndpoint)
	dur("REDACTION_TIMEOUT", &p.RedactionTimeout)
	str("SFTP_HOST", &p.FileStore.Host)
	num("SFTP_PORT", &p.FileStore.Port)
	str("SFTP_USERNAME", &p.FileStore.Username)
	str("SFTP_PASSWORD", &p.FileStore.Password)
	str("SFTP_PRIVATE_KEY_PATH", &p.FileStore.PrivateKeyPath)
	str("SFTP_KNOWN_HOSTS_PATH", &p.FileStore.KnownHostsPath)
	str("SFTP_ROOT", &p.FileStore.Root)
	str("STAGING_SUBDIR", &p.StagingSubdir)
	str("OUTPUT_SUBDIR", &p.OutputSubdir)
	str("WORK_DIR", &p.WorkDir)
	flag("KEEP_WORK_FILES", &p.KeepWorkFiles)
	num("RETRY_MAX_ATTEMPTS", &p.Retry.MaxAttempts)

	str("GENERATOR_PROVIDER", &c.Generator.Provider)
	str("OPENAI_API_KEY", &c.Generator.APIKey)
	str("OPENAI_BASE_URL", &c.Generator.BaseURL)
	str("GENERATOR_MODEL", &c.Generator.Model)
	str("VERTEX_PROJECT_ID", &c.Generator.ProjectID)
	str("VERTEX_REGION", &c.Generator.Region)

	str("MINIO_ACCESS_KEY", &c.Minio.AccessKey)
	str("MINIO_SECRET_KEY", &c.Minio.SecretKey)

	str("SENTRY_DSN", &c.Sentry.DSN)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)

	// MEDCODER_API_KEYS=key1:user1,key2:user2
	if v, ok := os.LookupEnv(envPrefix + "API_KEYS"); ok {
		keys := map[string]string{}
		for _, pair := range strings.Split(v, ",") {
			k, u, found := strings.Cut(strings.TrimSpace(pair), ":")
			if !found || k == "" || u == "" {
				errs = append(errs, fmt.Errorf("%sAPI_KEYS: bad entry %q", envPrefix, pair))
				continue
			}
			keys[k] = u
		}
		c.Server.APIKeys = keys
	}
	return errors.Join(errs...)
}

// Validate checks what the pipeline cannot run without.
func (c *Config) Validate() error {
	var errs []error
	p := c.Pipeline
	if err := checkURL("pipeline.ocr_endpoint", p.OCREndpoint); err != nil {
		errs = append(errs, err)
	}
	if err := checkURL("pipeline.redaction_endpoint", p.RedactionEndpoint); err != nil {
		errs = append(errs, err)
	}
	if p.FileStore.Host == "" {
		errs = append(errs, errors.New("pipeline.file_store.host is required"))
	}
	if p.FileStore.Username == "" {
		errs = append(errs, errors.New("pipeline.file_store.username is required"))
	}
	if p.FileStore.Password == "" && p.FileStore.PrivateKeyPath == "" {
		errs = append(errs, errors.New("pipeline.file_store needs a password or private_key_path"))
	}
	if p.FileStore.Root == "" {
		errs = append(errs, errors.New("pipeline.file_store.root is required"))
	}
	if p.StagingSubdir == "" || p.OutputSubdir == "" {
		errs = append(errs, errors.New("pipeline.staging_subdir and output_subdir are required"))
	}
	if p.Retry.MaxAttempts < 1 {
		errs = append(errs, errors.New("pipeline.retry.max_attempts must be at least 1"))
	}
	switch c.Generator.Provider {
	case "openai":
		if c.Generator.APIKey == "" {
			errs = append(errs, errors.New("generator.api_key is required for openai"))
		}
	case "vertex":
		if c.Generator.ProjectID == "" {
			errs = append(errs, errors.New("generator.project_id is required for vertex"))
		}
	default:
		errs = append(errs, fmt.Errorf("generator.provider %q is not supported", c.Generator.Provider))
	}
	switch c.Database.Driver {
	case "sqlite", "mysql", "postgres":
	default:
		errs = append(errs, fmt.Errorf("database.driver %q is not supported", c.Database.Driver))
	}
	return errors.Join(errs...)
}

func checkURL(field, raw string) error {
	if raw == "" {
		return fmt.Errorf("%s is required", field)
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%s %q is not an absolute url", field, raw)
	}
	return nil
}

// Helper untuk build DSN MySQL
func (c *Config) MySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4&loc=UTC",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
	)
}

// PostgresDSN builds a lib/pq connection string
func (c *Config) PostgresDSN() string {
	sslmode := c.Database.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.Name,
		sslmode,
	)
}
