package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	EnvLocal = "local"
	EnvDev   = "dev"
	EnvProd  = "prod"

	DriverJSONFile = "jsonfile"
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"

	ProviderService = "service"
	ProviderGemini  = "gemini"
	ProviderOpenAI  = "openai"
	ProviderNone    = "none"

	defaultPort          = 3000
	defaultAIServicePort = "5050"
)

type Config struct {
	Env string `yaml:"env"`

	Server struct {
		Port        int      `yaml:"port"`
		CORSOrigins []string `yaml:"corsOrigins"`
		// per-client limit on /api/diagnose and /api/chat
		RateLimit struct {
			RPS   float64 `yaml:"rps"`
			Burst int     `yaml:"burst"`
		} `yaml:"rateLimit"`
		ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	} `yaml:"server"`

	Store struct {
		Driver string `yaml:"driver"`
		Path   string `yaml:"path"`
	} `yaml:"store"`

	Database struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		Name     string `yaml:"name"`
		SSLMode  string `yaml:"sslMode"`

		MaxOpenConns    int           `yaml:"maxOpenConns"`
		MaxIdleConns    int           `yaml:"maxIdleConns"`
		ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
	} `yaml:"database"`

	Minio struct {
		Endpoint   string `yaml:"endpoint"`
		AccessKey  string `yaml:"accessKey"`
		SecretKey  string `yaml:"secretKey"`
		BucketName string `yaml:"bucketName"`
		Region     string `yaml:"region"`
		UseSSL     bool   `yaml:"useSSL"`
		Presign    bool   `yaml:"presign"`
	} `yaml:"minio"`

	AI struct {
		Provider     string        `yaml:"provider"`
		ServiceURL   string        `yaml:"serviceURL"`
		Timeout      time.Duration `yaml:"timeout"`
		GeminiAPIKey string        `yaml:"geminiAPIKey"`
		GeminiModel  string        `yaml:"geminiModel"`
		OpenAIAPIKey string        `yaml:"openaiAPIKey"`
		OpenAIModel  string        `yaml:"openaiModel"`
	} `yaml:"ai"`

	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	var c Config
	c.Env = EnvLocal
	c.Server.Port = defaultPort
	c.Server.CORSOrigins = []string{"*"}
	c.Server.RateLimit.RPS = 1
	c.Server.RateLimit.Burst = 5
	c.Server.ShutdownTimeout = 10 * time.Second
	c.Store.Driver = DriverJSONFile
	c.Store.Path = "db.json"
	c.Database.Host = "localhost"
	c.Database.SSLMode = "disable"
	c.Minio.BucketName = "leaflens-reports"
	c.AI.Provider = ProviderService
	c.AI.ServiceURL = "http://localhost:" + defaultAIServicePort
	c.AI.Timeout = 180 * time.Second
	c.Log.Level = "info"
	return &c
}

// Load baca .env (kalau ada), file config.yaml (kalau ada), lalu env override.
func Load(path string) (*Config, error) {
	return load(path, ".env")
}

func load(path, envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, err
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
		}
	}

	v := viper.New()
	v.AutomaticEnv()
	if err := cfg.applyEnvOverrides(v); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides(v *viper.Viper) error {
	if s := v.GetString("port"); s != "" {
		port := v.GetInt("port")
		if port <= 0 {
			return fmt.Errorf("invalid PORT %q", s)
		}
		c.Server.Port = port
	}
	if s := v.GetString("cors_origins"); s != "" {
		c.Server.CORSOrigins = splitList(s)
	}
	setString(v, "app_env", &c.Env)
	setString(v, "log_level", &c.Log.Level)

	setString(v, "store_driver", &c.Store.Driver)
	setString(v, "db_path", &c.Store.Path)
	setString(v, "db_host", &c.Database.Host)
	if s := v.GetString("db_port"); s != "" {
		c.Database.Port = v.GetInt("db_port")
	}
	setString(v, "db_user", &c.Database.User)
	setString(v, "db_password", &c.Database.Password)
	setString(v, "db_name", &c.Database.Name)

	setString(v, "minio_endpoint", &c.Minio.Endpoint)
	setString(v, "minio_access_key", &c.Minio.AccessKey)
	setString(v, "minio_secret_key", &c.Minio.SecretKey)
	setString(v, "minio_bucket", &c.Minio.BucketName)
	setString(v, "minio_region", &c.Minio.Region)
	if s := v.GetString("minio_use_ssl"); s != "" {
		c.Minio.UseSSL = v.GetBool("minio_use_ssl")
	}

	setString(v, "ai_provider", &c.AI.Provider)
	if s := v.GetString("ai_service_url"); s != "" {
		c.AI.ServiceURL = s
	} else if p := v.GetString("ai_service_port"); p != "" {
		c.AI.ServiceURL = "http://localhost:" + p
	}
	setString(v, "gemini_api_key", &c.AI.GeminiAPIKey)
	setString(v, "gemini_model", &c.AI.GeminiModel)
	setString(v, "openai_api_key", &c.AI.OpenAIAPIKey)
	setString(v, "openai_model", &c.AI.OpenAIModel)

	c.Store.Driver = strings.ToLower(strings.TrimSpace(c.Store.Driver))
	c.AI.Provider = strings.ToLower(strings.TrimSpace(c.AI.Provider))
	return nil
}

// Validate rejects unknown drivers and providers and incomplete settings.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port %d out of range", c.Server.Port)
	}
	switch c.Store.Driver {
	case DriverJSONFile:
		if c.Store.Path == "" {
			return errors.New("store path is required for jsonfile driver")
		}
	case DriverMySQL, DriverPostgres:
		if c.Database.Name == "" {
			return fmt.Errorf("database name is required for %s driver", c.Store.Driver)
		}
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	switch c.AI.Provider {
	case ProviderService:
		if _, err := url.ParseRequestURI(c.AI.ServiceURL); err != nil {
			return fmt.Errorf("invalid ai service url %q: %w", c.AI.ServiceURL, err)
		}
	case ProviderGemini:
		if c.AI.GeminiAPIKey == "" {
			return errors.New("GEMINI_API_KEY is required for gemini provider")
		}
	case ProviderOpenAI:
		if c.AI.OpenAIAPIKey == "" {
			return errors.New("OPENAI_API_KEY is required for openai provider")
		}
	case ProviderNone:
	default:
		return fmt.Errorf("unknown ai provider %q", c.AI.Provider)
	}
	return nil
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}

// MinioEnabled is true when an endpoint is configured.
func (c *Config) MinioEnabled() bool {
	return c.Minio.Endpoint != ""
}

// Helper untuk build DSN MySQL
func (c *Config) MySQLDSN() string {
	port := c.Database.Port
	if port == 0 {
		port = 3306
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4&loc=UTC",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		port,
		c.Database.Name,
	)
}

// Helper untuk build DSN Postgres
func (c *Config) PostgresDSN() string {
	port := c.Database.Port
	if port == 0 {
		port = 5432
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.Database.User, c.Database.Password),
		Host:     fmt.Sprintf("%s:%d", c.Database.Host, port),
		Path:     "/" + c.Database.Name,
		RawQuery: url.Values{"sslmode": {c.Database.SSLMode}}.Encode(),
	}
	return u.String()
}

func setString(v *viper.Viper, key string, dst *string) {
	if s := v.GetString(key); s != "" {
		*dst = s
	}
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
