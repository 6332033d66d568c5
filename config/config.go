package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"
	_ "time/tzdata" // zone names resolve on hosts without zoneinfo

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server     ServerConfig  `yaml:"server"`
	Log        LogConfig     `yaml:"log"`
	Auth       AuthConfig    `yaml:"auth"`
	Sheet      SheetConfig   `yaml:"sheet"`
	Uploads    UploadConfig  `yaml:"uploads"`
	Minio      MinioConfig   `yaml:"minio"`
	Monitor    MonitorConfig `yaml:"monitor"`
	Redis      RedisConfig   `yaml:"redis"`
	Report     ReportConfig  `yaml:"report"`
	StagesFile string        `yaml:"stages_file"`
}

type ServerConfig struct {
	Port      int `yaml:"port"`
	RateLimit int `yaml:"rate_limit"` // requests per minute per client
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type AuthConfig struct {
	JWTSecret        string `yaml:"jwt_secret"`
	TokenExpireHours int    `yaml:"token_expire_hours"`
}

// Row backends
const (
	BackendScript = "script"
	BackendSheets = "sheets"
	BackendMinio  = "minio"
)

type SheetConfig struct {
	Backend         string `yaml:"backend"`          // script or sheets
	Endpoint        string `yaml:"endpoint"`         // script endpoint URL
	SpreadsheetID   string `yaml:"spreadsheet_id"`   // sheets backend
	CredentialsFile string `yaml:"credentials_file"` // sheets backend service account
	TimeoutSeconds  int    `yaml:"timeout_seconds"`
	ValidateHeaders bool   `yaml:"validate_headers"`
	Timezone        string `yaml:"timezone"` // zone of the sheet's dates; empty uses the server's
}

type UploadConfig struct {
	Backend      string `yaml:"backend"` // script or minio
	FolderID     string `yaml:"folder_id"`
	MaxImageSide int    `yaml:"max_image_side"`
	JPEGQuality  int    `yaml:"jpeg_quality"`
}

type MinioConfig struct {
	Endpoint   string `yaml:"endpoint"`
	AccessKey  string `yaml:"access_key"`
	SecretKey  string `yaml:"secret_key"`
	Bucket     string `yaml:"bucket"`
	UseSSL     bool   `yaml:"use_ssl"`
	Region     string `yaml:"region"`
	ExpireDays int    `yaml:"expire_days"` // lifetime of shared export links
}

type MonitorConfig struct {
	APIURL         string `yaml:"api_url"`
	APIToken       string `yaml:"api_token"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"` // empty disables the report cache
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type ReportConfig struct {
	Days            int `yaml:"days"`
	CacheTTLMinutes int `yaml:"cache_ttl_minutes"`
}

var GlobalConfig *Config

// environment overrides for secrets, applied after the YAML file
var envOverrides = map[string]func(c *Config, v string){
	"SOLARFLOW_JWT_SECRET":       func(c *Config, v string) { c.Auth.JWTSecret = v },
	"SOLARFLOW_SHEET_ENDPOINT":   func(c *Config, v string) { c.Sheet.Endpoint = v },
	"SOLARFLOW_SPREADSHEET_ID":   func(c *Config, v string) { c.Sheet.SpreadsheetID = v },
	"SOLARFLOW_MONITOR_TOKEN":    func(c *Config, v string) { c.Monitor.APIToken = v },
	"SOLARFLOW_MINIO_SECRET_KEY": func(c *Config, v string) { c.Minio.SecretKey = v },
	"SOLARFLOW_REDIS_PASSWORD":   func(c *Config, v string) { c.Redis.Password = v },
}

// LoadDotEnv loads variables from .env files if they exist.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	for key, apply := range envOverrides {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			apply(&cfg, v)
		}
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	GlobalConfig = &cfg
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.RateLimit == 0 {
		c.Server.RateLimit = 100
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Auth.TokenExpireHours == 0 {
		c.Auth.TokenExpireHours = 24
	}
	if c.Sheet.Backend == "" {
		c.Sheet.Backend = BackendScript
	}
	if c.Sheet.TimeoutSeconds == 0 {
		c.Sheet.TimeoutSeconds = 30
	}
	if c.Uploads.Backend == "" {
		c.Uploads.Backend = BackendScript
	}
	if c.Uploads.MaxImageSide == 0 {
		c.Uploads.MaxImageSide = 1600
	}
	if c.Uploads.JPEGQuality == 0 {
		c.Uploads.JPEGQuality = 75
	}
	if c.Minio.Region == "" {
		c.Minio.Region = "us-east-1"
	}
	if c.Minio.ExpireDays == 0 {
		c.Minio.ExpireDays = 7
	}
	if c.Monitor.TimeoutSeconds == 0 {
		c.Monitor.TimeoutSeconds = 30
	}
	if c.Report.Days == 0 {
		c.Report.Days = 7
	}
	if c.Report.CacheTTLMinutes == 0 {
		c.Report.CacheTTLMinutes = 30
	}
}

// Validate checks that the selected backends have what they need.
func (c *Config) Validate() error {
	switch c.Sheet.Backend {
	case BackendScript:
		if c.Sheet.Endpoint == "" {
			return fmt.Errorf("sheet.endpoint is required for the script backend")
		}
	case BackendSheets:
		if c.Sheet.SpreadsheetID == "" || c.Sheet.CredentialsFile == "" {
			return fmt.Errorf("sheet.spreadsheet_id and sheet.credentials_file are required for the sheets backend")
		}
	default:
		return fmt.Errorf("unknown sheet.backend %q", c.Sheet.Backend)
	}

	switch c.Uploads.Backend {
	case BackendScript:
		if c.Sheet.Endpoint == "" {
			return fmt.Errorf("sheet.endpoint is required for script uploads")
		}
	case BackendMinio:
		if c.Minio.Endpoint == "" || c.Minio.Bucket == "" {
			return fmt.Errorf("minio.endpoint and minio.bucket are required for minio uploads")
		}
	default:
		return fmt.Errorf("unknown uploads.backend %q", c.Uploads.Backend)
	}

	if c.Sheet.Timezone != "" {
		if _, err := time.LoadLocation(c.Sheet.Timezone); err != nil {
			return fmt.Errorf("invalid sheet.timezone %q: %w", c.Sheet.Timezone, err)
		}
	}

	if c.Uploads.JPEGQuality < 1 || c.Uploads.JPEGQuality > 100 {
		return fmt.Errorf("uploads.jpeg_quality must be within 1..100")
	}
	return nil
}
