package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Log        LogConfig        `yaml:"log"`
	Auth       AuthConfig       `yaml:"auth"`
	Users      []User           `yaml:"users"`
	Store      StoreConfig      `yaml:"store"`
	AI         AIConfig         `yaml:"ai"`
	Extraction ExtractionConfig `yaml:"extraction"`
	Minio      MinioConfig      `yaml:"minio"`
	Catalog    CatalogConfig    `yaml:"catalog"`
	ImageTools ImageToolsConfig `yaml:"image_tools"`
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

type AuthConfig struct {
	JWTSecret        string `yaml:"jwt_secret"`
	TokenExpireHours int    `yaml:"token_expire_hours"`
}

type User struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Tenant   string `yaml:"tenant"`
}

// StoreConfig selects and tunes the job store backend.
type StoreConfig struct {
	Backend string      `yaml:"backend"` // memory, redis
	MaxJobs int         `yaml:"max_jobs"`
	Redis   RedisConfig `yaml:"redis"`
}

type RedisConfig struct {
	Addr       string `yaml:"addr"`
	Password   string `yaml:"password"`
	DB         int    `yaml:"db"`
	TTLMinutes int    `yaml:"ttl_minutes"`
}

// AIConfig configures the two vision providers and the shared call policy.
type AIConfig struct {
	Provider       string         `yaml:"provider"` // preferred: openai, gemini
	MaxRetries     int            `yaml:"max_retries"`
	TimeoutSeconds int            `yaml:"timeout_seconds"`
	OpenAI         ProviderConfig `yaml:"openai"`
	Gemini         ProviderConfig `yaml:"gemini"`
}

type ProviderConfig struct {
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
}

// ExtractionConfig bounds the upload pipeline.
type ExtractionConfig struct {
	MaxFileSizeMB      int      `yaml:"max_file_size_mb"`
	MaxPDFSizeMB       int      `yaml:"max_pdf_size_mb"`
	AllowedExtensions  []string `yaml:"allowed_extensions"`
	HeaderScanRows     int      `yaml:"header_scan_rows"`
	FallbackSampleRows int      `yaml:"fallback_sample_rows"`
	FallbackMinColumns int      `yaml:"fallback_min_columns"`
	UploadDir          string   `yaml:"upload_dir"`
}

type MinioConfig struct {
	Endpoint   string `yaml:"endpoint"`
	AccessKey  string `yaml:"access_key"`
	SecretKey  string `yaml:"secret_key"`
	Bucket     string `yaml:"bucket"`
	UseSSL     bool   `yaml:"use_ssl"`
	ExpireDays int    `yaml:"expire_days"`
}

// CatalogConfig points at the product store this service imports into.
type CatalogConfig struct {
	BaseURL  string `yaml:"base_url"`
	APIToken string `yaml:"api_token"`
}

type ImageToolsConfig struct {
	RemoveBgURL string `yaml:"remove_bg_url"`
	APIKey      string `yaml:"api_key"`
	JPEGQuality int    `yaml:"jpeg_quality"`
}

var GlobalConfig *Config

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	// Set defaults
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
	if cfg.Auth.TokenExpireHours == 0 {
		cfg.Auth.TokenExpireHours = 24
	}
	if cfg.Store.Backend == "" {
		cfg.Store.Backend = "memory"
	}
	if cfg.Store.Redis.TTLMinutes == 0 {
		cfg.Store.Redis.TTLMinutes = 60
	}
	if cfg.AI.Provider == "" {
		cfg.AI.Provider = "openai"
	}
	if cfg.AI.MaxRetries == 0 {
		cfg.AI.MaxRetries = 3
	}
	if cfg.AI.TimeoutSeconds == 0 {
		cfg.AI.TimeoutSeconds = 60
	}
	if cfg.AI.OpenAI.Model == "" {
		cfg.AI.OpenAI.Model = "gpt-4o"
	}
	if cfg.AI.OpenAI.BaseURL == "" {
		cfg.AI.OpenAI.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.AI.Gemini.Model == "" {
		cfg.AI.Gemini.Model = "gemini-2.0-flash"
	}
	if cfg.AI.Gemini.BaseURL == "" {
		cfg.AI.Gemini.BaseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	if cfg.Extraction.MaxFileSizeMB == 0 {
		cfg.Extraction.MaxFileSizeMB = 20
	}
	if cfg.Extraction.MaxPDFSizeMB == 0 {
		cfg.Extraction.MaxPDFSizeMB = 50
	}
	if len(cfg.Extraction.AllowedExtensions) == 0 {
		cfg.Extraction.AllowedExtensions = []string{".pdf", ".xlsx", ".xls", ".docx", ".png", ".jpg", ".jpeg"}
	}
	if cfg.Extraction.HeaderScanRows == 0 {
		cfg.Extraction.HeaderScanRows = 10
	}
	if cfg.Extraction.FallbackSampleRows == 0 {
		cfg.Extraction.FallbackSampleRows = 50
	}
	if cfg.Extraction.FallbackMinColumns == 0 {
		cfg.Extraction.FallbackMinColumns = 2
	}
	if cfg.Extraction.UploadDir == "" {
		cfg.Extraction.UploadDir = os.TempDir()
	}
	if cfg.Minio.ExpireDays == 0 {
		cfg.Minio.ExpireDays = 7
	}
	if cfg.ImageTools.JPEGQuality == 0 {
		cfg.ImageTools.JPEGQuality = 85
	}

	applyEnvOverrides(&cfg)

	GlobalConfig = &cfg
	return &cfg, nil
}

// applyEnvOverrides lets secrets come from the environment (or a .env file
// loaded at startup) instead of being committed in config.yaml.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.AI.OpenAI.APIKey = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		cfg.AI.Gemini.APIKey = v
	}
	if v := os.Getenv("MINIO_ACCESS_KEY"); v != "" {
		cfg.Minio.AccessKey = v
	}
	if v := os.Getenv("MINIO_SECRET_KEY"); v != "" {
		cfg.Minio.SecretKey = v
	}
	if v := os.Getenv("CATALOG_API_TOKEN"); v != "" {
		cfg.Catalog.APIToken = v
	}
	if v := os.Getenv("REMOVEBG_API_KEY"); v != "" {
		cfg.ImageTools.APIKey = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Store.Redis.Password = v
	}
}

// FindUser finds a user by username
func (c *Config) FindUser(username string) *User {
	for i := range c.Users {
		if c.Users[i].Username == username {
			return &c.Users[i]
		}
	}
	return nil
}

// IsExtensionAllowed reports whether ext (including the leading dot,
// lowercase) is in the allowed upload set.
func (c *Config) IsExtensionAllowed(ext string) bool {
	for _, allowed := range c.Extraction.AllowedExtensions {
		if allowed == ext {
			return true
		}
	}
	return false
}
