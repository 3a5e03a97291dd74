package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server ServerConfig `yaml:"server"`
	Minio  MinioConfig  `yaml:"minio"`
	Scribe ScribeConfig `yaml:"scribe"`
	OCR    OCRConfig    `yaml:"ocr"`
	Auth   AuthConfig   `yaml:"auth"`
	Log    LogConfig    `yaml:"log"`
	Store  StoreConfig  `yaml:"store"`
	Users  []User       `yaml:"users"`
}

type ServerConfig struct {
	Port            int `yaml:"port"`
	MaxUploadSizeMB int `yaml:"max_upload_size_mb"`
}

type MinioConfig struct {
	Endpoint   string `yaml:"endpoint"`
	AccessKey  string `yaml:"access_key"`
	SecretKey  string `yaml:"secret_key"`
	Bucket     string `yaml:"bucket"`
	UseSSL     bool   `yaml:"use_ssl"`
	ExpireDays int    `yaml:"expire_days"`
}

// ScribeConfig configures the handwriting transcription backend.
// Engine selects between the remote HTTP service and local Tesseract.
type ScribeConfig struct {
	Engine           string `yaml:"engine"` // remote, local
	APIURL           string `yaml:"api_url"`
	APIToken         string `yaml:"api_token"`
	PollIntervalSecs int    `yaml:"poll_interval_secs"`
	MaxPollAttempts  int    `yaml:"max_poll_attempts"`
}

// OCRConfig holds the default transcription parameters applied to every page.
type OCRConfig struct {
	Language     string  `yaml:"language"`
	Grayscale    bool    `yaml:"grayscale"`
	Contrast     float64 `yaml:"contrast"`
	Threshold    int     `yaml:"threshold"`
	MaxDimension int     `yaml:"max_dimension"`
}

type AuthConfig struct {
	JWTSecret        string `yaml:"jwt_secret"`
	TokenExpireHours int    `yaml:"token_expire_hours"`
}

type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

type StoreConfig struct {
	MaxPages int `yaml:"max_pages"`
}

type User struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
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
	if cfg.Server.MaxUploadSizeMB == 0 {
		cfg.Server.MaxUploadSizeMB = 15
	}
	if cfg.Minio.ExpireDays == 0 {
		cfg.Minio.ExpireDays = 7
	}
	if cfg.Auth.TokenExpireHours == 0 {
		cfg.Auth.TokenExpireHours = 24
	}
	if cfg.Scribe.Engine == "" {
		cfg.Scribe.Engine = "remote"
	}
	if cfg.Scribe.PollIntervalSecs == 0 {
		cfg.Scribe.PollIntervalSecs = 3
	}
	if cfg.Scribe.MaxPollAttempts == 0 {
		cfg.Scribe.MaxPollAttempts = 100
	}
	if cfg.OCR.Language == "" {
		cfg.OCR.Language = "eng"
	}
	if cfg.OCR.Contrast == 0 {
		cfg.OCR.Contrast = 1.0
	}
	if cfg.OCR.MaxDimension == 0 {
		cfg.OCR.MaxDimension = 2200
	}
	if cfg.Store.MaxPages == 0 {
		cfg.Store.MaxPages = 200
	}

	GlobalConfig = &cfg
	return &cfg, nil
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
