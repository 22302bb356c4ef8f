package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config collects the settings of all three commands.
//
// Values are layered: Default, then the YAML file named by --config or
// LOTO_CONFIG, then environment variables (a .env file in the working
// directory is loaded first), then explicitly set command-line flags.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	AI       AIConfig       `yaml:"ai"`
	OCR      OCRConfig      `yaml:"ocr"`
	Database DatabaseConfig `yaml:"database"`
	Client   ClientConfig   `yaml:"client"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig configures the recognition service.
type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	MaxUploadMB  int64         `yaml:"max_upload_mb"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	CORSOrigins  []string      `yaml:"cors_origins"`

	// UploadsPerMinute is the per-IP scan budget.
	UploadsPerMinute int `yaml:"uploads_per_minute"`
}

// AIConfig selects and configures the model that reads tickets.
type AIConfig struct {
	// Provider is "gemini" (alias "google") or "openai".
	Provider string       `yaml:"provider"`
	Gemini   GeminiConfig `yaml:"gemini"`
	OpenAI   OpenAIConfig `yaml:"openai"`
}

// GeminiConfig uses the Gemini API when APIKey is set and Vertex AI with
// Application Default Credentials when Project is set.
type GeminiConfig struct {
	APIKey   string        `yaml:"api_key"`
	Project  string        `yaml:"project"`
	Region   string        `yaml:"region"`
	Model    string        `yaml:"model"`
	Thinking string        `yaml:"thinking"`
	Timeout  time.Duration `yaml:"timeout"`
}

type OpenAIConfig struct {
	APIKey          string        `yaml:"api_key"`
	Model           string        `yaml:"model"`
	ReasoningEffort string        `yaml:"reasoning_effort"`
	Timeout         time.Duration `yaml:"timeout"`
}

// OCRConfig enables the Tesseract pass run before the model.
type OCRConfig struct {
	Enabled   bool     `yaml:"enabled"`
	Languages []string `yaml:"languages"`
}

// DatabaseConfig locates the scan history database. URL wins over the
// individual fields; with neither the history stays in memory.
type DatabaseConfig struct {
	URL      string `yaml:"url"`
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"sslmode"`
}

// DSN returns the connection string, or "" when no database is set.
func (d DatabaseConfig) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	if d.Host == "" {
		return ""
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode)
}

// ClientConfig configures the board and play commands.
type ClientConfig struct {
	ServiceURL string `yaml:"service_url"`

	// Upload is the request encoding: "stream" or "blob".
	Upload string `yaml:"upload"`

	Stage1Offset time.Duration `yaml:"stage1_offset"`
	Stage2Offset time.Duration `yaml:"stage2_offset"`
	Timeout      time.Duration `yaml:"timeout"`

	BoardAddr string `yaml:"board_addr"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	// File receives the play command's logs; empty discards them.
	File string `yaml:"file"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:             ":8080",
			MaxUploadMB:      5,
			ReadTimeout:      30 * time.Second,
			WriteTimeout:     90 * time.Second,
			CORSOrigins:      []string{"http://localhost:8081", "http://localhost:19006"},
			UploadsPerMinute: 5,
		},
		AI: AIConfig{
			Provider: "gemini",
			Gemini: GeminiConfig{
				Region:   defaultRegion,
				Model:    defaultModel,
				Thinking: "minimal",
				Timeout:  90 * time.Second,
			},
			OpenAI: OpenAIConfig{
				Model:   defaultOpenAIModel,
				Timeout: 90 * time.Second,
			},
		},
		OCR: OCRConfig{
			Enabled:   false,
			Languages: []string{"eng"},
		},
		Database: DatabaseConfig{
			Port:    "5432",
			User:    "postgres",
			Name:    "loto",
			SSLMode: "disable",
		},
		Client: ClientConfig{
			ServiceURL:   "http://localhost:8080/api/v1",
			Upload:       "stream",
			Stage1Offset: 4 * time.Second,
			Stage2Offset: 14 * time.Second,
			Timeout:      90 * time.Second,
			BoardAddr:    ":8090",
		},
		Log: LogConfig{Level: "info"},
	}
}

// LoadConfig returns Default overlaid with the file at path (if any) and
// the environment.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		path = os.Getenv("LOTO_CONFIG")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

// applyEnv overlays the environment variables of the original deployment
// (SERVER_PORT, GOOGLE_API_KEY, DB_HOST, ...).
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}
	var errs []error
	dur := func(key string, dst *time.Duration) {
		if v, ok := lookup(key); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := lookup(key); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}

	if v, ok := lookup("PORT"); ok {
		c.Server.Addr = ":" + v
	}
	if v, ok := lookup("SERVER_PORT"); ok {
		c.Server.Addr = ":" + v
	}
	if v, ok := lookup("MAX_UPLOAD_SIZE_MB"); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("MAX_UPLOAD_SIZE_MB: %w", err))
		} else {
			c.Server.MaxUploadMB = n
		}
	}
	if v, ok := lookup("CORS_ORIGINS"); ok && v != "" {
		c.Server.CORSOrigins = append(c.Server.CORSOrigins, strings.Split(v, ",")...)
	}

	str("AI_PROVIDER", &c.AI.Provider)
	str("GOOGLE_API_KEY", &c.AI.Gemini.APIKey)
	str("GOOGLE_AI_MODEL", &c.AI.Gemini.Model)
	str("GOOGLE_AI_THINKING", &c.AI.Gemini.Thinking)
	str("GCP_PROJECT_ID", &c.AI.Gemini.Project)
	str("GCP_REGION", &c.AI.Gemini.Region)
	str("OPENAI_API_KEY", &c.AI.OpenAI.APIKey)
	str("OPENAI_MODEL", &c.AI.OpenAI.Model)
	str("OPENAI_REASONING_EFFORT", &c.AI.OpenAI.ReasoningEffort)

	boolean("OCR_ENABLED", &c.OCR.Enabled)
	if v, ok := lookup("OCR_LANGUAGES"); ok && v != "" {
		c.OCR.Languages = strings.Split(v, "+")
	}

	str("DATABASE_URL", &c.Database.URL)
	str("DB_HOST", &c.Database.Host)
	str("DB_PORT", &c.Database.Port)
	str("DB_USER", &c.Database.User)
	str("DB_PASSWORD", &c.Database.Password)
	str("DB_NAME", &c.Database.Name)
	str("DB_SSLMODE", &c.Database.SSLMode)

	str("LOTO_SERVICE_URL", &c.Client.ServiceURL)
	str("LOTO_UPLOAD", &c.Client.Upload)
	dur("LOTO_SCAN_TIMEOUT", &c.Client.Timeout)
	str("LOTO_BOARD_ADDR", &c.Client.BoardAddr)

	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FILE", &c.Log.File)

	return errors.Join(errs...)
}

// Validate checks values that would otherwise fail at first use.
func (c *Config) Validate() error {
	var errs []error
	switch strings.ToLower(c.AI.Provider) {
	case "gemini", "google", "openai":
	default:
		errs = append(errs, fmt.Errorf("ai.provider: unknown provider %q", c.AI.Provider))
	}
	switch strings.ToLower(c.Client.Upload) {
	case "stream", "blob":
	default:
		errs = append(errs, fmt.Errorf("client.upload: must be stream or blob, got %q", c.Client.Upload))
	}
	if c.Server.MaxUploadMB <= 0 {
		errs = append(errs, errors.New("server.max_upload_mb must be positive"))
	}
	if c.Server.UploadsPerMinute <= 0 {
		errs = append(errs, errors.New("server.uploads_per_minute must be positive"))
	}
	if c.Client.Stage1Offset <= 0 || c.Client.Stage2Offset < c.Client.Stage1Offset {
		errs = append(errs, errors.New("client stage offsets must be positive and increasing"))
	}
	if c.Client.Timeout <= 0 {
		errs = append(errs, errors.New("client.timeout must be positive"))
	}
	return errors.Join(errs...)
}
