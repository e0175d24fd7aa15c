package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Addr            string        `yaml:"addr"`
		MaxUploadBytes  int64         `yaml:"max_upload_bytes"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`

	OCR struct {
		APIKey           string        `yaml:"api_key"`
		BaseURL          string        `yaml:"base_url"`
		Model            string        `yaml:"model"`
		RateLimit        float64       `yaml:"rate_limit"`
		Timeout          time.Duration `yaml:"timeout"`
		InlineLimitBytes int64         `yaml:"inline_limit_bytes"`
	} `yaml:"ocr"`

	LLM struct {
		Provider        string  `yaml:"provider"`
		APIKey          string  `yaml:"api_key"`
		BaseURL         string  `yaml:"base_url"`
		Model           string  `yaml:"model"`
		MaxTokens       int     `yaml:"max_tokens"`
		Temperature     float64 `yaml:"temperature"`
		MaxContextChars int     `yaml:"max_context_chars"`
	} `yaml:"llm"`

	Storage struct {
		Backend         string `yaml:"backend"`
		Dir             string `yaml:"dir"`
		PublicPath      string `yaml:"public_path"`
		PlaceholderPath string `yaml:"placeholder_path"`

		Blob struct {
			Token   string `yaml:"token"`
			BaseURL string `yaml:"base_url"`
		} `yaml:"blob"`

		S3 struct {
			Bucket        string `yaml:"bucket"`
			Region        string `yaml:"region"`
			Endpoint      string `yaml:"endpoint"`
			AccessKey     string `yaml:"access_key"`
			SecretKey     string `yaml:"secret_key"`
			PublicBaseURL string `yaml:"public_base_url"`
			Prefix        string `yaml:"prefix"`
		} `yaml:"s3"`

		Postgres struct {
			URL       string `yaml:"url"`
			TableName string `yaml:"table_name"`
		} `yaml:"postgres"`
	} `yaml:"storage"`

	Index struct {
		Enabled      bool   `yaml:"enabled"`
		DatabaseURL  string `yaml:"database_url"`
		TableName    string `yaml:"table_name"`
		VectorDim    int    `yaml:"vector_dim"`
		BatchSize    int    `yaml:"batch_size"`
		SearchLimit  int    `yaml:"search_limit"`
		EmbedModel   string `yaml:"embed_model"`
		EmbedURL     string `yaml:"embed_url"`
		ChunkSize    int    `yaml:"chunk_size"`
		ChunkOverlap int    `yaml:"chunk_overlap"`
	} `yaml:"index"`

	Render struct {
		HTML bool `yaml:"html"`
	} `yaml:"render"`

	// Scraper resolves URLs that point at an HTML page instead of a PDF.
	Scraper struct {
		Enabled        bool          `yaml:"enabled"`
		MaxDepth       int           `yaml:"max_depth"`
		MaxPages       int           `yaml:"max_pages"`
		RateLimit      float64       `yaml:"rate_limit"`
		IgnorePatterns []string      `yaml:"ignore_patterns"`
		Timeout        time.Duration `yaml:"timeout"`
	} `yaml:"scraper"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`

	UI struct {
		Streaming bool `yaml:"streaming"`
	} `yaml:"ui"`
}

func LoadConfig(path string) (*Config, error) {
	// If no path provided, try default locations
	if path == "" {
		locations := []string{
			"config.yaml",
			"config.yml",
			filepath.Join(os.Getenv("HOME"), ".config/docchat/config.yaml"),
			"/etc/docchat/config.yaml",
		}

		for _, loc := range locations {
			if _, err := os.Stat(loc); err == nil {
				path = loc
				break
			}
		}
	}

	if path == "" {
		return getDefaultConfig()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// Streaming and HTML rendering default to on; a file can still turn them off.
	config := Config{}
	config.UI.Streaming = true
	config.Render.HTML = true
	config.Scraper.Enabled = true
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	mergeWithEnv(&config)
	applyDefaults(&config)

	return &config, nil
}

func getDefaultConfig() (*Config, error) {
	config := &Config{}
	config.UI.Streaming = true
	config.Render.HTML = true
	config.Scraper.Enabled = true
	mergeWithEnv(config)
	applyDefaults(config)
	return config, nil
}

func applyDefaults(config *Config) {
	if config.Server.Addr == "" {
		config.Server.Addr = ":8080"
	}
	if config.Server.MaxUploadBytes == 0 {
		config.Server.MaxUploadBytes = 50 << 20
	}
	if config.Server.ReadTimeout == 0 {
		config.Server.ReadTimeout = 2 * time.Minute
	}
	if config.Server.ShutdownTimeout == 0 {
		config.Server.ShutdownTimeout = 10 * time.Second
	}

	if config.OCR.BaseURL == "" {
		config.OCR.BaseURL = "https://api.mistral.ai/v1"
	}
	if config.OCR.Model == "" {
		config.OCR.Model = "mistral-ocr-latest"
	}
	if config.OCR.RateLimit == 0 {
		config.OCR.RateLimit = 1.0
	}
	if config.OCR.Timeout == 0 {
		config.OCR.Timeout = 5 * time.Minute
	}
	if config.OCR.InlineLimitBytes == 0 {
		config.OCR.InlineLimitBytes = 10 << 20
	}

	if config.LLM.Provider == "" {
		config.LLM.Provider = "anthropic"
	}
	if config.LLM.Model == "" {
		config.LLM.Model = defaultModel(config.LLM.Provider)
	}
	if config.LLM.MaxTokens == 0 {
		config.LLM.MaxTokens = 2000
	}
	if config.LLM.Temperature == 0 {
		config.LLM.Temperature = 0.7
	}
	if config.LLM.MaxContextChars == 0 {
		config.LLM.MaxContextChars = 400000
	}

	if config.Storage.Backend == "" {
		config.Storage.Backend = "auto"
	}
	if config.Storage.Dir == "" {
		config.Storage.Dir = "public/assets"
	}
	if config.Storage.PublicPath == "" {
		config.Storage.PublicPath = "/assets"
	}
	if config.Storage.PlaceholderPath == "" {
		config.Storage.PlaceholderPath = "/placeholder.svg"
	}
	if config.Storage.Blob.BaseURL == "" {
		config.Storage.Blob.BaseURL = "https://blob.vercel-storage.com"
	}
	if config.Storage.S3.Region == "" {
		config.Storage.S3.Region = "us-east-1"
	}
	if config.Storage.Postgres.TableName == "" {
		config.Storage.Postgres.TableName = "assets"
	}

	if config.Index.TableName == "" {
		config.Index.TableName = "document_chunks"
	}
	if config.Index.VectorDim == 0 {
		config.Index.VectorDim = 768
	}
	if config.Index.BatchSize == 0 {
		config.Index.BatchSize = 100
	}
	if config.Index.SearchLimit == 0 {
		config.Index.SearchLimit = 8
	}
	if config.Index.EmbedModel == "" {
		config.Index.EmbedModel = "nomic-embed-text:latest"
	}
	if config.Index.EmbedURL == "" {
		config.Index.EmbedURL = "http://localhost:11434"
	}
	if config.Index.ChunkSize == 0 {
		config.Index.ChunkSize = 1000
	}
	if config.Index.ChunkOverlap == 0 {
		config.Index.ChunkOverlap = 200
	}

	if config.Scraper.MaxDepth == 0 {
		config.Scraper.MaxDepth = 1
	}
	if config.Scraper.MaxPages == 0 {
		config.Scraper.MaxPages = 20
	}
	if config.Scraper.RateLimit == 0 {
		config.Scraper.RateLimit = 2.0
	}
	if config.Scraper.Timeout == 0 {
		config.Scraper.Timeout = 30 * time.Second
	}

	if config.Logging.Level == "" {
		config.Logging.Level = "info"
	}
	if config.Logging.Format == "" {
		config.Logging.Format = "text"
	}
}

func defaultModel(provider string) string {
	switch strings.ToLower(provider) {
	case "openai":
		return "gpt-4o"
	case "mistral":
		return "mistral-large-latest"
	case "ollama":
		return "llama3.1"
	default:
		return "claude-3-5-sonnet-latest"
	}
}

func mergeWithEnv(config *Config) {
	if key := os.Getenv("MISTRAL_API_KEY"); key != "" {
		config.OCR.APIKey = key
	}
	if config.LLM.APIKey == "" {
		config.LLM.APIKey = os.Getenv(providerKeyEnv(config.LLM.Provider))
	}
	if baseURL := os.Getenv("OLLAMA_BASE_URL"); baseURL != "" {
		config.Index.EmbedURL = baseURL
		if strings.EqualFold(config.LLM.Provider, "ollama") {
			config.LLM.BaseURL = baseURL
		}
	}
	if token := os.Getenv("BLOB_READ_WRITE_TOKEN"); token != "" {
		config.Storage.Blob.Token = token
	}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		config.Index.DatabaseURL = dbURL
		if config.Storage.Postgres.URL == "" {
			config.Storage.Postgres.URL = dbURL
		}
	}
	if port := os.Getenv("PORT"); port != "" {
		config.Server.Addr = ":" + port
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
}

// providerKeyEnv names the environment variable holding the chat provider's key.
func providerKeyEnv(provider string) string {
	switch strings.ToLower(provider) {
	case "openai":
		return "OPENAI_API_KEY"
	case "mistral":
		return "MISTRAL_API_KEY"
	case "ollama":
		return ""
	default:
		return "ANTHROPIC_API_KEY"
	}
}
