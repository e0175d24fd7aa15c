package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	// Validate OCR config
	if c.OCR.APIKey == "" {
		errors = append(errors, ValidationError{
			Field:   "ocr.api_key",
			Message: "OCR API key is required",
		})
	}

	if !validHTTPURL(c.OCR.BaseURL) {
		errors = append(errors, ValidationError{
			Field:   "ocr.base_url",
			Message: "invalid OCR base URL",
		})
	}

	if c.OCR.RateLimit <= 0 {
		errors = append(errors, ValidationError{
			Field:   "ocr.rate_limit",
			Message: "rate_limit must be positive",
		})
	}

	// Validate LLM config
	switch strings.ToLower(c.LLM.Provider) {
	case "anthropic", "openai", "mistral":
		if c.LLM.APIKey == "" {
			errors = append(errors, ValidationError{
				Field:   "llm.api_key",
				Message: fmt.Sprintf("API key is required for provider %s", c.LLM.Provider),
			})
		}
	case "ollama":
	default:
		errors = append(errors, ValidationError{
			Field:   "llm.provider",
			Message: fmt.Sprintf("unsupported provider: %s", c.LLM.Provider),
		})
	}

	if c.LLM.BaseURL != "" && !validHTTPURL(c.LLM.BaseURL) {
		errors = append(errors, ValidationError{
			Field:   "llm.base_url",
			Message: "invalid LLM base URL",
		})
	}

	if c.LLM.MaxTokens < 1 || c.LLM.MaxTokens > 8192 {
		errors = append(errors, ValidationError{
			Field:   "llm.max_tokens",
			Message: "max_tokens must be between 1 and 8192",
		})
	}

	if c.LLM.Temperature < 0 || c.LLM.Temperature > 1 {
		errors = append(errors, ValidationError{
			Field:   "llm.temperature",
			Message: "temperature must be between 0 and 1",
		})
	}

	// Validate Storage config
	switch c.Storage.Backend {
	case "auto", "local":
	case "blob":
		if c.Storage.Blob.Token == "" {
			errors = append(errors, ValidationError{
				Field:   "storage.blob.token",
				Message: "blob write token is required",
			})
		}
	case "s3":
		if c.Storage.S3.Bucket == "" {
			errors = append(errors, ValidationError{
				Field:   "storage.s3.bucket",
				Message: "bucket is required",
			})
		}
	case "postgres":
		if c.Storage.Postgres.URL == "" {
			errors = append(errors, ValidationError{
				Field:   "storage.postgres.url",
				Message: "database URL is required",
			})
		}
	default:
		errors = append(errors, ValidationError{
			Field:   "storage.backend",
			Message: fmt.Sprintf("unsupported backend: %s", c.Storage.Backend),
		})
	}

	if !strings.HasPrefix(c.Storage.PublicPath, "/") {
		errors = append(errors, ValidationError{
			Field:   "storage.public_path",
			Message: "public_path must start with /",
		})
	}

	// Validate Index config
	if c.Index.Enabled {
		if c.Index.DatabaseURL == "" {
			errors = append(errors, ValidationError{
				Field:   "index.database_url",
				Message: "database URL is required when the index is enabled",
			})
		}
		if c.Index.VectorDim < 1 {
			errors = append(errors, ValidationError{
				Field:   "index.vector_dim",
				Message: "vector_dim must be positive",
			})
		}
		if c.Index.ChunkOverlap < 0 || c.Index.ChunkOverlap >= c.Index.ChunkSize {
			errors = append(errors, ValidationError{
				Field:   "index.chunk_overlap",
				Message: "chunk_overlap must be non-negative and less than chunk_size",
			})
		}
	}

	if c.Scraper.Enabled {
		if c.Scraper.MaxDepth < 0 {
			errors = append(errors, ValidationError{
				Field:   "scraper.max_depth",
				Message: "max_depth cannot be negative",
			})
		}
		if c.Scraper.RateLimit <= 0 {
			errors = append(errors, ValidationError{
				Field:   "scraper.rate_limit",
				Message: "rate_limit must be positive",
			})
		}
	}

	if _, err := logrus.ParseLevel(c.Logging.Level); err != nil {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("invalid log level: %s", c.Logging.Level),
		})
	}

	return errors
}

// LocalStorageWritable reports whether the local asset directory can be created and written.
func (c *Config) LocalStorageWritable() bool {
	if err := os.MkdirAll(c.Storage.Dir, 0755); err != nil {
		return false
	}
	f, err := os.CreateTemp(c.Storage.Dir, ".probe-*")
	if err != nil {
		return false
	}
	name := f.Name()
	f.Close()
	os.Remove(name)
	return true
}

func validHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
