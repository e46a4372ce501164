package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration required by the API process.
// All values must come from env (or env-file loaded by the process runner).
// No business logic should depend on raw environment variables.
type Config struct {
	App      AppConfig
	Firebase FirebaseConfig
	Redis    RedisConfig
	Retell   RetellConfig
	OpenAI   OpenAIConfig
	Webhook  WebhookConfig
}

type AppConfig struct {
	Env  string
	Port int
}

// FirebaseConfig identifies the Firestore project and the storage bucket
// where generated story images are uploaded.
type FirebaseConfig struct {
	ProjectID     string
	StorageBucket string
}

type RedisConfig struct {
	Host string
	Port int
}

type RetellConfig struct {
	APIKey     string
	FromNumber string

	// BaseURL is overridable for tests; empty means the public API.
	BaseURL string
}

type OpenAIConfig struct {
	APIKey string

	// BaseURL is overridable for tests; empty means the public API.
	BaseURL string
}

type WebhookConfig struct {
	// DedupTTL bounds how long a processed call id is remembered by the
	// dedup gate. Optional; default applied in Validate().
	DedupTTL time.Duration
}

func Load() (Config, error) {
	c := Config{}
	var parseErrs []error

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	{
		n, err := mustInt("APP_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.App.Port = n
	}

	c.Firebase.ProjectID = strings.TrimSpace(os.Getenv("FIREBASE_PROJECT_ID"))
	c.Firebase.StorageBucket = strings.TrimSpace(os.Getenv("FIREBASE_STORAGE_BUCKET"))

	c.Redis.Host = strings.TrimSpace(os.Getenv("REDIS_HOST"))
	{
		n, err := mustInt("REDIS_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Redis.Port = n
	}

	c.Retell.APIKey = os.Getenv("RETELL_API_KEY")
	c.Retell.FromNumber = strings.TrimSpace(os.Getenv("RETELL_FROM_NUMBER"))
	c.Retell.BaseURL = strings.TrimSpace(os.Getenv("RETELL_BASE_URL"))

	c.OpenAI.APIKey = os.Getenv("OPENAI_API_KEY")
	c.OpenAI.BaseURL = strings.TrimSpace(os.Getenv("OPENAI_BASE_URL"))

	c.Webhook.DedupTTL = mustDuration("WEBHOOK_DEDUP_TTL")

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c *Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}

	if c.Firebase.ProjectID == "" {
		errs = append(errs, errors.New("FIREBASE_PROJECT_ID is required"))
	}
	if c.Firebase.StorageBucket == "" {
		errs = append(errs, errors.New("FIREBASE_STORAGE_BUCKET is required"))
	}

	if c.Redis.Host == "" {
		errs = append(errs, errors.New("REDIS_HOST is required"))
	}
	if c.Redis.Port <= 0 || c.Redis.Port > 65535 {
		errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
	}

	if c.Retell.APIKey == "" {
		errs = append(errs, errors.New("RETELL_API_KEY is required"))
	}
	if c.Retell.FromNumber == "" {
		errs = append(errs, errors.New("RETELL_FROM_NUMBER is required"))
	} else if !strings.HasPrefix(c.Retell.FromNumber, "+") {
		errs = append(errs, fmt.Errorf("RETELL_FROM_NUMBER must be E.164, got %q", c.Retell.FromNumber))
	}

	if c.OpenAI.APIKey == "" {
		errs = append(errs, errors.New("OPENAI_API_KEY is required"))
	}

	if c.Webhook.DedupTTL <= 0 {
		// Long enough to cover provider redelivery, short enough to bound memory.
		c.Webhook.DedupTTL = 30 * time.Minute
	}

	return joinErrors(errs)
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

func mustInt(key string) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, fmt.Errorf("%s is required", key)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

func mustDuration(key string) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0
	}
	return d
}

func appendParseErr(errs []error, n int, err error) (int, []error) {
	if err != nil {
		errs = append(errs, err)
	}
	return n, errs
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
