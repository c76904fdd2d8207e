package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	defaultAPIURL        = "https://api.openai.com/v1/chat/completions"
	defaultModel         = "gpt-4.1-mini"
	defaultSystemPrompt  = "You are Papo, a friendly assistant. Answer concisely."
	defaultMaxIterations = 5
)

type Config struct {
	ChatAPIURL   string
	ChatAPIKey   string
	ChatModel    string
	SystemPrompt string
	Temperature  *float32
	MaxTokens    *int

	// 0 means unbounded
	HistoryMaxMessages int
	HistoryMaxTokens   int

	MaxToolIterations int

	SeedreamAPIKey string

	WAPhoneNumberID string
	WAAccessToken   string
	WAVerifyToken   string

	Port     string
	DataDir  string
	ImageDir string
}

// WhatsAppEnabled reports whether the WhatsApp adapter has credentials.
func (c *Config) WhatsAppEnabled() bool {
	return c.WAPhoneNumberID != "" && c.WAAccessToken != ""
}

// Options come from the command line and take precedence over the environment.
type Options struct {
	EnvFile string
	DataDir string
}

// persona is the optional YAML file named by PERSONA_FILE.
type persona struct {
	SystemPrompt    string   `yaml:"system_prompt"`
	Temperature     *float32 `yaml:"temperature"`
	MaxOutputTokens *int     `yaml:"max_output_tokens"`
}

func Load(opts Options) (*Config, error) {
	if opts.EnvFile != "" {
		if err := godotenv.Load(opts.EnvFile); err != nil {
			return nil, fmt.Errorf("loading %s: %w", opts.EnvFile, err)
		}
	} else if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		// .env is optional; env vars may already be set (e.g. in production)
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	cfg := &Config{
		ChatAPIURL:      os.Getenv("CHAT_API_URL"),
		ChatAPIKey:      os.Getenv("CHAT_API_KEY"),
		ChatModel:       os.Getenv("CHAT_MODEL"),
		SystemPrompt:    defaultSystemPrompt,
		SeedreamAPIKey:  os.Getenv("SEEDREAM_API_KEY"),
		WAPhoneNumberID: os.Getenv("WA_PHONE_NUMBER_ID"),
		WAAccessToken:   os.Getenv("WA_ACCESS_TOKEN"),
		WAVerifyToken:   os.Getenv("WA_VERIFY_TOKEN"),
		Port:            os.Getenv("PORT"),
		DataDir:         os.Getenv("DATA_DIR"),
		ImageDir:        os.Getenv("IMAGE_DIR"),
	}

	if path := os.Getenv("PERSONA_FILE"); path != "" {
		p, err := loadPersona(path)
		if err != nil {
			return nil, err
		}
		if p.SystemPrompt != "" {
			cfg.SystemPrompt = p.SystemPrompt
		}
		cfg.Temperature = p.Temperature
		cfg.MaxTokens = p.MaxOutputTokens
	}
	if v := os.Getenv("SYSTEM_PROMPT"); v != "" {
		cfg.SystemPrompt = v
	}

	var err error
	if cfg.Temperature, err = parseFloatEnv("CHAT_TEMPERATURE", cfg.Temperature); err != nil {
		return nil, err
	}
	if cfg.MaxTokens, err = parseIntPtrEnv("CHAT_MAX_OUTPUT_TOKENS", cfg.MaxTokens); err != nil {
		return nil, err
	}
	if cfg.HistoryMaxMessages, err = parseIntEnv("HISTORY_MAX_MESSAGES", 0); err != nil {
		return nil, err
	}
	if cfg.HistoryMaxTokens, err = parseIntEnv("HISTORY_MAX_TOKENS", 0); err != nil {
		return nil, err
	}
	if cfg.MaxToolIterations, err = parseIntEnv("MAX_TOOL_ITERATIONS", defaultMaxIterations); err != nil {
		return nil, err
	}

	if cfg.ChatAPIURL == "" {
		cfg.ChatAPIURL = defaultAPIURL
	}
	if cfg.ChatModel == "" {
		cfg.ChatModel = defaultModel
	}
	if cfg.Port == "" {
		cfg.Port = "8080"
	}
	if opts.DataDir != "" {
		cfg.DataDir = opts.DataDir
	}
	if cfg.DataDir == "" {
		cfg.DataDir = "."
	}
	if cfg.ImageDir == "" {
		cfg.ImageDir = filepath.Join(cfg.DataDir, "images")
	}

	if cfg.WAVerifyToken == "" {
		token, err := randomHex(16)
		if err != nil {
			return nil, fmt.Errorf("generating verify token: %w", err)
		}
		cfg.WAVerifyToken = token
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.ChatAPIKey == "" {
		return fmt.Errorf("required env var CHAT_API_KEY is not set")
	}
	if c.Temperature != nil && (*c.Temperature < 0 || *c.Temperature > 2) {
		return fmt.Errorf("temperature must be between 0 and 2, got %v", *c.Temperature)
	}
	if c.MaxTokens != nil && *c.MaxTokens <= 0 {
		return fmt.Errorf("max output tokens must be positive, got %d", *c.MaxTokens)
	}
	if c.HistoryMaxMessages < 0 {
		return fmt.Errorf("HISTORY_MAX_MESSAGES must not be negative, got %d", c.HistoryMaxMessages)
	}
	if c.HistoryMaxTokens < 0 {
		return fmt.Errorf("HISTORY_MAX_TOKENS must not be negative, got %d", c.HistoryMaxTokens)
	}
	if c.MaxToolIterations <= 0 {
		return fmt.Errorf("MAX_TOOL_ITERATIONS must be positive, got %d", c.MaxToolIterations)
	}
	return nil
}

func loadPersona(path string) (*persona, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading persona file: %w", err)
	}
	var p persona
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parsing persona file %s: %w", path, err)
	}
	return &p, nil
}

func parseIntEnv(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func parseIntPtrEnv(key string, def *int) (*int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}
	return &n, nil
}

func parseFloatEnv(key string, def *float32) (*float32, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 32)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}
	f32 := float32(f)
	return &f32, nil
}

func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
