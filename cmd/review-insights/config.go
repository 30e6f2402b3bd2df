package main

import (
	"errors"
	"flag"
	"os"
	"strings"
	"time"
)

type Config struct {
	Addr      string
	Model     string
	ChatModel string
	APIKey    string
	BaseURL   string
	Mock      bool
	EnvFile   string

	AnalysisTimeout time.Duration
	ChatTimeout     time.Duration
	SessionTTL      time.Duration
	SweepInterval   time.Duration
	MaxOutputTokens int64
	MaxBodyBytes    int64

	LogLevel string
	LogFile  string

	CORSOrigins []string
}

func (c Config) Validate() error {
	if c.Addr == "" {
		return errors.New("missing -addr")
	}
	if !c.Mock && c.Model == "" {
		return errors.New("missing -model")
	}
	if c.AnalysisTimeout < 0 || c.ChatTimeout < 0 {
		return errors.New("timeouts must be >= 0")
	}
	if c.SessionTTL < 0 || c.SweepInterval < 0 {
		return errors.New("session-ttl and sweep-interval must be >= 0")
	}
	if c.MaxOutputTokens < 0 {
		return errors.New("max-output-tokens must be >= 0")
	}
	if c.MaxBodyBytes < 0 {
		return errors.New("max-body-bytes must be >= 0")
	}
	return nil
}

func defaultConfig() Config {
	return Config{
		Addr:            ":8080",
		Model:           "gpt-5-mini",
		EnvFile:         ".env",
		AnalysisTimeout: 3 * time.Minute,
		ChatTimeout:     2 * time.Minute,
		SessionTTL:      2 * time.Hour,
		SweepInterval:   5 * time.Minute,
		MaxOutputTokens: 16000,
		MaxBodyBytes:    4 << 20,
		LogLevel:        "info",
	}
}

func parseFlags(fs *flag.FlagSet, args []string) (Config, error) {
	cfg := defaultConfig()
	fs.SetOutput(os.Stderr)

	var origins string
	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "HTTP listen address")
	fs.StringVar(&cfg.Model, "model", cfg.Model, "OpenAI model for review analysis (e.g. gpt-5-mini)")
	fs.StringVar(&cfg.ChatModel, "chat-model", "", "OpenAI model override for the chat assistant (default: -model)")
	fs.StringVar(&cfg.APIKey, "api-key", "", "OpenAI API key (overrides OPENAI_API_KEY env var)")
	fs.StringVar(&cfg.BaseURL, "base-url", "", "Optional OpenAI-compatible API base URL")
	fs.BoolVar(&cfg.Mock, "mock", false, "Use the local deterministic backend instead of OpenAI")
	fs.StringVar(&cfg.EnvFile, "env-file", cfg.EnvFile, "Optional .env file loaded before reading OPENAI_API_KEY")
	fs.DurationVar(&cfg.AnalysisTimeout, "analysis-timeout", cfg.AnalysisTimeout, "Timeout for one analysis call (0 disables)")
	fs.DurationVar(&cfg.ChatTimeout, "chat-timeout", cfg.ChatTimeout, "Timeout for one streamed chat reply (0 disables)")
	fs.DurationVar(&cfg.SessionTTL, "session-ttl", cfg.SessionTTL, "Drop sessions idle for longer than this (0 keeps them)")
	fs.DurationVar(&cfg.SweepInterval, "sweep-interval", cfg.SweepInterval, "How often idle sessions are swept")
	fs.Int64Var(&cfg.MaxOutputTokens, "max-output-tokens", cfg.MaxOutputTokens, "Max output tokens for one analysis")
	fs.Int64Var(&cfg.MaxBodyBytes, "max-body-bytes", cfg.MaxBodyBytes, "Largest accepted request body in bytes")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: debug, info, warn, error")
	fs.StringVar(&cfg.LogFile, "log-file", "", "Optional rotated log file (stdout is always written)")
	fs.StringVar(&origins, "cors-origin", "", "Comma-separated allowed CORS origins (default: *)")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	if cfg.ChatModel == "" {
		cfg.ChatModel = cfg.Model
	}
	for _, o := range strings.Split(origins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			cfg.CORSOrigins = append(cfg.CORSOrigins, o)
		}
	}
	return cfg, nil
}
