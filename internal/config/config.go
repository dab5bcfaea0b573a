package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete controller configuration.
type Config struct {
	API     APIConfig     `yaml:"api"`
	Audio   AudioConfig   `yaml:"audio"`
	VAD     VADConfig     `yaml:"vad"`
	Exam    ExamConfig    `yaml:"exam"`
	Store   StoreConfig   `yaml:"store"`
	Logging LoggingConfig `yaml:"logging"`
}

// APIConfig contains backend API client configuration.
type APIConfig struct {
	BaseURL   string `yaml:"base_url"`
	Timeout   int    `yaml:"timeout"` // seconds
	UserAgent string `yaml:"user_agent"`
}

// AudioConfig contains audio capture parameters.
type AudioConfig struct {
	SampleRate      int `yaml:"sample_rate"`
	SilenceDuration int `yaml:"silence_duration"` // milliseconds
}

// VADConfig contains voice-onset detection configuration.
type VADConfig struct {
	Threshold    float64 `yaml:"threshold"`
	WindowSize   int     `yaml:"window_size"`   // samples
	TickInterval int     `yaml:"tick_interval"` // milliseconds
}

// ExamConfig contains exam session parameters.
type ExamConfig struct {
	PatientID  string `yaml:"patient_id"` // generated when empty
	ResultsURL string `yaml:"results_url"`
}

// StoreConfig contains resume-map store configuration.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		API: APIConfig{
			BaseURL: "http://localhost:8000/api",
			Timeout: 30,
		},
		Audio: AudioConfig{
			SampleRate:      16000,
			SilenceDuration: 500,
		},
		VAD: VADConfig{
			Threshold:    0.02,
			WindowSize:   2048,
			TickInterval: 16,
		},
		Store: StoreConfig{
			Path: "cogscreen.db",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
	}
}

// Load reads and parses the configuration file over the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// Validate performs validation of the configuration.
func (c *Config) Validate() error {
	if err := c.API.Validate(); err != nil {
		return fmt.Errorf("api config: %w", err)
	}

	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}

	if err := c.VAD.Validate(); err != nil {
		return fmt.Errorf("vad config: %w", err)
	}

	if err := c.Store.Validate(); err != nil {
		return fmt.Errorf("store config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates API configuration.
func (a *APIConfig) Validate() error {
	if a.BaseURL == "" {
		return fmt.Errorf("base_url cannot be empty")
	}

	if a.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", a.Timeout)
	}

	return nil
}

// Validate validates audio configuration.
func (a *AudioConfig) Validate() error {
	if a.SampleRate != 16000 {
		return fmt.Errorf("sample_rate must be 16000 Hz for response uploads, got %d", a.SampleRate)
	}

	if a.SilenceDuration < 1 {
		return fmt.Errorf("silence_duration must be at least 1 ms, got %d", a.SilenceDuration)
	}

	return nil
}

// Validate validates VAD configuration.
func (v *VADConfig) Validate() error {
	if v.Threshold <= 0 || v.Threshold >= 1 {
		return fmt.Errorf("threshold must be between 0 and 1 (exclusive), got %f", v.Threshold)
	}

	if v.WindowSize < 256 || v.WindowSize > 8192 {
		return fmt.Errorf("window_size must be between 256 and 8192 samples, got %d", v.WindowSize)
	}

	if v.WindowSize&(v.WindowSize-1) != 0 {
		return fmt.Errorf("window_size must be a power of two, got %d", v.WindowSize)
	}

	if v.TickInterval < 1 {
		return fmt.Errorf("tick_interval must be at least 1 ms, got %d", v.TickInterval)
	}

	return nil
}

// Validate validates store configuration.
func (s *StoreConfig) Validate() error {
	if s.Path == "" {
		return fmt.Errorf("path cannot be empty")
	}

	return nil
}

// Validate validates logging configuration.
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	return nil
}

// GetTimeoutDuration returns the API timeout as a time.Duration.
func (a *APIConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(a.Timeout) * time.Second
}

// GetSilenceDuration returns the placeholder length as a time.Duration.
func (a *AudioConfig) GetSilenceDuration() time.Duration {
	return time.Duration(a.SilenceDuration) * time.Millisecond
}

// GetTickInterval returns the analysis tick interval as a time.Duration.
func (v *VADConfig) GetTickInterval() time.Duration {
	return time.Duration(v.TickInterval) * time.Millisecond
}
