package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// Config holds application configuration from ~/.monsmatics/config.json
type Config struct {
	DataDir  string       `json:"data_dir,omitempty"`
	Language string       `json:"language,omitempty"` // preferred UI language tag, e.g. "tr-TR"
	Location *Location    `json:"location,omitempty"`
	Gemini   GeminiConfig `json:"gemini,omitempty"`
	Recall   RecallConfig `json:"recall,omitempty"`
	Audio    AudioConfig  `json:"audio,omitempty"`
}

// GeminiConfig holds Gemini model settings.
type GeminiConfig struct {
	APIKey         string `json:"api_key,omitempty"`
	ChatModel      string `json:"chat_model,omitempty"`
	ImageModel     string `json:"image_model,omitempty"`
	TTSModel       string `json:"tts_model,omitempty"`
	LiveModel      string `json:"live_model,omitempty"`
	EmbeddingModel string `json:"embedding_model,omitempty"`
	LiveVoice      string `json:"live_voice,omitempty"`
	TTSVoice       string `json:"tts_voice,omitempty"`
}

// RecallConfig controls the semantic history index.
type RecallConfig struct {
	Enabled  bool `json:"enabled"`
	Compress bool `json:"compress"`
}

// AudioConfig holds device settings.
type AudioConfig struct {
	CaptureBlockSize int `json:"capture_block_size,omitempty"`
	OutputBufferMS   int `json:"output_buffer_ms,omitempty"`
}

// DefaultConfigDir returns ~/.monsmatics.
func DefaultConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, "."+AppName), nil
}

// LoadConfig reads configuration from path (or ~/.monsmatics/config.json when empty),
// applies .env and environment overrides, then defaults.
func LoadConfig(path string, logger *zap.Logger) (*Config, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	// A missing .env is the common case.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logger.Warn("failed to load .env", zap.Error(err))
	}

	configDir, err := DefaultConfigDir()
	if err != nil {
		return nil, err
	}
	if path == "" {
		path = filepath.Join(configDir, "config.json")
	}

	cfg := &Config{}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
		logger.Debug("loaded config", zap.String("path", path))
	case os.IsNotExist(err):
		logger.Debug("config file not found, using defaults and environment variables", zap.String("path", path))
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg, configDir)
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		cfg.Gemini.APIKey = key
	}
	if dir := os.Getenv("MONSMATICS_DATA_DIR"); dir != "" {
		cfg.DataDir = dir
	}
	if lang := os.Getenv("MONSMATICS_LANGUAGE"); lang != "" {
		cfg.Language = lang
	}
	if model := os.Getenv("GEMINI_CHAT_MODEL"); model != "" {
		cfg.Gemini.ChatModel = model
	}
	if model := os.Getenv("GEMINI_IMAGE_MODEL"); model != "" {
		cfg.Gemini.ImageModel = model
	}
	if model := os.Getenv("GEMINI_TTS_MODEL"); model != "" {
		cfg.Gemini.TTSModel = model
	}
	if model := os.Getenv("GEMINI_LIVE_MODEL"); model != "" {
		cfg.Gemini.LiveModel = model
	}
	if model := os.Getenv("GEMINI_EMBEDDING_MODEL"); model != "" {
		cfg.Gemini.EmbeddingModel = model
	}
	if v := os.Getenv("MONSMATICS_RECALL"); v != "" {
		cfg.Recall.Enabled = v == "1" || v == "true"
	}

	if pair := os.Getenv("MONSMATICS_LOCATION"); pair != "" {
		loc, err := ParseLocation(pair)
		if err != nil {
			return fmt.Errorf("MONSMATICS_LOCATION: %w", err)
		}
		cfg.Location = loc
	}
	latStr, lonStr := os.Getenv("MONSMATICS_LAT"), os.Getenv("MONSMATICS_LON")
	if latStr != "" && lonStr != "" {
		lat, err := strconv.ParseFloat(latStr, 64)
		if err != nil {
			return fmt.Errorf("MONSMATICS_LAT: %w", err)
		}
		lon, err := strconv.ParseFloat(lonStr, 64)
		if err != nil {
			return fmt.Errorf("MONSMATICS_LON: %w", err)
		}
		cfg.Location = &Location{Latitude: lat, Longitude: lon}
	}
	return nil
}

func applyDefaults(cfg *Config, configDir string) {
	if cfg.DataDir == "" {
		cfg.DataDir = configDir
	}
	if cfg.Gemini.ChatModel == "" {
		cfg.Gemini.ChatModel = DefaultChatModel
	}
	if cfg.Gemini.ImageModel == "" {
		cfg.Gemini.ImageModel = DefaultImageModel
	}
	if cfg.Gemini.TTSModel == "" {
		cfg.Gemini.TTSModel = DefaultTTSModel
	}
	if cfg.Gemini.LiveModel == "" {
		cfg.Gemini.LiveModel = DefaultLiveModel
	}
	if cfg.Gemini.EmbeddingModel == "" {
		cfg.Gemini.EmbeddingModel = DefaultEmbeddingModel
	}
	if cfg.Gemini.LiveVoice == "" {
		cfg.Gemini.LiveVoice = DefaultLiveVoice
	}
	if cfg.Gemini.TTSVoice == "" {
		cfg.Gemini.TTSVoice = DefaultTTSVoice
	}
	if cfg.Audio.CaptureBlockSize <= 0 {
		cfg.Audio.CaptureBlockSize = CaptureBlockSize
	}
	if cfg.Audio.OutputBufferMS <= 0 {
		cfg.Audio.OutputBufferMS = 100
	}
}

// SaveConfig writes configuration to path (or ~/.monsmatics/config.json when empty).
func SaveConfig(cfg *Config, path string, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}

	if path == "" {
		configDir, err := DefaultConfigDir()
		if err != nil {
			return err
		}
		path = filepath.Join(configDir, "config.json")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config.json: %w", err)
	}

	logger.Info("saved config", zap.String("path", path))
	return nil
}
