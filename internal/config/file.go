package config

import (
	"fmt"
	"os"
	"time"

	"dario.cat/mergo"
	"github.com/pelletier/go-toml/v2"
)

// fileSchema is the on-disk TOML layout. Durations are Go duration strings.
type fileSchema struct {
	Server struct {
		Port           string `toml:"port"`
		DatabaseType   string `toml:"database_type"`
		DatabasePath   string `toml:"database_path"`
		DatabaseURL    string `toml:"database_url"`
		JWTSecret      string `toml:"jwt_secret"`
		TokenTTL       string `toml:"token_ttl"`
		AuthRateLimit  int    `toml:"auth_rate_limit"`
		AuthRateWindow string `toml:"auth_rate_window"`
	} `toml:"server"`
	Email struct {
		AWSRegion string `toml:"aws_region"`
		FromEmail string `toml:"from_email"`
		FromName  string `toml:"from_name"`
	} `toml:"email"`
	Log struct {
		Level  string `toml:"level"`
		Format string `toml:"format"`
	} `toml:"log"`
	Reader struct {
		ServerURL      string `toml:"server_url"`
		GradingURL     string `toml:"grading_url"`
		SettleDelay    string `toml:"settle_delay"`
		LeaveDebounce  string `toml:"leave_debounce"`
		MaxRecording   string `toml:"max_recording"`
		UploadTimeout  string `toml:"upload_timeout"`
		TokenCachePath string `toml:"token_cache_path"`
		ContentPath    string `toml:"content_path"`
		SpeechURL      string `toml:"speech_url"`
		AudioDir       string `toml:"audio_dir"`
	} `toml:"reader"`
}

// LoadFile reads a TOML config file and fills every setting it leaves out
// from the environment defaults of Load. Values in the file win.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes TOML config data and merges it over Load.
func Parse(data []byte) (*Config, error) {
	var file fileSchema
	if err := toml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg, err := file.toConfig()
	if err != nil {
		return nil, err
	}

	env := Load()
	if err := mergo.Merge(cfg, *env); err != nil {
		return nil, fmt.Errorf("failed to merge config: %w", err)
	}
	// Booleans cannot be told apart from unset in the file, so they always
	// come from the environment.
	cfg.FilterDisplayNames = env.FilterDisplayNames
	return cfg, nil
}

func (f fileSchema) toConfig() (*Config, error) {
	cfg := &Config{
		ServerPort:     f.Server.Port,
		DatabaseType:   f.Server.DatabaseType,
		DatabasePath:   f.Server.DatabasePath,
		DatabaseURL:    f.Server.DatabaseURL,
		JWTSecret:      f.Server.JWTSecret,
		AuthRateLimit:  f.Server.AuthRateLimit,
		AWSRegion:      f.Email.AWSRegion,
		SESFromEmail:   f.Email.FromEmail,
		SESFromName:    f.Email.FromName,
		LogLevel:       f.Log.Level,
		LogFormat:      f.Log.Format,
		ServerURL:      f.Reader.ServerURL,
		GradingURL:     f.Reader.GradingURL,
		TokenCachePath: f.Reader.TokenCachePath,
		ContentPath:    f.Reader.ContentPath,
		SpeechURL:      f.Reader.SpeechURL,
		AudioDir:       f.Reader.AudioDir,
	}

	durations := []struct {
		key   string
		value string
		dst   *time.Duration
	}{
		{"server.token_ttl", f.Server.TokenTTL, &cfg.TokenTTL},
		{"server.auth_rate_window", f.Server.AuthRateWindow, &cfg.AuthRateWindow},
		{"reader.settle_delay", f.Reader.SettleDelay, &cfg.SettleDelay},
		{"reader.leave_debounce", f.Reader.LeaveDebounce, &cfg.LeaveDebounce},
		{"reader.max_recording", f.Reader.MaxRecording, &cfg.MaxRecording},
		{"reader.upload_timeout", f.Reader.UploadTimeout, &cfg.UploadTimeout},
	}
	for _, d := range durations {
		if d.value == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.value)
		if err != nil {
			return nil, fmt.Errorf("invalid duration for %s: %w", d.key, err)
		}
		*d.dst = parsed
	}

	return cfg, nil
}
