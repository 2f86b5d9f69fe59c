package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	defaultListenAddr        = ":8080"
	defaultDBPath            = "modeld.db"
	defaultLogLevel          = "info"
	defaultModelDirectory    = "models"
	defaultModelScanInterval = 60
	defaultPdflatexPath      = "pdflatex"

	envPrefix = "MODELD"
)

// Config holds application configuration. Values come from, in increasing
// precedence: defaults, an optional config file, MODELD_* environment
// variables and command line flags.
type Config struct {
	ListenAddr        string
	DBPath            string
	LogLevel          slog.Level
	ModelDirectory    string
	ModelScanInterval time.Duration
	WatchModels       bool
	WorkRoot          string
	PdflatexPath      string
	LatexTemplate     string

	ResultsEmailSubject string
	ResultsEmailBody    string
	FailureEmailSubject string
	FailureEmailBody    string
}

// fileConfig mirrors the config keys for viper.Unmarshal.
type fileConfig struct {
	ListenAddr          string `mapstructure:"listen_addr"`
	DBPath              string `mapstructure:"db_path"`
	LogLevel            string `mapstructure:"log_level"`
	ModelDirectory      string `mapstructure:"model_directory"`
	ModelScanInterval   int    `mapstructure:"model_scan_interval"`
	WatchModels         bool   `mapstructure:"watch_models"`
	WorkRoot            string `mapstructure:"work_root"`
	PdflatexPath        string `mapstructure:"pdflatex_path"`
	LatexTemplate       string `mapstructure:"latex_template"`
	ResultsEmailSubject string `mapstructure:"results_email_subject"`
	ResultsEmailBody    string `mapstructure:"results_email_body"`
	FailureEmailSubject string `mapstructure:"failure_email_subject"`
	FailureEmailBody    string `mapstructure:"failure_email_body"`
}

// flagKeys maps command line flags to config keys.
var flagKeys = map[string]string{
	"listen-addr":         "listen_addr",
	"db-path":             "db_path",
	"log-level":           "log_level",
	"model-directory":     "model_directory",
	"model-scan-interval": "model_scan_interval",
	"watch-models":        "watch_models",
	"work-root":           "work_root",
	"pdflatex-path":       "pdflatex_path",
	"latex-template":      "latex_template",
}

// NewFlagSet returns the command line flags understood by Load.
func NewFlagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.String("config", "", "path to a YAML config file")
	fs.String("listen-addr", defaultListenAddr, "HTTP listen address")
	fs.String("db-path", defaultDBPath, "SQLite database path")
	fs.String("log-level", defaultLogLevel, "log level (debug, info, warn, error)")
	fs.String("model-directory", defaultModelDirectory, "directory scanned for model plugins")
	fs.Int("model-scan-interval", defaultModelScanInterval, "seconds between model directory scans")
	fs.Bool("watch-models", false, "rescan the model directory when it changes")
	fs.String("work-root", filepath.Join(os.TempDir(), "modeld"), "directory for task working directories")
	fs.String("pdflatex-path", defaultPdflatexPath, "pdflatex binary")
	fs.String("latex-template", "", "LaTeX results template; empty uses the built-in one")
	return fs
}

// Load parses args with NewFlagSet and resolves the configuration.
func Load(args []string) (Config, error) {
	fs := NewFlagSet("modeld")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return FromFlags(fs)
}

// FromFlags resolves the configuration from a parsed flag set built by
// NewFlagSet.
func FromFlags(fs *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	for _, key := range []string{
		"results_email_subject", "results_email_body",
		"failure_email_subject", "failure_email_body",
	} {
		v.SetDefault(key, "")
	}
	for name, key := range flagKeys {
		if err := v.BindPFlag(key, fs.Lookup(name)); err != nil {
			return Config{}, fmt.Errorf("bind flag %s: %w", name, err)
		}
	}

	if path, _ := fs.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var fc fileConfig
	if err := v.Unmarshal(&fc); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if fc.ModelScanInterval <= 0 {
		return Config{}, fmt.Errorf("model_scan_interval must be positive, got %d", fc.ModelScanInterval)
	}
	if fc.ModelDirectory == "" {
		return Config{}, errors.New("model_directory is required")
	}

	return Config{
		ListenAddr:          fc.ListenAddr,
		DBPath:              fc.DBPath,
		LogLevel:            parseLogLevel(fc.LogLevel),
		ModelDirectory:      fc.ModelDirectory,
		ModelScanInterval:   time.Duration(fc.ModelScanInterval) * time.Second,
		WatchModels:         fc.WatchModels,
		WorkRoot:            fc.WorkRoot,
		PdflatexPath:        fc.PdflatexPath,
		LatexTemplate:       fc.LatexTemplate,
		ResultsEmailSubject: fc.ResultsEmailSubject,
		ResultsEmailBody:    fc.ResultsEmailBody,
		FailureEmailSubject: fc.FailureEmailSubject,
		FailureEmailBody:    fc.FailureEmailBody,
	}, nil
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a structured JSON logger writing to w at the configured level.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}
