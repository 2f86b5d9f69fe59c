package config

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"LISTEN_ADDR", "DB_PATH", "LOG_LEVEL", "MODEL_DIRECTORY", "MODEL_SCAN_INTERVAL",
		"WATCH_MODELS", "WORK_ROOT", "PDFLATEX_PATH", "LATEX_TEMPLATE",
		"RESULTS_EMAIL_SUBJECT", "FAILURE_EMAIL_SUBJECT",
	} {
		t.Setenv(envPrefix+"_"+key, "")
		os.Unsetenv(envPrefix + "_" + key)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.ListenAddr != defaultListenAddr {
		t.Errorf("ListenAddr = %q, want %q", cfg.ListenAddr, defaultListenAddr)
	}
	if cfg.DBPath != defaultDBPath {
		t.Errorf("DBPath = %q, want %q", cfg.DBPath, defaultDBPath)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Errorf("LogLevel = %v, want %v", cfg.LogLevel, slog.LevelInfo)
	}
	if cfg.ModelDirectory != defaultModelDirectory {
		t.Errorf("ModelDirectory = %q, want %q", cfg.ModelDirectory, defaultModelDirectory)
	}
	if cfg.ModelScanInterval != 60*time.Second {
		t.Errorf("ModelScanInterval = %v, want 60s", cfg.ModelScanInterval)
	}
	if cfg.WatchModels {
		t.Error("WatchModels = true, want false")
	}
	if cfg.WorkRoot != filepath.Join(os.TempDir(), "modeld") {
		t.Errorf("WorkRoot = %q", cfg.WorkRoot)
	}
	if cfg.PdflatexPath != defaultPdflatexPath {
		t.Errorf("PdflatexPath = %q, want %q", cfg.PdflatexPath, defaultPdflatexPath)
	}
	if cfg.LatexTemplate != "" || cfg.ResultsEmailSubject != "" {
		t.Errorf("expected empty template and subject, got %q and %q", cfg.LatexTemplate, cfg.ResultsEmailSubject)
	}
}

func TestLoadFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("MODELD_LISTEN_ADDR", ":9090")
	t.Setenv("MODELD_DB_PATH", "/tmp/test.db")
	t.Setenv("MODELD_LOG_LEVEL", "debug")
	t.Setenv("MODELD_MODEL_SCAN_INTERVAL", "5")
	t.Setenv("MODELD_WATCH_MODELS", "true")
	t.Setenv("MODELD_RESULTS_EMAIL_SUBJECT", "Your results")

	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.ListenAddr != ":9090" {
		t.Errorf("ListenAddr = %q, want %q", cfg.ListenAddr, ":9090")
	}
	if cfg.DBPath != "/tmp/test.db" {
		t.Errorf("DBPath = %q, want %q", cfg.DBPath, "/tmp/test.db")
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Errorf("LogLevel = %v, want %v", cfg.LogLevel, slog.LevelDebug)
	}
	if cfg.ModelScanInterval != 5*time.Second {
		t.Errorf("ModelScanInterval = %v, want 5s", cfg.ModelScanInterval)
	}
	if !cfg.WatchModels {
		t.Error("WatchModels = false, want true")
	}
	if cfg.ResultsEmailSubject != "Your results" {
		t.Errorf("ResultsEmailSubject = %q", cfg.ResultsEmailSubject)
	}
}

func TestLoadFromFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "modeld.yaml")
	content := strings.Join([]string{
		"model_directory: /srv/models",
		"model_scan_interval: 30",
		"latex_template: /etc/modeld/results.tex",
		"failure_email_subject: Run failed",
		"",
	}, "\n")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load([]string{"--config", path})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.ModelDirectory != "/srv/models" {
		t.Errorf("ModelDirectory = %q", cfg.ModelDirectory)
	}
	if cfg.ModelScanInterval != 30*time.Second {
		t.Errorf("ModelScanInterval = %v, want 30s", cfg.ModelScanInterval)
	}
	if cfg.LatexTemplate != "/etc/modeld/results.tex" {
		t.Errorf("LatexTemplate = %q", cfg.LatexTemplate)
	}
	if cfg.FailureEmailSubject != "Run failed" {
		t.Errorf("FailureEmailSubject = %q", cfg.FailureEmailSubject)
	}
	if cfg.ListenAddr != defaultListenAddr {
		t.Errorf("ListenAddr = %q, want the default", cfg.ListenAddr)
	}
}

func TestLoadPrecedence(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "modeld.yaml")
	if err := os.WriteFile(path, []byte("listen_addr: \":7000\"\ndb_path: file.db\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("MODELD_LISTEN_ADDR", ":8000")

	cfg, err := Load([]string{"--config", path, "--listen-addr", ":9000"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != ":9000" {
		t.Errorf("ListenAddr = %q, want the flag value :9000", cfg.ListenAddr)
	}
	if cfg.DBPath != "file.db" {
		t.Errorf("DBPath = %q, want the file value", cfg.DBPath)
	}

	cfg, err = Load([]string{"--config", path})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != ":8000" {
		t.Errorf("ListenAddr = %q, want the env value :8000", cfg.ListenAddr)
	}
}

func TestLoadErrors(t *testing.T) {
	clearEnv(t)

	tests := []struct {
		name string
		args []string
	}{
		{"zero interval", []string{"--model-scan-interval", "0"}},
		{"negative interval", []string{"--model-scan-interval", "-5"}},
		{"empty model directory", []string{"--model-directory", ""}},
		{"missing config file", []string{"--config", filepath.Join(t.TempDir(), "absent.yaml")}},
		{"unknown flag", []string{"--bogus"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(tt.args); err == nil {
				t.Errorf("Load(%v) succeeded, want an error", tt.args)
			}
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"invalid", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		got := parseLogLevel(tt.input)
		if got != tt.want {
			t.Errorf("parseLogLevel(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestNewLoggerOutputsJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, slog.LevelInfo)
	if logger == nil {
		t.Fatal("NewLogger returned nil")
	}

	logger.Info("test message", "key", "value")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("logger output is not valid JSON: %v\noutput: %s", err, buf.String())
	}

	for _, key := range []string{"time", "level", "msg"} {
		if _, ok := entry[key]; !ok {
			t.Errorf("JSON output missing expected key %q", key)
		}
	}
	if entry["msg"] != "test message" {
		t.Errorf("msg = %v, want %q", entry["msg"], "test message")
	}
}
