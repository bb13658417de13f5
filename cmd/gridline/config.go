package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"github.com/javajack/gridline"
)

// Config is the optional YAML configuration file.
//
//	max_undo: 100
//	max_range_cells: 1000000
//	log_level: info
//	functions: [finance.yaml]
//	csv:
//	  comma: ";"
//	  charset: windows-1252
type Config struct {
	MaxUndo       int       `yaml:"max_undo"`
	MaxRangeCells int       `yaml:"max_range_cells"`
	LogLevel      string    `yaml:"log_level"`
	Functions     []string  `yaml:"functions"`
	CSV           CSVConfig `yaml:"csv"`
}

// CSVConfig configures CSV import and export.
type CSVConfig struct {
	Comma   string `yaml:"comma"`
	Charset string `yaml:"charset"`
}

func defaultConfig() Config {
	return Config{
		MaxUndo:       gridline.DefaultMaxUndo,
		MaxRangeCells: gridline.DefaultMaxRangeCells,
		LogLevel:      "warn",
		CSV:           CSVConfig{Comma: ",", Charset: "utf-8"},
	}
}

// loadConfig reads path over the defaults. A missing file is not an error
// unless required is set.
func loadConfig(path string, required bool) (Config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) && !required {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

func (c Config) documentOptions(logger *slog.Logger) []gridline.Option {
	return []gridline.Option{
		gridline.WithLogger(logger),
		gridline.WithMaxUndo(c.MaxUndo),
		gridline.WithMaxRangeCells(c.MaxRangeCells),
	}
}

func (c Config) csvOptions() (gridline.CSVOptions, error) {
	var opts gridline.CSVOptions
	switch {
	case c.CSV.Comma == "":
	case c.CSV.Comma == `\t`:
		opts.Comma = '\t'
	case utf8.RuneCountInString(c.CSV.Comma) == 1:
		opts.Comma, _ = utf8.DecodeRuneInString(c.CSV.Comma)
	default:
		return opts, fmt.Errorf("csv comma %q must be a single character", c.CSV.Comma)
	}
	enc, err := gridline.LookupCharset(c.CSV.Charset)
	if err != nil {
		return opts, err
	}
	opts.Encoding = enc
	return opts, nil
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return level, fmt.Errorf("log level %q: %w", s, err)
	}
	return level, nil
}

func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}
