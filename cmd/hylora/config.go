package main

import (
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

// Config represents the hylora configuration file
// (~/.config/hylora/config.yaml). Pointer fields distinguish "not set" from
// zero values.
type Config struct {
	LoraDir         string   `yaml:"lora_dir"`
	DefaultStrength *float64 `yaml:"default_strength"`
	LogLevel        string   `yaml:"log_level"`
	LogFormat       string   `yaml:"log_format"`
	ServerAddress   string   `yaml:"server_address"`
}

func configPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "hylora", "config.yaml")
}

// LoadConfig reads the config file. Returns a zero Config if the file
// doesn't exist or doesn't parse.
func LoadConfig() Config {
	path := configPath()
	if path == "" {
		return Config{}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}
	}
	return cfg
}

// applyCommonConfig fills in shared flag variables from the config file
// when the corresponding CLI flag was not explicitly set.
func applyCommonConfig(c *cli.Command, cfg Config) {
	if cfg.LoraDir != "" && !c.IsSet("lora-dir") {
		loraDir = cfg.LoraDir
	}
	if cfg.LogLevel != "" && !c.IsSet("log-level") {
		logLevel = cfg.LogLevel
	}
	if cfg.LogFormat != "" && !c.IsSet("log-format") {
		logFormat = cfg.LogFormat
	}
}

// applyApplyConfig applies config defaults to the apply command.
func applyApplyConfig(c *cli.Command, cfg Config, strength *float64) {
	applyCommonConfig(c, cfg)
	if cfg.DefaultStrength != nil && !c.IsSet("strength") {
		*strength = *cfg.DefaultStrength
	}
}

// applyServeConfig applies config defaults to the serve command.
func applyServeConfig(c *cli.Command, cfg Config, addr *string) {
	applyCommonConfig(c, cfg)
	if cfg.ServerAddress != "" && !c.IsSet("addr") {
		*addr = cfg.ServerAddress
	}
}
