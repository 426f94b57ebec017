package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// fileConfig mirrors the YAML schema of clubnorte.yaml. Durations are kept
// as strings and parsed by the getters so env overrides share one parser.
type fileConfig struct {
	App struct {
		Name     string `yaml:"name"`
		Env      string `yaml:"env"`
		LogLevel string `yaml:"log_level"`
	} `yaml:"app"`
	API struct {
		BaseURL   string `yaml:"base_url"`
		Timeout   string `yaml:"timeout"`
		UserAgent string `yaml:"user_agent"`
	} `yaml:"api"`
	Storage struct {
		Driver   string `yaml:"driver"`
		Path     string `yaml:"path"`
		RedisURL string `yaml:"redis_url"`
	} `yaml:"storage"`
	Query struct {
		StaleTime string `yaml:"stale_time"`
	} `yaml:"query"`
	FakeAPI struct {
		Addr   string `yaml:"addr"`
		Secret string `yaml:"secret"`
	} `yaml:"fake_api"`
}

func readFile(path string) (fileConfig, error) {
	var file fileConfig
	raw, err := os.ReadFile(path)
	if err != nil {
		return file, fmt.Errorf("read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return file, fmt.Errorf("parse config file %s: %w", path, err)
	}
	return file, nil
}
