package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// MonitorBlock is one `sentinel monitor <name> <ip> <port> <quorum>`
// entry plus its `sentinel down-after-milliseconds <name> <ms>`
// companion, flattened into a single record (spec.md §6 "Sentinel has
// its own config with port, ip, and one or more sentinel monitor
// blocks").
type MonitorBlock struct {
	Name            string `yaml:"name"`
	Host            string `yaml:"host"`
	Port            int    `yaml:"port"`
	Quorum          int    `yaml:"quorum"`
	DownAfterMillis int    `yaml:"down-after-milliseconds"`
}

// SentinelConfig is the Sentinel binary's recognized key set,
// adapted from the teacher's server.SentinelConfig fields onto the
// YAML monitor-block representation spec.md §6 describes.
type SentinelConfig struct {
	IP   string `yaml:"ip"`
	Port int    `yaml:"port"`

	Monitors  []MonitorBlock `yaml:"monitors"`
	PeerAddrs []string       `yaml:"sentinels"`
}

func DefaultSentinelConfig() *SentinelConfig {
	return &SentinelConfig{
		IP:   "0.0.0.0",
		Port: 26379,
		Monitors: []MonitorBlock{
			{Name: "mymaster", Host: "127.0.0.1", Port: 6379, Quorum: 2, DownAfterMillis: 30000},
		},
	}
}

func LoadSentinelConfig(path string) (*SentinelConfig, error) {
	cfg := DefaultSentinelConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sentinel config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse sentinel config %s: %w", path, err)
	}
	return cfg, nil
}
