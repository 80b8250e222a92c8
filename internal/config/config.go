// Package config loads the YAML configuration recognized by both the
// server and Sentinel binaries (C10). Grounded on the YAML-config
// style common to the pack's closer Redis-shaped repos rather than the
// teacher's own flag-only cmd/server/main.go: the teacher hard-codes a
// Config literal in main() and exposes no file format at all, so the
// struct shape here is adapted from its internal/server.Config/
// SentinelConfig fields while the loading mechanism itself is new.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the server's recognized key set, exactly spec.md §6's
// table plus `databases` (spec.md §4.2's "default 16").
type Config struct {
	IP   string `yaml:"ip"`
	Port int    `yaml:"port"`

	Engine    string `yaml:"engine"`
	Databases int    `yaml:"databases"`

	Maxmemory        int64  `yaml:"maxmemory"`
	MaxmemoryPolicy  string `yaml:"maxmemory-policy"`
	MaxmemorySamples int    `yaml:"maxmemory-samples"`

	Save []SavePoint `yaml:"save"`

	AppendOnly   bool   `yaml:"appendonly"`
	AppendFsync  string `yaml:"appendfsync"`
	AOFPath      string `yaml:"aof-path"`
	RDBPath      string `yaml:"rdb-path"`

	ReplTimeout     Duration `yaml:"repl-timeout"`
	ReplPingPeriod  Duration `yaml:"repl-ping-period"`
	ReplBacklogSize int      `yaml:"repl-backlog-size"`

	SlaveOf string `yaml:"slaveof"`

	SlowlogLogSlowerThan Duration `yaml:"slowlog-log-slower-than"`
	SlowlogMaxLen        int      `yaml:"slowlog-max-len"`
}

// Duration accepts either a Go duration string ("30s", "1m") or a bare
// number of seconds in YAML, since plain yaml.v3 has no built-in
// time.Duration support (it would otherwise try to decode "30s" as an
// int64 and fail).
type Duration time.Duration

func (d Duration) String() string { return time.Duration(d).String() }

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var asString string
	if err := value.Decode(&asString); err == nil {
		parsed, err := time.ParseDuration(asString)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", asString, err)
		}
		*d = Duration(parsed)
		return nil
	}
	var seconds int64
	if err := value.Decode(&seconds); err != nil {
		return fmt.Errorf("duration must be a string like \"30s\" or a number of seconds: %w", err)
	}
	*d = Duration(seconds) * Duration(time.Second)
	return nil
}

// SavePoint is one entry of the `save <seconds> <changes>` table
// (spec.md §4.5/§6), parsed from a two-element YAML sequence.
type SavePoint struct {
	Seconds int
	Changes int
}

func (s *SavePoint) UnmarshalYAML(value *yaml.Node) error {
	var pair [2]int
	if err := value.Decode(&pair); err != nil {
		return fmt.Errorf("save point must be [seconds, changes]: %w", err)
	}
	s.Seconds, s.Changes = pair[0], pair[1]
	return nil
}

// DefaultConfig mirrors the teacher's server.DefaultConfig defaults
// translated onto spec.md §6's key names.
func DefaultConfig() *Config {
	return &Config{
		IP:   "0.0.0.0",
		Port: 6379,

		Engine:    "default",
		Databases: 16,

		Maxmemory:        0,
		MaxmemoryPolicy:  "noeviction",
		MaxmemorySamples: 5,

		Save: []SavePoint{{Seconds: 60, Changes: 1000}, {Seconds: 300, Changes: 100}},

		AppendOnly:  false,
		AppendFsync: "everysec",
		AOFPath:     "appendonly.aof",
		RDBPath:     "dump.rdb",

		ReplTimeout:     Duration(60 * time.Second),
		ReplPingPeriod:  Duration(10 * time.Second),
		ReplBacklogSize: 1 << 20,

		SlowlogLogSlowerThan: Duration(10 * time.Millisecond),
		SlowlogMaxLen:        128,
	}
}

// Load reads path and decodes it over DefaultConfig, so an omitted
// file (path == "") or a partial one still yields sane values
// (spec.md §6 "the server binary's sole CLI argument is the path to
// this file").
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}
