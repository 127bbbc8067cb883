// Package config loads a cache layout from YAML.
//
// Example:
//
//	capacity: 10000
//	backend: pooled
//	default_args:
//	  ttl: 5m
//	expiration:
//	  type: proactive
//	  sliding: true
//	  gc: {type: bucket, width: 1s}
//	eviction: [lru, dependency]
//	sets:
//	  sessions:
//	    expiration: {type: reactive}
//	    eviction:
//	      - {type: slru, protected: 800}
//
// The top-level expiration/eviction pair is the "default" policy set; sets
// adds named ones for keyed caches. Files ending in .toml are read as TOML
// with the same keys:
//
//	capacity = 10000
//	eviction = ["lru", "dependency"]
//
//	[expiration]
//	type = "reactive"
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// ErrInvalid is wrapped by every validation error.
var ErrInvalid = errors.New("config: invalid")

// Duration is a time.Duration written as a Go duration string ("30s", "5m").
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(n *yaml.Node) error {
	var s string
	if err := n.Decode(&s); err != nil {
		return err
	}
	if s == "" {
		*d = 0
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", n.Line, err)
	}
	*d = Duration(v)
	return nil
}

// UnmarshalText implements encoding.TextUnmarshaler (TOML strings).
func (d *Duration) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*d = 0
		return nil
	}
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Config is the root document.
type Config struct {
	Capacity    int    `yaml:"capacity" toml:"capacity"`
	Backend     string `yaml:"backend" toml:"backend"` // map (default) | pooled
	DefaultArgs Args   `yaml:"default_args" toml:"default_args"`

	PolicySet `yaml:",inline"`

	Sets map[string]PolicySet `yaml:"sets" toml:"sets"`
}

// Args mirrors policy.Args without dependencies, which are per key.
type Args struct {
	TTL      Duration `yaml:"ttl" toml:"ttl"`
	Priority int      `yaml:"priority" toml:"priority"`
	Cost     float64  `yaml:"cost" toml:"cost"`
	Size     float64  `yaml:"size" toml:"size"`
}

// PolicySet is one ordered policy list: the expiration policy, then the
// eviction policies in order.
type PolicySet struct {
	Expiration *Expiration `yaml:"expiration" toml:"expiration"`
	Eviction   []Eviction  `yaml:"eviction" toml:"eviction"`
}

// Expiration selects the expiration policy.
type Expiration struct {
	Type    string `yaml:"type" toml:"type"` // none | reactive | proactive
	Sliding bool   `yaml:"sliding" toml:"sliding"`
	GC      *GC    `yaml:"gc" toml:"gc"`
}

// GC selects the collector of a proactive policy.
type GC struct {
	Type   string   `yaml:"type" toml:"type"`     // heap (default) | bucket | interval
	Width  Duration `yaml:"width" toml:"width"`   // bucket
	Period Duration `yaml:"period" toml:"period"` // interval
}

// Eviction is one eviction policy. A bare string is shorthand for {type: ...}.
type Eviction struct {
	Type      string `yaml:"type" toml:"type"` // lru | slru | lfu | lfuda | gdsf | priority | dependency
	Protected int    `yaml:"protected" toml:"protected"`
}

// UnmarshalText accepts the TOML string shorthand. In TOML, policies with
// parameters are written as [[eviction]] tables, not inline tables.
func (e *Eviction) UnmarshalText(b []byte) error {
	e.Type = string(b)
	return nil
}

// UnmarshalYAML accepts a scalar type name or a mapping.
func (e *Eviction) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind == yaml.ScalarNode {
		e.Type = n.Value
		return nil
	}
	type plain Eviction
	return n.Decode((*plain)(e))
}

// Load reads and validates the file at path, as TOML when it ends in .toml
// and as YAML otherwise.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config file path is empty")
	}
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return ParseTOML(data)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML document. Unknown fields are rejected.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ParseTOML is Parse for TOML documents.
func ParseTOML(data []byte) (*Config, error) {
	var cfg Config
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse TOML config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks types and numeric ranges. Policy combinations (for example
// a bounded cache without any eviction policy) are checked by the cache
// constructor.
func (c *Config) Validate() error {
	if c.Capacity < 0 {
		return fmt.Errorf("%w: capacity %d < 0", ErrInvalid, c.Capacity)
	}
	switch c.Backend {
	case "", "map", "pooled":
	default:
		return fmt.Errorf("%w: backend %q", ErrInvalid, c.Backend)
	}
	if c.DefaultArgs.TTL < 0 {
		return fmt.Errorf("%w: default_args.ttl %v < 0", ErrInvalid, time.Duration(c.DefaultArgs.TTL))
	}
	if err := c.PolicySet.validate("default"); err != nil {
		return err
	}
	for _, name := range c.SetNames() {
		if name == "default" {
			return fmt.Errorf("%w: set name %q is reserved", ErrInvalid, name)
		}
		if err := c.Sets[name].validate(name); err != nil {
			return err
		}
	}
	return nil
}

// SetNames returns the named sets in sorted order.
func (c *Config) SetNames() []string {
	names := make([]string, 0, len(c.Sets))
	for name := range c.Sets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s PolicySet) validate(set string) error {
	if e := s.Expiration; e != nil {
		switch e.Type {
		case "none", "reactive":
			if e.GC != nil {
				return fmt.Errorf("%w: set %q: gc is only valid for proactive expiration", ErrInvalid, set)
			}
		case "proactive":
			if err := e.GC.validate(set); err != nil {
				return err
			}
		default:
			return fmt.Errorf("%w: set %q: expiration type %q", ErrInvalid, set, e.Type)
		}
	}
	for i, ev := range s.Eviction {
		switch ev.Type {
		case "lru", "lfu", "lfuda", "gdsf", "priority", "dependency":
			if ev.Protected != 0 {
				return fmt.Errorf("%w: set %q: eviction[%d]: protected is only valid for slru", ErrInvalid, set, i)
			}
		case "slru":
			if ev.Protected < 0 {
				return fmt.Errorf("%w: set %q: eviction[%d]: protected %d < 0", ErrInvalid, set, i, ev.Protected)
			}
		default:
			return fmt.Errorf("%w: set %q: eviction[%d]: type %q", ErrInvalid, set, i, ev.Type)
		}
	}
	return nil
}

func (g *GC) validate(set string) error {
	if g == nil {
		return nil
	}
	switch g.Type {
	case "", "heap":
	case "bucket":
		if g.Width <= 0 {
			return fmt.Errorf("%w: set %q: bucket gc needs a positive width", ErrInvalid, set)
		}
	case "interval":
		if g.Period <= 0 {
			return fmt.Errorf("%w: set %q: interval gc needs a positive period", ErrInvalid, set)
		}
	default:
		return fmt.Errorf("%w: set %q: gc type %q", ErrInvalid, set, g.Type)
	}
	return nil
}
