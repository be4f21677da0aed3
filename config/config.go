// Package config reads the server configuration from a TOML file.
package config

import (
	"fmt"
	"time"

	"code.cloudfoundry.org/bytefmt"
	"github.com/BurntSushi/toml"
)

// Backends are the supported image backends.
var Backends = []string{"vips", "imaging"}

// Config stores the IIIF server configuration.
type Config struct {
	Host    string        `toml:"host"`
	Port    int           `toml:"port"`
	Level   string        `toml:"level"`
	Prefix  string        `toml:"prefix"`
	BaseURL string        `toml:"base_url"`
	Images  string        `toml:"images"`
	Backend string        `toml:"backend"`
	Workers int           `toml:"workers"`
	Quality int           `toml:"quality"`
	Cache   CacheConfig   `toml:"cache"`
	Remote  *RemoteConfig `toml:"remote"`
}

// CacheConfig represents the configuration information regarding the cache.
type CacheConfig struct {
	// HTTP is the max-age of the responses, in seconds.
	HTTP   int64  `toml:"http"`
	Memory string `toml:"memory"`
	Disk   string `toml:"disk"`
	// Info is the number of image dimensions kept for info.json.
	Info       int   `toml:"info"`
	MemorySize int64 `toml:"-"`
}

// RemoteConfig is the origin the missing images are fetched from.
type RemoteConfig struct {
	BaseURL string   `toml:"base_url"`
	Proxy   string   `toml:"proxy"`
	Timeout Duration `toml:"timeout"`
	// Rate is the number of downloads per second, 0 is unlimited.
	Rate  float64 `toml:"rate"`
	Burst int     `toml:"burst"`
}

// Duration reads "30s" like values.
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Host:    "0.0.0.0",
		Port:    8080,
		Level:   "info",
		Prefix:  "/iiif/3",
		BaseURL: "http://localhost:8080/iiif/3/",
		Images:  "./images",
		Backend: "vips",
		Cache: CacheConfig{
			HTTP:   3600,
			Memory: "512MB",
			Disk:   "./cache",
			Info:   1024,
		},
	}
}

// Load reads the file over the defaults.
func Load(path string) (*Config, error) {
	c := Default()
	if _, err := toml.DecodeFile(path, c); err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	if err := c.Init(); err != nil {
		return nil, fmt.Errorf("invalid configuration %s: %w", path, err)
	}

	return c, nil
}

// Init validates the values and computes the derived ones.
func (c *Config) Init() error {
	size, err := bytefmt.ToBytes(c.Cache.Memory)
	if err != nil {
		return fmt.Errorf("cache.memory %#v: %w", c.Cache.Memory, err)
	}
	c.Cache.MemorySize = int64(size)

	known := false
	for _, b := range Backends {
		known = known || b == c.Backend
	}
	if !known {
		return fmt.Errorf("unknown backend %#v, expected one of %v", c.Backend, Backends)
	}

	if c.Remote != nil {
		if c.Remote.BaseURL == "" {
			return fmt.Errorf("remote.base_url is missing")
		}
		if c.Remote.Proxy == "" {
			c.Remote.Proxy = "./proxy"
		}
		if c.Remote.Timeout.Duration == 0 {
			c.Remote.Timeout.Duration = 30 * time.Second
		}
	}

	return nil
}

// Listen is the address to bind.
func (c *Config) Listen() string {
	return fmt.Sprintf("%v:%v", c.Host, c.Port)
}
