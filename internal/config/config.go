// Package config loads the node's typed configuration from a HuJSON
// (JSON-with-comments) file, then applies command-line overrides,
// mirroring the load-then-override shape of agent-task's config.go.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"
	"github.com/tailscale/hujson"
)

// Config is the full set of options recognized by the node (spec §6).
type Config struct {
	DataDir                   string  `json:"data_dir"`
	SlabCapacity              int64   `json:"slab_capacity"`
	CompactLiveRatioThreshold float64 `json:"compact_live_ratio_threshold"`
	CompactMinAgeSeconds      int64   `json:"compact_min_age_seconds"`
	HTTPListen                string  `json:"http_listen"`
	RPCListen                 string  `json:"rpc_listen"`
	VerifyOnRead              bool    `json:"verify_on_read"`
	DefaultCompression        string  `json:"default_compression"`
}

// CompactMinAge is CompactMinAgeSeconds as a time.Duration.
func (c Config) CompactMinAge() time.Duration {
	return time.Duration(c.CompactMinAgeSeconds) * time.Second
}

// Default returns the documented defaults (spec §6).
func Default() Config {
	return Config{
		DataDir:                   "data",
		SlabCapacity:              256 << 20,
		CompactLiveRatioThreshold: 0.5,
		CompactMinAgeSeconds:      60,
		HTTPListen:                ":8080",
		RPCListen:                 ":8081",
		VerifyOnRead:              false,
		DefaultCompression:        "none",
	}
}

// Load reads path (if non-empty and it exists) as HuJSON, overlays it
// onto the defaults, then applies any flags the caller set on fs.
func Load(path string, fs *pflag.FlagSet) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return Config{}, fmt.Errorf("config: read %s: %w", path, err)
			}
		} else {
			fileCfg, err := parse(data)
			if err != nil {
				return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
			}
			cfg = merge(cfg, fileCfg)
		}
	}

	if fs != nil {
		applyFlags(&cfg, fs)
	}
	return cfg, nil
}

func parse(data []byte) (Config, error) {
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Config{}, fmt.Errorf("invalid JSONC: %w", err)
	}
	var cfg Config
	if err := json.Unmarshal(standardized, &cfg); err != nil {
		return Config{}, fmt.Errorf("invalid JSON: %w", err)
	}
	return cfg, nil
}

// merge overlays any field overlay sets onto base; a zero-valued field in
// overlay means "not set in the file", so base's default survives.
func merge(base, overlay Config) Config {
	if overlay.DataDir != "" {
		base.DataDir = overlay.DataDir
	}
	if overlay.SlabCapacity != 0 {
		base.SlabCapacity = overlay.SlabCapacity
	}
	if overlay.CompactLiveRatioThreshold != 0 {
		base.CompactLiveRatioThreshold = overlay.CompactLiveRatioThreshold
	}
	if overlay.CompactMinAgeSeconds != 0 {
		base.CompactMinAgeSeconds = overlay.CompactMinAgeSeconds
	}
	if overlay.HTTPListen != "" {
		base.HTTPListen = overlay.HTTPListen
	}
	if overlay.RPCListen != "" {
		base.RPCListen = overlay.RPCListen
	}
	base.VerifyOnRead = base.VerifyOnRead || overlay.VerifyOnRead
	if overlay.DefaultCompression != "" {
		base.DefaultCompression = overlay.DefaultCompression
	}
	return base
}

// RegisterFlags installs pflag overrides for every config field onto fs.
// Flags left at their zero value do not override the loaded config (see
// applyFlags).
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("data-dir", "", "slab directory")
	fs.Int64("slab-capacity", 0, "slab capacity in bytes")
	fs.Float64("compact-live-ratio-threshold", 0, "compaction victim live-ratio threshold")
	fs.Int64("compact-min-age-seconds", 0, "minimum slab age before compaction eligibility")
	fs.String("http-listen", "", "HTTP listen address")
	fs.String("rpc-listen", "", "gRPC listen address")
	fs.Bool("verify-on-read", false, "re-verify payload hash on every read")
	fs.String("default-compression", "", "default compression codec (none|lz4)")
}

func applyFlags(cfg *Config, fs *pflag.FlagSet) {
	if v, err := fs.GetString("data-dir"); err == nil && v != "" {
		cfg.DataDir = v
	}
	if v, err := fs.GetInt64("slab-capacity"); err == nil && v != 0 {
		cfg.SlabCapacity = v
	}
	if v, err := fs.GetFloat64("compact-live-ratio-threshold"); err == nil && v != 0 {
		cfg.CompactLiveRatioThreshold = v
	}
	if v, err := fs.GetInt64("compact-min-age-seconds"); err == nil && v != 0 {
		cfg.CompactMinAgeSeconds = v
	}
	if v, err := fs.GetString("http-listen"); err == nil && v != "" {
		cfg.HTTPListen = v
	}
	if v, err := fs.GetString("rpc-listen"); err == nil && v != "" {
		cfg.RPCListen = v
	}
	if v, err := fs.GetBool("verify-on-read"); err == nil && v {
		cfg.VerifyOnRead = v
	}
	if v, err := fs.GetString("default-compression"); err == nil && v != "" {
		cfg.DefaultCompression = v
	}
}
