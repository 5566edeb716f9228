// Package config loads the walkthrough CLI configuration from a JSON5 file
// with environment overrides.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/titanous/json5"

	"github.com/nextlevelbuilder/walkthrough/pkg/dom"
)

// Environment variables.
const (
	EnvConfig       = "WALKTHROUGH_CONFIG"
	EnvHeadless     = "WALKTHROUGH_HEADLESS"
	EnvGatewayToken = "WALKTHROUGH_GATEWAY_TOKEN"
	EnvBrowserBin   = "WALKTHROUGH_BROWSER_BIN"
)

// Config is the root configuration.
type Config struct {
	Browser   BrowserConfig   `json:"browser"`
	Resolve   ResolveConfig   `json:"resolve"`
	Overlay   OverlayConfig   `json:"overlay"`
	Notify    NotifyConfig    `json:"notify"`
	Gateway   GatewayConfig   `json:"gateway"`
	Telemetry TelemetryConfig `json:"telemetry"`
}

// BrowserConfig controls the Chrome instance driven through CDP.
type BrowserConfig struct {
	Headless bool   `json:"headless"`
	Bin      string `json:"bin,omitempty"` // empty = let rod find or download one
	Width    int    `json:"width"`
	Height   int    `json:"height"`
}

// ResolveConfig bounds target polling.
type ResolveConfig struct {
	TimeoutMs  int `json:"timeoutMs"`
	IntervalMs int `json:"intervalMs"`
}

// OverlayConfig tunes the overlay engine.
type OverlayConfig struct {
	SettleMs   int     `json:"settleMs"`
	Spacing    float64 `json:"spacing"`
	DebounceMs int     `json:"debounceMs"`
	// Tooltip size assumed by headless runs (no renderer to measure).
	TooltipWidth  float64 `json:"tooltipWidth"`
	TooltipHeight float64 `json:"tooltipHeight"`
}

// NotifyConfig controls user notices.
type NotifyConfig struct {
	DedupeMs int `json:"dedupeMs"`
}

// GatewayConfig controls the remote control WebSocket server.
type GatewayConfig struct {
	Listen       string `json:"listen"`
	Token        string `json:"token,omitempty"`
	RateLimitRPM int    `json:"rateLimitRpm"`
	Burst        int    `json:"burst"`
}

// TelemetryConfig configures OTLP span export (built with -tags otel).
type TelemetryConfig struct {
	Enabled     bool              `json:"enabled"`
	Endpoint    string            `json:"endpoint,omitempty"`
	Protocol    string            `json:"protocol,omitempty"` // "grpc" (default) or "http"
	Insecure    bool              `json:"insecure,omitempty"`
	ServiceName string            `json:"serviceName,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Browser: BrowserConfig{
			Width:  1280,
			Height: 800,
		},
		Resolve: ResolveConfig{
			TimeoutMs:  int(dom.DefaultResolveTimeout / time.Millisecond),
			IntervalMs: int(dom.DefaultResolveInterval / time.Millisecond),
		},
		Overlay: OverlayConfig{
			SettleMs:      400,
			Spacing:       10,
			DebounceMs:    16,
			TooltipWidth:  320,
			TooltipHeight: 140,
		},
		Notify: NotifyConfig{
			DedupeMs: 1500,
		},
		Gateway: GatewayConfig{
			Listen:       "127.0.0.1:18790",
			RateLimitRPM: 600,
			Burst:        20,
		},
		Telemetry: TelemetryConfig{
			Protocol:    "grpc",
			ServiceName: "walkthrough",
		},
	}
}

// DefaultPath returns $WALKTHROUGH_CONFIG or ~/.walkthrough/config.json5.
func DefaultPath() string {
	if p := os.Getenv(EnvConfig); p != "" {
		return ExpandHome(p)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".walkthrough", "config.json5")
	}
	return filepath.Join(home, ".walkthrough", "config.json5")
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

// Load reads path over the defaults and applies environment overrides.
// A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(ExpandHome(path))
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		if err := json5.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv(EnvHeadless); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvHeadless, err)
		}
		c.Browser.Headless = b
	}
	if v := os.Getenv(EnvGatewayToken); v != "" {
		c.Gateway.Token = v
	}
	if v := os.Getenv(EnvBrowserBin); v != "" {
		c.Browser.Bin = v
	}
	return nil
}

// Validate reports every invalid field.
func (c *Config) Validate() error {
	var errs []error
	if c.Browser.Width <= 0 || c.Browser.Height <= 0 {
		errs = append(errs, fmt.Errorf("browser: window size must be positive, got %dx%d", c.Browser.Width, c.Browser.Height))
	}
	if c.Resolve.TimeoutMs <= 0 {
		errs = append(errs, errors.New("resolve.timeoutMs must be positive"))
	}
	if c.Resolve.IntervalMs <= 0 {
		errs = append(errs, errors.New("resolve.intervalMs must be positive"))
	} else if c.Resolve.IntervalMs > c.Resolve.TimeoutMs {
		errs = append(errs, errors.New("resolve.intervalMs must not exceed resolve.timeoutMs"))
	}
	if c.Overlay.SettleMs < 0 || c.Overlay.DebounceMs < 0 {
		errs = append(errs, errors.New("overlay: settleMs and debounceMs must not be negative"))
	}
	if c.Overlay.Spacing < 0 {
		errs = append(errs, errors.New("overlay.spacing must not be negative"))
	}
	if c.Notify.DedupeMs < 0 {
		errs = append(errs, errors.New("notify.dedupeMs must not be negative"))
	}
	if c.Gateway.RateLimitRPM < 0 {
		errs = append(errs, errors.New("gateway.rateLimitRpm must not be negative"))
	}
	if c.Telemetry.Enabled {
		if c.Telemetry.Endpoint == "" {
			errs = append(errs, errors.New("telemetry.endpoint is required when telemetry is enabled"))
		}
		switch c.Telemetry.Protocol {
		case "", "grpc", "http":
		default:
			errs = append(errs, fmt.Errorf("telemetry.protocol %q: want grpc or http", c.Telemetry.Protocol))
		}
	}
	return errors.Join(errs...)
}

// ResolveOptions converts the resolve section.
func (c *Config) ResolveOptions() dom.ResolveOptions {
	return dom.ResolveOptions{
		Timeout:  time.Duration(c.Resolve.TimeoutMs) * time.Millisecond,
		Interval: time.Duration(c.Resolve.IntervalMs) * time.Millisecond,
	}
}

func (o OverlayConfig) Settle() time.Duration {
	return time.Duration(o.SettleMs) * time.Millisecond
}

func (o OverlayConfig) Debounce() time.Duration {
	return time.Duration(o.DebounceMs) * time.Millisecond
}

func (n NotifyConfig) Dedupe() time.Duration {
	return time.Duration(n.DedupeMs) * time.Millisecond
}

// MaskedCopy returns a copy with secrets replaced, for display.
func (c *Config) MaskedCopy() *Config {
	cp := *c
	if cp.Gateway.Token != "" {
		cp.Gateway.Token = maskSecret(cp.Gateway.Token)
	}
	if len(c.Telemetry.Headers) > 0 {
		cp.Telemetry.Headers = make(map[string]string, len(c.Telemetry.Headers))
		for k, v := range c.Telemetry.Headers {
			cp.Telemetry.Headers[k] = maskSecret(v)
		}
	}
	return &cp
}

func maskSecret(s string) string {
	if len(s) <= 4 {
		return "***"
	}
	return s[:2] + "***" + s[len(s)-2:]
}

// JSON renders the config as indented JSON.
func (c *Config) JSON() ([]byte, error) {
	return json.MarshalIndent(c, "", "  ")
}
