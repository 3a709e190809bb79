package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/adcscope/internal/serialmux"
)

// Defaults for every setting. Flags in cmd/adcscope fall back to these.
const (
	DefaultPort           = "/dev/ttyACM0"
	DefaultBackoff        = time.Second
	DefaultWindow         = 5 * time.Second
	DefaultSampleRate     = 1000
	DefaultSmoothing      = 5
	DefaultRenderInterval = 40 * time.Millisecond
	DefaultListen         = "localhost:8080"
	DefaultDevRate        = 1000
	DefaultJoinTimeout    = time.Second
	DefaultWSMaxPoints    = 1000
)

const maxFileSize = 1 * 1024 * 1024 // 1MB

// Config is the JSON configuration file. Every field is optional; the Get*
// methods supply defaults for anything left out, so partial files are safe.
type Config struct {
	// Serial link
	Port        *string `json:"port,omitempty"`
	BaudRate    *int    `json:"baud_rate,omitempty"`
	DataBits    *int    `json:"data_bits,omitempty"`
	StopBits    *int    `json:"stop_bits,omitempty"`
	Parity      *string `json:"parity,omitempty"`
	ReadTimeout *string `json:"read_timeout,omitempty"` // duration string like "100ms"
	Backoff     *string `json:"backoff,omitempty"`

	// Buffer and processing
	Window     *string `json:"window,omitempty"`
	SampleRate *int    `json:"sample_rate,omitempty"` // Hz, sizes the buffer
	Smoothing  *int    `json:"smoothing_window,omitempty"`

	// Display
	RenderInterval *string `json:"render_interval,omitempty"`
	Listen         *string `json:"listen,omitempty"` // empty disables HTTP
	WSMaxPoints    *int    `json:"ws_max_points,omitempty"`

	// Lifecycle
	JoinTimeout *string `json:"join_timeout,omitempty"`
	DevMode     *bool   `json:"dev_mode,omitempty"`
	DevRate     *int    `json:"dev_rate,omitempty"`
	Verbose     *bool   `json:"verbose,omitempty"`
}

// Load reads a Config from a JSON file. The path must have a .json
// extension and the file must be under 1MB.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func checkDuration(name string, v *string, allowZero bool) error {
	if v == nil || *v == "" {
		return nil
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
	}
	if d < 0 || (d == 0 && !allowZero) {
		return fmt.Errorf("%s must be positive, got %s", name, d)
	}
	return nil
}

func checkPositive(name string, v *int) error {
	if v != nil && *v <= 0 {
		return fmt.Errorf("%s must be positive, got %d", name, *v)
	}
	return nil
}

// Validate checks that the configuration values are usable.
func (c *Config) Validate() error {
	durations := []struct {
		name      string
		v         *string
		allowZero bool
	}{
		{"read_timeout", c.ReadTimeout, false},
		{"backoff", c.Backoff, false},
		{"window", c.Window, false},
		{"render_interval", c.RenderInterval, false},
		{"join_timeout", c.JoinTimeout, true},
	}
	for _, d := range durations {
		if err := checkDuration(d.name, d.v, d.allowZero); err != nil {
			return err
		}
	}

	for name, v := range map[string]*int{
		"sample_rate":   c.SampleRate,
		"dev_rate":      c.DevRate,
		"ws_max_points": c.WSMaxPoints,
	} {
		if err := checkPositive(name, v); err != nil {
			return err
		}
	}

	if c.Smoothing != nil && *c.Smoothing < 1 {
		return fmt.Errorf("smoothing_window must be at least 1, got %d", *c.Smoothing)
	}
	if c.Port != nil && *c.Port == "" && !c.GetDevMode() {
		return fmt.Errorf("port must not be empty")
	}
	if _, err := c.GetPortOptions().Normalise(); err != nil {
		return err
	}
	return nil
}

func durationOr(v *string, def time.Duration) time.Duration {
	if v == nil || *v == "" {
		return def
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return def
	}
	return d
}

// GetPort returns the serial device path or the default.
func (c *Config) GetPort() string {
	if c.Port == nil || *c.Port == "" {
		return DefaultPort
	}
	return *c.Port
}

// GetPortOptions assembles the serial options. Unset fields stay zero so
// PortOptions.Normalise can apply its own defaults.
func (c *Config) GetPortOptions() serialmux.PortOptions {
	var opts serialmux.PortOptions
	if c.BaudRate != nil {
		opts.BaudRate = *c.BaudRate
	}
	if c.DataBits != nil {
		opts.DataBits = *c.DataBits
	}
	if c.StopBits != nil {
		opts.StopBits = *c.StopBits
	}
	if c.Parity != nil {
		opts.Parity = *c.Parity
	}
	opts.ReadTimeout = durationOr(c.ReadTimeout, serialmux.DefaultReadTimeout)
	return opts
}

// GetBackoff returns the reconnect delay or the default.
func (c *Config) GetBackoff() time.Duration {
	return durationOr(c.Backoff, DefaultBackoff)
}

// GetWindow returns the buffered time window or the default.
func (c *Config) GetWindow() time.Duration {
	return durationOr(c.Window, DefaultWindow)
}

// GetSampleRate returns the expected sample rate in Hz or the default.
func (c *Config) GetSampleRate() int {
	if c.SampleRate == nil {
		return DefaultSampleRate
	}
	return *c.SampleRate
}

// GetSmoothing returns the moving-average window or the default.
func (c *Config) GetSmoothing() int {
	if c.Smoothing == nil {
		return DefaultSmoothing
	}
	return *c.Smoothing
}

// GetRenderInterval returns the redraw period or the default.
func (c *Config) GetRenderInterval() time.Duration {
	return durationOr(c.RenderInterval, DefaultRenderInterval)
}

// GetListen returns the HTTP listen address. An explicit empty string
// disables the HTTP surface.
func (c *Config) GetListen() string {
	if c.Listen == nil {
		return DefaultListen
	}
	return *c.Listen
}

func (c *Config) GetWSMaxPoints() int {
	if c.WSMaxPoints == nil {
		return DefaultWSMaxPoints
	}
	return *c.WSMaxPoints
}

// GetJoinTimeout returns how long shutdown waits for the acquisition loop.
func (c *Config) GetJoinTimeout() time.Duration {
	return durationOr(c.JoinTimeout, DefaultJoinTimeout)
}

func (c *Config) GetDevMode() bool {
	return c.DevMode != nil && *c.DevMode
}

func (c *Config) GetDevRate() int {
	if c.DevRate == nil {
		return DefaultDevRate
	}
	return *c.DevRate
}

func (c *Config) GetVerbose() bool {
	return c.Verbose != nil && *c.Verbose
}
