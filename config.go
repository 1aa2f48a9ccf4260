package dompilot

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/dompilot/internal/browser"
)

// Config is the facade configuration. Zero value works: defaults() fills in
// everything, and the trail stays off until a path is set.
type Config struct {
	Browser browser.Config `yaml:"browser"`

	// UserAgent overrides the browser user agent when set.
	UserAgent string `yaml:"user_agent"`

	// NavigateTimeoutMS bounds navigation waits (timeout still resolves).
	NavigateTimeoutMS int `yaml:"navigate_timeout_ms"`
	// ActionTimeoutMS bounds control actions.
	ActionTimeoutMS int `yaml:"action_timeout_ms"`
	// LongActionTimeoutMS bounds snapshot/act/screenshot, which routinely
	// outlive the control budget on heavy pages.
	LongActionTimeoutMS int `yaml:"long_action_timeout_ms"`

	// AXCacheTTLMS bounds accessibility-tree reuse.
	AXCacheTTLMS int `yaml:"ax_cache_ttl_ms"`
	// MinAXLines is the snapshot sufficiency threshold: at most this many
	// meaningful AX lines triggers the DOM-walk fallback.
	MinAXLines int `yaml:"min_ax_lines"`
	// DOMWalkCap bounds DOM-walk node capture.
	DOMWalkCap int `yaml:"dom_walk_cap"`

	// ConsoleBuffer caps retained console entries.
	ConsoleBuffer int `yaml:"console_buffer"`
	// DialogHistory caps retained closed dialogs.
	DialogHistory int `yaml:"dialog_history"`

	// TrailPath enables the SQLite operation trail when set.
	TrailPath string `yaml:"trail_path"`
}

func (c *Config) defaults() {
	if c.NavigateTimeoutMS <= 0 {
		c.NavigateTimeoutMS = 30_000
	}
	if c.ActionTimeoutMS <= 0 {
		c.ActionTimeoutMS = 30_000
	}
	if c.LongActionTimeoutMS <= 0 {
		c.LongActionTimeoutMS = 60_000
	}
	if c.AXCacheTTLMS <= 0 {
		c.AXCacheTTLMS = 2_000
	}
	if c.MinAXLines <= 0 {
		c.MinAXLines = 3
	}
	if c.DOMWalkCap <= 0 {
		c.DOMWalkCap = 1500
	}
	if c.ConsoleBuffer <= 0 {
		c.ConsoleBuffer = 500
	}
	if c.DialogHistory <= 0 {
		c.DialogHistory = 20
	}
}

func (c *Config) navigateTimeout() time.Duration {
	return time.Duration(c.NavigateTimeoutMS) * time.Millisecond
}

func (c *Config) actionTimeout() time.Duration {
	return time.Duration(c.ActionTimeoutMS) * time.Millisecond
}

func (c *Config) longActionTimeout() time.Duration {
	return time.Duration(c.LongActionTimeoutMS) * time.Millisecond
}

// LoadConfigFile reads a YAML config. A missing path returns the zero
// config so the binary runs without one.
func LoadConfigFile(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("dompilot: read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("dompilot: parse config %s: %w", path, err)
	}
	return cfg, nil
}
