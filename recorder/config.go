package recorder

import (
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/locator/browser"
	"github.com/hazyhaar/locator/selector"
)

// Config holds all recorder configuration.
type Config struct {
	DBPath  string        `yaml:"db_path"`
	Listen  string        `yaml:"listen"`
	MaxBody int64         `yaml:"max_body"`
	Engine  EngineConfig  `yaml:"engine"`
	Browser BrowserConfig `yaml:"browser"`
	MCP     MCPConfig     `yaml:"mcp"`

	// TraceSQL logs every statement through the sqlite-trace driver.
	TraceSQL bool `yaml:"trace_sql"`

	// AuditRetention is how long audit_log entries are kept. Older ones
	// are deleted when the recorder opens.
	AuditRetention time.Duration `yaml:"audit_retention"`
}

// EngineConfig bounds the work of one resolution.
type EngineConfig struct {
	MaxClassCombinationSize int `yaml:"max_class_combination_size"`
	MaxClassCombinations    int `yaml:"max_class_combinations"`
	TextMaxLen              int `yaml:"text_max_len"`
	TextCountCap            int `yaml:"text_count_cap"`
	MeasureCap              int `yaml:"measure_cap"`
}

// BrowserConfig controls live page snapshots.
type BrowserConfig struct {
	Remote           string        `yaml:"remote"`
	Headful          bool          `yaml:"headful"`
	ResourceBlocking []string      `yaml:"resource_blocking"` // e.g. [image, font, media]
	NavigateTimeout  time.Duration `yaml:"navigate_timeout"`
	// MaxSnapshots recycles Chrome after that many page captures.
	MaxSnapshots int `yaml:"max_snapshots"`
	// AllowPrivate lets urls reach loopback and private networks, which
	// local dev servers need. Leave it off when the HTTP API is shared.
	AllowPrivate bool `yaml:"allow_private"`
}

// MCPConfig configures the MCP-over-QUIC listener. Without a certificate
// pair a self-signed one is generated.
type MCPConfig struct {
	QUICAddr string `yaml:"quic_addr"`
	TLSCert  string `yaml:"tls_cert"`
	TLSKey   string `yaml:"tls_key"`
	// MaxSessions caps concurrent QUIC sessions. Zero keeps the default.
	MaxSessions int `yaml:"max_sessions"`
}

func (c *Config) defaults() {
	if c.DBPath == "" {
		c.DBPath = "locator.db"
	}
	if c.Listen == "" {
		c.Listen = "127.0.0.1:8420"
	}
	if c.MaxBody <= 0 {
		c.MaxBody = 8 << 20
	}
	if c.Engine.MaxClassCombinationSize <= 0 {
		c.Engine.MaxClassCombinationSize = 3
	}
	if c.Engine.MaxClassCombinations <= 0 {
		c.Engine.MaxClassCombinations = 24
	}
	if c.Engine.TextMaxLen <= 0 {
		c.Engine.TextMaxLen = 60
	}
	if c.Engine.TextCountCap <= 0 {
		c.Engine.TextCountCap = 6
	}
	if c.Engine.MeasureCap <= 0 {
		c.Engine.MeasureCap = 100
	}
	if c.MCP.QUICAddr == "" {
		c.MCP.QUICAddr = "127.0.0.1:9444"
	}
	if c.AuditRetention <= 0 {
		c.AuditRetention = 30 * 24 * time.Hour
	}
	if c.Browser.NavigateTimeout <= 0 {
		c.Browser.NavigateTimeout = 30 * time.Second
	}
}

// Options converts the engine section to selector options.
func (c EngineConfig) Options(logger *slog.Logger) selector.Options {
	return selector.Options{
		MaxClassCombinationSize: c.MaxClassCombinationSize,
		MaxClassCombinations:    c.MaxClassCombinations,
		TextMaxLen:              c.TextMaxLen,
		TextCountCap:            c.TextCountCap,
		MeasureCap:              c.MeasureCap,
		Logger:                  logger,
	}
}

// ManagerConfig converts the browser section to a browser.Config.
func (c BrowserConfig) ManagerConfig(logger *slog.Logger) browser.Config {
	level := browser.LevelHeadless
	if c.Headful {
		level = browser.LevelHeadful
	}
	return browser.Config{
		RemoteURL:        c.Remote,
		ResourceBlocking: c.ResourceBlocking,
		NavigateTimeout:  c.NavigateTimeout,
		MaxSnapshots:     c.MaxSnapshots,
		Level:            level,
		Logger:           logger,
	}
}

// LoadConfigFile reads a YAML config file.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
