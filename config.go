package switchboard

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config holds every tuning knob of the routing engine. It is loaded from
// ~/.switchboard/config.yaml and can be overridden by SWITCHBOARD_*
// environment variables.
type Config struct {
	Logging    LoggingConfig    `mapstructure:"logging" yaml:"logging"`
	Session    SessionConfig    `mapstructure:"session" yaml:"session"`
	Thresholds ThresholdConfig  `mapstructure:"thresholds" yaml:"thresholds"`
	Continuity ContinuityConfig `mapstructure:"continuity" yaml:"continuity"`
	Scoring    ScoringConfig    `mapstructure:"scoring" yaml:"scoring"`
	Topic      TopicConfig      `mapstructure:"topic" yaml:"topic"`
	Routing    RoutingConfig    `mapstructure:"routing" yaml:"routing"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	// Level is the log level ("trace", "debug", "info", "warn", "error")
	Level string `mapstructure:"level" yaml:"level"`
	// Format is the output format ("console" or "json")
	Format string `mapstructure:"format" yaml:"format"`
	// NoColor disables ANSI colors in console output
	NoColor bool `mapstructure:"no_color" yaml:"no_color"`
	// File is an optional path that receives JSON log lines
	File string `mapstructure:"file" yaml:"file,omitempty"`
}

// SessionConfig controls per-session memory.
type SessionConfig struct {
	// MaxHistory is the number of routing records kept per session; older
	// entries are evicted first
	MaxHistory int `mapstructure:"max_history" yaml:"max_history"`
	// RecencyWindow is how long after the last interaction a session still
	// qualifies for time-based continuity
	RecencyWindow time.Duration `mapstructure:"recency_window" yaml:"recency_window"`
	// StorePath is the SQLite file used to persist sessions across restarts;
	// empty keeps sessions in memory only
	StorePath string `mapstructure:"store_path" yaml:"store_path,omitempty"`
}

// ThresholdConfig holds the three confidence gates.
type ThresholdConfig struct {
	// Primary is the score a candidate must clear to be selected
	Primary float64 `mapstructure:"primary" yaml:"primary"`
	// High gates intent-based short-circuiting; the classifier's intent
	// confidence must exceed it
	High float64 `mapstructure:"high" yaml:"high"`
	// Fallback is the relaxed gate for time-based continuity; zero derives
	// it as 70% of Primary
	Fallback float64 `mapstructure:"fallback" yaml:"fallback"`
}

// ContinuityConfig controls the score bonus for staying with the agent
// that owned the previous turn.
type ContinuityConfig struct {
	// Bonus is added to the current agent's score during continuity
	// routing; time-based continuity applies half of it
	Bonus float64 `mapstructure:"bonus" yaml:"bonus"`
}

// ScoringConfig holds the contextual boost increments.
type ScoringConfig struct {
	// IntentBoost is added when the turn's intent maps to the agent
	IntentBoost float64 `mapstructure:"intent_boost" yaml:"intent_boost"`
	// EntityBoost is added when an aligned entity is present
	EntityBoost float64 `mapstructure:"entity_boost" yaml:"entity_boost"`
}

// TopicConfig controls topic-change detection.
type TopicConfig struct {
	// DivergenceMargin is how far a rival agent must outscore the current
	// one before the divergence strategy declares a change
	DivergenceMargin float64 `mapstructure:"divergence_margin" yaml:"divergence_margin"`
	// MinWords is the word count an input must exceed before detection
	// runs; shorter inputs are treated as clarifications
	MinWords int `mapstructure:"min_words" yaml:"min_words"`
	// Transitions maps an owning agent id to the keywords that pull the
	// conversation toward another agent
	Transitions map[string]Transition `mapstructure:"transitions" yaml:"transitions,omitempty"`
}

// Transition is one keyword-based drift entry.
type Transition struct {
	Keywords []string `mapstructure:"keywords" yaml:"keywords"`
	Target   string   `mapstructure:"target" yaml:"target"`
}

// RoutingConfig binds the engine to a concrete agent domain.
type RoutingConfig struct {
	// IntentMappings maps a classified intent to the agent id that owns it
	IntentMappings map[string]string `mapstructure:"intent_mappings" yaml:"intent_mappings,omitempty"`
	// EntityAlignments maps an agent id to the entity keys that signal it
	EntityAlignments map[string][]string `mapstructure:"entity_alignments" yaml:"entity_alignments,omitempty"`
	// TieMargin is the score gap at or below which the top two candidates
	// count as tied and priority overrides apply
	TieMargin float64 `mapstructure:"tie_margin" yaml:"tie_margin"`
	// PriorityOverrides resolve ties: the first rule whose signal matches
	// the input promotes its agent when that agent is in the top two
	PriorityOverrides []PriorityRule `mapstructure:"priority_overrides" yaml:"priority_overrides,omitempty"`
}

// PriorityRule describes one tie-break promotion. A rule matches when any
// of its regex patterns or whole-word keywords occurs in the input.
type PriorityRule struct {
	// Name identifies the rule in logs
	Name string `mapstructure:"name" yaml:"name"`
	// Patterns are regular expressions matched against the raw input
	Patterns []string `mapstructure:"patterns" yaml:"patterns,omitempty"`
	// Keywords are matched against the input word by word, case-insensitive
	Keywords []string `mapstructure:"keywords" yaml:"keywords,omitempty"`
	// AgentID is the agent promoted to the top of the ranking
	AgentID string `mapstructure:"agent_id" yaml:"agent_id"`
	// Boost is added to the promoted agent's score; zero uses 0.15
	Boost float64 `mapstructure:"boost" yaml:"boost"`
	// Cap limits the promoted score; zero uses 0.99
	Cap float64 `mapstructure:"cap" yaml:"cap"`
}

// Rule defaults applied when a priority override leaves them zero.
const (
	DefaultPriorityBoost = 0.15
	DefaultPriorityCap   = 0.99
)

// DefaultConfig returns the engine defaults plus the demo agent domain:
// account, shipping and stores, with the store locator given tie-break
// priority on location-looking inputs.
func DefaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Session: SessionConfig{
			MaxHistory:    20,
			RecencyWindow: 5 * time.Minute,
		},
		Thresholds: ThresholdConfig{
			Primary:  0.7,
			High:     0.85,
			Fallback: 0, // derived from Primary
		},
		Continuity: ContinuityConfig{
			Bonus: 0.2,
		},
		Scoring: ScoringConfig{
			IntentBoost: 0.10,
			EntityBoost: 0.15,
		},
		Topic: TopicConfig{
			DivergenceMargin: 0.3,
			MinWords:         2,
			Transitions: map[string]Transition{
				"account": {
					Keywords: []string{"store", "location", "nearest", "directions", "hours"},
					Target:   "stores",
				},
				"shipping": {
					Keywords: []string{"password", "login", "email", "account"},
					Target:   "account",
				},
				"stores": {
					Keywords: []string{"order", "tracking", "delivery", "package"},
					Target:   "shipping",
				},
			},
		},
		Routing: RoutingConfig{
			IntentMappings: map[string]string{
				"password_reset":   "account",
				"account_question": "account",
				"update_profile":   "account",
				"order_status":     "shipping",
				"track_package":    "shipping",
				"store_location":   "stores",
				"store_hours":      "stores",
			},
			EntityAlignments: map[string][]string{
				"account":  {"email", "account_id", "username"},
				"shipping": {"order_id", "tracking_number"},
				"stores":   {"zip_code", "city", "location"},
			},
			TieMargin: 0.1,
			PriorityOverrides: []PriorityRule{
				{
					Name:     "location",
					Patterns: []string{`\b\d{5}(?:-\d{4})?\b`},
					Keywords: []string{
						"store", "location", "near", "nearest", "address",
						"city", "directions", "hours",
						"seattle", "portland", "denver", "austin", "chicago",
					},
					AgentID: "stores",
					Boost:   DefaultPriorityBoost,
					Cap:     DefaultPriorityCap,
				},
			},
		},
	}
}

// DefaultConfigPath returns ~/.switchboard/config.yaml.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".switchboard", "config.yaml"), nil
}

// LoadConfig reads configuration from path, or from the default location
// when path is empty, merging environment variable overrides. A missing
// file is created with defaults first, so the first run leaves an editable
// config behind.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		var err error
		path, err = DefaultConfigPath()
		if err != nil {
			return nil, err
		}
	}
	path = expandPath(path)

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := DefaultConfig().Save(path); err != nil {
			return nil, fmt.Errorf("write default config: %w", err)
		}
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	// Example: SWITCHBOARD_THRESHOLDS_PRIMARY=0.8
	v.SetEnvPrefix("SWITCHBOARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	// Unmarshal over the defaults so keys absent from the file keep their
	// default values.
	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.Session.StorePath = expandPath(cfg.Session.StorePath)
	cfg.Logging.File = expandPath(cfg.Logging.File)
	return cfg, nil
}

// Save writes the configuration to path as YAML, creating the directory
// if needed.
func (c *Config) Save(path string) error {
	path = expandPath(path)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// Validate checks the configuration for inconsistencies. Any failure here
// is fatal at startup; the engine refuses to construct with a broken
// config rather than misroute turns later.
func (c *Config) Validate() error {
	switch c.Logging.Level {
	case "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: logging.level %q, must be one of: trace, debug, info, warn, error", ErrInvalidConfig, c.Logging.Level)
	}
	if c.Logging.Format != "console" && c.Logging.Format != "json" {
		return fmt.Errorf("%w: logging.format %q, must be console or json", ErrInvalidConfig, c.Logging.Format)
	}

	if c.Session.MaxHistory < 1 {
		return fmt.Errorf("%w: session.max_history must be at least 1", ErrInvalidConfig)
	}
	if c.Session.RecencyWindow <= 0 {
		return fmt.Errorf("%w: session.recency_window must be positive", ErrInvalidConfig)
	}

	if c.Thresholds.Primary <= 0 || c.Thresholds.Primary > 1 {
		return fmt.Errorf("%w: thresholds.primary must be in (0,1]", ErrInvalidConfig)
	}
	if c.Thresholds.High < c.Thresholds.Primary || c.Thresholds.High > 1 {
		return fmt.Errorf("%w: thresholds.high must be in [primary,1]", ErrInvalidConfig)
	}
	if c.Thresholds.Fallback < 0 || c.Thresholds.Fallback > c.Thresholds.Primary {
		return fmt.Errorf("%w: thresholds.fallback must be in [0,primary]", ErrInvalidConfig)
	}

	if c.Continuity.Bonus < 0 || c.Continuity.Bonus >= 1 {
		return fmt.Errorf("%w: continuity.bonus must be in [0,1)", ErrInvalidConfig)
	}
	if c.Scoring.IntentBoost < 0 || c.Scoring.IntentBoost >= 1 {
		return fmt.Errorf("%w: scoring.intent_boost must be in [0,1)", ErrInvalidConfig)
	}
	if c.Scoring.EntityBoost < 0 || c.Scoring.EntityBoost >= 1 {
		return fmt.Errorf("%w: scoring.entity_boost must be in [0,1)", ErrInvalidConfig)
	}

	if c.Topic.DivergenceMargin <= 0 || c.Topic.DivergenceMargin > 1 {
		return fmt.Errorf("%w: topic.divergence_margin must be in (0,1]", ErrInvalidConfig)
	}
	if c.Topic.MinWords < 0 {
		return fmt.Errorf("%w: topic.min_words cannot be negative", ErrInvalidConfig)
	}
	for agent, tr := range c.Topic.Transitions {
		if agent == "" || tr.Target == "" {
			return fmt.Errorf("%w: topic.transitions entries need an owning agent and a target", ErrInvalidConfig)
		}
		if len(tr.Keywords) == 0 {
			return fmt.Errorf("%w: topic.transitions[%s] has no keywords", ErrInvalidConfig, agent)
		}
	}

	if c.Routing.TieMargin < 0 || c.Routing.TieMargin >= 1 {
		return fmt.Errorf("%w: routing.tie_margin must be in [0,1)", ErrInvalidConfig)
	}
	for intent, agent := range c.Routing.IntentMappings {
		if intent == "" || agent == "" {
			return fmt.Errorf("%w: routing.intent_mappings entries cannot be empty", ErrInvalidConfig)
		}
	}
	for agent, keys := range c.Routing.EntityAlignments {
		if agent == "" {
			return fmt.Errorf("%w: routing.entity_alignments has an empty agent id", ErrInvalidConfig)
		}
		for _, k := range keys {
			if k == "" {
				return fmt.Errorf("%w: routing.entity_alignments[%s] has an empty entity key", ErrInvalidConfig, agent)
			}
		}
	}
	for i, rule := range c.Routing.PriorityOverrides {
		if rule.AgentID == "" {
			return fmt.Errorf("%w: routing.priority_overrides[%d] needs an agent_id", ErrInvalidConfig, i)
		}
		if len(rule.Patterns) == 0 && len(rule.Keywords) == 0 {
			return fmt.Errorf("%w: routing.priority_overrides[%d] needs patterns or keywords", ErrInvalidConfig, i)
		}
		for _, p := range rule.Patterns {
			if _, err := regexp.Compile(p); err != nil {
				return fmt.Errorf("%w: routing.priority_overrides[%d] pattern %q: %v", ErrInvalidConfig, i, p, err)
			}
		}
		if rule.Boost < 0 || rule.Cap < 0 || rule.Cap > 1 {
			return fmt.Errorf("%w: routing.priority_overrides[%d] boost/cap out of range", ErrInvalidConfig, i)
		}
	}

	return nil
}

// expandPath expands a leading ~ to the user's home directory.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[1:])
	}
	return path
}
