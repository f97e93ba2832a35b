// Package config loads and validates the engine configuration from a
// JSON5 file, with hot reload via fsnotify.
package config

import (
	"fmt"
	"os"

	"github.com/titanous/json5"
)

// ProviderConfig selects and authenticates the reasoning endpoint.
type ProviderConfig struct {
	Name    string `json:"name"`     // label for logs, default "openai"
	APIKey  string `json:"api_key"`  // also read from HEARTFLOW_API_KEY
	APIBase string `json:"api_base"` // OpenAI-compatible base URL
	Model   string `json:"model"`
}

// PlannerConfig tunes the decision planner.
type PlannerConfig struct {
	TimeoutMs  int `json:"timeout_ms"`  // one planning call, default 30000
	MaxHistory int `json:"max_history"` // action-history lines in the prompt, default 10
}

// ActivationConfig tunes the activation filter.
type ActivationConfig struct {
	CacheTTLMs     int     `json:"cache_ttl_ms"`     // judgment cache TTL, default 30000
	CacheSize      int     `json:"cache_size"`       // default 512
	MaxParallel    int     `json:"max_parallel"`     // judge concurrency, default 4
	JudgeTimeoutMs int     `json:"judge_timeout_ms"` // one judge call, default 10000
	JudgeRatePerS  float64 `json:"judge_rate_per_s"` // 0 = unlimited
}

// EngagementConfig mirrors engagement.Config; per-conversation overrides
// apply on top.
type EngagementConfig struct {
	EnergyCeiling         float64 `json:"energy_ceiling"`
	FocusEnterEnergy      float64 `json:"focus_enter_energy"`
	TrafficThreshold      int     `json:"traffic_threshold"`
	DecayPerCycle         float64 `json:"decay_per_cycle"`
	PassiveDecayPerMinute float64 `json:"passive_decay_per_minute"`
	GrowthPerReply        float64 `json:"growth_per_reply"`
	SigmoidSlope          float64 `json:"sigmoid_slope"`
	SigmoidMidpoint       float64 `json:"sigmoid_midpoint"`
}

// LoopConfig tunes the orchestration loop.
type LoopConfig struct {
	ReadinessCount    int    `json:"readiness_count"`     // unread messages that trigger a cycle, default 3
	InterestThreshold float64 `json:"interest_threshold"` // accumulated interest trigger, default 2.0
	IdleMs            int    `json:"idle_ms"`             // act anyway after this idle time, default 120000
	SleepMs           int    `json:"sleep_ms"`            // poll sleep between readiness checks, default 1500
	HistorySize       int    `json:"history_size"`        // cycle-record ring size, default 64
	CrashPolicy       string `json:"crash_policy"`        // "restart" or "stop", default "restart"
	RestartBackoffMs  int    `json:"restart_backoff_ms"`  // default 5000
	TimeoutWarnStreak int    `json:"timeout_warn_streak"` // consecutive timeouts before warning, default 3
	DecayTickMs       int    `json:"decay_tick_ms"`       // passive decay driver period, 0 = off, default 30000
	ReplyTimeoutMs    int    `json:"reply_timeout_ms"`    // reply generation timeout, default 30000
}

// StoreConfig selects the decision-record sink.
type StoreConfig struct {
	Backend string `json:"backend"` // "none", "file" or "sqlite"
	Path    string `json:"path"`
}

// TracingConfig enables OTLP span export.
type TracingConfig struct {
	Enabled  bool   `json:"enabled"`
	Endpoint string `json:"endpoint"` // host:port, default localhost:4318
	Protocol string `json:"protocol"` // "http" or "grpc", default "http"
	Insecure bool   `json:"insecure"`
}

// ConversationConfig declares one conversation the host runs loops for.
type ConversationConfig struct {
	ID          string  `json:"id"`
	Priority    bool    `json:"priority"`
	FocusFactor float64 `json:"focus_factor"` // default 1.0
}

// Config is the engine configuration root.
type Config struct {
	Provider      ProviderConfig       `json:"provider"`
	Planner       PlannerConfig        `json:"planner"`
	Activation    ActivationConfig     `json:"activation"`
	Engagement    EngagementConfig     `json:"engagement"`
	Loop          LoopConfig           `json:"loop"`
	Store         StoreConfig          `json:"store"`
	Tracing       TracingConfig        `json:"tracing"`
	Manifest      string               `json:"manifest"` // actions.yaml path, optional
	Conversations []ConversationConfig `json:"conversations"`
}

// Load reads, decodes and validates the config file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := json5.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return &cfg, nil
}

// Default returns a fully defaulted config with no conversations.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Provider.Name == "" {
		c.Provider.Name = "openai"
	}
	if c.Provider.APIKey == "" {
		c.Provider.APIKey = os.Getenv("HEARTFLOW_API_KEY")
	}
	if c.Planner.TimeoutMs <= 0 {
		c.Planner.TimeoutMs = 30000
	}
	if c.Planner.MaxHistory <= 0 {
		c.Planner.MaxHistory = 10
	}
	if c.Activation.CacheTTLMs <= 0 {
		c.Activation.CacheTTLMs = 30000
	}
	if c.Activation.CacheSize <= 0 {
		c.Activation.CacheSize = 512
	}
	if c.Activation.MaxParallel <= 0 {
		c.Activation.MaxParallel = 4
	}
	if c.Activation.JudgeTimeoutMs <= 0 {
		c.Activation.JudgeTimeoutMs = 10000
	}
	if c.Engagement.EnergyCeiling <= 0 {
		c.Engagement.EnergyCeiling = 100
	}
	if c.Engagement.FocusEnterEnergy <= 0 {
		c.Engagement.FocusEnterEnergy = 80
	}
	if c.Engagement.TrafficThreshold <= 0 {
		c.Engagement.TrafficThreshold = 12
	}
	if c.Engagement.DecayPerCycle <= 0 {
		c.Engagement.DecayPerCycle = 3
	}
	if c.Engagement.PassiveDecayPerMinute <= 0 {
		c.Engagement.PassiveDecayPerMinute = 1
	}
	if c.Engagement.GrowthPerReply <= 0 {
		c.Engagement.GrowthPerReply = 8
	}
	if c.Engagement.SigmoidSlope <= 0 {
		c.Engagement.SigmoidSlope = 1.5
	}
	if c.Engagement.SigmoidMidpoint <= 0 {
		c.Engagement.SigmoidMidpoint = 0.6
	}
	if c.Loop.ReadinessCount <= 0 {
		c.Loop.ReadinessCount = 3
	}
	if c.Loop.InterestThreshold <= 0 {
		c.Loop.InterestThreshold = 2.0
	}
	if c.Loop.IdleMs <= 0 {
		c.Loop.IdleMs = 120000
	}
	if c.Loop.SleepMs <= 0 {
		c.Loop.SleepMs = 1500
	}
	if c.Loop.HistorySize <= 0 {
		c.Loop.HistorySize = 64
	}
	if c.Loop.CrashPolicy == "" {
		c.Loop.CrashPolicy = "restart"
	}
	if c.Loop.RestartBackoffMs <= 0 {
		c.Loop.RestartBackoffMs = 5000
	}
	if c.Loop.TimeoutWarnStreak <= 0 {
		c.Loop.TimeoutWarnStreak = 3
	}
	if c.Loop.DecayTickMs == 0 {
		c.Loop.DecayTickMs = 30000
	}
	if c.Loop.ReplyTimeoutMs <= 0 {
		c.Loop.ReplyTimeoutMs = 30000
	}
	if c.Store.Backend == "" {
		c.Store.Backend = "none"
	}
	if c.Tracing.Endpoint == "" {
		c.Tracing.Endpoint = "localhost:4318"
	}
	if c.Tracing.Protocol == "" {
		c.Tracing.Protocol = "http"
	}
	for i := range c.Conversations {
		if c.Conversations[i].FocusFactor <= 0 {
			c.Conversations[i].FocusFactor = 1.0
		}
		c.Conversations[i].ID = NormalizeConversationID(c.Conversations[i].ID)
	}
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	switch c.Loop.CrashPolicy {
	case "restart", "stop":
	default:
		return fmt.Errorf("loop.crash_policy must be restart or stop, got %q", c.Loop.CrashPolicy)
	}
	switch c.Store.Backend {
	case "none", "file", "sqlite":
	default:
		return fmt.Errorf("store.backend must be none, file or sqlite, got %q", c.Store.Backend)
	}
	if c.Store.Backend != "none" && c.Store.Path == "" {
		return fmt.Errorf("store.backend %s requires store.path", c.Store.Backend)
	}
	switch c.Tracing.Protocol {
	case "http", "grpc":
	default:
		return fmt.Errorf("tracing.protocol must be http or grpc, got %q", c.Tracing.Protocol)
	}
	seen := make(map[string]bool, len(c.Conversations))
	for _, conv := range c.Conversations {
		if conv.ID == "" {
			return fmt.Errorf("conversation with empty id")
		}
		if seen[conv.ID] {
			return fmt.Errorf("duplicate conversation id %q", conv.ID)
		}
		seen[conv.ID] = true
	}
	return nil
}
