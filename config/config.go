package config

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// PacingProfile is a named send cadence. Seconds are used instead of durations
// so the JSON file stays readable for operators.
type PacingProfile struct {
	MinSeconds          float64 `json:"min_seconds" mapstructure:"min_seconds"`
	MaxSeconds          float64 `json:"max_seconds" mapstructure:"max_seconds"`
	LongPauseEvery      int     `json:"long_pause_every" mapstructure:"long_pause_every"`
	LongPauseMinSeconds float64 `json:"long_pause_min_seconds" mapstructure:"long_pause_min_seconds"`
	LongPauseMaxSeconds float64 `json:"long_pause_max_seconds" mapstructure:"long_pause_max_seconds"`
}

type Dispatch struct {
	BatchLimit          int  `json:"batch_limit" mapstructure:"batch_limit"`
	DryRun              bool `json:"dry_run" mapstructure:"dry_run"`
	PollIntervalSeconds int  `json:"poll_interval_seconds" mapstructure:"poll_interval_seconds"`
	FailureThreshold    int  `json:"failure_threshold" mapstructure:"failure_threshold"`
	CooldownSeconds     int  `json:"cooldown_seconds" mapstructure:"cooldown_seconds"`
	ClaimTTLSeconds     int  `json:"claim_ttl_seconds" mapstructure:"claim_ttl_seconds"`
	MaxErrorLength      int  `json:"max_error_length" mapstructure:"max_error_length"`
}

type Pacing struct {
	WindowStart string                   `json:"window_start" mapstructure:"window_start"` // "HH:MM"
	WindowEnd   string                   `json:"window_end" mapstructure:"window_end"`
	Timezone    string                   `json:"timezone" mapstructure:"timezone"`
	Profiles    map[string]PacingProfile `json:"profiles" mapstructure:"profiles"`
}

type Conversation struct {
	AssistCTAThrottleMinutes int  `json:"assist_cta_throttle_minutes" mapstructure:"assist_cta_throttle_minutes"`
	CatalogGateEnabled       bool `json:"catalog_gate_enabled" mapstructure:"catalog_gate_enabled"`
	DebounceSeconds          int  `json:"debounce_seconds" mapstructure:"debounce_seconds"`
}

type Preorder struct {
	DefaultTTLHours      int `json:"default_ttl_hours" mapstructure:"default_ttl_hours"`
	HistoryLimit         int `json:"history_limit" mapstructure:"history_limit"`
	SweepIntervalSeconds int `json:"sweep_interval_seconds" mapstructure:"sweep_interval_seconds"`
}

type OpenAI struct {
	ApiKey       string `json:"api_key" mapstructure:"api_key"`
	Model        string `json:"model" mapstructure:"model"`
	SystemPrompt string `json:"system_prompt" mapstructure:"system_prompt"`
}

type WhatsApp struct {
	VerifyToken string `json:"verify_token" mapstructure:"verify_token"`
	AppSecret   string `json:"app_secret" mapstructure:"app_secret"`
	ApiVersion  string `json:"api_version" mapstructure:"api_version"`
}

type Configuration struct {
	ApiPort        string   `json:"api_port" mapstructure:"api_port"`
	LogPath        string   `json:"log_path" mapstructure:"log_path"`
	LogLevel       string   `json:"log_level" mapstructure:"log_level"`
	OperatorApiKey string   `json:"operator_api_key" mapstructure:"operator_api_key"`
	CorsOrigins    []string `json:"cors_origins" mapstructure:"cors_origins"`

	Database    string `json:"database" mapstructure:"database"` // "sqlite3" ou "postgres"
	DbPath      string `json:"db_path" mapstructure:"db_path"`
	DbHost      string `json:"db_host" mapstructure:"db_host"`
	DbPort      string `json:"db_port" mapstructure:"db_port"`
	DbUser      string `json:"db_user" mapstructure:"db_user"`
	DbName      string `json:"db_name" mapstructure:"db_name"`
	DbPass      string `json:"db_pass" mapstructure:"db_pass"`
	AutoMigrate bool   `json:"automigrate" mapstructure:"automigrate"`

	Dispatch     Dispatch     `json:"dispatch" mapstructure:"dispatch"`
	Pacing       Pacing       `json:"pacing" mapstructure:"pacing"`
	Conversation Conversation `json:"conversation" mapstructure:"conversation"`
	Preorder     Preorder     `json:"preorder" mapstructure:"preorder"`
	OpenAI       OpenAI       `json:"openai" mapstructure:"openai"`
	WhatsApp     WhatsApp     `json:"whatsapp" mapstructure:"whatsapp"`
}

const (
	ProfileConversation = "conversation"
	ProfileCampaign     = "campaign"
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("api_port", "8080")
	v.SetDefault("log_path", "logs/server.log")
	v.SetDefault("log_level", "info")
	v.SetDefault("database", "sqlite3")
	v.SetDefault("db_path", "db/database.db")
	v.SetDefault("automigrate", true)

	// keys without a real default still need to be known to viper, otherwise
	// their BALCAO_* variables are ignored by Unmarshal
	for _, key := range []string{
		"operator_api_key",
		"db_host", "db_port", "db_user", "db_name", "db_pass",
		"openai.api_key",
		"whatsapp.verify_token", "whatsapp.app_secret",
	} {
		v.SetDefault(key, "")
	}
	v.SetDefault("cors_origins", []string{})

	v.SetDefault("dispatch.batch_limit", 25)
	v.SetDefault("dispatch.dry_run", false)
	v.SetDefault("dispatch.poll_interval_seconds", 5)
	v.SetDefault("dispatch.failure_threshold", 5)
	v.SetDefault("dispatch.cooldown_seconds", 60)
	v.SetDefault("dispatch.claim_ttl_seconds", 600)
	v.SetDefault("dispatch.max_error_length", 500)

	v.SetDefault("pacing.window_start", "08:00")
	v.SetDefault("pacing.window_end", "21:00")
	v.SetDefault("pacing.timezone", "America/Sao_Paulo")

	v.SetDefault("conversation.assist_cta_throttle_minutes", 5)
	v.SetDefault("conversation.catalog_gate_enabled", true)
	v.SetDefault("conversation.debounce_seconds", 3)

	v.SetDefault("preorder.default_ttl_hours", 24)
	v.SetDefault("preorder.history_limit", 50)
	v.SetDefault("preorder.sweep_interval_seconds", 60)

	v.SetDefault("openai.model", "gpt-4.1-mini")
	v.SetDefault("openai.system_prompt", "Você é a atendente virtual de um comércio local. Seja educada, direta e responda em português do Brasil.")
	v.SetDefault("whatsapp.api_version", "v24.0")
}

// DefaultProfiles are merged under whatever the file declares, so a config
// that only tweaks "campaign" still gets a sane "conversation" profile.
func DefaultProfiles() map[string]PacingProfile {
	return map[string]PacingProfile{
		ProfileConversation: {MinSeconds: 1, MaxSeconds: 3},
		ProfileCampaign: {
			MinSeconds:          20,
			MaxSeconds:          45,
			LongPauseEvery:      10,
			LongPauseMinSeconds: 120,
			LongPauseMaxSeconds: 300,
		},
	}
}

// Load reads the JSON configuration at path. Any key may be overridden by an
// environment variable: dispatch.dry_run -> BALCAO_DISPATCH_DRY_RUN.
// An empty path means "defaults + environment only".
func Load(path string) (Configuration, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("BALCAO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("json")
		if err := v.ReadInConfig(); err != nil {
			return Configuration{}, errors.Wrapf(err, "config: read %s", path)
		}
	}

	var c Configuration
	if err := v.Unmarshal(&c); err != nil {
		return Configuration{}, errors.Wrap(err, "config: unmarshal")
	}

	profiles := DefaultProfiles()
	for name, p := range c.Pacing.Profiles {
		profiles[name] = p
	}
	c.Pacing.Profiles = profiles

	// defaults (pra evitar zero chato quando o arquivo manda 0)
	if c.Dispatch.BatchLimit <= 0 {
		c.Dispatch.BatchLimit = 25
	}
	if c.Dispatch.MaxErrorLength <= 0 {
		c.Dispatch.MaxErrorLength = 500
	}
	if c.Conversation.AssistCTAThrottleMinutes <= 0 {
		c.Conversation.AssistCTAThrottleMinutes = 5
	}
	if c.Preorder.DefaultTTLHours <= 0 {
		c.Preorder.DefaultTTLHours = 24
	}
	if c.Preorder.HistoryLimit <= 0 {
		c.Preorder.HistoryLimit = 50
	}
	return c, nil
}
