// Package config provides Viper-based configuration loading for the combat server.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `mapstructure:"level"`
	// Format is the log output format: "json" or "console".
	Format string `mapstructure:"format"`
}

// BattleConfig holds battle scheduler settings.
type BattleConfig struct {
	// RoundInterval is the period of the global battle tick.
	RoundInterval time.Duration `mapstructure:"round_interval"`
	// DefaultDamage is the dice expression used for basic attacks when a
	// participant does not carry its own.
	DefaultDamage string `mapstructure:"default_damage"`
}

// ContentConfig holds the directories definitions are loaded from.
type ContentConfig struct {
	AbilitiesDir  string `mapstructure:"abilities_dir"`
	ConditionsDir string `mapstructure:"conditions_dir"`
	// ScriptsDir holds Lua hook scripts; empty disables scripting.
	ScriptsDir string `mapstructure:"scripts_dir"`
	// NPCsDir holds mobile templates; empty spawns no mobiles.
	NPCsDir string `mapstructure:"npcs_dir"`
	// AIDir holds mobile tactics domains; empty leaves every mobile on its
	// first usable ability.
	AIDir string `mapstructure:"ai_dir"`
}

// WorldConfig holds the settings of the single-room arena the server hosts.
type WorldConfig struct {
	// StartRoom is the room players and mobiles are placed in.
	StartRoom string `mapstructure:"start_room"`
	// MobileInterval is how often mobiles choose abilities.
	MobileInterval time.Duration `mapstructure:"mobile_interval"`
	// RegenInterval is how often resting characters recover stamina and mana.
	RegenInterval time.Duration `mapstructure:"regen_interval"`
	// RegenAmount is restored per resource each RegenInterval; 0 disables regeneration.
	RegenAmount int `mapstructure:"regen_amount"`
}

// ScriptingConfig holds Lua sandbox settings.
type ScriptingConfig struct {
	// InstructionLimit caps opcodes per hook call; 0 uses the sandbox default.
	InstructionLimit int `mapstructure:"instruction_limit"`
}

// TelemetryConfig holds tracing settings.
type TelemetryConfig struct {
	// Enabled turns on the OTLP HTTP trace exporter configured by OTEL_* variables.
	Enabled bool `mapstructure:"enabled"`
	// ServiceName is reported as the service.name resource attribute.
	ServiceName string `mapstructure:"service_name"`
}

// Config is the top-level application configuration.
type Config struct {
	Logging   LoggingConfig   `mapstructure:"logging"`
	Battle    BattleConfig    `mapstructure:"battle"`
	Content   ContentConfig   `mapstructure:"content"`
	World     WorldConfig     `mapstructure:"world"`
	Scripting ScriptingConfig `mapstructure:"scripting"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// Validate checks all configuration invariants.
//
// Postcondition: Returns nil if configuration is valid, or an error describing all violations.
func (c Config) Validate() error {
	var errs []string

	if err := validateLogging(c.Logging); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateBattle(c.Battle); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateContent(c.Content); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateWorld(c.World); err != nil {
		errs = append(errs, err.Error())
	}
	if c.Scripting.InstructionLimit < 0 {
		errs = append(errs, fmt.Sprintf("scripting.instruction_limit must be >= 0, got %d", c.Scripting.InstructionLimit))
	}
	if c.Telemetry.Enabled && c.Telemetry.ServiceName == "" {
		errs = append(errs, "telemetry.service_name must not be empty when telemetry is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func validateLogging(l LoggingConfig) error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[l.Level] {
		return fmt.Errorf("logging.level must be one of [debug, info, warn, error], got %q", l.Level)
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("logging.format must be one of [json, console], got %q", l.Format)
	}
	return nil
}

func validateBattle(b BattleConfig) error {
	var errs []string
	if b.RoundInterval <= 0 {
		errs = append(errs, fmt.Sprintf("battle.round_interval must be > 0, got %s", b.RoundInterval))
	}
	if b.DefaultDamage == "" {
		errs = append(errs, "battle.default_damage must not be empty")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateContent(c ContentConfig) error {
	var errs []string
	if c.AbilitiesDir == "" {
		errs = append(errs, "content.abilities_dir must not be empty")
	}
	if c.ConditionsDir == "" {
		errs = append(errs, "content.conditions_dir must not be empty")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateWorld(w WorldConfig) error {
	var errs []string
	if w.StartRoom == "" {
		errs = append(errs, "world.start_room must not be empty")
	}
	if w.MobileInterval <= 0 {
		errs = append(errs, fmt.Sprintf("world.mobile_interval must be > 0, got %s", w.MobileInterval))
	}
	if w.RegenAmount < 0 {
		errs = append(errs, fmt.Sprintf("world.regen_amount must be >= 0, got %d", w.RegenAmount))
	}
	if w.RegenAmount > 0 && w.RegenInterval <= 0 {
		errs = append(errs, fmt.Sprintf("world.regen_interval must be > 0 when regen_amount is set, got %s", w.RegenInterval))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// Load reads configuration from the given file path, applies environment variable
// overrides, and validates the result.
//
// Precondition: path must be a valid file path to a YAML configuration file.
// Postcondition: Returns a valid Config or a non-nil error.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	// Environment variable overrides with SOLACE_ prefix
	v.SetEnvPrefix("SOLACE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}

	return LoadFromViper(v)
}

// LoadFromViper builds a Config from an already-configured Viper instance.
//
// Precondition: v must be non-nil and have configuration values set.
// Postcondition: Returns a valid Config or a non-nil error.
func LoadFromViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Defaults returns a Viper instance populated only with default values.
func Defaults() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("battle.round_interval", "2s")
	v.SetDefault("battle.default_damage", "1d4")

	v.SetDefault("content.abilities_dir", "content/abilities")
	v.SetDefault("content.conditions_dir", "content/conditions")
	v.SetDefault("content.scripts_dir", "content/scripts")
	v.SetDefault("content.npcs_dir", "content/npcs")
	v.SetDefault("content.ai_dir", "content/ai")

	v.SetDefault("world.start_room", "arena")
	v.SetDefault("world.mobile_interval", "2s")
	v.SetDefault("world.regen_interval", "10s")
	v.SetDefault("world.regen_amount", 5)

	v.SetDefault("scripting.instruction_limit", 0)

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", "solace")
}
