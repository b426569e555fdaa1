package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// EngineConfig holds evaluation tunables that can change without a restart.
type EngineConfig struct {
	DefaultThreshold    float64 `mapstructure:"defaultThreshold"`
	AnomalyPercent      float64 `mapstructure:"anomalyPercent"`
	AnomalyLookbackDays int     `mapstructure:"anomalyLookbackDays"`
	MaxParallel         int     `mapstructure:"maxParallel"`
	RetryAttempts       int     `mapstructure:"retryAttempts"`
	RuleTimeoutSeconds  int     `mapstructure:"ruleTimeoutSeconds"`
}

func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		DefaultThreshold:    80,
		AnomalyPercent:      50,
		AnomalyLookbackDays: 7,
		MaxParallel:         4,
		RetryAttempts:       3,
		RuleTimeoutSeconds:  30,
	}
}

type EngineConfigHolder struct {
	current atomic.Value // holds EngineConfig
}

// NewStaticEngineConfigHolder returns a holder that never reloads.
func NewStaticEngineConfigHolder(cfg EngineConfig) *EngineConfigHolder {
	holder := &EngineConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewEngineConfigHolder() (*EngineConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("engine")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/wattwatch")
	v.AddConfigPath(".")

	v.SetEnvPrefix("WATTWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultEngineConfig()
	v.SetDefault("engine.defaultThreshold", defaults.DefaultThreshold)
	v.SetDefault("engine.anomalyPercent", defaults.AnomalyPercent)
	v.SetDefault("engine.anomalyLookbackDays", defaults.AnomalyLookbackDays)
	v.SetDefault("engine.maxParallel", defaults.MaxParallel)
	v.SetDefault("engine.retryAttempts", defaults.RetryAttempts)
	v.SetDefault("engine.ruleTimeoutSeconds", defaults.RuleTimeoutSeconds)

	fileFound := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileFound = false
	}

	cfg, err := decodeEngineConfig(v)
	if err != nil {
		return nil, err
	}
	if err := validateEngineConfig(cfg); err != nil {
		return nil, err
	}

	holder := NewStaticEngineConfigHolder(cfg)
	if !fileFound {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := decodeEngineConfig(v)
		if err != nil {
			log.Printf("[engine-config] reload failed: %v", err)
			return
		}
		if err := validateEngineConfig(updated); err != nil {
			log.Printf("[engine-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[engine-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *EngineConfigHolder) Get() EngineConfig {
	if h == nil {
		return DefaultEngineConfig()
	}
	cfg, ok := h.current.Load().(EngineConfig)
	if !ok {
		return DefaultEngineConfig()
	}
	return cfg
}

// decodeEngineConfig unmarshals through AllSettings so file values merge with defaults.
func decodeEngineConfig(v *viper.Viper) (EngineConfig, error) {
	var wrapper struct {
		Engine EngineConfig `mapstructure:"engine"`
	}
	if err := v.Unmarshal(&wrapper); err != nil {
		return EngineConfig{}, err
	}
	return wrapper.Engine, nil
}

func validateEngineConfig(cfg EngineConfig) error {
	if cfg.DefaultThreshold <= 0 || cfg.DefaultThreshold > 100 {
		return errors.New("engine.defaultThreshold must be within (0, 100]")
	}
	if cfg.AnomalyPercent <= 0 {
		return errors.New("engine.anomalyPercent must be positive")
	}
	if cfg.AnomalyLookbackDays <= 0 {
		return errors.New("engine.anomalyLookbackDays must be positive")
	}
	if cfg.MaxParallel <= 0 {
		return errors.New("engine.maxParallel must be positive")
	}
	if cfg.RetryAttempts <= 0 {
		return errors.New("engine.retryAttempts must be positive")
	}
	if cfg.RuleTimeoutSeconds <= 0 {
		return errors.New("engine.ruleTimeoutSeconds must be positive")
	}
	return nil
}
