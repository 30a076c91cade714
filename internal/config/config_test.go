package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func validConfig() *Config {
	return &Config{
		AppEnv:                 "production",
		JWTSecret:              "a-proper-random-secret",
		WindowSeconds:          30,
		MinFramesInWindow:      5,
		CriticalRatioThreshold: 0.7,
	}
}

func TestValidate(t *testing.T) {
	t.Run("valid production config", func(t *testing.T) {
		assert.NoError(t, validConfig().Validate())
	})

	t.Run("empty secret", func(t *testing.T) {
		cfg := validConfig()
		cfg.JWTSecret = ""
		assert.Error(t, cfg.Validate())
	})

	t.Run("placeholder secret outside development", func(t *testing.T) {
		cfg := validConfig()
		cfg.JWTSecret = placeholderJWTSecret
		assert.Error(t, cfg.Validate())
	})

	t.Run("placeholder secret tolerated in development", func(t *testing.T) {
		cfg := validConfig()
		cfg.AppEnv = "development"
		cfg.JWTSecret = placeholderJWTSecret
		assert.NoError(t, cfg.Validate())
	})

	t.Run("risk window must be positive", func(t *testing.T) {
		cfg := validConfig()
		cfg.WindowSeconds = 0
		assert.Error(t, cfg.Validate())

		cfg = validConfig()
		cfg.MinFramesInWindow = 0
		assert.Error(t, cfg.Validate())
	})

	t.Run("ratio bounds", func(t *testing.T) {
		cfg := validConfig()
		cfg.CriticalRatioThreshold = 0
		assert.Error(t, cfg.Validate())

		cfg = validConfig()
		cfg.CriticalRatioThreshold = 1.5
		assert.Error(t, cfg.Validate())

		cfg = validConfig()
		cfg.CriticalRatioThreshold = 1
		assert.NoError(t, cfg.Validate())
	})
}

func TestParseOrigins(t *testing.T) {
	assert.Nil(t, parseOrigins(""))
	assert.Equal(t,
		[]string{"https://exam.example.com", "http://localhost:5173"},
		parseOrigins(" https://exam.example.com , http://localhost:5173 ,"))
}
