package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/planorahq/planora/pkg/config"
)

func TestLoad(t *testing.T) {
	type testConfig struct {
		Addr    string `env:"TEST_CFG_ADDR" envDefault:":8080"`
		Retries int    `env:"TEST_CFG_RETRIES" envDefault:"3"`
	}

	t.Run("defaults applied", func(t *testing.T) {
		var cfg testConfig
		require.NoError(t, config.Load(&cfg))
		assert.Equal(t, ":8080", cfg.Addr)
		assert.Equal(t, 3, cfg.Retries)
	})

	t.Run("environment overrides defaults", func(t *testing.T) {
		t.Setenv("TEST_CFG_ADDR", ":9090")
		t.Setenv("TEST_CFG_RETRIES", "5")

		var cfg testConfig
		require.NoError(t, config.Load(&cfg))
		assert.Equal(t, ":9090", cfg.Addr)
		assert.Equal(t, 5, cfg.Retries)
	})

	t.Run("nil pointer", func(t *testing.T) {
		err := config.Load[testConfig](nil)
		assert.ErrorIs(t, err, config.ErrNilPointer)
	})

	t.Run("required variable missing", func(t *testing.T) {
		type strictConfig struct {
			Secret string `env:"TEST_CFG_MISSING_SECRET,required"`
		}
		var cfg strictConfig
		err := config.Load(&cfg)
		assert.ErrorIs(t, err, config.ErrParsingConfig)
	})
}

func TestMustLoad(t *testing.T) {
	type strictConfig struct {
		Secret string `env:"TEST_CFG_PANIC_SECRET,required"`
	}

	assert.Panics(t, func() {
		var cfg strictConfig
		config.MustLoad(&cfg)
	})
}
