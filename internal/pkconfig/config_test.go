package pkconfig

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_NoFileUsesDefaults(t *testing.T) {
	cfg, err := Load("/nonexistent/path/config.yaml")
	require.NoError(t, err)
	assert.Equal(t, ":11000", cfg.Listen)
	assert.Equal(t, "INFO", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, ":11099", cfg.Admin.Addr)
	assert.False(t, cfg.Telemetry.Enabled)
}

func TestApplyDefaults_PreservesExplicitValues(t *testing.T) {
	cfg := &Config{Listen: ":9999", Logging: LoggingConfig{Level: "debug"}}
	ApplyDefaults(cfg)
	assert.Equal(t, ":9999", cfg.Listen)
	assert.Equal(t, "DEBUG", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
}

func TestValidate_RejectsBadLevel(t *testing.T) {
	cfg := &Config{
		Listen:          ":11000",
		ShutdownTimeout: 1,
		Logging:         LoggingConfig{Level: "LOUD", Format: "text", Output: "stdout"},
	}
	err := Validate(cfg)
	require.Error(t, err)
}

func TestValidate_AcceptsDefaulted(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)
	require.NoError(t, Validate(cfg))
}
