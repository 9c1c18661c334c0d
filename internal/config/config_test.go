package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"HOST", "PORT", "MAX_BODY_BYTES", "READ_TIMEOUT", "WRITE_TIMEOUT",
		"DEBUG", "MODEL_PATH", "METADATA_PATH", "PREPROCESSOR", "LOG_LEVEL", "LOG_FORMAT", "LOG_FILE"} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "0.0.0.0:5000", cfg.Addr())
	require.Equal(t, int64(10<<20), cfg.MaxBodyBytes)
	require.Equal(t, 30*time.Second, cfg.ReadTimeout)
	require.Equal(t, "models/waste_model.onnx", cfg.ModelPath)
	require.Equal(t, "models/waste_model.json", cfg.MetadataPath)
	require.Equal(t, "go", cfg.Preprocessor)
	require.False(t, cfg.Debug)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "8080")
	t.Setenv("DEBUG", "true")
	t.Setenv("MAX_BODY_BYTES", "1024")
	t.Setenv("READ_TIMEOUT", "5s")
	t.Setenv("MODEL_PATH", "/srv/model.onnx")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "8080", cfg.Port)
	require.True(t, cfg.Debug)
	require.Equal(t, int64(1024), cfg.MaxBodyBytes)
	require.Equal(t, 5*time.Second, cfg.ReadTimeout)
	require.Equal(t, "/srv/model.onnx", cfg.ModelPath)
}

func TestLoad_InvalidValues(t *testing.T) {
	t.Setenv("MAX_BODY_BYTES", "lots")
	_, err := Load()
	require.Error(t, err)

	t.Setenv("MAX_BODY_BYTES", "0")
	_, err = Load()
	require.Error(t, err)

	t.Setenv("MAX_BODY_BYTES", "")
	t.Setenv("PORT", "http")
	_, err = Load()
	require.Error(t, err)
}
