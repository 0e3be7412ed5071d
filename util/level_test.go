package util

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, LogLevelDebug, ParseLogLevel("debug"))
	assert.Equal(t, LogLevelInfo, ParseLogLevel("INFO"))
	assert.Equal(t, LogLevelWarn, ParseLogLevel("warning"))
	assert.Equal(t, LogLevelError, ParseLogLevel("error"))
	assert.Equal(t, LogLevelInfo, ParseLogLevel("bogus"))
}

func TestLogLevelUnmarshalYAML(t *testing.T) {
	var byName struct {
		Level LogLevel `yaml:"level"`
	}
	require.NoError(t, yaml.Unmarshal([]byte("level: warn"), &byName))
	assert.Equal(t, LogLevelWarn, byName.Level)

	var byNumber struct {
		Level LogLevel `yaml:"level"`
	}
	require.NoError(t, yaml.Unmarshal([]byte("level: 3"), &byNumber))
	assert.Equal(t, LogLevelError, byNumber.Level)
}

func TestLogLevelUnmarshalJSON(t *testing.T) {
	var byName struct {
		Level LogLevel `json:"level"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"level":"debug"}`), &byName))
	assert.Equal(t, LogLevelDebug, byName.Level)

	var byNumber struct {
		Level LogLevel `json:"level"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"level":2}`), &byNumber))
	assert.Equal(t, LogLevelWarn, byNumber.Level)

	var bad struct {
		Level LogLevel `json:"level"`
	}
	assert.Error(t, json.Unmarshal([]byte(`{"level":[]}`), &bad))
}
