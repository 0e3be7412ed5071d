package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseInt(t *testing.T) {
	assert.Equal(t, 42, ParseInt("42", 0))
	assert.Equal(t, -7, ParseInt("-7", 0))
	assert.Equal(t, 99, ParseInt("nope", 99))
	assert.Equal(t, 99, ParseInt("", 99))
}

func TestParseInt64(t *testing.T) {
	assert.Equal(t, int64(52428800), ParseInt64("52428800", 0))
	assert.Equal(t, int64(123), ParseInt64("1.5", 123))
}

func TestParseBool(t *testing.T) {
	assert.True(t, ParseBool("true", false))
	assert.True(t, ParseBool("1", false))
	assert.False(t, ParseBool("false", true))
	assert.True(t, ParseBool("yes", true), "unparsable keeps the fallback")
}
