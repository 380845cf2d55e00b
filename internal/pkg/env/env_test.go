package env

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGetEnvTypedHelpers(t *testing.T) {
	Env = map[string]string{
		"WORKERS":   "4",
		"BAD_INT":   "four",
		"ENABLED":   "yes",
		"TIMEOUT":   "15s",
		"BAD_DUR":   "-3s",
		"PLAIN_KEY": "value",
	}
	t.Cleanup(func() { Env = nil })

	assert.Equal(t, "value", GetEnv("PLAIN_KEY", "def"))
	assert.Equal(t, "def", GetEnv("MISSING_KEY_TOURMARKET", "def"))

	assert.Equal(t, 4, GetEnvInt("WORKERS", 1))
	assert.Equal(t, 1, GetEnvInt("BAD_INT", 1))
	assert.Equal(t, 7, GetEnvInt("MISSING_KEY_TOURMARKET", 7))

	assert.True(t, GetEnvBool("ENABLED", false))
	assert.False(t, GetEnvBool("MISSING_KEY_TOURMARKET", false))

	assert.Equal(t, 15*time.Second, GetEnvDuration("TIMEOUT", time.Second))
	assert.Equal(t, time.Second, GetEnvDuration("BAD_DUR", time.Second))
}

func TestGetEnvFallsBackToProcessEnv(t *testing.T) {
	Env = map[string]string{}
	t.Cleanup(func() { Env = nil })
	t.Setenv("TOURMARKET_FROM_OS", "os-value")

	assert.Equal(t, "os-value", GetEnv("TOURMARKET_FROM_OS", ""))
}
