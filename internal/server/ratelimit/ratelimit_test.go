package ratelimit

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConnectionLimit(t *testing.T) {
	rl := New(Limits{MaxConnsPerIP: 2, AuthPerMinute: 5})
	defer rl.Stop()

	assert.True(t, rl.CanConnect("10.0.0.1"))
	rl.AddConnection("10.0.0.1")
	assert.True(t, rl.CanConnect("10.0.0.1"))
	rl.AddConnection("10.0.0.1")
	assert.False(t, rl.CanConnect("10.0.0.1"))

	// other IPs are unaffected
	assert.True(t, rl.CanConnect("10.0.0.2"))

	rl.RemoveConnection("10.0.0.1")
	assert.True(t, rl.CanConnect("10.0.0.1"))
}

func TestAuthLimit(t *testing.T) {
	rl := New(Limits{MaxConnsPerIP: 5, AuthPerMinute: 3})
	defer rl.Stop()

	for i := 0; i < 3; i++ {
		assert.True(t, rl.CanAuth("10.0.0.1"))
	}
	assert.False(t, rl.CanAuth("10.0.0.1"))
	assert.True(t, rl.CanAuth("10.0.0.2"))
}

func TestStopIsIdempotent(t *testing.T) {
	rl := New(Limits{})
	rl.Stop()
	rl.Stop()
}

func TestGetClientIP(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "192.168.1.9:4321"
	assert.Equal(t, "192.168.1.9", GetClientIP(r))

	r.Header.Set("X-Real-IP", "203.0.113.7")
	assert.Equal(t, "203.0.113.7", GetClientIP(r))

	r.Header.Set("X-Forwarded-For", "198.51.100.4")
	assert.Equal(t, "198.51.100.4", GetClientIP(r))
}
