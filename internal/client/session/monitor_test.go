package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peopledesk/peopledesk/internal/client/auth"
	"github.com/peopledesk/peopledesk/internal/client/transport"
)

func newMonitor(t *testing.T, status *atomic.Int64, interval time.Duration) (*Monitor, *auth.Store, *atomic.Int64) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(int(status.Load()))
	}))
	t.Cleanup(srv.Close)

	creds := auth.New("")
	creds.SetToken("tok")

	var expired atomic.Int64
	m := New(Options{
		Transport: transport.New(transport.Options{Creds: creds}),
		Creds:     creds,
		StatusURL: srv.URL + "/api/auth/session",
		Interval:  interval,
		OnExpired: func() { expired.Add(1) },
	})
	return m, creds, &expired
}

func TestCheckValidSessionDoesNothing(t *testing.T) {
	var status atomic.Int64
	status.Store(http.StatusOK)
	m, creds, expired := newMonitor(t, &status, time.Hour)

	m.CheckNow(context.Background())
	assert.Equal(t, "tok", creds.Token())
	assert.EqualValues(t, 0, expired.Load())
}

func TestCheckUnauthorizedClearsAndNavigates(t *testing.T) {
	var status atomic.Int64
	status.Store(http.StatusUnauthorized)
	m, creds, expired := newMonitor(t, &status, time.Hour)

	m.CheckNow(context.Background())
	assert.Empty(t, creds.Token())
	assert.EqualValues(t, 1, expired.Load())

	// credential already gone: no redundant logout
	m.CheckNow(context.Background())
	assert.EqualValues(t, 1, expired.Load())
}

func TestTransientFailureIsNotLogout(t *testing.T) {
	var status atomic.Int64
	status.Store(http.StatusServiceUnavailable)
	m, creds, expired := newMonitor(t, &status, time.Hour)

	m.CheckNow(context.Background())
	assert.Equal(t, "tok", creds.Token())
	assert.EqualValues(t, 0, expired.Load())
}

func TestNetworkFailureIsNotLogout(t *testing.T) {
	creds := auth.New("")
	creds.SetToken("tok")
	var expired atomic.Int64
	m := New(Options{
		Transport: transport.New(transport.Options{Creds: creds}),
		Creds:     creds,
		StatusURL: "http://127.0.0.1:1/api/auth/session",
		OnExpired: func() { expired.Add(1) },
	})

	m.CheckNow(context.Background())
	assert.Equal(t, "tok", creds.Token())
	assert.EqualValues(t, 0, expired.Load())
}

func TestStartStopLifecycle(t *testing.T) {
	var status atomic.Int64
	status.Store(http.StatusOK)
	m, _, _ := newMonitor(t, &status, 10*time.Millisecond)

	require.False(t, m.Running())
	m.Start()
	m.Start() // idempotent
	require.True(t, m.Running())

	time.Sleep(35 * time.Millisecond)

	m.Stop()
	m.Stop() // idempotent
	require.False(t, m.Running())

	// re-arming works after a stop
	m.Start()
	require.True(t, m.Running())
	m.Stop()
}

func TestNoTickAfterStop(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	creds := auth.New("")
	creds.SetToken("tok")
	m := New(Options{
		Transport: transport.New(transport.Options{Creds: creds}),
		Creds:     creds,
		StatusURL: srv.URL,
		Interval:  5 * time.Millisecond,
	})

	m.Start()
	time.Sleep(25 * time.Millisecond)
	m.Stop()

	settled := calls.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, settled, calls.Load())
}
