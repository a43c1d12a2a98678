package transport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peopledesk/peopledesk/internal/client/auth"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *auth.Store, *httptest.Server, *int) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	creds := auth.New("")
	expirations := 0
	c := New(Options{
		Creds:            creds,
		LogoutPath:       "/api/auth/logout",
		OnSessionExpired: func() { expirations++ },
	})
	return c, creds, srv, &expirations
}

func TestBearerInjection(t *testing.T) {
	var gotAuth string
	c, creds, srv, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
	}))

	// no credential: no header
	_, err := c.Call(context.Background(), http.MethodGet, srv.URL+"/api/ping")
	require.NoError(t, err)
	assert.Empty(t, gotAuth)

	// credential present: Bearer header
	creds.SetToken("tok-42")
	_, err = c.Call(context.Background(), http.MethodGet, srv.URL+"/api/ping")
	require.NoError(t, err)
	assert.Equal(t, "Bearer tok-42", gotAuth)

	// explicit opt-out
	_, err = c.Call(context.Background(), http.MethodGet, srv.URL+"/api/ping", WithoutAuth())
	require.NoError(t, err)
	assert.Empty(t, gotAuth)
}

func TestDefaultHeaders(t *testing.T) {
	var ct, accept, custom string
	c, _, srv, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ct = r.Header.Get("Content-Type")
		accept = r.Header.Get("Accept")
		custom = r.Header.Get("X-Request-Source")
	}))

	_, err := c.Call(context.Background(), http.MethodGet, srv.URL,
		WithHeader("X-Request-Source", "tui"))
	require.NoError(t, err)
	assert.Equal(t, "application/json", ct)
	assert.Equal(t, "application/json", accept)
	assert.Equal(t, "tui", custom)
}

func TestUnauthorizedForcesLogoutOnce(t *testing.T) {
	c, creds, srv, expirations := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	creds.SetToken("tok")

	_, err := c.Call(context.Background(), http.MethodGet, srv.URL+"/api/chat/sidebar")
	assert.ErrorIs(t, err, ErrSessionExpired)
	assert.Empty(t, creds.Token())
	assert.Equal(t, 1, *expirations)

	// already logged out: no second navigation
	_, err = c.Call(context.Background(), http.MethodGet, srv.URL+"/api/chat/sidebar")
	assert.ErrorIs(t, err, ErrSessionExpired)
	assert.Equal(t, 1, *expirations)
}

func TestUnauthorizedOnLogoutURLIsPlainError(t *testing.T) {
	c, creds, srv, expirations := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	creds.SetToken("tok")

	_, err := c.Call(context.Background(), http.MethodPost, srv.URL+"/api/auth/logout")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Equal(t, "tok", creds.Token())
	assert.Equal(t, 0, *expirations)
}

func TestUnauthorizedWithoutSessionGuard(t *testing.T) {
	c, creds, srv, expirations := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	creds.SetToken("tok")

	_, err := c.Call(context.Background(), http.MethodGet, srv.URL+"/api/auth/session", WithoutSessionGuard())
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Equal(t, "tok", creds.Token())
	assert.Equal(t, 0, *expirations)
}

func TestEmptyBodyYieldsNil(t *testing.T) {
	c, _, srv, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	v, err := c.Call(context.Background(), http.MethodGet, srv.URL)
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestJSONBodyIsParsed(t *testing.T) {
	c, _, srv, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"a":1}`))
	}))

	v, err := c.Call(context.Background(), http.MethodGet, srv.URL)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": float64(1)}, v)
}

func TestMalformedJSONFallsBackToText(t *testing.T) {
	c, _, srv, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{bad json`))
	}))

	v, err := c.Call(context.Background(), http.MethodGet, srv.URL)
	require.NoError(t, err)
	assert.Equal(t, `{bad json`, v)
}

func TestNonJSONContentTypeReturnsText(t *testing.T) {
	c, _, srv, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("pong"))
	}))

	v, err := c.Call(context.Background(), http.MethodGet, srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "pong", v)
}

func TestErrorMessageExtraction(t *testing.T) {
	c, _, srv, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"message":"Invalid input"}`))
	}))

	_, err := c.Call(context.Background(), http.MethodPost, srv.URL)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, "Invalid input", apiErr.Message)
	assert.Equal(t, "Invalid input", apiErr.Error())
	assert.Equal(t, `{"message":"Invalid input"}`, apiErr.Body)
}

func TestErrorWithoutMessageField(t *testing.T) {
	c, _, srv, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("boom"))
	}))

	_, err := c.Call(context.Background(), http.MethodGet, srv.URL)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusInternalServerError, apiErr.Status)
	assert.Equal(t, "request failed with status 500", apiErr.Error())
}

func TestTransportErrorPropagates(t *testing.T) {
	c := New(Options{Creds: auth.New("")})
	_, err := c.Call(context.Background(), http.MethodGet, "http://127.0.0.1:1/unreachable")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrSessionExpired)
	var apiErr *APIError
	assert.False(t, errors.As(err, &apiErr))
}

func TestRequestBodyEncoding(t *testing.T) {
	var got string
	c, _, srv, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := make([]byte, r.ContentLength)
		r.Body.Read(buf)
		got = string(buf)
	}))

	_, err := c.Call(context.Background(), http.MethodPost, srv.URL,
		WithBody(map[string]string{"email": "a@b.c"}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"email":"a@b.c"}`, got)
}

func TestCallJSONDecodesInto(t *testing.T) {
	c, _, srv, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"updated":3}`))
	}))

	var out struct {
		Updated int `json:"updated"`
	}
	require.NoError(t, c.CallJSON(context.Background(), http.MethodPut, srv.URL, &out))
	assert.Equal(t, 3, out.Updated)
}
