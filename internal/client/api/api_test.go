package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peopledesk/peopledesk/internal/client/auth"
	"github.com/peopledesk/peopledesk/internal/client/transport"
)

func newAPI(t *testing.T, handler http.Handler) (*Client, *auth.Store) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	creds := auth.New("")
	tr := transport.New(transport.Options{Creds: creds, LogoutPath: LogoutPath})
	return New(tr, creds, srv.URL), creds
}

func TestLoginStoresCredential(t *testing.T) {
	api, creds := newAPI(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, LoginPath, r.URL.Path)
		require.Empty(t, r.Header.Get("Authorization"), "login must not carry a bearer")

		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		require.Equal(t, "dana@example.com", body["email"])

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(LoginResult{
			Token: "tok-1",
			User:  &auth.Profile{ID: 7, Name: "Dana", Role: "hr"},
		})
	}))

	res, err := api.Login(context.Background(), "dana@example.com", "pw")
	require.NoError(t, err)
	assert.Equal(t, "tok-1", res.Token)
	assert.Equal(t, "tok-1", creds.Token())
	require.NotNil(t, creds.Profile())
	assert.Equal(t, 7, creds.Profile().ID)
}

func TestLogoutClearsEvenOnError(t *testing.T) {
	api, creds := newAPI(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	creds.SetToken("tok")

	err := api.Logout(context.Background())
	require.Error(t, err)
	var apiErr *transport.APIError
	assert.ErrorAs(t, err, &apiErr, "logout 401 stays a plain HTTP error")
	assert.Empty(t, creds.Token())
}

func TestSidebarAndHistory(t *testing.T) {
	api, creds := newAPI(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case SidebarPath:
			w.Write([]byte(`[{"otherUserId":5,"otherUserName":"Priya","lastMessage":"ok","unreadCount":2,"online":true,"role":"manager"}]`))
		case MessagesPath + "/5":
			w.Write([]byte(`[{"senderId":5,"receiverId":7,"content":"hi","createdAt":"2025-06-01T09:30:00Z"}]`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	creds.SetToken("tok")

	convs, err := api.Sidebar(context.Background())
	require.NoError(t, err)
	require.Len(t, convs, 1)
	assert.Equal(t, 5, convs[0].OtherUserID)
	assert.Equal(t, 2, convs[0].UnreadCount)

	msgs, err := api.History(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "hi", msgs[0].Content)
	assert.False(t, msgs[0].Timestamp.IsZero(), "createdAt decoded into Timestamp")
}

func TestMarkRead(t *testing.T) {
	api, creds := newAPI(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)
		require.Equal(t, ReadPath+"/5", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"updated":3}`))
	}))
	creds.SetToken("tok")

	n, err := api.MarkRead(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestNotificationCounts(t *testing.T) {
	api, creds := newAPI(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.URL.Path == NotifCountsPath:
			w.Write([]byte(`{"messages":4,"courses":1}`))
		case r.URL.Path == NotifReadPath && r.Method == http.MethodPut:
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	creds.SetToken("tok")

	counts, err := api.NotificationCounts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, counts["messages"])

	require.NoError(t, api.MarkAllNotificationsRead(context.Background()))
}

func TestSessionStatus(t *testing.T) {
	status := http.StatusOK
	api, creds := newAPI(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))
	creds.SetToken("tok")

	require.NoError(t, api.SessionStatus(context.Background()))

	status = http.StatusUnauthorized
	err := api.SessionStatus(context.Background())
	var apiErr *transport.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	// guard was bypassed: the credential is untouched
	assert.Equal(t, "tok", creds.Token())
}
