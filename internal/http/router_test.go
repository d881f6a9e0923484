package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaygram/server/internal/chatlog"
	"github.com/relaygram/server/internal/directory"
	"github.com/relaygram/server/internal/http/handlers"
	"github.com/relaygram/server/internal/metrics"
	"github.com/relaygram/server/internal/relay"
	"github.com/relaygram/server/internal/session"
	"github.com/relaygram/server/internal/storage"
	"github.com/relaygram/server/internal/verify"
)

type apiFixture struct {
	server    *httptest.Server
	issuer    *verify.Issuer
	sessions  *session.Manager
	directory *directory.Directory
	chatlog   *chatlog.Log
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	ctx := context.Background()

	store, err := storage.NewFileStore(t.TempDir())
	require.NoError(t, err)
	dir, err := directory.Load(ctx, store)
	require.NoError(t, err)
	chat, err := chatlog.Load(ctx, store)
	require.NoError(t, err)

	m := metrics.NewWith(prometheus.NewRegistry())
	issuer := verify.NewIssuer()
	sessions := session.NewManager()
	rly := relay.New(relay.NewRegistry(), sessions, dir, chat, m)

	router := NewRouter(
		handlers.NewAuthHandler(dir, issuer, sessions, m),
		handlers.NewUserHandler(dir, chat),
		sessions,
		rly,
	)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return &apiFixture{
		server:    srv,
		issuer:    issuer,
		sessions:  sessions,
		directory: dir,
		chatlog:   chat,
	}
}

func (f *apiFixture) postJSON(t *testing.T, path string, body any) (*http.Response, map[string]any) {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(f.server.URL+path, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	return resp, decodeBody(t, resp)
}

func (f *apiFixture) get(t *testing.T, path string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Get(f.server.URL + path)
	require.NoError(t, err)
	return resp, decodeBody(t, resp)
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

// login runs the full check-phone / verify-code flow for a number and
// returns a live session token. The fixture holds the issuer, so a reissue
// hands the test a code it can actually type in.
func (f *apiFixture) login(t *testing.T, phone string) string {
	t.Helper()

	resp, _ := f.postJSON(t, "/api/auth/check-phone", map[string]string{"phoneNumber": phone})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	code := f.issuer.Issue(phone)
	resp, body := f.postJSON(t, "/api/auth/verify-code", map[string]string{
		"phoneNumber": phone, "code": code,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	token, _ := body["sessionId"].(string)
	require.NotEmpty(t, token)
	return token
}

func TestCheckPhone(t *testing.T) {
	f := newAPIFixture(t)

	resp, body := f.postJSON(t, "/api/auth/check-phone", map[string]string{"phoneNumber": "+375000"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["registered"])
	assert.Equal(t, true, body["isNew"])

	_, ok := f.directory.Find("+375000")
	assert.True(t, ok, "check-phone registers unseen numbers")

	resp, body = f.postJSON(t, "/api/auth/check-phone", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body["error"], "phoneNumber")
}

func TestVerifyCode(t *testing.T) {
	f := newAPIFixture(t)

	resp, _ := f.postJSON(t, "/api/auth/verify-code", map[string]string{
		"phoneNumber": "+375000", "code": "12345",
	})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode, "unknown number")

	resp, _ = f.postJSON(t, "/api/auth/check-phone", map[string]string{"phoneNumber": "+375000"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	code := f.issuer.Issue("+375000")
	resp, _ = f.postJSON(t, "/api/auth/verify-code", map[string]string{
		"phoneNumber": "+375000", "code": code + "9",
	})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, "wrong code")

	resp, body := f.postJSON(t, "/api/auth/verify-code", map[string]string{
		"phoneNumber": "+375000", "code": code,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, body["sessionId"])

	resp, _ = f.postJSON(t, "/api/auth/verify-code", map[string]string{
		"phoneNumber": "+375000", "code": code,
	})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, "codes are single-use")
}

func TestSetUsername(t *testing.T) {
	f := newAPIFixture(t)
	alice := f.login(t, "+375000")
	bob := f.login(t, "+375001")

	resp, _ := f.postJSON(t, "/api/auth/set-username", map[string]string{
		"sessionId": "forged", "username": "alice",
	})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, body := f.postJSON(t, "/api/auth/set-username", map[string]string{
		"sessionId": alice, "username": "alice",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "alice", body["username"])

	resp, _ = f.postJSON(t, "/api/auth/set-username", map[string]string{
		"sessionId": alice, "username": "other",
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode, "username is set exactly once")

	resp, _ = f.postJSON(t, "/api/auth/set-username", map[string]string{
		"sessionId": bob, "username": "Alice",
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode, "case-insensitive uniqueness")
}

func TestProtectedEndpoints_requireSession(t *testing.T) {
	f := newAPIFixture(t)

	for _, path := range []string{"/api/users", "/api/users/search", "/api/chats", "/api/messages"} {
		resp, _ := f.get(t, path)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, path)

		resp, _ = f.get(t, path+"?sessionId=forged")
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, path)
	}
}

func TestListUsers_excludesSelf(t *testing.T) {
	f := newAPIFixture(t)
	token := f.login(t, "+375000")
	f.login(t, "+375001")

	resp, body := f.get(t, "/api/users?sessionId="+token)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	users := body["users"].([]any)
	require.Len(t, users, 1)
	entry := users[0].(map[string]any)
	assert.Equal(t, "+375001", entry["phoneNumber"])
	assert.Nil(t, entry["lastMessage"])
}

func TestSearch(t *testing.T) {
	f := newAPIFixture(t)
	token := f.login(t, "+375000")

	resp, body := f.get(t, "/api/users/search?sessionId="+token+"&query="+url.QueryEscape("+375999999"))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	users := body["users"].([]any)
	require.Len(t, users, 1)
	entry := users[0].(map[string]any)
	assert.Equal(t, false, entry["exists"])
	assert.Equal(t, true, entry["isNewContact"])
}

func TestChatsAndHistory(t *testing.T) {
	f := newAPIFixture(t)
	token := f.login(t, "+375000")
	f.login(t, "+375001")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		from, to := "+375000", "+375001"
		if i%2 == 1 {
			from, to = to, from
		}
		_, err := f.chatlog.Append(ctx, from, to, fmt.Sprintf("msg %d", i))
		require.NoError(t, err)
	}

	resp, body := f.get(t, "/api/chats?sessionId="+token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	chats := body["chats"].([]any)
	require.Len(t, chats, 1)
	chat := chats[0].(map[string]any)
	assert.Equal(t, "+375001", chat["phoneNumber"])
	assert.Equal(t, float64(0), chat["unreadCount"])
	last := chat["lastMessage"].(map[string]any)
	assert.Equal(t, "msg 2", last["text"])
	assert.Equal(t, true, last["isOwn"])

	resp, _ = f.get(t, "/api/messages?sessionId="+token)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "withPhone is required")

	resp, _ = f.get(t, "/api/messages?sessionId="+token+"&withPhone="+url.QueryEscape("+375777"))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode, "unknown counterpart")

	resp, body = f.get(t, "/api/messages?sessionId="+token+"&withPhone="+url.QueryEscape("+375001"))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	msgs := body["messages"].([]any)
	require.Len(t, msgs, 3)
	assert.Equal(t, "msg 0", msgs[0].(map[string]any)["text"])
	assert.Equal(t, "msg 2", msgs[2].(map[string]any)["text"])
}

func TestDebugSessionAndHealth(t *testing.T) {
	f := newAPIFixture(t)
	token := f.login(t, "+375000")

	resp, body := f.get(t, "/api/debug/session?sessionId="+token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["valid"])
	assert.Equal(t, "+375000", body["userPhone"])

	resp, body = f.get(t, "/api/debug/session?sessionId=forged")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, body["valid"])

	resp, body = f.get(t, "/health")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
}
