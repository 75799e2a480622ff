package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"friendMeshAPI/internal/relationship"
	"friendMeshAPI/middleware"
	"friendMeshAPI/services"
)

type fakeDirectory struct {
	known map[string]bool
}

func (d *fakeDirectory) Exists(_ context.Context, userID string) (bool, error) {
	return d.known[userID], nil
}

func newTestHandler(known ...string) *FriendsHandler {
	dir := &fakeDirectory{known: make(map[string]bool)}
	for _, id := range known {
		dir.known[id] = true
	}
	controller := relationship.NewController(relationship.NewMemoryStore())
	return NewFriendsHandler(services.NewFriendService(controller, dir))
}

func doRequest(h http.HandlerFunc, method, path, actorID, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if actorID != "" {
		ctx := context.WithValue(req.Context(), middleware.ClerkIDKey, actorID)
		req = req.WithContext(ctx)
	}
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func TestSendRequestHandler(t *testing.T) {
	t.Run("requires authentication", func(t *testing.T) {
		h := newTestHandler("bob")
		rec := doRequest(h.SendRequest, "POST", "/api/v1/friends/requests/send", "", `{"friendId":"bob"}`)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("requires a friend id", func(t *testing.T) {
		h := newTestHandler("bob")
		rec := doRequest(h.SendRequest, "POST", "/api/v1/friends/requests/send", "alice", `{}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("rejects malformed bodies", func(t *testing.T) {
		h := newTestHandler("bob")
		rec := doRequest(h.SendRequest, "POST", "/api/v1/friends/requests/send", "alice", `{"friendId":`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("sends a request", func(t *testing.T) {
		h := newTestHandler("bob")
		rec := doRequest(h.SendRequest, "POST", "/api/v1/friends/requests/send", "alice", `{"friendId":"bob"}`)
		assert.Equal(t, http.StatusOK, rec.Code)

		out := doRequest(h.ListOutgoing, "GET", "/api/v1/friends/requests/out/list", "alice", "")
		require.Equal(t, http.StatusOK, out.Code)

		var ids []string
		require.NoError(t, json.Unmarshal(out.Body.Bytes(), &ids))
		assert.Equal(t, []string{"bob"}, ids)
	})

	t.Run("unknown target is a 404", func(t *testing.T) {
		h := newTestHandler()
		rec := doRequest(h.SendRequest, "POST", "/api/v1/friends/requests/send", "alice", `{"friendId":"ghost"}`)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("self reference is a 400", func(t *testing.T) {
		h := newTestHandler("alice")
		rec := doRequest(h.SendRequest, "POST", "/api/v1/friends/requests/send", "alice", `{"friendId":"alice"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("repeated send reports already_requested with 200", func(t *testing.T) {
		h := newTestHandler("bob")
		rec := doRequest(h.SendRequest, "POST", "/api/v1/friends/requests/send", "alice", `{"friendId":"bob"}`)
		require.Equal(t, http.StatusOK, rec.Code)

		rec = doRequest(h.SendRequest, "POST", "/api/v1/friends/requests/send", "alice", `{"friendId":"bob"}`)
		assert.Equal(t, http.StatusOK, rec.Code)

		var body map[string]string
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "already_requested", body["status"])
	})
}

func TestAcceptRequestHandler(t *testing.T) {
	t.Run("accept without a pending request is a 400", func(t *testing.T) {
		h := newTestHandler("alice", "bob")
		rec := doRequest(h.AcceptRequest, "POST", "/api/v1/friends/requests/accept", "bob", `{"friendId":"alice"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("full send and accept flow", func(t *testing.T) {
		h := newTestHandler("alice", "bob")

		rec := doRequest(h.SendRequest, "POST", "/api/v1/friends/requests/send", "alice", `{"friendId":"bob"}`)
		require.Equal(t, http.StatusOK, rec.Code)

		rec = doRequest(h.AcceptRequest, "POST", "/api/v1/friends/requests/accept", "bob", `{"friendId":"alice"}`)
		require.Equal(t, http.StatusOK, rec.Code)

		friends := doRequest(h.ListFriends, "GET", "/api/v1/friends/list", "alice", "")
		require.Equal(t, http.StatusOK, friends.Code)

		var ids []string
		require.NoError(t, json.Unmarshal(friends.Body.Bytes(), &ids))
		assert.Equal(t, []string{"bob"}, ids)
	})
}

func TestRemoveFriendHandler(t *testing.T) {
	h := newTestHandler("alice", "bob")
	rec := doRequest(h.RemoveFriend, "POST", "/api/v1/friends/remove", "alice", `{"friendId":"bob"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListHandlersReturnEmptySets(t *testing.T) {
	h := newTestHandler()
	for _, list := range []http.HandlerFunc{h.ListFriends, h.ListIncoming, h.ListOutgoing} {
		rec := doRequest(list, "GET", "/api/v1/friends/list", "alice", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `[]`, rec.Body.String())
	}
}
