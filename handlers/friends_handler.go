package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"friendMeshAPI/internal/relationship"
	"friendMeshAPI/internal/user"
	"friendMeshAPI/middleware"
	"friendMeshAPI/services"
)

const commandTimeout = 5 * time.Second

type FriendsHandler struct {
	friendService *services.FriendService
}

func NewFriendsHandler(friendService *services.FriendService) *FriendsHandler {
	return &FriendsHandler{
		friendService: friendService,
	}
}

func (h *FriendsHandler) SendRequest(w http.ResponseWriter, r *http.Request) {
	h.handleCommand(w, r, "send", h.friendService.SendRequest)
}

func (h *FriendsHandler) AcceptRequest(w http.ResponseWriter, r *http.Request) {
	h.handleCommand(w, r, "accept", h.friendService.AcceptRequest)
}

func (h *FriendsHandler) IgnoreRequest(w http.ResponseWriter, r *http.Request) {
	h.handleCommand(w, r, "ignore", h.friendService.IgnoreRequest)
}

func (h *FriendsHandler) CancelRequest(w http.ResponseWriter, r *http.Request) {
	h.handleCommand(w, r, "cancel", h.friendService.CancelRequest)
}

func (h *FriendsHandler) RemoveFriend(w http.ResponseWriter, r *http.Request) {
	h.handleCommand(w, r, "remove", h.friendService.RemoveFriend)
}

func (h *FriendsHandler) ListFriends(w http.ResponseWriter, r *http.Request) {
	h.handleList(w, r, h.friendService.ListFriends)
}

func (h *FriendsHandler) ListIncoming(w http.ResponseWriter, r *http.Request) {
	h.handleList(w, r, h.friendService.ListIncoming)
}

func (h *FriendsHandler) ListOutgoing(w http.ResponseWriter, r *http.Request) {
	h.handleList(w, r, h.friendService.ListOutgoing)
}

func (h *FriendsHandler) handleCommand(w http.ResponseWriter, r *http.Request, name string, run func(ctx context.Context, actorID, targetID string) error) {
	ctx, cancel := context.WithTimeout(r.Context(), commandTimeout)
	defer cancel()

	clerkID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	var req user.FriendRequestPayload
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.FriendID == "" {
		respondWithError(w, http.StatusBadRequest, "friendId is required")
		return
	}

	err := run(ctx, clerkID, req.FriendID)

	// A repeated send is an idempotent no-op, not a failure.
	if errors.Is(err, relationship.ErrRequestExists) {
		middleware.RecordRelationshipCommand(name, "rejected")
		respondWithJSON(w, http.StatusOK, map[string]string{"status": "already_requested"})
		return
	}

	if err != nil {
		requestID, _ := middleware.GetRequestID(ctx)
		logrus.WithFields(logrus.Fields{
			"function":   "handleCommand",
			"request_id": requestID,
			"command":    name,
			"actor":      clerkID,
			"target":     req.FriendID,
		}).WithError(err).Warn("Command failed")

		switch {
		case relationship.IsRejection(err):
			middleware.RecordRelationshipCommand(name, "rejected")
			if errors.Is(err, relationship.ErrUnknownTarget) {
				respondWithError(w, http.StatusNotFound, err.Error())
				return
			}
			respondWithError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, relationship.ErrConcurrencyExhausted):
			middleware.RecordRelationshipCommand(name, "conflict_exhausted")
			respondWithError(w, http.StatusConflict, err.Error())
		default:
			middleware.RecordRelationshipCommand(name, "store_error")
			respondWithError(w, http.StatusInternalServerError, "Failed to process friend command")
		}
		return
	}

	middleware.RecordRelationshipCommand(name, "ok")
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *FriendsHandler) handleList(w http.ResponseWriter, r *http.Request, run func(ctx context.Context, actorID string) ([]string, error)) {
	ctx, cancel := context.WithTimeout(r.Context(), commandTimeout)
	defer cancel()

	clerkID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	ids, err := run(ctx, clerkID)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to read relationship records")
		return
	}

	respondWithJSON(w, http.StatusOK, ids)
}
