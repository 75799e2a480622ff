package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"friendMeshAPI/middleware"
	"friendMeshAPI/services"
)

type UserHandler struct {
	directoryService *services.DirectoryService
	friendService    *services.FriendService
}

func NewUserHandler(directoryService *services.DirectoryService, friendService *services.FriendService) *UserHandler {
	return &UserHandler{
		directoryService: directoryService,
		friendService:    friendService,
	}
}

func (h *UserHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	clerkID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	profile, err := h.directoryService.GetUser(ctx, clerkID)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to fetch profile")
		return
	}
	if profile == nil {
		respondWithError(w, http.StatusNotFound, "User not found")
		return
	}

	respondWithJSON(w, http.StatusOK, profile)
}

func (h *UserHandler) SearchUsers(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	clerkID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	query := r.URL.Query().Get("q")
	if query == "" {
		respondWithError(w, http.StatusBadRequest, "Search query parameter 'q' is required")
		return
	}

	results, err := h.directoryService.Search(ctx, query)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Search failed")
		return
	}

	// Never return the caller in their own search results.
	filtered := results[:0]
	for _, u := range results {
		if u.ID != clerkID {
			filtered = append(filtered, u)
		}
	}

	respondWithJSON(w, http.StatusOK, filtered)
}

// DeleteAccount removes the account from the identity provider and purges
// its relationship records, including every counterpart entry pointing back
// at it.
func (h *UserHandler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()

	clerkID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	if err := h.friendService.PurgeUser(ctx, clerkID); err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to delete account data")
		return
	}

	if err := h.directoryService.Delete(ctx, clerkID); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "DeleteAccount",
			"user_id":  clerkID,
		}).WithError(err).Error("Directory delete failed after purge")
		respondWithError(w, http.StatusInternalServerError, "Failed to delete account")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{"message": "Account deleted successfully"})
}
