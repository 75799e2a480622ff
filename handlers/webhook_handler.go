package handlers

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/sirupsen/logrus"

	"friendMeshAPI/services"
)

type clerkWebhookEvent struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// WebhookHandler receives identity-provider events. The one that matters
// here is user.deleted: the engine never cleans up after a vanished
// account on its own, so the deletion event is what clears the user's
// relationship records and its entries in everyone else's sets.
type WebhookHandler struct {
	friendService *services.FriendService
}

func NewWebhookHandler(friendService *services.FriendService) *WebhookHandler {
	return &WebhookHandler{
		friendService: friendService,
	}
}

func (h *WebhookHandler) HandleClerkWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		logrus.WithError(err).Error("Error reading webhook body")
		http.Error(w, "Error reading body", http.StatusBadRequest)
		return
	}

	if !verifyWebhookSignature(r, body) {
		logrus.Warn("Invalid webhook signature")
		http.Error(w, "Invalid signature", http.StatusUnauthorized)
		return
	}

	var event clerkWebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		logrus.WithError(err).Error("Error parsing webhook")
		http.Error(w, "Error parsing webhook", http.StatusBadRequest)
		return
	}

	logrus.WithField("event", event.Type).Info("Received webhook event")

	ctx := r.Context()
	switch event.Type {
	case "user.deleted":
		if err := h.handleUserDeleted(ctx, event.Data); err != nil {
			logrus.WithError(err).Error("Error handling user.deleted")
			http.Error(w, "Error processing webhook", http.StatusInternalServerError)
			return
		}

	default:
		logrus.WithField("event", event.Type).Debug("Unhandled webhook event type")
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"success": true}`))
}

func (h *WebhookHandler) handleUserDeleted(ctx context.Context, data json.RawMessage) error {
	var userData struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &userData); err != nil {
		return fmt.Errorf("failed to unmarshal user data: %w", err)
	}
	if userData.ID == "" {
		return fmt.Errorf("user.deleted event without id")
	}

	return h.friendService.PurgeUser(ctx, userData.ID)
}

func verifyWebhookSignature(r *http.Request, body []byte) bool {
	webhookSecret := os.Getenv("CLERK_WEBHOOK_SECRET")
	if webhookSecret == "" {
		logrus.Warn("CLERK_WEBHOOK_SECRET not set, skipping signature verification")
		return true
	}

	svixID := r.Header.Get("svix-id")
	svixTimestamp := r.Header.Get("svix-timestamp")
	svixSignature := r.Header.Get("svix-signature")

	if svixID == "" || svixTimestamp == "" || svixSignature == "" {
		logrus.Warn("Missing webhook signature headers")
		return false
	}

	signedContent := fmt.Sprintf("%s.%s.%s", svixID, svixTimestamp, string(body))

	mac := hmac.New(sha256.New, []byte(webhookSecret))
	mac.Write([]byte(signedContent))
	expectedSignature := hex.EncodeToString(mac.Sum(nil))

	providedSignature := ""
	if len(svixSignature) > 3 && svixSignature[:3] == "v1," {
		providedSignature = svixSignature[3:]
	}

	return hmac.Equal([]byte(expectedSignature), []byte(providedSignature))
}
