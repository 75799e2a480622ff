package user

type FriendRequestPayload struct {
	FriendID string `json:"friendId" validate:"required"`
}
