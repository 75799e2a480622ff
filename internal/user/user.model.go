package user

// User is the directory view of an account, resolved from the identity
// provider. The relationship records only ever hold the ID.
type User struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Nickname string `json:"nickname"`
	ImageURL string `json:"imageUrl,omitempty"`
}
