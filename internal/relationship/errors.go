package relationship

import "errors"

// Command rejections, matched by callers with errors.Is.
var (
	ErrSelfReference     = errors.New("you cannot request yourself")
	ErrUnknownTarget     = errors.New("invalid friend id")
	ErrAlreadyFriends    = errors.New("you are already friends")
	ErrRequestExists     = errors.New("request already exists")
	ErrNoPendingRequest  = errors.New("no pending request")
	ErrNoOutgoingRequest = errors.New("no outgoing request")
	ErrNotFriends        = errors.New("you are not friends")
)

// Infrastructure failures. These are the only kinds a caller may retry.
var (
	ErrConcurrencyExhausted = errors.New("too many concurrent updates, try again")
	ErrStoreUnavailable     = errors.New("relationship store unavailable")
)

// IsRejection reports whether err is a validation rejection: the command was
// refused from the snapshot alone and no state was written.
func IsRejection(err error) bool {
	for _, kind := range []error{
		ErrSelfReference,
		ErrUnknownTarget,
		ErrAlreadyFriends,
		ErrRequestExists,
		ErrNoPendingRequest,
		ErrNoOutgoingRequest,
		ErrNotFriends,
	} {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}
