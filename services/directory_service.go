package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/clerk/clerk-sdk-go/v2"
	clerkuser "github.com/clerk/clerk-sdk-go/v2/user"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"friendMeshAPI/internal/user"
)

const (
	directoryCacheTTL     = time.Minute
	directoryFetchTimeout = 5 * time.Second
)

type directoryEntry struct {
	user      *user.User
	missing   bool
	fetchedAt time.Time
}

// DirectoryService is the identity-directory collaborator: existence
// checks, profile fetches, nickname search and account deletion against the
// identity provider. Lookups for the same ID are cached for a short window
// and deduplicated with singleflight, so a burst of commands naming the
// same target costs one upstream call instead of one per request.
type DirectoryService struct {
	mu    sync.RWMutex
	cache map[string]directoryEntry
	group singleflight.Group
	ttl   time.Duration
}

func NewDirectoryService() *DirectoryService {
	return &DirectoryService{
		cache: make(map[string]directoryEntry),
		ttl:   directoryCacheTTL,
	}
}

// GetUser fetches a user by ID. Returns (nil, nil) when the account does
// not exist.
func (s *DirectoryService) GetUser(ctx context.Context, userID string) (*user.User, error) {
	s.mu.RLock()
	entry, ok := s.cache[userID]
	s.mu.RUnlock()
	if ok && time.Since(entry.fetchedAt) < s.ttl {
		if entry.missing {
			return nil, nil
		}
		return entry.user, nil
	}

	v, err, _ := s.group.Do(userID, func() (interface{}, error) {
		// The flight outlives the caller that started it: later waiters
		// share this lookup, so a cancelled first caller must not abort it
		// for everyone. Time-boxed instead of inheriting cancellation.
		fetchCtx, cancel := detachedFetchContext(ctx)
		defer cancel()
		return s.fetchUser(fetchCtx, userID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*user.User), nil
}

// Exists reports whether the account is known to the identity provider.
func (s *DirectoryService) Exists(ctx context.Context, userID string) (bool, error) {
	u, err := s.GetUser(ctx, userID)
	if err != nil {
		return false, err
	}
	return u != nil, nil
}

// Search finds accounts by nickname prefix or email.
func (s *DirectoryService) Search(ctx context.Context, query string) ([]*user.User, error) {
	list, err := clerkuser.List(ctx, &clerkuser.ListParams{
		Query: &query,
	})
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Search",
			"query":    query,
		}).WithError(err).Error("Directory search failed")
		return nil, fmt.Errorf("directory search failed: %w", err)
	}

	users := make([]*user.User, 0, len(list.Users))
	for _, u := range list.Users {
		users = append(users, fromClerkUser(u))
	}
	return users, nil
}

// Delete removes the account from the identity provider. The caller is
// responsible for purging the relationship records as well.
func (s *DirectoryService) Delete(ctx context.Context, userID string) error {
	if _, err := clerkuser.Delete(ctx, userID); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Delete",
			"user_id":  userID,
		}).WithError(err).Error("Directory delete failed")
		return fmt.Errorf("failed to delete directory user: %w", err)
	}
	s.invalidate(userID)
	return nil
}

// detachedFetchContext keeps the parent's values but drops its cancellation,
// bounding the lookup by its own timeout instead.
func detachedFetchContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), directoryFetchTimeout)
}

func (s *DirectoryService) fetchUser(ctx context.Context, userID string) (*user.User, error) {
	u, err := clerkuser.Get(ctx, userID)
	if err != nil {
		var apiErr *clerk.APIErrorResponse
		if errors.As(err, &apiErr) && apiErr.Response != nil && apiErr.Response.StatusCode == http.StatusNotFound {
			s.store(userID, directoryEntry{missing: true, fetchedAt: time.Now()})
			return (*user.User)(nil), nil
		}
		logrus.WithFields(logrus.Fields{
			"function": "fetchUser",
			"user_id":  userID,
		}).WithError(err).Error("Directory lookup failed")
		return nil, fmt.Errorf("directory lookup failed: %w", err)
	}

	resolved := fromClerkUser(u)
	s.store(userID, directoryEntry{user: resolved, fetchedAt: time.Now()})
	return resolved, nil
}

func (s *DirectoryService) store(userID string, entry directoryEntry) {
	s.mu.Lock()
	s.cache[userID] = entry
	s.mu.Unlock()
}

func (s *DirectoryService) invalidate(userID string) {
	s.mu.Lock()
	delete(s.cache, userID)
	s.mu.Unlock()
}

func fromClerkUser(u *clerk.User) *user.User {
	out := &user.User{ID: u.ID}
	if u.Username != nil {
		out.Nickname = *u.Username
	}
	if u.ImageURL != nil {
		out.ImageURL = *u.ImageURL
	}
	if len(u.EmailAddresses) > 0 {
		out.Email = u.EmailAddresses[0].EmailAddress
	}
	return out
}
