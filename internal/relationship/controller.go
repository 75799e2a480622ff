package relationship

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"
)

const (
	defaultMaxAttempts = 5
	defaultBackoffBase = 10 * time.Millisecond
)

type recordKey struct {
	kind   Kind
	userID string
}

// Controller executes engine commands against the store as optimistic
// read-modify-write transactions. The store has no multi-key atomicity, so
// every write is conditional on the revision read at the start of the
// attempt; a conflict on any key restarts the whole attempt. Writes already
// committed before a conflict are not rolled back; the engine's idempotent
// transitions make the pair state converge on the next touch.
type Controller struct {
	store       Store
	maxAttempts int
	backoffBase time.Duration

	// OnConflict is invoked once per conflicted attempt, for metrics.
	OnConflict func(cmd Command)
}

func NewController(store Store) *Controller {
	return &Controller{
		store:       store,
		maxAttempts: defaultMaxAttempts,
		backoffBase: defaultBackoffBase,
	}
}

// Execute runs one command to completion: at most maxAttempts optimistic
// attempts with jittered backoff between them. Rejections come back from
// the snapshot alone, without writes.
func (c *Controller) Execute(ctx context.Context, cmd Command, actor, target string) error {
	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		if attempt > 0 {
			if err := c.backoff(ctx, attempt); err != nil {
				return err
			}
		}

		snap, revisions, err := c.readSnapshot(ctx, cmd, actor, target)
		if err != nil {
			return err
		}

		changes, err := Apply(cmd, actor, target, snap)
		if err != nil {
			return err
		}

		conflicted := false
		for _, change := range changes {
			key := recordKey{kind: change.Kind, userID: change.UserID}
			err := c.store.CompareAndPut(ctx, change.Kind, change.UserID, change.Members, revisions[key])
			if errors.Is(err, ErrRevisionConflict) {
				conflicted = true
				if c.OnConflict != nil {
					c.OnConflict(cmd)
				}
				break
			}
			if err != nil {
				return fmt.Errorf("%w: writing %s/%s: %v", ErrStoreUnavailable, change.Kind, change.UserID, err)
			}
		}
		if !conflicted {
			return nil
		}
	}
	return ErrConcurrencyExhausted
}

// List reads one of the actor's records. A missing record is an empty set.
func (c *Controller) List(ctx context.Context, kind Kind, userID string) ([]string, error) {
	rec, err := c.store.Get(ctx, kind, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s/%s: %v", ErrStoreUnavailable, kind, userID, err)
	}
	if rec.Members == nil {
		return []string{}, nil
	}
	return rec.Members, nil
}

// PurgeUser removes every trace of a deleted account: the user is swept out
// of all three records of every counterpart reachable from its own sets,
// then the user's own records are deleted. Called by the account-deletion
// collaborator, never by the engine.
func (c *Controller) PurgeUser(ctx context.Context, userID string) error {
	counterparts := make(map[string]struct{})
	for _, kind := range Kinds {
		rec, err := c.store.Get(ctx, kind, userID)
		if err != nil {
			return fmt.Errorf("%w: reading %s/%s: %v", ErrStoreUnavailable, kind, userID, err)
		}
		for _, other := range rec.Members {
			counterparts[other] = struct{}{}
		}
	}

	// Sweep all three kinds per counterpart, not only the expected one, so
	// residue from past partial failures goes away with the account.
	for other := range counterparts {
		for _, kind := range Kinds {
			if err := c.removeMember(ctx, kind, other, userID); err != nil {
				return err
			}
		}
	}

	for _, kind := range Kinds {
		if err := c.store.Delete(ctx, kind, userID); err != nil {
			return fmt.Errorf("%w: deleting %s/%s: %v", ErrStoreUnavailable, kind, userID, err)
		}
	}
	return nil
}

// removeMember drops member from (kind, owner) with its own bounded CAS
// loop. A record that does not list the member is left alone.
func (c *Controller) removeMember(ctx context.Context, kind Kind, owner, member string) error {
	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		if attempt > 0 {
			if err := c.backoff(ctx, attempt); err != nil {
				return err
			}
		}

		rec, err := c.store.Get(ctx, kind, owner)
		if err != nil {
			return fmt.Errorf("%w: reading %s/%s: %v", ErrStoreUnavailable, kind, owner, err)
		}
		if !contains(rec.Members, member) {
			return nil
		}

		err = c.store.CompareAndPut(ctx, kind, owner, remove(rec.Members, member), rec.Revision)
		if errors.Is(err, ErrRevisionConflict) {
			continue
		}
		if err != nil {
			return fmt.Errorf("%w: writing %s/%s: %v", ErrStoreUnavailable, kind, owner, err)
		}
		return nil
	}
	return ErrConcurrencyExhausted
}

// readSnapshot reads only the records the command may touch, recording the
// revision of each for the conditional writes.
func (c *Controller) readSnapshot(ctx context.Context, cmd Command, actor, target string) (Snapshot, map[recordKey]int64, error) {
	var snap Snapshot
	revisions := make(map[recordKey]int64)

	read := func(kind Kind, userID string, dst *[]string) error {
		rec, err := c.store.Get(ctx, kind, userID)
		if err != nil {
			return fmt.Errorf("%w: reading %s/%s: %v", ErrStoreUnavailable, kind, userID, err)
		}
		*dst = rec.Members
		revisions[recordKey{kind: kind, userID: userID}] = rec.Revision
		return nil
	}

	type slot struct {
		kind Kind
		user string
		dst  *[]string
	}
	var keys []slot
	switch cmd {
	case CommandSend, CommandAccept:
		keys = []slot{
			{KindFriends, actor, &snap.ActorFriends},
			{KindIncoming, actor, &snap.ActorIn},
			{KindOutgoing, actor, &snap.ActorOut},
			{KindFriends, target, &snap.TargetFriends},
			{KindIncoming, target, &snap.TargetIn},
			{KindOutgoing, target, &snap.TargetOut},
		}
	case CommandIgnore:
		keys = []slot{
			{KindIncoming, actor, &snap.ActorIn},
		}
	case CommandCancel:
		keys = []slot{
			{KindIncoming, actor, &snap.ActorIn},
			{KindOutgoing, actor, &snap.ActorOut},
			{KindIncoming, target, &snap.TargetIn},
			{KindOutgoing, target, &snap.TargetOut},
		}
	case CommandRemove:
		keys = []slot{
			{KindFriends, actor, &snap.ActorFriends},
			{KindFriends, target, &snap.TargetFriends},
		}
	}

	for _, k := range keys {
		if err := read(k.kind, k.user, k.dst); err != nil {
			return Snapshot{}, nil, err
		}
	}
	return snap, revisions, nil
}

// backoff sleeps for an exponentially growing, jittered interval before the
// given retry attempt, or returns early when the context is done.
func (c *Controller) backoff(ctx context.Context, attempt int) error {
	d := c.backoffBase << (attempt - 1)
	d = d/2 + time.Duration(rand.Int63n(int64(d)))

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, ctx.Err())
	case <-timer.C:
		return nil
	}
}
