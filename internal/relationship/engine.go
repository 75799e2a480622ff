package relationship

import "fmt"

// The engine is the pure half of the relationship core: every command is a
// function from a snapshot of the involved records to the new record values
// and an outcome. It performs no I/O and never logs; the Controller owns
// reads, writes and retries.

// Command names one of the five mutating operations.
type Command string

const (
	CommandSend   Command = "send"
	CommandAccept Command = "accept"
	CommandIgnore Command = "ignore"
	CommandCancel Command = "cancel"
	CommandRemove Command = "remove"
)

// Snapshot holds the six records a command pair may touch, read at a single
// point in time. Absent records are represented as nil slices.
type Snapshot struct {
	ActorFriends  []string
	ActorIn       []string
	ActorOut      []string
	TargetFriends []string
	TargetIn      []string
	TargetOut     []string
}

// Change is one record value to write back.
type Change struct {
	Kind    Kind
	UserID  string
	Members []string
}

// Apply runs a command against the snapshot and returns the records that
// must be written. A rejection returns a nil change list and one of the
// Err* kinds; rejections never imply writes.
func Apply(cmd Command, actor, target string, snap Snapshot) ([]Change, error) {
	switch cmd {
	case CommandSend:
		return sendRequest(actor, target, snap)
	case CommandAccept:
		return acceptRequest(actor, target, snap)
	case CommandIgnore:
		return ignoreRequest(actor, target, snap)
	case CommandCancel:
		return cancelRequest(actor, target, snap)
	case CommandRemove:
		return removeFriend(actor, target, snap)
	}
	return nil, fmt.Errorf("unknown relationship command %q", cmd)
}

func sendRequest(actor, target string, snap Snapshot) ([]Change, error) {
	if actor == target {
		return nil, ErrSelfReference
	}
	if contains(snap.ActorFriends, target) {
		return nil, ErrAlreadyFriends
	}
	if contains(snap.ActorOut, target) {
		return nil, ErrRequestExists
	}

	// Crossed requests: the target already asked for the actor. Resolve as
	// a mutual match instead of leaving both users stuck waiting on each
	// other, and purge every pending entry between the pair.
	if contains(snap.TargetOut, actor) {
		changes := addFriendship(actor, target, snap)
		return append(changes, clearRequestPair(actor, target, snap)...), nil
	}

	// The actor's outgoing entry is known absent (rejected above); the
	// target's incoming entry may survive a partially failed cancel and
	// must not be duplicated on re-send.
	changes := []Change{
		{Kind: KindOutgoing, UserID: actor, Members: add(snap.ActorOut, target)},
	}
	if !contains(snap.TargetIn, actor) {
		changes = append(changes, Change{Kind: KindIncoming, UserID: target, Members: add(snap.TargetIn, actor)})
	}
	return changes, nil
}

func acceptRequest(actor, target string, snap Snapshot) ([]Change, error) {
	// Both halves of the pairing invariant must hold. If only one does the
	// state is already inconsistent and is reported, not silently repaired.
	if !contains(snap.ActorIn, target) || !contains(snap.TargetOut, actor) {
		return nil, ErrNoPendingRequest
	}

	changes := addFriendship(actor, target, snap)
	return append(changes, clearRequestPair(actor, target, snap)...), nil
}

// ignoreRequest clears only the actor's incoming entry. The sender keeps
// its outgoing entry until it cancels; see DESIGN.md for the symmetric
// alternative.
func ignoreRequest(actor, target string, snap Snapshot) ([]Change, error) {
	if !contains(snap.ActorIn, target) {
		return nil, ErrNoPendingRequest
	}
	return []Change{
		{Kind: KindIncoming, UserID: actor, Members: remove(snap.ActorIn, target)},
	}, nil
}

func cancelRequest(actor, target string, snap Snapshot) ([]Change, error) {
	if !contains(snap.ActorOut, target) {
		return nil, ErrNoOutgoingRequest
	}
	return clearRequestPair(actor, target, snap), nil
}

func removeFriend(actor, target string, snap Snapshot) ([]Change, error) {
	if !contains(snap.ActorFriends, target) {
		return nil, ErrNotFriends
	}
	changes := []Change{
		{Kind: KindFriends, UserID: actor, Members: remove(snap.ActorFriends, target)},
	}
	if contains(snap.TargetFriends, actor) {
		changes = append(changes, Change{Kind: KindFriends, UserID: target, Members: remove(snap.TargetFriends, actor)})
	}
	return changes, nil
}

func addFriendship(actor, target string, snap Snapshot) []Change {
	var changes []Change
	if !contains(snap.ActorFriends, target) {
		changes = append(changes, Change{Kind: KindFriends, UserID: actor, Members: add(snap.ActorFriends, target)})
	}
	if !contains(snap.TargetFriends, actor) {
		changes = append(changes, Change{Kind: KindFriends, UserID: target, Members: add(snap.TargetFriends, actor)})
	}
	return changes
}

// clearRequestPair removes the pair from all four request records, not just
// the two expected ones, so residue from past partial failures heals on the
// next touch.
func clearRequestPair(actor, target string, snap Snapshot) []Change {
	var changes []Change
	if contains(snap.ActorIn, target) {
		changes = append(changes, Change{Kind: KindIncoming, UserID: actor, Members: remove(snap.ActorIn, target)})
	}
	if contains(snap.ActorOut, target) {
		changes = append(changes, Change{Kind: KindOutgoing, UserID: actor, Members: remove(snap.ActorOut, target)})
	}
	if contains(snap.TargetIn, actor) {
		changes = append(changes, Change{Kind: KindIncoming, UserID: target, Members: remove(snap.TargetIn, actor)})
	}
	if contains(snap.TargetOut, actor) {
		changes = append(changes, Change{Kind: KindOutgoing, UserID: target, Members: remove(snap.TargetOut, actor)})
	}
	return changes
}

func contains(members []string, id string) bool {
	for _, m := range members {
		if m == id {
			return true
		}
	}
	return false
}

func add(members []string, id string) []string {
	out := make([]string, 0, len(members)+1)
	out = append(out, members...)
	return append(out, id)
}

func remove(members []string, id string) []string {
	out := make([]string, 0, len(members))
	for _, m := range members {
		if m != id {
			out = append(out, m)
		}
	}
	return out
}
