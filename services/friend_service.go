package services

import (
	"context"

	"github.com/sirupsen/logrus"

	"friendMeshAPI/internal/relationship"
)

// Directory is the slice of the identity-directory collaborator the friend
// service needs: it only ever asks whether a target account exists.
type Directory interface {
	Exists(ctx context.Context, userID string) (bool, error)
}

// FriendService is the command dispatcher: it takes the authenticated actor
// and the target from the request payload, runs the identity check where
// the contract demands one, and hands the command to the concurrency
// controller. All relationship rules live below it in the engine.
type FriendService struct {
	controller *relationship.Controller
	directory  Directory
}

func NewFriendService(controller *relationship.Controller, directory Directory) *FriendService {
	return &FriendService{controller: controller, directory: directory}
}

// SendRequest sends a friend request from actor to target. The target must
// be a known account; the existence check is the dispatcher's job, not the
// engine's.
func (s *FriendService) SendRequest(ctx context.Context, actorID, targetID string) error {
	exists, err := s.directory.Exists(ctx, targetID)
	if err != nil {
		return err
	}
	if !exists {
		logrus.WithFields(logrus.Fields{
			"function": "SendRequest",
			"actor":    actorID,
			"target":   targetID,
		}).Warn("Request names unknown account")
		return relationship.ErrUnknownTarget
	}

	return s.execute(ctx, relationship.CommandSend, actorID, targetID)
}

// AcceptRequest accepts a pending request from target.
func (s *FriendService) AcceptRequest(ctx context.Context, actorID, targetID string) error {
	return s.execute(ctx, relationship.CommandAccept, actorID, targetID)
}

// IgnoreRequest declines a pending request from target without notifying
// the sender.
func (s *FriendService) IgnoreRequest(ctx context.Context, actorID, targetID string) error {
	return s.execute(ctx, relationship.CommandIgnore, actorID, targetID)
}

// CancelRequest withdraws a request the actor sent to target.
func (s *FriendService) CancelRequest(ctx context.Context, actorID, targetID string) error {
	return s.execute(ctx, relationship.CommandCancel, actorID, targetID)
}

// RemoveFriend dissolves an existing friendship.
func (s *FriendService) RemoveFriend(ctx context.Context, actorID, targetID string) error {
	return s.execute(ctx, relationship.CommandRemove, actorID, targetID)
}

func (s *FriendService) ListFriends(ctx context.Context, actorID string) ([]string, error) {
	return s.controller.List(ctx, relationship.KindFriends, actorID)
}

func (s *FriendService) ListIncoming(ctx context.Context, actorID string) ([]string, error) {
	return s.controller.List(ctx, relationship.KindIncoming, actorID)
}

func (s *FriendService) ListOutgoing(ctx context.Context, actorID string) ([]string, error) {
	return s.controller.List(ctx, relationship.KindOutgoing, actorID)
}

// PurgeUser clears the deleted account's relationship records and sweeps it
// out of every counterpart's sets. Invoked by the account-deletion flows
// (webhook and delete-account endpoint).
func (s *FriendService) PurgeUser(ctx context.Context, userID string) error {
	if err := s.controller.PurgeUser(ctx, userID); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "PurgeUser",
			"user_id":  userID,
		}).WithError(err).Error("Failed to purge relationship records")
		return err
	}
	logrus.WithFields(logrus.Fields{
		"function": "PurgeUser",
		"user_id":  userID,
	}).Info("Purged relationship records")
	return nil
}

func (s *FriendService) execute(ctx context.Context, cmd relationship.Command, actorID, targetID string) error {
	err := s.controller.Execute(ctx, cmd, actorID, targetID)
	if err != nil && !relationship.IsRejection(err) {
		logrus.WithFields(logrus.Fields{
			"function": "execute",
			"command":  cmd,
			"actor":    actorID,
			"target":   targetID,
		}).WithError(err).Error("Relationship command failed")
	}
	return err
}
