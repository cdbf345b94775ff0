package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/sakif/learnmade/internal/apperror"
	"github.com/sakif/learnmade/internal/model"
)

// Operation names an action the Guard can decide on.
type Operation string

const (
	OpCreateCourse     Operation = "createCourse"
	OpUpdateCourse     Operation = "updateCourse"
	OpListSubscribers  Operation = "listSubscribers"
	OpDeleteSubscriber Operation = "deleteSubscriber"
	OpViewStats        Operation = "viewStats"
	OpUploadMedia      Operation = "uploadMedia"
)

// adminOperations all require a session whose user currently has role admin.
var adminOperations = map[Operation]bool{
	OpCreateCourse:     true,
	OpUpdateCourse:     true,
	OpListSubscribers:  true,
	OpDeleteSubscriber: true,
	OpViewStats:        true,
	OpUploadMedia:      true,
}

// Principal is whoever is acting. The zero value is an anonymous visitor.
type Principal struct {
	UserID string
}

func (p Principal) Anonymous() bool { return p.UserID == "" }

// UserLookup is the slice of the user store the Guard needs.
type UserLookup interface {
	GetUserByID(ctx context.Context, id string) (*model.User, error)
}

// Guard decides whether a principal may perform an operation.
//
// The role is read from the user row on every call, never from the token,
// so demoting an admin takes effect on their very next request.
type Guard struct {
	users UserLookup
}

func NewGuard(users UserLookup) *Guard {
	return &Guard{users: users}
}

// Authorize returns the acting user, or an apperror.ErrUnauthorized error.
// Operations that are not privileged pass without a lookup and return a nil user.
func (g *Guard) Authorize(ctx context.Context, p Principal, op Operation) (*model.User, error) {
	if !adminOperations[op] {
		return nil, nil
	}
	if p.Anonymous() {
		return nil, apperror.Unauthorized()
	}

	user, err := g.users.GetUserByID(ctx, p.UserID)
	if err != nil {
		// A token for a user that no longer exists is just an invalid session.
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.Unauthorized()
		}
		return nil, fmt.Errorf("auth: loading principal %s: %w", p.UserID, err)
	}

	if !user.IsAdmin() {
		return nil, apperror.Unauthorized()
	}
	return user, nil
}
