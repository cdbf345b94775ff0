package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/learnmade/internal/apperror"
	"github.com/sakif/learnmade/internal/auth"
	"github.com/sakif/learnmade/internal/background"
	"github.com/sakif/learnmade/internal/email"
	"github.com/sakif/learnmade/internal/model"
	"github.com/sakif/learnmade/internal/repository"
	"github.com/sakif/learnmade/internal/validation"
)

const (
	MsgSubscribed   = "Successfully subscribed! Check your inbox."
	MsgResubscribed = "Welcome back! You have been resubscribed."
	MsgUnsubscribed = "You have been unsubscribed."
	msgAlreadyIn    = "You are already subscribed!"
)

// UnsubscribeTokens signs and checks the tokens in unsubscribe links.
// *auth.TokenService implements it.
type UnsubscribeTokens interface {
	GenerateUnsubscribe(subscriberID string) (string, error)
	ValidateUnsubscribe(token string) (string, error)
}

// SubscribeResult tells the handler which status to answer with.
type SubscribeResult struct {
	Created     bool
	Reactivated bool
	Message     string
}

// SubscriptionService owns the subscriber lifecycle:
//
//	(none) --subscribe--> active --unsubscribe--> inactive --subscribe--> active
//	any    --admin delete--> (none)
type SubscriptionService struct {
	subscribers repository.SubscriberRepository
	guard       *auth.Guard
	tokens      UnsubscribeTokens
	composer    *email.Composer
	newSender   email.Factory
	runner      *background.Runner
	logger      *slog.Logger
}

func NewSubscriptionService(
	subscribers repository.SubscriberRepository,
	guard *auth.Guard,
	tokens UnsubscribeTokens,
	composer *email.Composer,
	newSender email.Factory,
	runner *background.Runner,
	logger *slog.Logger,
) *SubscriptionService {
	return &SubscriptionService{
		subscribers: subscribers,
		guard:       guard,
		tokens:      tokens,
		composer:    composer,
		newSender:   newSender,
		runner:      runner,
		logger:      logger,
	}
}

// Subscribe handles the public newsletter form.
//
// A filled honeypot gets the same answer as a real signup but nothing is
// stored or sent, so bots learn nothing from the response.
func (s *SubscriptionService) Subscribe(ctx context.Context, in validation.SubscribeInput) (*SubscribeResult, error) {
	if in.IsSpam() {
		s.logger.Warn("honeypot triggered, dropping subscribe request")
		return &SubscribeResult{Created: true, Message: MsgSubscribed}, nil
	}

	addr, err := validation.ValidateEmail(in.Email)
	if err != nil {
		return nil, err
	}

	existing, err := s.subscribers.GetByEmail(ctx, addr)
	switch {
	case err == nil && existing.IsActive:
		return nil, apperror.Conflict(msgAlreadyIn)

	case err == nil:
		if err := s.subscribers.SetActive(ctx, existing.ID, true); err != nil {
			return nil, err
		}
		s.logger.Info("subscriber reactivated", slog.String("id", existing.ID))
		return &SubscribeResult{Reactivated: true, Message: MsgResubscribed}, nil

	case !errors.Is(err, apperror.ErrNotFound):
		return nil, err
	}

	sub := &model.Subscriber{Email: addr, IsActive: true}
	if err := s.subscribers.Create(ctx, sub); err != nil {
		// Lost a race with a concurrent subscribe for the same address.
		if errors.Is(err, apperror.ErrConflict) {
			return nil, apperror.Conflict(msgAlreadyIn)
		}
		return nil, err
	}

	s.logger.Info("subscriber created", slog.String("id", sub.ID))
	s.sendWelcome(ctx, sub)
	return &SubscribeResult{Created: true, Message: MsgSubscribed}, nil
}

// AutoSubscribe runs after account signup. It only ever creates a record:
// an existing subscriber, active or not, is left exactly as it is so a past
// unsubscribe is respected. Failures are the caller's to log.
func (s *SubscriptionService) AutoSubscribe(ctx context.Context, emailAddr string) (bool, error) {
	addr := validation.NormalizeEmail(emailAddr)

	_, err := s.subscribers.GetByEmail(ctx, addr)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, apperror.ErrNotFound) {
		return false, err
	}

	sub := &model.Subscriber{Email: addr, IsActive: true}
	if err := s.subscribers.Create(ctx, sub); err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			return false, nil
		}
		return false, err
	}

	s.logger.Info("subscriber auto-created on signup", slog.String("id", sub.ID))
	s.sendWelcome(ctx, sub)
	return true, nil
}

// CheckUnsubscribe resolves an unsubscribe-link token to its subscriber
// without changing anything. It backs the confirmation page, which mail
// scanners may fetch on their own.
func (s *SubscriptionService) CheckUnsubscribe(ctx context.Context, token string) (*model.Subscriber, error) {
	id, err := s.unsubscribeID(token)
	if err != nil {
		return nil, err
	}
	return s.subscribers.GetByID(ctx, id)
}

// Unsubscribe deactivates the subscriber named by an unsubscribe-link token.
// Repeating it is harmless.
func (s *SubscriptionService) Unsubscribe(ctx context.Context, token string) error {
	id, err := s.unsubscribeID(token)
	if err != nil {
		return err
	}

	if err := s.subscribers.SetActive(ctx, id, false); err != nil {
		return err
	}
	s.logger.Info("subscriber unsubscribed", slog.String("id", id))
	return nil
}

func (s *SubscriptionService) unsubscribeID(token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", apperror.ValidationFailed("token", "Unsubscribe token is required")
	}

	id, err := s.tokens.ValidateUnsubscribe(token)
	if err != nil {
		return "", apperror.ValidationFailed("token", "Invalid or expired unsubscribe link")
	}
	return id, nil
}

// Delete hard-deletes a subscriber. The same email may subscribe again later
// and gets a brand new record.
func (s *SubscriptionService) Delete(ctx context.Context, p auth.Principal, id string) error {
	if _, err := s.guard.Authorize(ctx, p, auth.OpDeleteSubscriber); err != nil {
		return err
	}

	id = strings.TrimSpace(id)
	if id == "" {
		return apperror.ValidationFailed("id", "Subscriber ID is required")
	}

	if err := s.subscribers.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("subscriber deleted", slog.String("id", id), slog.String("by", p.UserID))
	return nil
}

// List returns every subscriber, newest first.
func (s *SubscriptionService) List(ctx context.Context, p auth.Principal) ([]model.Subscriber, error) {
	if _, err := s.guard.Authorize(ctx, p, auth.OpListSubscribers); err != nil {
		return nil, err
	}

	subs, err := s.subscribers.List(ctx)
	if err != nil {
		return nil, err
	}
	if subs == nil {
		subs = []model.Subscriber{}
	}
	return subs, nil
}

// sendWelcome mails the welcome message in the background. The subscriber
// record stands whether or not the mail goes out.
func (s *SubscriptionService) sendWelcome(ctx context.Context, sub *model.Subscriber) {
	id, addr := sub.ID, sub.Email
	s.runner.Go(ctx, "welcome-email", func(ctx context.Context) error {
		sender, err := s.newSender()
		if err != nil {
			return fmt.Errorf("welcome email for %s: %w", id, err)
		}

		token, err := s.tokens.GenerateUnsubscribe(id)
		if err != nil {
			return fmt.Errorf("welcome email for %s: %w", id, err)
		}

		msg, err := s.composer.Welcome(addr, s.composer.UnsubscribeURL(token))
		if err != nil {
			return err
		}
		return sender.Send(ctx, msg)
	})
}
