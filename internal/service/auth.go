package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sakif/learnmade/internal/apperror"
	"github.com/sakif/learnmade/internal/auth"
	"github.com/sakif/learnmade/internal/model"
	"github.com/sakif/learnmade/internal/repository"
	"github.com/sakif/learnmade/internal/validation"
)

const msgBadCredentials = "Invalid email or password"

// AutoSubscriber is the signup side effect; SubscriptionService implements it.
type AutoSubscriber interface {
	AutoSubscribe(ctx context.Context, email string) (bool, error)
}

// AuthService handles accounts and sessions:
//
//	AuthHandler (HTTP) → AuthService → UserRepository (DB)
//	                                 ↘ TokenService (JWT), PasswordService (bcrypt)
//
// It never sets cookies; that's the handler's job.
type AuthService struct {
	users         repository.UserRepository
	tokens        *auth.TokenService
	passwords     *auth.PasswordService
	subscriptions AutoSubscriber
	adminEmail    string
	logger        *slog.Logger
}

func NewAuthService(
	users repository.UserRepository,
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
	subscriptions AutoSubscriber,
	adminEmail string,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:         users,
		tokens:        tokens,
		passwords:     passwords,
		subscriptions: subscriptions,
		adminEmail:    validation.NormalizeEmail(adminEmail),
		logger:        logger,
	}
}

// AuthResult bundles the user and a freshly issued session token so the
// handler can set the cookie and respond in one step.
type AuthResult struct {
	User  *model.User `json:"user"`
	Token string      `json:"token"`
}

// Signup creates a password account. The configured admin address gets the
// admin role; everyone else is a plain user. The new address is also
// subscribed to the newsletter when it has no subscriber record yet.
func (s *AuthService) Signup(ctx context.Context, in validation.SignupInput) (*model.User, error) {
	in, err := validation.ValidateSignup(in)
	if err != nil {
		return nil, err
	}

	hash, err := s.passwords.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("service/auth: %w", err)
	}

	user := &model.User{
		Email:        in.Email,
		PasswordHash: hash,
		Role:         s.roleFor(in.Email),
	}
	// A taken email comes back as apperror.Conflict("User already exists").
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	s.logger.Info("user signed up",
		slog.String("userID", user.ID),
		slog.String("role", string(user.Role)),
	)
	s.autoSubscribe(ctx, user.Email)
	return user, nil
}

// Login checks an email + password pair. Unknown emails, GitHub-only
// accounts and wrong passwords all fail the same way.
func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	user, err := s.users.GetByEmail(ctx, validation.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.UnauthorizedMessage(msgBadCredentials)
		}
		return nil, err
	}

	if err := s.passwords.Verify(user.PasswordHash, password); err != nil {
		if errors.Is(err, auth.ErrInvalidPassword) {
			return nil, apperror.UnauthorizedMessage(msgBadCredentials)
		}
		return nil, fmt.Errorf("service/auth: %w", err)
	}

	return s.issue(user)
}

// Refresh re-reads the user and issues a new token carrying the current role.
func (s *AuthService) Refresh(ctx context.Context, p auth.Principal) (*AuthResult, error) {
	user, err := s.Me(ctx, p)
	if err != nil {
		return nil, err
	}
	return s.issue(user)
}

// Me returns the session's user straight from the store.
func (s *AuthService) Me(ctx context.Context, p auth.Principal) (*model.User, error) {
	if p.Anonymous() {
		return nil, apperror.Unauthorized()
	}
	user, err := s.users.GetUserByID(ctx, p.UserID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.Unauthorized()
		}
		return nil, err
	}
	return user, nil
}

// LoginOrRegisterGitHub resolves a GitHub profile to a user:
//
//  1. a user already linked to this GitHub id
//  2. else a user with the same email, which gets linked
//  3. else a new OAuth-only user (auto-subscribed like a signup)
func (s *AuthService) LoginOrRegisterGitHub(ctx context.Context, gh *auth.GitHubUser) (*AuthResult, error) {
	if gh == nil || gh.ID == 0 {
		return nil, fmt.Errorf("service/auth: invalid GitHub user")
	}
	addr := validation.NormalizeEmail(gh.Email)
	if addr == "" {
		return nil, apperror.UnauthorizedMessage("Your GitHub account has no public email address")
	}

	user, err := s.users.GetByGitHubID(ctx, gh.ID)
	if err == nil {
		return s.issue(user)
	}
	if !errors.Is(err, apperror.ErrNotFound) {
		return nil, err
	}

	user, err = s.users.GetByEmail(ctx, addr)
	switch {
	case err == nil:
		githubID := gh.ID
		user.GitHubID = &githubID
		if err := s.users.Update(ctx, user); err != nil {
			return nil, err
		}
		s.logger.Info("GitHub account linked", slog.String("userID", user.ID), slog.String("login", gh.Login))
		return s.issue(user)

	case !errors.Is(err, apperror.ErrNotFound):
		return nil, err
	}

	githubID := gh.ID
	user = &model.User{
		Email:    addr,
		Role:     s.roleFor(addr),
		GitHubID: &githubID,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	s.logger.Info("user registered via GitHub",
		slog.String("userID", user.ID),
		slog.String("login", gh.Login),
	)
	s.autoSubscribe(ctx, user.Email)
	return s.issue(user)
}

// EnsureAdmin makes sure an admin account exists for email. An existing
// account is promoted and keeps its password; otherwise a new one is created.
func (s *AuthService) EnsureAdmin(ctx context.Context, email, password string) (*model.User, bool, error) {
	addr := validation.NormalizeEmail(email)

	user, err := s.users.GetByEmail(ctx, addr)
	if err == nil {
		if user.Role != model.RoleAdmin {
			user.Role = model.RoleAdmin
			if err := s.users.Update(ctx, user); err != nil {
				return nil, false, err
			}
			s.logger.Info("user promoted to admin", slog.String("userID", user.ID))
		}
		return user, false, nil
	}
	if !errors.Is(err, apperror.ErrNotFound) {
		return nil, false, err
	}

	in, err := validation.ValidateSignup(validation.SignupInput{Email: addr, Password: password})
	if err != nil {
		return nil, false, err
	}
	hash, err := s.passwords.Hash(in.Password)
	if err != nil {
		return nil, false, fmt.Errorf("service/auth: %w", err)
	}

	user = &model.User{Email: in.Email, PasswordHash: hash, Role: model.RoleAdmin}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, false, err
	}
	s.logger.Info("admin user created", slog.String("userID", user.ID))
	return user, true, nil
}

// TokenTTL is how long an issued session lasts; the handler mirrors it in the cookie.
func (s *AuthService) TokenTTL() int {
	return int(s.tokens.TTL().Seconds())
}

func (s *AuthService) roleFor(email string) model.Role {
	if s.adminEmail != "" && email == s.adminEmail {
		return model.RoleAdmin
	}
	return model.RoleUser
}

func (s *AuthService) issue(user *model.User) (*AuthResult, error) {
	token, err := s.tokens.Generate(user.ID, string(user.Role))
	if err != nil {
		return nil, fmt.Errorf("service/auth: generating token for user %s: %w", user.ID, err)
	}
	return &AuthResult{User: user, Token: token}, nil
}

// autoSubscribe is best effort: signup already succeeded.
func (s *AuthService) autoSubscribe(ctx context.Context, email string) {
	if s.subscriptions == nil {
		return
	}
	if _, err := s.subscriptions.AutoSubscribe(ctx, email); err != nil {
		s.logger.Warn("auto-subscribe after signup failed", slog.String("error", err.Error()))
	}
}
