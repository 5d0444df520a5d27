package service

import (
	"context"
	"time"

	"taskhub/internal/auth"
	"taskhub/internal/domain/errors"
	"taskhub/internal/domain/models"

	"github.com/rs/zerolog"
)

type Session struct {
	Token     string
	ExpiresAt time.Time
	User      *models.User
}

type AuthService struct {
	logger zerolog.Logger
	users  UserRepository
	hasher *auth.PasswordHasher
	tokens *auth.TokenManager
	now    func() time.Time
}

func NewAuthService(
	logger zerolog.Logger,
	users UserRepository,
	hasher *auth.PasswordHasher,
	tokens *auth.TokenManager,
) *AuthService {
	return &AuthService{
		logger: logger.With().Str("component", "auth").Logger(),
		users:  users,
		hasher: hasher,
		tokens: tokens,
		now:    time.Now,
	}
}

func (s *AuthService) TokenTTL() time.Duration {
	return s.tokens.TTL()
}

func (s *AuthService) Register(ctx context.Context, name, email, password string) (*Session, error) {
	existing, err := s.users.GetUserByEmail(ctx, email)
	if err != nil && !errors.Is(err, errors.ErrUserNotFound) {
		s.logger.Error().
			Err(err).
			Msg("failed to look up user by email")
		return nil, err
	}
	if existing != nil {
		s.logger.Info().
			Str("email", email).
			Msg("email already in use")
		return nil, errors.ErrEmailInUse
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		if errors.KindOf(err) == errors.KindValidation {
			return nil, err
		}
		s.logger.Error().
			Err(err).
			Msg("failed to hash password")
		return nil, err
	}

	now := storedTime(s.now())
	user := &models.User{
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if !errors.Is(err, errors.ErrEmailInUse) {
			s.logger.Error().
				Err(err).
				Msg("failed to create user")
		}
		return nil, err
	}
	s.logger.Info().
		Str("user_id", user.ID).
		Msg("registered user")

	return s.newSession(user)
}

// Login answers ErrInvalidCredentials for both an unknown email and a wrong
// password.
func (s *AuthService) Login(ctx context.Context, email, password string) (*Session, error) {
	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, errors.ErrUserNotFound) {
			return nil, errors.ErrInvalidCredentials
		}
		s.logger.Error().
			Err(err).
			Msg("failed to look up user by email")
		return nil, err
	}

	ok, err := s.hasher.Verify(user.PasswordHash, password)
	if err != nil {
		s.logger.Error().
			Err(err).
			Str("user_id", user.ID).
			Msg("failed to verify password")
		return nil, err
	}
	if !ok {
		return nil, errors.ErrInvalidCredentials
	}

	s.logger.Debug().
		Str("user_id", user.ID).
		Msg("logged in")
	return s.newSession(user)
}

func (s *AuthService) VerifyToken(token string) (string, error) {
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

func (s *AuthService) CurrentUser(ctx context.Context, token string) (*models.User, error) {
	userID, err := s.VerifyToken(token)
	if err != nil {
		return nil, err
	}
	return s.users.GetUserByID(ctx, userID)
}

func (s *AuthService) UpdateProfile(ctx context.Context, userID, name string) (*models.User, error) {
	user, err := s.users.UpdateUserName(ctx, userID, name)
	if err != nil {
		if !errors.Is(err, errors.ErrUserNotFound) {
			s.logger.Error().
				Err(err).
				Str("user_id", userID).
				Msg("failed to update profile")
		}
		return nil, err
	}
	return user, nil
}

func (s *AuthService) ListUsers(ctx context.Context) ([]models.User, error) {
	return s.users.ListUsers(ctx)
}

func (s *AuthService) newSession(user *models.User) (*Session, error) {
	token, expiresAt, err := s.tokens.Issue(user.ID, user.Email)
	if err != nil {
		s.logger.Error().
			Err(err).
			Msg("failed to issue token")
		return nil, err
	}
	return &Session{Token: token, ExpiresAt: expiresAt, User: user}, nil
}
