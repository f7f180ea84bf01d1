// Package identity manages accounts, sessions and profiles.
package identity

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/erazemk/menjalnica/internal/auth"
	"github.com/erazemk/menjalnica/internal/blob"
	"github.com/erazemk/menjalnica/internal/imaging"
	"github.com/erazemk/menjalnica/internal/model"
	"github.com/erazemk/menjalnica/internal/store"
)

// Service is the identity service.
type Service struct {
	DB        *sql.DB
	Blobs     blob.Store
	JWTSecret string
	// BcryptCost defaults to bcrypt.DefaultCost when zero.
	BcryptCost int
	// Now defaults to time.Now when nil.
	Now func() time.Time
}

// Session is an authenticated user and their bearer token.
type Session struct {
	User  *model.User `json:"user"`
	Token string      `json:"token"`
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) hash(password string) (string, error) {
	cost := s.BcryptCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	h, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}
	return string(h), nil
}

// Register creates an account and signs the new user in.
func (s *Service) Register(ctx context.Context, reg model.Registration) (*Session, error) {
	reg.Email = model.NormalizeEmail(reg.Email)
	if err := model.ValidateRegistration(reg); err != nil {
		return nil, err
	}

	hash, err := s.hash(reg.Password)
	if err != nil {
		return nil, err
	}

	user, err := store.CreateUser(ctx, s.DB, &model.User{
		ID:           uuid.NewString(),
		Email:        reg.Email,
		DisplayName:  reg.DisplayName,
		PasswordHash: hash,
		CreatedAt:    s.now().UnixMilli(),
	})
	if err != nil {
		return nil, err
	}

	slog.Info("user registered", "user", user.ID)
	return s.session(user)
}

// Login checks credentials and issues a token.
func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	user, err := store.GetUserByEmail(ctx, s.DB, model.NormalizeEmail(email))
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, model.ErrBadCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		slog.Warn("login failed", "user", user.ID)
		return nil, model.ErrBadCredentials
	}

	slog.Info("user logged in", "user", user.ID)
	return s.session(user)
}

func (s *Service) session(user *model.User) (*Session, error) {
	token, err := auth.GenerateToken(s.JWTSecret, user.ID, user.Email, s.now())
	if err != nil {
		return nil, err
	}
	return &Session{User: user, Token: token}, nil
}

// Authenticate validates a bearer token and rejects revoked ones.
func (s *Service) Authenticate(ctx context.Context, token string) (*auth.Claims, error) {
	claims, err := auth.ValidateToken(s.JWTSecret, token, s.now())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrBadCredentials, err)
	}

	revoked, err := store.IsTokenRevoked(ctx, s.DB, claims.ID)
	if err != nil {
		return nil, err
	}
	if revoked {
		return nil, fmt.Errorf("%w: token revoked", model.ErrBadCredentials)
	}
	return claims, nil
}

// Logout ends a session by revoking its token.
func (s *Service) Logout(ctx context.Context, claims *auth.Claims) error {
	expiresAt := s.now().Add(auth.TokenExpiry)
	if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
	}
	if err := store.RevokeToken(ctx, s.DB, claims.ID, expiresAt, s.now()); err != nil {
		return err
	}
	slog.Info("user logged out", "user", claims.UserID)
	return nil
}

// Profile returns a user's profile.
func (s *Service) Profile(ctx context.Context, userID string) (*model.User, error) {
	user, err := store.GetUser(ctx, s.DB, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, model.ErrNotFound
	}
	return user, nil
}

// UpdateProfile changes a user's email and display name.
func (s *Service) UpdateProfile(ctx context.Context, userID string, p model.ProfileUpdate) (*model.User, error) {
	p.Email = model.NormalizeEmail(p.Email)
	if err := model.ValidateProfileUpdate(p); err != nil {
		return nil, err
	}

	if err := store.UpdateProfile(ctx, s.DB, userID, p.Email, p.DisplayName); err != nil {
		return nil, err
	}
	return s.Profile(ctx, userID)
}

// ChangePassword replaces a user's password after checking the current one.
func (s *Service) ChangePassword(ctx context.Context, userID, current, next string) error {
	if err := model.ValidatePassword(next); err != nil {
		return err
	}

	user, err := s.Profile(ctx, userID)
	if err != nil {
		return err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(current)); err != nil {
		return model.ErrBadCredentials
	}

	hash, err := s.hash(next)
	if err != nil {
		return err
	}
	if err := store.UpdateUserPassword(ctx, s.DB, userID, hash); err != nil {
		return err
	}

	slog.Info("user changed password", "user", userID)
	return nil
}

// SetProfilePhoto prepares and stores a new profile photo.
func (s *Service) SetProfilePhoto(ctx context.Context, userID string, r io.Reader) (*model.User, error) {
	if _, err := s.Profile(ctx, userID); err != nil {
		return nil, err
	}

	img, err := imaging.Process(r, imaging.ProfilePhotoMaxDimension)
	if err != nil {
		return nil, err
	}

	url, err := s.Blobs.Put(ctx, blob.ProfilePhotoKey(userID), img.Data, img.MIME)
	if err != nil {
		return nil, fmt.Errorf("uploading profile photo: %w", err)
	}

	// The key is stable, so version the URL to defeat caches.
	url = fmt.Sprintf("%s?v=%d", url, s.now().UnixMilli())
	if err := store.SetUserPhotoURL(ctx, s.DB, userID, url); err != nil {
		return nil, err
	}
	return s.Profile(ctx, userID)
}
