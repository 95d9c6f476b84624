package users

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	apperrors "github.com/dottie-ai/assistant-server/internal/errors"
)

const signInTokenIssuer = "dottie-assistant"

// Service manages durable identities and the first-party sign-in
// credential handed to the frontend after a fresh link.
type Service struct {
	repo        UserRepo
	tokenSecret []byte
	tokenExpiry time.Duration
	nowTime     func() time.Time
}

type ServiceOption func(*Service)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) ServiceOption {
	return func(s *Service) {
		s.nowTime = nowFunc
	}
}

func NewService(repo UserRepo, tokenSecret string, tokenExpiry time.Duration, options ...ServiceOption) (*Service, error) {
	if repo == nil {
		return nil, errors.New("[users.NewService] repo is required")
	}
	if tokenSecret == "" {
		return nil, errors.Wrap(apperrors.ErrConfiguration, "sign-in token secret is required")
	}

	s := &Service{
		repo:        repo,
		tokenSecret: []byte(tokenSecret),
		tokenExpiry: tokenExpiry,
		nowTime:     time.Now,
	}
	for _, opt := range options {
		opt(s)
	}
	return s, nil
}

// FindOrCreateByEmail returns the user on record for email, creating one
// from the provided profile fields when none exists.
func (s *Service) FindOrCreateByEmail(ctx context.Context, email, displayName, photoURL string) (*User, error) {
	if email == "" {
		return nil, errors.New("[FindOrCreateByEmail] email is required")
	}

	existing, err := s.repo.GetByEmail(ctx, email)
	if err == nil {
		existing.LastLogin = s.nowTime()
		if err := s.repo.Upsert(ctx, existing); err != nil {
			return nil, errors.Wrap(err, "[FindOrCreateByEmail] update last login")
		}
		return existing, nil
	}
	if !apperrors.Is(err, apperrors.ErrNotFound) {
		return nil, errors.Wrap(err, "[FindOrCreateByEmail] repo.GetByEmail")
	}

	user := &User{
		ID:          uuid.New().String(),
		Email:       email,
		DisplayName: displayName,
		PhotoURL:    photoURL,
		DateJoined:  s.nowTime(),
		LastLogin:   s.nowTime(),
	}
	if err := s.repo.Upsert(ctx, user); err != nil {
		return nil, errors.Wrap(err, "[FindOrCreateByEmail] repo.Upsert")
	}
	return user, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (*User, error) {
	return s.repo.GetByID(ctx, id)
}

// SignInToken mints the credential the frontend uses to sign in as user.
func (s *Service) SignInToken(user *User) (string, error) {
	now := s.nowTime()
	claims := jwt.MapClaims{
		"iss":   signInTokenIssuer,
		"sub":   user.ID,
		"email": user.Email,
		"iat":   now.Unix(),
		"exp":   now.Add(s.tokenExpiry).Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.tokenSecret)
	if err != nil {
		return "", errors.Wrap(err, "[SignInToken] sign")
	}
	return signed, nil
}

// VerifySignInToken validates a first-party sign-in credential and
// returns the user it names.
func (s *Service) VerifySignInToken(ctx context.Context, raw string) (*User, error) {
	token, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return s.tokenSecret, nil
	},
		jwt.WithIssuer(signInTokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.nowTime),
	)
	if err != nil || !token.Valid {
		return nil, apperrors.ErrInvalidCredential
	}

	sub, err := token.Claims.GetSubject()
	if err != nil || sub == "" {
		return nil, apperrors.ErrInvalidCredential
	}
	user, err := s.repo.GetByID(ctx, sub)
	if err != nil {
		return nil, apperrors.ErrInvalidCredential
	}
	return user, nil
}
