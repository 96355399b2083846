package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/Dosada05/campus-games/models"
	"github.com/Dosada05/campus-games/repositories"
	"github.com/golang-jwt/jwt/v4"
)

const (
	DefaultSessionLifetime = 24 * time.Hour
	sessionIDLength        = 32
)

// Имена claims в JWT
const (
	jwtClaimSessionID = "jti"
	jwtClaimUserID    = "user_id"
	jwtClaimRole      = "role"
	jwtClaimName      = "name"
	jwtClaimExpires   = "exp"
	jwtClaimIssuedAt  = "iat"
)

// SessionService maps signed session tokens to principals. A token is only honoured
// while its session row exists, is not revoked and has not expired.
type SessionService interface {
	Login(ctx context.Context, exec repositories.SQLExecutor, username, password string) (*models.SessionToken, error)
	// Resolve never fails on a bad token: it returns the anonymous principal instead.
	Resolve(ctx context.Context, exec repositories.SQLExecutor, token string) (models.Principal, error)
	Logout(ctx context.Context, exec repositories.SQLExecutor, token string) error
	PurgeExpired(ctx context.Context, exec repositories.SQLExecutor) (int64, error)
}

type sessionService struct {
	sessionRepo repositories.SessionRepository
	identity    IdentityService
	secret      []byte
	lifetime    time.Duration
	now         func() time.Time
}

func NewSessionService(
	sessionRepo repositories.SessionRepository,
	identity IdentityService,
	secret []byte,
	lifetime time.Duration,
) SessionService {
	if lifetime <= 0 {
		lifetime = DefaultSessionLifetime
	}
	return &sessionService{
		sessionRepo: sessionRepo,
		identity:    identity,
		secret:      secret,
		lifetime:    lifetime,
		now:         time.Now,
	}
}

func (s *sessionService) Login(ctx context.Context, exec repositories.SQLExecutor, username, password string) (*models.SessionToken, error) {
	user, err := s.identity.VerifyCredentials(ctx, exec, username, password)
	if err != nil {
		return nil, err
	}

	id, err := generateRandomToken(sessionIDLength)
	if err != nil {
		return nil, fmt.Errorf("failed to generate session id: %w", err)
	}

	now := s.now().UTC().Truncate(time.Millisecond)
	session := &models.Session{
		ID:        id,
		UserID:    user.ID,
		Username:  user.Username,
		Role:      user.Role,
		CreatedAt: now,
		ExpiresAt: now.Add(s.lifetime),
	}
	if err := s.sessionRepo.Create(ctx, exec, session); err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	claims := jwt.MapClaims{
		jwtClaimSessionID: session.ID,
		jwtClaimUserID:    user.ID,
		jwtClaimRole:      string(user.Role),
		jwtClaimName:      user.Username,
		jwtClaimExpires:   session.ExpiresAt.Unix(),
		jwtClaimIssuedAt:  now.Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	tokenString, err := token.SignedString(s.secret)
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}

	return &models.SessionToken{
		Token:     tokenString,
		ExpiresAt: session.ExpiresAt,
		User:      user,
	}, nil
}

func (s *sessionService) Resolve(ctx context.Context, exec repositories.SQLExecutor, token string) (models.Principal, error) {
	if token == "" {
		return models.Anonymous, nil
	}

	sessionID, ok := s.parseSessionID(token)
	if !ok {
		return models.Anonymous, nil
	}

	session, err := s.sessionRepo.GetByID(ctx, exec, sessionID)
	if err != nil {
		if errors.Is(err, repositories.ErrSessionNotFound) {
			return models.Anonymous, nil
		}
		return models.Anonymous, fmt.Errorf("failed to load session: %w", err)
	}
	if !session.Active(s.now()) {
		return models.Anonymous, nil
	}

	// Роль берется из сессии, зафиксированной при входе
	return models.Principal{
		UserID:    session.UserID,
		Username:  session.Username,
		Role:      session.Role,
		SessionID: session.ID,
	}, nil
}

func (s *sessionService) Logout(ctx context.Context, exec repositories.SQLExecutor, token string) error {
	sessionID, ok := s.parseSessionID(token)
	if !ok {
		return ErrUnauthenticated
	}
	// Строка остается до истечения срока, поэтому jti нельзя возобновить
	if err := s.sessionRepo.Revoke(ctx, exec, sessionID, s.now()); err != nil {
		if errors.Is(err, repositories.ErrSessionNotFound) {
			return ErrUnauthenticated
		}
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	return nil
}

func (s *sessionService) PurgeExpired(ctx context.Context, exec repositories.SQLExecutor) (int64, error) {
	n, err := s.sessionRepo.DeleteExpired(ctx, exec, s.now())
	if err != nil {
		return 0, fmt.Errorf("failed to purge expired sessions: %w", err)
	}
	return n, nil
}

// parseSessionID verifies the signature and expiry and returns the jti claim.
func (s *sessionService) parseSessionID(tokenString string) (string, bool) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return "", false
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", false
	}
	sessionID, ok := claims[jwtClaimSessionID].(string)
	if !ok || sessionID == "" {
		return "", false
	}
	return sessionID, true
}

const tokenCharset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// maxUnbiasedByte is the largest multiple of len(tokenCharset) that fits in a byte;
// bytes at or above it are discarded so every character is equally likely.
const maxUnbiasedByte = 256 - 256%len(tokenCharset)

func generateRandomToken(length int) (string, error) {
	return randomToken(rand.Reader, length)
}

func randomToken(source io.Reader, length int) (string, error) {
	b := make([]byte, 0, length)
	buf := make([]byte, length)
	for len(b) < length {
		if _, err := io.ReadFull(source, buf); err != nil {
			return "", err
		}
		for _, rb := range buf {
			if int(rb) >= maxUnbiasedByte {
				continue
			}
			b = append(b, tokenCharset[int(rb)%len(tokenCharset)])
			if len(b) == length {
				break
			}
		}
	}
	return string(b), nil
}
