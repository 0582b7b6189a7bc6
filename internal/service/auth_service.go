package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"residence/internal/models"
	"residence/internal/repo"
	"residence/pkg/crypto"
)

type AuthService interface {
	Register(ctx context.Context, email, name, password string) (string, error)
	// Login returns a session token for the cookie and a signed bearer token.
	Login(ctx context.Context, email, password string) (*Session, error)
	Logout(ctx context.Context, token string) error
	CurrentUser(ctx context.Context, token string) (*models.User, error)
	BearerUser(ctx context.Context, bearer string) (*models.User, error)
	EnsureAdmin(ctx context.Context, email, password string) error
}

type Session struct {
	Token       string
	AccessToken string
	Expires     time.Time
}

type authService struct {
	users  repo.UserRepo
	sess   repo.SessionRepo
	secret []byte
	ttl    time.Duration
}

func NewAuthService(u repo.UserRepo, s repo.SessionRepo, secret []byte, ttl time.Duration) AuthService {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &authService{users: u, sess: s, secret: secret, ttl: ttl}
}

func (a *authService) Register(ctx context.Context, email, name, password string) (string, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if !validEmail(email) || len(password) < 8 || len(password) > 72 {
		return "", NewValidation("invalid email or password")
	}
	hash, err := crypto.HashPassword(password)
	if err != nil {
		return "", err
	}
	id, err := a.users.Create(ctx, email, strings.TrimSpace(name), hash)
	if errors.Is(err, repo.ErrDuplicate) {
		return "", NewValidation("email already registered")
	}
	return id, err
}

func (a *authService) Login(ctx context.Context, email, password string) (*Session, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	u, err := a.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, NewUnauthorized(ErrMsgInvalidCreds)
	}
	if err := crypto.CheckPassword(u.PasswordHash, password); err != nil {
		return nil, NewUnauthorized(ErrMsgInvalidCreds)
	}
	tok, err := randomToken(32)
	if err != nil {
		return nil, err
	}
	exp := time.Now().Add(a.ttl).UTC()
	if err := a.sess.Create(ctx, tok, u.ID, exp); err != nil {
		return nil, err
	}
	access, err := crypto.IssueToken(a.secret, u.ID, u.IsAdmin, a.ttl)
	if err != nil {
		return nil, err
	}
	return &Session{Token: tok, AccessToken: access, Expires: exp}, nil
}

func (a *authService) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return a.sess.Delete(ctx, token)
}

func (a *authService) CurrentUser(ctx context.Context, token string) (*models.User, error) {
	if token == "" {
		return nil, NewUnauthorized("no token")
	}
	uid, exp, err := a.sess.Lookup(ctx, token)
	if err != nil {
		return nil, NewUnauthorized("invalid session")
	}
	if time.Now().After(exp) {
		_ = a.sess.Delete(ctx, token)
		return nil, NewUnauthorized("expired session")
	}
	return a.user(ctx, uid)
}

func (a *authService) BearerUser(ctx context.Context, bearer string) (*models.User, error) {
	claims, err := crypto.ParseToken(a.secret, bearer)
	if err != nil {
		return nil, NewUnauthorized("invalid token")
	}
	// admin flag is re-read from the store, not trusted from the token
	return a.user(ctx, claims.UserID)
}

func (a *authService) user(ctx context.Context, id string) (*models.User, error) {
	u, err := a.users.GetByID(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, NewUnauthorized("unknown user")
	}
	return u, err
}

// EnsureAdmin seeds or promotes an admin account. Empty or short
// credentials are ignored.
func (a *authService) EnsureAdmin(ctx context.Context, email, password string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || len(password) < 8 {
		return nil
	}
	hash, err := crypto.HashPassword(password)
	if err != nil {
		return err
	}
	return a.users.UpsertAdmin(ctx, email, hash)
}

func randomToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func validEmail(s string) bool { return strings.Contains(s, "@") && len(s) <= 255 }
