package scoreboardhandlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	scoreboardservice "github.com/scorecard-club/scorecard/app/modules/scoreboard/application"
	scoreboardtypes "github.com/scorecard-club/scorecard/app/modules/scoreboard/domain/types"
)

var (
	ErrInvalidToken     = errors.New("invalid token")
	ErrExpiredToken     = errors.New("token has expired")
	ErrInvalidSignature = errors.New("invalid token signature")
)

type userKey struct{}

type userClaims struct {
	jwt.RegisteredClaims
	Name string `json:"name,omitempty"`
}

// TokenAuthenticator verifies HS256 bearer tokens and exposes the caller to
// the scoreboard as its CurrentUserProvider.
type TokenAuthenticator struct {
	secret []byte
}

var _ scoreboardservice.CurrentUserProvider = (*TokenAuthenticator)(nil)

// NewTokenAuthenticator creates an authenticator for secret.
func NewTokenAuthenticator(secret string) *TokenAuthenticator {
	return &TokenAuthenticator{secret: []byte(secret)}
}

// IssueToken signs a token whose subject is userID.
func (a *TokenAuthenticator) IssueToken(userID scoreboardtypes.UserID, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &userClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   string(userID),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken returns the user id carried by tokenString.
func (a *TokenAuthenticator) ValidateToken(tokenString string) (scoreboardtypes.UserID, error) {
	token, err := jwt.ParseWithClaims(tokenString, &userClaims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidSignature
		}
		return a.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrExpiredToken
		}
		if errors.Is(err, jwt.ErrTokenSignatureInvalid) {
			return "", ErrInvalidSignature
		}
		return "", ErrInvalidToken
	}

	claims, ok := token.Claims.(*userClaims)
	if !ok || !token.Valid || claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return scoreboardtypes.UserID(claims.Subject), nil
}

// Middleware resolves the bearer token, if any. Requests without a token
// continue anonymously; a bad token is rejected.
func (a *TokenAuthenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			next.ServeHTTP(w, r)
			return
		}
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		userID, err := a.ValidateToken(strings.TrimSpace(raw))
		if err != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), userID)))
	})
}

// CurrentUser returns the authenticated caller stored on ctx.
func (a *TokenAuthenticator) CurrentUser(ctx context.Context) (scoreboardtypes.UserID, bool) {
	return UserFromContext(ctx)
}

// WithUser stores id as the authenticated caller.
func WithUser(ctx context.Context, id scoreboardtypes.UserID) context.Context {
	return context.WithValue(ctx, userKey{}, id)
}

// UserFromContext returns the authenticated caller, if any.
func UserFromContext(ctx context.Context) (scoreboardtypes.UserID, bool) {
	id, ok := ctx.Value(userKey{}).(scoreboardtypes.UserID)
	return id, ok && id != ""
}
