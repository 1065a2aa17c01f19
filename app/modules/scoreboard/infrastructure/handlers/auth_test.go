package scoreboardhandlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	scoreboardtypes "github.com/scorecard-club/scorecard/app/modules/scoreboard/domain/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenAuthenticator_ValidateToken(t *testing.T) {
	auth := NewTokenAuthenticator("secret")

	valid, err := auth.IssueToken("user-1", time.Hour)
	require.NoError(t, err)
	expired, err := auth.IssueToken("user-1", -time.Minute)
	require.NoError(t, err)
	foreign, err := NewTokenAuthenticator("other").IssueToken("user-1", time.Hour)
	require.NoError(t, err)
	noSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &userClaims{
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	}).SignedString([]byte("secret"))
	require.NoError(t, err)

	tests := []struct {
		name    string
		token   string
		want    scoreboardtypes.UserID
		wantErr error
	}{
		{name: "valid", token: valid, want: "user-1"},
		{name: "expired", token: expired, wantErr: ErrExpiredToken},
		{name: "wrong secret", token: foreign, wantErr: ErrInvalidSignature},
		{name: "no subject", token: noSubject, wantErr: ErrInvalidToken},
		{name: "garbage", token: "not.a.jwt", wantErr: ErrInvalidToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := auth.ValidateToken(tt.token)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTokenAuthenticator_Middleware(t *testing.T) {
	auth := NewTokenAuthenticator("secret")
	token, err := auth.IssueToken("user-1", time.Hour)
	require.NoError(t, err)

	var seen scoreboardtypes.UserID
	var authenticated bool
	handler := auth.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, authenticated = auth.CurrentUser(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantUser   scoreboardtypes.UserID
		wantAuth   bool
	}{
		{name: "anonymous", wantStatus: http.StatusNoContent},
		{name: "bearer", header: "Bearer " + token, wantStatus: http.StatusNoContent, wantUser: "user-1", wantAuth: true},
		{name: "basic scheme", header: "Basic dXNlcjpwYXNz", wantStatus: http.StatusUnauthorized},
		{name: "bad token", header: "Bearer nope", wantStatus: http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen, authenticated = "", false
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantUser, seen)
			assert.Equal(t, tt.wantAuth, authenticated)
		})
	}
}

func TestUserFromContext(t *testing.T) {
	_, ok := UserFromContext(context.Background())
	assert.False(t, ok)

	_, ok = UserFromContext(WithUser(context.Background(), ""))
	assert.False(t, ok, "empty ids are anonymous")

	id, ok := UserFromContext(WithUser(context.Background(), "u"))
	assert.True(t, ok)
	assert.Equal(t, scoreboardtypes.UserID("u"), id)
}
