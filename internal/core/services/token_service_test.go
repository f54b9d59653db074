package services

import (
	"context"
	"testing"
	"time"

	"desklink/internal/core/domain"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenService_RoundTrip(t *testing.T) {
	svc := NewTokenService("test-secret", time.Hour)
	ctx := context.Background()

	token, err := svc.IssueJoinToken(ctx, "sess_1", "part_a", domain.RoleController)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	sessionID, participantID, role, err := svc.ValidateJoinToken(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, domain.SessionID("sess_1"), sessionID)
	assert.Equal(t, domain.ParticipantID("part_a"), participantID)
	assert.Equal(t, domain.RoleController, role)
}

func TestTokenService_IssueValidation(t *testing.T) {
	svc := NewTokenService("test-secret", time.Hour)
	ctx := context.Background()

	_, err := svc.IssueJoinToken(ctx, "", "part_a", domain.RoleHost)
	assert.Error(t, err, "empty session id")

	_, err = svc.IssueJoinToken(ctx, "sess_1", "", domain.RoleHost)
	assert.Error(t, err, "empty participant id")

	_, err = svc.IssueJoinToken(ctx, "sess_1", "part_a", "admin")
	assert.Error(t, err, "unknown role")

	_, err = svc.IssueJoinToken(ctx, "sess/1", "part_a", domain.RoleHost)
	assert.Error(t, err, "session id with bad characters")
}

func TestTokenService_RejectsExpired(t *testing.T) {
	svc := NewTokenService("test-secret", time.Millisecond)
	ctx := context.Background()

	token, err := svc.IssueJoinToken(ctx, "sess_1", "part_a", domain.RoleHost)
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)

	_, _, _, err = svc.ValidateJoinToken(ctx, token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestTokenService_RejectsForeignSignature(t *testing.T) {
	issuer := NewTokenService("secret-one", time.Hour)
	verifier := NewTokenService("secret-two", time.Hour)
	ctx := context.Background()

	token, err := issuer.IssueJoinToken(ctx, "sess_1", "part_a", domain.RoleHost)
	require.NoError(t, err)

	_, _, _, err = verifier.ValidateJoinToken(ctx, token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenService_RejectsGarbage(t *testing.T) {
	svc := NewTokenService("test-secret", time.Hour)

	_, _, _, err := svc.ValidateJoinToken(context.Background(), "not.a.token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenService_RejectsIncompleteClaims(t *testing.T) {
	secret := []byte("test-secret")
	svc := NewTokenService(string(secret), time.Hour)

	claims := &JoinClaims{
		Role: "superuser",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	require.NoError(t, err)

	_, _, _, err = svc.ValidateJoinToken(context.Background(), token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
