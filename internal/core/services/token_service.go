package services

import (
	"context"
	"errors"
	"time"

	"desklink/internal/core/domain"
	"desklink/internal/core/ports"
	"desklink/pkg/validation"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
)

// JoinClaims is the signed grant a participant presents to the relay
// and to peers when joining a session.
type JoinClaims struct {
	SessionID     domain.SessionID     `json:"session_id"`
	ParticipantID domain.ParticipantID `json:"participant_id"`
	Role          domain.Role          `json:"role"`
	jwt.RegisteredClaims
}

type tokenService struct {
	secret []byte
	ttl    time.Duration
}

func NewTokenService(secret string, ttl time.Duration) ports.TokenService {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &tokenService{
		secret: []byte(secret),
		ttl:    ttl,
	}
}

func (s *tokenService) IssueJoinToken(ctx context.Context, sessionID domain.SessionID, participantID domain.ParticipantID, role domain.Role) (string, error) {
	if err := validation.ValidateSessionID(string(sessionID)); err != nil {
		return "", err
	}
	if err := validation.ValidateParticipantID(string(participantID)); err != nil {
		return "", err
	}
	if err := validation.ValidateRole(string(role)); err != nil {
		return "", err
	}

	now := time.Now()
	claims := &JoinClaims{
		SessionID:     sessionID,
		ParticipantID: participantID,
		Role:          role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

func (s *tokenService) ValidateJoinToken(ctx context.Context, tokenString string) (domain.SessionID, domain.ParticipantID, domain.Role, error) {
	token, err := jwt.ParseWithClaims(tokenString, &JoinClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", "", "", ErrExpiredToken
		}
		return "", "", "", ErrInvalidToken
	}

	claims, ok := token.Claims.(*JoinClaims)
	if !ok || !token.Valid {
		return "", "", "", ErrInvalidToken
	}
	if claims.SessionID == "" || claims.ParticipantID == "" {
		return "", "", "", ErrInvalidToken
	}
	if err := validation.ValidateRole(string(claims.Role)); err != nil {
		return "", "", "", ErrInvalidToken
	}

	return claims.SessionID, claims.ParticipantID, claims.Role, nil
}
