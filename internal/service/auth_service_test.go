package service

import (
	"context"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/mural-go-api/internal/dto"
)

func TestAuthServiceIssuesAdminToken(t *testing.T) {
	now := time.Now()
	svc := NewAuthService(AuthOptions{
		Passphrase: "open sesame",
		Enabled:    true,
		Secret:     "signing-secret",
		TTL:        time.Hour,
		Clock:      fixedClock(now),
	}, validator.New(), testLogger())

	resp, err := svc.Login(context.Background(), dto.LoginRequest{Passphrase: "open sesame"})
	require.NoError(t, err)
	require.Equal(t, AdminRole, resp.Role)
	require.Equal(t, now.Add(time.Hour).Unix(), resp.ExpiresAt)

	claims := &AdminClaims{}
	token, err := jwt.ParseWithClaims(resp.Token, claims, func(*jwt.Token) (interface{}, error) {
		return []byte("signing-secret"), nil
	})
	require.NoError(t, err)
	require.True(t, token.Valid)
	require.Equal(t, AdminRole, claims.Role)
	require.Equal(t, AdminRole, claims.Subject)
}

func TestAuthServiceRejectsWrongPassphrase(t *testing.T) {
	svc := NewAuthService(AuthOptions{Passphrase: "open sesame", Enabled: true, Secret: "s"}, validator.New(), testLogger())

	_, err := svc.Login(context.Background(), dto.LoginRequest{Passphrase: "open sesame!"})
	require.ErrorIs(t, err, ErrInvalidPassphrase)

	_, err = svc.Login(context.Background(), dto.LoginRequest{})
	require.Error(t, err)
}

func TestAuthServiceDisabledWithoutPassphrase(t *testing.T) {
	svc := NewAuthService(AuthOptions{Enabled: true, Secret: "s"}, validator.New(), testLogger())

	_, err := svc.Login(context.Background(), dto.LoginRequest{Passphrase: ""})
	require.ErrorIs(t, err, ErrAdminDisabled)
}
