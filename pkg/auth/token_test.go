package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/openlearnhq/courseware-backend/pkg/config"
)

func TestMintAndParseAccessToken(t *testing.T) {
	cfg := config.JWTConfig{
		Secret:            "secret",
		Issuer:            "courseware",
		ExpirationMinutes: 30,
	}
	now := time.Now().UTC()
	userID := uuid.New()

	payload := AccessTokenPayload{
		UserID:      userID,
		Username:    "learner",
		GlobalStaff: true,
	}

	token, err := MintAccessToken(cfg, now, payload)
	if err != nil {
		t.Fatalf("mint access token: %v", err)
	}

	claims, err := ParseAccessToken(cfg, token)
	if err != nil {
		t.Fatalf("parse access token: %v", err)
	}

	if claims.UserID != userID {
		t.Fatalf("expected user_id %s, got %s", userID, claims.UserID)
	}
	if claims.Username != "learner" {
		t.Fatalf("unexpected username %q", claims.Username)
	}
	if !claims.GlobalStaff {
		t.Fatalf("global staff flag not preserved")
	}
	if claims.Issuer != cfg.Issuer {
		t.Fatalf("unexpected issuer %q", claims.Issuer)
	}
	if claims.ID == "" {
		t.Fatalf("expected generated jti")
	}
}

func TestMintAccessToken_Validation(t *testing.T) {
	base := config.JWTConfig{Secret: "secret", Issuer: "courseware", ExpirationMinutes: 30}
	payload := AccessTokenPayload{UserID: uuid.New(), Username: "learner"}

	cases := []struct {
		name    string
		cfg     config.JWTConfig
		payload AccessTokenPayload
	}{
		{"missing secret", config.JWTConfig{Issuer: "courseware", ExpirationMinutes: 30}, payload},
		{"missing issuer", config.JWTConfig{Secret: "secret", ExpirationMinutes: 30}, payload},
		{"zero expiry", config.JWTConfig{Secret: "secret", Issuer: "courseware"}, payload},
		{"missing user", base, AccessTokenPayload{Username: "learner"}},
		{"missing username", base, AccessTokenPayload{UserID: uuid.New()}},
	}
	for _, tc := range cases {
		if _, err := MintAccessToken(tc.cfg, time.Now(), tc.payload); err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
	}
}

func TestParseAccessToken_WrongSecret(t *testing.T) {
	cfg := config.JWTConfig{Secret: "secret", Issuer: "courseware", ExpirationMinutes: 30}
	token, err := MintAccessToken(cfg, time.Now(), AccessTokenPayload{UserID: uuid.New(), Username: "learner"})
	if err != nil {
		t.Fatalf("mint access token: %v", err)
	}

	other := cfg
	other.Secret = "different"
	if _, err := ParseAccessToken(other, token); err == nil {
		t.Fatalf("expected signature error")
	}
}

func TestParseAccessToken_Tampered(t *testing.T) {
	cfg := config.JWTConfig{Secret: "secret", Issuer: "courseware", ExpirationMinutes: 30}
	token, err := MintAccessToken(cfg, time.Now(), AccessTokenPayload{UserID: uuid.New(), Username: "learner"})
	if err != nil {
		t.Fatalf("mint access token: %v", err)
	}

	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		t.Fatalf("unexpected token shape")
	}
	parts[1] = parts[1] + "x"
	if _, err := ParseAccessToken(cfg, strings.Join(parts, ".")); err == nil {
		t.Fatalf("expected parse error for tampered token")
	}
}
