package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/mediation-escrow/backend/internal/models"
)

func TestJWTRoundTrip(t *testing.T) {
	id := uuid.New()
	tok, err := GenerateJWT("secret", id, models.RoleAdmin, time.Hour)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	claims, err := ParseJWT("secret", tok)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.Actor() != (models.Actor{UserID: id, Role: models.RoleAdmin}) {
		t.Errorf("actor = %+v", claims.Actor())
	}
}

func TestParseJWTRejects(t *testing.T) {
	id := uuid.New()
	good, _ := GenerateJWT("secret", id, models.RoleUser, time.Hour)
	// GenerateJWT treats a non-positive expiration as 24h
	expiredClaims := Claims{UserID: id, Role: models.RoleUser, RegisteredClaims: jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		Issuer:    issuer,
	}}
	expired, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, expiredClaims).SignedString([]byte("secret"))
	system, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{UserID: id, Role: models.RoleSystem,
		RegisteredClaims: jwt.RegisteredClaims{Issuer: issuer}}).SignedString([]byte("secret"))

	tests := []struct {
		name   string
		secret string
		token  string
	}{
		{"wrong secret", "other", good},
		{"expired", "secret", expired},
		{"system role", "secret", system},
		{"garbage", "secret", "not-a-token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseJWT(tt.secret, tt.token); err == nil {
				t.Error("expected error")
			}
		})
	}
}
