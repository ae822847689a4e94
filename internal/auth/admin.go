package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/openclaw/memoryd/internal/apperr"
	"github.com/openclaw/memoryd/internal/metrics"
)

// Admin handles the operator login surface. There is a single admin
// principal authenticated by password; sessions are short-lived JWTs.
type Admin struct {
	passwordHash []byte
	signingKey   []byte
	tokenExpiry  time.Duration
	issuer       string
}

// NewAdmin creates the admin authenticator. passwordHash is a bcrypt
// digest; the raw password never reaches configuration.
func NewAdmin(passwordHash, signingKey string, tokenExpiry time.Duration) *Admin {
	if tokenExpiry <= 0 {
		tokenExpiry = 12 * time.Hour
	}
	return &Admin{
		passwordHash: []byte(passwordHash),
		signingKey:   []byte(signingKey),
		tokenExpiry:  tokenExpiry,
		issuer:       "memoryd",
	}
}

// AdminClaims are the JWT claims carried by admin session tokens.
type AdminClaims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

// Login verifies the admin password and mints a session token.
func (a *Admin) Login(password string) (token string, expiresIn int, err error) {
	if err := bcrypt.CompareHashAndPassword(a.passwordHash, []byte(password)); err != nil {
		metrics.AuthFailures.WithLabelValues("admin_password").Inc()
		return "", 0, apperr.E(apperr.KindAuth, "invalid credentials")
	}

	now := time.Now()
	claims := AdminClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "admin",
			Issuer:    a.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.tokenExpiry)),
			NotBefore: jwt.NewNumericDate(now),
			ID:        uuid.New().String(),
		},
		Role: "admin",
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.signingKey)
	if err != nil {
		return "", 0, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, int(a.tokenExpiry.Seconds()), nil
}

// VerifyToken parses and validates an admin session token.
func (a *Admin) VerifyToken(tokenString string) (*AdminClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &AdminClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return a.signingKey, nil
	}, jwt.WithIssuer(a.issuer))
	if err != nil {
		metrics.AuthFailures.WithLabelValues("admin_token").Inc()
		return nil, apperr.Wrap(apperr.KindAuth, "invalid token", err)
	}

	claims, ok := token.Claims.(*AdminClaims)
	if !ok || !token.Valid {
		metrics.AuthFailures.WithLabelValues("admin_token").Inc()
		return nil, apperr.E(apperr.KindAuth, "invalid token")
	}
	return claims, nil
}

// HashPassword produces a bcrypt digest for configuration bootstrap.
func HashPassword(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}
