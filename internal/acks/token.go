package acks

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// linkClaims binds an ack link to one call and one contact.
type linkClaims struct {
	ContactID string `json:"contact_id"`
	jwt.RegisteredClaims
}

// TokenMinter issues and verifies the signed tokens embedded in secure
// acknowledgment links.
type TokenMinter struct {
	secret []byte
	ttl    time.Duration
}

func NewTokenMinter(secret string, ttl time.Duration) *TokenMinter {
	return &TokenMinter{secret: []byte(secret), ttl: ttl}
}

// Mint signs a token for one call/contact pair.
func (m *TokenMinter) Mint(callID, contactID string, now time.Time) (string, error) {
	claims := linkClaims{
		ContactID: contactID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   callID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("acks: sign link token: %w", err)
	}
	return signed, nil
}

// Verify checks the signature and expiry, and that the token was minted for
// the given call. It returns the contact id the link was issued to.
func (m *TokenMinter) Verify(tokenStr, callID string) (string, error) {
	var claims linkClaims
	_, err := jwt.ParseWithClaims(tokenStr, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("acks: parse link token: %w", err)
	}
	if claims.Subject != callID {
		return "", fmt.Errorf("acks: token was issued for a different call")
	}
	return claims.ContactID, nil
}
