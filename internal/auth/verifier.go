// Package auth verifies identity tokens. Tokens are issued upstream by the
// identity provider; this service only checks the signature and issuer and
// extracts the external user id and profile claims.
package auth

import (
	"errors"

	"btcpaper/internal/types"
	"btcpaper/internal/users"

	"github.com/golang-jwt/jwt/v5"
)

type Verifier struct {
	issuer string
	secret []byte
}

func NewVerifier(issuer string, secret []byte) *Verifier {
	return &Verifier{issuer: issuer, secret: secret}
}

type identityClaims struct {
	jwt.RegisteredClaims
	WalletAddress string `json:"wallet_address,omitempty"`
	Email         string `json:"email,omitempty"`
	LoginMethod   string `json:"login_method,omitempty"`
}

// ParseToken validates an HS256 bearer token and returns the identity it
// carries. The subject claim is the external (Privy) user id.
func (v *Verifier) ParseToken(token string) (users.Identity, error) {
	parsed, err := jwt.ParseWithClaims(token, &identityClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return v.secret, nil
	})
	if err != nil {
		return users.Identity{}, err
	}
	claims, ok := parsed.Claims.(*identityClaims)
	if !ok || !parsed.Valid {
		return users.Identity{}, errors.New("invalid token")
	}
	if claims.Issuer != v.issuer {
		return users.Identity{}, errors.New("invalid issuer")
	}
	if claims.Subject == "" {
		return users.Identity{}, errors.New("invalid subject")
	}
	return users.Identity{
		PrivyUserID:   claims.Subject,
		WalletAddress: claims.WalletAddress,
		Email:         claims.Email,
		LoginMethod:   types.LoginMethod(claims.LoginMethod),
	}, nil
}
