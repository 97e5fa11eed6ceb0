package wire

import (
	"crypto/sha256"
	"fmt"
	"io"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/hkdf"
)

// subscriberTokenInfo is the HKDF info parameter separating the key used
// here from any other key an operator might derive from the same secret.
const subscriberTokenInfo = "sigilgraphd subscriber-token v1"

// SubscriberClaims identifies the principal a feed subscription token was
// issued to, following core/pkg/identity.IdentityClaims's shape of
// embedding jwt.RegisteredClaims plus one domain field.
type SubscriberClaims struct {
	jwt.RegisteredClaims
	Subscriber string `json:"subscriber"`
}

// TokenIssuer issues and verifies the short-lived bearer token a client
// presents before opening a SUB stream. This sits in front of the line
// protocol itself (spec.md §6.3 has no notion of a token); it's the
// ambient authentication the HTTP adapter performs before handing a
// connection off to the frame reader/writer.
type TokenIssuer struct {
	secret []byte
	issuer string
}

// NewTokenIssuer returns a TokenIssuer signing with an HMAC secret
// (simpler than identity.TokenManager's RSA KeySet — this token only
// gates the feed subscription handshake, not the full identity system).
// secret is run through HKDF-SHA256 before use, the way
// core/pkg/governance/keyring.go derives signing keys from an operator
// secret rather than using it directly: SIGILGRAPH_JWT_SECRET can be any
// length or entropy shape, and this pins the actual HMAC key to 32
// uniformly-distributed bytes scoped to this one purpose.
func NewTokenIssuer(secret []byte, issuer string) *TokenIssuer {
	derived := make([]byte, sha256.Size)
	kdf := hkdf.New(sha256.New, secret, nil, []byte(subscriberTokenInfo))
	if _, err := io.ReadFull(kdf, derived); err != nil {
		panic(fmt.Sprintf("wire: deriving subscriber token key: %v", err))
	}
	return &TokenIssuer{secret: derived, issuer: issuer}
}

// Issue returns a signed token for subscriber valid for ttl.
func (ti *TokenIssuer) Issue(subscriber string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := SubscriberClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subscriber,
			Issuer:    ti.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Subscriber: subscriber,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(ti.secret)
	if err != nil {
		return "", fmt.Errorf("wire: signing subscriber token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates tokenString, returning its claims if the
// signature and expiry both check out.
func (ti *TokenIssuer) Verify(tokenString string) (*SubscriberClaims, error) {
	claims := &SubscriberClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("wire: unexpected signing method %v", t.Header["alg"])
		}
		return ti.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("wire: parsing subscriber token: %w", err)
	}
	if !token.Valid {
		return nil, jwt.ErrTokenSignatureInvalid
	}
	return claims, nil
}
