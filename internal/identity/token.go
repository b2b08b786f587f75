package identity

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenParam is the query parameter (or fragment key) carrying a handoff token.
const TokenParam = "nylo_token"

// DefaultTokenTTL is the documented lifetime of a handoff token.
const DefaultTokenTTL = 5 * time.Minute

var (
	ErrMalformedToken = errors.New("malformed handoff token")
	ErrUnsignedToken  = errors.New("unsigned handoff token rejected")
	ErrExpiredToken   = errors.New("handoff token expired")
)

// HandoffToken carries an identity from one domain to the next.
type HandoffToken struct {
	WaiTag    string `json:"waiTag"`
	SessionID string `json:"sessionId"`
	Timestamp int64  `json:"timestamp"`
}

// Validate checks the carried identity has the expected shape.
func (t HandoffToken) Validate() error {
	if !IsValid(t.WaiTag) {
		return fmt.Errorf("%w: invalid waiTag", ErrMalformedToken)
	}
	if t.SessionID == "" {
		return fmt.Errorf("%w: missing sessionId", ErrMalformedToken)
	}
	return nil
}

// IssuedAt returns the token's creation time.
func (t HandoffToken) IssuedAt() time.Time {
	return time.UnixMilli(t.Timestamp).UTC()
}

type handoffClaims struct {
	WaiTag    string `json:"waiTag"`
	SessionID string `json:"sessionId"`
	jwt.RegisteredClaims
}

// TokenCodec encodes and decodes handoff tokens. Without a signing key tokens
// are base64 JSON. With a key they are HS256 JWTs whose exp bounds their life;
// RequireSigned then rejects the base64 form.
type TokenCodec struct {
	SigningKey    []byte
	TTL           time.Duration
	RequireSigned bool
	Now           func() time.Time
}

func (c TokenCodec) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func (c TokenCodec) ttl() time.Duration {
	if c.TTL > 0 {
		return c.TTL
	}
	return DefaultTokenTTL
}

// Encode serialises tok in the configured form.
func (c TokenCodec) Encode(tok HandoffToken) (string, error) {
	if len(c.SigningKey) == 0 {
		return EncodeLegacy(tok)
	}

	issued := tok.IssuedAt()
	claims := handoffClaims{
		WaiTag:    tok.WaiTag,
		SessionID: tok.SessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(issued),
			ExpiresAt: jwt.NewNumericDate(issued.Add(c.ttl())),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.SigningKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign handoff token: %w", err)
	}
	return signed, nil
}

// Decode parses either form and validates the carried identity.
func (c TokenCodec) Decode(raw string) (HandoffToken, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return HandoffToken{}, fmt.Errorf("%w: empty", ErrMalformedToken)
	}

	if strings.Count(raw, ".") == 2 {
		if len(c.SigningKey) == 0 {
			return HandoffToken{}, fmt.Errorf("%w: signed token but no signing key configured", ErrMalformedToken)
		}
		return c.decodeSigned(raw)
	}
	if c.RequireSigned {
		return HandoffToken{}, ErrUnsignedToken
	}
	return DecodeLegacy(raw)
}

func (c TokenCodec) decodeSigned(raw string) (HandoffToken, error) {
	var claims handoffClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (interface{}, error) {
		return c.SigningKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(c.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return HandoffToken{}, ErrExpiredToken
		}
		return HandoffToken{}, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}

	tok := HandoffToken{WaiTag: claims.WaiTag, SessionID: claims.SessionID}
	if claims.IssuedAt != nil {
		tok.Timestamp = claims.IssuedAt.UnixMilli()
	}
	if err := tok.Validate(); err != nil {
		return HandoffToken{}, err
	}
	return tok, nil
}

// EncodeLegacy renders tok as standard base64 JSON.
func EncodeLegacy(tok HandoffToken) (string, error) {
	b, err := json.Marshal(tok)
	if err != nil {
		return "", fmt.Errorf("failed to encode handoff token: %w", err)
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

// DecodeLegacy accepts standard or URL-safe base64, padded or not, since
// links are rewritten by mail clients and shorteners. Expiry is not enforced.
func DecodeLegacy(raw string) (HandoffToken, error) {
	// A '+' that went through form decoding arrives as a space.
	raw = strings.ReplaceAll(raw, " ", "+")

	var payload []byte
	var err error
	for _, enc := range []*base64.Encoding{
		base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding,
	} {
		if payload, err = enc.DecodeString(raw); err == nil {
			break
		}
	}
	if err != nil {
		return HandoffToken{}, fmt.Errorf("%w: not base64", ErrMalformedToken)
	}

	var tok HandoffToken
	if err := json.Unmarshal(payload, &tok); err != nil {
		return HandoffToken{}, fmt.Errorf("%w: not JSON", ErrMalformedToken)
	}
	if err := tok.Validate(); err != nil {
		return HandoffToken{}, err
	}
	return tok, nil
}
