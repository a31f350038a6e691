package dirauth

import (
	"fmt"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// TokenService signs and verifies session tokens with a shared secret. The
// current key signs; the current key and any previous keys verify, selected
// by the kid header.
type TokenService struct {
	method   jwt.SigningMethod
	keyID    string
	secret   []byte
	keys     *keyfunc.JWKS
	issuer   string
	audience jwt.ClaimStrings
	now      func() time.Time
	logger   Logger
}

// TokenOption customizes a TokenService
type TokenOption func(*TokenService)

// WithTokenClock replaces the wall clock used to stamp and check tokens.
func WithTokenClock(now func() time.Time) TokenOption {
	return func(ts *TokenService) {
		if now != nil {
			ts.now = now
		}
	}
}

// WithTokenLogger sets the logger
func WithTokenLogger(logger Logger) TokenOption {
	return func(ts *TokenService) {
		if logger != nil {
			ts.logger = logger
		}
	}
}

var signingMethods = map[string]jwt.SigningMethod{
	"HS256": jwt.SigningMethodHS256,
	"HS384": jwt.SigningMethodHS384,
	"HS512": jwt.SigningMethodHS512,
}

// NewTokenService builds a TokenService from configuration.
func NewTokenService(cfg *TokenConfig, opts ...TokenOption) (*TokenService, error) {
	method, ok := signingMethods[cfg.Algorithm]
	if !ok {
		return nil, errors.New(fmt.Sprintf("unsupported signing algorithm %q", cfg.Algorithm), errors.CategoryBadInput).
			WithTextCode("UNSUPPORTED_ALGORITHM")
	}
	if cfg.SecretKey == "" {
		return nil, errors.New("token secret must not be empty", errors.CategoryBadInput).
			WithTextCode("MISSING_SECRET")
	}

	keyID := cfg.KeyID
	if keyID == "" {
		keyID = "primary"
	}

	options := keyfunc.GivenKeyOptions{Algorithm: method.Alg()}
	givenKeys := make(map[string]keyfunc.GivenKey, len(cfg.PreviousKeys)+1)
	for kid, secret := range cfg.PreviousKeys {
		if kid == "" || secret == "" {
			continue
		}
		givenKeys[kid] = keyfunc.NewGivenCustom([]byte(secret), options)
	}
	givenKeys[keyID] = keyfunc.NewGivenCustom([]byte(cfg.SecretKey), options)

	ts := &TokenService{
		method:   method,
		keyID:    keyID,
		secret:   []byte(cfg.SecretKey),
		keys:     keyfunc.NewGiven(givenKeys),
		issuer:   cfg.Issuer,
		audience: jwt.ClaimStrings(cfg.Audience),
		now:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(ts)
		}
	}
	ts.logger = normalizeLogger(ts.logger, "tokens")

	return ts, nil
}

// Issue signs a token for subject carrying the group snapshot. It returns
// the signed string and the expiry instant.
func (ts *TokenService) Issue(subject string, groups []string, ttl time.Duration) (string, time.Time, error) {
	if ttl <= 0 {
		return "", time.Time{}, errors.New("token ttl must be positive", errors.CategoryBadInput).
			WithTextCode("INVALID_TTL")
	}

	now := ts.now()
	expiresAt := now.Add(ttl)

	snapshot := make([]string, len(groups))
	copy(snapshot, groups)

	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    ts.issuer,
			Subject:   subject,
			Audience:  ts.audience,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Groups: snapshot,
	}

	token := jwt.NewWithClaims(ts.method, claims)
	token.Header["kid"] = ts.keyID

	signed, err := token.SignedString(ts.secret)
	if err != nil {
		return "", time.Time{}, errors.Wrap(err, errors.CategoryInternal, "failed to sign JWT")
	}

	return signed, claims.Expires(), nil
}

// Verify checks signature, algorithm and expiry and returns the claims.
// Every failure is reported as InvalidToken.
func (ts *TokenService) Verify(raw string) (*Claims, error) {
	if raw == "" {
		return nil, ErrInvalidToken
	}

	parserOptions := []jwt.ParserOption{
		jwt.WithValidMethods([]string{ts.method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(ts.now),
	}
	if ts.issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(ts.issuer))
	}
	if len(ts.audience) > 0 {
		parserOptions = append(parserOptions, jwt.WithAudience(ts.audience...))
	}

	token, err := jwt.ParseWithClaims(raw, &Claims{}, ts.keys.Keyfunc, parserOptions...)
	if err != nil {
		ts.logger.Debug("token rejected", "error", err)
		return nil, InvalidToken(err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Username() == "" {
		ts.logger.Debug("token claims could not be decoded")
		return nil, ErrInvalidToken
	}

	return claims, nil
}
