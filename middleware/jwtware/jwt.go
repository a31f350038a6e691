package jwtware

import (
	"context"
	"errors"
	"strings"

	dirauth "github.com/goliatone/go-dirauth"
	"github.com/goliatone/go-router"
)

var (
	defaultTokenLookup       = "header:" + router.HeaderAuthorization
	ErrJWTMissingOrMalformed = errors.New("missing or malformed JWT")
)

// Authorizer admits or rejects a raw token. *dirauth.Gate satisfies it.
type Authorizer interface {
	Authorize(ctx context.Context, rawToken string) (*dirauth.Principal, error)
}

// ValidationListener is invoked after the gate admitted the request.
type ValidationListener func(ctx router.Context, principal *dirauth.Principal) error

type Config struct {
	Filter         func(router.Context) bool
	SuccessHandler router.HandlerFunc
	ErrorHandler   router.ErrorHandler
	// Gate is required
	Gate        Authorizer
	ContextKey  string
	TokenLookup string
	AuthScheme  string

	// ContextEnricher propagates the principal to the standard context.
	ContextEnricher func(c context.Context, principal *dirauth.Principal) context.Context

	ValidationListeners []ValidationListener
}

// New returns a middleware that runs the configured gate on every request.
func New(config ...Config) router.MiddlewareFunc {
	cfg := GetDefaultConfig(config...)
	extractors := cfg.getExtractors()

	return func(hf router.HandlerFunc) router.HandlerFunc {
		success := cfg.SuccessHandler
		if success == nil {
			success = hf
		}

		return func(ctx router.Context) error {
			if cfg.Filter != nil && cfg.Filter(ctx) {
				return hf(ctx)
			}

			raw, err := ExtractRawTokenFromContext(ctx, extractors)
			if err != nil {
				return cfg.ErrorHandler(ctx, err)
			}

			principal, err := cfg.Gate.Authorize(ctx.Context(), raw)
			if err != nil {
				return cfg.ErrorHandler(ctx, err)
			}

			if err := cfg.runValidationListeners(ctx, principal); err != nil {
				return cfg.ErrorHandler(ctx, err)
			}

			ctx.Locals(cfg.ContextKey, principal)

			if cfg.ContextEnricher != nil {
				ctx.SetContext(cfg.ContextEnricher(ctx.Context(), principal))
			}

			return success(ctx)
		}
	}
}

func ExtractRawTokenFromContext(ctx router.Context, extractors []JWTExtractor) (string, error) {
	var raw string
	var err error

	for _, extractor := range extractors {
		raw, err = extractor(ctx)
		if raw != "" && err == nil {
			break
		}
	}

	return raw, err
}

// DefaultErrorHandler writes {"detail": message} with the status carried by
// the error.
func DefaultErrorHandler(c router.Context, err error) error {
	if errors.Is(err, ErrJWTMissingOrMalformed) {
		return c.JSON(router.StatusUnauthorized, map[string]string{
			"detail": "Not authenticated",
		})
	}
	return c.JSON(dirauth.StatusCode(err), map[string]string{
		"detail": dirauth.PublicMessage(err),
	})
}

func GetDefaultConfig(config ...Config) (cfg Config) {
	if len(config) > 0 {
		cfg = config[0]
	}

	if cfg.ErrorHandler == nil {
		cfg.ErrorHandler = DefaultErrorHandler
	}

	if cfg.Gate == nil {
		panic("AUTH: JWT middleware configuration: Gate is required.")
	}

	if cfg.ContextKey == "" {
		cfg.ContextKey = dirauth.PrincipalLocalsKey
	}

	if cfg.TokenLookup == "" {
		cfg.TokenLookup = defaultTokenLookup
	}

	if cfg.AuthScheme == "" {
		cfg.AuthScheme = "Bearer"
	}

	return cfg
}

func (cfg *Config) getExtractors() []JWTExtractor {
	return GetExtractors(cfg.TokenLookup, cfg.AuthScheme)
}

func (cfg *Config) runValidationListeners(ctx router.Context, principal *dirauth.Principal) error {
	for _, listener := range cfg.ValidationListeners {
		if listener == nil {
			continue
		}
		if err := listener(ctx, principal); err != nil {
			return err
		}
	}
	return nil
}

func GetExtractors(tokenLookup string, authSchemes ...string) []JWTExtractor {
	extractors := make([]JWTExtractor, 0)

	authScheme := "Bearer"
	if len(authSchemes) > 0 {
		authScheme = strings.TrimSpace(authSchemes[0])
	}

	// header:Authorization,cookie:jwt,query:auth_token
	for _, rootPart := range strings.Split(tokenLookup, ",") {
		parts := strings.SplitN(strings.TrimSpace(rootPart), ":", 2)
		if len(parts) != 2 {
			continue
		}
		source, name := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])

		switch source {
		case "header":
			extractors = append(extractors, jwtFromHeader(name, authScheme))
		case "query":
			extractors = append(extractors, jwtFromQuery(name))
		case "cookie":
			extractors = append(extractors, jwtFromCookie(name))
		}
	}

	return extractors
}

type JWTExtractor func(c router.Context) (string, error)

// jwtFromHeader returns a function that extracts token from the request header.
func jwtFromHeader(header string, authScheme string) func(c router.Context) (string, error) {
	return func(c router.Context) (string, error) {
		a := c.GetString(header, "")
		l := len(authScheme)
		if l == 0 {
			return "", ErrJWTMissingOrMalformed
		}
		if len(a) > l+1 && strings.EqualFold(a[:l], authScheme) && a[l] == ' ' {
			return strings.TrimSpace(a[l:]), nil
		}
		return "", ErrJWTMissingOrMalformed
	}
}

// jwtFromQuery returns a function that extracts token from the query string.
func jwtFromQuery(param string) func(c router.Context) (string, error) {
	return func(c router.Context) (string, error) {
		token := c.Query(param, "")
		if token == "" {
			return "", ErrJWTMissingOrMalformed
		}
		return token, nil
	}
}

// jwtFromCookie returns a function that extracts token from the named cookie.
func jwtFromCookie(name string) func(c router.Context) (string, error) {
	return func(c router.Context) (string, error) {
		token := c.Cookies(name)
		if token == "" {
			return "", ErrJWTMissingOrMalformed
		}
		return token, nil
	}
}
