// Package api exposes the identity core over HTTP using go-router.
package api

import (
	"context"
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	dirauth "github.com/goliatone/go-dirauth"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
)

// Service is the subset of the orchestrator the controller drives.
type Service interface {
	Login(ctx context.Context, username, password string) (*dirauth.LoginResult, error)
	WhoAmI(ctx context.Context, username string) (*dirauth.IdentityView, error)
	Profile(ctx context.Context, username string) (*dirauth.ProfileView, error)
	ListActivities(ctx context.Context, username string) []dirauth.ActivityRecord
	RecordLogout(ctx context.Context, username string)
	ListAllIdentities(ctx context.Context) ([]dirauth.IdentityView, error)
	ComputeStats(ctx context.Context) (*dirauth.Stats, error)
	Health(ctx context.Context) dirauth.HealthStatus
}

// Registrar runs registration commands.
type Registrar interface {
	Execute(ctx context.Context, event *dirauth.RegisterIdentityMessage) error
}

// Throttle decides whether another login attempt for a key may proceed.
type Throttle interface {
	Allow(key string) bool
}

// Controller holds the HTTP handlers.
type Controller struct {
	Debug        bool
	Logger       dirauth.Logger
	Service      Service
	Registrar    Registrar
	Throttle     Throttle
	ErrorHandler router.ErrorHandler
	ServiceName  string
	Version      string
	PrincipalKey string
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller) *Controller

// WithDebug dumps request payloads to the log.
func WithDebug(debug bool) ControllerOption {
	return func(c *Controller) *Controller {
		c.Debug = debug
		return c
	}
}

// WithControllerLogger sets the logger.
func WithControllerLogger(logger dirauth.Logger) ControllerOption {
	return func(c *Controller) *Controller {
		if logger != nil {
			c.Logger = logger
		}
		return c
	}
}

// WithThrottle guards the login handler.
func WithThrottle(t Throttle) ControllerOption {
	return func(c *Controller) *Controller {
		c.Throttle = t
		return c
	}
}

// WithErrorHandler replaces the JSON error responder.
func WithErrorHandler(h router.ErrorHandler) ControllerOption {
	return func(c *Controller) *Controller {
		if h != nil {
			c.ErrorHandler = h
		}
		return c
	}
}

// WithBanner sets the name and version reported by the root handler.
func WithBanner(name, version string) ControllerOption {
	return func(c *Controller) *Controller {
		c.ServiceName = name
		c.Version = version
		return c
	}
}

// WithPrincipalKey sets the locals key the gate middleware writes to.
func WithPrincipalKey(key string) ControllerOption {
	return func(c *Controller) *Controller {
		c.PrincipalKey = key
		return c
	}
}

// NewController panics when the service or registrar is missing.
func NewController(service Service, registrar Registrar, opts ...ControllerOption) *Controller {
	c := &Controller{
		Service:      service,
		Registrar:    registrar,
		ErrorHandler: ErrorHandler,
		ServiceName:  "OpenLDAP Authentication API",
		Version:      "1.0.0",
		PrincipalKey: dirauth.PrincipalLocalsKey,
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Service == nil {
		panic("Missing Service in api controller...")
	}

	if c.Registrar == nil {
		panic("Missing Registrar in api controller...")
	}

	if c.Logger == nil {
		c.Logger = dirauth.DefaultLogger("api")
	}

	return c
}

// ErrorHandler renders err as {"detail": message} with the status it carries.
func ErrorHandler(ctx router.Context, err error) error {
	body := map[string]any{"detail": dirauth.PublicMessage(err)}
	var richErr *goerrors.Error
	if dirauth.IsValidationFailed(err) && goerrors.As(err, &richErr) {
		var fields validation.Errors
		if goerrors.As(richErr.Source, &fields) {
			body["errors"] = fields
		}
	}
	return ctx.JSON(dirauth.StatusCode(err), body)
}

func (c *Controller) fail(ctx router.Context, err error) error {
	if dirauth.StatusCode(err) >= router.StatusInternalServerError {
		c.Logger.Error("request failed", "error", err)
	}
	return c.ErrorHandler(ctx, err)
}

func (c *Controller) dump(label string, payload any) {
	if !c.Debug {
		return
	}
	c.Logger.Debug(label, "payload", print.MaybePrettyJSON(payload))
}

func (c *Controller) principal(ctx router.Context) (*dirauth.Principal, error) {
	p, ok := dirauth.GetRouterPrincipal(ctx, c.PrincipalKey)
	if !ok {
		return nil, dirauth.ErrInvalidToken
	}
	return p, nil
}

// Root reports the service banner.
func (c *Controller) Root(ctx router.Context) error {
	return ctx.JSON(router.StatusOK, map[string]any{
		"message": fmt.Sprintf("%s is running", c.ServiceName),
		"version": c.Version,
		"status":  dirauth.HealthHealthy,
	})
}

// Health reports directory and profile store connectivity. It always answers
// 200, the body carries the verdict.
func (c *Controller) Health(ctx router.Context) error {
	return ctx.JSON(router.StatusOK, c.Service.Health(ctx.Context()))
}

// Register provisions a new identity.
func (c *Controller) Register(ctx router.Context) error {
	payload := new(dirauth.Registration)
	if err := ctx.Bind(payload); err != nil {
		return c.fail(ctx, dirauth.ValidationFailed(err))
	}

	c.dump("register payload", dirauth.Registration{
		Username:  payload.Username,
		Email:     payload.Email,
		FirstName: payload.FirstName,
		LastName:  payload.LastName,
		Group:     payload.Group,
	})

	msg := &dirauth.RegisterIdentityMessage{Registration: *payload}
	if err := c.Registrar.Execute(ctx.Context(), msg); err != nil {
		return c.fail(ctx, err)
	}

	return ctx.JSON(router.StatusOK, msg.Result)
}

// Login exchanges credentials for a bearer token.
func (c *Controller) Login(ctx router.Context) error {
	payload := new(dirauth.LoginRequest)
	if err := ctx.Bind(payload); err != nil {
		return c.fail(ctx, dirauth.ValidationFailed(err))
	}

	if err := payload.Validate(); err != nil {
		return c.fail(ctx, dirauth.ValidationFailed(err))
	}

	if c.Throttle != nil && !c.Throttle.Allow(payload.Username) {
		c.Logger.Warn("login throttled", "username", payload.Username)
		return c.fail(ctx, dirauth.ErrTooManyAttempts)
	}

	result, err := c.Service.Login(ctx.Context(), payload.Username, payload.Password)
	if err != nil {
		return c.fail(ctx, err)
	}

	c.dump("login result", result.User)

	return ctx.JSON(router.StatusOK, result)
}

// Me returns the merged identity view of the caller.
func (c *Controller) Me(ctx router.Context) error {
	p, err := c.principal(ctx)
	if err != nil {
		return c.fail(ctx, err)
	}

	view, err := c.Service.WhoAmI(ctx.Context(), p.Username)
	if err != nil {
		return c.fail(ctx, err)
	}

	return ctx.JSON(router.StatusOK, view)
}

// Logout records the logout. Tokens stay valid until they expire.
func (c *Controller) Logout(ctx router.Context) error {
	p, err := c.principal(ctx)
	if err != nil {
		return c.fail(ctx, err)
	}

	c.Service.RecordLogout(ctx.Context(), p.Username)

	return ctx.JSON(router.StatusOK, map[string]any{
		"message": "Successfully logged out",
	})
}

// Profile returns the extended self-service view.
func (c *Controller) Profile(ctx router.Context) error {
	p, err := c.principal(ctx)
	if err != nil {
		return c.fail(ctx, err)
	}

	view, err := c.Service.Profile(ctx.Context(), p.Username)
	if err != nil {
		return c.fail(ctx, err)
	}

	return ctx.JSON(router.StatusOK, view)
}

// Activities lists the caller's most recent activity records.
func (c *Controller) Activities(ctx router.Context) error {
	p, err := c.principal(ctx)
	if err != nil {
		return c.fail(ctx, err)
	}

	records := c.Service.ListActivities(ctx.Context(), p.Username)
	if records == nil {
		records = []dirauth.ActivityRecord{}
	}

	return ctx.JSON(router.StatusOK, records)
}

// AdminUsers lists every identity with live groups.
func (c *Controller) AdminUsers(ctx router.Context) error {
	views, err := c.Service.ListAllIdentities(ctx.Context())
	if err != nil {
		return c.fail(ctx, err)
	}
	if views == nil {
		views = []dirauth.IdentityView{}
	}

	return ctx.JSON(router.StatusOK, views)
}

// AdminStats returns the aggregate counters.
func (c *Controller) AdminStats(ctx router.Context) error {
	start := time.Now()
	stats, err := c.Service.ComputeStats(ctx.Context())
	if err != nil {
		return c.fail(ctx, err)
	}

	c.Logger.Debug("stats computed", "duration", time.Since(start))

	return ctx.JSON(router.StatusOK, stats)
}
