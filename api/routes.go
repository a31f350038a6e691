package api

import (
	"github.com/goliatone/go-router"
)

// RouteRegistrar is the part of a router the API mounts on.
type RouteRegistrar interface {
	Get(path string, handler router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo
	Post(path string, handler router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo
}

// Guards are the middlewares protecting session, member and admin routes.
// Member and Admin each wrap a gate bound to one required group.
type Guards struct {
	Session router.MiddlewareFunc
	Member  router.MiddlewareFunc
	Admin   router.MiddlewareFunc
}

// RegisterRoutes mounts every handler. All guards must be set.
func RegisterRoutes(app RouteRegistrar, c *Controller, guards Guards) {
	if guards.Session == nil || guards.Member == nil || guards.Admin == nil {
		panic("api routes require session, member and admin guards")
	}

	app.Get("/", c.Root).SetName("root")
	app.Get("/health", c.Health).SetName("health")

	app.Post("/auth/register", c.Register).SetName("auth.register")
	app.Post("/auth/login", c.Login).SetName("auth.login")
	app.Get("/auth/me", c.Me, guards.Session).SetName("auth.me")
	app.Post("/auth/logout", c.Logout, guards.Session).SetName("auth.logout")

	app.Get("/user/profile", c.Profile, guards.Session).SetName("user.profile")
	app.Get("/user/activities", c.Activities, guards.Session).SetName("user.activities")

	app.Get("/member/me", c.Me, guards.Member).SetName("member.me")

	app.Get("/admin/users", c.AdminUsers, guards.Admin).SetName("admin.users")
	app.Get("/admin/stats", c.AdminStats, guards.Admin).SetName("admin.stats")
}
