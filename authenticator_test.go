package dirauth_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dirauth "github.com/goliatone/go-dirauth"
)

type autherFixture struct {
	clock    *fixedClock
	dir      *memDirectory
	profiles *memProfiles
	tokens   *dirauth.TokenService
	metrics  *recordingMetrics
	auther   *dirauth.Auther
}

func newAutherFixture(t *testing.T) *autherFixture {
	t.Helper()
	clock := newFixedClock(time.Date(2025, 6, 10, 9, 30, 0, 0, time.UTC))
	cfg := testConfig()
	f := &autherFixture{
		clock:    clock,
		dir:      newMemDirectory(),
		profiles: newMemProfiles(clock.Now),
		metrics:  &recordingMetrics{},
	}
	f.tokens = newTokenService(t, cfg.Token, clock)
	f.auther = dirauth.NewAuther(cfg, f.dir, f.profiles, f.tokens).
		WithLogger(nopLogger{}).
		WithMetrics(f.metrics).
		WithClock(clock.Now)
	return f
}

func aliceRegistration() dirauth.Registration {
	return dirauth.Registration{
		Username:  "alice",
		Password:  "secret123",
		Email:     "alice@example.com",
		FirstName: "Alice",
		LastName:  "Doe",
		Group:     "Group_A",
	}
}

func TestAuther_RegisterThenLogin(t *testing.T) {
	f := newAutherFixture(t)
	ctx := context.Background()

	res, err := f.auther.Register(ctx, aliceRegistration())
	require.NoError(t, err)
	assert.Equal(t, "User registered successfully", res.Message)
	assert.Equal(t, "alice", res.Username)
	assert.Equal(t, 1001, res.UIDNumber)

	profile, ok := f.profiles.GetProfile(ctx, "alice")
	require.True(t, ok)
	assert.True(t, profile.IsActive)
	assert.Equal(t, 0, profile.LoginCount)
	assert.Equal(t, f.clock.Now(), profile.CreatedAt)

	login, err := f.auther.Login(ctx, "alice", "secret123")
	require.NoError(t, err)
	assert.Equal(t, dirauth.TokenTypeBearer, login.TokenType)
	assert.Equal(t, 1800, login.ExpiresIn)
	assert.Equal(t, []string{"Group_A"}, login.User.Groups)
	assert.Equal(t, "alice@example.com", login.User.Email)
	assert.True(t, f.clock.Now().Add(30*time.Minute).Equal(login.ExpiresAt))

	claims, err := f.tokens.Verify(login.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Username())
	assert.Equal(t, []string{"Group_A"}, claims.Groups)

	profile, _ = f.profiles.GetProfile(ctx, "alice")
	assert.Equal(t, 1, profile.LoginCount)
	require.NotNil(t, profile.LastLogin)

	assert.Equal(t,
		[]string{dirauth.ActivityAccountCreated, dirauth.ActivityLoggedIn},
		f.profiles.descriptions("alice"),
	)
	assert.Equal(t, []string{"register:success", "login:success"}, f.metrics.events)
}

func TestAuther_RegisterDuplicate(t *testing.T) {
	f := newAutherFixture(t)
	ctx := context.Background()

	_, err := f.auther.Register(ctx, aliceRegistration())
	require.NoError(t, err)

	_, err = f.auther.Register(ctx, aliceRegistration())
	require.Error(t, err)
	assert.True(t, dirauth.IsDuplicateIdentity(err))
	assert.Equal(t, 409, dirauth.StatusCode(err))
	assert.Equal(t, []string{dirauth.ActivityAccountCreated}, f.profiles.descriptions("alice"))
}

func TestAuther_RegisterValidation(t *testing.T) {
	f := newAutherFixture(t)

	reg := aliceRegistration()
	reg.Group = "Group_C"
	_, err := f.auther.Register(context.Background(), reg)
	require.Error(t, err)
	assert.True(t, dirauth.IsValidationFailed(err))

	ok, _ := f.dir.Exists(context.Background(), "alice")
	assert.False(t, ok)
	assert.Equal(t, []string{"register:rejected"}, f.metrics.events)
}

func TestAuther_RegisterSurvivesProfileStoreOutage(t *testing.T) {
	f := newAutherFixture(t)
	f.profiles.setBroken(true)

	res, err := f.auther.Register(context.Background(), aliceRegistration())
	require.NoError(t, err)
	assert.Equal(t, "alice", res.Username)

	ok, err := f.dir.Exists(context.Background(), "alice")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAuther_RegisterDirectoryDown(t *testing.T) {
	f := newAutherFixture(t)
	f.dir.setDown(true)

	_, err := f.auther.Register(context.Background(), aliceRegistration())
	require.Error(t, err)
	assert.True(t, dirauth.IsDirectoryUnavailable(err))
	assert.Equal(t, []string{"register:error"}, f.metrics.events)

	_, ok := f.profiles.GetProfile(context.Background(), "alice")
	assert.False(t, ok)
}

func TestAuther_LoginSucceedsWhenProfileStoreIsDown(t *testing.T) {
	f := newAutherFixture(t)
	ctx := context.Background()

	_, err := f.auther.Register(ctx, aliceRegistration())
	require.NoError(t, err)
	f.profiles.setBroken(true)

	login, err := f.auther.Login(ctx, "alice", "secret123")
	require.NoError(t, err)
	assert.NotEmpty(t, login.AccessToken)
	// descriptive fields come from the directory entry
	assert.Equal(t, "alice", login.User.Username)
	assert.Equal(t, "alice@example.com", login.User.Email)
	assert.Equal(t, "Alice", login.User.FirstName)
	assert.Equal(t, []string{"Group_A"}, login.User.Groups)
}

func TestAuther_LoginInvalidCredentials(t *testing.T) {
	f := newAutherFixture(t)
	ctx := context.Background()

	_, err := f.auther.Register(ctx, aliceRegistration())
	require.NoError(t, err)

	cases := []struct{ username, password string }{
		{"alice", "wrong"},
		{"alice", ""},
		{"", "secret123"},
		{"nobody", "secret123"},
	}
	for _, tc := range cases {
		_, err := f.auther.Login(ctx, tc.username, tc.password)
		require.Error(t, err)
		assert.True(t, dirauth.IsInvalidCredentials(err), tc.username)
		assert.Equal(t, 401, dirauth.StatusCode(err))
	}

	assert.Equal(t, []string{dirauth.ActivityAccountCreated}, f.profiles.descriptions("alice"))
}

func TestAuther_LoginGroupLookupFailure(t *testing.T) {
	f := newAutherFixture(t)
	ctx := context.Background()

	_, err := f.auther.Register(ctx, aliceRegistration())
	require.NoError(t, err)
	f.dir.groupErrs["alice"] = dirauth.ErrDirectoryUnavailable

	_, err = f.auther.Login(ctx, "alice", "secret123")
	require.Error(t, err)
	assert.True(t, dirauth.IsDirectoryUnavailable(err))
}

func TestAuther_WhoAmIUsesLiveGroups(t *testing.T) {
	f := newAutherFixture(t)
	ctx := context.Background()

	_, err := f.auther.Register(ctx, aliceRegistration())
	require.NoError(t, err)
	f.dir.moveGroup("alice", "Group_A", "Group_B")

	view, err := f.auther.WhoAmI(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"Group_B"}, view.Groups)
	assert.Equal(t, "Alice", view.FirstName)
	require.NotNil(t, view.CreatedAt)
}

func TestAuther_WhoAmIWithoutProfile(t *testing.T) {
	f := newAutherFixture(t)
	ctx := context.Background()

	f.profiles.setBroken(true)
	_, err := f.auther.Register(ctx, aliceRegistration())
	require.NoError(t, err)
	f.profiles.setBroken(false)

	_, err = f.auther.WhoAmI(ctx, "alice")
	require.Error(t, err)
	assert.True(t, dirauth.IsProfileNotFound(err))

	_, err = f.auther.Profile(ctx, "alice")
	assert.True(t, dirauth.IsProfileNotFound(err))
}

func TestAuther_BlankProfileFieldsFallBackToDirectory(t *testing.T) {
	f := newAutherFixture(t)
	ctx := context.Background()

	f.profiles.setBroken(true)
	_, err := f.auther.Register(ctx, aliceRegistration())
	require.NoError(t, err)
	f.profiles.setBroken(false)

	// the store captured the email but not the names
	require.True(t, f.profiles.CreateProfile(ctx, dirauth.Profile{
		Username:  "alice",
		Email:     "alice@corp.example",
		CreatedAt: f.clock.Now(),
		IsActive:  true,
	}))

	login, err := f.auther.Login(ctx, "alice", "secret123")
	require.NoError(t, err)
	assert.Equal(t, "alice@corp.example", login.User.Email)
	assert.Equal(t, "Alice", login.User.FirstName)
	assert.Equal(t, "Doe", login.User.LastName)

	view, err := f.auther.WhoAmI(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice@corp.example", view.Email)
	assert.Equal(t, "Alice", view.FirstName)
	assert.Equal(t, "Doe", view.LastName)

	profile, err := f.auther.Profile(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "Alice", profile.FirstName)
	assert.Equal(t, 1, profile.LoginCount)

	users, err := f.auther.ListAllIdentities(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "Doe", users[0].LastName)
}

func TestAuther_BlankProfileFieldsSurviveLookupFailure(t *testing.T) {
	f := newAutherFixture(t)
	ctx := context.Background()

	require.True(t, f.profiles.CreateProfile(ctx, dirauth.Profile{Username: "ghost", IsActive: true}))

	// no directory entry to fall back on: the view keeps the blanks
	f.dir.groups["Group_B"] = append(f.dir.groups["Group_B"], "ghost")

	view, err := f.auther.WhoAmI(ctx, "ghost")
	require.NoError(t, err)
	assert.Equal(t, "ghost", view.Username)
	assert.Empty(t, view.Email)
	assert.Empty(t, view.FirstName)
}

func TestAuther_ProfileView(t *testing.T) {
	f := newAutherFixture(t)
	ctx := context.Background()

	_, err := f.auther.Register(ctx, aliceRegistration())
	require.NoError(t, err)
	_, err = f.auther.Login(ctx, "alice", "secret123")
	require.NoError(t, err)

	view, err := f.auther.Profile(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 1, view.LoginCount)
	assert.Equal(t, []string{"Group_A"}, view.Groups)
	require.NotNil(t, view.LastLogin)
}

func TestAuther_ListAllIdentitiesSkipsFailures(t *testing.T) {
	f := newAutherFixture(t)
	ctx := context.Background()

	for _, reg := range []dirauth.Registration{
		aliceRegistration(),
		{Username: "bob", Password: "secret123", Email: "bob@example.com", FirstName: "Bob", LastName: "Roe", Group: "Group_B"},
		{Username: "carol", Password: "secret123", Email: "carol@example.com", FirstName: "Carol", LastName: "Poe", Group: "Group_B"},
	} {
		_, err := f.auther.Register(ctx, reg)
		require.NoError(t, err)
	}
	f.dir.groupErrs["bob"] = errors.New("search failed")

	views, err := f.auther.ListAllIdentities(ctx)
	require.NoError(t, err)
	require.Len(t, views, 2)
	assert.Equal(t, "alice", views[0].Username)
	assert.Equal(t, "carol", views[1].Username)
	assert.Equal(t, []string{"Group_B"}, views[1].Groups)
}

func TestAuther_ListAllIdentitiesCancelled(t *testing.T) {
	f := newAutherFixture(t)
	_, err := f.auther.Register(context.Background(), aliceRegistration())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = f.auther.ListAllIdentities(ctx)
	assert.Error(t, err)
}

func TestAuther_ComputeStats(t *testing.T) {
	f := newAutherFixture(t)
	ctx := context.Background()

	for _, reg := range []dirauth.Registration{
		aliceRegistration(),
		{Username: "bob", Password: "secret123", Email: "bob@example.com", FirstName: "Bob", LastName: "Roe", Group: "Group_B"},
		{Username: "carol", Password: "secret123", Email: "carol@example.com", FirstName: "Carol", LastName: "Poe", Group: "Group_B"},
	} {
		_, err := f.auther.Register(ctx, reg)
		require.NoError(t, err)
	}

	_, err := f.auther.Login(ctx, "bob", "secret123")
	require.NoError(t, err)
	f.dir.groupErrs["carol"] = errors.New("search failed")

	stats, err := f.auther.ComputeStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalUsers)
	assert.Equal(t, 1, stats.ActiveSessions)
	assert.Equal(t, map[string]int{"Group_A": 1, "Group_B": 1}, stats.GroupCounts)
}

func TestAuther_ComputeStatsEmptyGroups(t *testing.T) {
	f := newAutherFixture(t)

	stats, err := f.auther.ComputeStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, stats.TotalUsers)
	assert.Equal(t, map[string]int{"Group_A": 0, "Group_B": 0}, stats.GroupCounts)
}

func TestAuther_ActivitiesAndLogout(t *testing.T) {
	f := newAutherFixture(t)
	ctx := context.Background()

	_, err := f.auther.Register(ctx, aliceRegistration())
	require.NoError(t, err)
	_, err = f.auther.Login(ctx, "alice", "secret123")
	require.NoError(t, err)
	f.clock.Advance(time.Minute)
	f.auther.RecordLogout(ctx, "alice")

	records := f.auther.ListActivities(ctx, "alice")
	require.Len(t, records, 3)
	assert.Equal(t, dirauth.ActivityLoggedOut, records[0].Description)
	assert.Equal(t, dirauth.ActivityAccountCreated, records[2].Description)
}

func TestAuther_Health(t *testing.T) {
	f := newAutherFixture(t)
	ctx := context.Background()

	h := f.auther.Health(ctx)
	assert.Equal(t, dirauth.HealthHealthy, h.Status)
	assert.Equal(t, map[string]string{"ldap": "connected", "profiles": "connected"}, h.Services)
	assert.Equal(t, f.clock.Now(), h.Timestamp)

	f.dir.setDown(true)
	h = f.auther.Health(ctx)
	assert.Equal(t, dirauth.HealthUnhealthy, h.Status)
	assert.Equal(t, "disconnected", h.Services["ldap"])
	assert.Equal(t, "connected", h.Services["profiles"])

	f.dir.setDown(false)
	f.profiles.setBroken(true)
	h = f.auther.Health(ctx)
	assert.Equal(t, dirauth.HealthUnhealthy, h.Status)
	assert.Equal(t, "disconnected", h.Services["profiles"])
}
