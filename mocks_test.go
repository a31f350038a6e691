package dirauth_test

import (
	"context"
	"strings"
	"sync"
	"time"

	dirauth "github.com/goliatone/go-dirauth"
)

// memDirectory is an in-memory Directory. Passwords are stored in clear.
type memDirectory struct {
	mu        sync.Mutex
	entries   map[string]*dirauth.DirectoryEntry
	passwords map[string]string
	groups    map[string][]string // group -> members
	nextUID   int
	down      bool
	// groupErrs makes GroupsOf fail for the listed usernames.
	groupErrs map[string]error
}

func newMemDirectory() *memDirectory {
	return &memDirectory{
		entries:   map[string]*dirauth.DirectoryEntry{},
		passwords: map[string]string{},
		groups:    map[string][]string{},
		nextUID:   1001,
		groupErrs: map[string]error{},
	}
}

func (d *memDirectory) Authenticate(ctx context.Context, username, password string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.down || password == "" {
		return false
	}
	pwd, ok := d.passwords[username]
	return ok && pwd == password
}

func (d *memDirectory) GroupsOf(ctx context.Context, username string) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.down {
		return nil, dirauth.ErrDirectoryUnavailable
	}
	if err := d.groupErrs[username]; err != nil {
		return nil, err
	}
	out := []string{}
	for group, members := range d.groups {
		for _, m := range members {
			if m == username {
				out = append(out, group)
			}
		}
	}
	return out, nil
}

func (d *memDirectory) Exists(ctx context.Context, username string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.down {
		return false, dirauth.ErrDirectoryUnavailable
	}
	_, ok := d.entries[username]
	return ok, nil
}

func (d *memDirectory) Lookup(ctx context.Context, username string) (*dirauth.DirectoryEntry, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.down {
		return nil, dirauth.ErrDirectoryUnavailable
	}
	entry, ok := d.entries[username]
	if !ok {
		return nil, nil
	}
	cp := *entry
	return &cp, nil
}

func (d *memDirectory) Provision(ctx context.Context, reg dirauth.Registration) (*dirauth.DirectoryEntry, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.down {
		return nil, dirauth.ErrDirectoryUnavailable
	}
	if _, ok := d.entries[reg.Username]; ok {
		return nil, dirauth.ErrDuplicateIdentity
	}
	entry := &dirauth.DirectoryEntry{
		DN:            "uid=" + reg.Username + ",ou=people,dc=example,dc=com",
		Username:      reg.Username,
		UIDNumber:     d.nextUID,
		GIDNumber:     d.nextUID,
		FirstName:     reg.FirstName,
		LastName:      reg.LastName,
		DisplayName:   reg.DisplayName(),
		Email:         reg.Email,
		HomeDirectory: "/home/" + reg.Username,
		LoginShell:    "/bin/bash",
	}
	d.nextUID++
	d.entries[reg.Username] = entry
	d.passwords[reg.Username] = reg.Password
	d.groups[reg.Group] = append(d.groups[reg.Group], reg.Username)
	cp := *entry
	return &cp, nil
}

func (d *memDirectory) Ping(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.down {
		return dirauth.ErrDirectoryUnavailable
	}
	return nil
}

func (d *memDirectory) setDown(down bool) {
	d.mu.Lock()
	d.down = down
	d.mu.Unlock()
}

func (d *memDirectory) remove(username string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.entries, username)
	delete(d.passwords, username)
	for group, members := range d.groups {
		kept := members[:0]
		for _, m := range members {
			if m != username {
				kept = append(kept, m)
			}
		}
		d.groups[group] = kept
	}
}

func (d *memDirectory) moveGroup(username, from, to string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	kept := []string{}
	for _, m := range d.groups[from] {
		if m != username {
			kept = append(kept, m)
		}
	}
	d.groups[from] = kept
	d.groups[to] = append(d.groups[to], username)
}

// memProfiles is an in-memory ProfileStore. When broken it behaves like a
// store whose backend is unreachable.
type memProfiles struct {
	mu         sync.Mutex
	profiles   map[string]dirauth.Profile
	order      []string
	activities []dirauth.ActivityRecord
	broken     bool
	now        func() time.Time
}

func newMemProfiles(now func() time.Time) *memProfiles {
	return &memProfiles{profiles: map[string]dirauth.Profile{}, now: now}
}

func (p *memProfiles) CreateProfile(ctx context.Context, profile dirauth.Profile) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.broken {
		return false
	}
	if _, ok := p.profiles[profile.Username]; ok {
		return false
	}
	p.profiles[profile.Username] = profile
	p.order = append(p.order, profile.Username)
	return true
}

func (p *memProfiles) GetProfile(ctx context.Context, username string) (*dirauth.Profile, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.broken {
		return nil, false
	}
	profile, ok := p.profiles[username]
	if !ok {
		return nil, false
	}
	return &profile, true
}

func (p *memProfiles) RecordLogin(ctx context.Context, username string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.broken {
		return false
	}
	profile, ok := p.profiles[username]
	if !ok {
		return false
	}
	at := p.now().UTC()
	profile.LastLogin = &at
	profile.LoginCount++
	p.profiles[username] = profile
	return true
}

func (p *memProfiles) ListProfiles(ctx context.Context) []dirauth.Profile {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := []dirauth.Profile{}
	if p.broken {
		return out
	}
	for _, username := range p.order {
		out = append(out, p.profiles[username])
	}
	return out
}

func (p *memProfiles) ListActivities(ctx context.Context, username string, limit int) []dirauth.ActivityRecord {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := []dirauth.ActivityRecord{}
	if p.broken {
		return out
	}
	for i := len(p.activities) - 1; i >= 0 && len(out) < limit; i-- {
		if p.activities[i].Username == username {
			out = append(out, p.activities[i])
		}
	}
	return out
}

func (p *memProfiles) AppendActivity(ctx context.Context, username, description string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.broken {
		return false
	}
	p.activities = append(p.activities, dirauth.ActivityRecord{
		Username:    username,
		Description: description,
		Timestamp:   p.now().UTC(),
	})
	return true
}

func (p *memProfiles) Counts(ctx context.Context) dirauth.ProfileCounts {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.broken {
		return dirauth.ProfileCounts{}
	}
	y, m, d := p.now().UTC().Date()
	midnight := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	counts := dirauth.ProfileCounts{Total: len(p.profiles)}
	for _, profile := range p.profiles {
		if profile.LastLogin != nil && !profile.LastLogin.Before(midnight) {
			counts.ActiveSessions++
		}
	}
	return counts
}

func (p *memProfiles) Ping(ctx context.Context) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.broken
}

func (p *memProfiles) setBroken(broken bool) {
	p.mu.Lock()
	p.broken = broken
	p.mu.Unlock()
}

func (p *memProfiles) descriptions(username string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := []string{}
	for _, a := range p.activities {
		if a.Username == username {
			out = append(out, a.Description)
		}
	}
	return out
}

type recordingMetrics struct {
	mu     sync.Mutex
	events []string
}

func (m *recordingMetrics) add(parts ...string) {
	m.mu.Lock()
	m.events = append(m.events, strings.Join(parts, ":"))
	m.mu.Unlock()
}

func (m *recordingMetrics) RecordLogin(outcome string)        { m.add("login", outcome) }
func (m *recordingMetrics) RecordRegistration(outcome string) { m.add("register", outcome) }
func (m *recordingMetrics) RecordGateDecision(group, outcome string) {
	m.add("gate", group, outcome)
}

// fixedClock returns a settable clock.
type fixedClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFixedClock(t time.Time) *fixedClock { return &fixedClock{t: t} }

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

func testConfig() *dirauth.Config {
	return &dirauth.Config{
		Token: dirauth.TokenConfig{
			SecretKey:     "test-secret",
			Algorithm:     "HS256",
			ExpireMinutes: 30,
			KeyID:         "primary",
		},
		Profiles: dirauth.ProfileConfig{
			Backend:       dirauth.BackendMongo,
			ActivityLimit: 10,
		},
		Gates: dirauth.GateConfig{
			AdminGroup:    "Group_A",
			MemberGroup:   "Group_B",
			AllowedGroups: []string{"Group_A", "Group_B"},
		},
	}
}
