package directory

import (
	"context"
	"fmt"
	"strconv"

	"github.com/go-ldap/ldap/v3"
	dirauth "github.com/goliatone/go-dirauth"
)

var identityObjectClasses = []string{"inetOrgPerson", "posixAccount", "shadowAccount"}

var entryAttributes = []string{
	"uid", "uidNumber", "gidNumber", "givenName", "sn",
	"displayName", "mail", "homeDirectory", "loginShell",
}

// Adapter implements dirauth.Directory over LDAP. Connections are never
// pooled: each call dials, binds, works and unbinds.
type Adapter struct {
	cfg    *dirauth.DirectoryConfig
	dial   DialFunc
	logger dirauth.Logger
}

var _ dirauth.Directory = (*Adapter)(nil)

// Option customizes an Adapter
type Option func(*Adapter)

// WithDialer replaces the network dialer.
func WithDialer(dial DialFunc) Option {
	return func(a *Adapter) {
		if dial != nil {
			a.dial = dial
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger dirauth.Logger) Option {
	return func(a *Adapter) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// New returns an Adapter for the configured directory.
func New(cfg *dirauth.DirectoryConfig, opts ...Option) *Adapter {
	a := &Adapter{
		cfg:  cfg,
		dial: URLDialer(cfg.URL(), cfg.Timeout),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	if a.logger == nil {
		a.logger = dirauth.DefaultLogger("directory")
	}
	return a
}

// UserDN returns the distinguished name of the identity entry for username.
func (a *Adapter) UserDN(username string) string {
	return fmt.Sprintf("uid=%s,%s", ldap.EscapeDN(username), a.cfg.UsersBase())
}

// GroupDN returns the distinguished name of the group entry.
func (a *Adapter) GroupDN(group string) string {
	return fmt.Sprintf("cn=%s,%s", ldap.EscapeDN(group), a.cfg.GroupsBase())
}

// bindAsAdmin runs fn on a connection bound with the privileged account. The
// connection is released on every path.
func (a *Adapter) bindAsAdmin(ctx context.Context, op string, fn func(Conn) error) error {
	conn, err := a.dial(ctx)
	if err != nil {
		a.logger.Error("directory dial failed", "operation", op, "error", err)
		return dirauth.DirectoryUnavailable(err, op)
	}
	defer a.release(conn)

	if err := conn.Bind(a.cfg.AdminDN, a.cfg.AdminPassword); err != nil {
		a.logger.Error("directory privileged bind failed", "operation", op, "error", err)
		return dirauth.DirectoryUnavailable(err, op)
	}

	return fn(conn)
}

func (a *Adapter) release(conn Conn) {
	if err := conn.Unbind(); err != nil {
		a.logger.Debug("directory unbind failed", "error", err)
	}
	conn.Close()
}

// Authenticate binds as the candidate on a fresh connection that is thrown
// away afterwards.
func (a *Adapter) Authenticate(ctx context.Context, username, password string) bool {
	// an empty password would be an unauthenticated bind and succeed
	if username == "" || password == "" {
		return false
	}

	conn, err := a.dial(ctx)
	if err != nil {
		a.logger.Warn("directory dial failed during authentication", "username", username, "error", err)
		return false
	}
	defer a.release(conn)

	if err := conn.Bind(a.UserDN(username), password); err != nil {
		if !ldap.IsErrorWithCode(err, ldap.LDAPResultInvalidCredentials) {
			a.logger.Warn("directory bind failed during authentication", "username", username, "error", err)
		}
		return false
	}

	return true
}

// GroupsOf lists the groups naming the user as member.
func (a *Adapter) GroupsOf(ctx context.Context, username string) ([]string, error) {
	groups := []string{}

	err := a.bindAsAdmin(ctx, "groups_of", func(conn Conn) error {
		found, err := a.searchGroups(conn, a.UserDN(username))
		if err != nil {
			return err
		}
		groups = found
		return nil
	})
	if err != nil {
		return nil, err
	}

	return groups, nil
}

func (a *Adapter) searchGroups(conn Conn, userDN string) ([]string, error) {
	req := ldap.NewSearchRequest(
		a.cfg.GroupsBase(),
		ldap.ScopeWholeSubtree, ldap.NeverDerefAliases, 0, 0, false,
		fmt.Sprintf("(&(objectClass=groupOfNames)(member=%s))", ldap.EscapeFilter(userDN)),
		[]string{"cn"},
		nil,
	)

	res, err := conn.Search(req)
	if err != nil {
		if ldap.IsErrorWithCode(err, ldap.LDAPResultNoSuchObject) {
			return []string{}, nil
		}
		return nil, dirauth.DirectoryUnavailable(err, "groups_of")
	}

	groups := make([]string, 0, len(res.Entries))
	for _, entry := range res.Entries {
		if cn := entry.GetAttributeValue("cn"); cn != "" {
			groups = append(groups, cn)
		}
	}
	return groups, nil
}

// Exists looks the entry up by DN. Only a failure to reach or bind to the
// directory is an error.
func (a *Adapter) Exists(ctx context.Context, username string) (bool, error) {
	var exists bool

	err := a.bindAsAdmin(ctx, "exists", func(conn Conn) error {
		entry, err := a.lookupEntry(conn, username, []string{"uid"})
		if err != nil {
			if ldap.IsErrorWithCode(err, ldap.ErrorNetwork) {
				return dirauth.DirectoryUnavailable(err, "exists")
			}
			a.logger.Warn("directory existence probe failed", "username", username, "error", err)
			return nil
		}
		exists = entry != nil
		return nil
	})
	if err != nil {
		return false, err
	}

	return exists, nil
}

// Lookup returns the entry attributes, nil when the entry is absent.
func (a *Adapter) Lookup(ctx context.Context, username string) (*dirauth.DirectoryEntry, error) {
	var out *dirauth.DirectoryEntry

	err := a.bindAsAdmin(ctx, "lookup", func(conn Conn) error {
		entry, err := a.lookupEntry(conn, username, entryAttributes)
		if err != nil {
			return dirauth.DirectoryUnavailable(err, "lookup")
		}
		if entry != nil {
			out = toDirectoryEntry(entry)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return out, nil
}

// lookupEntry returns nil, nil on "no such object".
func (a *Adapter) lookupEntry(conn Conn, username string, attrs []string) (*ldap.Entry, error) {
	req := ldap.NewSearchRequest(
		a.UserDN(username),
		ldap.ScopeBaseObject, ldap.NeverDerefAliases, 1, 0, false,
		"(objectClass=*)",
		attrs,
		nil,
	)

	res, err := conn.Search(req)
	if err != nil {
		if ldap.IsErrorWithCode(err, ldap.LDAPResultNoSuchObject) {
			return nil, nil
		}
		return nil, err
	}
	if len(res.Entries) == 0 {
		return nil, nil
	}
	return res.Entries[0], nil
}

// Ping opens and releases a privileged connection.
func (a *Adapter) Ping(ctx context.Context) error {
	return a.bindAsAdmin(ctx, "ping", func(Conn) error { return nil })
}

func toDirectoryEntry(entry *ldap.Entry) *dirauth.DirectoryEntry {
	uidNumber, _ := strconv.Atoi(entry.GetAttributeValue("uidNumber"))
	gidNumber, _ := strconv.Atoi(entry.GetAttributeValue("gidNumber"))

	return &dirauth.DirectoryEntry{
		DN:            entry.DN,
		Username:      entry.GetAttributeValue("uid"),
		UIDNumber:     uidNumber,
		GIDNumber:     gidNumber,
		FirstName:     entry.GetAttributeValue("givenName"),
		LastName:      entry.GetAttributeValue("sn"),
		DisplayName:   entry.GetAttributeValue("displayName"),
		Email:         entry.GetAttributeValue("mail"),
		HomeDirectory: entry.GetAttributeValue("homeDirectory"),
		LoginShell:    entry.GetAttributeValue("loginShell"),
	}
}
