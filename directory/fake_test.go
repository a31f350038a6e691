package directory

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/go-ldap/ldap/v3"
)

// fakeServer is an in-memory directory answering the handful of request
// shapes the adapter issues.
type fakeServer struct {
	mu        sync.Mutex
	adminDN   string
	adminPass string
	entries   map[string]map[string][]string
	down      bool
	dials     int
	released  int
	failAdd   error
	failMod   error
}

func newFakeServer(adminDN, adminPass string) *fakeServer {
	return &fakeServer{
		adminDN:   adminDN,
		adminPass: adminPass,
		entries:   map[string]map[string][]string{},
	}
}

func (s *fakeServer) dial(ctx context.Context) (Conn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.down {
		return nil, ldap.NewError(ldap.ErrorNetwork, errors.New("connection refused"))
	}
	s.dials++
	return &fakeConn{server: s}, nil
}

func (s *fakeServer) put(dn string, attrs map[string][]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[strings.ToLower(dn)] = attrs
}

func (s *fakeServer) get(dn string) (map[string][]string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[strings.ToLower(dn)]
	return e, ok
}

func (s *fakeServer) remove(dn string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, strings.ToLower(dn))
}

type fakeConn struct {
	server *fakeServer
	bound  string
	closed bool
}

func (c *fakeConn) Bind(username, password string) error {
	s := c.server
	s.mu.Lock()
	defer s.mu.Unlock()

	if username == s.adminDN && password == s.adminPass {
		c.bound = username
		return nil
	}
	entry, ok := s.entries[strings.ToLower(username)]
	if !ok || len(entry["userPassword"]) == 0 || entry["userPassword"][0] != password {
		return ldap.NewError(ldap.LDAPResultInvalidCredentials, errors.New("invalid credentials"))
	}
	c.bound = username
	return nil
}

func (c *fakeConn) Search(req *ldap.SearchRequest) (*ldap.SearchResult, error) {
	s := c.server
	s.mu.Lock()
	defer s.mu.Unlock()

	base := strings.ToLower(req.BaseDN)
	res := &ldap.SearchResult{}

	if req.Scope == ldap.ScopeBaseObject {
		entry, ok := s.entries[base]
		if !ok {
			return nil, ldap.NewError(ldap.LDAPResultNoSuchObject, errors.New("no such object"))
		}
		if strings.Contains(req.Filter, "groupOfNames") && !hasValue(entry["objectClass"], "groupOfNames") {
			return res, nil
		}
		res.Entries = append(res.Entries, ldap.NewEntry(req.BaseDN, entry))
		return res, nil
	}

	for dn, entry := range s.entries {
		if !strings.HasSuffix(dn, ","+base) {
			continue
		}
		switch {
		case strings.Contains(req.Filter, "(objectClass=posixAccount)"):
			if hasValue(entry["objectClass"], "posixAccount") {
				res.Entries = append(res.Entries, ldap.NewEntry(dn, entry))
			}
		case strings.Contains(req.Filter, "(member="):
			member := between(req.Filter, "(member=", ")")
			if hasValue(entry["objectClass"], "groupOfNames") && hasValue(entry["member"], member) {
				res.Entries = append(res.Entries, ldap.NewEntry(dn, entry))
			}
		}
	}
	return res, nil
}

func (c *fakeConn) Add(req *ldap.AddRequest) error {
	s := c.server
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failAdd != nil {
		return s.failAdd
	}
	key := strings.ToLower(req.DN)
	if _, ok := s.entries[key]; ok {
		return ldap.NewError(ldap.LDAPResultEntryAlreadyExists, errors.New("already exists"))
	}
	attrs := map[string][]string{}
	for _, a := range req.Attributes {
		attrs[a.Type] = append([]string{}, a.Vals...)
	}
	s.entries[key] = attrs
	return nil
}

func (c *fakeConn) Modify(req *ldap.ModifyRequest) error {
	s := c.server
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failMod != nil {
		return s.failMod
	}
	entry, ok := s.entries[strings.ToLower(req.DN)]
	if !ok {
		return ldap.NewError(ldap.LDAPResultNoSuchObject, errors.New("no such object"))
	}
	for _, change := range req.Changes {
		if change.Operation != ldap.AddAttribute {
			continue
		}
		attr := change.Modification.Type
		for _, v := range change.Modification.Vals {
			if hasValue(entry[attr], v) {
				return ldap.NewError(ldap.LDAPResultAttributeOrValueExists, errors.New("value exists"))
			}
			entry[attr] = append(entry[attr], v)
		}
	}
	return nil
}

func (c *fakeConn) Unbind() error {
	return c.Close()
}

func (c *fakeConn) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	c.server.mu.Lock()
	c.server.released++
	c.server.mu.Unlock()
	return nil
}

func hasValue(values []string, v string) bool {
	for _, x := range values {
		if strings.EqualFold(x, v) {
			return true
		}
	}
	return false
}

func between(s, start, end string) string {
	i := strings.Index(s, start)
	if i < 0 {
		return ""
	}
	rest := s[i+len(start):]
	j := strings.Index(rest, end)
	if j < 0 {
		return rest
	}
	return rest[:j]
}
