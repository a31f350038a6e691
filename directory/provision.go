package directory

import (
	"context"
	"fmt"
	"path"
	"strconv"

	"github.com/go-ldap/ldap/v3"
	dirauth "github.com/goliatone/go-dirauth"
)

// Provision creates the identity entry and joins the requested group.
//
// The numeric identifier is allocated by scanning existing entries and
// taking max+1. Two concurrent provisions can compute the same value.
//
// The entry add and the group join are separate writes with no rollback.
// When the join fails the entry stays in the directory without a group, and
// a later Provision for the same username returns DuplicateIdentity.
func (a *Adapter) Provision(ctx context.Context, reg dirauth.Registration) (*dirauth.DirectoryEntry, error) {
	var created *dirauth.DirectoryEntry

	err := a.bindAsAdmin(ctx, "provision", func(conn Conn) error {
		existing, err := a.lookupEntry(conn, reg.Username, []string{"uid"})
		if err != nil {
			return dirauth.DirectoryWriteFailed(err, "exists")
		}
		if existing != nil {
			return dirauth.ErrDuplicateIdentity
		}

		uidNumber, err := a.nextUIDNumber(conn)
		if err != nil {
			return dirauth.DirectoryWriteFailed(err, "allocate_uid")
		}

		entry := a.newEntry(reg, uidNumber)
		if err := conn.Add(a.addRequest(entry, reg.Password)); err != nil {
			return dirauth.DirectoryWriteFailed(err, "add_entry")
		}

		if err := a.joinGroup(conn, reg.Group, entry.DN); err != nil {
			return dirauth.DirectoryWriteFailed(err, "join_group")
		}

		created = entry
		return nil
	})
	if err != nil {
		return nil, err
	}

	a.logger.Info("directory entry provisioned", "username", created.Username, "uid_number", created.UIDNumber, "group", reg.Group)
	return created, nil
}

func (a *Adapter) nextUIDNumber(conn Conn) (int, error) {
	req := ldap.NewSearchRequest(
		a.cfg.UsersBase(),
		ldap.ScopeWholeSubtree, ldap.NeverDerefAliases, 0, 0, false,
		"(objectClass=posixAccount)",
		[]string{"uidNumber"},
		nil,
	)

	res, err := conn.Search(req)
	if err != nil {
		if ldap.IsErrorWithCode(err, ldap.LDAPResultNoSuchObject) {
			return a.cfg.UIDFloor, nil
		}
		return 0, err
	}

	highest, found := 0, false
	for _, entry := range res.Entries {
		n, err := strconv.Atoi(entry.GetAttributeValue("uidNumber"))
		if err != nil {
			continue
		}
		if !found || n > highest {
			highest, found = n, true
		}
	}

	if !found {
		return a.cfg.UIDFloor, nil
	}
	return highest + 1, nil
}

func (a *Adapter) newEntry(reg dirauth.Registration, uidNumber int) *dirauth.DirectoryEntry {
	return &dirauth.DirectoryEntry{
		DN:            a.UserDN(reg.Username),
		Username:      reg.Username,
		UIDNumber:     uidNumber,
		GIDNumber:     uidNumber,
		FirstName:     reg.FirstName,
		LastName:      reg.LastName,
		DisplayName:   reg.DisplayName(),
		Email:         reg.Email,
		HomeDirectory: path.Join(a.cfg.HomePrefix, reg.Username),
		LoginShell:    a.cfg.LoginShell,
	}
}

// addRequest stores the password as given; the directory applies its own
// storage policy.
func (a *Adapter) addRequest(entry *dirauth.DirectoryEntry, password string) *ldap.AddRequest {
	req := ldap.NewAddRequest(entry.DN, nil)
	req.Attribute("objectClass", identityObjectClasses)
	req.Attribute("cn", []string{entry.Username})
	req.Attribute("sn", []string{entry.LastName})
	req.Attribute("givenName", []string{entry.FirstName})
	req.Attribute("displayName", []string{entry.DisplayName})
	req.Attribute("uid", []string{entry.Username})
	req.Attribute("uidNumber", []string{strconv.Itoa(entry.UIDNumber)})
	req.Attribute("gidNumber", []string{strconv.Itoa(entry.GIDNumber)})
	req.Attribute("homeDirectory", []string{entry.HomeDirectory})
	req.Attribute("loginShell", []string{entry.LoginShell})
	req.Attribute("mail", []string{entry.Email})
	req.Attribute("userPassword", []string{password})
	return req
}

// joinGroup adds member to group, creating the group when it does not exist.
func (a *Adapter) joinGroup(conn Conn, group, memberDN string) error {
	groupDN := a.GroupDN(group)

	req := ldap.NewSearchRequest(
		groupDN,
		ldap.ScopeBaseObject, ldap.NeverDerefAliases, 1, 0, false,
		"(objectClass=groupOfNames)",
		[]string{"cn"},
		nil,
	)

	res, err := conn.Search(req)
	switch {
	case err != nil && !ldap.IsErrorWithCode(err, ldap.LDAPResultNoSuchObject):
		return err
	case err != nil || len(res.Entries) == 0:
		add := ldap.NewAddRequest(groupDN, nil)
		add.Attribute("objectClass", []string{"groupOfNames"})
		add.Attribute("cn", []string{group})
		add.Attribute("description", []string{fmt.Sprintf("%s group", group)})
		add.Attribute("member", []string{memberDN})
		return conn.Add(add)
	}

	mod := ldap.NewModifyRequest(groupDN, nil)
	mod.Add("member", []string{memberDN})
	if err := conn.Modify(mod); err != nil {
		if ldap.IsErrorWithCode(err, ldap.LDAPResultAttributeOrValueExists) {
			return nil
		}
		return err
	}
	return nil
}
