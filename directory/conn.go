package directory

import (
	"context"
	"net"
	"time"

	"github.com/go-ldap/ldap/v3"
)

// Conn is the subset of *ldap.Conn the adapter uses.
type Conn interface {
	Bind(username, password string) error
	Search(req *ldap.SearchRequest) (*ldap.SearchResult, error)
	Add(req *ldap.AddRequest) error
	Modify(req *ldap.ModifyRequest) error
	Unbind() error
	Close() error
}

var _ Conn = (*ldap.Conn)(nil)

// DialFunc opens a new, unbound connection.
type DialFunc func(ctx context.Context) (Conn, error)

// URLDialer dials url with the given timeout applied to both the TCP
// handshake and every request.
func URLDialer(url string, timeout time.Duration) DialFunc {
	return func(ctx context.Context) (Conn, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		dialer := &net.Dialer{Timeout: timeout}
		if deadline, ok := ctx.Deadline(); ok {
			dialer.Deadline = deadline
		}

		conn, err := ldap.DialURL(url, ldap.DialWithDialer(dialer))
		if err != nil {
			return nil, err
		}
		if timeout > 0 {
			conn.SetTimeout(timeout)
		}
		return conn, nil
	}
}
