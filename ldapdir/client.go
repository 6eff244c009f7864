// Package ldapdir reads account entries out of one LDAP or
// Active-Directory endpoint using RFC 2696 simple paged results.
package ldapdir

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/go-ldap/ldap/v3"
	"github.com/hashicorp/go-hclog"

	"github.com/hivetrack/dirsync/reconcile"
)

// Config describes one directory endpoint. An empty BindDN means an
// anonymous bind.
type Config struct {
	Name         string
	Server       string
	Port         int
	UseTLS       bool
	BindDN       string
	BindPassword string
	BaseDN       string
	Filter       string
	Attributes   []string
	PageSize     uint32
}

// Source is a reconcile.Source over one LDAP endpoint. A fresh
// connection is opened per traversal; the traversal is not restartable
// mid-flight, only via a new call to Entries.
type Source struct {
	cfg Config
	log hclog.Logger
}

func New(cfg Config, logger hclog.Logger) *Source {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Source{cfg: cfg, log: logger.Named(cfg.Name)}
}

func (s *Source) Name() string { return s.cfg.Name }

// Entries binds to the endpoint and drives the paged search to
// completion, invoking fn per entry. On any error mid-pagination,
// including one returned by fn, the server-side search state is released
// with a page-size-zero request before the error propagates. Every error
// is fatal for the whole source.
func (s *Source) Entries(_ context.Context, fn func(reconcile.RawEntry) error) error {
	conn, err := s.connect()
	if err != nil {
		return err
	}
	defer conn.Close()

	paging := ldap.NewControlPaging(s.cfg.PageSize)
	for {
		req := ldap.NewSearchRequest(
			s.cfg.BaseDN,
			ldap.ScopeWholeSubtree, ldap.NeverDerefAliases, 0, 0, false,
			s.cfg.Filter,
			s.cfg.Attributes,
			[]ldap.Control{paging},
		)
		res, err := conn.Search(req)
		if err != nil {
			s.releaseCursor(conn, paging)
			return fmt.Errorf("paged search under %q: %w", s.cfg.BaseDN, err)
		}

		// Pick up the continuation cookie before running callbacks so an
		// aborted page can still release the newest cursor.
		var cookie []byte
		if ctrl := ldap.FindControl(res.Controls, ldap.ControlTypePaging); ctrl != nil {
			if pc, ok := ctrl.(*ldap.ControlPaging); ok {
				cookie = pc.Cookie
			}
		}
		paging.SetCookie(cookie)

		s.log.Debug("page received", "entries", len(res.Entries), "more", len(cookie) > 0)
		for _, entry := range res.Entries {
			if err := fn(rawEntry(entry)); err != nil {
				s.releaseCursor(conn, paging)
				return err
			}
		}

		if len(cookie) == 0 {
			return nil
		}
	}
}

func (s *Source) connect() (*ldap.Conn, error) {
	scheme := "ldap"
	if s.cfg.UseTLS {
		scheme = "ldaps"
	}
	addr := fmt.Sprintf("%s://%s", scheme, net.JoinHostPort(s.cfg.Server, strconv.Itoa(s.cfg.Port)))

	conn, err := ldap.DialURL(addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	if s.cfg.BindDN != "" {
		err = conn.Bind(s.cfg.BindDN, s.cfg.BindPassword)
	} else {
		err = conn.UnauthenticatedBind("")
	}
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("bind to %s as %q: %w", addr, s.cfg.BindDN, err)
	}
	return conn, nil
}

// releaseCursor tells the server the paged search is abandoned. Courtesy
// only: a failure here is logged and otherwise ignored, the original
// error is what matters.
func (s *Source) releaseCursor(conn *ldap.Conn, paging *ldap.ControlPaging) {
	if len(paging.Cookie) == 0 {
		return
	}
	paging.PagingSize = 0
	req := ldap.NewSearchRequest(
		s.cfg.BaseDN,
		ldap.ScopeWholeSubtree, ldap.NeverDerefAliases, 0, 0, false,
		s.cfg.Filter,
		s.cfg.Attributes,
		[]ldap.Control{paging},
	)
	if _, err := conn.Search(req); err != nil {
		s.log.Debug("cursor release failed", "error", err)
	}
}

func rawEntry(e *ldap.Entry) reconcile.RawEntry {
	attrs := make(map[string][]string, len(e.Attributes))
	for _, a := range e.Attributes {
		attrs[a.Name] = a.Values
	}
	return reconcile.RawEntry{DN: e.DN, Attributes: attrs}
}
