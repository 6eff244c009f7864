// Package config loads the reconciliation run configuration: the target
// store, the run modes, the local-account allow-list and one entry per
// directory source.
package config

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/hashicorp/go-hclog"
	"sigs.k8s.io/yaml"

	"github.com/hivetrack/dirsync/gdir"
	"github.com/hivetrack/dirsync/ldapdir"
	"github.com/hivetrack/dirsync/reconcile"
)

const (
	DefaultConfigFile   = "dirsync.yaml"
	DefaultDatabasePath = "dirsync.db"
	DefaultPageSize     = 500
	DefaultFilter       = "(objectClass=person)"
)

// SourceConfig is one directory endpoint. Type selects the client:
// "ldap" (default) or "google".
type SourceConfig struct {
	Name string `json:"name"`
	Type string `json:"type"`

	// LDAP endpoints.
	Server       string                 `json:"server"`
	Port         int                    `json:"port"`
	UseTLS       bool                   `json:"use_tls"`
	BindDN       string                 `json:"bind_dn"`
	BindPassword string                 `json:"bind_password"`
	BaseDN       string                 `json:"base_dn"`
	Filter       string                 `json:"filter"`
	Attributes   reconcile.AttributeMap `json:"attributes"`
	PageSize     uint32                 `json:"page_size"`

	// Google Workspace endpoints.
	Subject         string `json:"subject"`
	Domain          string `json:"domain"`
	CredentialsFile string `json:"credentials_file"`

	// KSMRecordUID names a Keeper Secrets Manager record to pull the
	// bind credentials from, so no secret has to live in this file.
	KSMRecordUID string `json:"ksm_record"`

	credentials []byte
}

// Config is the whole run configuration.
type Config struct {
	Database string `json:"database"`
	// LocalUsers are accounts intentionally absent from every directory;
	// they are never disabled. Entries are exact emails, or prefixes when
	// written with a trailing "*".
	LocalUsers []string       `json:"local_users"`
	Sources    []SourceConfig `json:"sources"`
}

func LoadConfig(fileName string) (Config, error) {
	if fileName == "" {
		fileName = DefaultConfigFile
	}
	cfg, err := LoadConfigFromFile(fileName)
	if err != nil {
		return Config{}, fmt.Errorf("load config %q: %w", fileName, err)
	}
	if cfg == nil {
		cfg = &Config{}
	}
	cfg.applyDefaults()
	if err := cfg.loadCredentialFiles(); err != nil {
		return Config{}, err
	}
	return *cfg, nil
}

func LoadConfigFromFile(fileName string) (*Config, error) {
	f, err := os.Open(fileName)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return LoadConfigFromReader(f)
}

func LoadConfigFromReader(r io.Reader) (*Config, error) {
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(r); err != nil {
		return nil, err
	}
	if buf.Len() == 0 {
		return nil, nil
	}
	cfg := new(Config)
	if err := yaml.Unmarshal(buf.Bytes(), cfg); err != nil {
		return nil, fmt.Errorf("config unmarshal: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	c.Database = firstNonEmpty(c.Database, os.Getenv("DIRSYNC_DATABASE"), DefaultDatabasePath)
	for i := range c.Sources {
		s := &c.Sources[i]
		if s.Type == "" {
			s.Type = "ldap"
		}
		if s.Name == "" {
			s.Name = firstNonEmpty(s.Server, s.Domain, fmt.Sprintf("source%d", i+1))
		}
		if s.PageSize == 0 {
			s.PageSize = DefaultPageSize
		}
		if s.Type != "ldap" {
			continue
		}
		if s.Port == 0 {
			if s.UseTLS {
				s.Port = 636
			} else {
				s.Port = 389
			}
		}
		if s.Filter == "" {
			s.Filter = DefaultFilter
		}
		m := &s.Attributes
		m.ExternalID = firstNonEmpty(m.ExternalID, "objectGUID")
		m.DisplayName = firstNonEmpty(m.DisplayName, "cn")
		m.Email = firstNonEmpty(m.Email, "mail")
		m.Disabled = firstNonEmpty(m.Disabled, "userAccountControl")
	}
}

func (c *Config) loadCredentialFiles() error {
	for i := range c.Sources {
		s := &c.Sources[i]
		if s.Type != "google" || s.CredentialsFile == "" {
			continue
		}
		data, err := os.ReadFile(s.CredentialsFile)
		if err != nil {
			return fmt.Errorf("source %q: read credentials: %w", s.Name, err)
		}
		s.credentials = data
	}
	return nil
}

// Bindings builds the configured sources paired with their attribute
// mappings, in config order.
func (c *Config) Bindings(logger hclog.Logger) ([]reconcile.SourceBinding, error) {
	var bindings []reconcile.SourceBinding
	for i := range c.Sources {
		s := &c.Sources[i]
		switch s.Type {
		case "ldap":
			src := ldapdir.New(ldapdir.Config{
				Name:         s.Name,
				Server:       s.Server,
				Port:         s.Port,
				UseTLS:       s.UseTLS,
				BindDN:       s.BindDN,
				BindPassword: s.BindPassword,
				BaseDN:       s.BaseDN,
				Filter:       s.Filter,
				Attributes:   attributeList(s.Attributes),
				PageSize:     s.PageSize,
			}, logger)
			bindings = append(bindings, reconcile.SourceBinding{Source: src, Mapping: s.Attributes})
		case "google":
			src := gdir.New(gdir.Config{
				Name:        s.Name,
				Credentials: s.credentials,
				Subject:     s.Subject,
				Domain:      s.Domain,
				PageSize:    int64(s.PageSize),
			}, logger)
			bindings = append(bindings, reconcile.SourceBinding{Source: src, Mapping: gdir.AttrMap()})
		default:
			return nil, fmt.Errorf("source %q: unknown type %q", s.Name, s.Type)
		}
	}
	return bindings, nil
}

func attributeList(m reconcile.AttributeMap) []string {
	var attrs []string
	for _, a := range []string{m.ExternalID, m.DisplayName, m.Email, m.Disabled} {
		if a != "" {
			attrs = append(attrs, a)
		}
	}
	return attrs
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
