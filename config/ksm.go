package config

import (
	"fmt"
	"os"

	ksm "github.com/keeper-security/secrets-manager-go/core"
)

// KSMConfigEnv carries the base64 Keeper Secrets Manager client
// configuration when any source pulls its credentials from a KSM record.
const KSMConfigEnv = "KSM_CONFIG_BASE64"

// ResolveSecrets fills in the credentials of every source that names a
// KSM record: the bind password (and bind DN, when not set) for LDAP
// sources, the service account credentials.json attachment and admin
// subject for Workspace sources. A no-op when no source references KSM.
func (c *Config) ResolveSecrets() error {
	var uids []string
	for i := range c.Sources {
		if c.Sources[i].KSMRecordUID != "" {
			uids = append(uids, c.Sources[i].KSMRecordUID)
		}
	}
	if len(uids) == 0 {
		return nil
	}

	configBase64 := os.Getenv(KSMConfigEnv)
	if configBase64 == "" {
		return fmt.Errorf("environment variable %q is not set", KSMConfigEnv)
	}
	sm := ksm.NewSecretsManager(&ksm.ClientOptions{
		Config: ksm.NewMemoryKeyValueStorage(configBase64),
	})
	records, err := sm.GetSecrets(uids)
	if err != nil {
		return fmt.Errorf("fetch KSM records: %w", err)
	}
	byUID := make(map[string]*ksm.Record, len(records))
	for _, r := range records {
		byUID[r.Uid] = r
	}

	for i := range c.Sources {
		s := &c.Sources[i]
		if s.KSMRecordUID == "" {
			continue
		}
		r, ok := byUID[s.KSMRecordUID]
		if !ok {
			return fmt.Errorf("source %q: KSM record %q not found or not shared to the KSM application", s.Name, s.KSMRecordUID)
		}
		switch s.Type {
		case "google":
			files := r.FindFiles("credentials.json")
			if len(files) == 0 {
				return fmt.Errorf("source %q: KSM record %q has no credentials.json attachment", s.Name, s.KSMRecordUID)
			}
			s.credentials = files[0].GetFileData()
			if s.Subject == "" {
				s.Subject = r.GetFieldValueByType("login")
			}
		default:
			s.BindPassword = r.Password()
			if s.BindDN == "" {
				s.BindDN = r.GetFieldValueByType("login")
			}
		}
	}
	return nil
}
