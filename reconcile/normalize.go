package reconcile

import (
	"regexp"
	"strconv"
)

// accountDisabledBit is the control bit in the directory's account-control
// bitfield that marks an account as disabled.
const accountDisabledBit = 0x2

// validEmail is the syntactic rule a new account's email must satisfy
// before a store record is created for it.
var validEmail = regexp.MustCompile(`^[\w.\-]+@[\w.\-]+$`)

// Normalize projects a raw directory entry onto a Record using the
// configured attribute names. It never fails: absent attributes become
// empty strings and are rejected later by the reconciler's validity
// check, and a missing or non-numeric account-control value is treated
// as enabled.
func Normalize(e RawEntry, m AttributeMap) Record {
	var uac int64
	if v := e.First(m.Disabled); v != "" {
		uac, _ = strconv.ParseInt(v, 10, 64)
	}
	return Record{
		ExternalID:  e.First(m.ExternalID),
		Email:       e.First(m.Email),
		DisplayName: e.First(m.DisplayName),
		Disabled:    uac&accountDisabledBit != 0,
	}
}
