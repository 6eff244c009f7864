package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	e := RawEntry{
		DN: "cn=Ann,dc=example,dc=com",
		Attributes: map[string][]string{
			"uid":  {"U1"},
			"cn":   {"Ann Example", "Ann"},
			"mail": {"ann@example.com"},
			"uac":  {"512"},
		},
	}
	rec := Normalize(e, testMapping)
	assert.Equal(t, Record{
		ExternalID:  "U1",
		Email:       "ann@example.com",
		DisplayName: "Ann Example",
		Disabled:    false,
	}, rec)
}

func TestNormalizeMissingAttributes(t *testing.T) {
	rec := Normalize(RawEntry{DN: "cn=empty"}, testMapping)
	assert.Equal(t, Record{}, rec)
}

func TestNormalizeDisabledBit(t *testing.T) {
	tests := []struct {
		uac  string
		want bool
	}{
		{"2", true},
		{"514", true}, // 512 | 2, the usual disabled AD account
		{"512", false},
		{"66050", true}, // disabled + don't-expire-password
		{"0", false},
		{"", false},
		{"garbage", false},
	}
	for _, tt := range tests {
		e := RawEntry{Attributes: map[string][]string{"uac": {tt.uac}}}
		assert.Equal(t, tt.want, Normalize(e, testMapping).Disabled, "uac=%q", tt.uac)
	}
}

func TestValidEmailRule(t *testing.T) {
	valid := []string{"a@b", "ann.example@corp.example.com", "first-last@host-1.example"}
	invalid := []string{"", "not-an-email", "two@@x.com", "a b@x.com", "@x.com", "a@", "a@x.com "}
	for _, email := range valid {
		assert.True(t, validEmail.MatchString(email), "email %q", email)
	}
	for _, email := range invalid {
		assert.False(t, validEmail.MatchString(email), "email %q", email)
	}
}

func TestFoldEmail(t *testing.T) {
	assert.Equal(t, "ann@example.com", FoldEmail("Ann@Example.COM"))
	assert.Equal(t, "ann@example.com", FoldEmail("ann@example.com"))
}
