package mentor

import (
	"fmt"
	"strings"
)

// Intent selects the workflow a request is routed to.
type Intent string

const (
	IntentReview       Intent = "REVIEW"
	IntentSecurityScan Intent = "SECURITY_SCAN"
	IntentAutoFix      Intent = "AUTO_FIX"
	// IntentRefactor is accepted by validation but has no workflow bound yet.
	IntentRefactor Intent = "REFACTOR"
)

// AllIntents lists every member of the closed Intent enumeration.
func AllIntents() []Intent {
	return []Intent{IntentReview, IntentSecurityScan, IntentAutoFix, IntentRefactor}
}

func (i Intent) Valid() bool {
	switch i {
	case IntentReview, IntentSecurityScan, IntentAutoFix, IntentRefactor:
		return true
	}
	return false
}

func (i Intent) String() string { return string(i) }

// ParseIntent accepts the canonical upper-case identifiers, ignoring surrounding space and case.
func ParseIntent(s string) (Intent, error) {
	in := Intent(strings.ToUpper(strings.TrimSpace(s)))
	if !in.Valid() {
		return "", fmt.Errorf("unknown intent %q", s)
	}
	return in, nil
}

// UnmarshalText accepts any casing. An empty value decodes to the zero Intent so
// callers can apply their own default.
func (i *Intent) UnmarshalText(b []byte) error {
	if strings.TrimSpace(string(b)) == "" {
		*i = ""
		return nil
	}
	v, err := ParseIntent(string(b))
	if err != nil {
		return err
	}
	*i = v
	return nil
}
