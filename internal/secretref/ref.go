// Package secretref resolves op:// secret references found in the
// configuration through a 1Password service account.
package secretref

import (
	"fmt"
	"strings"
)

const scheme = "op://"

// Ref is a parsed op://vault/item/field reference.
type Ref struct {
	Vault string
	Item  string
	Field string
	Raw   string
}

func (r Ref) String() string { return r.Raw }

// IsRef reports whether value is an op:// reference.
func IsRef(value string) bool {
	return strings.HasPrefix(strings.TrimSpace(value), scheme)
}

// Parse splits an op:// reference. The field may itself contain slashes
// (section/field).
func Parse(value string) (Ref, error) {
	value = strings.TrimSpace(value)
	if !IsRef(value) {
		return Ref{}, fmt.Errorf("not an op:// reference: %q", value)
	}
	parts := strings.SplitN(strings.TrimPrefix(value, scheme), "/", 3)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return Ref{}, fmt.Errorf("invalid reference %q: expected op://vault/item/field", value)
	}
	return Ref{Vault: parts[0], Item: parts[1], Field: parts[2], Raw: value}, nil
}
