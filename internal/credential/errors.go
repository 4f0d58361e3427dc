package credential

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound       = errors.New("credential: not found")
	ErrDecrypt        = errors.New("credential: cannot decrypt stored set")
	ErrNoRefresh      = errors.New("credential: record has no refresh token")
	ErrNotRefreshable = errors.New("credential: provider has no token endpoint")
)

// DataIntegrityError reports that a loader produced a set that violates the
// cache's invariants. It indicates a provisioning bug and is never retried.
type DataIntegrityError struct {
	Key      Key
	Provider string
	Reason   string
}

func (e *DataIntegrityError) Error() string {
	if e.Provider != "" {
		return fmt.Sprintf("credential integrity: key %q provider %q: %s", e.Key, e.Provider, e.Reason)
	}
	return fmt.Sprintf("credential integrity: key %q: %s", e.Key, e.Reason)
}

// IsIntegrity reports whether err is or wraps a DataIntegrityError.
func IsIntegrity(err error) bool {
	var de *DataIntegrityError
	return errors.As(err, &de)
}
