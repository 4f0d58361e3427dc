package catalog

import (
	"encoding/json"
	"fmt"
	"time"
)

// Status is the terminal state of one provider's participation in a fetch.
type Status int

const (
	StatusNotAttempted Status = iota
	StatusNotConfigured
	StatusSuccess
	StatusWarning
	StatusThrottled
	StatusUnauthorized
	StatusError
)

var statusNames = map[Status]string{
	StatusNotAttempted:  "not_attempted",
	StatusNotConfigured: "not_configured",
	StatusSuccess:       "success",
	StatusWarning:       "warning",
	StatusThrottled:     "throttled",
	StatusUnauthorized:  "unauthorized",
	StatusError:         "error",
}

func (s Status) String() string {
	if n, ok := statusNames[s]; ok {
		return n
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// Terminal reports whether s ends a provider's participation. Every state
// except NotAttempted is terminal.
func (s Status) Terminal() bool { return s != StatusNotAttempted }

// Failed reports whether the provider produced no usable data.
func (s Status) Failed() bool {
	switch s {
	case StatusThrottled, StatusUnauthorized, StatusError:
		return true
	}
	return false
}

func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Status) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	for st, n := range statusNames {
		if n == name {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("catalog: unknown status %q", name)
}

// Outcome records how a single provider fared during one fetch.
type Outcome struct {
	Provider   string        `json:"provider"`
	Status     Status        `json:"status"`
	Message    string        `json:"message,omitempty"`
	RetryAfter time.Duration `json:"retry_after,omitempty"`
	RawRef     string        `json:"raw_ref,omitempty"`
	Records    int           `json:"records"`
	Duration   time.Duration `json:"duration"`
}

// NewOutcome returns an outcome for provider in the given status.
func NewOutcome(provider string, status Status, format string, args ...any) Outcome {
	o := Outcome{Provider: provider, Status: status}
	if format != "" {
		o.Message = fmt.Sprintf(format, args...)
	}
	return o
}
