package audit

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/elabx-org/partscout/internal/catalog"
	"github.com/rs/zerolog/log"
)

// Actions written to the audit log.
const (
	ActionFetch             = "fetch"
	ActionProvider          = "provider"
	ActionCredentialsPut    = "credentials.put"
	ActionCredentialsDelete = "credentials.delete"
)

type Entry struct {
	Timestamp  time.Time `json:"ts"`
	Action     string    `json:"action"`
	FetchID    string    `json:"fetch_id,omitempty"`
	User       string    `json:"user"`
	PartNumber string    `json:"part_number,omitempty"`
	Provider   string    `json:"provider,omitempty"`
	Status     string    `json:"status,omitempty"`
	Records    int       `json:"records"`
	DurationMs int64     `json:"duration_ms"`
	Message    string    `json:"message,omitempty"`
}

type QueryOptions struct {
	User     string
	Provider string
	Action   string
	Hours    int
}

type Logger struct {
	mu   sync.Mutex
	f    *os.File
	path string
}

func New(path string) (*Logger, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0640)
	if err != nil {
		return nil, err
	}
	return &Logger{f: f, path: path}, nil
}

func (l *Logger) Close() error { return l.f.Close() }

func (l *Logger) Log(e Entry) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	data, _ := json.Marshal(e)
	if _, err := l.f.Write(append(data, '\n')); err != nil {
		log.Warn().Err(err).Str("path", l.path).Msg("audit: write failed")
	}
}

// ObserveFetch writes one entry for the fetch and one per provider outcome.
func (l *Logger) ObserveFetch(res *catalog.Result, elapsed time.Duration) {
	now := time.Now().UTC()
	l.Log(Entry{
		Timestamp:  now,
		Action:     ActionFetch,
		FetchID:    res.ID,
		User:       res.Query.User,
		PartNumber: res.Query.PartNumber,
		Records:    len(res.Parts),
		DurationMs: elapsed.Milliseconds(),
	})
	for name, o := range res.Outcomes {
		l.Log(Entry{
			Timestamp:  now,
			Action:     ActionProvider,
			FetchID:    res.ID,
			User:       res.Query.User,
			PartNumber: res.Query.PartNumber,
			Provider:   name,
			Status:     o.Status.String(),
			Records:    o.Records,
			DurationMs: o.Duration.Milliseconds(),
			Message:    o.Message,
		})
	}
}

// scan calls fn for every line of the log. ok is false for lines that do not
// decode as an Entry. The caller holds l.mu.
func (l *Logger) scan(fn func(line []byte, e Entry, ok bool)) error {
	f, err := os.Open(l.path)
	if err != nil {
		return err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var e Entry
		err := json.Unmarshal(sc.Bytes(), &e)
		fn(sc.Bytes(), e, err == nil)
	}
	return sc.Err()
}

// Prune drops entries older than retentionDays by rewriting the log through a
// temporary file. Undecodable lines are kept.
func (l *Logger) Prune(retentionDays int) error {
	if retentionDays <= 0 {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	var buf bytes.Buffer
	dropped := 0
	err := l.scan(func(line []byte, e Entry, ok bool) {
		if ok && e.Timestamp.Before(cutoff) {
			dropped++
			return
		}
		buf.Write(line)
		buf.WriteByte('\n')
	})
	if err != nil {
		return err
	}
	if dropped == 0 {
		return nil
	}

	tmp := l.path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0640); err != nil {
		return err
	}
	if err := os.Rename(tmp, l.path); err != nil {
		return err
	}
	log.Info().Int("dropped", dropped).Str("path", l.path).Msg("audit log pruned")

	// The append handle still points at the replaced file.
	l.f.Close()
	l.f, err = os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0640)
	return err
}

// matches reports whether e passes every filter set in opts.
func (opts QueryOptions) matches(e Entry, cutoff time.Time) bool {
	switch {
	case opts.User != "" && !strings.EqualFold(e.User, opts.User):
		return false
	case opts.Provider != "" && !strings.EqualFold(e.Provider, opts.Provider):
		return false
	case opts.Action != "" && e.Action != opts.Action:
		return false
	case !cutoff.IsZero() && e.Timestamp.Before(cutoff):
		return false
	}
	return true
}

// Query returns the entries matching opts in log order.
func (l *Logger) Query(opts QueryOptions) ([]Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var cutoff time.Time
	if opts.Hours > 0 {
		cutoff = time.Now().Add(-time.Duration(opts.Hours) * time.Hour)
	}
	var results []Entry
	err := l.scan(func(_ []byte, e Entry, ok bool) {
		if ok && opts.matches(e, cutoff) {
			results = append(results, e)
		}
	})
	return results, err
}
