package api

import (
	"context"
	"net/http"
	"time"

	"github.com/elabx-org/partscout/internal/provider"
)

type HealthResponse struct {
	Status      string           `json:"status"`
	Providers   []ProviderStatus `json:"providers"`
	Credentials *CredentialStats `json:"credentials,omitempty"`
	Secrets     *ComponentStatus `json:"secrets,omitempty"`
	Uptime      int64            `json:"uptime_seconds"`
}

type ProviderStatus struct {
	Name     string `json:"name"`
	Kind     string `json:"kind"`
	Status   string `json:"status"`
	Auth     string `json:"auth"`
	Priority int    `json:"priority"`
}

type CredentialStats struct {
	Loads int64 `json:"loads"`
	Hits  int64 `json:"hits"`
}

type ComponentStatus struct {
	Status    string `json:"status"`
	LatencyMs int64  `json:"latency_ms,omitempty"`
	Error     string `json:"error,omitempty"`
}

var startTime = time.Now()

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:    "ok",
		Providers: []ProviderStatus{},
		Uptime:    int64(time.Since(startTime).Seconds()),
	}
	if s.registry != nil {
		for _, e := range s.registry.Entries() {
			resp.Providers = append(resp.Providers, providerStatus(e.Descriptor))
		}
	}
	if s.cache != nil {
		loads, hits := s.cache.Stats()
		resp.Credentials = &CredentialStats{Loads: loads, Hits: hits}
	}
	if s.secrets != nil {
		resp.Secrets = s.secretsStatus(r.Context())
		if resp.Secrets.Status != "ok" {
			resp.Status = "degraded"
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func providerStatus(d provider.Descriptor) ProviderStatus {
	st := ProviderStatus{Name: d.Name, Kind: d.Kind, Auth: d.Auth.String(), Priority: d.Priority}
	switch {
	case !d.Enabled:
		st.Status = "disabled"
	case !d.IsConfigured():
		st.Status = "not_configured"
	default:
		st.Status = "ready"
	}
	return st
}

// secretsStatus probes the secret backend at most once per healthCacheTTL.
func (s *Server) secretsStatus(ctx context.Context) *ComponentStatus {
	s.healthMu.RLock()
	if s.healthCached != nil && time.Since(s.healthCheckedAt) < healthCacheTTL {
		cached := *s.healthCached
		s.healthMu.RUnlock()
		return &cached
	}
	s.healthMu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	ok, latency, err := s.secrets(ctx)
	st := &ComponentStatus{Status: "ok", LatencyMs: latency.Milliseconds()}
	if !ok || err != nil {
		st.Status = "unhealthy"
		if err != nil {
			st.Error = err.Error()
		}
	}

	s.healthMu.Lock()
	s.healthCached = st
	s.healthCheckedAt = time.Now()
	s.healthMu.Unlock()

	cached := *st
	return &cached
}
