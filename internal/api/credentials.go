package api

import (
	"encoding/json"
	"net/http"

	"github.com/elabx-org/partscout/internal/audit"
	"github.com/elabx-org/partscout/internal/credential"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

type credentialsResponse struct {
	User      string   `json:"user"`
	Providers []string `json:"providers"`
}

func (s *Server) handleCredentialsPut(w http.ResponseWriter, r *http.Request) {
	if s.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "credential storage is not configured")
		return
	}
	user := chi.URLParam(r, "user")
	var set credential.Set
	if err := json.NewDecoder(r.Body).Decode(&set); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := set.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	key := credential.Key(user)
	if err := s.repo.Put(key, set); err != nil {
		log.Error().Err(err).Str("user", user).Msg("credentials: store failed")
		writeError(w, http.StatusInternalServerError, "failed to store credentials")
		return
	}
	if s.cache != nil {
		s.cache.Invalidate(key)
	}
	if s.auditor != nil {
		s.auditor.Log(audit.Entry{Action: audit.ActionCredentialsPut, User: user, Records: set.Len()})
	}

	resp := credentialsResponse{User: user, Providers: make([]string, 0, set.Len())}
	for _, rec := range set.Records {
		resp.Providers = append(resp.Providers, rec.Provider)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCredentialsDelete(w http.ResponseWriter, r *http.Request) {
	if s.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "credential storage is not configured")
		return
	}
	user := chi.URLParam(r, "user")
	key := credential.Key(user)
	if err := s.repo.Delete(key); err != nil {
		log.Error().Err(err).Str("user", user).Msg("credentials: delete failed")
		writeError(w, http.StatusInternalServerError, "failed to delete credentials")
		return
	}
	if s.cache != nil {
		s.cache.Invalidate(key)
	}
	if s.auditor != nil {
		s.auditor.Log(audit.Entry{Action: audit.ActionCredentialsDelete, User: user})
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCredentialUsers(w http.ResponseWriter, r *http.Request) {
	if s.repo == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"users": []string{}, "count": 0})
		return
	}
	keys, err := s.repo.Users()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	users := make([]string, 0, len(keys))
	for _, k := range keys {
		users = append(users, string(k))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"users": users, "count": len(users)})
}
