package api

import (
	"net/http"
	"strconv"

	"github.com/elabx-org/partscout/internal/audit"
)

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	if s.auditor == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"entries": []audit.Entry{}, "count": 0})
		return
	}

	opts := audit.QueryOptions{
		User:     r.URL.Query().Get("user"),
		Provider: r.URL.Query().Get("provider"),
		Action:   r.URL.Query().Get("action"),
	}
	if h := r.URL.Query().Get("hours"); h != "" {
		opts.Hours, _ = strconv.Atoi(h)
	}

	entries, err := s.auditor.Query(opts)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if entries == nil {
		entries = []audit.Entry{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"entries": entries,
		"count":   len(entries),
	})
}
