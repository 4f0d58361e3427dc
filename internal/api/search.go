package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/elabx-org/partscout/internal/catalog"
	"github.com/elabx-org/partscout/internal/credential"
	"github.com/elabx-org/partscout/internal/provider"
	"github.com/rs/zerolog/log"
)

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var q catalog.Query
	if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(q.KnownPartTypes) == 0 {
		q.KnownPartTypes = s.cfg.PartTypes
	}

	res, err := s.fetcher.Fetch(r.Context(), q)
	switch {
	case err == nil:
	case errors.Is(err, catalog.ErrEmptyPartNumber), errors.Is(err, catalog.ErrEmptyUser), errors.Is(err, provider.ErrUnknownProvider):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case credential.IsIntegrity(err):
		log.Error().Err(err).Str("user", q.User).Msg("search: credential data is inconsistent")
		writeError(w, http.StatusConflict, "stored credentials for this user are inconsistent; re-provision them")
		return
	default:
		log.Error().Err(err).Str("user", q.User).Msg("search failed")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}
