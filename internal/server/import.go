package server

import (
	"crypto/subtle"
	"net/http"

	"go.uber.org/zap"
)

// handleImport runs the ingestion pipeline for the configured page set.
// The endpoint is protected by a shared secret; without a matching
// X-Import-Secret header the caller gets a 401.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	if s.opts.ImportSecret == "" {
		writeError(w, http.StatusInternalServerError, "import not configured",
			"set the import secret to enable this endpoint")
		return
	}
	got := r.Header.Get("X-Import-Secret")
	if subtle.ConstantTimeCompare([]byte(got), []byte(s.opts.ImportSecret)) != 1 {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing or wrong X-Import-Secret header")
		return
	}
	if s.importer == nil {
		writeError(w, http.StatusInternalServerError, "import not configured",
			"check source app_id/app_key configuration")
		return
	}

	pages := s.opts.ImportPages
	if len(pages) == 0 {
		pages = []int{1, 2}
	}
	perPage := s.opts.ImportPerPage
	if perPage <= 0 {
		perPage = 50
	}

	summary, err := s.importer.Run(r.Context(), pages, perPage)
	if err != nil {
		zap.L().Error("import run failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "import failed",
			"check source credentials and upstream availability")
		return
	}

	writeJSON(w, http.StatusOK, summary)
}
