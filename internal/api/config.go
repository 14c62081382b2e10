package api

import (
	"net/http"
	"reflect"

	"nekolauncher/internal/config"
)

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Config.GetClientConfig())
}

// handleUpdateConfig merges the request body's non-zero top-level
// sections into the live configuration, then persists the result. A
// partial body (e.g. just {"main": {...}}) leaves other sections
// untouched.
func (s *Server) handleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	var patch config.LauncherConfig
	if err := readJSON(r, &patch); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	s.Config.UpdateClientConfig(func(cfg *config.LauncherConfig) {
		dst := reflect.ValueOf(cfg).Elem()
		src := reflect.ValueOf(patch)
		for i := 0; i < src.NumField(); i++ {
			if !src.Field(i).IsZero() {
				dst.Field(i).Set(src.Field(i))
			}
		}
	})

	if err := s.Config.Persist(); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, s.Config.GetClientConfig())
}
