package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"nekolauncher/internal/bgm"
)

type triggerRequest struct {
	Name      string  `json:"name"`
	Pattern   string  `json:"pattern"`
	MusicPath string  `json:"music_path"`
	Loop      bool    `json:"loop"`
	FadeInMs  int     `json:"fade_in_ms"`
	FadeOutMs int     `json:"fade_out_ms"`
	Volume    float64 `json:"volume"`
	Priority  int     `json:"priority"`
}

func (req triggerRequest) toTrigger() bgm.Trigger {
	return bgm.Trigger{
		Name:      req.Name,
		Pattern:   req.Pattern,
		MusicPath: req.MusicPath,
		Loop:      req.Loop,
		FadeInMs:  req.FadeInMs,
		FadeOutMs: req.FadeOutMs,
		Volume:    req.Volume,
		Priority:  req.Priority,
	}
}

type stateResponse struct {
	State string `json:"state"`
	Track string `json:"track"`
}

func (s *Server) handleBgmState(w http.ResponseWriter, r *http.Request) {
	state, track := s.Bgm.Snapshot()
	writeJSON(w, http.StatusOK, stateResponse{State: state.String(), Track: track})
}

func (s *Server) handleBgmAddTrigger(w http.ResponseWriter, r *http.Request) {
	var req triggerRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.Bgm.AddTrigger(req.toTrigger()); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) handleBgmRemoveTrigger(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	ok := s.Bgm.RemoveTrigger(name)
	writeJSON(w, http.StatusOK, map[string]bool{"removed": ok})
}

func (s *Server) handleBgmClearTriggers(w http.ResponseWriter, r *http.Request) {
	s.Bgm.ClearTriggers()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleBgmSetEnabled(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Enabled bool `json:"enabled"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.Bgm.SetEnabled(req.Enabled)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleBgmSetVolume(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Volume float64 `json:"volume"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.Bgm.SetVolume(req.Volume)
	w.WriteHeader(http.StatusNoContent)
}
