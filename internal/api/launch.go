package api

import (
	"errors"
	"net/http"

	"nekolauncher/internal/launch"
)

var errLaunchNotConfigured = errors.New("api: launch is not configured on this server")

type launchResponse struct {
	State    string   `json:"state"`
	Command  []string `json:"command,omitempty"`
	ExitCode int      `json:"exit_code,omitempty"`
	Error    string   `json:"error,omitempty"`
}

// handleLaunch drives one full launch attempt (buildLaunchCommand +
// launch, per spec §6) through whatever Spawner cmd/launcher wired in.
func (s *Server) handleLaunch(w http.ResponseWriter, r *http.Request) {
	if s.Launch == nil {
		writeError(w, http.StatusServiceUnavailable, errLaunchNotConfigured)
		return
	}

	var cfg launch.Config
	if err := readJSON(r, &cfg); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	attempt := s.Launch(cfg)
	resp := launchResponse{State: attempt.State().String(), Command: launch.RedactCommand(attempt.Command(), cfg.AccessToken)}
	if attempt.State() == launch.Exited {
		resp.ExitCode = attempt.ExitCode()
	}
	if err := attempt.Err(); err != nil {
		resp.Error = err.Error()
		writeJSON(w, http.StatusUnprocessableEntity, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
