package api

import (
	"net/http"
	"time"

	"nekolauncher/internal/netengine"
)

type fetchRequest struct {
	Method     string            `json:"method"`
	URL        string            `json:"url"`
	Headers    map[string]string `json:"headers"`
	UserAgent  string            `json:"user_agent"`
	TimeoutMs  int               `json:"timeout_ms"`
	MaxRetries int               `json:"max_retries"`
	RetryDelayMs int             `json:"retry_delay_ms"`
}

type fetchResponse struct {
	StatusCode int    `json:"status_code"`
	Body       []byte `json:"body"`
	BytesWritten int64 `json:"bytes_written"`
}

// handleNetworkFetch exposes executeWithRetry: one in-memory request with
// bounded retries, for small control-plane payloads (manifests, indexes)
// rather than large game assets, which flow through the asset pipeline.
func (s *Server) handleNetworkFetch(w http.ResponseWriter, r *http.Request) {
	var req fetchRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Method == "" {
		req.Method = http.MethodGet
	}

	result, err := netengine.ExecuteWithRetry(r.Context(), netengine.RequestConfig{
		Method:    req.Method,
		URL:       req.URL,
		Headers:   req.Headers,
		UserAgent: req.UserAgent,
		Timeout:   time.Duration(req.TimeoutMs) * time.Millisecond,
	}, netengine.RetryConfig{
		MaxRetries: req.MaxRetries,
		RetryDelay: time.Duration(req.RetryDelayMs) * time.Millisecond,
	})
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, fetchResponse{StatusCode: result.StatusCode, Body: result.Body, BytesWritten: result.BytesWritten})
}

type downloadRequest struct {
	URL        string            `json:"url"`
	Dest       string            `json:"dest"`
	Approach   int               `json:"approach"`
	Param      int64             `json:"param"`
	Headers    map[string]string `json:"headers"`
	UserAgent  string            `json:"user_agent"`
	MaxRetries int               `json:"max_retries"`
	RetryDelayMs int             `json:"retry_delay_ms"`
}

// handleNetworkDownload exposes multiThreadedDownload for callers that
// want a segmented fetch of one large file without going through the
// asset pipeline's manifest-driven resolution.
func (s *Server) handleNetworkDownload(w http.ResponseWriter, r *http.Request) {
	var req downloadRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	err := netengine.MultiThreadedDownload(r.Context(), s.Pool, netengine.MultiDownloadConfig{
		URL:        req.URL,
		Dest:       req.Dest,
		Approach:   netengine.Approach(req.Approach),
		Param:      req.Param,
		Headers:    req.Headers,
		UserAgent:  req.UserAgent,
		MaxRetries: req.MaxRetries,
		RetryDelay: time.Duration(req.RetryDelayMs) * time.Millisecond,
	})
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
