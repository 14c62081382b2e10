// Package netengine implements the Network Engine and Host Probe (spec
// C5/C6): single-request execution with transport configuration, a retry
// wrapper, segmented/chunked downloads, bandwidth shaping, AIMD
// congestion control, and host health probing.
//
// Grounded on project-tachyon's internal/core/engine.go (newRequest,
// ProbeURL, friendlyError/friendlyHTTPError, executeTask's worker-swarm
// download loop) and internal/network/{bandwidth,congestion}.go, adapted
// from a single download-task engine into a general-purpose request
// executor the rest of the core (asset pipeline, host probe) can reuse.
package netengine

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const defaultUserAgent = "NekoLauncher/1.0 (+https://nekolauncher.example)"

// RequestConfig configures a single blocking request (spec §4.3
// "single-request execution").
type RequestConfig struct {
	Method    string
	URL       string
	Headers   map[string]string
	CookiesJS string // raw JSON array of cookies, matching the persisted task format
	UserAgent string
	ProxyURL  string
	Timeout   time.Duration

	// UseRange gates the Range header entirely: a caller that never
	// touches RangeStart/RangeEnd gets a plain unconditional request,
	// rather than silently requesting byte 0 via Go's int64 zero value.
	// RangeEnd < 0 means an open-ended range.
	UseRange   bool
	RangeStart int64
	RangeEnd   int64

	// DestPath, if set, streams the response body to this file instead of
	// buffering it in memory. Resumable requests compute their offset
	// from the file's current size plus ResumeOffset.
	DestPath     string
	Resumable    bool
	ResumeOffset int64

	// Throttle, if set, is invoked before each chunk is written to
	// DestPath so a bandwidth manager can pace the transfer.
	Throttle func(ctx context.Context, n int) error
}

// RequestResult is the outcome of a single request (spec §6 "the network
// engine populates RequestResult.errorMessage … and detailedErrorMessage").
type RequestResult struct {
	StatusCode           int
	Body                 []byte
	BytesWritten         int64
	ETag                 string
	LastModified         string
	AcceptRanges         bool
	ErrorMessage         string
	DetailedErrorMessage string
}

func newHTTPRequest(ctx context.Context, method, rawURL, userAgent string, headers map[string]string, cookiesJSON string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return nil, err
	}

	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Connection", "keep-alive")

	for k, v := range headers {
		req.Header.Set(k, v)
	}

	if cookiesJSON != "" && strings.HasPrefix(strings.TrimSpace(cookiesJSON), "[") {
		var cookies []*http.Cookie
		if err := json.Unmarshal([]byte(cookiesJSON), &cookies); err == nil {
			for _, c := range cookies {
				req.AddCookie(c)
			}
		}
	}

	return req, nil
}

func buildClient(cfg RequestConfig) (*http.Client, error) {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.ProxyURL != "" {
		parsed, err := url.Parse(cfg.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("parse proxy url: %w", err)
		}
		transport.Proxy = http.ProxyURL(parsed)
	}

	return &http.Client{Transport: transport, Timeout: timeout}, nil
}

// Execute performs one blocking request per cfg and returns its outcome.
// Transport errors are wrapped as ErrTransport (or ErrTimeout for
// deadline/context errors); HTTP statuses >= 400 return an
// *HTTPStatusError wrapping ErrHTTPStatus.
func Execute(ctx context.Context, cfg RequestConfig) (*RequestResult, error) {
	client, err := buildClient(cfg)
	if err != nil {
		return nil, err
	}

	method := cfg.Method
	if method == "" {
		method = http.MethodGet
	}

	req, err := newHTTPRequest(ctx, method, cfg.URL, cfg.UserAgent, cfg.Headers, cfg.CookiesJS)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}

	rangeStart := cfg.RangeStart
	useRange := cfg.UseRange
	if cfg.DestPath != "" && cfg.Resumable {
		if info, statErr := os.Stat(cfg.DestPath); statErr == nil && info.Size() > 0 {
			rangeStart += info.Size()
			useRange = true
		}
		if cfg.ResumeOffset != 0 {
			rangeStart += cfg.ResumeOffset
			useRange = true
		}
	}
	if useRange {
		if cfg.RangeEnd >= 0 {
			req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", rangeStart, cfg.RangeEnd))
		} else {
			req.Header.Set("Range", fmt.Sprintf("bytes=%d-", rangeStart))
		}
	}

	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil || isTimeoutErr(err) {
			return nil, fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	result := &RequestResult{
		StatusCode:   resp.StatusCode,
		ETag:         resp.Header.Get("ETag"),
		LastModified: resp.Header.Get("Last-Modified"),
		AcceptRanges: resp.Header.Get("Accept-Ranges") == "bytes" || resp.StatusCode == http.StatusPartialContent,
	}

	// 416 on a resumable download means the server has nothing left past
	// what is already on disk — treat as success (spec §4.3).
	if resp.StatusCode == http.StatusRequestedRangeNotSatisfiable && cfg.Resumable {
		return result, nil
	}

	if resp.StatusCode >= 400 {
		friendly := friendlyHTTPError(resp.StatusCode)
		result.ErrorMessage = friendly.Error()
		result.DetailedErrorMessage = fmt.Sprintf("HTTP %d from %s", resp.StatusCode, cfg.URL)
		return result, &HTTPStatusError{StatusCode: resp.StatusCode}
	}

	if cfg.DestPath != "" {
		n, err := writeToFile(ctx, cfg.DestPath, rangeStart, resp.Body, cfg.Throttle)
		if err != nil {
			return result, fmt.Errorf("%w: %v", ErrTransport, err)
		}
		result.BytesWritten = n
		return result, nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return result, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	result.Body = body
	return result, nil
}

func writeToFile(ctx context.Context, path string, offset int64, body io.Reader, throttle func(context.Context, int) error) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return 0, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	if offset > 0 {
		if _, err := f.Seek(offset, io.SeekStart); err != nil {
			return 0, err
		}
	}

	if throttle == nil {
		return io.Copy(f, body)
	}

	buf := make([]byte, 32*1024)
	var total int64
	for {
		n, rerr := body.Read(buf)
		if n > 0 {
			if terr := throttle(ctx, n); terr != nil {
				return total, terr
			}
			if _, werr := f.Write(buf[:n]); werr != nil {
				return total, werr
			}
			total += int64(n)
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return total, rerr
		}
	}
	return total, nil
}

func isTimeoutErr(err error) bool {
	type timeout interface{ Timeout() bool }
	if t, ok := err.(timeout); ok {
		return t.Timeout()
	}
	return strings.Contains(err.Error(), "deadline exceeded")
}

// ProbeResult carries the metadata a HEAD-like probe extracts from a
// server response (spec §4.4 manifest/asset resolution relies on Size and
// the validators).
type ProbeResult struct {
	Size         int64
	Filename     string
	Status       int
	AcceptRanges bool
	ETag         string
	LastModified string
}

// Probe issues a minimal GET with `Range: bytes=0-0` instead of a HEAD
// request, since some CDNs misreport Content-Length on HEAD — the same
// tradeoff project-tachyon's ProbeURL makes.
func Probe(ctx context.Context, rawURL string, headers map[string]string, userAgent string) (*ProbeResult, error) {
	client, err := buildClient(RequestConfig{Timeout: 30 * time.Second})
	if err != nil {
		return nil, err
	}

	req, err := newHTTPRequest(ctx, http.MethodGet, rawURL, userAgent, headers, "")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	req.Header.Set("Range", "bytes=0-0")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 && resp.StatusCode != http.StatusPartialContent {
		return &ProbeResult{Status: resp.StatusCode}, &HTTPStatusError{StatusCode: resp.StatusCode}
	}

	filename := ""
	if cd := resp.Header.Get("Content-Disposition"); cd != "" {
		if _, params, err := mime.ParseMediaType(cd); err == nil {
			filename = params["filename"]
		}
	}
	if filename == "" {
		filename = filepath.Base(resp.Request.URL.Path)
		if filename == "." || filename == "/" {
			filename = "unknown_file"
		}
	}

	acceptRanges := resp.Header.Get("Accept-Ranges") == "bytes"
	size := resp.ContentLength

	if resp.StatusCode == http.StatusPartialContent {
		acceptRanges = true
		if cr := resp.Header.Get("Content-Range"); cr != "" {
			if parts := strings.Split(cr, "/"); len(parts) == 2 {
				if total, err := strconv.ParseInt(parts[1], 10, 64); err == nil {
					size = total
				}
			}
		}
	}

	return &ProbeResult{
		Size:         size,
		Filename:     filename,
		Status:       resp.StatusCode,
		AcceptRanges: acceptRanges,
		ETag:         resp.Header.Get("ETag"),
		LastModified: resp.Header.Get("Last-Modified"),
	}, nil
}

// friendlyError turns a low-level transport error into the user-facing
// message the spec requires in RequestResult.errorMessage.
func friendlyError(err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "no such host"):
		return fmt.Errorf("server not found, check the URL is correct")
	case strings.Contains(msg, "connection refused"):
		return fmt.Errorf("server is offline or unreachable")
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded"):
		return fmt.Errorf("connection timed out, try again later")
	case strings.Contains(msg, "certificate"):
		return fmt.Errorf("TLS certificate error, the server may not be trustworthy")
	case strings.Contains(msg, "network is unreachable"):
		return fmt.Errorf("no internet connection")
	default:
		return fmt.Errorf("connection failed, check your internet")
	}
}

func friendlyHTTPError(status int) error {
	switch status {
	case 404:
		return fmt.Errorf("file not found on server (404)")
	case 403:
		return fmt.Errorf("access denied by server (403)")
	case 401:
		return fmt.Errorf("authentication required (401)")
	case 500, 502, 503:
		return fmt.Errorf("server error, try again later (%d)", status)
	case 429:
		return fmt.Errorf("too many requests, wait and try again")
	case 416:
		return fmt.Errorf("requested range not satisfiable (416)")
	default:
		return fmt.Errorf("server returned error %d", status)
	}
}
