package launch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"nekolauncher/internal/assets"
	"nekolauncher/internal/netengine"
)

// authlibVersionInfo is the latest-artifact descriptor served by the
// authlib-injector index, per the original's downloadAuthlibInjector.
type authlibVersionInfo struct {
	DownloadURL string `json:"download_url"`
	Checksums   struct {
		SHA256 string `json:"sha256"`
	} `json:"checksums"`
}

// resolveAuthlib ensures the authlib-injector jar is present and verified,
// downloading and persisting a fresh expected hash if it's missing or
// (outside tolerant mode) mismatched, then returns the JVM arguments that
// wire it in as a javaagent.
func resolveAuthlib(ctx context.Context, cfg Config, userAgent string, persistSHA256 func(sha256 string)) ([]string, error) {
	name := cfg.AuthlibName
	if name == "" {
		name = "authlib-injector.jar"
	}
	path := filepath.Join(cfg.GameDir, name)

	needsDownload := false
	if _, err := os.Stat(path); err != nil {
		needsDownload = true
	} else if !cfg.Tolerant {
		hash, err := sha256File(path)
		if err != nil || hash != cfg.AuthlibSHA256 {
			os.Remove(path)
			needsDownload = true
		}
	}

	if needsDownload {
		newHash, err := downloadLatestAuthlib(ctx, path, userAgent)
		if err != nil {
			return nil, err
		}
		if persistSHA256 != nil {
			persistSHA256(newHash)
		}
	}

	prefetched := strings.ReplaceAll(cfg.AuthlibPrefetched, `\`, "")
	agentURL := authlibYggdrasilURL

	return []string{
		fmt.Sprintf("-javaagent:%s=%s", path, agentURL),
		"-Dauthlibinjector.side=client",
		fmt.Sprintf("-Dauthlibinjector.yggdrasil.prefetched=%s", prefetched),
	}, nil
}

// downloadLatestAuthlib fetches the latest-artifact descriptor from the
// fixed authlib index, downloads the artifact, and verifies its SHA-256.
func downloadLatestAuthlib(ctx context.Context, destPath, userAgent string) (string, error) {
	result, err := netengine.ExecuteWithRetry(ctx, netengine.RequestConfig{
		URL:       authlibIndexURL,
		UserAgent: userAgent,
	}, netengine.RetryConfig{MaxRetries: 3, RetryDelay: time.Second})
	if err != nil {
		return "", fmt.Errorf("%w: fetching authlib index: %v", assets.ErrIntegrityFailed, err)
	}

	var info authlibVersionInfo
	if err := json.Unmarshal(result.Body, &info); err != nil {
		return "", fmt.Errorf("%w: parsing authlib index: %v", assets.ErrManifestInvalid, err)
	}
	if info.DownloadURL == "" || info.Checksums.SHA256 == "" {
		return "", fmt.Errorf("%w: authlib index missing download_url or checksums.sha256", assets.ErrManifestKeyMissing)
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return "", fmt.Errorf("%w: %v", assets.ErrFileIO, err)
	}

	if _, err := netengine.ExecuteWithRetry(ctx, netengine.RequestConfig{
		URL:       info.DownloadURL,
		UserAgent: userAgent,
		DestPath:  destPath,
	}, netengine.RetryConfig{MaxRetries: 3, RetryDelay: time.Second}); err != nil {
		return "", fmt.Errorf("%w: downloading authlib injector: %v", assets.ErrIntegrityFailed, err)
	}

	hash, err := sha256File(destPath)
	if err != nil {
		return "", fmt.Errorf("%w: %v", assets.ErrFileIO, err)
	}
	if hash != info.Checksums.SHA256 {
		os.Remove(destPath)
		return "", fmt.Errorf("%w: authlib injector sha256 mismatch, expected %s got %s", assets.ErrIntegrityFailed, info.Checksums.SHA256, hash)
	}
	return hash, nil
}

func sha256File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
