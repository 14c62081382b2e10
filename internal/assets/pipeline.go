package assets

import (
	"archive/zip"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/google/uuid"
	"github.com/shirou/gopsutil/v3/disk"
	"golang.org/x/sync/errgroup"

	"nekolauncher/internal/netengine"
	"nekolauncher/internal/pool"
	"nekolauncher/internal/security"
	"nekolauncher/internal/storage"
)

// diskSpaceBuffer is reserved on top of the sum of pending downloads,
// mirroring project-tachyon's filesystem.Allocator.checkDiskSpace.
const diskSpaceBuffer = 100 * 1024 * 1024

// maxIntegrityAttempts bounds the download-verify-delete-retry loop for a
// single artifact, per the error taxonomy's "capped at 5" recovery policy.
const maxIntegrityAttempts = 5

// Pipeline resolves a game version's libraries and natives, verifying and
// (re)downloading as needed, and produces a ready-to-use classpath.
// Grounded on the original installMinecraft.hpp's per-library thread-pool
// enqueue plus verify/download loop, and on project-tachyon's
// filesystem.Allocator for the disk-space preflight.
type Pipeline struct {
	Pool       *pool.Pool
	Store      *storage.Storage
	Logger     *slog.Logger
	UserAgent  string
	MaxRetries int
	RetryDelay time.Duration
	TempRoot   string
	Bandwidth  *netengine.BandwidthManager
	Tolerant   bool

	// Scanner optionally runs a freshly downloaded artifact through local
	// antivirus before it is trusted. Nil skips scanning entirely.
	Scanner security.Scanner
}

// Result is the output of resolving a version: the ordered classpath
// entries, the per-launch natives directory (empty if none were needed),
// and the parsed manifest for downstream use by the launch builder.
type Result struct {
	Manifest      *VersionManifest
	ClasspathPath string
	NativesDir    string
}

// libraryOutcome carries one library's processing result back to the
// caller so failures can be attributed and, in tolerant mode, skipped.
type libraryOutcome struct {
	lib          Library
	artifactPath string
	err          error
	skipped      bool
}

// Resolve implements §4.4: parse the manifest, gate libraries through the
// rule engine, verify/download artifacts and natives, and build a
// classpath. In tolerant mode a rule-regex error or integrity failure is
// logged and the offending library is skipped rather than aborting.
func (p *Pipeline) Resolve(ctx context.Context, gameDir, version string, platform Platform, flags FlagSet) (*Result, error) {
	manifest, err := LoadVersionManifest(gameDir, version)
	if err != nil {
		return nil, err
	}

	included := make([]Library, 0, len(manifest.Libraries))
	for _, lib := range manifest.Libraries {
		ok, err := EvaluateRules(lib.Rules, platform, flags)
		if err != nil {
			if p.Tolerant {
				p.logf("skipping library %s: %v", lib.Name, err)
				continue
			}
			return nil, fmt.Errorf("%s: %w", lib.Name, err)
		}
		if ok {
			included = append(included, lib)
		}
	}

	if err := p.checkDiskSpace(gameDir, included); err != nil {
		return nil, err
	}

	nativesDir, err := p.freshNativesDir()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFileIO, err)
	}

	outcomes, err := p.processLibraries(ctx, gameDir, platform.OSName, included, nativesDir)
	if err != nil {
		return nil, err
	}

	classpath := p.buildClasspath(outcomes, ClientJarPath(gameDir, version))
	return &Result{Manifest: manifest, ClasspathPath: classpath, NativesDir: nativesDir}, nil
}

// processLibraries submits one pool task per library (mirroring the
// original's core::getThreadPool().enqueue-per-library loop), waits for
// all of them, and returns per-library outcomes in manifest order.
func (p *Pipeline) processLibraries(ctx context.Context, gameDir, osName string, libs []Library, nativesDir string) ([]libraryOutcome, error) {
	outcomes := make([]libraryOutcome, len(libs))
	futures := make([]*pool.Future, len(libs))

	for i, lib := range libs {
		i, lib := i, lib
		future, err := p.Pool.SubmitWithPriority(pool.Normal, func() error {
			artifactPath, err := p.processLibrary(ctx, gameDir, osName, lib, nativesDir)
			outcomes[i] = libraryOutcome{lib: lib, artifactPath: artifactPath, err: err}
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("%w: scheduling %s", err, lib.Name)
		}
		futures[i] = future
	}

	var firstErr error
	for i, future := range futures {
		if waitErr := future.Wait(ctx); waitErr != nil && outcomes[i].err == nil {
			outcomes[i].err = waitErr
		}
		if outcomes[i].err == nil {
			continue
		}
		if p.Tolerant {
			p.logf("skipping library %s: %v", outcomes[i].lib.Name, outcomes[i].err)
			outcomes[i].skipped = true
			continue
		}
		if firstErr == nil {
			firstErr = fmt.Errorf("%s: %w", outcomes[i].lib.Name, outcomes[i].err)
		}
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return outcomes, nil
}

// processLibrary resolves one library's primary artifact and, if present,
// its current-OS native classifier concurrently via errgroup, then
// extracts the classifier into nativesDir.
func (p *Pipeline) processLibrary(ctx context.Context, gameDir, osName string, lib Library, nativesDir string) (string, error) {
	var artifactPath string
	g, gctx := errgroup.WithContext(ctx)

	if lib.Downloads.Artifact != nil {
		g.Go(func() error {
			path := filepath.Join(LibrariesDir(gameDir), filepath.FromSlash(lib.Downloads.Artifact.Path))
			if err := p.verifyOrFetch(gctx, path, *lib.Downloads.Artifact); err != nil {
				return err
			}
			artifactPath = path
			return nil
		})
	}

	if classifierKey, ok := lib.Natives[osName]; ok {
		if artifact, ok := lib.Downloads.Classifiers[classifierKey]; ok {
			g.Go(func() error {
				return p.fetchAndExtractNative(gctx, gameDir, artifact, nativesDir)
			})
		}
	}

	if err := g.Wait(); err != nil {
		return "", err
	}
	return artifactPath, nil
}

// verifyOrFetch checks an existing file's SHA-1 against the manifest, and
// downloads (retrying up to maxIntegrityAttempts, deleting on each
// mismatch) when it's missing or doesn't match.
func (p *Pipeline) verifyOrFetch(ctx context.Context, path string, artifact ArtifactInfo) error {
	if ok, _ := p.matchesCachedRecord(path, artifact); ok {
		return nil
	}
	if matches, err := fileMatchesSHA1(path, artifact.SHA1); err == nil && matches {
		p.recordVerification(path, artifact, "ok")
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("%w: %v", ErrFileIO, err)
	}

	var lastErr error
	for attempt := 0; attempt < maxIntegrityAttempts; attempt++ {
		_, err := netengine.ExecuteWithRetry(ctx, netengine.RequestConfig{
			URL:       artifact.URL,
			UserAgent: p.UserAgent,
			DestPath:  path,
			Throttle:  p.throttle(),
		}, netengine.RetryConfig{MaxRetries: p.MaxRetries, RetryDelay: p.RetryDelay})
		if err != nil {
			lastErr = err
			os.Remove(path)
			continue
		}

		matches, err := fileMatchesSHA1(path, artifact.SHA1)
		if err != nil {
			lastErr = fmt.Errorf("%w: %v", ErrFileIO, err)
			os.Remove(path)
			continue
		}
		if !matches {
			lastErr = fmt.Errorf("%w: %s sha1 mismatch", ErrIntegrityFailed, path)
			os.Remove(path)
			continue
		}

		if scanErr := p.scan(ctx, path); scanErr != nil {
			lastErr = scanErr
			os.Remove(path)
			continue
		}

		p.recordVerification(path, artifact, "ok")
		return nil
	}

	p.recordVerification(path, artifact, "mismatch")
	return fmt.Errorf("%w: %s after %d attempts: %v", ErrIntegrityFailed, path, maxIntegrityAttempts, lastErr)
}

// fetchAndExtractNative downloads a classifier artifact to a temp file and
// extracts its zip contents into the per-launch natives directory.
func (p *Pipeline) fetchAndExtractNative(ctx context.Context, gameDir string, artifact ArtifactInfo, nativesDir string) error {
	tmp := filepath.Join(os.TempDir(), "neko-native-"+uuid.NewString()+".jar")
	defer os.Remove(tmp)

	if err := p.verifyOrFetch(ctx, tmp, artifact); err != nil {
		return err
	}
	return extractZip(tmp, nativesDir)
}

func extractZip(src, destDir string) error {
	r, err := zip.OpenReader(src)
	if err != nil {
		return fmt.Errorf("%w: opening %s: %v", ErrFileIO, src, err)
	}
	defer r.Close()

	for _, f := range r.File {
		target := filepath.Join(destDir, filepath.FromSlash(f.Name))
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("%w: %v", ErrFileIO, err)
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return fmt.Errorf("%w: %v", ErrFileIO, err)
		}
		if err := extractZipEntry(f, target); err != nil {
			return err
		}
	}
	return nil
}

func extractZipEntry(f *zip.File, target string) error {
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrFileIO, err)
	}
	defer rc.Close()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, f.Mode())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrFileIO, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, rc); err != nil {
		return fmt.Errorf("%w: %v", ErrFileIO, err)
	}
	return nil
}

// buildClasspath joins every successfully-resolved library artifact path
// plus the client jar, in manifest order, using the OS-specific separator.
func (p *Pipeline) buildClasspath(outcomes []libraryOutcome, clientJar string) string {
	sep := ":"
	if runtime.GOOS == "windows" {
		sep = ";"
	}

	entries := make([]string, 0, len(outcomes)+1)
	for _, o := range outcomes {
		if o.skipped || o.artifactPath == "" {
			continue
		}
		entries = append(entries, o.artifactPath)
	}
	entries = append(entries, clientJar)

	out := ""
	for i, e := range entries {
		if i > 0 {
			out += sep
		}
		out += e
	}
	return out
}

// freshNativesDir creates a new temp directory with a random suffix under
// the process temp root, per §4.4's natives-extraction requirement.
func (p *Pipeline) freshNativesDir() (string, error) {
	root := p.TempRoot
	if root == "" {
		root = os.TempDir()
	}
	dir := filepath.Join(root, "neko-natives-"+uuid.NewString())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

// checkDiskSpace sums the size of every not-yet-verified library artifact
// and fails fast if the game directory's volume lacks the space, mirroring
// project-tachyon's filesystem.Allocator.checkDiskSpace.
func (p *Pipeline) checkDiskSpace(gameDir string, libs []Library) error {
	var required int64
	for _, lib := range libs {
		if lib.Downloads.Artifact == nil {
			continue
		}
		path := filepath.Join(LibrariesDir(gameDir), filepath.FromSlash(lib.Downloads.Artifact.Path))
		if matches, err := fileMatchesSHA1(path, lib.Downloads.Artifact.SHA1); err == nil && matches {
			continue
		}
		required += lib.Downloads.Artifact.Size
	}
	if required == 0 {
		return nil
	}

	usage, err := disk.Usage(gameDir)
	if err != nil {
		return nil // preflight is best-effort; a real download failure surfaces the underlying cause
	}
	if int64(usage.Free) < required+diskSpaceBuffer {
		return fmt.Errorf("%w: need %d bytes, have %d free", ErrFileIO, required, usage.Free)
	}
	return nil
}

// scan runs a freshly downloaded artifact through p.Scanner, if configured.
// Cached or already-verified files are never rescanned.
func (p *Pipeline) scan(ctx context.Context, path string) error {
	if p.Scanner == nil {
		return nil
	}
	if err := p.Scanner.ScanFile(ctx, path); err != nil {
		p.logf("antivirus scan rejected %s via %s: %v", path, p.Scanner.Name(), err)
		return fmt.Errorf("%w: %v", ErrScanFailed, err)
	}
	return nil
}

func (p *Pipeline) throttle() func(ctx context.Context, n int) error {
	if p.Bandwidth == nil {
		return nil
	}
	return func(ctx context.Context, n int) error {
		return p.Bandwidth.Wait(ctx, "asset", n)
	}
}

func (p *Pipeline) matchesCachedRecord(path string, artifact ArtifactInfo) (bool, error) {
	if p.Store == nil {
		return false, nil
	}
	rec, err := p.Store.GetAssetRecord(path)
	if err != nil {
		return false, err
	}
	if rec.Status != "ok" || rec.ExpectedHash != artifact.SHA1 {
		return false, nil
	}
	if info, err := os.Stat(path); err != nil || info.Size() != rec.Size {
		return false, nil
	}
	return true, nil
}

func (p *Pipeline) recordVerification(path string, artifact ArtifactInfo, status string) {
	if p.Store == nil {
		return
	}
	size := artifact.Size
	if info, err := os.Stat(path); err == nil {
		size = info.Size()
	}
	_ = p.Store.SaveAssetRecord(storage.AssetRecord{
		Path:         path,
		URL:          artifact.URL,
		ExpectedHash: artifact.SHA1,
		HashAlgo:     "sha1",
		Size:         size,
		Status:       status,
		VerifiedAt:   time.Now(),
	})
}

func (p *Pipeline) logf(format string, args ...any) {
	if p.Logger == nil {
		return
	}
	p.Logger.Warn(fmt.Sprintf(format, args...))
}

func fileMatchesSHA1(path, expected string) (bool, error) {
	if expected == "" {
		_, err := os.Stat(path)
		return err == nil, nil
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	defer f.Close()

	h := sha1.New()
	if _, err := io.Copy(h, f); err != nil {
		return false, err
	}
	return hex.EncodeToString(h.Sum(nil)) == expected, nil
}
