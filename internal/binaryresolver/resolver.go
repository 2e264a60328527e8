// Package binaryresolver locates and validates the Claude Code CLI
// executable the Supervisor spawns sessions against.
package binaryresolver

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/shannon-mcp/shannon-mcp/internal/config"
	"github.com/shannon-mcp/shannon-mcp/internal/logging"
	"github.com/shannon-mcp/shannon-mcp/pkg/types"
)

// BinaryRef is a resolved, validated CLI binary.
type BinaryRef struct {
	Path        string `json:"path"`
	Version     string `json:"version"`
	ResolvedVia string `json:"resolvedVia"` // "path", "well_known", "discovery_log"
	ResolvedAt  int64  `json:"resolvedAt"`
}

// discoveryRecorder persists one attempt per resolution strategy so a
// later daemon restart can skip straight to whatever worked last time.
// Implemented by internal/registry's discovery log store; kept as an
// interface here so binaryresolver has no direct sqlite dependency.
type discoveryRecorder interface {
	RecordDiscovery(ctx context.Context, method, outcome, detail string, duration time.Duration) error
	LastSuccessfulDiscovery(ctx context.Context) (path string, ok bool, err error)
}

// Resolver implements the three-tier resolution chain: PATH, well-known
// install roots, then the persisted discovery log.
type Resolver struct {
	mu sync.Mutex

	cfg        config.BinaryConfig
	recorder   discoveryRecorder
	versionArg string
	probeTO    time.Duration

	cached   *BinaryRef
	cachedAt time.Time
	ttl      time.Duration
}

// New creates a Resolver. recorder may be nil, in which case the
// discovery-log fallback strategy and persistence are both skipped.
func New(cfg config.BinaryConfig, recorder discoveryRecorder) *Resolver {
	ttl := time.Duration(cfg.RefreshInterval) * time.Second
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Resolver{
		cfg:        cfg,
		recorder:   recorder,
		versionArg: "--version",
		probeTO:    5 * time.Second,
		ttl:        ttl,
	}
}

// Resolve returns a validated BinaryRef, using the TTL cache unless
// forceRefresh is set.
func (r *Resolver) Resolve(ctx context.Context, forceRefresh bool) (*BinaryRef, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !forceRefresh && r.cached != nil && time.Since(r.cachedAt) < r.ttl {
		return r.cached, nil
	}

	ref, err := r.resolveLocked(ctx)
	if err != nil {
		return nil, err
	}

	r.cached = ref
	r.cachedAt = time.Now()
	return ref, nil
}

func (r *Resolver) resolveLocked(ctx context.Context) (*BinaryRef, error) {
	names := r.cfg.Names
	if len(names) == 0 {
		names = []string{"claude", "claude-code"}
	}

	if ref, err := r.tryPATH(ctx, names); err == nil {
		return ref, nil
	}

	if ref, err := r.tryWellKnownRoots(ctx, names); err == nil {
		return ref, nil
	}

	if ref, err := r.tryDiscoveryLog(ctx); err == nil {
		return ref, nil
	}

	return nil, types.ErrBinaryUnavailable
}

func (r *Resolver) tryPATH(ctx context.Context, names []string) (*BinaryRef, error) {
	start := time.Now()
	for _, name := range names {
		path, err := exec.LookPath(name)
		if err != nil {
			continue
		}
		ref, err := r.validate(ctx, path, "path")
		r.record(ctx, "path", ref, err, time.Since(start))
		if err == nil {
			return ref, nil
		}
	}
	return nil, types.ErrBinaryUnavailable
}

func (r *Resolver) tryWellKnownRoots(ctx context.Context, names []string) (*BinaryRef, error) {
	start := time.Now()
	for _, root := range wellKnownRoots() {
		for _, name := range names {
			candidate := filepath.Join(root, name)
			if runtime.GOOS == "windows" {
				candidate += ".exe"
			}
			if _, err := os.Stat(candidate); err != nil {
				continue
			}
			ref, err := r.validate(ctx, candidate, "well_known")
			r.record(ctx, "well_known", ref, err, time.Since(start))
			if err == nil {
				return ref, nil
			}
		}
	}
	return nil, types.ErrBinaryUnavailable
}

func (r *Resolver) tryDiscoveryLog(ctx context.Context) (*BinaryRef, error) {
	if r.recorder == nil {
		return nil, types.ErrBinaryUnavailable
	}
	start := time.Now()
	path, ok, err := r.recorder.LastSuccessfulDiscovery(ctx)
	if err != nil || !ok {
		return nil, types.ErrBinaryUnavailable
	}
	ref, verr := r.validate(ctx, path, "discovery_log")
	r.record(ctx, "discovery_log", ref, verr, time.Since(start))
	if verr != nil {
		return nil, types.ErrBinaryUnavailable
	}
	return ref, nil
}

// validate checks a candidate is executable and, if a version
// constraint is configured, that its reported version satisfies it.
func (r *Resolver) validate(ctx context.Context, path, via string) (*BinaryRef, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("binaryresolver: stat %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("binaryresolver: %s is a directory", path)
	}
	if runtime.GOOS != "windows" && info.Mode()&0111 == 0 {
		return nil, fmt.Errorf("binaryresolver: %s is not executable", path)
	}

	probeCtx, cancel := context.WithTimeout(ctx, r.probeTO)
	defer cancel()

	out, err := exec.CommandContext(probeCtx, path, r.versionArg).CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("binaryresolver: probing %s: %w", path, err)
	}

	ver, err := parseVersion(string(out))
	if err != nil {
		return nil, fmt.Errorf("binaryresolver: could not parse version from %s: %w", path, err)
	}

	if r.cfg.VersionConstraint != "" {
		ok, err := satisfiesConstraint(ver, r.cfg.VersionConstraint)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("binaryresolver: %s version %s does not satisfy %q", path, ver, r.cfg.VersionConstraint)
		}
	}

	return &BinaryRef{
		Path:        path,
		Version:     ver.String(),
		ResolvedVia: via,
		ResolvedAt:  time.Now().Unix(),
	}, nil
}

func (r *Resolver) record(ctx context.Context, method string, ref *BinaryRef, err error, d time.Duration) {
	if r.recorder == nil {
		return
	}
	outcome := "found"
	detail := ""
	if ref != nil {
		detail = ref.Path
	}
	if err != nil {
		outcome = "failed"
		detail = err.Error()
	}
	if rerr := r.recorder.RecordDiscovery(ctx, method, outcome, detail, d); rerr != nil {
		logging.Warn().Err(rerr).Msg("binaryresolver: failed to persist discovery log entry")
	}
}

// Suggestions lists the candidate paths the resolver would have probed,
// for the RPC surface's `find_binary` not_found response (spec §6).
func (r *Resolver) Suggestions() []string {
	names := r.cfg.Names
	if len(names) == 0 {
		names = []string{"claude", "claude-code"}
	}
	var out []string
	for _, root := range wellKnownRoots() {
		for _, name := range names {
			candidate := filepath.Join(root, name)
			if runtime.GOOS == "windows" {
				candidate += ".exe"
			}
			out = append(out, candidate)
		}
	}
	return out
}

func wellKnownRoots() []string {
	home := os.Getenv("HOME")
	switch runtime.GOOS {
	case "windows":
		return []string{
			filepath.Join(os.Getenv("LOCALAPPDATA"), "Programs", "claude"),
		}
	case "darwin":
		return []string{
			"/usr/local/bin",
			"/opt/homebrew/bin",
			filepath.Join(home, ".local", "bin"),
			filepath.Join(home, ".claude", "local"),
		}
	default:
		return []string{
			"/usr/local/bin",
			filepath.Join(home, ".local", "bin"),
			filepath.Join(home, ".claude", "local"),
		}
	}
}
