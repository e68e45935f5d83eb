package main

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"time"

	"github.com/gofrs/flock"
	"github.com/thiremani/lanejit/compiler"
)

// irKeyLen is the length of an IR entry directory name: a prefix of the
// hex sha256 in irHash.
const irKeyLen = 12

// isIRKey reports whether name is an IR entry directory.
func isIRKey(name string) bool {
	if len(name) != irKeyLen {
		return false
	}
	for _, r := range name {
		if !('0' <= r && r <= '9' || 'a' <= r && r <= 'f') {
			return false
		}
	}
	return true
}

// irHash hashes everything that affects the emitted IR: the manifest bytes,
// the lowering options and the tool version.
// Returns the entry key (directory name) and the full hash (for collision check).
func irHash(manifest []byte, opts compiler.Options) (key, fullHash string) {
	h := sha256.New()
	h.Write([]byte(Version))
	h.Write([]byte(runtime.GOOS))
	h.Write([]byte(runtime.GOARCH))
	fmt.Fprintf(h, "target=%s fold=%t\n", opts.Target, opts.FoldExtents)
	h.Write(manifest)
	fullHash = hex.EncodeToString(h.Sum(nil))
	return fullHash[:irKeyLen], fullHash
}

// irPolicy decides which IR entries a sweep removes. Unlike a toolchain
// runtime, IR piles up one entry per manifest and option set, so entries
// are ranked by last use and abandoned writes expire on their own.
type irPolicy struct {
	Keep   int           // most recently used complete entries always kept
	MaxAge time.Duration // entries past Keep unused this long are removed
	Stale  time.Duration // entries without a .hash marker this old are removed
}

var defaultIRPolicy = irPolicy{Keep: 32, MaxAge: 14 * 24 * time.Hour, Stale: time.Hour}

type irEntry struct {
	key      string
	lastUsed time.Time
	complete bool
}

// scanIR lists the entries under irDir. A complete entry was last used when
// its .hash marker was last touched; an incomplete one when its directory
// was last modified.
func scanIR(irDir string) []irEntry {
	dirents, err := os.ReadDir(irDir)
	if err != nil {
		return nil
	}
	var entries []irEntry
	for _, d := range dirents {
		if !d.IsDir() || !isIRKey(d.Name()) {
			continue
		}
		if info, err := os.Stat(filepath.Join(irDir, d.Name(), ".hash")); err == nil {
			entries = append(entries, irEntry{d.Name(), info.ModTime(), true})
			continue
		}
		if info, err := d.Info(); err == nil {
			entries = append(entries, irEntry{d.Name(), info.ModTime(), false})
		}
	}
	return entries
}

// sweep returns the keys of the entries p removes at now.
func (p irPolicy) sweep(entries []irEntry, now time.Time) []string {
	var drop []string
	var complete []irEntry
	for _, e := range entries {
		if !e.complete {
			if now.Sub(e.lastUsed) > p.Stale {
				drop = append(drop, e.key)
			}
			continue
		}
		complete = append(complete, e)
	}

	// most recently used first
	slices.SortFunc(complete, func(a, b irEntry) int { return b.lastUsed.Compare(a.lastUsed) })
	for i, e := range complete {
		if i >= p.Keep && now.Sub(e.lastUsed) > p.MaxAge {
			drop = append(drop, e.key)
		}
	}
	return drop
}

// cleanup removes what sweep selects. The caller holds the IR lock.
func (p irPolicy) cleanup(irDir string, now time.Time) {
	for _, key := range p.sweep(scanIR(irDir), now) {
		path := filepath.Join(irDir, key)
		if err := os.RemoveAll(path); err != nil {
			slog.Warn("failed to remove old IR", "path", path, "error", err)
			continue
		}
		slog.Debug("removed old IR", "path", path)
	}
}

// cachedIR returns the path of the IR for kernel, emitting it with emit
// only when no complete copy for the same hash exists. A file lock ensures
// concurrent processes see either the finished IR or build it themselves.
func cachedIR(cacheDir, kernel string, manifest []byte, opts compiler.Options, emit func() (string, error)) (path string, cached bool, err error) {
	irDir := filepath.Join(cacheDir, IR_DIR)
	if err := os.MkdirAll(irDir, 0755); err != nil {
		return "", false, fmt.Errorf("create IR dir: %w", err)
	}

	lock := flock.New(filepath.Join(irDir, ".lock"))
	if err := lock.Lock(); err != nil {
		return "", false, fmt.Errorf("acquire IR lock: %w", err)
	}
	defer lock.Unlock()

	key, fullHash := irHash(manifest, opts)
	dir := filepath.Join(irDir, key)
	hashFile := filepath.Join(dir, ".hash")
	path = filepath.Join(dir, kernel+IR_SUFFIX)

	if _, err := os.Stat(path); err == nil {
		// Verify full hash to detect collisions
		if stored, err := os.ReadFile(hashFile); err == nil && string(stored) == fullHash {
			now := time.Now()
			if err := os.Chtimes(hashFile, now, now); err != nil {
				slog.Warn("failed to mark IR used", "path", hashFile, "error", err)
			}
			slog.Debug("using cached IR", "path", path)
			return path, true, nil
		}
		slog.Info("IR hash mismatch, rebuilding", "dir", dir)
		os.RemoveAll(dir)
	}

	defaultIRPolicy.cleanup(irDir, time.Now())

	ir, err := emit()
	if err != nil {
		return "", false, err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", false, fmt.Errorf("create IR dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(ir), 0644); err != nil {
		return "", false, fmt.Errorf("write IR: %w", err)
	}
	// Store full hash last (acts as completion marker)
	if err := os.WriteFile(hashFile, []byte(fullHash), 0644); err != nil {
		return "", false, fmt.Errorf("write hash file: %w", err)
	}
	slog.Debug("cached IR", "path", path)
	return path, false, nil
}
