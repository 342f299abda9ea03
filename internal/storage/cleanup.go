package storage

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/samber/lo"
)

// Archiver copies a file to cold storage before retention removes it.
type Archiver interface {
	Archive(ctx context.Context, key, localPath string) error
}

// CleanupOptions configures a retention pass.
type CleanupOptions struct {
	// Archiver, when set, must succeed before a file is deleted.
	Archiver Archiver
	Logger   *slog.Logger
	Now      func() time.Time
}

// Cleanup deletes files under root last modified before now - retentionDays,
// then removes directories left empty, deepest first. The root and the
// top-level layout directories are kept. Individual failures are logged and
// skipped; the pass always covers the whole tree unless ctx is cancelled.
func Cleanup(ctx context.Context, root string, retentionDays int, opts CleanupOptions) (int, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}
	cutoff := now().AddDate(0, 0, -retentionDays)
	logger = logger.With("root", root, "retention_days", retentionDays)

	root = filepath.Clean(root)
	if _, err := os.Stat(root); err != nil {
		return 0, err
	}

	var dirs []string
	removed := 0
	walkErr := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			logger.Warn("cleanup cannot read path", "path", p, "error", err)
			if d != nil && d.IsDir() && p != root {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if p != root {
				dirs = append(dirs, p)
			}
			return nil
		}

		info, err := d.Info()
		if err != nil {
			logger.Warn("cleanup cannot stat file", "path", p, "error", err)
			return nil
		}
		if !info.ModTime().Before(cutoff) {
			return nil
		}

		if opts.Archiver != nil {
			key := filepath.ToSlash(strings.TrimPrefix(p, root+string(filepath.Separator)))
			if err := opts.Archiver.Archive(ctx, key, p); err != nil {
				logger.Warn("cold storage copy failed, keeping file", "path", p, "error", err)
				return nil
			}
		}

		if err := os.Remove(p); err != nil {
			logger.Warn("cleanup failed to remove file", "path", p, "error", err)
			return nil
		}
		removed++
		return nil
	})
	if walkErr != nil {
		return removed, walkErr
	}

	keep := lo.SliceToMap(LayoutDirs, func(dir string) (string, bool) {
		return filepath.Join(root, dir), true
	})

	// Deepest first so parents see their children already gone.
	sort.Slice(dirs, func(i, j int) bool {
		return strings.Count(dirs[i], string(filepath.Separator)) > strings.Count(dirs[j], string(filepath.Separator))
	})
	dirsRemoved := 0
	for _, dir := range dirs {
		if keep[dir] {
			continue
		}
		entries, err := os.ReadDir(dir)
		if err != nil {
			logger.Warn("cleanup cannot read directory", "path", dir, "error", err)
			continue
		}
		if len(entries) > 0 {
			continue
		}
		if err := os.Remove(dir); err != nil {
			logger.Warn("cleanup failed to remove directory", "path", dir, "error", err)
			continue
		}
		dirsRemoved++
	}

	logger.Info("storage cleanup finished", "files_removed", removed, "dirs_removed", dirsRemoved)
	return removed, nil
}
