package archive

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/dotkeep/dotkeep/internal/manifest"
	"github.com/rs/zerolog"
)

// StagingArea is the exclusively-owned temporary directory a backup job
// copies items into before packing. It is removed on every exit path of
// the job that created it.
type StagingArea struct {
	dir    string
	logger zerolog.Logger
}

func newStagingArea(logger zerolog.Logger) (*StagingArea, error) {
	dir, err := os.MkdirTemp("", "dotkeep-staging-")
	if err != nil {
		return nil, fmt.Errorf("create staging area: %w", err)
	}
	return &StagingArea{
		dir:    dir,
		logger: logger.With().Str("component", "staging").Logger(),
	}, nil
}

// Root returns the staging directory path.
func (s *StagingArea) Root() string { return s.dir }

// Remove deletes the staging directory and everything under it.
func (s *StagingArea) Remove() {
	if err := os.RemoveAll(s.dir); err != nil {
		s.logger.Warn().Err(err).Str("dir", s.dir).Msg("failed to remove staging area")
	}
}

// CopyItem copies a resolved item's source into the staging area at its
// relative path. Directory trees are copied best-effort: a failing
// sub-entry downgrades the outcome to PartialCopy instead of aborting.
func (s *StagingArea) CopyItem(item manifest.ResolvedItem) (manifest.Outcome, string) {
	dest := filepath.Join(s.dir, filepath.FromSlash(item.RelPath))

	info, err := os.Lstat(item.SourcePath)
	if err != nil {
		return manifest.OutcomeMissing, err.Error()
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return manifest.OutcomeMissing, err.Error()
	}

	switch {
	case info.IsDir():
		return s.copyTree(item.SourcePath, dest)
	case info.Mode()&fs.ModeSymlink != 0:
		if err := copySymlink(item.SourcePath, dest); err != nil {
			return manifest.OutcomeMissing, err.Error()
		}
		return manifest.OutcomeIncluded, ""
	case info.Mode().IsRegular():
		if err := copyFile(item.SourcePath, dest, info.Mode().Perm()); err != nil {
			return manifest.OutcomeMissing, err.Error()
		}
		return manifest.OutcomeIncluded, ""
	default:
		return manifest.OutcomeMissing, fmt.Sprintf("unsupported file type %s", info.Mode().Type())
	}
}

// copyTree copies a directory recursively, recording failures instead of
// propagating them. Dotfile trees routinely contain broken symlinks and
// unreadable history files.
func (s *StagingArea) copyTree(src, dest string) (manifest.Outcome, string) {
	var firstErr string
	failures := 0

	walkErr := filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			failures++
			if firstErr == "" {
				firstErr = err.Error()
			}
			s.logger.Debug().Err(err).Str("path", path).Msg("skipping unreadable entry")
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}

		rel, err := filepath.Rel(src, path)
		if err != nil {
			failures++
			if firstErr == "" {
				firstErr = err.Error()
			}
			return nil
		}
		target := filepath.Join(dest, rel)

		var copyErr error
		switch {
		case d.IsDir():
			copyErr = os.MkdirAll(target, 0o755)
		case d.Type()&fs.ModeSymlink != 0:
			copyErr = copySymlink(path, target)
		case d.Type().IsRegular():
			info, infoErr := d.Info()
			if infoErr != nil {
				copyErr = infoErr
			} else {
				copyErr = copyFile(path, target, info.Mode().Perm())
			}
		default:
			// Sockets, fifos and devices are silently skipped.
			return nil
		}

		if copyErr != nil {
			failures++
			if firstErr == "" {
				firstErr = copyErr.Error()
			}
			s.logger.Debug().Err(copyErr).Str("path", path).Msg("sub-entry copy failed")
			if d.IsDir() {
				return fs.SkipDir
			}
		}
		return nil
	})

	if walkErr != nil {
		return manifest.OutcomeMissing, walkErr.Error()
	}
	if failures > 0 {
		return manifest.OutcomePartialCopy, fmt.Sprintf("%d entries skipped: %s", failures, firstErr)
	}
	return manifest.OutcomeIncluded, ""
}

func copyFile(src, dest string, perm fs.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func copySymlink(src, dest string) error {
	target, err := os.Readlink(src)
	if err != nil {
		return err
	}
	return os.Symlink(target, dest)
}
