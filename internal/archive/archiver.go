// Package archive assembles dotfile backups: it stages resolved items into
// an isolated directory, adds the restore script and manifest README, and
// packs the result into a compressed tar container.
package archive

import (
	"archive/tar"
	"context"
	"fmt"
	"io"
	"io/fs"
	"iter"
	"os"
	"os/user"
	"path/filepath"
	"strings"
	"time"

	"github.com/dotkeep/dotkeep/internal/manifest"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Job describes one backup invocation. It is validated before any
// filesystem mutation and never mutates the source tree.
type Job struct {
	ID         uuid.UUID
	OutputName string
	Codec      Codec
	Level      int
	Push       bool
	Repository string
}

// NewJob creates a job with the default output name and compression
// settings. The name embeds a timestamp, making it unique per invocation.
func NewJob() Job {
	return Job{
		ID:         uuid.New(),
		OutputName: "dotfiles-backup-" + time.Now().Format("20060102-150405"),
		Codec:      CodecGzip,
		Level:      DefaultLevel,
	}
}

// Validate checks the job configuration. A failure here is a
// ConfigurationError and happens before any staging area exists.
func (j Job) Validate() error {
	if j.OutputName == "" {
		return &ConfigurationError{Field: "output name", Msg: "must not be empty"}
	}
	if strings.ContainsAny(j.OutputName, "/\\") {
		return &ConfigurationError{Field: "output name", Msg: "must not contain path separators"}
	}
	if _, err := ParseCodec(string(j.Codec)); err != nil {
		return err
	}
	return ValidateLevel(j.Level)
}

// ArchiveName returns the container filename for the job.
func (j Job) ArchiveName() string {
	return j.OutputName + "." + j.Codec.Extension()
}

// Result is the outcome of a successful assembly.
type Result struct {
	ArchivePath string
	Manifest    *manifest.Manifest
}

// Archiver assembles archives into a destination directory.
type Archiver struct {
	destDir string
	logger  zerolog.Logger
}

// New creates an Archiver writing archives into destDir.
func New(destDir string, logger zerolog.Logger) *Archiver {
	return &Archiver{
		destDir: destDir,
		logger:  logger.With().Str("component", "archiver").Logger(),
	}
}

// Assemble stages the given items, writes the synthetic artifacts, and
// packs the staging area into a compressed container. Per-item failures
// are recorded in the manifest and never abort the run; the staging area
// is removed on every exit path after it is created.
func (a *Archiver) Assemble(ctx context.Context, job Job, items iter.Seq[manifest.ResolvedItem]) (*Result, error) {
	if err := job.Validate(); err != nil {
		return nil, err
	}

	staging, err := newStagingArea(a.logger)
	if err != nil {
		return nil, &PackagingError{Op: "create staging area", Err: err}
	}
	defer staging.Remove()

	m := manifest.New(job.ID, hostname(), username())

	for item := range items {
		if err := ctx.Err(); err != nil {
			return nil, &PackagingError{Op: "stage items", Err: err}
		}
		if item.Outcome == manifest.OutcomeIncluded {
			outcome, detail := staging.CopyItem(item)
			item.Outcome = outcome
			item.Detail = detail
		}
		m.Record(item)
	}

	included, partial, missing := m.Counts()
	a.logger.Info().
		Str("job_id", job.ID.String()).
		Int("included", included).
		Int("partial", partial).
		Int("missing", missing).
		Msg("items staged")

	if err := writeRestoreScript(staging.Root()); err != nil {
		return nil, &PackagingError{Op: "restore script", Err: err}
	}
	if err := writeReadme(staging.Root(), m); err != nil {
		return nil, &PackagingError{Op: "readme", Err: err}
	}

	archivePath := filepath.Join(a.destDir, job.ArchiveName())
	if err := a.pack(staging.Root(), archivePath, job.Codec, job.Level); err != nil {
		// Leave no half-written container behind.
		os.Remove(archivePath)
		return nil, &PackagingError{Op: "pack", Err: err}
	}

	abs, err := filepath.Abs(archivePath)
	if err != nil {
		abs = archivePath
	}

	a.logger.Info().
		Str("archive", abs).
		Str("codec", string(job.Codec)).
		Int("level", job.Level).
		Msg("archive assembled")

	return &Result{ArchivePath: abs, Manifest: m}, nil
}

// pack writes the staging tree into a compressed tar container. Entries
// are named by their path relative to the staging root; nothing outside
// the staging area is ever dereferenced.
func (a *Archiver) pack(stagingRoot, archivePath string, codec Codec, level int) error {
	out, err := os.Create(archivePath)
	if err != nil {
		return fmt.Errorf("create container: %w", err)
	}
	defer out.Close()

	cw, err := codec.NewWriter(out, level)
	if err != nil {
		return err
	}

	tw := tar.NewWriter(cw)

	walkErr := filepath.WalkDir(stagingRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(stagingRoot, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if strings.HasPrefix(rel, "..") {
			return fmt.Errorf("entry %q escapes the staging area", rel)
		}

		info, err := d.Info()
		if err != nil {
			return err
		}

		link := ""
		if info.Mode()&fs.ModeSymlink != 0 {
			if link, err = os.Readlink(path); err != nil {
				return err
			}
		}

		header, err := tar.FileInfoHeader(info, link)
		if err != nil {
			return err
		}
		header.Name = rel
		if info.IsDir() {
			header.Name += "/"
		}

		if err := tw.WriteHeader(header); err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}

		f, err := os.Open(path)
		if err != nil {
			return err
		}
		if _, err := io.Copy(tw, f); err != nil {
			f.Close()
			return err
		}
		return f.Close()
	})
	if walkErr != nil {
		tw.Close()
		cw.Close()
		return walkErr
	}

	if err := tw.Close(); err != nil {
		return fmt.Errorf("finalize tar: %w", err)
	}
	if err := cw.Close(); err != nil {
		return fmt.Errorf("finalize compression: %w", err)
	}
	return out.Close()
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return h
}

func username() string {
	u, err := user.Current()
	if err != nil {
		return "unknown"
	}
	return u.Username
}
