package publish

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dotkeep/dotkeep/internal/archive"
	"github.com/rs/zerolog"
)

// DefaultCap is the maximum number of archives retained in the remote
// store, inclusive of the archive being published.
const DefaultCap = 5

// PublishError reports a failure while publishing. It is non-fatal to the
// overall run: the local archive stays valid and usable.
type PublishError struct {
	Op  string
	Err error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish: %s: %v", e.Op, e.Err)
}

func (e *PublishError) Unwrap() error { return e.Err }

// remoteArtifact is a prior archive in the remote store, read fresh each
// rotation.
type remoteArtifact struct {
	name    string
	modTime time.Time
}

// Result describes a completed publish.
type Result struct {
	ArchiveName string
	Rotated     []string
	Retained    int
}

// Rotator publishes archives to a git remote and enforces the retention cap.
type Rotator struct {
	git     *Git
	cap     int
	timeout time.Duration
	logger  zerolog.Logger
}

// NewRotator creates a Rotator. A cap below 1 falls back to DefaultCap.
func NewRotator(git *Git, retainCap int, logger zerolog.Logger) *Rotator {
	if retainCap < 1 {
		retainCap = DefaultCap
	}
	return &Rotator{
		git:    git,
		cap:    retainCap,
		logger: logger.With().Str("component", "rotator").Logger(),
	}
}

// SetTimeout bounds each publish operation. Zero means no timeout.
func (r *Rotator) SetTimeout(d time.Duration) { r.timeout = d }

// Publish clones the remote into an ephemeral workspace, rotates out the
// oldest archives so that at most cap remain (counting the new one),
// commits and pushes. The workspace is removed unconditionally. Publishing
// is strictly additive with respect to the local archive: any failure is
// reported as a PublishError and the archive on disk is untouched.
func (r *Rotator) Publish(ctx context.Context, archivePath, remoteURL string) (*Result, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	workspace, err := os.MkdirTemp("", "dotkeep-publish-")
	if err != nil {
		return nil, &PublishError{Op: "create workspace", Err: err}
	}
	defer os.RemoveAll(workspace)

	cloneDir := filepath.Join(workspace, "store")
	if err := r.git.Clone(ctx, remoteURL, cloneDir); err != nil {
		return nil, &PublishError{Op: "clone", Err: err}
	}

	archiveName := filepath.Base(archivePath)
	if err := copyInto(archivePath, filepath.Join(cloneDir, archiveName)); err != nil {
		return nil, &PublishError{Op: "copy archive", Err: err}
	}

	artifacts, err := listArtifacts(cloneDir)
	if err != nil {
		return nil, &PublishError{Op: "enumerate artifacts", Err: err}
	}

	// Oldest first; names break modification-time ties so deletion order
	// is reproducible within a run.
	sort.SliceStable(artifacts, func(i, j int) bool {
		if artifacts[i].modTime.Equal(artifacts[j].modTime) {
			return artifacts[i].name < artifacts[j].name
		}
		return artifacts[i].modTime.Before(artifacts[j].modTime)
	})

	var rotated []string
	if excess := len(artifacts) - r.cap; excess > 0 {
		for _, old := range artifacts[:excess] {
			if old.name == archiveName {
				continue
			}
			rotated = append(rotated, old.name)
		}
		if len(rotated) > 0 {
			if err := r.git.Remove(ctx, cloneDir, rotated...); err != nil {
				return nil, &PublishError{Op: "rotate", Err: err}
			}
		}
	}

	if err := r.git.Add(ctx, cloneDir, archiveName); err != nil {
		return nil, &PublishError{Op: "stage archive", Err: err}
	}

	message := fmt.Sprintf("Add backup %s", archiveName)
	if len(rotated) > 0 {
		message = fmt.Sprintf("Add backup %s, rotate out %d old archive(s)", archiveName, len(rotated))
	}
	if err := r.git.Commit(ctx, cloneDir, message); err != nil {
		return nil, &PublishError{Op: "commit", Err: err}
	}

	if err := r.git.Push(ctx, cloneDir); err != nil {
		return nil, &PublishError{Op: "push", Err: err}
	}

	retained := len(artifacts) - len(rotated)
	r.logger.Info().
		Str("archive", archiveName).
		Int("rotated", len(rotated)).
		Int("retained", retained).
		Msg("archive published")

	return &Result{
		ArchiveName: archiveName,
		Rotated:     rotated,
		Retained:    retained,
	}, nil
}

// listArtifacts enumerates archives with recognized extensions in the
// workspace root.
func listArtifacts(dir string) ([]remoteArtifact, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var artifacts []remoteArtifact
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if !recognizedArchive(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return nil, err
		}
		artifacts = append(artifacts, remoteArtifact{
			name:    entry.Name(),
			modTime: info.ModTime(),
		})
	}
	return artifacts, nil
}

func recognizedArchive(name string) bool {
	for _, ext := range archive.RecognizedExtensions() {
		if strings.HasSuffix(name, ext) {
			return true
		}
	}
	return false
}

func copyInto(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
