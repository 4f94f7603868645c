// Package resolve maps configured item specs to concrete filesystem entries.
package resolve

import (
	"iter"
	"os"
	"path"
	"path/filepath"
	"sort"

	"github.com/dotkeep/dotkeep/internal/manifest"
	"github.com/rs/zerolog"
)

// Resolver resolves item specs against a source root. Resolution is a pure
// read-only scan: it never fails the run for a single unreadable entry and
// re-running it against an unchanged tree yields the same sequence.
type Resolver struct {
	root   string
	logger zerolog.Logger
}

// New creates a Resolver for the given source root.
func New(root string, logger zerolog.Logger) *Resolver {
	return &Resolver{
		root:   root,
		logger: logger.With().Str("component", "resolver").Logger(),
	}
}

// Resolve returns a lazy sequence of resolved items for the given specs.
// Literal specs yield one entry each; wildcard specs expand a single
// directory level and yield one entry per matching regular file.
func (r *Resolver) Resolve(specs []manifest.ItemSpec) iter.Seq[manifest.ResolvedItem] {
	return func(yield func(manifest.ResolvedItem) bool) {
		for _, spec := range specs {
			if spec.Wildcard {
				for _, item := range r.expandWildcard(spec) {
					if !yield(item) {
						return
					}
				}
				continue
			}
			if !yield(r.resolveLiteral(spec)) {
				return
			}
		}
	}
}

func (r *Resolver) resolveLiteral(spec manifest.ItemSpec) manifest.ResolvedItem {
	item := manifest.ResolvedItem{
		Spec:       spec,
		RelPath:    spec.Path,
		SourcePath: filepath.Join(r.root, filepath.FromSlash(spec.Path)),
	}

	info, err := os.Lstat(item.SourcePath)
	switch {
	case err == nil:
		item.Outcome = manifest.OutcomeIncluded
		r.logger.Debug().Str("path", spec.Path).Bool("dir", info.IsDir()).Msg("item resolved")
	case os.IsNotExist(err):
		item.Outcome = manifest.OutcomeMissing
		item.Detail = "not present"
	default:
		item.Outcome = manifest.OutcomeMissing
		item.Detail = err.Error()
		r.logger.Debug().Err(err).Str("path", spec.Path).Msg("item unreadable")
	}
	return item
}

// expandWildcard lists the pattern's parent directory and glob-matches the
// base name. It never recurses and never matches directories.
func (r *Resolver) expandWildcard(spec manifest.ItemSpec) []manifest.ResolvedItem {
	parent := path.Dir(spec.Path)
	pattern := path.Base(spec.Path)
	parentAbs := filepath.Join(r.root, filepath.FromSlash(parent))

	entries, err := os.ReadDir(parentAbs)
	if err != nil {
		if os.IsNotExist(err) {
			// An absent parent directory produces no entries, like an
			// absent literal target.
			return nil
		}
		return []manifest.ResolvedItem{{
			Spec:       spec,
			RelPath:    spec.Path,
			SourcePath: parentAbs,
			Outcome:    manifest.OutcomeMissing,
			Detail:     err.Error(),
		}}
	}

	var items []manifest.ResolvedItem
	for _, entry := range entries {
		matched, err := path.Match(pattern, entry.Name())
		if err != nil || !matched {
			continue
		}
		if !entry.Type().IsRegular() {
			continue
		}
		rel := path.Join(parent, entry.Name())
		items = append(items, manifest.ResolvedItem{
			Spec:       spec,
			RelPath:    rel,
			SourcePath: filepath.Join(parentAbs, entry.Name()),
			Outcome:    manifest.OutcomeIncluded,
		})
	}

	sort.SliceStable(items, func(i, j int) bool { return items[i].RelPath < items[j].RelPath })
	r.logger.Debug().Str("pattern", spec.Path).Int("matches", len(items)).Msg("wildcard expanded")
	return items
}
