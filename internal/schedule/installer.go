package schedule

import (
	"context"

	"github.com/rs/zerolog"
)

// Installer composes a primary job store with an optional secondary
// catch-up store. The secondary is best-effort: its absence degrades to
// single-backend scheduling with a warning, never a failure.
type Installer struct {
	primary   Backend
	secondary Backend
	logger    zerolog.Logger
}

// NewInstaller creates an Installer. secondary may be nil.
func NewInstaller(primary, secondary Backend, logger zerolog.Logger) *Installer {
	return &Installer{
		primary:   primary,
		secondary: secondary,
		logger:    logger.With().Str("component", "installer").Logger(),
	}
}

// BackendResult is one backend's contribution to an install, remove or
// status operation.
type BackendResult struct {
	Backend string
	Outcome InstallOutcome
	Removed bool
	State   State
	Warning string
}

// Install registers the schedule in the primary store and, when the
// secondary store is available, mirrors it there so a missed run executes
// on next availability. Installing twice never creates duplicates.
func (in *Installer) Install(ctx context.Context, cfg Config) ([]BackendResult, error) {
	outcome, err := in.primary.Install(ctx, cfg)
	if err != nil {
		return nil, err
	}
	results := []BackendResult{{Backend: in.primary.Name(), Outcome: outcome}}

	if in.secondary == nil {
		return results, nil
	}

	if !in.secondary.Available() {
		warning := in.secondary.Name() + " not available; missed runs will not be caught up"
		in.logger.Warn().Str("backend", in.secondary.Name()).Msg("secondary scheduler unavailable")
		results = append(results, BackendResult{Backend: in.secondary.Name(), Warning: warning})
		return results, nil
	}

	secOutcome, err := in.secondary.Install(ctx, cfg)
	if err != nil {
		in.logger.Warn().Err(err).Str("backend", in.secondary.Name()).Msg("secondary install failed")
		results = append(results, BackendResult{Backend: in.secondary.Name(), Warning: err.Error()})
		return results, nil
	}

	results = append(results, BackendResult{Backend: in.secondary.Name(), Outcome: secOutcome})
	return results, nil
}

// Remove deletes the marked entries from every store that has them,
// preserving unrelated entries. A store with nothing to remove reports
// Removed=false rather than erroring.
func (in *Installer) Remove(ctx context.Context) ([]BackendResult, error) {
	removed, err := in.primary.Remove(ctx)
	if err != nil {
		return nil, err
	}
	results := []BackendResult{{Backend: in.primary.Name(), Removed: removed}}

	if in.secondary == nil {
		return results, nil
	}

	secRemoved, err := in.secondary.Remove(ctx)
	if err != nil {
		in.logger.Warn().Err(err).Str("backend", in.secondary.Name()).Msg("secondary remove failed")
		results = append(results, BackendResult{Backend: in.secondary.Name(), Warning: err.Error()})
		return results, nil
	}

	results = append(results, BackendResult{Backend: in.secondary.Name(), Removed: secRemoved})
	return results, nil
}

// Status reports each store's state without mutating anything.
func (in *Installer) Status(ctx context.Context) ([]BackendResult, error) {
	state, err := in.primary.Status(ctx)
	if err != nil {
		return nil, err
	}
	results := []BackendResult{{Backend: in.primary.Name(), State: state}}

	if in.secondary == nil {
		return results, nil
	}

	secState, err := in.secondary.Status(ctx)
	if err != nil {
		results = append(results, BackendResult{Backend: in.secondary.Name(), Warning: err.Error()})
		return results, nil
	}

	results = append(results, BackendResult{Backend: in.secondary.Name(), State: secState})
	return results, nil
}
