// Package diagnostics forwards unclassified transform failures to external
// error trackers.
package diagnostics

import (
	"log/slog"
	"maps"
	"slices"

	"github.com/artpar/sdlbuilder/internal/core/transform"
	"github.com/stvp/rollbar"
)

// Config selects the reporters to enable.
type Config struct {
	RollbarToken string
	Environment  string
	CodeVersion  string
}

// =============================================================================
// Multi
// =============================================================================

// Multi reports to every reporter in order.
type Multi []transform.Reporter

func (m Multi) Report(err error, extras map[string]string) {
	for _, r := range m {
		r.Report(err, extras)
	}
}

// New returns a reporter fanning out to base and, when a token is set, to
// Rollbar. The returned closer flushes pending reports.
func New(cfg Config, logger *slog.Logger, base ...transform.Reporter) (transform.Reporter, func()) {
	reporters := Multi(slices.Clone(base))
	closer := func() {}

	if cfg.RollbarToken != "" {
		rb := NewRollbar(cfg)
		reporters = append(reporters, rb)
		closer = rb.Close
		logger.Info("rollbar reporting enabled", "environment", cfg.Environment)
	}
	return reporters, closer
}

// =============================================================================
// Rollbar
// =============================================================================

// Rollbar sends failures to Rollbar. The rollbar client is package global:
// create at most one per process.
type Rollbar struct{}

// NewRollbar configures the global rollbar client.
func NewRollbar(cfg Config) *Rollbar {
	rollbar.Token = cfg.RollbarToken
	if cfg.Environment != "" {
		rollbar.Environment = cfg.Environment
	}
	rollbar.CodeVersion = cfg.CodeVersion
	return &Rollbar{}
}

// Report queues err; it never blocks on the network.
func (r *Rollbar) Report(err error, extras map[string]string) {
	fields := make([]*rollbar.Field, 0, len(extras))
	for _, k := range slices.Sorted(maps.Keys(extras)) {
		fields = append(fields, &rollbar.Field{Name: k, Data: extras[k]})
	}
	rollbar.Error(rollbar.ERR, err, fields...)
}

// Close waits for queued reports to be sent.
func (r *Rollbar) Close() {
	rollbar.Wait()
}
