package usecase

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"DigestScheduler/internal/ports"
)

// DueEvaluator decides which users are due for an update in a cycle.
type DueEvaluator struct {
	store    ports.DueRecordStore
	excluded map[string]struct{}
	logger   *slog.Logger
}

// NewDueEvaluator wires the record store; excluded users are never due.
func NewDueEvaluator(store ports.DueRecordStore, excluded []string, logger *slog.Logger) *DueEvaluator {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	set := make(map[string]struct{}, len(excluded))
	for _, id := range excluded {
		if id = strings.TrimSpace(id); id != "" {
			set[id] = struct{}{}
		}
	}
	return &DueEvaluator{store: store, excluded: set, logger: logger}
}

// DueSet is the result of one evaluation.
type DueSet struct {
	UserIDs []string
	Checked int
}

// ComputeDueUsers returns the due user IDs, sorted and without duplicates.
func (e *DueEvaluator) ComputeDueUsers(ctx context.Context, now time.Time) ([]string, error) {
	set, err := e.Evaluate(ctx, now)
	return set.UserIDs, err
}

// Evaluate reads one record per candidate. Per-user read failures exclude that
// user and are logged; only a failure to list candidates is returned.
func (e *DueEvaluator) Evaluate(ctx context.Context, now time.Time) (DueSet, error) {
	if e.store == nil {
		return DueSet{}, errors.New("due record store is not configured")
	}

	candidates, err := e.store.CandidateUsers(ctx)
	if err != nil {
		return DueSet{}, errors.Wrap(err, "list candidate users")
	}

	seen := make(map[string]struct{}, len(candidates))
	due := make([]string, 0)
	checked := 0
	for _, id := range candidates {
		if _, dup := seen[id]; dup || id == "" {
			continue
		}
		seen[id] = struct{}{}
		checked++

		if _, skip := e.excluded[id]; skip {
			e.logger.Debug("user excluded", "user_id", id)
			continue
		}

		rec, err := e.store.DueRecord(ctx, id)
		if err != nil {
			e.logger.Warn("due record unavailable", "user_id", id, "error", err)
			continue
		}
		if rec.IsDue(now) {
			due = append(due, id)
		}
	}

	sort.Strings(due)
	e.logger.Debug("due set computed", "checked", checked, "due", len(due))
	return DueSet{UserIDs: due, Checked: checked}, nil
}
