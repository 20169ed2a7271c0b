// Package collection is the filtering service for one record collection: it
// holds the active filter expression, compiles it to backend predicates, runs
// the query asynchronously, and publishes filter/records/status/error as
// reactive signals. Consumers read the signals; they never talk to the
// backend directly.
package collection

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/loomkit/loom"
	"github.com/loomkit/loom/filter"
	"github.com/loomkit/loom/query"
	"github.com/loomkit/loom/services"
)

// Status is the query executor's state.
type Status string

const (
	// StatusIdle: no filter applied, the baseline record set is showing.
	StatusIdle Status = "idle"
	// StatusApplying: a filter change was requested and a query is in flight.
	StatusApplying Status = "applying"
	// StatusApplied: the last requested filter's results are current.
	StatusApplied Status = "applied"
	// StatusFailed: the query failed; the prior record set is retained.
	StatusFailed Status = "failed"
)

// QueryError is published on the Err signal when a backend query fails. The
// consumer decides how to surface it; the service never formats messages for
// display.
type QueryError struct {
	Collection string
	Filter     filter.Expression
	Err        error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("collection %q: query failed: %v", e.Collection, e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }

// Config configures one collection service. Collection, Include, Baseline,
// Fields, and QueryTimeout are serializable; Backend and Logger are
// in-process collaborators attached via services.BindJSON's attach hook.
type Config struct {
	// Collection names the backend collection to query.
	Collection string `json:"collection"`

	// Include lists reference fields the backend expands in results.
	Include []string `json:"include,omitempty"`

	// Baseline is the unfiltered record set, shown whenever no filter is
	// active. It is assumed already available; clearing filters never incurs
	// a backend call.
	Baseline []query.Record `json:"baseline,omitempty"`

	// Fields declares the filterable fields. Nil skips field checks.
	Fields filter.Schema `json:"fields,omitempty"`

	// QueryTimeout bounds each backend query. Zero means no timeout.
	QueryTimeout time.Duration `json:"queryTimeout,omitempty"`

	Backend query.Backend   `json:"-"`
	Logger  *zerolog.Logger `json:"-"`
}

// Definition is the service's identity in a services manager.
var Definition = services.Define[*Service]("collection-filters")

// Implementation binds New as the factory for Definition.
var Implementation = services.Implement(Definition, New)

// snapshot is the service's whole published state. It lives behind a single
// signal so that a transition can never be observed half-applied: one write
// moves filter, records, status, and error together.
type snapshot struct {
	seq     uint64
	filter  filter.Expression
	records []query.Record
	status  Status
	err     error
}

// Service executes filters against a backend and publishes the results.
//
// SetFilter, ApplyFilters, and ClearFilters may be called from any
// goroutine, including from inside effects reacting to the service's own
// signals.
type Service struct {
	cfg Config
	log zerolog.Logger

	state *loom.Signal[*snapshot]

	// Filter is the current normalized filter expression; nil when inactive.
	Filter *loom.Computed[filter.Expression]
	// Records is the current result set: the baseline when idle, the last
	// successful query's results otherwise. Retained unchanged while a query
	// is in flight or after a failure.
	Records *loom.Computed[[]query.Record]
	// Status is the executor state.
	Status *loom.Computed[Status]
	// Err is the last query failure, a *QueryError; nil outside StatusFailed.
	Err *loom.Computed[error]

	mu     sync.Mutex
	cancel context.CancelFunc
}

// New constructs the service with the baseline showing and no filter active.
func New(_ *services.Context, cfg Config) (*Service, error) {
	if cfg.Collection == "" {
		return nil, errors.New("collection: config: collection name is required")
	}
	if cfg.Backend == nil {
		return nil, errors.New("collection: config: backend is required")
	}

	log := zerolog.Nop()
	if cfg.Logger != nil {
		log = cfg.Logger.With().Str("collection", cfg.Collection).Logger()
	}

	s := &Service{cfg: cfg, log: log}

	s.state = loom.NewSignal(&snapshot{
		records: cfg.Baseline,
		status:  StatusIdle,
	})
	s.Filter = loom.NewComputed(func() filter.Expression { return s.state.Read().filter })
	s.Records = loom.NewComputed(func() []query.Record { return s.state.Read().records })
	s.Status = loom.NewComputed(func() Status { return s.state.Read().status })
	s.Err = loom.NewComputed(func() error { return s.state.Read().err })

	loom.OnCleanup(s.abort)

	return s, nil
}

// SetFilter validates and stores expr as the active filter and kicks off the
// matching query. A validation failure rejects the whole call: the stored
// filter, records, and status are untouched. An expression that normalizes
// to "no filter" short-circuits to StatusIdle with the baseline, without a
// backend call.
//
// Calling again while a query is in flight supersedes it: the in-flight
// request is cancelled, and its result is discarded should it arrive anyway.
func (s *Service) SetFilter(expr filter.Expression) error {
	if err := expr.Validate(s.cfg.Fields); err != nil {
		s.log.Debug().Err(err).Msg("filter rejected")
		return err
	}

	s.apply(expr.Normalize())

	return nil
}

// ApplyFilters re-runs the current filter against the backend. This is the
// explicit retry path after a failure; the service never retries on its own.
func (s *Service) ApplyFilters() {
	s.apply(loom.Untrack(s.Filter.Read))
}

// ClearFilters resets to "no filter" and publishes the baseline record set
// synchronously, without waiting for any round trip.
func (s *Service) ClearFilters() {
	s.apply(nil)
}

// HasActiveFilters reports whether the current filter constrains anything.
// It is independent of the Applying/Applied distinction and reactive when
// read inside a computed or effect.
func (s *Service) HasActiveFilters() bool {
	return !s.Filter.Read().IsEmpty()
}

func (s *Service) apply(norm filter.Expression) {
	s.abort()

	if norm.IsEmpty() {
		s.state.Update(func(prev *snapshot) *snapshot {
			if prev.status == StatusIdle && prev.filter == nil && prev.err == nil {
				return prev
			}
			return &snapshot{
				seq:     prev.seq + 1,
				records: s.cfg.Baseline,
				status:  StatusIdle,
			}
		})
		s.log.Debug().Msg("filters cleared")
		return
	}

	var seq uint64
	s.state.Update(func(prev *snapshot) *snapshot {
		seq = prev.seq + 1
		return &snapshot{
			seq:     seq,
			filter:  norm,
			records: prev.records,
			status:  StatusApplying,
		}
	})

	ctx := context.Background()
	var cancel context.CancelFunc
	if s.cfg.QueryTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, s.cfg.QueryTimeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}

	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	s.log.Debug().Uint64("seq", seq).Interface("filter", norm).Msg("applying filter")

	go s.run(ctx, cancel, seq, norm)
}

// abort cancels the in-flight query, if any.
func (s *Service) abort() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

func (s *Service) run(ctx context.Context, cancel context.CancelFunc, seq uint64, expr filter.Expression) {
	defer cancel()

	records, err := s.cfg.Backend.Query(ctx, query.Request{
		Collection: s.cfg.Collection,
		Predicates: compile(expr),
		Include:    s.cfg.Include,
	})

	s.state.Update(func(prev *snapshot) *snapshot {
		if prev.seq != seq {
			// superseded while in flight; the newer request wins
			s.log.Debug().Uint64("seq", seq).Msg("stale query result discarded")
			return prev
		}

		if err != nil {
			s.log.Error().Uint64("seq", seq).Err(err).Msg("query failed")
			return &snapshot{
				seq:     seq,
				filter:  prev.filter,
				records: prev.records,
				status:  StatusFailed,
				err:     &QueryError{Collection: s.cfg.Collection, Filter: expr, Err: err},
			}
		}

		s.log.Debug().Uint64("seq", seq).Int("records", len(records)).Msg("filter applied")
		return &snapshot{
			seq:     seq,
			filter:  prev.filter,
			records: records,
			status:  StatusApplied,
		}
	})
}

var opMap = map[filter.Operator]query.Op{
	filter.OpEq:         query.OpEq,
	filter.OpNe:         query.OpNe,
	filter.OpGt:         query.OpGt,
	filter.OpGte:        query.OpGte,
	filter.OpLt:         query.OpLt,
	filter.OpLte:        query.OpLte,
	filter.OpContains:   query.OpContains,
	filter.OpStartsWith: query.OpStartsWith,
	filter.OpEndsWith:   query.OpEndsWith,
	filter.OpHasSome:    query.OpHasSome,
	filter.OpHasAll:     query.OpHasAll,
	filter.OpIsEmpty:    query.OpIsEmpty,
	filter.OpIsNotEmpty: query.OpIsNotEmpty,
}

// compile translates a normalized expression into backend predicates. The
// output is deterministic: fields in sorted order, operators in the fixed
// vocabulary order within each field.
func compile(expr filter.Expression) []query.Predicate {
	fields := make([]string, 0, len(expr))
	for field := range expr {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	var preds []query.Predicate
	for _, field := range fields {
		cond := expr[field]
		for _, op := range filter.Operators {
			operand, ok := cond[op]
			if !ok {
				continue
			}
			preds = append(preds, predicate(field, op, operand))
		}
	}

	return preds
}

func predicate(field string, op filter.Operator, operand any) query.Predicate {
	switch op {
	case filter.OpIsEmpty, filter.OpIsNotEmpty:
		// a false operand means the negated check
		want := op == filter.OpIsEmpty
		if b, ok := operand.(bool); ok && !b {
			want = !want
		}
		if want {
			return query.Predicate{Field: field, Op: query.OpIsEmpty}
		}
		return query.Predicate{Field: field, Op: query.OpIsNotEmpty}
	default:
		return query.Predicate{Field: field, Op: opMap[op], Value: operand}
	}
}
