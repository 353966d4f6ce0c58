// Package session runs the search conversation: it validates and authorizes
// submissions, dispatches them to the backend, drives the progress indicator
// and commits completed searches to the history.
package session

import (
	"context"
	"strings"
	"sync"
	"time"

	"askweb/internal/auth"
	"askweb/internal/backend"
	"askweb/internal/credit"
	"askweb/internal/history"
	"askweb/internal/progress"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Phase is the orchestrator's position in the search lifecycle.
type Phase string

const (
	PhaseIdle             Phase = "idle"
	PhaseAuthorizing      Phase = "authorizing"
	PhaseDispatching      Phase = "dispatching"
	PhaseAwaitingResponse Phase = "awaiting_response"
	PhaseSettling         Phase = "settling"
)

// Searcher issues backend searches.
type Searcher interface {
	Search(ctx context.Context, req backend.SearchRequest) (*backend.SearchResponse, error)
}

// Authenticator reports the signed-in user.
type Authenticator interface {
	CurrentUser() *auth.User
}

// Gate authorizes and charges searches.
type Gate interface {
	Authorize(ctx context.Context, user *auth.User) credit.Decision
}

// PendingSearch describes the in-flight search.
type PendingSearch struct {
	Query     string    `json:"query"`
	Followup  bool      `json:"followup"`
	StartedAt time.Time `json:"started_at"`
}

// State is a read-only view of the session for rendering.
type State struct {
	Records        []history.Record `json:"records"`
	ActiveID       string           `json:"active_id,omitempty"`
	CurrentContext *ContextSnapshot `json:"current_context,omitempty"`
	Pending        *PendingSearch   `json:"pending,omitempty"`
	Phase          Phase            `json:"phase"`
	Step           progress.Step    `json:"step"`
}

type pending struct {
	gen    uint64
	cancel context.CancelFunc
	// reason is what the owner sees if the search is taken away from it
	reason error
	info   PendingSearch
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithRequireLogin makes every submission, primary or follow-up, require a
// signed-in user.
func WithRequireLogin(required bool) Option {
	return func(o *Orchestrator) { o.requireLogin = required }
}

// WithTimeout bounds each backend request. Zero waits indefinitely.
func WithTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.timeout = d }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

// WithClock overrides time.Now for record timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// Orchestrator owns the single active session. At most one search is pending;
// a newer submission supersedes it.
type Orchestrator struct {
	store    *history.Store
	searcher Searcher
	authn    Authenticator
	gate     Gate
	progress *progress.Simulator

	requireLogin bool
	timeout      time.Duration
	logger       *zap.Logger
	now          func() time.Time

	mu             sync.Mutex
	phase          Phase
	currentContext *ContextSnapshot
	pending        *pending
	gen            uint64
}

func New(store *history.Store, searcher Searcher, authn Authenticator, gate Gate, sim *progress.Simulator, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:        store,
		searcher:     searcher,
		authn:        authn,
		gate:         gate,
		progress:     sim,
		requireLogin: true,
		logger:       zap.NewNop(),
		now:          time.Now,
		phase:        PhaseIdle,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Restore loads persisted history and grounds follow-ups in the most recent
// record. Unreadable history starts an empty session.
func (o *Orchestrator) Restore(ctx context.Context) error {
	err := o.store.Load(ctx)

	o.mu.Lock()
	defer o.mu.Unlock()
	if latest, ok := o.store.Latest(); ok {
		snapshot := BuildContext(latest)
		o.currentContext = &snapshot
	}
	return err
}

// SubmitSearch runs a primary search.
func (o *Orchestrator) SubmitSearch(ctx context.Context, query string) (history.Record, error) {
	return o.submit(ctx, query, false, "")
}

// SubmitFollowup runs a follow-up grounded in targetID, or in the current
// context when targetID is empty.
func (o *Orchestrator) SubmitFollowup(ctx context.Context, query, targetID string) (history.Record, error) {
	return o.submit(ctx, query, true, targetID)
}

func (o *Orchestrator) submit(ctx context.Context, query string, followup bool, targetID string) (history.Record, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return history.Record{}, ErrEmptyQuery
	}

	req := backend.SearchRequest{Query: query}
	var parentID string
	if followup {
		snapshot, err := o.followupContext(targetID)
		if err != nil {
			return history.Record{}, err
		}
		req.Followup = true
		req.PreviousContext = snapshot.payload()
		parentID = snapshot.RecordID
	}

	o.setIdlePhase(PhaseAuthorizing)

	user := o.authn.CurrentUser()
	if user == nil && o.requireLogin {
		o.setIdlePhase(PhaseIdle)
		return history.Record{}, ErrAuthRequired
	}

	decision := o.gate.Authorize(ctx, user)
	if !decision.Allowed {
		o.setIdlePhase(PhaseIdle)
		return history.Record{}, &CreditDeniedError{Reason: decision.Reason, Balance: decision.Balance}
	}

	p, reqCtx := o.dispatch(ctx, query, followup)
	defer p.cancel()

	logger := o.logger.With(zap.Uint64("search", p.gen), zap.Bool("followup", followup))
	logger.Info("search dispatched", zap.String("query", query), zap.String("parent_id", parentID))

	resp, err := o.searcher.Search(reqCtx, req)

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.pending == nil || o.pending.gen != p.gen {
		// superseded or cancelled; the response is discarded
		logger.Info("discarding stale search response", zap.Error(p.reason))
		return history.Record{}, p.reason
	}

	o.phase = PhaseSettling
	o.progress.Settle()
	o.pending = nil

	if err != nil {
		o.phase = PhaseIdle
		if errors.Is(reqCtx.Err(), context.DeadlineExceeded) {
			err = ErrTimeout
		}
		logger.Warn("search failed", zap.Error(err))
		return history.Record{}, err
	}

	rec := history.Record{
		ID:          history.NewID(),
		Query:       query,
		Summary:     resp.Summary,
		Sources:     resp.Sources,
		QueriesUsed: resp.QueriesUsed,
		Timestamp:   o.now().UnixMilli(),
		IsFollowup:  followup,
		ParentID:    parentID,
	}
	if rec.Sources == nil {
		rec.Sources = []history.Source{}
	}
	if rec.QueriesUsed == nil {
		rec.QueriesUsed = []string{}
	}

	if err := o.store.Append(ctx, rec); err != nil {
		logger.Error("failed to persist history", zap.String("record_id", rec.ID), zap.Error(err))
	}
	o.store.SetActive(rec.ID)

	snapshot := BuildContext(rec)
	o.currentContext = &snapshot
	o.phase = PhaseIdle

	logger.Info("search completed", zap.String("record_id", rec.ID), zap.Int("sources", len(rec.Sources)))
	return rec, nil
}

func (o *Orchestrator) followupContext(targetID string) (ContextSnapshot, error) {
	if targetID != "" {
		rec, ok := o.store.FindByID(targetID)
		if !ok {
			return ContextSnapshot{}, ErrRecordNotFound
		}
		return BuildContext(rec), nil
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.currentContext == nil {
		return ContextSnapshot{}, ErrNoContext
	}
	return *o.currentContext, nil
}

// dispatch supersedes any pending search and starts the simulator for a new one.
func (o *Orchestrator) dispatch(ctx context.Context, query string, followup bool) (*pending, context.Context) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.phase = PhaseDispatching
	if prev := o.pending; prev != nil {
		o.logger.Info("superseding pending search", zap.Uint64("search", prev.gen))
		o.releaseLocked(ErrSuperseded)
	}

	var (
		reqCtx context.Context
		cancel context.CancelFunc
	)
	if o.timeout > 0 {
		reqCtx, cancel = context.WithTimeout(ctx, o.timeout)
	} else {
		reqCtx, cancel = context.WithCancel(ctx)
	}

	o.gen++
	p := &pending{
		gen:    o.gen,
		cancel: cancel,
		info:   PendingSearch{Query: query, Followup: followup, StartedAt: o.now()},
	}
	o.pending = p

	// Any previous run was settled by releaseLocked above.
	if _, err := o.progress.Start(); err != nil {
		o.logger.Warn("progress simulator already running", zap.Error(err))
	}
	o.phase = PhaseAwaitingResponse

	return p, reqCtx
}

// releaseLocked abandons the pending search (must be called with lock held)
func (o *Orchestrator) releaseLocked(reason error) {
	p := o.pending
	p.reason = reason
	p.cancel()
	o.progress.Settle()
	o.pending = nil
}

// Cancel abandons the pending search, if any. Its credit is not refunded.
func (o *Orchestrator) Cancel() bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.pending == nil {
		return false
	}
	o.logger.Info("cancelling pending search", zap.Uint64("search", o.pending.gen))
	o.releaseLocked(ErrCancelled)
	o.phase = PhaseIdle
	return true
}

func (o *Orchestrator) setIdlePhase(phase Phase) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.pending == nil {
		o.phase = phase
	}
}

// ViewRecord makes id the displayed record.
func (o *Orchestrator) ViewRecord(id string) (history.Record, error) {
	rec, ok := o.store.FindByID(id)
	if !ok || !o.store.SetActive(id) {
		return history.Record{}, ErrRecordNotFound
	}
	return rec, nil
}

// ResolveID maps a full id or a short id suffix to a record id.
func (o *Orchestrator) ResolveID(ref string) (string, error) {
	id, ok := o.store.Resolve(ref)
	if !ok {
		return "", ErrRecordNotFound
	}
	return id, nil
}

// ClearHistory empties the history. A storage failure is logged only.
func (o *Orchestrator) ClearHistory(ctx context.Context) {
	if err := o.store.Clear(ctx); err != nil {
		o.logger.Error("failed to clear persisted history", zap.Error(err))
	}
}

// Parent resolves a follow-up's parent record, if it is still in the history.
func (o *Orchestrator) Parent(rec history.Record) (history.Record, bool) {
	return o.store.Parent(rec)
}

// CurrentSession returns a snapshot of the session for rendering.
func (o *Orchestrator) CurrentSession() State {
	o.mu.Lock()
	defer o.mu.Unlock()

	state := State{
		Records:  o.store.Records(),
		ActiveID: o.store.ActiveID(),
		Phase:    o.phase,
		Step:     o.progress.Step(),
	}
	if o.currentContext != nil {
		c := *o.currentContext
		state.CurrentContext = &c
	}
	if o.pending != nil {
		info := o.pending.info
		state.Pending = &info
	}
	return state
}
