// Package sessionretrieve implements the session-aware two-stage retriever:
// a first pass over a sessions collection finds candidate sessions, then a
// bounded-fan-out second pass drills into each session's turns.
package sessionretrieve

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/vectorlane/memquery/internal/retrieve"
)

// Result is one stage-3 item: a turn carrying attribution back to the
// session it was found under.
type Result struct {
	retrieve.SearchResult
	SessionID      string
	SessionSummary string
	SessionScore   float64
}

// Retriever runs the two-stage search over two independently searchable
// collaborators: a sessions retriever and a turns retriever. Both are
// *retrieve.Retriever instances pointed at different collections, so this
// package reuses the hybrid retriever's RRF/threshold/degraded-mode
// machinery rather than reimplementing it.
type Retriever struct {
	sessions              *retrieve.Retriever
	turns                 *retrieve.Retriever
	sessionCandidates     int // S
	turnsPerSession       int // T
	parallelTurnRetrieval bool
}

// Option configures a Retriever.
type Option func(*Retriever)

func WithSessionCandidates(s int) Option { return func(r *Retriever) { r.sessionCandidates = s } }
func WithTurnsPerSession(t int) Option   { return func(r *Retriever) { r.turnsPerSession = t } }
func WithParallelTurnRetrieval(on bool) Option {
	return func(r *Retriever) { r.parallelTurnRetrieval = on }
}

// New builds a session-aware Retriever. Defaults: S=5 candidate sessions,
// T=5 turns per session, parallel turn retrieval on — matching the spec's
// "parallel_turn_retrieval (default true)".
func New(sessions, turns *retrieve.Retriever, opts ...Option) *Retriever {
	r := &Retriever{
		sessions:              sessions,
		turns:                 turns,
		sessionCandidates:     5,
		turnsPerSession:       5,
		parallelTurnRetrieval: true,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Search runs the three stages and returns up to finalTopK attributed
// results. A stage-2 failure on an individual session degrades that
// session's contribution to empty without failing the whole request.
func (r *Retriever) Search(ctx context.Context, q retrieve.Query, finalTopK int) ([]Result, error) {
	sessionQuery := q
	sessionQuery.Limit = r.sessionCandidates
	sessionHits, err := r.sessions.Search(ctx, sessionQuery)
	if err != nil {
		return nil, fmt.Errorf("sessionretrieve: stage 1 session search: %w", err)
	}
	if len(sessionHits) == 0 {
		return nil, nil
	}

	var (
		mu      sync.Mutex
		results []Result
	)

	runStage2 := func(session retrieve.SearchResult) {
		turnQuery := q
		turnQuery.Limit = r.turnsPerSession
		turnQuery.Filter.SessionID = session.ID

		summary, _ := session.Payload["summary"].(string)

		turnHits, err := r.turns.Search(ctx, turnQuery)
		if err != nil {
			// An individual session's failure degrades to an empty
			// contribution; the overall request still succeeds.
			return
		}
		mu.Lock()
		for _, t := range turnHits {
			results = append(results, Result{
				SearchResult:   t,
				SessionID:      session.ID,
				SessionSummary: summary,
				SessionScore:   session.EffectiveScore(),
			})
		}
		mu.Unlock()
	}

	if r.parallelTurnRetrieval {
		sem := semaphore.NewWeighted(int64(len(sessionHits)))
		var wg sync.WaitGroup
		for _, session := range sessionHits {
			if err := sem.Acquire(ctx, 1); err != nil {
				break
			}
			wg.Add(1)
			go func(s retrieve.SearchResult) {
				defer wg.Done()
				defer sem.Release(1)
				runStage2(s)
			}(session)
		}
		wg.Wait()
	} else {
		for _, session := range sessionHits {
			runStage2(session)
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].EffectiveScore() > results[j].EffectiveScore()
	})
	if finalTopK > 0 && len(results) > finalTopK {
		results = results[:finalTopK]
	}
	return results, nil
}
