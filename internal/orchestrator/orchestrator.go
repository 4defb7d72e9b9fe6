package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/quorumlabs/quorum/infrastructure/middleware"
	"github.com/quorumlabs/quorum/internal/domain"
	"github.com/quorumlabs/quorum/internal/ports"
)

// Result is the complete outcome of one orchestrated query. A caller
// always receives a decision object, even when every provider failed;
// rendering that as an error is the caller's concern.
type Result struct {
	// Query is the submitted query with its gatekeeper verdict applied.
	Query domain.Query `json:"query"`

	// Responses maps provider id to its envelope. Empty when the query
	// was rejected.
	Responses map[string]domain.ResponseEnvelope `json:"responses"`

	// UnknownIDs lists requested provider ids with no usable adapter.
	UnknownIDs []string `json:"unknown_ids,omitempty"`

	// Decision is the judge's verdict.
	Decision domain.JudgeDecision `json:"decision"`

	// Metadata aggregates the dispatch for reporting.
	Metadata ResultMetadata `json:"metadata"`

	// Duration is the wall time of the whole pipeline.
	Duration time.Duration `json:"duration"`
}

// ResultMetadata summarizes one dispatch: outcome counts, the average
// latency of fresh calls, and the total estimated spend.
type ResultMetadata struct {
	TotalProviders int           `json:"total_providers"`
	Successful     int           `json:"successful"`
	Failed         int           `json:"failed"`
	CacheHits      int           `json:"cache_hits"`
	AvgLatency     time.Duration `json:"avg_latency"`
	TotalCostUSD   float64       `json:"total_cost_usd"`
	QueryHash      string        `json:"query_hash"`
}

func buildMetadata(query domain.Query, responses map[string]domain.ResponseEnvelope) ResultMetadata {
	meta := ResultMetadata{
		TotalProviders: len(responses),
		QueryHash:      query.QueryHash(),
	}

	var latencySum time.Duration
	var fresh int
	for _, env := range responses {
		if env.IsSuccess() {
			meta.Successful++
		} else {
			meta.Failed++
		}
		if env.Cached {
			meta.CacheHits++
			continue
		}
		fresh++
		latencySum += env.Latency
		meta.TotalCostUSD += env.CostUSD
	}
	if fresh > 0 {
		meta.AvgLatency = latencySum / time.Duration(fresh)
	}
	return meta
}

// Accepted reports the gatekeeper's verdict.
func (r Result) Accepted() bool { return r.Query.Accepted }

// Orchestrator runs the full pipeline for each query: gatekeeper,
// dispatch with cache, judge, spend accounting, and exactly one
// persistence write per finalized query.
type Orchestrator struct {
	gatekeeper *Gatekeeper
	dispatcher *Dispatcher
	judge      *Judge
	sink       ports.Sink
	spend      *middleware.SpendTracker
	metrics    ports.MetricsCollector
	logger     *slog.Logger
	deadline   time.Duration

	nextID atomic.Uint64
}

// NewOrchestrator assembles the pipeline. The sink is required; spend and
// metrics may be nil.
func NewOrchestrator(
	gatekeeper *Gatekeeper,
	dispatcher *Dispatcher,
	judge *Judge,
	sink ports.Sink,
	spend *middleware.SpendTracker,
	metrics ports.MetricsCollector,
	logger *slog.Logger,
	deadline time.Duration,
) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if deadline <= 0 {
		deadline = DefaultDeadline
	}
	return &Orchestrator{
		gatekeeper: gatekeeper,
		dispatcher: dispatcher,
		judge:      judge,
		sink:       sink,
		spend:      spend,
		metrics:    metrics,
		logger:     logger,
		deadline:   deadline,
	}
}

// Orchestrate runs one query through the pipeline. The deadline bounds
// the dispatch fan-out; a non-positive value selects the configured
// default. A rejected query and an all-failed dispatch are both normal
// results; the returned error covers only hard failures such as an
// exhausted spend budget or a persistence write that did not land.
func (o *Orchestrator) Orchestrate(ctx context.Context, text string, providerIDs []string, userScope string, deadline time.Duration) (Result, error) {
	if o.spend != nil {
		if err := o.spend.Check(); err != nil {
			return Result{}, fmt.Errorf("refusing query: %w", err)
		}
	}
	if deadline <= 0 {
		deadline = o.deadline
	}

	start := time.Now()
	query := domain.NewQuery(o.nextID.Add(1), uuid.NewString(), text, userScope)
	logger := o.logger.With("request_id", query.RequestID)

	if verdict := o.gatekeeper.Accept(text); !verdict.Accepted {
		query.Accepted = false
		query.RejectReason = verdict.Reason
		logger.Info("query rejected by gatekeeper", "reason", verdict.Reason)
		o.recordOutcome("rejected")

		result := Result{
			Query: query,
			Decision: domain.JudgeDecision{
				Rationale: domain.NoWinnerRationale,
				DecidedAt: time.Now().UTC(),
			},
			Metadata: ResultMetadata{QueryHash: query.QueryHash()},
			Duration: time.Since(start),
		}
		return result, o.persist(ctx, query, nil, result.Decision)
	}

	dispatch := o.dispatcher.Run(ctx, query, providerIDs, deadline)
	if o.spend != nil {
		for _, env := range dispatch.Responses {
			o.spend.Track(env)
		}
	}
	o.logFailures(ctx, query.RequestID, dispatch.Responses)

	decision := o.judge.Decide(query, dispatch.Responses)

	logger.Info("query finalized",
		"providers", len(dispatch.Responses),
		"winner", decision.Winner,
		"consensus", decision.Consensus,
		"duration", time.Since(start))

	if decision.HasWinner() {
		o.recordOutcome("completed")
	} else {
		o.recordOutcome("no_winner")
	}
	o.recordStageLatency("orchestrate", time.Since(start))

	result := Result{
		Query:      query,
		Responses:  dispatch.Responses,
		UnknownIDs: dispatch.UnknownIDs,
		Decision:   decision,
		Metadata:   buildMetadata(query, dispatch.Responses),
		Duration:   time.Since(start),
	}
	return result, o.persist(ctx, query, dispatch.Responses, decision)
}

// persist writes the finalized snapshot exactly once. A failed write is
// surfaced to the caller; the in-memory result is still usable.
func (o *Orchestrator) persist(ctx context.Context, query domain.Query, responses map[string]domain.ResponseEnvelope, decision domain.JudgeDecision) error {
	rec := domain.QueryRecord{
		Query:     query,
		Responses: responses,
		Decision:  decision,
	}
	if err := o.sink.Record(ctx, rec); err != nil {
		o.logger.Error("persistence write failed",
			"request_id", query.RequestID, "error", err)
		return fmt.Errorf("failed to persist query %s: %w", query.RequestID, err)
	}
	return nil
}

// logFailures records individual provider failures when the sink supports
// it. Failed log writes are non-fatal; the envelope itself is still
// persisted with the snapshot.
func (o *Orchestrator) logFailures(ctx context.Context, requestID string, responses map[string]domain.ResponseEnvelope) {
	el, ok := o.sink.(ports.ErrorLogger)
	if !ok {
		return
	}
	for _, env := range responses {
		if env.IsSuccess() {
			continue
		}
		if err := el.LogError(ctx, requestID, env.Provider, env.ErrorKind, env.ErrorMessage); err != nil {
			o.logger.Warn("error log write failed",
				"request_id", requestID, "provider", env.Provider, "error", err)
		}
	}
}

func (o *Orchestrator) recordOutcome(outcome string) {
	if o.metrics == nil {
		return
	}
	o.metrics.RecordCounter("orchestrator_queries_total", 1, map[string]string{"outcome": outcome})
}

func (o *Orchestrator) recordStageLatency(stage string, d time.Duration) {
	if o.metrics == nil {
		return
	}
	o.metrics.RecordLatency(stage, d, nil)
}
