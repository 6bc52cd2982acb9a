package main

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// RunHandle is the caller's view of an in-flight council run: its id and the
// ordered progress event sequence. The channel is closed after the terminal
// event (stage3_complete or run_aborted), so a consumer never waits on a
// failed run in silence.
type RunHandle struct {
	ID     string
	Events <-chan ProgressEvent

	run *councilRun
}

// Final returns the terminal run state. Valid once Events has been closed.
func (h *RunHandle) Final() RunState {
	return h.run.Snapshot()
}

// councilRun coordinates one council run. The run goroutine is the sole
// writer of state; everyone else reads deep-copied snapshots. Run lifetime
// is independent of any consumer: the event channel is buffered to the run's
// maximum event count, so an absent consumer never blocks a transition.
type councilRun struct {
	mu     sync.Mutex
	state  RunState
	events chan ProgressEvent
}

// RunRegistry maps run ids to live coordinators. Entries are torn down when
// their run reaches a terminal state; finished runs are served from storage.
type RunRegistry struct {
	mu   sync.RWMutex
	runs map[string]*councilRun
}

// NewRunRegistry creates an empty run registry
func NewRunRegistry() *RunRegistry {
	return &RunRegistry{runs: make(map[string]*councilRun)}
}

func (r *RunRegistry) add(run *councilRun) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs[run.state.ID] = run
}

func (r *RunRegistry) remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.runs, id)
}

// Snapshot returns a read-only copy of a live run's state.
func (r *RunRegistry) Snapshot(id string) (RunState, bool) {
	r.mu.RLock()
	run, ok := r.runs[id]
	r.mu.RUnlock()
	if !ok {
		return RunState{}, false
	}
	return run.Snapshot(), true
}

var runRegistry = NewRunRegistry()

// StartRun starts a council run for the query and returns its handle. The
// run executes on its own background context: a consumer disconnecting does
// not cancel in-flight model calls, the run reaches a terminal state and is
// persisted regardless.
func StartRun(query Query) *RunHandle {
	members := make([]string, len(CouncilMembers))
	copy(members, CouncilMembers)

	run := &councilRun{
		state: RunState{
			ID:        uuid.New().String(),
			Phase:     PhaseCreated,
			Query:     query,
			Members:   members,
			Chairman:  ChairmanModel,
			CreatedAt: time.Now().UTC(),
		},
		// Capacity covers every event a run can emit, so emit never blocks.
		events: make(chan ProgressEvent, 2*len(members)+8),
	}
	runRegistry.add(run)

	go run.run(context.Background())

	return &RunHandle{ID: run.state.ID, Events: run.events, run: run}
}

// RunCouncil runs a full council synchronously, draining progress events,
// and returns the terminal run state.
func RunCouncil(query Query) RunState {
	handle := StartRun(query)
	for range handle.Events {
	}
	return handle.Final()
}

func (r *councilRun) Snapshot() RunState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return cloneRunState(r.state)
}

func (r *councilRun) emit(event ProgressEvent) {
	event.RunID = r.state.ID
	r.events <- event
}

func (r *councilRun) setPhase(phase RunPhase) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state.Phase = phase
}

func (r *councilRun) update(fn func(*RunState)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(&r.state)
}

// finish marks the run terminal, emits the terminal event, hands the state
// to storage, and tears the run out of the registry.
func (r *councilRun) finish(terminal ProgressEvent) {
	r.emit(terminal)
	close(r.events)

	final := r.Snapshot()
	if err := SaveRun(&final); err != nil {
		log.Printf("Failed to persist run %s: %v", final.ID, err)
	}
	runRegistry.remove(final.ID)
}

// run drives the three stages in order. Per-member failures degrade
// gracefully; the only run-level failures are stage1_all_failed and
// stage3_failed.
func (r *councilRun) run(ctx context.Context) {
	state := &r.state

	// Stage 1: collect individual responses
	prompt, historyStats := BuildStage1Prompt(state.Query)
	r.update(func(s *RunState) {
		s.Phase = PhaseStage1InFlight
		s.TokenStats.History = historyStats
	})
	r.emit(ProgressEvent{Type: EventStage1Started})

	stage1 := r.collectStage1(ctx, prompt)
	r.update(func(s *RunState) {
		s.Stage1 = stage1
		s.Phase = PhaseStage1Done
	})
	r.emit(ProgressEvent{Type: EventStage1Complete, Stage1: stage1})

	set := AssignLabels(stage1)
	r.update(func(s *RunState) {
		s.Labels = set.Labels
		s.LabelToModel = set.LabelToModel
	})

	if len(set.Labels) == 0 {
		log.Printf("Run %s: all %d council members failed in stage 1", state.ID, len(state.Members))
		r.update(func(s *RunState) {
			s.Phase = PhaseAborted
			s.AbortReason = AbortStage1AllFailed
			s.CompletedAt = time.Now().UTC()
		})
		r.finish(ProgressEvent{Type: EventRunAborted, Reason: AbortStage1AllFailed})
		return
	}

	// Stage 2: anonymized peer rankings
	rankingPrompt, rankingStats := BuildRankingPrompt(state.Query.Text, set)
	r.update(func(s *RunState) {
		s.Phase = PhaseStage2InFlight
		s.TokenStats.RankingPayload = rankingStats
	})
	r.emit(ProgressEvent{Type: EventStage2Started})

	stage2 := r.collectStage2(ctx, rankingPrompt, set)
	aggregate := AggregateRankings(stage2, set)
	r.update(func(s *RunState) {
		s.Stage2 = stage2
		s.Aggregate = aggregate
		s.Phase = PhaseStage2Done
	})
	r.emit(ProgressEvent{
		Type:   EventStage2Complete,
		Stage2: stage2,
		Metadata: &Metadata{
			LabelToModel:      set.LabelToModel,
			AggregateRankings: aggregate,
		},
	})

	// Stage 3: chairman synthesis
	chairmanPrompt, synthesisStats := BuildChairmanPrompt(state.Query.Text, stage1, stage2, aggregate)
	r.update(func(s *RunState) {
		s.Phase = PhaseStage3InFlight
		s.TokenStats.SynthesisPayload = synthesisStats
		s.TokenStats.Total = CombineTokenStats(s.TokenStats.History, s.TokenStats.RankingPayload, s.TokenStats.SynthesisPayload)
	})
	r.emit(ProgressEvent{Type: EventStage3Started})

	messages := []ChatMessage{{Role: "user", Content: chairmanPrompt}}
	response, err := QueryCouncilModel(ctx, state.Chairman, messages, ModelQueryTimeout)
	if err != nil {
		invokeErr := AsInvokeError(err)
		log.Printf("Run %s: chairman %s failed: %v", state.ID, state.Chairman, invokeErr)
		r.update(func(s *RunState) {
			s.Phase = PhaseAborted
			s.AbortReason = AbortStage3Failed
			s.CompletedAt = time.Now().UTC()
		})
		r.finish(ProgressEvent{Type: EventRunAborted, Reason: AbortStage3Failed, Model: state.Chairman})
		return
	}

	stage3 := &Stage3Result{
		Model:     state.Chairman,
		Response:  response.Content,
		LatencyMS: response.Latency.Milliseconds(),
		TokensIn:  response.TokensIn,
		TokensOut: response.TokensOut,
	}
	var tokenStats RunTokenStats
	r.update(func(s *RunState) {
		s.Stage3 = stage3
		s.Phase = PhaseComplete
		s.CompletedAt = time.Now().UTC()
		tokenStats = s.TokenStats
	})

	r.finish(ProgressEvent{
		Type:   EventStage3Complete,
		Stage3: stage3,
		Metadata: &Metadata{
			LabelToModel:      set.LabelToModel,
			AggregateRankings: aggregate,
			TokenStats:        &tokenStats,
		},
	})
}

// collectStage1 fans the prompt out to every member and waits for all of
// them to settle, emitting a member-done event per settlement. Results come
// back in council order.
func (r *councilRun) collectStage1(ctx context.Context, prompt string) []Stage1Result {
	messages := []ChatMessage{{Role: "user", Content: prompt}}
	results := make([]Stage1Result, len(r.state.Members))

	for outcome := range queryMembersStream(ctx, r.state.Members, messages, ModelQueryTimeout) {
		result := Stage1Result{Model: outcome.Model}
		if outcome.Err != nil {
			result.ErrorKind = outcome.Err.Kind
			result.ErrorMessage = outcome.Err.Message
		} else {
			result.Response = outcome.Response.Content
			result.LatencyMS = outcome.Response.Latency.Milliseconds()
			result.TokensIn = outcome.Response.TokensIn
			result.TokensOut = outcome.Response.TokensOut
		}
		results[outcome.Index] = result

		event := result
		r.emit(ProgressEvent{Type: EventStage1MemberDone, Model: outcome.Model, Stage1Result: &event})
	}

	return results
}

// collectStage2 fans the ranking prompt out to every member, parses each
// settled ranking against the known labels, and waits for all members.
func (r *councilRun) collectStage2(ctx context.Context, prompt string, set *AnonymizedSet) []Stage2Result {
	messages := []ChatMessage{{Role: "user", Content: prompt}}
	results := make([]Stage2Result, len(r.state.Members))

	for outcome := range queryMembersStream(ctx, r.state.Members, messages, ModelQueryTimeout) {
		result := Stage2Result{Model: outcome.Model}
		if outcome.Err != nil {
			result.ErrorKind = outcome.Err.Kind
			result.ErrorMessage = outcome.Err.Message
		} else {
			result.Ranking = outcome.Response.Content
			result.ParsedRanking = ParseRanking(outcome.Response.Content, set.Labels)
			result.LatencyMS = outcome.Response.Latency.Milliseconds()
			result.TokensIn = outcome.Response.TokensIn
			result.TokensOut = outcome.Response.TokensOut
		}
		results[outcome.Index] = result

		event := result
		r.emit(ProgressEvent{Type: EventStage2MemberDone, Model: outcome.Model, Stage2Result: &event})
	}

	return results
}

func cloneRunState(state RunState) RunState {
	clone := state

	clone.Members = append([]string(nil), state.Members...)
	clone.Stage1 = cloneStage1(state.Stage1)
	clone.Labels = append([]string(nil), state.Labels...)
	clone.Stage2 = cloneStage2(state.Stage2)
	clone.Aggregate = append([]AggregateRanking(nil), state.Aggregate...)
	clone.Query.History = append([]ChatMessage(nil), state.Query.History...)

	if state.LabelToModel != nil {
		clone.LabelToModel = make(map[string]string, len(state.LabelToModel))
		for label, model := range state.LabelToModel {
			clone.LabelToModel[label] = model
		}
	}
	if state.Stage3 != nil {
		stage3 := *state.Stage3
		clone.Stage3 = &stage3
	}

	return clone
}

func cloneStage1(results []Stage1Result) []Stage1Result {
	return append([]Stage1Result(nil), results...)
}

func cloneStage2(results []Stage2Result) []Stage2Result {
	clone := append([]Stage2Result(nil), results...)
	for i := range clone {
		clone[i].ParsedRanking = append([]string(nil), clone[i].ParsedRanking...)
	}
	return clone
}
