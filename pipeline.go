package switchboard

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/northbridge-ai/switchboard/internal/memory"
	"github.com/northbridge-ai/switchboard/internal/scoring"
	"github.com/northbridge-ai/switchboard/pkg/events"
	"github.com/northbridge-ai/switchboard/pkg/types"
)

const (
	// explicitConfidence is assigned when the host names the agent itself.
	explicitConfidence = 1.0

	// greetingContinuityConfidence resumes the previous agent on a bare
	// greeting without re-scoring it.
	greetingContinuityConfidence = 0.8

	// greetingMaxWords keeps greeting handling away from real requests that
	// happen to open with one ("hi, where is my order 12345").
	greetingMaxWords = 5
)

var greetingRe = regexp.MustCompile(`(?i)^\s*(hi|hiya|hello|hey|yo|howdy|greetings|good\s+(morning|afternoon|evening))\b`)

// User-facing fallback texts. Everything else a user sees comes from an
// agent.
const (
	noSelectionResponse = "I'm not sure which of my services fits that request. Here's what I can help with:"
	failureResponse     = "Something went wrong while handling that. Please try again."
)

// turnState carries one turn through the pipeline stages.
type turnState struct {
	input  string
	tc     types.Context
	sess   *memory.Session
	turnID string

	// known is the session's remembered entities overlaid with the turn's.
	known map[string]string

	// hadContinueFlag records whether the session's explicit continue flag
	// was set when the turn began; a completed turn always consumes it.
	hadContinueFlag bool

	topicChanged bool
}

// decision is a stage's verdict. A nil agent is the no-selection terminal;
// stages that cannot decide return a nil *decision instead to pass the turn
// on.
type decision struct {
	agent       types.Agent
	confidence  float64
	basis       types.Basis
	contextUsed bool
	stage       string
	reason      string
}

// pipelineStage is one step of the routing pipeline.
type pipelineStage interface {
	// Name returns the stage identifier used in logs and events.
	Name() string

	// Execute inspects the turn and either decides it or returns nil to
	// hand it to the next stage.
	Execute(ctx context.Context, st *turnState) *decision
}

// ═══════════════════════════════════════════════════════════════════════════
// Process
// ═══════════════════════════════════════════════════════════════════════════

// Process routes one inbound turn: it selects an agent through the staged
// pipeline, invokes the agent, commits session memory, and returns the
// outcome. It never returns nil and never panics; pipeline panics and agent
// failures become a success=false result with session memory untouched, so
// the host can retry the turn cleanly.
//
// Turns for the same session must not run concurrently; see Orchestrator.
func (o *Orchestrator) Process(ctx context.Context, input string, tc types.Context) (res *types.RoutingResult) {
	start := time.Now()
	turnID := uuid.NewString()
	if tc.SessionID == "" {
		tc.SessionID = types.DefaultSessionID
	}

	defer func() {
		if r := recover(); r != nil {
			o.log.Error().Str("turn", turnID).Interface("panic", r).Msg("routing pipeline panicked")
			res = o.finishFailure(tc.SessionID, turnID, "", start, fmt.Errorf("pipeline panic: %v", r))
		}
	}()

	ev := events.New(events.EventTurnStarted)
	ev.SessionID = tc.SessionID
	ev.TurnID = turnID
	ev.Intent = tc.Intent
	o.bus.Publish(ev)

	sess := o.mem.GetOrCreate(ctx, tc.SessionID)
	st := &turnState{
		input:           input,
		tc:              tc,
		sess:            sess,
		turnID:          turnID,
		known:           sess.KnownEntities(tc.Entities),
		hadContinueFlag: sess.ContinueWithSameAgent(),
	}

	dec := o.route(ctx, st)

	// A cancelled turn commits nothing, even when the stages degraded into
	// a no-selection verdict because every CanHandle call failed.
	if err := ctx.Err(); err != nil {
		return o.finishFailure(tc.SessionID, turnID, "", start, err)
	}

	if dec.agent == nil {
		return o.finishNoSelection(ctx, st, dec, start)
	}

	hr, err := o.safeProcess(ctx, dec.agent, st)
	if err != nil {
		o.reportHandlerError(st, dec.stage, dec.agent.ID(), err)
		return o.finishFailure(tc.SessionID, turnID, dec.agent.ID(), start, err)
	}

	o.commit(ctx, st, dec, hr)

	elapsed := time.Since(start)
	o.stats.recordSelection(dec.agent.ID(), dec.basis, dec.confidence, elapsed)

	sel := events.New(events.EventAgentSelected)
	sel.SessionID = sess.ID()
	sel.TurnID = turnID
	sel.AgentID = dec.agent.ID()
	sel.Stage = dec.stage
	sel.Basis = dec.basis.String()
	sel.Confidence = dec.confidence
	sel.Intent = tc.Intent
	sel.Reason = dec.reason
	o.bus.Publish(sel)

	if hr.IsClosing {
		end := events.New(events.EventSessionEnded)
		end.SessionID = sess.ID()
		end.TurnID = turnID
		o.bus.Publish(end)
	}

	done := events.New(events.EventTurnCompleted)
	done.SessionID = sess.ID()
	done.TurnID = turnID
	done.AgentID = dec.agent.ID()
	done.Basis = dec.basis.String()
	done.Confidence = dec.confidence
	done.DurationMs = elapsed.Milliseconds()
	o.bus.Publish(done)

	o.log.Info().
		Str("session", sess.ID()).
		Str("agent", dec.agent.ID()).
		Str("stage", dec.stage).
		Str("basis", dec.basis.String()).
		Float64("confidence", dec.confidence).
		Dur("took", elapsed).
		Msg("turn routed")

	return &types.RoutingResult{
		Success:           true,
		Response:          hr.Text,
		SelectedAgent:     dec.agent.ID(),
		Basis:             dec.basis,
		Confidence:        dec.confidence,
		Intent:            tc.Intent,
		ContextUsed:       dec.contextUsed,
		ConversationEnded: hr.IsClosing,
		ProcessingTime:    elapsed,
		TurnID:            turnID,
		SessionID:         sess.ID(),
	}
}

// route runs the stages in order and returns the first verdict. The
// evaluation stage always decides, one way or the other.
func (o *Orchestrator) route(ctx context.Context, st *turnState) *decision {
	stages := []pipelineStage{
		&specialStage{o: o},    // explicit overrides and bare greetings
		&intentStage{o: o},     // high-confidence classified intent
		&continuityStage{o: o}, // stay with the previous agent
		&evaluationStage{o: o}, // full scoring pass, always terminal
	}

	for _, stage := range stages {
		if ctx.Err() != nil {
			break
		}
		dec := stage.Execute(ctx, st)
		if dec == nil {
			continue
		}
		dec.stage = stage.Name()
		if dec.agent != nil {
			o.log.Debug().
				Str("stage", dec.stage).
				Str("agent", dec.agent.ID()).
				Float64("confidence", dec.confidence).
				Str("reason", dec.reason).
				Msg("stage decided turn")
		}
		return dec
	}
	return &decision{stage: "evaluation", reason: "turn cancelled before a stage could decide"}
}

// ═══════════════════════════════════════════════════════════════════════════
// Stage 1: special cases
// ═══════════════════════════════════════════════════════════════════════════

// specialStage handles explicit agent overrides and bare greetings before
// any scoring happens.
type specialStage struct {
	o *Orchestrator
}

func (s *specialStage) Name() string { return "special" }

func (s *specialStage) Execute(ctx context.Context, st *turnState) *decision {
	if name := strings.TrimSpace(st.tc.AgentName); name != "" {
		if a, ok := s.o.reg.ByName(name); ok {
			return &decision{
				agent:       a,
				confidence:  explicitConfidence,
				basis:       types.BasisExplicit,
				contextUsed: true,
				reason:      "host requested this agent",
			}
		}
		s.o.log.Warn().Str("agent_name", name).Msg("requested agent is not registered, routing normally")
	}

	if !isGreeting(st.input) {
		return nil
	}

	// A greeting mid-conversation goes back to whoever spoke last; a
	// greeting with nothing to resume is answered with the capability
	// menu rather than guessed at.
	if last := st.sess.LastSelectedAgent(); last != "" && !st.sess.Ended() {
		if a, ok := s.o.reg.ByID(last); ok {
			return &decision{
				agent:      a,
				confidence: greetingContinuityConfidence,
				basis:      types.BasisContinuity,
				reason:     "greeting resumes the previous conversation",
			}
		}
	}
	return &decision{reason: "greeting with no conversation to resume"}
}

func isGreeting(input string) bool {
	return greetingRe.MatchString(input) && len(strings.Fields(input)) <= greetingMaxWords
}

// ═══════════════════════════════════════════════════════════════════════════
// Stage 2: intent routing
// ═══════════════════════════════════════════════════════════════════════════

// intentStage short-circuits when the host supplied a confidently
// classified intent that maps to a registered agent. The mapping is a hint,
// not an order: the agent re-validates with its own CanHandle, unboosted.
type intentStage struct {
	o *Orchestrator
}

func (s *intentStage) Name() string { return "intent" }

func (s *intentStage) Execute(ctx context.Context, st *turnState) *decision {
	intent := strings.TrimSpace(st.tc.Intent)
	if intent == "" || !s.o.scorer.HighConfidence(st.tc.IntentConfidence) {
		return nil
	}

	target, ok := s.o.scorer.AgentForIntent(intent)
	if !ok {
		return nil
	}
	a, ok := s.o.reg.ByID(target)
	if !ok {
		s.o.log.Debug().Str("intent", intent).Str("agent", target).Msg("intent maps to unregistered agent")
		return nil
	}

	raw, err := s.o.safeCanHandle(ctx, a, st.input, st.tc)
	if err != nil {
		s.o.reportHandlerError(st, s.Name(), a.ID(), err)
		return nil
	}
	if !s.o.scorer.AboveThreshold(raw) {
		s.o.log.Debug().Str("agent", a.ID()).Float64("score", raw).Msg("intent target scored below primary threshold")
		return nil
	}

	return &decision{
		agent:       a,
		confidence:  raw,
		basis:       types.BasisIntent,
		contextUsed: true,
		reason:      fmt.Sprintf("intent %q classified at %.2f", intent, st.tc.IntentConfidence),
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Stage 3: continuity routing
// ═══════════════════════════════════════════════════════════════════════════

// continuityStage keeps a conversation with its current agent, either
// because that agent asked for the next turn (explicit) or because the
// last interaction was recent (time-based). A detected topic change
// abandons continuity and falls through to the full evaluation.
type continuityStage struct {
	o *Orchestrator
}

func (s *continuityStage) Name() string { return "continuity" }

func (s *continuityStage) Execute(ctx context.Context, st *turnState) *decision {
	sess := st.sess
	last := sess.LastSelectedAgent()
	if last == "" || sess.Ended() {
		return nil
	}

	explicit := st.hadContinueFlag || st.tc.ContinueConversation
	if !explicit {
		lastAt := sess.LastInteractionAt()
		if lastAt.IsZero() || time.Since(lastAt) > s.o.cfg.Session.RecencyWindow {
			return nil
		}
	}

	a, ok := s.o.reg.ByID(last)
	if !ok {
		return nil
	}

	if changed, reason := s.o.detector.Changed(ctx, st.input, last, st.tc); changed {
		st.topicChanged = true

		ev := events.New(events.EventTopicChanged)
		ev.SessionID = sess.ID()
		ev.TurnID = st.turnID
		ev.AgentID = last
		ev.Stage = s.Name()
		ev.Reason = reason
		s.o.bus.Publish(ev)

		s.o.log.Info().Str("agent", last).Str("reason", reason).Msg("topic changed, abandoning continuity")
		return nil
	}

	raw, err := s.o.safeCanHandle(ctx, a, st.input, st.tc)
	if err != nil {
		s.o.reportHandlerError(st, s.Name(), a.ID(), err)
		return nil
	}

	adjusted := s.o.scorer.ContinuityBonus(raw, false, explicit)
	cleared := s.o.scorer.AboveThreshold(adjusted)
	mode := "explicit"
	if !explicit {
		// Time-based continuity is weaker evidence, so it gets the
		// relaxed fallback gate instead of the primary one.
		cleared = s.o.scorer.AboveFallback(adjusted)
		mode = "time-based"
	}
	if !cleared {
		s.o.log.Debug().Str("agent", a.ID()).Float64("score", adjusted).Str("mode", mode).Msg("continuity score below gate")
		return nil
	}

	return &decision{
		agent:       a,
		confidence:  adjusted,
		basis:       types.BasisContinuity,
		contextUsed: true,
		reason:      fmt.Sprintf("%s continuity with %s", mode, last),
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Stage 4: full evaluation
// ═══════════════════════════════════════════════════════════════════════════

// evaluationStage scores every registered agent, applies contextual boosts,
// ranks, and resolves near-ties through the configured priority overrides.
// It always returns a verdict.
type evaluationStage struct {
	o *Orchestrator
}

func (s *evaluationStage) Name() string { return "evaluation" }

func (s *evaluationStage) Execute(ctx context.Context, st *turnState) *decision {
	agents := s.o.reg.All()
	if len(agents) == 0 {
		return &decision{reason: "no agents registered"}
	}

	candidates := make([]scoring.Candidate, 0, len(agents))
	for _, a := range agents {
		raw, err := s.o.safeCanHandle(ctx, a, st.input, st.tc)
		if err != nil {
			s.o.reportHandlerError(st, s.Name(), a.ID(), err)
			continue
		}
		adjusted, used := s.o.scorer.ContextualBoost(a.ID(), raw, st.tc.Intent, st.known)
		candidates = append(candidates, scoring.Candidate{
			Agent:       a,
			Raw:         raw,
			Adjusted:    adjusted,
			ContextUsed: used,
		})
	}
	if len(candidates) == 0 {
		return &decision{reason: "every agent failed capability evaluation"}
	}

	ranked := s.o.scorer.Rank(candidates)
	ranked = s.o.applyPriorityOverrides(st, ranked)

	top := ranked[0]
	if !s.o.scorer.AboveThreshold(top.Adjusted) {
		return &decision{reason: fmt.Sprintf("best candidate %s scored %.2f, below threshold", top.Agent.ID(), top.Adjusted)}
	}

	return &decision{
		agent:       top.Agent,
		confidence:  top.Adjusted,
		basis:       types.BasisEvaluation,
		contextUsed: top.ContextUsed,
		reason:      fmt.Sprintf("ranked first of %d candidates", len(candidates)),
	}
}

// applyPriorityOverrides resolves near-ties. When the top two candidates sit
// within the tie margin, the first configured rule whose signal matches the
// input and whose agent holds one of the two spots settles the tie: a
// matching runner-up is promoted with the rule's boost, capped, and the
// field re-ranked; a matching leader just keeps its spot.
func (o *Orchestrator) applyPriorityOverrides(st *turnState, ranked []scoring.Candidate) []scoring.Candidate {
	if len(ranked) < 2 || len(o.rules) == 0 {
		return ranked
	}
	if ranked[0].Adjusted-ranked[1].Adjusted > o.cfg.Routing.TieMargin {
		return ranked
	}

	for _, rule := range o.rules {
		if !rule.matches(st.input) {
			continue
		}
		switch rule.agentID {
		case ranked[0].Agent.ID():
			// Already leading; the tie is settled.
		case ranked[1].Agent.ID():
			promoted := rule.cap
			if v := ranked[1].Adjusted + rule.boost; v < promoted {
				promoted = v
			}
			o.log.Debug().
				Str("rule", rule.name).
				Str("agent", rule.agentID).
				Float64("from", ranked[1].Adjusted).
				Float64("to", promoted).
				Msg("priority override promotes runner-up")
			ranked[1].Adjusted = promoted
			ranked[1].ContextUsed = true
			ranked = o.scorer.Rank(ranked)
		default:
			// Rule's agent is not in contention; try the next rule.
			continue
		}
		return ranked
	}
	return ranked
}

// ═══════════════════════════════════════════════════════════════════════════
// Commit and terminal outcomes
// ═══════════════════════════════════════════════════════════════════════════

// commit writes the turn's outcome into session memory. It runs only after
// the selected agent's Process succeeded; failed and cancelled turns leave
// the session exactly as they found it.
func (o *Orchestrator) commit(ctx context.Context, st *turnState, dec *decision, hr *types.HandlerResult) {
	sess := st.sess

	sess.Record(dec.agent.ID(), dec.confidence, st.tc.Intent, dec.contextUsed)
	sess.SetLastInput(st.input)
	sess.AddEntities(hr.ExtractedEntities)

	// The handler owns the continue flag from here: set when it asked for
	// the next turn, otherwise cleared, and force-cleared when it closed
	// the conversation. A selection also revives an ended session.
	sess.SetContinueWithSameAgent(hr.ContinueWithSameAgent && !hr.IsClosing)
	sess.SetEnded(hr.IsClosing)

	o.mem.Persist(ctx, sess)
}

// finishNoSelection completes a turn that selected nobody. The turn still
// consumed an explicit continue flag if one was set, and still updates the
// last input, but appends no routing record.
func (o *Orchestrator) finishNoSelection(ctx context.Context, st *turnState, dec *decision, start time.Time) *types.RoutingResult {
	if st.hadContinueFlag {
		st.sess.SetContinueWithSameAgent(false)
	}
	st.sess.SetLastInput(st.input)
	o.mem.Persist(ctx, st.sess)

	elapsed := time.Since(start)
	o.stats.recordNoSelection(elapsed)

	ev := events.New(events.EventNoSelection)
	ev.SessionID = st.sess.ID()
	ev.TurnID = st.turnID
	ev.Stage = dec.stage
	ev.Reason = dec.reason
	o.bus.Publish(ev)

	done := events.New(events.EventTurnCompleted)
	done.SessionID = st.sess.ID()
	done.TurnID = st.turnID
	done.Basis = types.BasisNone.String()
	done.DurationMs = elapsed.Milliseconds()
	o.bus.Publish(done)

	o.log.Info().
		Str("session", st.sess.ID()).
		Str("stage", dec.stage).
		Str("reason", dec.reason).
		Dur("took", elapsed).
		Msg("no agent selected")

	return &types.RoutingResult{
		Success:          true,
		Response:         noSelectionResponse,
		Basis:            types.BasisNone,
		Intent:           st.tc.Intent,
		ProcessingTime:   elapsed,
		SuggestedActions: o.suggestedActions(),
		TurnID:           st.turnID,
		SessionID:        st.sess.ID(),
	}
}

// finishFailure completes a turn that failed outright. Session memory is
// untouched so the host can retry the same turn.
func (o *Orchestrator) finishFailure(sessionID, turnID, agentID string, start time.Time, err error) *types.RoutingResult {
	elapsed := time.Since(start)
	o.stats.recordFailure(elapsed)

	ev := events.New(events.EventTurnFailed)
	ev.SessionID = sessionID
	ev.TurnID = turnID
	ev.AgentID = agentID
	ev.Err = err.Error()
	ev.DurationMs = elapsed.Milliseconds()
	o.bus.Publish(ev)

	o.log.Error().
		Err(err).
		Str("session", sessionID).
		Str("turn", turnID).
		Dur("took", elapsed).
		Msg("turn failed")

	return &types.RoutingResult{
		Success:        false,
		Response:       failureResponse,
		Basis:          types.BasisNone,
		ProcessingTime: elapsed,
		TurnID:         turnID,
		SessionID:      sessionID,
	}
}

// suggestedActions lists every registered agent as a next step, in
// registration order.
func (o *Orchestrator) suggestedActions() []types.SuggestedAction {
	agents := o.reg.All()
	out := make([]types.SuggestedAction, 0, len(agents))
	for _, a := range agents {
		out = append(out, types.SuggestedAction{
			ID:          a.ID(),
			Name:        a.Name(),
			Description: a.Description(),
		})
	}
	return out
}

// ═══════════════════════════════════════════════════════════════════════════
// Agent call isolation
// ═══════════════════════════════════════════════════════════════════════════

// safeCanHandle calls an agent's CanHandle with panic isolation and clamps
// the returned score into [0,1]. A misbehaving agent costs itself the turn,
// never the turn itself.
func (o *Orchestrator) safeCanHandle(ctx context.Context, a types.Agent, input string, tc types.Context) (score float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			score = 0
			err = &HandlerError{AgentID: a.ID(), Op: "can_handle", Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	score, cerr := a.CanHandle(ctx, input, tc)
	if cerr != nil {
		return 0, &HandlerError{AgentID: a.ID(), Op: "can_handle", Err: cerr}
	}
	return scoring.Clamp01(score), nil
}

// safeProcess calls the selected agent's Process with panic isolation. The
// agent sees the session's remembered entities merged under the turn's own.
func (o *Orchestrator) safeProcess(ctx context.Context, a types.Agent, st *turnState) (hr *types.HandlerResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			hr = nil
			err = &HandlerError{AgentID: a.ID(), Op: "process", Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	tc := st.tc
	tc.Entities = st.known

	res, perr := a.Process(ctx, st.input, tc)
	if perr != nil {
		return nil, &HandlerError{AgentID: a.ID(), Op: "process", Err: perr}
	}
	if res == nil {
		return nil, &HandlerError{AgentID: a.ID(), Op: "process", Err: fmt.Errorf("handler returned no result")}
	}
	return res, nil
}

// reportHandlerError logs an isolated agent failure and publishes it.
func (o *Orchestrator) reportHandlerError(st *turnState, stage, agentID string, err error) {
	o.log.Warn().
		Err(err).
		Str("agent", agentID).
		Str("stage", stage).
		Msg("agent call failed, excluded for this turn")

	ev := events.New(events.EventHandlerError)
	ev.SessionID = st.sess.ID()
	ev.TurnID = st.turnID
	ev.AgentID = agentID
	ev.Stage = stage
	ev.Err = err.Error()
	o.bus.Publish(ev)
}
