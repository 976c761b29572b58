// Package switchboard routes conversational turns to the domain agent best
// suited to handle them.
//
// # Overview
//
// The orchestrator accepts one turn at a time (user input plus an optional
// upstream classification in types.Context) and decides which registered
// agent should process it. Routing runs as a staged pipeline that
// short-circuits at the first stage able to decide:
//
//  1. Special cases: an explicit agent named by the host wins outright; a
//     bare greeting resumes the previous agent, or returns the capability
//     menu when there is nothing to resume.
//  2. Intent routing: a confidently classified intent that maps to a
//     registered agent short-circuits, after the agent re-validates the
//     input with its own CanHandle score.
//  3. Continuity routing: conversations stick to their current agent, either
//     because that agent asked for the next turn or because the last
//     interaction was recent, unless the topic visibly changed.
//  4. Full evaluation: every agent scores the input, contextual boosts from
//     remembered entities and intent alignment are applied, and the ranked
//     winner is selected if it clears the confidence threshold. Near-ties
//     are settled by configurable priority rules.
//
// When no stage selects an agent the turn still completes: the result
// carries no agent, zero confidence and a list of suggested actions built
// from the registry.
//
// # Sessions
//
// Per-session memory (working keys, remembered entities, a bounded routing
// history, and the continuity flags) drives stages 1 and 3 and the
// contextual boosts of stage 4. Memory commits only after the selected
// agent's Process succeeds; a failed or cancelled turn leaves the session
// untouched so the host can retry. Sessions optionally persist across
// restarts in a local SQLite file.
//
// Turns for different sessions may run concurrently. Turns for the same
// session must be serialized by the host.
//
// # Usage
//
//	cfg := switchboard.DefaultConfig()
//	o, err := switchboard.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer o.Close(context.Background())
//
//	o.RegisterAgents(accountAgent, shippingAgent, storesAgent)
//
//	res := o.Process(ctx, "where is my order 12345?", types.Context{
//	    SessionID: "visitor-42",
//	})
//	fmt.Println(res.SelectedAgent, res.Confidence, res.Response)
//
// # Events
//
// The engine publishes structured events (turn lifecycle, selections,
// topic changes, isolated handler errors) on an in-process bus; subscribe
// with Orchestrator.Subscribe or SubscribeAll. Publishing never blocks a
// turn.
//
// # Configuration
//
// All thresholds, boosts, the recency window, topic-change settings and the
// domain bindings (intent mappings, entity alignments, priority rules) live
// in Config, loaded from ~/.switchboard/config.yaml with SWITCHBOARD_*
// environment overrides. See DefaultConfig for the shipped defaults.
package switchboard
