// Package harness runs engine scenarios as executable contract tests.
//
// A scenario compiles a CUE catalog, builds a small world of actors and
// items, drives the engine through a list of steps, and checks the
// resulting trace.
//
// # Scenario Format
//
//	name: lifesteal_basic
//	description: "Ticker and listener scripts run for an equipped sword"
//	catalog: ../catalog
//	actors:
//	  - id: alice
//	    permissions: [glyph.lifesteal]
//	    equipment: { HAND: sword }
//	items:
//	  - id: sword
//	    type: DIAMOND_SWORD
//	    effects: { lifesteal: 3 }
//	steps:
//	  - tick: 2
//	  - event: { name: hit, actors: { attacker: alice }, item: sword }
//	  - check: { effect: unbreaking, item: sword, context: attain, expect: { pass: true } }
//	  - eval: { effect: lifesteal, variable: heal, level: 2, expect: "4" }
//	  - modify: { effect: lifesteal, variable: kills, item: sword, value: "5" }
//	assertions:
//	  - type: trace_contains
//	    script: heal(actor)
//	    actor: alice
//
// # Assertion Types
//
//   - trace_contains: a script ran, optionally for an actor, with matching vars
//   - trace_order: scripts first ran in the given order
//   - trace_count: a script ran exactly N times
//   - item_data: a value persisted for an item equals the expected string
//
// # Deterministic Testing
//
// Every run uses a fixed dispatch token, a logical tick counter
// (testutil.DeterministicClock), a recording script executor
// (testutil.Recorder) and a fresh in-memory SQLite store, so identical
// scenarios produce identical traces for golden comparison.
//
// WithPacing spaces tick steps by a wall-clock period. The trace is the same
// with or without it.
//
// # Usage
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/lifesteal.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := harness.Run(scenario)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, msg := range result.Errors {
//	    log.Println(msg)
//	}
package harness
