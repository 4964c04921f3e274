// Package harness runs report scenarios: executable examples that pin down
// what a defined report renders and returns.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: client_totals
//	description: "Invoice totals per client"
//	definition: ../definitions/billing.cue
//	fixture: ../fixtures/billing.yaml
//	steps:
//	  - report: client_totals
//	    expect:
//	      rows:
//	        - {client: Vinny, client_id: 1, amount: 19, c: 2}
//	  - report: client_totals
//	    action: fx
//	    args: [sum, amount]
//	    expect:
//	      value: 23
//	  - report: transactions
//	    conditions:
//	      - {field: client_id, value: 1, nested: true}
//	    expect:
//	      sql: SELECT ...
//	assertions:
//	  - type: row_count
//	    step: 1
//	    count: 2
//	  - type: final_state
//	    table: invoice
//	    where: { id: 1 }
//	    expect: { amount: 4 }
//
// Definition and fixture paths are relative to the scenario file. Without a
// fixture, steps only render SQL.
//
// # Assertion Types
//
//   - trace_contains: a step ran the given action on the given report
//   - row_count: a step returned exactly N rows
//   - row_contains: a step returned a row matching the given values
//   - final_state: queries a fixture table and verifies expected values
//
// # Deterministic Testing
//
// Each scenario runs against a fresh in-memory SQLite database and every
// step builds its report anew, so steps cannot leak conditions into each
// other. Traces serialize to canonical JSON (sorted keys, NFC strings,
// shortest decimal numbers) for golden file comparison.
//
// # Usage
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/client_totals.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	result, err := harness.Run(scenario)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if !result.Pass {
//	    for _, msg := range result.Errors {
//	        log.Println(msg)
//	    }
//	}
package harness
