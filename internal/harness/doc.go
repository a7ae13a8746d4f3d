// Package harness runs scripted scenarios against the tick loop.
//
// A scenario compiles a set of asset definitions, then replays a list of
// steps against a fresh in-memory store under a fake clock: advancing time,
// recording materializations and observations, running ticks and completing
// launched runs. Each tick is captured in a trace that assertions and golden
// files compare against.
//
// # Scenario Format
//
//	name: eager_pipeline
//	description: "Downstream assets follow their parents"
//	start: "2024-01-01T00:00:00Z"
//	run_tags: { team: data }
//	definitions: |
//	  assets:
//	    - key: raw
//	      condition: eager
//	    - key: mart
//	      deps: [raw]
//	      condition: eager
//	steps:
//	  - tick: true
//	  - complete_runs: success
//	  - advance: 1h
//	  - materialize: { asset: raw }
//	  - tick: true
//	assertions:
//	  - type: requested
//	    tick: 1
//	    partitions: [raw, mart]
//	  - type: run_count
//	    tick: 2
//	    count: 1
//
// definition_files lists definitions files or directories to load in
// addition to the inline definitions. Relative paths resolve against the
// scenario file.
//
// # Steps
//
// Every step does exactly one thing:
//
//   - advance: moves the clock by a Go duration
//   - materialize: records a materialization of an asset, optionally per
//     partition and with an explicit data version
//   - observe: records an observation; data_version is required
//   - tick: runs one daemon tick and appends it to the trace
//   - complete_runs: moves every active run to the given status; success also
//     materializes the run's targets
//
// # Assertion Types
//
//   - requested: every listed partition was requested on the tick
//   - not_requested: none of the listed partitions was requested on the tick
//   - run_count: the tick launched exactly count runs
//   - run_tags: every run of the tick carries the listed tags
//
// # Deterministic Testing
//
// The clock only moves on advance steps and run ids are content hashes, so
// a scenario produces the same trace on every run. Backfill ids are reduced
// to a flag in the trace.
//
// # Usage
//
//	s, err := harness.LoadScenario("testdata/scenarios/eager_pipeline.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := harness.Run(ctx, s)
//
// In tests, RunWithGolden runs a scenario and compares its trace against
// testdata/golden/<name>.golden.
package harness
