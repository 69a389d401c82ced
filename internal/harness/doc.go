// Package harness runs relation-cache scenarios.
//
// A scenario names queries, seeds a dataset, and drives a coordinator
// through a list of steps while a gated transport holds every fetch until
// a step releases or fails it. The harness records the view after each
// step and every watch notification, checks expectations, and renders the
// trace as a golden report.
//
// # Scenario Format
//
//	name: dedup
//	description: "Concurrent requests share one transport call"
//	queries:
//	  post1:
//	    resource: comments
//	    target: post_id
//	    id: 1
//	    referencing: posts
//	    page: 1
//	    per_page: 2
//	dataset:
//	  comments:
//	    - { id: 10, post_id: 1 }
//	steps:
//	  - request: post1
//	  - request: post1
//	  - release: post1
//	  - expect: post1
//	    view: { ids: [10], total: 1, loaded: true }
//	assertions:
//	  - type: transport_calls
//	    count: 1
//
// # Steps
//
//   - request: Request the query; the view returned right away is recorded
//   - fetch: Fetch the query, answering its transport call from the dataset
//   - release: answer the held call with data/total, or from the dataset
//   - fail: fail the held call with error (temporary marks it retryable)
//   - upsert: write records as an outside writer would
//   - watch: subscribe to the query's view
//   - forget: drop the query's request state
//   - expect: compare the current view with the given fields
//
// # Deterministic Testing
//
// Fetch tokens come from a sequence generator and every step ends with a
// coordinator Sync, so traces are identical across runs.
package harness
