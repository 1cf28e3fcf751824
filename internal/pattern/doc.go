// Package pattern defines the persistent data model of the mistake-learning
// core: the Pattern record, its category-specific mistake shapes, structured
// prevention steps, the confidence function, deterministic identifiers, and
// the aggregate statistics view.
//
// # Patterns
//
// A Pattern captures one recurring tool usage mistake. Each pattern has:
//   - A deterministic id derived from (tool, category, normalized error hash)
//   - A category from a closed enum (incorrect parameter, parameter format,
//     missing prerequisite, workflow sequence, wrong tool selection)
//   - A mistake shape: a tagged union with one concrete record per category
//   - Ordered, structured prevention steps (kind + target + rationale)
//   - Counters (observations, successes after prevention) and a derived
//     confidence in [0.30, 0.99]
//
// # Mistake Shapes
//
// The Shape interface gives each category a concrete, compile-checked
// payload instead of a loose map. Shapes know how to merge their observed
// value lists and how to emit signature tokens for similarity scoring.
// Persistence uses a kind-tagged envelope so the concrete type survives a
// round trip; an unknown kind fails decoding rather than degrading silently.
//
// # Confidence
//
// Confidence derives from a monotonic step table keyed by observations,
// blended with the prevention success rate once success evidence exists,
// and clamped to [0.30, 0.99]. The table and blend weights are parameters
// (ConfidenceParams) so deployments can tune them; DefaultConfidenceParams
// carries the stock values.
package pattern
