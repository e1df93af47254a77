// Package domain contains the core entities of the aggregation layer.
//
// This package is the innermost layer. It has no dependencies on transports,
// serialization or logging and holds only data and invariants.
//
// # Entities
//
//   - [CallRecord]: one addressed, serialized remote call
//   - [Batch]: an ordered run of call records bound for one process
//   - [Reply]: the outcome of one call, correlated by record ID
//   - [Topology]: the static process/worker layout and the flush partition
package domain
