// Package ports defines the interfaces (ports) that connect the aggregation
// core to its collaborators.
//
// # Port Interfaces
//
//   - [Transport]: payload limits, progress and batch dispatch
//   - [Executor]: runs a received call against the local handler table
//
// # Usage
//
// The application layer (internal/app) depends only on these interfaces.
// Adapters (internal/adapters) implement them over an in-process fabric or
// TCP. Tests substitute mocks.
package ports
