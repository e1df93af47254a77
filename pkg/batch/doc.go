// Package batch documents the per-destination aggregation buffer.
//
// The aggregation manager owns one Buffer per destination process. Its
// contract:
//
//	status := buf.Push(rec)
//	switch status {
//	case PushFail:
//	    // full and not yet drained: drive progress, then push again
//	case PushSuccessAndFull:
//	    records := buf.PopFull() // exactly capacity records, push order
//	    // dispatch records
//	}
//
// A periodic flusher calls PopNoFull to drain partially filled buffers.
// It never takes a batch that a pusher has already claimed as full.
//
// # Version
//
// Current version: 1.0.0
// Minimum compatible version: 1.0.0
//
// See version.go for version constants that can be used programmatically.
package batch
