package batch

import (
	"github.com/bft-labs/rpcagg/internal/batch"
	"github.com/bft-labs/rpcagg/internal/domain"
)

// Public names for the buffer and the records it carries. Custom transports
// receive Batch values in Dispatch.
type (
	Buffer     = batch.Buffer
	PushStatus = batch.PushStatus
	Record     = domain.CallRecord
	Batch      = domain.Batch
	Completer  = domain.Completer
)

const (
	PushFail           = batch.PushFail
	PushSuccess        = batch.PushSuccess
	PushSuccessAndFull = batch.PushSuccessAndFull
)

// NewBuffer creates an empty buffer holding up to capacity records.
func NewBuffer(capacity int) *Buffer {
	return batch.NewBuffer(capacity)
}
