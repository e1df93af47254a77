package ports

import "github.com/bft-labs/rpcagg/internal/domain"

// Transport is the one-sided message layer underneath the aggregation core.
type Transport interface {
	// MaxRequestPayloadSize returns the largest request message in bytes.
	MaxRequestPayloadSize() int

	// MaxReplyPayloadSize returns the largest reply message in bytes.
	MaxReplyPayloadSize() int

	// Progress drives pending sends and receives. It may run handlers and
	// complete result handles. It must be safe to call from many goroutines
	// and from inside a retry loop that is itself running under Progress.
	Progress()

	// Dispatch hands a drained batch to the transport for delivery to the
	// destination process. It does not wait for replies.
	Dispatch(dest int, batch *domain.Batch) error
}
