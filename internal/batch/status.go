package batch

// PushStatus is the result of pushing a record into a Buffer.
type PushStatus int

const (
	// PushFail means the buffer is full and not yet drained. Retry later.
	PushFail PushStatus = iota

	// PushSuccess means the record was appended and the buffer has room left.
	PushSuccess

	// PushSuccessAndFull means the record filled the buffer. The caller that
	// sees this status owns the full batch and must drain it with PopFull.
	PushSuccessAndFull
)

// String returns a human-readable representation of the status.
func (s PushStatus) String() string {
	switch s {
	case PushFail:
		return "FAIL"
	case PushSuccess:
		return "SUCCESS"
	case PushSuccessAndFull:
		return "SUCCESS_AND_FULL"
	default:
		return "UNKNOWN"
	}
}
