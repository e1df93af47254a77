package domain

// Batch is an ordered run of call records bound for one destination process.
// Records keep their push order. The count is explicit because partial
// flushes produce batches shorter than the buffer capacity.
type Batch struct {
	// Dest is the destination process index.
	Dest int

	// Records contains the calls in push order.
	Records []CallRecord
}

// NewBatch wraps drained records into a batch for dest.
func NewBatch(dest int, records []CallRecord) *Batch {
	return &Batch{Dest: dest, Records: records}
}

// Size returns the number of records in the batch.
func (b *Batch) Size() int {
	return len(b.Records)
}

// Empty returns true if the batch has no records.
func (b *Batch) Empty() bool {
	return len(b.Records) == 0
}

// PayloadBytes returns the sum of all record payload lengths.
func (b *Batch) PayloadBytes() int {
	total := 0
	for _, r := range b.Records {
		total += len(r.Payload)
	}
	return total
}

// Fail completes every record's handle with err.
func (b *Batch) Fail(err error) {
	for _, r := range b.Records {
		if r.Reply != nil {
			r.Reply.Complete(nil, err)
		}
	}
}

// ReplyBatch carries the replies for one request batch back to its source.
type ReplyBatch struct {
	Dest    int
	Replies []Reply
}
