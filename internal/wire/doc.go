// Package wire encodes call batches and reply batches into transport frames.
//
// Both frame types carry an explicit record count after a fixed header:
//
//	request: kind(1)=1 | src(4) | count(4) | count * [id(8) worker(1) handler(2) len(2) payload]
//	reply:   kind(1)=2 | src(4) | count(4) | count * [id(8) status(1) len(2) payload]
//
// All integers are big-endian. Each request record fits in RequestRecordSize
// bytes and each reply in ReplyRecordSize bytes; capacity negotiation uses
// these sizes to bound a full batch by the transport's payload limits.
//
// Arguments and results are serialized with msgpack (see Marshal).
package wire
