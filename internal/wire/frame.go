package wire

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/bft-labs/rpcagg/internal/domain"
)

// Kind identifies a frame type.
type Kind uint8

const (
	KindRequest Kind = 1
	KindReply   Kind = 2
)

// String returns the string representation of Kind.
func (k Kind) String() string {
	switch k {
	case KindRequest:
		return "request"
	case KindReply:
		return "reply"
	default:
		return fmt.Sprintf("unknown(%d)", k)
	}
}

// Frame layout sizes.
const (
	BatchHeaderSize   = 1 + 4 + 4
	RequestHeaderSize = 8 + 1 + 2 + 2
	ReplyHeaderSize   = 8 + 1 + 2

	// RequestRecordSize is the largest encoded call record.
	RequestRecordSize = 128
	// ReplyRecordSize is the largest encoded reply.
	ReplyRecordSize = 64

	MaxArgsSize   = RequestRecordSize - RequestHeaderSize
	MaxResultSize = ReplyRecordSize - ReplyHeaderSize
)

// ErrMalformed is returned when a frame cannot be decoded.
var ErrMalformed = errors.New("wire: malformed frame")

// PeekKind returns the kind of an encoded frame.
func PeekKind(frame []byte) (Kind, error) {
	if len(frame) < BatchHeaderSize {
		return 0, fmt.Errorf("%w: %d bytes", ErrMalformed, len(frame))
	}
	k := Kind(frame[0])
	if k != KindRequest && k != KindReply {
		return 0, fmt.Errorf("%w: kind %d", ErrMalformed, frame[0])
	}
	return k, nil
}

func putHeader(buf []byte, kind Kind, src, count int) []byte {
	buf = append(buf, byte(kind))
	buf = binary.BigEndian.AppendUint32(buf, uint32(src))
	buf = binary.BigEndian.AppendUint32(buf, uint32(count))
	return buf
}

func readHeader(frame []byte, want Kind) (src, count int, err error) {
	k, err := PeekKind(frame)
	if err != nil {
		return 0, 0, err
	}
	if k != want {
		return 0, 0, fmt.Errorf("%w: got %s frame, want %s", ErrMalformed, k, want)
	}
	src = int(binary.BigEndian.Uint32(frame[1:5]))
	count = int(binary.BigEndian.Uint32(frame[5:9]))
	return src, count, nil
}

// EncodeRequest encodes a call batch sent by process src.
func EncodeRequest(src int, b *domain.Batch) ([]byte, error) {
	size := BatchHeaderSize + b.Size()*RequestHeaderSize + b.PayloadBytes()
	buf := putHeader(make([]byte, 0, size), KindRequest, src, b.Size())
	for _, r := range b.Records {
		if len(r.Payload) > MaxArgsSize {
			return nil, fmt.Errorf("%w: record %d has %d bytes, max %d",
				domain.ErrPayloadTooLarge, r.ID, len(r.Payload), MaxArgsSize)
		}
		buf = binary.BigEndian.AppendUint64(buf, r.ID)
		buf = append(buf, r.Worker)
		buf = binary.BigEndian.AppendUint16(buf, r.Handler)
		buf = binary.BigEndian.AppendUint16(buf, uint16(len(r.Payload)))
		buf = append(buf, r.Payload...)
	}
	return buf, nil
}

// DecodeRequest decodes a request frame. Payloads alias the frame.
func DecodeRequest(frame []byte) (src int, records []domain.CallRecord, err error) {
	src, count, err := readHeader(frame, KindRequest)
	if err != nil {
		return 0, nil, err
	}
	if count > (len(frame)-BatchHeaderSize)/RequestHeaderSize {
		return 0, nil, fmt.Errorf("%w: count %d exceeds frame", ErrMalformed, count)
	}
	records = make([]domain.CallRecord, 0, count)
	rest := frame[BatchHeaderSize:]
	for i := 0; i < count; i++ {
		if len(rest) < RequestHeaderSize {
			return 0, nil, fmt.Errorf("%w: truncated record %d", ErrMalformed, i)
		}
		r := domain.CallRecord{
			ID:      binary.BigEndian.Uint64(rest[0:8]),
			Worker:  rest[8],
			Handler: binary.BigEndian.Uint16(rest[9:11]),
		}
		n := int(binary.BigEndian.Uint16(rest[11:13]))
		rest = rest[RequestHeaderSize:]
		if len(rest) < n {
			return 0, nil, fmt.Errorf("%w: truncated payload in record %d", ErrMalformed, i)
		}
		r.Payload = rest[:n:n]
		rest = rest[n:]
		records = append(records, r)
	}
	if len(rest) != 0 {
		return 0, nil, fmt.Errorf("%w: %d trailing bytes", ErrMalformed, len(rest))
	}
	return src, records, nil
}

// EncodeReply encodes the replies sent by process src. Error payloads longer
// than MaxResultSize are truncated; oversized OK payloads are an error.
func EncodeReply(src int, replies []domain.Reply) ([]byte, error) {
	size := BatchHeaderSize
	for _, r := range replies {
		size += ReplyHeaderSize + len(r.Payload)
	}
	buf := putHeader(make([]byte, 0, size), KindReply, src, len(replies))
	for _, r := range replies {
		payload := r.Payload
		if len(payload) > MaxResultSize {
			if r.Status == domain.ReplyOK {
				return nil, fmt.Errorf("%w: reply %d has %d bytes, max %d",
					domain.ErrPayloadTooLarge, r.ID, len(payload), MaxResultSize)
			}
			payload = payload[:MaxResultSize]
		}
		buf = binary.BigEndian.AppendUint64(buf, r.ID)
		buf = append(buf, byte(r.Status))
		buf = binary.BigEndian.AppendUint16(buf, uint16(len(payload)))
		buf = append(buf, payload...)
	}
	return buf, nil
}

// DecodeReply decodes a reply frame. Payloads alias the frame.
func DecodeReply(frame []byte) (src int, replies []domain.Reply, err error) {
	src, count, err := readHeader(frame, KindReply)
	if err != nil {
		return 0, nil, err
	}
	if count > (len(frame)-BatchHeaderSize)/ReplyHeaderSize {
		return 0, nil, fmt.Errorf("%w: count %d exceeds frame", ErrMalformed, count)
	}
	replies = make([]domain.Reply, 0, count)
	rest := frame[BatchHeaderSize:]
	for i := 0; i < count; i++ {
		if len(rest) < ReplyHeaderSize {
			return 0, nil, fmt.Errorf("%w: truncated reply %d", ErrMalformed, i)
		}
		r := domain.Reply{
			ID:     binary.BigEndian.Uint64(rest[0:8]),
			Status: domain.ReplyStatus(rest[8]),
		}
		n := int(binary.BigEndian.Uint16(rest[9:11]))
		rest = rest[ReplyHeaderSize:]
		if len(rest) < n {
			return 0, nil, fmt.Errorf("%w: truncated payload in reply %d", ErrMalformed, i)
		}
		r.Payload = rest[:n:n]
		rest = rest[n:]
		replies = append(replies, r)
	}
	if len(rest) != 0 {
		return 0, nil, fmt.Errorf("%w: %d trailing bytes", ErrMalformed, len(rest))
	}
	return src, replies, nil
}

// Capacity returns how many records a full batch may hold under the given
// request and reply payload limits.
func Capacity(maxRequest, maxReply int) int {
	req := (maxRequest - BatchHeaderSize) / RequestRecordSize
	rep := (maxReply - BatchHeaderSize) / ReplyRecordSize
	c := min(req, rep)
	if c < 0 {
		return 0
	}
	return c
}
