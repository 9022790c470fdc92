package protocol

import (
	"encoding/binary"
	"io"

	"github.com/cockroachdb/errors"
)

// Status tells the client how to read a response payload.
type Status uint8

const (
	// StatusOK carries the result of the command, possibly empty.
	StatusOK Status = iota
	// StatusNotFound means the key has no value. The payload is empty.
	StatusNotFound
	// StatusError carries an error message.
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusNotFound:
		return "not found"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// ResponseHeaderSize is status (1) + payload_len (4).
const ResponseHeaderSize = 5

type Response struct {
	Status  Status
	Payload []byte
}

// EncodeResponse serializes a response as
//
//	<status:uint8><payload_len:uint32><payload>
//
// with the length in big-endian byte order.
func EncodeResponse(status Status, payload []byte) ([]byte, error) {
	if len(payload) > MaxFrameSize {
		return nil, errors.Wrapf(ErrFrameTooLarge, "%d byte response", len(payload))
	}

	buf := make([]byte, 0, ResponseHeaderSize+len(payload))
	buf = append(buf, byte(status))
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(payload)))
	buf = append(buf, payload...)

	return buf, nil
}

func DecodeResponse(r io.Reader) (*Response, error) {
	var header [ResponseHeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, errors.Wrap(err, "reading response header")
	}

	status := Status(header[0])
	if status > StatusError {
		return nil, errors.Newf("unknown response status %d", header[0])
	}

	size := binary.BigEndian.Uint32(header[1:])
	if size > MaxFrameSize {
		return nil, errors.Wrapf(ErrFrameTooLarge, "%d byte response", size)
	}

	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, errors.Wrap(err, "reading response payload")
	}

	return &Response{Status: status, Payload: payload}, nil
}
