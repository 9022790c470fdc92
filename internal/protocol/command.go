// Package protocol implements the framing used between kvs clients and the
// server. Every request is one command frame and is answered by exactly one
// response frame.
package protocol

import (
	"encoding/binary"
	"io"
	"math"

	"github.com/cockroachdb/errors"
)

// MaxFrameSize bounds the key and value of a single frame, so a corrupt
// length prefix cannot make the reader allocate without limit.
const MaxFrameSize = 256 << 20

// CommandHeaderSize is cmd_len (1) + key_len (4) + val_len (4).
const CommandHeaderSize = 9

// ErrFrameTooLarge is returned for frames whose payload exceeds MaxFrameSize.
var ErrFrameTooLarge = errors.New("frame too large")

// Command represents a decoded client command received by the server.
//
// A Command consists of a command name (Cmd), an optional key, and an optional
// value. The meaning of Key and Val depends on the command type (e.g. get,
// set, rm).
type Command struct {
	Cmd string // Command name (e.g. "get", "set", "rm")
	Key []byte // Key argument (may be empty)
	Val []byte // Value argument (may be empty)
}

// EncodeCommand serializes a client command into its wire format.
//
// The command is encoded as:
//
//	<cmd_len:uint8><key_len:uint32><val_len:uint32><cmd><key><val>
//
// All integer fields are encoded using big-endian byte order.
// The command name length is limited to 255 bytes.
func EncodeCommand(cmd string, key, val []byte) ([]byte, error) {
	if len(cmd) > math.MaxUint8 {
		return nil, errors.Newf("command name is %d bytes, limit is %d", len(cmd), math.MaxUint8)
	}
	if int64(len(key))+int64(len(val)) > MaxFrameSize {
		return nil, errors.Wrapf(ErrFrameTooLarge, "%d byte payload", len(key)+len(val))
	}

	buf := make([]byte, 0, CommandHeaderSize+len(cmd)+len(key)+len(val))
	buf = append(buf, uint8(len(cmd)))
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(key)))
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(val)))
	buf = append(buf, cmd...)
	buf = append(buf, key...)
	buf = append(buf, val...)

	return buf, nil
}

// DecodeCommand reads and decodes a command from r.
//
// It blocks until the full command has been read or an error occurs. io.EOF
// is returned only when r ends cleanly before a new frame.
func DecodeCommand(r io.Reader) (*Command, error) {
	var header [CommandHeaderSize]byte
	if n, err := io.ReadFull(r, header[:]); err != nil {
		if err == io.EOF && n == 0 {
			return nil, io.EOF
		}
		return nil, errors.Wrap(err, "reading command header")
	}

	cmdLen := int64(header[0])
	keyLen := int64(binary.BigEndian.Uint32(header[1:5]))
	valLen := int64(binary.BigEndian.Uint32(header[5:9]))
	if keyLen+valLen > MaxFrameSize {
		return nil, errors.Wrapf(ErrFrameTooLarge, "%d byte payload", keyLen+valLen)
	}

	payload := make([]byte, cmdLen+keyLen+valLen)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, errors.Wrap(err, "reading command payload")
	}

	return &Command{
		Cmd: string(payload[:cmdLen]),
		Key: payload[cmdLen : cmdLen+keyLen],
		Val: payload[cmdLen+keyLen:],
	}, nil
}
