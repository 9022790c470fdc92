package protocol_test

import (
	"bytes"
	"encoding/binary"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/0xRadioAc7iv/go-kvs/internal/protocol"
	"github.com/cockroachdb/errors"
)

func TestEncodeDecodeCommand(t *testing.T) {
	tests := []struct {
		name string
		cmd  string
		key  string
		val  string
	}{
		{"set command", "set", "foo", "bar"},
		{"get command", "get", "hello", ""},
		{"count command", "count", "", ""},
		{"empty key and value", "ping", "", ""},
		{"value with spaces", "set", "city", "new york"},
		{"unicode value", "set", "emoji", "🚀🔥"},
		{"binary key", "set", "\x00\xff\x00", "v"},
		{"large value", "set", "big", string(make([]byte, 1024))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, server := net.Pipe()
			defer client.Close()
			defer server.Close()

			payload, err := protocol.EncodeCommand(tt.cmd, []byte(tt.key), []byte(tt.val))
			if err != nil {
				t.Fatalf("EncodeCommand failed: %v", err)
			}

			go func() {
				_, _ = client.Write(payload)
			}()

			cmd, err := protocol.DecodeCommand(server)
			if err != nil {
				t.Fatalf("DecodeCommand failed: %v", err)
			}

			if cmd.Cmd != tt.cmd {
				t.Errorf("Cmd mismatch: got %q, want %q", cmd.Cmd, tt.cmd)
			}
			if string(cmd.Key) != tt.key {
				t.Errorf("Key mismatch: got %q, want %q", cmd.Key, tt.key)
			}
			if string(cmd.Val) != tt.val {
				t.Errorf("Val mismatch: got %q, want %q", cmd.Val, tt.val)
			}
		})
	}
}

func TestEncodeCommand_Layout(t *testing.T) {
	payload, err := protocol.EncodeCommand("set", []byte("k"), []byte("vv"))
	if err != nil {
		t.Fatalf("EncodeCommand failed: %v", err)
	}

	want := []byte{3, 0, 0, 0, 1, 0, 0, 0, 2, 's', 'e', 't', 'k', 'v', 'v'}
	if !bytes.Equal(payload, want) {
		t.Fatalf("layout mismatch: got %v, want %v", payload, want)
	}
}

func TestEncodeCommand_NameTooLong(t *testing.T) {
	if _, err := protocol.EncodeCommand(strings.Repeat("x", 256), nil, nil); err == nil {
		t.Fatal("expected error for 256 byte command name")
	}
}

func TestDecodeCommand_CleanEOF(t *testing.T) {
	if _, err := protocol.DecodeCommand(bytes.NewReader(nil)); err != io.EOF {
		t.Fatalf("expected io.EOF, got %v", err)
	}
}

func TestDecodeCommand_FrameTooLarge(t *testing.T) {
	header := []byte{3}
	header = binary.BigEndian.AppendUint32(header, 1)
	header = binary.BigEndian.AppendUint32(header, protocol.MaxFrameSize)

	_, err := protocol.DecodeCommand(bytes.NewReader(header))
	if !errors.Is(err, protocol.ErrFrameTooLarge) {
		t.Fatalf("expected ErrFrameTooLarge, got %v", err)
	}
}

func TestDecodeCommand_TruncatedPayload(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	payload, err := protocol.EncodeCommand("set", []byte("key"), []byte("value"))
	if err != nil {
		t.Fatalf("EncodeCommand failed: %v", err)
	}

	// Write only part of the payload
	go func() {
		_, _ = client.Write(payload[:len(payload)/2])
		client.Close()
	}()

	_, err = protocol.DecodeCommand(server)
	if err == nil {
		t.Fatalf("expected error on truncated payload, got nil")
	}
	if err == io.EOF {
		t.Fatalf("truncated frame must not look like a clean EOF")
	}
}

func TestDecodeCommand_BlocksUntilComplete(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	payload, err := protocol.EncodeCommand("get", []byte("foo"), nil)
	if err != nil {
		t.Fatalf("EncodeCommand failed: %v", err)
	}

	done := make(chan struct{})

	go func() {
		_, _ = protocol.DecodeCommand(server)
		close(done)
	}()

	// Ensure decoder is blocked
	select {
	case <-done:
		t.Fatal("DecodeCommand returned early")
	case <-time.After(50 * time.Millisecond):
	}

	_, _ = client.Write(payload)

	select {
	case <-done:
	case <-time.After(1 * time.Second):
		t.Fatal("DecodeCommand did not return after full payload")
	}
}
