package protocol_test

import (
	"bytes"
	"net"
	"testing"
	"time"

	"github.com/0xRadioAc7iv/go-kvs/internal/protocol"
)

func TestEncodeDecodeResponse(t *testing.T) {
	tests := []struct {
		name    string
		status  protocol.Status
		payload string
	}{
		{"simple response", protocol.StatusOK, "ok"},
		{"not found", protocol.StatusNotFound, ""},
		{"empty response", protocol.StatusOK, ""},
		{"error response", protocol.StatusError, "Key not found"},
		{"multiline response", protocol.StatusOK, "line1\nline2\nline3"},
		{"unicode response", protocol.StatusOK, "こんにちは世界"},
		{"large response", protocol.StatusOK, string(make([]byte, 2048))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, server := net.Pipe()
			defer client.Close()
			defer server.Close()

			payload, err := protocol.EncodeResponse(tt.status, []byte(tt.payload))
			if err != nil {
				t.Fatalf("EncodeResponse failed: %v", err)
			}

			go func() {
				_, _ = client.Write(payload)
			}()

			resp, err := protocol.DecodeResponse(server)
			if err != nil {
				t.Fatalf("DecodeResponse failed: %v", err)
			}

			if resp.Status != tt.status {
				t.Errorf("Status mismatch: got %s, want %s", resp.Status, tt.status)
			}
			if string(resp.Payload) != tt.payload {
				t.Errorf("Payload mismatch: got %q, want %q", resp.Payload, tt.payload)
			}
		})
	}
}

func TestDecodeResponse_UnknownStatus(t *testing.T) {
	if _, err := protocol.DecodeResponse(bytes.NewReader([]byte{9, 0, 0, 0, 0})); err == nil {
		t.Fatal("expected error for unknown status")
	}
}

func TestDecodeResponse_TruncatedPayload(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	payload, err := protocol.EncodeResponse(protocol.StatusOK, []byte("hello world"))
	if err != nil {
		t.Fatalf("EncodeResponse failed: %v", err)
	}

	go func() {
		_, _ = client.Write(payload[:len(payload)/2])
		client.Close()
	}()

	if _, err := protocol.DecodeResponse(server); err == nil {
		t.Fatalf("expected error on truncated response, got nil")
	}
}

func TestDecodeResponse_BlocksUntilComplete(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	payload, err := protocol.EncodeResponse(protocol.StatusOK, []byte("blocking test"))
	if err != nil {
		t.Fatalf("EncodeResponse failed: %v", err)
	}

	done := make(chan struct{})

	go func() {
		_, _ = protocol.DecodeResponse(server)
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("DecodeResponse returned early")
	case <-time.After(50 * time.Millisecond):
	}

	_, _ = client.Write(payload)

	select {
	case <-done:
	case <-time.After(1 * time.Second):
		t.Fatal("DecodeResponse did not return after full payload")
	}
}
