package client

import (
	"bytes"
	"net"
	"strconv"
	"sync"

	"github.com/0xRadioAc7iv/go-kvs/internal/config"
	"github.com/0xRadioAc7iv/go-kvs/internal/protocol"
	"github.com/cockroachdb/errors"
)

var (
	// ErrNotFound is returned when the key has no value.
	ErrNotFound = errors.New("Key not found")

	// ErrServer marks errors reported by the server rather than the transport.
	ErrServer = errors.New("server error")
)

// Client is a connection to a kvs server. Requests on one Client are
// serialized.
type Client struct {
	mu   sync.Mutex
	conn net.Conn
}

func Connect(opts ...Option) (*Client, error) {
	cfg := config.DefaultClientConfig()

	for _, opt := range opts {
		opt(cfg)
	}

	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))

	conn, err := net.DialTimeout("tcp", addr, cfg.DialTimeout)
	if err != nil {
		return nil, errors.Wrapf(err, "connecting to %s", addr)
	}

	return &Client{conn: conn}, nil
}

// Get returns the value of key, or ErrNotFound.
func (c *Client) Get(key []byte) ([]byte, error) {
	return c.sendCommand("get", key, nil)
}

func (c *Client) Set(key, value []byte) error {
	_, err := c.sendCommand("set", key, value)
	return err
}

// Remove deletes key, or returns ErrNotFound.
func (c *Client) Remove(key []byte) error {
	_, err := c.sendCommand("rm", key, nil)
	return err
}

func (c *Client) Exists(key []byte) (bool, error) {
	res, err := c.sendCommand("exists", key, nil)
	if err != nil {
		return false, err
	}
	exists, err := strconv.ParseBool(string(res))
	return exists, errors.Wrapf(err, "parsing exists response %q", res)
}

func (c *Client) Count() (int, error) {
	res, err := c.sendCommand("count", nil, nil)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(string(res))
	return n, errors.Wrapf(err, "parsing count response %q", res)
}

// List returns every key on the server, sorted.
func (c *Client) List() ([][]byte, error) {
	res, err := c.sendCommand("list", nil, nil)
	if err != nil || len(res) == 0 {
		return nil, err
	}
	return bytes.Split(res, []byte("\n")), nil
}

func (c *Client) Ping() error {
	_, err := c.sendCommand("ping", nil, nil)
	return err
}

// Compact asks the server to compact its log now.
func (c *Client) Compact() error {
	_, err := c.sendCommand("compact", nil, nil)
	return err
}

// Stats returns the server's human-readable statistics.
func (c *Client) Stats() (string, error) {
	res, err := c.sendCommand("stats", nil, nil)
	return string(res), err
}

func (c *Client) Close() error {
	return c.conn.Close()
}

// Execute sends an arbitrary command and returns the response payload. For a
// not-found response the payload is returned together with ErrNotFound.
func (c *Client) Execute(cmd, key, value string) (string, error) {
	res, err := c.sendCommand(cmd, []byte(key), []byte(value))
	if errors.Is(err, ErrNotFound) {
		return ErrNotFound.Error(), err
	}
	return string(res), err
}

func (c *Client) sendCommand(cmd string, key, value []byte) ([]byte, error) {
	payload, err := protocol.EncodeCommand(cmd, key, value)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.conn.Write(payload); err != nil {
		return nil, errors.Wrapf(err, "sending %s", cmd)
	}

	response, err := protocol.DecodeResponse(c.conn)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s response", cmd)
	}

	switch response.Status {
	case protocol.StatusNotFound:
		return nil, ErrNotFound
	case protocol.StatusError:
		return nil, errors.Mark(errors.Newf("%s: %s", cmd, response.Payload), ErrServer)
	default:
		return response.Payload, nil
	}
}
