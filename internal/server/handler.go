package server

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/0xRadioAc7iv/go-kvs/internal/protocol"
	"github.com/0xRadioAc7iv/go-kvs/pkg/kvs"
	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
)

const helpText = `Available Commands:

PING
  Check if the server is alive.
  Response: PONG!

SET <key> <value>
  Store a value for the given key.
  Overwrites the value if the key already exists.
  Response: ok

GET <key>
  Retrieve the value associated with the key.
  Response: value | Key not found

RM <key>
  Remove the key and its value.
  Response: ok | Key not found

EXISTS <key>
  Check if a key exists.
  Response: true | false

COUNT
  Return the total number of keys stored.
  Response: integer

LIST
  List all stored keys, one per line.

COMPACT
  Reclaim the space of overwritten and removed keys.
  Response: ok

STATS
  Show store statistics.

HELP
  Show this help message.

EXIT (cli only)
  Close the client connection.`

var notFound = []byte(kvs.ErrKeyNotFound.Error())

func (s *Server) handle(logger logrus.FieldLogger, command *protocol.Command) (protocol.Status, []byte) {
	switch strings.ToLower(command.Cmd) {
	case "ping":
		return protocol.StatusOK, []byte("PONG!")
	case "set":
		return s.result(logger, command, s.store.Set(command.Key, command.Val))
	case "get":
		return s.handleGet(logger, command)
	case "rm", "delete":
		return s.result(logger, command, s.store.Remove(command.Key))
	case "exists":
		return protocol.StatusOK, []byte(strconv.FormatBool(s.store.Exists(command.Key)))
	case "count":
		return protocol.StatusOK, []byte(strconv.Itoa(s.store.Count()))
	case "list":
		return protocol.StatusOK, bytes.Join(s.store.Keys(), []byte("\n"))
	case "compact":
		return s.result(logger, command, s.store.Compact())
	case "stats":
		return protocol.StatusOK, []byte(formatStats(s.store.Stats()))
	case "help":
		return protocol.StatusOK, []byte(helpText)
	default:
		return protocol.StatusError, []byte("Invalid Command")
	}
}

func (s *Server) handleGet(logger logrus.FieldLogger, command *protocol.Command) (protocol.Status, []byte) {
	value, found, err := s.store.Get(command.Key)
	if err != nil {
		return s.result(logger, command, err)
	}
	if !found {
		return protocol.StatusNotFound, notFound
	}
	return protocol.StatusOK, value
}

func (s *Server) result(logger logrus.FieldLogger, command *protocol.Command, err error) (protocol.Status, []byte) {
	switch {
	case err == nil:
		return protocol.StatusOK, []byte("ok")
	case errors.Is(err, kvs.ErrKeyNotFound):
		return protocol.StatusNotFound, notFound
	default:
		logger.WithError(err).WithField("command", command.Cmd).Error("command failed")
		return protocol.StatusError, []byte(err.Error())
	}
}

func formatStats(st kvs.Stats) string {
	return fmt.Sprintf("live_keys: %d\nsegments: %d\nlog_size: %s\nstale: %s\ncompactions: %d",
		st.LiveKeys,
		st.Segments,
		humanize.IBytes(uint64(st.TotalBytes)),
		humanize.IBytes(uint64(st.StaleBytes)),
		st.Compactions,
	)
}
