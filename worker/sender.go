package worker

import (
	"errors"
	"io"
	"os"
	"sync"
	"syscall"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/infra/op-specrunner/protocol"
)

// sender writes messages to the coordinator. Once the channel is gone every send
// becomes a no-op.
type sender struct {
	log log.Logger
	enc *protocol.Encoder

	mu     sync.Mutex
	closed bool
}

func newSender(w io.Writer, logger log.Logger) *sender {
	return &sender{log: logger, enc: protocol.NewEncoder(w)}
}

func (s *sender) send(m protocol.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		s.log.Debug("Dropping message, channel to coordinator is closed", "type", m.Type)
		return
	}
	err := s.enc.Encode(m)
	if err == nil {
		return
	}
	if isClosedErr(err) {
		s.closed = true
		s.log.Warn("Channel to coordinator is closed, dropping messages", "type", m.Type)
		return
	}
	s.log.Error("Failed to send message", "type", m.Type, "err", err)
}

func (s *sender) close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return s.enc.Close()
}

func isClosedErr(err error) bool {
	return errors.Is(err, protocol.ErrClosed) ||
		errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, os.ErrClosed) ||
		errors.Is(err, syscall.EPIPE)
}
