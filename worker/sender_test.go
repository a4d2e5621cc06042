package worker

import (
	"io"
	"testing"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/infra/op-specrunner/protocol"
)

func TestSendAfterCloseIsNoop(t *testing.T) {
	r, w := io.Pipe()
	s := newSender(w, log.NewLogger(log.DiscardHandler()))

	require.NoError(t, r.Close())
	assert.NotPanics(t, func() {
		s.send(protocol.Booted())
		s.send(protocol.Booted())
	})
	assert.True(t, s.closed)

	s2 := newSender(io.Discard, log.NewLogger(log.DiscardHandler()))
	require.NoError(t, s2.close())
	assert.NotPanics(t, func() { s2.send(protocol.Booted()) })
}
