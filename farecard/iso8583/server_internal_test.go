package iso8583

import (
	"io"
	"net"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slog"
)

func TestTrackRefusesConnectionsOnceClosing(t *testing.T) {
	s := NewServer(slog.Default(), "127.0.0.1:0", nil)
	require.NoError(t, s.Start())

	open, peer := net.Pipe()
	defer peer.Close()
	require.True(t, s.track(open))

	require.NoError(t, s.Close())

	late, latePeer := net.Pipe()
	defer latePeer.Close()
	require.False(t, s.track(late))
	require.NotContains(t, s.conns, late)

	// both ends the server held are closed
	_, err := latePeer.Read(make([]byte, 1))
	require.ErrorIs(t, err, io.EOF)
	_, err = peer.Read(make([]byte, 1))
	require.ErrorIs(t, err, io.EOF)
}
