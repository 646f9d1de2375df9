package announce

import (
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNodeID_HasHostAndUUIDShape(t *testing.T) {
	t.Parallel()

	id := NodeID()
	parts := strings.SplitN(id, "-", 2)
	require.Len(t, parts, 2)
	assert.NotEmpty(t, parts[0])
	assert.Len(t, strings.ReplaceAll(parts[1], "-", ""), 32)
}

func TestBroadcaster_SendsWellFormedDatagram(t *testing.T) {
	t.Parallel()

	laddr, err := net.ResolveUDPAddr("udp", "127.0.0.1:0")
	require.NoError(t, err)
	conn, err := net.ListenUDP("udp", laddr)
	require.NoError(t, err)
	defer conn.Close()

	b := &Broadcaster{BalancerAddr: conn.LocalAddr().String(), NodeID: "host-abc", Interval: 20 * time.Millisecond}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- b.Run(ctx, []Service{{Class: "lmstudio", URL: "http://10.0.0.5:8000/v1"}})
	}()

	buf := make([]byte, 1024)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	n, _, err := conn.ReadFromUDP(buf)
	require.NoError(t, err)

	assert.Equal(t, "DISCOVER,lmstudio,host-abc,http://10.0.0.5:8000/v1", string(buf[:n]))

	<-errCh
}

func TestBroadcaster_NoServices_ReturnsError(t *testing.T) {
	t.Parallel()

	b := &Broadcaster{BalancerAddr: "127.0.0.1:4000", NodeID: "host-abc"}
	err := b.Run(context.Background(), nil)
	assert.Error(t, err)
}
