// Package announce implements the node side of the discovery protocol: a
// UDP broadcaster that repeatedly sends DISCOVER datagrams advertising this
// node's service endpoints to a balancer, supplementing the core proxy
// spec with the original node-side behavior, flag-driven rather than
// interactive.
package announce

import (
	"context"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/stacklok/balancer/pkg/logger"
)

// DefaultInterval is the announcement cadence used by the reference node
// implementation.
const DefaultInterval = 10 * time.Second

// Service pairs a service class name with this node's endpoint URL for
// that class.
type Service struct {
	Class string
	URL   string
}

// NodeID returns a stable node identifier of the form "hostname-uuid", the
// convention named in the wire protocol's data model.
func NodeID() string {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown-host"
	}
	return fmt.Sprintf("%s-%s", host, uuid.NewString())
}

// Broadcaster periodically sends DISCOVER datagrams, one per configured
// service, to a balancer's UDP discovery address.
type Broadcaster struct {
	BalancerAddr string
	NodeID       string
	Interval     time.Duration
}

// Run binds an ephemeral UDP socket and sends a DISCOVER datagram for each
// service every Interval until ctx is cancelled.
func (b *Broadcaster) Run(ctx context.Context, services []Service) error {
	if len(services) == 0 {
		return fmt.Errorf("announce: no services configured")
	}

	raddr, err := net.ResolveUDPAddr("udp", b.BalancerAddr)
	if err != nil {
		return fmt.Errorf("announce: resolve balancer address: %w", err)
	}

	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return fmt.Errorf("announce: dial balancer: %w", err)
	}
	defer conn.Close()

	interval := b.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}

	logger.Infow("announcing services", "balancer", b.BalancerAddr, "node_id", b.NodeID, "interval", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	send := func() {
		for _, svc := range services {
			msg := fmt.Sprintf("DISCOVER,%s,%s,%s", svc.Class, b.NodeID, svc.URL)
			if _, err := conn.Write([]byte(msg)); err != nil {
				logger.Warnw("failed to send discovery datagram", "class", svc.Class, "error", err)
			}
		}
	}

	send()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			send()
		}
	}
}
