// Package discovery implements the UDP announcement listener described in
// spec.md §4.5 and §6: it parses DISCOVER datagrams, rewrites loopback
// hosts to the datagram's source address, and upserts the result into the
// matching service class's registry.
package discovery

import (
	"context"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/time/rate"

	"github.com/stacklok/balancer/internal/registry"
	"github.com/stacklok/balancer/pkg/logger"
)

// maxDatagramSize is the wire protocol's hard datagram size limit (§6).
const maxDatagramSize = 1024

// discoverPrefix is the mandatory first field of a well-formed datagram.
const discoverPrefix = "DISCOVER"

const (
	// defaultReceiveErrorBackoff is the fixed delay applied after a
	// transient socket receive error before retrying, per spec.md §4.5.
	defaultReceiveErrorBackoff = time.Second
	// defaultRateLimitPerSecond and defaultRateLimitBurst bound datagram processing against a hostile or
	// misbehaving announcer flooding the socket.
	defaultRateLimitPerSecond = 200
	defaultRateLimitBurst     = 400
)

// Listener receives DISCOVER datagrams on a UDP socket and upserts them
// into the registries for their announced service class.
type Listener struct {
	Addr       string
	Registries map[registry.ServiceClass]*registry.Registry
	Limiter    *rate.Limiter

	conn *net.UDPConn
}

// New builds a Listener bound to addr, dispatching announcements for each
// service class into its corresponding registry.
func New(addr string, registries map[registry.ServiceClass]*registry.Registry) *Listener {
	return &Listener{
		Addr:       addr,
		Registries: registries,
		Limiter:    rate.NewLimiter(rate.Limit(defaultRateLimitPerSecond), defaultRateLimitBurst),
	}
}

// Run binds the UDP socket and loops receiving datagrams until ctx is
// cancelled. Transient receive errors back off for one second (per
// spec.md §4.5) before retrying; the loop itself never exits on a parse
// or receive error.
func (l *Listener) Run(ctx context.Context) error {
	udpAddr, err := net.ResolveUDPAddr("udp", l.Addr)
	if err != nil {
		return err
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return err
	}
	l.conn = conn
	defer conn.Close()

	logger.Infow("udp discovery listening", "addr", l.Addr)

	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	buf := make([]byte, maxDatagramSize)
	for {
		read, err := backoff.Retry(ctx, func() (datagram, error) {
			n, srcAddr, err := conn.ReadFromUDP(buf)
			if err != nil {
				logger.Warnw("udp receive error, backing off", "error", err)
				return datagram{}, err
			}
			data := make([]byte, n)
			copy(data, buf[:n])
			return datagram{data: data, src: srcAddr}, nil
		}, backoff.WithBackOff(backoff.NewConstantBackOff(defaultReceiveErrorBackoff)), backoff.WithMaxElapsedTime(0))
		if err != nil {
			// ctx cancelled (or the dial closed the socket as a result); the
			// listener is shutting down.
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return err
		}

		if l.Limiter != nil && !l.Limiter.Allow() {
			logger.Warnw("udp datagram dropped by rate limiter", "source", read.src.String())
			continue
		}

		l.handleDatagram(read.data, read.src)
	}
}

// datagram is one received UDP packet paired with its source address.
type datagram struct {
	data []byte
	src  *net.UDPAddr
}

func (l *Listener) handleDatagram(data []byte, src *net.UDPAddr) {
	msg := strings.TrimSpace(string(data))
	class, nodeID, announcedURL, ok := parseDatagram(msg)
	if !ok {
		logger.Warnw("malformed udp datagram dropped", "source", src.String(), "message", msg)
		return
	}

	reg, known := l.Registries[class]
	if !known {
		logger.Warnw("udp datagram names unknown service class", "class", class, "message", msg)
		return
	}

	effectiveURL := rewriteLoopback(announcedURL, src.IP)
	logger.Infow("discovery received", "node_id", nodeID, "class", class, "url", effectiveURL, "source", src.String())
	reg.Upsert(nodeID, effectiveURL, time.Now())
}

// parseDatagram applies the §6 grammar:
// DISCOVER,<service_class>,<node_id>,<service_url>
func parseDatagram(msg string) (class registry.ServiceClass, nodeID, serviceURL string, ok bool) {
	parts := strings.SplitN(msg, ",", 4)
	if len(parts) != 4 || parts[0] != discoverPrefix {
		return "", "", "", false
	}

	switch parts[1] {
	case string(registry.ServiceClassLMStudio):
		class = registry.ServiceClassLMStudio
	case string(registry.ServiceClassOllama):
		class = registry.ServiceClassOllama
	default:
		return "", "", "", false
	}

	nodeID = parts[2]
	serviceURL = parts[3]
	if nodeID == "" || serviceURL == "" {
		return "", "", "", false
	}
	return class, nodeID, serviceURL, true
}

// rewriteLoopback replaces a loopback host ("localhost" or "127.0.0.1")
// with srcIP, preserving scheme, port, and path. On parse failure the
// announced URL is returned verbatim, per spec.md §4.5 step 2.
func rewriteLoopback(announced string, srcIP net.IP) string {
	u, err := url.Parse(announced)
	if err != nil {
		logger.Warnw("could not parse announced url, using verbatim", "url", announced, "error", err)
		return announced
	}

	host := u.Hostname()
	if host != "localhost" && host != "127.0.0.1" {
		return announced
	}

	port := u.Port()
	if port != "" {
		u.Host = net.JoinHostPort(srcIP.String(), port)
	} else {
		u.Host = srcIP.String()
	}
	return u.String()
}
