// Package natinfo discovers the connection's public endpoint as STUN
// servers see it and infers the NAT type from how the mapping varies
// across servers.
package natinfo

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/pion/stun/v3"

	"github.com/ispmon/ispmon/probe"
)

// NAT classifications. Two servers reporting different mapped
// addresses means the NAT allocates per-destination mappings.
const (
	NATUnknown          = "unknown"
	NATSymmetric        = "symmetric"
	NATConeOrRestricted = "cone_or_restricted"
)

var defaultServers = []string{
	"stun.l.google.com:19302",
	"stun.cloudflare.com:3478",
}

// Detail is the structured payload of a NAT-info result.
type Detail struct {
	PublicAddress string `json:"public_address"`
	NATType       string `json:"nat_type"`
	ServersAsked  int    `json:"servers_asked"`
	ServersUsable int    `json:"servers_usable"`
}

// Probe queries each configured STUN server for the mapped address of
// one local socket.
type Probe struct {
	// Servers are the STUN servers to ask, host:port. Empty uses the
	// Google and Cloudflare public servers.
	Servers []string
	// Timeout bounds one binding exchange. Zero means five seconds.
	Timeout time.Duration
	// bind runs one binding request; tests replace it.
	bind func(ctx context.Context, server string, timeout time.Duration) (string, error)
}

// Name returns the metric name.
func (p *Probe) Name() string { return "nat_info" }

// Fetch asks every server; one usable answer is enough for the public
// address, two are needed to classify the NAT.
func (p *Probe) Fetch(ctx context.Context) probe.Result {
	servers := p.Servers
	if len(servers) == 0 {
		servers = defaultServers
	}
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	bind := p.bind
	if bind == nil {
		bind = bindingRequest
	}

	var mapped []string
	var lastErr error
	for _, server := range servers {
		if ctx.Err() != nil {
			break
		}
		addr, err := bind(ctx, server, timeout)
		if err != nil {
			log.Printf("STUN binding against %s failed (error: %v)", server, err)
			lastErr = err
			continue
		}
		mapped = append(mapped, addr)
	}
	if len(mapped) == 0 {
		if ctx.Err() != nil {
			return probe.Offline(probe.ErrTimeout)
		}
		if lastErr == nil {
			lastErr = errors.New("no STUN servers configured")
		}
		return probe.Offline(fmt.Errorf("%w: %v", probe.ErrUnavailable, lastErr))
	}
	r := probe.Online(nil)
	r.Detail = Detail{
		PublicAddress: mapped[0],
		NATType:       Classify(mapped),
		ServersAsked:  len(servers),
		ServersUsable: len(mapped),
	}
	return r
}

// Classify infers the NAT type from the mapped addresses different
// servers reported for the same local socket.
func Classify(mapped []string) string {
	if len(mapped) < 2 {
		return NATUnknown
	}
	for _, addr := range mapped[1:] {
		if addr != mapped[0] {
			return NATSymmetric
		}
	}
	return NATConeOrRestricted
}

// bindingRequest runs one STUN binding request and returns the
// XOR-mapped address the server saw.
func bindingRequest(ctx context.Context, server string, timeout time.Duration) (string, error) {
	uriStr := strings.TrimSpace(server)
	if !strings.HasPrefix(uriStr, "stun:") {
		uriStr = "stun:" + uriStr
	}
	uri, err := stun.ParseURI(uriStr)
	if err != nil {
		return "", err
	}
	client, err := stun.DialURI(uri, &stun.DialConfig{})
	if err != nil {
		return "", err
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result := make(chan string, 1)
	fail := make(chan error, 1)
	msg := stun.MustBuild(stun.TransactionID, stun.BindingRequest)
	go func() {
		var addr stun.XORMappedAddress
		err := client.Do(msg, func(ev stun.Event) {
			if ev.Error != nil {
				fail <- ev.Error
				return
			}
			if err := addr.GetFrom(ev.Message); err != nil {
				fail <- err
				return
			}
			result <- addr.String()
		})
		if err != nil {
			fail <- err
		}
	}()
	select {
	case addr := <-result:
		return addr, nil
	case err := <-fail:
		return "", err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
