// Package dnsconfig detects the upstream DNS servers the host
// actually uses, as opposed to the container-local resolver most
// deployments put in front of them. Detection tries a fixed list of
// sources in order and settles on the first one that yields a usable
// server.
package dnsconfig

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/netip"
	"os"
	"strings"
	"time"

	pipe "gopkg.in/m-lab/pipe.v3"

	"github.com/ispmon/ispmon/fallback"
	"github.com/ispmon/ispmon/probe"
)

// supervisorTokenEnv gates the supervisor method: without the token
// the method is skipped outright.
const supervisorTokenEnv = "SUPERVISOR_TOKEN"

// Commander runs one external inspection command and returns its
// standard output.
type Commander interface {
	Output(ctx context.Context, name string, arg ...string) ([]byte, error)
}

// Command is the pipe-backed Commander used outside tests.
type Command struct {
	// Timeout is the ceiling on one invocation. Zero means ten
	// seconds. The remaining context budget lowers it further.
	Timeout time.Duration
}

// Output runs the command and captures its standard output.
func (c *Command) Output(ctx context.Context, name string, arg ...string) ([]byte, error) {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	if timeout <= 0 {
		return nil, probe.ErrTimeout
	}
	buff := bytes.Buffer{}
	cmd := pipe.Line(
		pipe.Exec(name, arg...),
		pipe.Write(&buff),
	)
	err := pipe.RunTimeout(cmd, timeout)
	if err != nil && err.Error() == pipe.ErrTimeout.Error() {
		return nil, probe.ErrTimeout
	}
	if err != nil {
		return nil, err
	}
	return buff.Bytes(), nil
}

var defaultCommander Commander = &Command{}

// Detector finds upstream DNS servers. The zero value detects with the
// real supervisor endpoint, the system commands, and /etc/resolv.conf.
type Detector struct {
	// Commander runs the inspection commands. Nil uses the pipe-backed
	// default.
	Commander Commander
	// HTTPClient fetches the supervisor DNS info. Nil uses a client
	// with a ten second timeout.
	HTTPClient *http.Client
	// SupervisorURL is the base URL of the supervisor API. Empty means
	// http://supervisor.
	SupervisorURL string
	// ResolvConf is the resolver configuration path. Empty means
	// /etc/resolv.conf.
	ResolvConf string
}

// Chain returns the ordered detection chain. Every method's output
// passes through the same reserved-range filter, and exhaustion falls
// back to well-known public resolvers rather than failing.
func (d *Detector) Chain() *fallback.Chain[string] {
	return &fallback.Chain[string]{
		Methods: []fallback.Method[string]{
			{Name: "supervisor", Run: d.supervisorServers},
			{Name: "docker_host", Run: d.dockerHostServers},
			{Name: "gateway", Run: d.gatewayServers},
			{Name: "systemd_resolved", Run: d.resolvedServers},
			{Name: "resolv_conf", Run: d.resolvConfServers},
			{Name: "public_defaults", Run: d.wellKnownServers},
		},
		Exclude:       Reserved,
		Defaults:      []string{"8.8.8.8", "1.1.1.1"},
		DefaultSource: "public_fallback",
	}
}

func (d *Detector) run(ctx context.Context, name string, arg ...string) ([]byte, error) {
	if d.Commander != nil {
		return d.Commander.Output(ctx, name, arg...)
	}
	return defaultCommander.Output(ctx, name, arg...)
}

// supervisorServers asks the supervisor API for its upstream servers.
// The method only applies when the supervisor token is present in the
// environment.
func (d *Detector) supervisorServers(ctx context.Context) ([]string, error) {
	token := os.Getenv(supervisorTokenEnv)
	if token == "" {
		return nil, nil
	}
	base := d.SupervisorURL
	if base == "" {
		base = "http://supervisor"
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/dns/info", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	client := d.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", probe.ErrUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: supervisor returned %s", probe.ErrUnavailable, resp.Status)
	}
	var payload struct {
		Data struct {
			Servers         []string `json:"servers"`
			UpstreamServers []string `json:"upstream_servers"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: %v", probe.ErrParse, err)
	}
	servers := payload.Data.Servers
	if len(servers) == 0 {
		servers = payload.Data.UpstreamServers
	}
	// The supervisor reports servers as dns:// URIs.
	out := make([]string, 0, len(servers))
	for _, s := range servers {
		out = append(out, strings.TrimPrefix(s, "dns://"))
	}
	return out, nil
}

// dockerHostServers checks whether the container host alias resolves
// at all; when it does, the host's gateway is the best upstream guess.
func (d *Detector) dockerHostServers(ctx context.Context) ([]string, error) {
	if _, err := d.run(ctx, "nslookup", "host.docker.internal"); err != nil {
		return nil, err
	}
	return d.gatewayServers(ctx)
}

// gatewayServers treats the default gateway as the upstream resolver,
// which is what most home routers are.
func (d *Detector) gatewayServers(ctx context.Context) ([]string, error) {
	out, err := d.run(ctx, "ip", "route", "show", "default")
	if err != nil {
		return nil, err
	}
	for _, line := range strings.Split(string(out), "\n") {
		if !strings.Contains(line, "default via") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) >= 3 {
			return []string{fields[2]}, nil
		}
	}
	return nil, nil
}

// resolvedServers reads the server list from systemd-resolved status
// output.
func (d *Detector) resolvedServers(ctx context.Context) ([]string, error) {
	out, err := d.run(ctx, "systemd-resolve", "--status")
	if err != nil {
		return nil, err
	}
	var servers []string
	for _, line := range strings.Split(string(out), "\n") {
		if !strings.Contains(line, "DNS Servers:") && !strings.Contains(line, "Current DNS Server:") {
			continue
		}
		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			continue
		}
		if server := strings.TrimSpace(parts[1]); server != "" {
			servers = append(servers, server)
		}
	}
	return servers, nil
}

// resolvConfServers reads nameserver lines from the resolver
// configuration file.
func (d *Detector) resolvConfServers(ctx context.Context) ([]string, error) {
	path := d.ResolvConf
	if path == "" {
		path = "/etc/resolv.conf"
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var servers []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "nameserver") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) >= 2 {
			servers = append(servers, fields[1])
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return servers, nil
}

func (d *Detector) wellKnownServers(ctx context.Context) ([]string, error) {
	return []string{"8.8.8.8", "1.1.1.1", "9.9.9.9"}, nil
}

// reservedRanges are the network blocks a usable upstream resolver
// cannot live in: loopback, RFC 1918 private space (which covers the
// Docker address pools), link-local, and their IPv6 equivalents.
var reservedRanges = []netip.Prefix{
	netip.MustParsePrefix("127.0.0.0/8"),
	netip.MustParsePrefix("10.0.0.0/8"),
	netip.MustParsePrefix("172.16.0.0/12"),
	netip.MustParsePrefix("192.168.0.0/16"),
	netip.MustParsePrefix("169.254.0.0/16"),
	netip.MustParsePrefix("::1/128"),
	netip.MustParsePrefix("fe80::/10"),
}

// Reserved reports whether addr cannot be a usable upstream resolver.
// Addresses that do not parse are treated as reserved.
func Reserved(addr string) bool {
	ip, err := netip.ParseAddr(addr)
	if err != nil {
		return true
	}
	for _, r := range reservedRanges {
		if r.Contains(ip) {
			return true
		}
	}
	return false
}
