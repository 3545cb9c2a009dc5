package natcp

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/miekg/dns"
)

// defaultPort is used when a peer string or a lookup name carries no port.
const defaultPort = "4441"

// splitHostPort returns name's host and port, falling back to defaultPort
// when name carries none (a bare hostname, the common case for a statically
// configured peer).
func splitHostPort(name string) (host, port string) {
	if h, p, err := net.SplitHostPort(name); err == nil {
		return h, p
	}
	return name, defaultPort
}

// resolveHost resolves host to a dotted IPv4 address. A literal IP passes
// through unchanged; otherwise it queries the A record directly against a
// configured (or system-configured) nameserver, the same explicit-dial
// pattern app/dns/dns.go uses for its TXT lookups, here for A records.
func (d *Driver) resolveHost(ctx context.Context, host string) (string, error) {
	if ip := net.ParseIP(host); ip != nil {
		return host, nil
	}

	nameserver := d.nameserver
	if nameserver == "" {
		nameserver = systemNameserver()
	}

	c := &dns.Client{Timeout: 5 * time.Second}
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(host), dns.TypeA)

	resp, _, err := c.ExchangeContext(ctx, m, nameserver)
	if err != nil {
		return "", fmt.Errorf("natcp: nameserver %s: lookup %s: %w", nameserver, host, err)
	}
	for _, ans := range resp.Answer {
		if a, ok := ans.(*dns.A); ok {
			return a.A.String(), nil
		}
	}
	return "", fmt.Errorf("natcp: nameserver %s: no A record for %s", nameserver, host)
}

// systemNameserver reads the first nameserver out of /etc/resolv.conf,
// falling back to a public resolver when that file can't be read — the
// driver has no business failing a lookup just because the config file is
// missing in a container image.
func systemNameserver() string {
	cfg, err := dns.ClientConfigFromFile("/etc/resolv.conf")
	if err != nil || len(cfg.Servers) == 0 {
		return "8.8.8.8:53"
	}
	return net.JoinHostPort(cfg.Servers[0], cfg.Port)
}
