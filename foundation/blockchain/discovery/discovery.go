// Package discovery produces the initial and ongoing candidate peer
// list from static seeds and DNS seed resolution.
package discovery

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strconv"
	"time"
)

// EventHandler defines a function that is called when events
// occur in the processing of discovering peers.
type EventHandler func(v string, args ...any)

// Profile selects how strictly resolved addresses are filtered.
type Profile string

// Set of discovery profiles.
const (
	ProfilePublic Profile = "public"
	ProfileLocal  Profile = "local"
)

// dnsTimeout bounds each DNS seed lookup. Lookups that fail or time
// out are logged and skipped, never fatal.
const dnsTimeout = 5 * time.Second

// Candidate is one address a node could try to connect to.
type Candidate struct {
	IP   net.IP
	Port uint16
}

// Host returns the candidate in host:port form.
func (c Candidate) Host() string {
	return net.JoinHostPort(c.IP.String(), strconv.Itoa(int(c.Port)))
}

// Config represents the configuration required for discovery.
type Config struct {
	StaticSeeds []string
	DNSSeeds    []string
	DefaultPort uint16
	Profile     Profile
	EvHandler   EventHandler
	Resolver    *net.Resolver
}

// Discovery resolves and filters peer candidates.
type Discovery struct {
	staticSeeds []string
	dnsSeeds    []string
	defaultPort uint16
	profile     Profile
	evHandler   EventHandler
	resolver    *net.Resolver
}

// New constructs a discovery value from the configuration.
func New(cfg Config) *Discovery {
	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	resolver := cfg.Resolver
	if resolver == nil {
		resolver = net.DefaultResolver
	}

	profile := cfg.Profile
	if profile == "" {
		profile = ProfilePublic
	}

	return &Discovery{
		staticSeeds: cfg.StaticSeeds,
		dnsSeeds:    cfg.DNSSeeds,
		defaultPort: cfg.DefaultPort,
		profile:     profile,
		evHandler:   ev,
		resolver:    resolver,
	}
}

// Candidates resolves the static and DNS seeds into a filtered, sorted
// and de-duplicated candidate list.
func (d *Discovery) Candidates(ctx context.Context) []Candidate {
	var candidates []Candidate

	for _, seed := range d.staticSeeds {
		candidate, err := d.parseSeed(seed)
		if err != nil {
			d.evHandler("discovery: static seed %q: skipped: %s", seed, err)
			continue
		}
		candidates = append(candidates, candidate)
	}

	for _, seed := range d.dnsSeeds {
		resolved, err := d.resolveDNS(ctx, seed)
		if err != nil {
			d.evHandler("discovery: dns seed %q: skipped: %s", seed, err)
			continue
		}
		candidates = append(candidates, resolved...)
	}

	candidates = d.filter(candidates)
	return dedupe(candidates)
}

// parseSeed accepts "host:port" or a bare IP using the default port.
func (d *Discovery) parseSeed(seed string) (Candidate, error) {
	host, portStr, err := net.SplitHostPort(seed)
	if err != nil {
		host = seed
		portStr = strconv.Itoa(int(d.defaultPort))
	}

	ip := net.ParseIP(host)
	if ip == nil {
		return Candidate{}, fmt.Errorf("not an ip address")
	}

	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return Candidate{}, fmt.Errorf("bad port %q", portStr)
	}

	return Candidate{IP: ip, Port: uint16(port)}, nil
}

func (d *Discovery) resolveDNS(ctx context.Context, seed string) ([]Candidate, error) {
	ctx, cancel := context.WithTimeout(ctx, dnsTimeout)
	defer cancel()

	ips, err := d.resolver.LookupIP(ctx, "ip", seed)
	if err != nil {
		return nil, err
	}

	candidates := make([]Candidate, 0, len(ips))
	for _, ip := range ips {
		candidates = append(candidates, Candidate{IP: ip, Port: d.defaultPort})
	}

	return candidates, nil
}

// filter drops candidates that are unusable for the active profile.
// The public profile rejects loopback, private, unspecified, multicast
// and broadcast addresses; the local profile allows them. Port 0 is
// always rejected.
func (d *Discovery) filter(candidates []Candidate) []Candidate {
	keep := candidates[:0]
	for _, c := range candidates {
		if c.Port == 0 {
			continue
		}
		if c.IP == nil {
			continue
		}

		if d.profile == ProfilePublic {
			switch {
			case c.IP.IsLoopback(),
				c.IP.IsPrivate(),
				c.IP.IsUnspecified(),
				c.IP.IsMulticast(),
				c.IP.IsLinkLocalUnicast(),
				c.IP.Equal(net.IPv4bcast):
				continue
			}
		}

		keep = append(keep, c)
	}

	return keep
}

// dedupe sorts by (ip, port) and removes duplicates.
func dedupe(candidates []Candidate) []Candidate {
	sort.Slice(candidates, func(i, j int) bool {
		ci, cj := candidates[i], candidates[j]
		if cmp := compareIPs(ci.IP, cj.IP); cmp != 0 {
			return cmp < 0
		}
		return ci.Port < cj.Port
	})

	out := candidates[:0]
	for i, c := range candidates {
		if i > 0 {
			prev := out[len(out)-1]
			if prev.Port == c.Port && prev.IP.Equal(c.IP) {
				continue
			}
		}
		out = append(out, c)
	}

	return out
}

func compareIPs(a, b net.IP) int {
	a16 := a.To16()
	b16 := b.To16()

	for i := range a16 {
		if a16[i] != b16[i] {
			if a16[i] < b16[i] {
				return -1
			}
			return 1
		}
	}

	return 0
}
