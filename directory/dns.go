package directory

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	ec "github.com/bsv-blockchain/go-sdk/primitives/ec"
	"github.com/miekg/dns"

	"github.com/bitfsorg/libshare-go/identity"
)

// TXTPrefix marks directory TXT records: "libshare=<66 hex chars>".
const TXTPrefix = "libshare="

const (
	// defaultUpstream is the default recursive resolver for DNSSEC queries.
	defaultUpstream = "8.8.8.8:53"

	// dnssecTimeout is the timeout for DNSSEC queries.
	dnssecTimeout = 10 * time.Second

	// edns0BufSize is the EDNS0 UDP buffer size.
	edns0BufSize = 4096
)

// TXTResolver looks up TXT records. A name with no records returns an
// empty slice and no error.
type TXTResolver interface {
	LookupTXT(ctx context.Context, name string) ([]string, error)
}

// netResolver wraps the standard library resolver.
type netResolver struct{}

func (netResolver) LookupTXT(ctx context.Context, name string) ([]string, error) {
	txts, err := net.DefaultResolver.LookupTXT(ctx, name)
	if err != nil {
		var dnsErr *net.DNSError
		if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: TXT %s: %w", ErrLookupFailed, name, err)
	}
	return txts, nil
}

// DefaultTXTResolver resolves through the system resolver.
var DefaultTXTResolver TXTResolver = netResolver{}

// DNSSECResolver is a TXTResolver that queries an upstream recursive
// resolver with the DO bit and requires the AD flag on every answer.
type DNSSECResolver struct {
	// Upstream is the recursive resolver address (e.g., "8.8.8.8:53").
	Upstream string

	// RequireAD rejects answers the upstream did not authenticate.
	RequireAD bool

	// Timeout bounds each exchange. Zero uses 10s.
	Timeout time.Duration
}

var _ TXTResolver = (*DNSSECResolver)(nil)

// NewDNSSECResolver creates a resolver that requires DNSSEC validation.
// If upstream is empty, it defaults to "8.8.8.8:53".
func NewDNSSECResolver(upstream string) *DNSSECResolver {
	if upstream == "" {
		upstream = defaultUpstream
	}
	return &DNSSECResolver{Upstream: upstream, RequireAD: true}
}

// LookupTXT queries name and joins split TXT strings.
func (r *DNSSECResolver) LookupTXT(ctx context.Context, name string) ([]string, error) {
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(name), dns.TypeTXT)
	msg.RecursionDesired = true
	msg.SetEdns0(edns0BufSize, true)

	timeout := r.Timeout
	if timeout == 0 {
		timeout = dnssecTimeout
	}
	client := &dns.Client{Timeout: timeout}
	resp, _, err := client.ExchangeContext(ctx, msg, r.Upstream)
	if err != nil {
		return nil, fmt.Errorf("%w: TXT %s: %w", ErrLookupFailed, name, err)
	}

	if resp.Rcode != dns.RcodeSuccess && resp.Rcode != dns.RcodeNameError {
		return nil, fmt.Errorf("%w: TXT %s: rcode %s", ErrLookupFailed, name, dns.RcodeToString[resp.Rcode])
	}
	if r.RequireAD && !resp.AuthenticatedData {
		return nil, fmt.Errorf("%w: AD flag not set for %s", ErrDNSSECValidationFailed, name)
	}

	var txts []string
	for _, rr := range resp.Answer {
		if txt, ok := rr.(*dns.TXT); ok {
			txts = append(txts, strings.Join(txt.Txt, ""))
		}
	}
	return txts, nil
}

// DNSDirectory is a read-only Directory published in DNS. The key for id
// lives in a TXT record at "<id>.<Zone>".
type DNSDirectory struct {
	Zone     string
	Resolver TXTResolver
	Mainnet  bool
}

var _ Directory = (*DNSDirectory)(nil)

// NewDNSDirectory creates a DNS directory for zone. A nil resolver uses
// DefaultTXTResolver.
func NewDNSDirectory(zone string, resolver TXTResolver, mainnet bool) *DNSDirectory {
	if resolver == nil {
		resolver = DefaultTXTResolver
	}
	return &DNSDirectory{Zone: strings.TrimSuffix(zone, "."), Resolver: resolver, Mainnet: mainnet}
}

// RecordName returns the TXT owner name for id.
func (d *DNSDirectory) RecordName(id identity.Identity) string {
	return id.String() + "." + d.Zone
}

// RecordValue returns the TXT value that publishes pub.
func RecordValue(pub *ec.PublicKey) string {
	return TXTPrefix + hex.EncodeToString(pub.Compressed())
}

// Get returns the key published for id.
func (d *DNSDirectory) Get(ctx context.Context, id identity.Identity) (*ec.PublicKey, error) {
	if d.Zone == "" {
		return nil, fmt.Errorf("%w: empty zone", ErrLookupFailed)
	}
	if id == "" {
		return nil, fmt.Errorf("%w: empty identity", ErrNotFound)
	}

	name := d.RecordName(id)
	txts, err := d.Resolver.LookupTXT(ctx, name)
	if err != nil {
		return nil, err
	}

	var pubHex string
	for _, txt := range txts {
		txt = strings.TrimSpace(txt)
		if strings.HasPrefix(txt, TXTPrefix) {
			pubHex = strings.TrimSpace(strings.TrimPrefix(txt, TXTPrefix))
			break
		}
	}
	if pubHex == "" {
		return nil, fmt.Errorf("%w: no %s TXT record at %s", ErrNotFound, TXTPrefix, name)
	}
	if len(pubHex) != 66 {
		return nil, fmt.Errorf("%w: expected 66 hex chars, got %d", ErrInvalidPublicKey, len(pubHex))
	}

	raw, err := hex.DecodeString(pubHex)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid hex in TXT record: %w", ErrInvalidPublicKey, err)
	}
	pub, err := ec.PublicKeyFromBytes(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPublicKey, err)
	}
	if err := bind(pub, id, d.Mainnet); err != nil {
		return nil, err
	}
	return pub, nil
}
