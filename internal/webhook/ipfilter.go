package webhook

import (
	"fmt"
	"net/netip"
	"strings"
)

// SourceIPFilter checks request source addresses against an allow-list.
// Entries may be bare addresses ("140.82.112.5") or CIDR blocks
// ("140.82.112.0/20"); real prefix arithmetic is used rather than string
// matching. An empty filter allows everything; a configured filter with a
// request that has no source address fails closed.
type SourceIPFilter struct {
	prefixes []netip.Prefix
}

// NewSourceIPFilter parses allow-list entries. A nil or empty list yields a
// filter that allows all sources.
func NewSourceIPFilter(entries []string) (*SourceIPFilter, error) {
	f := &SourceIPFilter{}
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if strings.Contains(entry, "/") {
			prefix, err := netip.ParsePrefix(entry)
			if err != nil {
				return nil, fmt.Errorf("invalid CIDR allow-list entry %q: %w", entry, err)
			}
			f.prefixes = append(f.prefixes, prefix.Masked())
			continue
		}
		addr, err := netip.ParseAddr(entry)
		if err != nil {
			return nil, fmt.Errorf("invalid IP allow-list entry %q: %w", entry, err)
		}
		f.prefixes = append(f.prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return f, nil
}

// Allowed reports whether the source address passes the filter.
func (f *SourceIPFilter) Allowed(source string) bool {
	if f == nil || len(f.prefixes) == 0 {
		return true
	}
	if source == "" {
		return false
	}

	// Source may arrive as "ip:port" from the HTTP layer.
	if ap, err := netip.ParseAddrPort(source); err == nil {
		source = ap.Addr().String()
	}
	addr, err := netip.ParseAddr(source)
	if err != nil {
		return false
	}
	addr = addr.Unmap()

	for _, prefix := range f.prefixes {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}
