package networks

import (
	"net"
	"strings"

	"github.com/yl2chen/cidranger"
)

// Blocklist holds networks that may read but not write.
type Blocklist struct {
	ranger cidranger.Ranger
}

// NewBlocklist parses CIDRs (bare addresses are taken as single hosts).
func NewBlocklist(addresses []string) (*Blocklist, error) {
	b := &Blocklist{ranger: cidranger.NewPCTrieRanger()}
	for _, address := range addresses {
		address = strings.TrimSpace(address)
		if address == "" {
			continue
		}
		if err := b.Block(address); err != nil {
			return nil, err
		}
	}
	return b, nil
}

func (b *Blocklist) Block(address string) error {
	if !strings.Contains(address, "/") {
		if ip := net.ParseIP(address); ip != nil && ip.To4() != nil {
			address += "/32"
		} else {
			address += "/128"
		}
	}
	_, network, err := net.ParseCIDR(address)
	if err != nil {
		return ErrInvalidNetwork
	}
	return b.ranger.Insert(cidranger.NewBasicRangerEntry(*network))
}

func (b *Blocklist) IsBlocked(address string) bool {
	if b == nil {
		return false
	}
	ip := net.ParseIP(address)
	if ip == nil {
		return false
	}
	blocked, err := b.ranger.Contains(ip)
	return err == nil && blocked
}
