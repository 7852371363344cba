package domain

import (
	"net/netip"
	"strings"
	"unicode"
)

const maxIdentityLength = 256

// NormalizeIdentity turns a raw voter identity into the rate-limit key.
// Network addresses are canonicalized so that "::ffff:1.2.3.4", " 1.2.3.4"
// and "1.2.3.4" share one cooldown. Other opaque identities (user ids,
// hashed fingerprints) are kept as given after trimming.
func NormalizeIdentity(raw string) (string, error) {
	id := strings.TrimSpace(raw)
	if id == "" || len(id) > maxIdentityLength {
		return "", ErrInvalidIdentity
	}
	for _, r := range id {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return "", ErrInvalidIdentity
		}
	}

	if addr, err := netip.ParseAddr(id); err == nil {
		return addr.Unmap().WithZone("").String(), nil
	}
	return id, nil
}
