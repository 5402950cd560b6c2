package builder

import (
	"fmt"
	"net"
	"strings"
)

// ReverseName builds the in-addr.arpa (v4) or ip6.arpa (v6, 32 nibbles)
// owner name for ip (spec §4.2).
func ReverseName(ip net.IP) string {
	if v4 := ip.To4(); v4 != nil {
		return fmt.Sprintf("%d.%d.%d.%d.in-addr.arpa", v4[3], v4[2], v4[1], v4[0])
	}

	v6 := ip.To16()
	var nibbles []string
	for i := len(v6) - 1; i >= 0; i-- {
		b := v6[i]
		nibbles = append(nibbles, fmt.Sprintf("%x", b&0x0F), fmt.Sprintf("%x", b>>4))
	}
	return strings.Join(nibbles, ".") + ".ip6.arpa"
}
