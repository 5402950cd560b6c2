package model

import (
	"strconv"
	"strings"
)

const maxLabelBytes = 63

// Mangle appends "-2" to name, or increments an existing "-N" suffix to
// "-(N+1)", then re-truncates to 63 bytes if the result overflows a DNS
// label (spec §4.3 "Mangling").
func Mangle(name string) string {
	base := name
	n := 1

	if i := strings.LastIndexByte(name, '-'); i >= 0 {
		if suffix, err := strconv.Atoi(name[i+1:]); err == nil && suffix >= 2 {
			base = name[:i]
			n = suffix
		}
	}

	mangled := base + "-" + strconv.Itoa(n+1)
	if len(mangled) <= maxLabelBytes {
		return mangled
	}

	suffix := "-" + strconv.Itoa(n+1)
	overflow := len(mangled) - maxLabelBytes
	return base[:len(base)-overflow] + suffix
}
