package artnet

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// ParseChannels parses a spec such as "1-3, 10, 12-13" into sorted,
// de-duplicated channel numbers in 1-512.
func ParseChannels(spec string) ([]int, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidChannels)
	}

	var out []int
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		lo, hi, isRange := strings.Cut(part, "-")
		first, err := channel(lo)
		if err != nil {
			return nil, err
		}
		last := first
		if isRange {
			if last, err = channel(hi); err != nil {
				return nil, err
			}
			if last < first {
				return nil, fmt.Errorf("%w: range %q is reversed", ErrInvalidChannels, part)
			}
		}
		for ch := first; ch <= last; ch++ {
			out = append(out, ch)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no channels in %q", ErrInvalidChannels, spec)
	}
	slices.Sort(out)
	return slices.Compact(out), nil
}

func channel(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a number", ErrInvalidChannels, s)
	}
	if n < 1 || n > Channels {
		return 0, fmt.Errorf("%w: channel %d not in 1-%d", ErrInvalidChannels, n, Channels)
	}
	return n, nil
}
