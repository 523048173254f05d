package mirror

import (
	"fmt"
	"strings"

	"github.com/stacklok/search-mirror/pkg/searcherr"
)

// Strategy selects the gateway, or gateways, a mirrored index consults for a
// read operation.
type Strategy int

const (
	// FallbackOnFailure queries the remote index and answers from the mirror
	// when the remote request fails.
	FallbackOnFailure Strategy = iota

	// OnlineOnly queries the remote index only.
	OnlineOnly

	// OfflineOnly queries the mirror only.
	OfflineOnly

	// FallbackOnTimeout queries the remote index and, when it has not answered
	// within the fallback timeout, the mirror as well. The first successful
	// answer wins.
	FallbackOnTimeout
)

var strategyNames = map[Strategy]string{
	FallbackOnFailure: "fallback-on-failure",
	OnlineOnly:        "online-only",
	OfflineOnly:       "offline-only",
	FallbackOnTimeout: "fallback-on-timeout",
}

func (s Strategy) String() string {
	if name, ok := strategyNames[s]; ok {
		return name
	}
	return fmt.Sprintf("strategy(%d)", int(s))
}

// ParseStrategy parses a strategy name. Matching is case insensitive and
// accepts underscores in place of dashes.
func ParseStrategy(name string) (Strategy, error) {
	normalized := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "_", "-")
	for s, n := range strategyNames {
		if n == normalized {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown request strategy %q: %w", name, searcherr.ErrInvalidArgument)
}

// MarshalText implements encoding.TextMarshaler.
func (s Strategy) MarshalText() ([]byte, error) {
	if _, ok := strategyNames[s]; !ok {
		return nil, fmt.Errorf("unknown request strategy %d: %w", int(s), searcherr.ErrInvalidArgument)
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Strategy) UnmarshalText(text []byte) error {
	parsed, err := ParseStrategy(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
