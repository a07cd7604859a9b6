package messaging

import (
	"fmt"

	"github.com/aretw0/mqlua/pkg/domain"
)

// Pattern is one of the twelve ZeroMQ socket patterns a node may request.
type Pattern int

const (
	Pub Pattern = iota
	Sub
	XPub
	XSub
	Push
	Pull
	Pair
	Stream
	Req
	Rep
	Dealer
	Router
)

var patternNames = [...]string{
	Pub:    "pub",
	Sub:    "sub",
	XPub:   "xpub",
	XSub:   "xsub",
	Push:   "push",
	Pull:   "pull",
	Pair:   "pair",
	Stream: "stream",
	Req:    "req",
	Rep:    "rep",
	Dealer: "dealer",
	Router: "router",
}

func (p Pattern) String() string {
	if p < 0 || int(p) >= len(patternNames) {
		return fmt.Sprintf("pattern(%d)", int(p))
	}
	return patternNames[p]
}

// ParsePattern resolves a symbolic pattern name. Names are case sensitive,
// as they are for scripts.
func ParsePattern(name string) (Pattern, error) {
	for i, n := range patternNames {
		if n == name {
			return Pattern(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", domain.ErrUnknownPattern, name)
}

// PatternNames lists the supported names in declaration order.
func PatternNames() []string {
	out := make([]string, len(patternNames))
	copy(out, patternNames[:])
	return out
}
