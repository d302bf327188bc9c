// Package sweep implements the full factorial parameter sweep over the
// external simulation engine: plan construction, engine invocation, output
// relocation, and the sequential fail-fast driver.
package sweep

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// Pair is one (regime, level) cell of the factorial design.
type Pair struct {
	Regime string
	Level  int
}

// Prefix is the filename stem identifying this pair's output files.
//
// Injectivity over the whole plan is guaranteed structurally: regime tags may
// not contain underscores (see validRegimeTag) and the level rendering is all
// digits, so the last underscore always splits regime from level.
func (p Pair) Prefix() string {
	return fmt.Sprintf("sweep_%s_%d", p.Regime, p.Level)
}

func (p Pair) String() string {
	return fmt.Sprintf("%s/%d", p.Regime, p.Level)
}

// Plan is the immutable, validated sweep design.
//
// The pair order is fixed at construction: regimes outer, levels inner, each
// in the given order. The driver executes pairs strictly in this order.
type Plan struct {
	regimes   []string
	levels    []int
	seedCount int
	pairs     []Pair
}

// NewPlan builds and validates a Plan.
//
// Rejected inputs:
//   - empty regime or level list, non-positive seed count
//   - duplicate regimes or levels, negative levels
//   - regime tags outside [a-z0-9-] or not starting with a letter
//   - any prefix collision (cannot occur for valid tags; checked anyway)
func NewPlan(regimes []string, levels []int, seedCount int) (*Plan, error) {
	if len(regimes) == 0 {
		return nil, fmt.Errorf("plan requires at least one regime")
	}
	if len(levels) == 0 {
		return nil, fmt.Errorf("plan requires at least one level")
	}
	if seedCount <= 0 {
		return nil, fmt.Errorf("seed count must be positive (got %d)", seedCount)
	}

	seenRegime := make(map[string]struct{}, len(regimes))
	for _, r := range regimes {
		if err := validRegimeTag(r); err != nil {
			return nil, err
		}
		if _, dup := seenRegime[r]; dup {
			return nil, fmt.Errorf("duplicate regime %q", r)
		}
		seenRegime[r] = struct{}{}
	}

	seenLevel := make(map[int]struct{}, len(levels))
	for _, l := range levels {
		if l < 0 {
			return nil, fmt.Errorf("level must be non-negative (got %d)", l)
		}
		if _, dup := seenLevel[l]; dup {
			return nil, fmt.Errorf("duplicate level %d", l)
		}
		seenLevel[l] = struct{}{}
	}

	pairs := make([]Pair, 0, len(regimes)*len(levels))
	prefixes := make(map[string]Pair, len(regimes)*len(levels))
	for _, r := range regimes {
		for _, l := range levels {
			p := Pair{Regime: r, Level: l}
			prefix := p.Prefix()
			if prev, clash := prefixes[prefix]; clash {
				return nil, fmt.Errorf("prefix collision: %s and %s both map to %q", prev, p, prefix)
			}
			prefixes[prefix] = p
			pairs = append(pairs, p)
		}
	}

	return &Plan{
		regimes:   append([]string(nil), regimes...),
		levels:    append([]int(nil), levels...),
		seedCount: seedCount,
		pairs:     pairs,
	}, nil
}

func validRegimeTag(tag string) error {
	if tag == "" {
		return fmt.Errorf("regime tag must not be empty")
	}
	if tag[0] < 'a' || tag[0] > 'z' {
		return fmt.Errorf("regime tag %q must start with a lowercase letter", tag)
	}
	for _, c := range tag {
		switch {
		case c >= 'a' && c <= 'z':
		case c >= '0' && c <= '9':
		case c == '-':
		default:
			return fmt.Errorf("regime tag %q contains invalid character %q", tag, c)
		}
	}
	return nil
}

// Pairs returns the execution order as a copy.
func (p *Plan) Pairs() []Pair {
	out := make([]Pair, len(p.pairs))
	copy(out, p.pairs)
	return out
}

// Regimes returns the regime tags in sweep order.
func (p *Plan) Regimes() []string {
	out := make([]string, len(p.regimes))
	copy(out, p.regimes)
	return out
}

// Levels returns the level sequence in sweep order.
func (p *Plan) Levels() []int {
	out := make([]int, len(p.levels))
	copy(out, p.levels)
	return out
}

// SeedCount is the per-invocation replication count.
func (p *Plan) SeedCount() int { return p.seedCount }

// Size is the number of engine invocations a full sweep performs.
func (p *Plan) Size() int { return len(p.pairs) }

// Fingerprint is a stable identity for the plan, used to match resumable
// runs in the ledger. It covers regimes, levels, and seed count; two plans
// with the same fingerprint produce the same pair sequence.
func (p *Plan) Fingerprint() string {
	var b strings.Builder
	b.WriteString("regimes:")
	b.WriteString(strings.Join(p.regimes, ","))
	b.WriteString(";levels:")
	for i, l := range p.levels {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Itoa(l))
	}
	b.WriteString(";seeds:")
	b.WriteString(strconv.Itoa(p.seedCount))

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
