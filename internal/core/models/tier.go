package models

import (
	"fmt"
	"sort"

	"github.com/holiman/uint256"
)

// PriceScale is the fixed-point scale of oracle prices and USD values.
var PriceScale = uint256.NewInt(1_000_000_000_000_000_000)

// USDValue is a fixed-point USD amount scaled by PriceScale. Known is false
// when no usable price was available.
type USDValue struct {
	Amount *uint256.Int
	Known  bool
}

func UnknownUSD() USDValue {
	return USDValue{Amount: new(uint256.Int)}
}

// WholeDollars converts a dollar figure into a scaled USDValue.
func WholeDollars(dollars uint64) USDValue {
	return USDValue{Amount: new(uint256.Int).Mul(uint256.NewInt(dollars), PriceScale), Known: true}
}

func (v USDValue) String() string {
	if !v.Known {
		return "unknown"
	}
	whole, frac := new(uint256.Int).DivMod(v.Amount, PriceScale, new(uint256.Int))
	cents := new(uint256.Int).Div(frac, uint256.NewInt(10_000_000_000_000_000))
	return fmt.Sprintf("%s.%02d", whole.Dec(), cents.Uint64())
}

type Tier struct {
	Rank                  int      `json:"rank"`
	Name                  string   `json:"name"`
	USDThreshold          USDValue `json:"-"`
	ReputationRequirement int      `json:"reputation_requirement"`
	BonusBps              uint64   `json:"bonus_bps"`
	// PriorityMultiplier is expressed in hundredths (150 = 1.5x).
	PriorityMultiplier uint64 `json:"allocation_priority_multiplier"`
}

var Unranked = Tier{Rank: 0, Name: "Unranked"}

func (t Tier) IsRanked() bool {
	return t.Rank > 0
}

type TierBenefits struct {
	BonusBps           uint64 `json:"bonus_bps"`
	PriorityMultiplier uint64 `json:"allocation_priority_multiplier"`
}

func (t Tier) Benefits() TierBenefits {
	return TierBenefits{BonusBps: t.BonusBps, PriorityMultiplier: t.PriorityMultiplier}
}

// TierLadder is sorted by ascending rank. Classification is a scan of the
// table, so tiers can be added without touching scoring.
type TierLadder []Tier

func DefaultTierLadder() TierLadder {
	return TierLadder{
		{Rank: 1, Name: "Basic", USDThreshold: WholeDollars(100), ReputationRequirement: 100, BonusBps: 0, PriorityMultiplier: 100},
		{Rank: 2, Name: "Premium", USDThreshold: WholeDollars(500), ReputationRequirement: 200, BonusBps: 200, PriorityMultiplier: 120},
		{Rank: 3, Name: "Enterprise", USDThreshold: WholeDollars(2_500), ReputationRequirement: 300, BonusBps: 400, PriorityMultiplier: 140},
		{Rank: 4, Name: "Fleet", USDThreshold: WholeDollars(10_000), ReputationRequirement: 400, BonusBps: 600, PriorityMultiplier: 160},
		{Rank: 5, Name: "Datacenter", USDThreshold: WholeDollars(25_000), ReputationRequirement: 450, BonusBps: 800, PriorityMultiplier: 180},
		{Rank: 6, Name: "Infrastructure", USDThreshold: WholeDollars(100_000), ReputationRequirement: 500, BonusBps: 1000, PriorityMultiplier: 200},
		{Rank: 7, Name: "Hyperscale", USDThreshold: WholeDollars(250_000), ReputationRequirement: 600, BonusBps: 1250, PriorityMultiplier: 250},
		{Rank: 8, Name: "Institutional", USDThreshold: WholeDollars(1_000_000), ReputationRequirement: 700, BonusBps: 1500, PriorityMultiplier: 300},
	}
}

// Validate checks that thresholds and ranks strictly increase.
func (l TierLadder) Validate() error {
	if len(l) == 0 {
		return fmt.Errorf("tier ladder is empty")
	}
	for i, t := range l {
		if !t.USDThreshold.Known || t.USDThreshold.Amount == nil {
			return fmt.Errorf("tier %s has no threshold", t.Name)
		}
		if t.PriorityMultiplier == 0 {
			return fmt.Errorf("tier %s has zero priority multiplier", t.Name)
		}
		if i == 0 {
			continue
		}
		prev := l[i-1]
		if t.Rank <= prev.Rank || !t.USDThreshold.Amount.Gt(prev.USDThreshold.Amount) {
			return fmt.Errorf("tier %s is not above %s", t.Name, prev.Name)
		}
		if t.ReputationRequirement < prev.ReputationRequirement {
			return fmt.Errorf("tier %s requires less reputation than %s", t.Name, prev.Name)
		}
	}
	return nil
}

func (l TierLadder) Sorted() TierLadder {
	out := append(TierLadder(nil), l...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Rank < out[j].Rank })
	return out
}

// Classify returns the highest tier whose threshold and reputation
// requirement are both met, or Unranked.
func (l TierLadder) Classify(usd USDValue, reputation int) Tier {
	best := Unranked
	if !usd.Known {
		return best
	}
	for _, t := range l {
		if usd.Amount.Lt(t.USDThreshold.Amount) || reputation < t.ReputationRequirement {
			continue
		}
		if t.Rank > best.Rank {
			best = t
		}
	}
	return best
}

func (l TierLadder) Lowest() Tier {
	if len(l) == 0 {
		return Unranked
	}
	return l[0]
}

func (l TierLadder) MaxMultiplier() uint64 {
	var max uint64
	for _, t := range l {
		if t.PriorityMultiplier > max {
			max = t.PriorityMultiplier
		}
	}
	return max
}

func (l TierLadder) ByName(name string) (Tier, bool) {
	for _, t := range l {
		if t.Name == name {
			return t, true
		}
	}
	if name == Unranked.Name {
		return Unranked, true
	}
	return Tier{}, false
}
