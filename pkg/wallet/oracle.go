package wallet

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"k8s.io/utils/clock"

	"github.com/theblitlabs/parity-stake/pkg/logger"
)

const priceDecimals = 18

const AggregatorABI = `[
	{"inputs":[],"name":"decimals","outputs":[{"internalType":"uint8","name":"","type":"uint8"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"latestRoundData","outputs":[{"internalType":"uint80","name":"roundId","type":"uint80"},{"internalType":"int256","name":"answer","type":"int256"},{"internalType":"uint256","name":"startedAt","type":"uint256"},{"internalType":"uint256","name":"updatedAt","type":"uint256"},{"internalType":"uint80","name":"answeredInRound","type":"uint80"}],"stateMutability":"view","type":"function"}
]`

// AggregatorOracle reads a Chainlink style USD feed. Stale or non-positive
// answers are reported as a zero price.
type AggregatorOracle struct {
	asset    string
	contract *bind.BoundContract
	maxAge   time.Duration
	clock    clock.PassiveClock
	decimals uint8
}

func NewAggregatorOracle(ctx context.Context, backend bind.ContractCaller, asset string, feed common.Address, maxAge time.Duration) (*AggregatorOracle, error) {
	parsed, err := abi.JSON(strings.NewReader(AggregatorABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse aggregator ABI: %w", err)
	}
	o := &AggregatorOracle{
		asset:    asset,
		contract: bind.NewBoundContract(feed, parsed, backend, nil, nil),
		maxAge:   maxAge,
		clock:    clock.RealClock{},
	}

	var out []interface{}
	if err := o.contract.Call(&bind.CallOpts{Context: ctx}, &out, "decimals"); err != nil {
		return nil, fmt.Errorf("failed to read feed decimals: %w", err)
	}
	dec, ok := out[0].(uint8)
	if !ok {
		return nil, fmt.Errorf("unexpected decimals type %T", out[0])
	}
	o.decimals = dec
	return o, nil
}

func (o *AggregatorOracle) Price(ctx context.Context, asset string) (*uint256.Int, error) {
	if !strings.EqualFold(asset, o.asset) {
		return nil, fmt.Errorf("no price feed for asset %q", asset)
	}

	var out []interface{}
	if err := o.contract.Call(&bind.CallOpts{Context: ctx}, &out, "latestRoundData"); err != nil {
		return nil, fmt.Errorf("failed to read latest round: %w", err)
	}
	if len(out) != 5 {
		return nil, fmt.Errorf("unexpected latestRoundData result length %d", len(out))
	}
	answer, _ := out[1].(*big.Int)
	updatedAt, _ := out[3].(*big.Int)
	if answer == nil || updatedAt == nil {
		return nil, fmt.Errorf("malformed latestRoundData result")
	}

	updated := time.Unix(updatedAt.Int64(), 0)
	if o.maxAge > 0 && o.clock.Since(updated) > o.maxAge {
		log := logger.WithComponent("price_oracle")
		log.Warn().Str("asset", asset).Time("updated_at", updated).Msg("Price feed is stale")
		return new(uint256.Int), nil
	}
	return NormalizePrice(answer, o.decimals), nil
}

// NormalizePrice rescales a feed answer to 18 decimals. Non-positive or
// oversized answers become zero.
func NormalizePrice(answer *big.Int, decimals uint8) *uint256.Int {
	if answer.Sign() <= 0 {
		return new(uint256.Int)
	}
	scaled := new(big.Int).Set(answer)
	switch {
	case decimals < priceDecimals:
		scaled.Mul(scaled, new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(priceDecimals-decimals)), nil))
	case decimals > priceDecimals:
		scaled.Quo(scaled, new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals-priceDecimals)), nil))
	}
	out, overflow := uint256.FromBig(scaled)
	if overflow {
		return new(uint256.Int)
	}
	return out
}

// StaticOracle always reports the same price.
type StaticOracle struct {
	price *uint256.Int
}

// NewStaticOracle parses a USD price such as "2.50".
func NewStaticOracle(usd string) (*StaticOracle, error) {
	price, err := ParseUSD(usd)
	if err != nil {
		return nil, err
	}
	return &StaticOracle{price: price}, nil
}

func (o *StaticOracle) Price(ctx context.Context, asset string) (*uint256.Int, error) {
	return new(uint256.Int).Set(o.price), nil
}

// ParseUSD converts a decimal dollar amount to 18 decimal fixed point.
func ParseUSD(raw string) (*uint256.Int, error) {
	raw = strings.TrimSpace(raw)
	whole, frac, _ := strings.Cut(raw, ".")
	if whole == "" {
		whole = "0"
	}
	if len(frac) > priceDecimals {
		return nil, fmt.Errorf("price %q has more than %d decimals", raw, priceDecimals)
	}
	digits := whole + frac + strings.Repeat("0", priceDecimals-len(frac))
	price, err := uint256.FromDecimal(digits)
	if err != nil {
		return nil, fmt.Errorf("invalid price %q: %w", raw, err)
	}
	return price, nil
}
