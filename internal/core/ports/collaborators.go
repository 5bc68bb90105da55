package ports

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Token moves the staking token between accounts. Implementations must
// either complete the transfer or return an error with no effect.
type Token interface {
	Transfer(ctx context.Context, from, to common.Address, amount *uint256.Int) error
	TotalSupply(ctx context.Context) (*uint256.Int, error)
}

// PriceOracle reports the USD price of one whole token scaled by 1e18.
// A zero price means the price is unavailable.
type PriceOracle interface {
	Price(ctx context.Context, asset string) (*uint256.Int, error)
}

type Role string

const (
	RoleWorker     Role = "worker"
	RoleSlasher    Role = "slasher"
	RoleJobManager Role = "job_manager"
)

type AccessControl interface {
	HasRole(ctx context.Context, account common.Address, role Role) (bool, error)
}
