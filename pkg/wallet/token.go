package wallet

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"

	"github.com/theblitlabs/parity-stake/pkg/logger"
)

// ERC20Token moves stake through an on-chain token. Transfers out of the
// vault are signed by the vault key; transfers into it use the allowance the
// owner granted the vault.
type ERC20Token struct {
	client *Client
	token  *ERC20
}

// NewERC20Token binds the token contract at tokenAddress.
func NewERC20Token(client *Client, tokenAddress common.Address) (*ERC20Token, error) {
	token, err := NewERC20(tokenAddress, client.Client)
	if err != nil {
		return nil, err
	}
	return &ERC20Token{client: client, token: token}, nil
}

func (t *ERC20Token) Vault() common.Address {
	return t.client.Address()
}

func (t *ERC20Token) Transfer(ctx context.Context, from, to common.Address, amount *uint256.Int) error {
	log := logger.WithComponent("erc20_token")

	opts, err := t.client.TransactOpts(ctx)
	if err != nil {
		return err
	}

	var tx *types.Transaction
	if from == t.client.Address() {
		tx, err = t.token.Transfer(opts, to, amount.ToBig())
	} else {
		tx, err = t.token.TransferFrom(opts, from, to, amount.ToBig())
	}
	if err != nil {
		return fmt.Errorf("failed to send transfer of %s from %s: %w", amount.Dec(), from.Hex(), err)
	}

	log.Debug().
		Str("tx_hash", tx.Hash().Hex()).
		Str("from", from.Hex()).
		Str("to", to.Hex()).
		Str("amount", amount.Dec()).
		Msg("Token transfer submitted")

	_, err = t.client.WaitSuccess(ctx, tx)
	return err
}

func (t *ERC20Token) TotalSupply(ctx context.Context) (*uint256.Int, error) {
	supply, err := t.token.TotalSupply(&bind.CallOpts{Context: ctx})
	if err != nil {
		return nil, fmt.Errorf("failed to get total supply: %w", err)
	}
	out, overflow := uint256.FromBig(supply)
	if overflow {
		return nil, fmt.Errorf("total supply %s overflows uint256", supply)
	}
	return out, nil
}

// MemoryToken is an in-process ledger used for local runs and tests.
type MemoryToken struct {
	mu       sync.Mutex
	balances map[common.Address]*uint256.Int
	supply   *uint256.Int
}

// NewMemoryToken creates an in-process token with the given balances.
func NewMemoryToken(genesis map[common.Address]*uint256.Int) *MemoryToken {
	t := &MemoryToken{
		balances: make(map[common.Address]*uint256.Int, len(genesis)),
		supply:   new(uint256.Int),
	}
	for addr, amount := range genesis {
		t.Mint(addr, amount)
	}
	return t
}

// ParseGenesis reads "0xaddr=amount,0xaddr=amount" with amounts in base
// units.
func ParseGenesis(raw string) (map[common.Address]*uint256.Int, error) {
	out := make(map[common.Address]*uint256.Int)
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		addr, amount, ok := strings.Cut(entry, "=")
		if !ok {
			return nil, fmt.Errorf("invalid genesis entry %q", entry)
		}
		addr = strings.TrimSpace(addr)
		if !common.IsHexAddress(addr) {
			return nil, fmt.Errorf("invalid genesis address %q", addr)
		}
		value, err := uint256.FromDecimal(strings.TrimSpace(amount))
		if err != nil {
			return nil, fmt.Errorf("invalid genesis amount for %s: %w", addr, err)
		}
		key := common.HexToAddress(addr)
		if prev, exists := out[key]; exists {
			value.Add(value, prev)
		}
		out[key] = value
	}
	return out, nil
}

func (t *MemoryToken) Mint(to common.Address, amount *uint256.Int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.balanceLocked(to).Add(t.balanceLocked(to), amount)
	t.supply.Add(t.supply, amount)
}

func (t *MemoryToken) balanceLocked(addr common.Address) *uint256.Int {
	b, ok := t.balances[addr]
	if !ok {
		b = new(uint256.Int)
		t.balances[addr] = b
	}
	return b
}

func (t *MemoryToken) BalanceOf(addr common.Address) *uint256.Int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if b, ok := t.balances[addr]; ok {
		return new(uint256.Int).Set(b)
	}
	return new(uint256.Int)
}

func (t *MemoryToken) Transfer(ctx context.Context, from, to common.Address, amount *uint256.Int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	src := t.balanceLocked(from)
	if src.Lt(amount) {
		return fmt.Errorf("insufficient balance: %s has %s, needs %s", from.Hex(), src.Dec(), amount.Dec())
	}
	src.Sub(src, amount)
	dst := t.balanceLocked(to)
	dst.Add(dst, amount)
	return nil
}

func (t *MemoryToken) TotalSupply(ctx context.Context) (*uint256.Int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return new(uint256.Int).Set(t.supply), nil
}
