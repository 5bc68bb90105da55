package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
	testingclock "k8s.io/utils/clock/testing"

	"github.com/theblitlabs/parity-stake/internal/core/config"
	"github.com/theblitlabs/parity-stake/internal/core/models"
	"github.com/theblitlabs/parity-stake/internal/metrics"
	"github.com/theblitlabs/parity-stake/internal/storage/memstate"
	"github.com/theblitlabs/parity-stake/pkg/wallet"
)

const testUnstakeDelay = 7 * 24 * time.Hour

var (
	vaultAddr    = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	treasuryAddr = common.HexToAddress("0x00000000000000000000000000000000000000a2")
	poolAddr     = common.HexToAddress("0x00000000000000000000000000000000000000a3")
	slasherAddr  = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	managerAddr  = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	aliceAddr    = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bobAddr      = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	carolAddr    = common.HexToAddress("0x00000000000000000000000000000000000ca201")

	testStart = time.Date(2025, 1, 6, 12, 0, 0, 0, time.UTC)
)

// tokens converts whole tokens into 18 decimal base units.
func tokens(n uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(n), models.PriceScale)
}

// fakeOracle reports a settable price; a nil price simulates an outage.
type fakeOracle struct {
	mu    sync.Mutex
	price *uint256.Int
}

func (o *fakeOracle) set(usd string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if usd == "" {
		o.price = nil
		return
	}
	price, err := wallet.ParseUSD(usd)
	if err != nil {
		panic(err)
	}
	o.price = price
}

func (o *fakeOracle) Price(ctx context.Context, asset string) (*uint256.Int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.price == nil {
		return nil, errors.New("feed unavailable")
	}
	return new(uint256.Int).Set(o.price), nil
}

type fakeArchive struct {
	mu      sync.Mutex
	records []models.SlashRecord
	err     error
}

func (a *fakeArchive) ArchiveSlash(ctx context.Context, record models.SlashRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	a.records = append(a.records, record)
	return nil
}

func (a *fakeArchive) archived() []models.SlashRecord {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]models.SlashRecord(nil), a.records...)
}

type testEnv struct {
	ctx      context.Context
	clock    *testingclock.FakeClock
	store    *memstate.Store
	token    *wallet.MemoryToken
	oracle   *fakeOracle
	access   *StaticAccessControl
	archive  *fakeArchive
	metrics  *metrics.Metrics
	core     *Core
	registry *RegistryService
	ledger   *StakeLedger
	tiers    *TierClassifier
	tracker  *ReputationTracker
	scorer   *AllocationScorer
	slashing *SlashingEngine
	rewards  *RewardService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store, err := memstate.New()
	require.NoError(t, err)

	access, err := NewStaticAccessControl(config.RolesConfig{
		Workers:     "*",
		Slashers:    slasherAddr.Hex(),
		JobManagers: managerAddr.Hex(),
	})
	require.NoError(t, err)

	e := &testEnv{
		ctx:   context.Background(),
		clock: testingclock.NewFakeClock(testStart),
		store: store,
		token: wallet.NewMemoryToken(map[common.Address]*uint256.Int{
			aliceAddr: tokens(200_000),
			bobAddr:   tokens(200_000),
			carolAddr: tokens(1_000),
			poolAddr:  tokens(10_000),
		}),
		oracle:  &fakeOracle{},
		access:  access,
		archive: &fakeArchive{},
		metrics: metrics.New(),
	}
	e.oracle.set("1")

	ladder := models.DefaultTierLadder()
	e.core = NewCore(store, nil, access, e.clock, e.metrics)
	valuer := NewStakeValuer(e.oracle, "PRTY", e.metrics)
	e.registry = NewRegistryService(e.core)
	e.ledger = NewStakeLedger(e.core, e.token, valuer, ladder, LedgerConfig{
		Vault:        vaultAddr,
		Treasury:     treasuryAddr,
		Asset:        "PRTY",
		UnstakeDelay: testUnstakeDelay,
	})
	e.tiers = NewTierClassifier(e.core, valuer, ladder)
	e.tracker = NewReputationTracker(e.core, e.tiers)
	e.scorer = NewAllocationScorer(e.core, e.tiers, valuer)
	e.slashing = NewSlashingEngine(e.core, e.token, valuer, ladder, e.archive, SlashingConfig{
		Vault:    vaultAddr,
		Treasury: treasuryAddr,
	})
	e.rewards = NewRewardService(e.core, e.token, e.tiers, valuer, poolAddr)
	return e
}

func gpuCapabilities(gpuMemoryGB uint64, caps ...models.Capability) models.WorkerCapabilities {
	return models.WorkerCapabilities{
		Flags: models.NewCapabilitySet(caps...),
		Specs: models.HardwareSpecs{
			GPUMemoryGB:   gpuMemoryGB,
			CPUCores:      16,
			RAMGB:         64,
			StorageGB:     1000,
			BandwidthMbps: 1000,
		},
		GPUModel: "RTX 4090",
	}
}

var testProof = [][]byte{[]byte("attestation")}

func (e *testEnv) register(t *testing.T, owner common.Address, caps models.WorkerCapabilities) uint64 {
	t.Helper()
	id, err := e.registry.Register(e.ctx, owner, caps, testProof)
	require.NoError(t, err)
	return id
}

// stakedWorker registers owner with a CUDA GPU and stakes the given whole
// tokens without a lock.
func (e *testEnv) stakedWorker(t *testing.T, owner common.Address, whole uint64) uint64 {
	t.Helper()
	id := e.register(t, owner, gpuCapabilities(24, models.CapabilityCUDA))
	if whole > 0 {
		_, err := e.ledger.Stake(e.ctx, owner, id, tokens(whole), 0)
		require.NoError(t, err)
	}
	return id
}

func (e *testEnv) worker(t *testing.T, id uint64) *models.Worker {
	t.Helper()
	w, err := e.registry.Get(e.ctx, id)
	require.NoError(t, err)
	return w
}

func requireAmount(t *testing.T, want, got *uint256.Int) {
	t.Helper()
	require.NotNil(t, got)
	require.Equal(t, want.Dec(), got.Dec())
}
