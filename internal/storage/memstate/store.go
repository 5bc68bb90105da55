package memstate

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"
	"github.com/hashicorp/go-memdb"
	"github.com/holiman/uint256"

	"github.com/theblitlabs/parity-stake/internal/core/models"
)

const (
	workersTable = "workers"
	slashesTable = "slashes"
	totalsTable  = "totals"

	idIndex     = "id"
	ownerIndex  = "owner"
	workerIndex = "worker"

	totalStakedKey = "staked"
)

var ErrSupplyExceeded = errors.New("total stake would exceed token supply")

type workerRow struct {
	ID     uint64
	Owner  string
	Worker *models.Worker
}

type slashRow struct {
	ID       uint64
	WorkerID uint64
	Record   models.SlashRecord
}

type totalRow struct {
	Name   string
	Amount *uint256.Int
}

// Store holds the live worker state in an MVCC in-memory database. Rows are
// never modified in place: readers get immutable snapshots and writers
// replace whole rows in a single transaction.
type Store struct {
	db    *memdb.MemDB
	locks *keyedMutex

	registerMu sync.Mutex
	nextWorker atomic.Uint64
	nextSlash  atomic.Uint64

	reserveMu sync.Mutex
	reserved  *uint256.Int
}

// New creates an empty store.
func New() (*Store, error) {
	db, err := memdb.NewMemDB(schema())
	if err != nil {
		return nil, fmt.Errorf("failed to create state database: %w", err)
	}
	s := &Store{
		db:       db,
		locks:    newKeyedMutex(),
		reserved: new(uint256.Int),
	}
	s.nextWorker.Store(1)
	s.nextSlash.Store(1)
	return s, nil
}

// Load seeds an empty store with previously persisted state.
func (s *Store) Load(workers []*models.Worker, slashes []models.SlashRecord) error {
	txn := s.db.Txn(true)
	defer txn.Abort()

	total := new(uint256.Int)
	var maxWorker, maxSlash uint64
	for _, w := range workers {
		if err := txn.Insert(workersTable, newWorkerRow(w)); err != nil {
			return fmt.Errorf("failed to load worker %d: %w", w.Profile.ID, err)
		}
		total.Add(total, w.Stake.Staked)
		if w.Profile.ID > maxWorker {
			maxWorker = w.Profile.ID
		}
	}
	for _, r := range slashes {
		if err := txn.Insert(slashesTable, &slashRow{ID: r.ID, WorkerID: r.WorkerID, Record: r}); err != nil {
			return fmt.Errorf("failed to load slash %d: %w", r.ID, err)
		}
		if r.ID > maxSlash {
			maxSlash = r.ID
		}
	}
	if err := txn.Insert(totalsTable, &totalRow{Name: totalStakedKey, Amount: total}); err != nil {
		return fmt.Errorf("failed to load totals: %w", err)
	}
	txn.Commit()

	s.nextWorker.Store(maxWorker + 1)
	s.nextSlash.Store(maxSlash + 1)
	return nil
}

// LockWorker serializes writers of a single worker. The returned function
// releases the lock.
func (s *Store) LockWorker(id uint64) func() {
	return s.locks.lock(id)
}

// LockRegistration serializes registrations so owner uniqueness and id
// allocation are checked and applied together.
func (s *Store) LockRegistration() func() {
	s.registerMu.Lock()
	return s.registerMu.Unlock
}

func (s *Store) NextWorkerID() uint64 {
	return s.nextWorker.Add(1) - 1
}

func (s *Store) NextSlashID() uint64 {
	return s.nextSlash.Add(1) - 1
}

// ReserveStake holds amount against supply until the returned release is
// called, so concurrent stakes on different workers cannot jointly exceed
// the supply.
func (s *Store) ReserveStake(amount, supply *uint256.Int) (func(), error) {
	s.reserveMu.Lock()
	defer s.reserveMu.Unlock()

	next := new(uint256.Int).Add(s.Snapshot().TotalStaked(), s.reserved)
	if _, overflow := next.AddOverflow(next, amount); overflow || next.Gt(supply) {
		return nil, ErrSupplyExceeded
	}
	held := new(uint256.Int).Set(amount)
	s.reserved.Add(s.reserved, held)

	var once sync.Once
	return func() {
		once.Do(func() {
			s.reserveMu.Lock()
			s.reserved.Sub(s.reserved, held)
			s.reserveMu.Unlock()
		})
	}, nil
}

// Change is one committed mutation. Worker must not be modified after it is
// applied.
type Change struct {
	Worker *models.Worker
	Slash  *models.SlashRecord
}

func (s *Store) Apply(change Change) error {
	txn := s.db.Txn(true)
	defer txn.Abort()

	w := change.Worker
	prevStaked := new(uint256.Int)
	raw, err := txn.First(workersTable, idIndex, w.Profile.ID)
	if err != nil {
		return fmt.Errorf("failed to read worker %d: %w", w.Profile.ID, err)
	}
	if raw != nil {
		prevStaked = raw.(*workerRow).Worker.Stake.Staked
	}
	if err := txn.Insert(workersTable, newWorkerRow(w)); err != nil {
		return fmt.Errorf("failed to write worker %d: %w", w.Profile.ID, err)
	}

	total := totalStaked(txn)
	switch {
	case w.Stake.Staked.Gt(prevStaked):
		total.Add(total, new(uint256.Int).Sub(w.Stake.Staked, prevStaked))
	case w.Stake.Staked.Lt(prevStaked):
		total.Sub(total, new(uint256.Int).Sub(prevStaked, w.Stake.Staked))
	}
	if err := txn.Insert(totalsTable, &totalRow{Name: totalStakedKey, Amount: total}); err != nil {
		return fmt.Errorf("failed to write totals: %w", err)
	}

	if change.Slash != nil {
		r := *change.Slash
		if err := txn.Insert(slashesTable, &slashRow{ID: r.ID, WorkerID: r.WorkerID, Record: r}); err != nil {
			return fmt.Errorf("failed to write slash %d: %w", r.ID, err)
		}
	}
	txn.Commit()
	return nil
}

// Snapshot is a consistent point-in-time view of the store.
type Snapshot struct {
	txn *memdb.Txn
}

// Snapshot returns a read-only view of the current state.
func (s *Store) Snapshot() *Snapshot {
	return &Snapshot{txn: s.db.Txn(false)}
}

// Worker returns the stored worker or nil. The result must not be modified.
func (sn *Snapshot) Worker(id uint64) *models.Worker {
	raw, err := sn.txn.First(workersTable, idIndex, id)
	if err != nil || raw == nil {
		return nil
	}
	return raw.(*workerRow).Worker
}

func (sn *Snapshot) WorkerByOwner(owner common.Address) *models.Worker {
	raw, err := sn.txn.First(workersTable, ownerIndex, ownerKey(owner))
	if err != nil || raw == nil {
		return nil
	}
	return raw.(*workerRow).Worker
}

// Workers returns every worker ordered by id.
func (sn *Snapshot) Workers() []*models.Worker {
	it, err := sn.txn.Get(workersTable, idIndex)
	if err != nil {
		return nil
	}
	var out []*models.Worker
	for obj := it.Next(); obj != nil; obj = it.Next() {
		out = append(out, obj.(*workerRow).Worker)
	}
	// uint index keys are varint encoded and do not sort numerically.
	sort.Slice(out, func(i, j int) bool { return out[i].Profile.ID < out[j].Profile.ID })
	return out
}

// Slashes returns the slash records of a worker, oldest first.
func (sn *Snapshot) Slashes(workerID uint64) []models.SlashRecord {
	it, err := sn.txn.Get(slashesTable, workerIndex, workerID)
	if err != nil {
		return nil
	}
	var out []models.SlashRecord
	for obj := it.Next(); obj != nil; obj = it.Next() {
		out = append(out, obj.(*slashRow).Record)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (sn *Snapshot) TotalStaked() *uint256.Int {
	return totalStaked(sn.txn)
}

func totalStaked(txn *memdb.Txn) *uint256.Int {
	raw, err := txn.First(totalsTable, idIndex, totalStakedKey)
	if err != nil || raw == nil {
		return new(uint256.Int)
	}
	return new(uint256.Int).Set(raw.(*totalRow).Amount)
}

func newWorkerRow(w *models.Worker) *workerRow {
	return &workerRow{ID: w.Profile.ID, Owner: ownerKey(w.Profile.Owner), Worker: w}
}

func ownerKey(a common.Address) string {
	return a.Hex()
}

func schema() *memdb.DBSchema {
	return &memdb.DBSchema{
		Tables: map[string]*memdb.TableSchema{
			workersTable: {
				Name: workersTable,
				Indexes: map[string]*memdb.IndexSchema{
					idIndex: {
						Name:    idIndex,
						Unique:  true,
						Indexer: &memdb.UintFieldIndex{Field: "ID"},
					},
					ownerIndex: {
						Name:    ownerIndex,
						Unique:  true,
						Indexer: &memdb.StringFieldIndex{Field: "Owner"},
					},
				},
			},
			slashesTable: {
				Name: slashesTable,
				Indexes: map[string]*memdb.IndexSchema{
					idIndex: {
						Name:    idIndex,
						Unique:  true,
						Indexer: &memdb.UintFieldIndex{Field: "ID"},
					},
					workerIndex: {
						Name:    workerIndex,
						Indexer: &memdb.UintFieldIndex{Field: "WorkerID"},
					},
				},
			},
			totalsTable: {
				Name: totalsTable,
				Indexes: map[string]*memdb.IndexSchema{
					idIndex: {
						Name:    idIndex,
						Unique:  true,
						Indexer: &memdb.StringFieldIndex{Field: "Name"},
					},
				},
			},
		},
	}
}
