package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/prometheus/client_golang/prometheus"
	"k8s.io/utils/clock"

	"github.com/theblitlabs/parity-stake/internal/api"
	"github.com/theblitlabs/parity-stake/internal/api/handlers"
	v1 "github.com/theblitlabs/parity-stake/internal/api/v1"
	"github.com/theblitlabs/parity-stake/internal/core/config"
	"github.com/theblitlabs/parity-stake/internal/core/models"
	"github.com/theblitlabs/parity-stake/internal/core/ports"
	"github.com/theblitlabs/parity-stake/internal/core/services"
	"github.com/theblitlabs/parity-stake/internal/metrics"
	"github.com/theblitlabs/parity-stake/internal/storage/db"
	"github.com/theblitlabs/parity-stake/internal/storage/memstate"
	"github.com/theblitlabs/parity-stake/internal/utils"
	"github.com/theblitlabs/parity-stake/pkg/keystore"
	"github.com/theblitlabs/parity-stake/pkg/logger"
	"github.com/theblitlabs/parity-stake/pkg/wallet"
)

// DefaultMemoryVault holds stake when the in-memory token is used and no
// vault address is configured.
var DefaultMemoryVault = common.BytesToAddress(crypto.Keccak256([]byte("parity-stake/vault"))[12:])

type Server struct {
	Config       *config.Config
	HttpServer   *http.Server
	DBManager    *db.DBManager
	DecayService *services.ReputationDecayService
	Metrics      *metrics.Metrics
	ethClients   []*ethclient.Client
}

func (s *Server) Shutdown(ctx context.Context) {
	log := logger.Get()

	serverShutdownCtx, serverShutdownCancel := context.WithTimeout(ctx, 15*time.Second)
	defer serverShutdownCancel()

	if s.DecayService != nil {
		s.DecayService.Stop()
		log.Info().Msg("Stopped reputation decay service")
	}

	log.Info().Int("shutdown_timeout_seconds", 15).Msg("Initiating server shutdown sequence")
	shutdownStart := time.Now()

	if err := s.HttpServer.Shutdown(serverShutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown error")
		if errors.Is(err, context.DeadlineExceeded) {
			log.Warn().Msg("Server shutdown deadline exceeded, forcing immediate shutdown")
		}
	} else {
		log.Info().Dur("duration_ms", time.Since(shutdownStart)).Msg("Server HTTP connections gracefully closed")
	}

	for _, c := range s.ethClients {
		c.Close()
	}

	if s.DBManager != nil {
		dbCloseStart := time.Now()
		if err := s.DBManager.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing database connection")
		} else {
			log.Info().Dur("duration_ms", time.Since(dbCloseStart)).Msg("Database connection closed successfully")
		}
	}

	log.Info().Msg("Shutdown complete")
}

type ServerBuilder struct {
	config      *config.Config
	clock       clock.Clock
	metrics     *metrics.Metrics
	dbManager   *db.DBManager
	repoFactory *db.RepositoryFactory
	journal     ports.LedgerJournal
	store       *memstate.Store

	token      ports.Token
	oracle     ports.PriceOracle
	vault      common.Address
	treasury   common.Address
	rewardPool common.Address
	ethClients []*ethclient.Client
	keystore   *keystore.Keystore

	core         *services.Core
	registry     *services.RegistryService
	ledger       *services.StakeLedger
	valuer       *services.StakeValuer
	classifier   *services.TierClassifier
	tracker      *services.ReputationTracker
	scorer       *services.AllocationScorer
	slashing     *services.SlashingEngine
	rewards      *services.RewardService
	decayService *services.ReputationDecayService

	httpServer *http.Server
	err        error
}

func NewServerBuilder(cfg *config.Config) *ServerBuilder {
	return &ServerBuilder{
		config: cfg,
		clock:  clock.RealClock{},
	}
}

// WithClock replaces the wall clock used for locks, unstake delays and
// reputation decay.
func (sb *ServerBuilder) WithClock(clk clock.Clock) *ServerBuilder {
	sb.clock = clk
	return sb
}

// WithToken and WithOracle override the collaborators InitWallet would
// construct from configuration.
func (sb *ServerBuilder) WithToken(token ports.Token, vault common.Address) *ServerBuilder {
	sb.token = token
	sb.vault = vault
	return sb
}

// WithKeystore sets the keystore the vault key is loaded from when
// ETHEREUM_VAULT_KEY is unset. It defaults to ~/.parity/keystore.json.
func (sb *ServerBuilder) WithKeystore(ks *keystore.Keystore) *ServerBuilder {
	sb.keystore = ks
	return sb
}

func (sb *ServerBuilder) WithOracle(oracle ports.PriceOracle) *ServerBuilder {
	sb.oracle = oracle
	return sb
}

func (sb *ServerBuilder) InitMetrics() *ServerBuilder {
	if sb.err != nil {
		return sb
	}
	sb.metrics = metrics.New()
	return sb
}

func (sb *ServerBuilder) InitDatabase() *ServerBuilder {
	if sb.err != nil {
		return sb
	}

	log := logger.Get()

	if !sb.config.Database.Enabled() {
		log.Warn().Msg("No database configured, ledger state will not survive restarts")
		return sb
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	sb.dbManager = db.GetDBManager()
	if err := sb.dbManager.Connect(ctx, sb.config.Database.GetConnectionURL()); err != nil {
		sb.err = fmt.Errorf("failed to connect to database: %w", err)
		return sb
	}

	log.Info().Msg("Successfully connected to database")
	return sb
}

func (sb *ServerBuilder) InitRepositories() *ServerBuilder {
	if sb.err != nil || sb.dbManager == nil {
		return sb
	}

	sb.repoFactory = db.NewRepositoryFactoryFromManager(sb.dbManager)
	sb.journal = sb.repoFactory.WorkerRepository()
	return sb
}

// InitState builds the in-memory ledger and replays the journal into it.
func (sb *ServerBuilder) InitState() *ServerBuilder {
	if sb.err != nil {
		return sb
	}

	log := logger.Get()

	store, err := memstate.New()
	if err != nil {
		sb.err = fmt.Errorf("failed to create state store: %w", err)
		return sb
	}
	sb.store = store

	if sb.journal == nil {
		return sb
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	workers, err := sb.journal.LoadWorkers(ctx)
	if err != nil {
		sb.err = fmt.Errorf("failed to load workers: %w", err)
		return sb
	}
	slashes, err := sb.journal.LoadSlashes(ctx)
	if err != nil {
		sb.err = fmt.Errorf("failed to load slash history: %w", err)
		return sb
	}
	if err := store.Load(workers, slashes); err != nil {
		sb.err = fmt.Errorf("failed to hydrate state: %w", err)
		return sb
	}

	log.Info().
		Int("workers", len(workers)).
		Int("slashes", len(slashes)).
		Str("total_staked", store.Snapshot().TotalStaked().Dec()).
		Msg("Ledger state restored")
	return sb
}

func (sb *ServerBuilder) vaultKey() (string, error) {
	if key := sb.config.Ethereum.VaultKey; key != "" {
		return key, nil
	}

	ks := sb.keystore
	if ks == nil {
		cfg, err := keystore.DefaultConfig()
		if err != nil {
			return "", err
		}
		if ks, err = keystore.NewKeystore(cfg); err != nil {
			return "", fmt.Errorf("failed to open keystore: %w", err)
		}
	}

	privateKey, err := ks.LoadPrivateKey()
	if err != nil {
		return "", fmt.Errorf("ETHEREUM_VAULT_KEY is unset and the keystore has no key: %w", err)
	}
	logger.Get().Info().Str("keystore", ks.Path()).Msg("Loaded vault key from keystore")
	return common.Bytes2Hex(crypto.FromECDSA(privateKey)), nil
}

func (sb *ServerBuilder) InitWallet() *ServerBuilder {
	if sb.err != nil {
		return sb
	}

	log := logger.Get()
	cfg := sb.config

	var rpc *ethclient.Client
	if sb.token == nil {
		switch cfg.Staking.TokenMode {
		case config.TokenModeEthereum:
			vaultKey, err := sb.vaultKey()
			if err != nil {
				sb.err = err
				return sb
			}
			client, err := wallet.NewClient(cfg.Ethereum.RPC, cfg.Ethereum.ChainID, vaultKey)
			if err != nil {
				sb.err = fmt.Errorf("failed to create wallet client: %w", err)
				return sb
			}
			sb.ethClients = append(sb.ethClients, client.Client)
			rpc = client.Client

			token, err := wallet.NewERC20Token(client, common.HexToAddress(cfg.Ethereum.TokenAddress))
			if err != nil {
				sb.err = fmt.Errorf("failed to bind token contract: %w", err)
				return sb
			}
			sb.token = token
			sb.vault = token.Vault()
		default:
			genesis, err := wallet.ParseGenesis(cfg.Staking.Genesis)
			if err != nil {
				sb.err = fmt.Errorf("failed to parse STAKING_GENESIS: %w", err)
				return sb
			}
			sb.token = wallet.NewMemoryToken(genesis)
			sb.vault = DefaultMemoryVault
			if cfg.Staking.VaultAddress != "" {
				sb.vault = common.HexToAddress(cfg.Staking.VaultAddress)
			}
		}
	}

	sb.treasury = sb.vault
	if cfg.Ethereum.TreasuryAddress != "" {
		sb.treasury = common.HexToAddress(cfg.Ethereum.TreasuryAddress)
	}
	sb.rewardPool = sb.vault
	if cfg.Ethereum.RewardPoolAddress != "" {
		sb.rewardPool = common.HexToAddress(cfg.Ethereum.RewardPoolAddress)
	}

	if sb.oracle == nil {
		if err := sb.initOracle(rpc); err != nil {
			sb.err = err
			return sb
		}
	}

	log.Info().
		Str("token_mode", cfg.Staking.TokenMode).
		Str("vault", sb.vault.Hex()).
		Str("treasury", sb.treasury.Hex()).
		Str("reward_pool", sb.rewardPool.Hex()).
		Msg("Token collaborators ready")
	return sb
}

func (sb *ServerBuilder) initOracle(rpc *ethclient.Client) error {
	cfg := sb.config
	if cfg.Ethereum.OracleAddress == "" {
		oracle, err := wallet.NewStaticOracle(cfg.Staking.StaticPrice)
		if err != nil {
			return fmt.Errorf("failed to parse STAKING_STATIC_PRICE: %w", err)
		}
		sb.oracle = oracle
		return nil
	}

	if rpc == nil {
		if cfg.Ethereum.RPC == "" {
			return fmt.Errorf("ETHEREUM_ORACLE_ADDRESS requires ETHEREUM_RPC")
		}
		client, err := ethclient.Dial(cfg.Ethereum.RPC)
		if err != nil {
			return fmt.Errorf("failed to connect to %s: %w", cfg.Ethereum.RPC, err)
		}
		sb.ethClients = append(sb.ethClients, client)
		rpc = client
	}

	maxAge, err := cfg.Ethereum.OracleMaxAgeDuration()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	oracle, err := wallet.NewAggregatorOracle(ctx, rpc, cfg.Staking.Asset, common.HexToAddress(cfg.Ethereum.OracleAddress), maxAge)
	if err != nil {
		return fmt.Errorf("failed to bind price feed: %w", err)
	}
	sb.oracle = oracle
	return nil
}

func (sb *ServerBuilder) InitServices() *ServerBuilder {
	if sb.err != nil {
		return sb
	}

	log := logger.Get()
	cfg := sb.config

	access, err := services.NewStaticAccessControl(cfg.Roles)
	if err != nil {
		sb.err = fmt.Errorf("failed to load roles: %w", err)
		return sb
	}
	delay, err := cfg.Staking.UnstakeDelayDuration()
	if err != nil {
		sb.err = err
		return sb
	}

	ladder := models.DefaultTierLadder()
	if err := ladder.Validate(); err != nil {
		sb.err = fmt.Errorf("invalid tier ladder: %w", err)
		return sb
	}

	var archive ports.AuditArchive
	if cfg.AWS.BucketName != "" {
		s3Archive, err := services.NewS3AuditArchive(context.Background(), cfg.AWS)
		if err != nil {
			sb.err = fmt.Errorf("failed to initialize S3 audit archive: %w", err)
			return sb
		}
		archive = s3Archive
	} else {
		log.Info().Msg("No AWS bucket configured, slash records will not be archived")
	}

	sb.core = services.NewCore(sb.store, sb.journal, access, sb.clock, sb.metrics)
	sb.valuer = services.NewStakeValuer(sb.oracle, cfg.Staking.Asset, sb.metrics)
	sb.registry = services.NewRegistryService(sb.core)
	sb.ledger = services.NewStakeLedger(sb.core, sb.token, sb.valuer, ladder, services.LedgerConfig{
		Vault:        sb.vault,
		Treasury:     sb.treasury,
		Asset:        cfg.Staking.Asset,
		UnstakeDelay: delay,
	})
	sb.classifier = services.NewTierClassifier(sb.core, sb.valuer, ladder)
	sb.tracker = services.NewReputationTracker(sb.core, sb.classifier)
	sb.scorer = services.NewAllocationScorer(sb.core, sb.classifier, sb.valuer)
	sb.slashing = services.NewSlashingEngine(sb.core, sb.token, sb.valuer, ladder, archive, services.SlashingConfig{
		Vault:         sb.vault,
		Treasury:      sb.treasury,
		MaxSlashCount: uint8(cfg.Staking.MaxSlashCount),
	})
	sb.rewards = services.NewRewardService(sb.core, sb.token, sb.classifier, sb.valuer, sb.rewardPool)

	sb.metrics.SetTotalStaked(sb.store.Snapshot().TotalStaked())
	return sb
}

func (sb *ServerBuilder) InitDecayService() *ServerBuilder {
	if sb.err != nil {
		return sb
	}

	interval, err := sb.config.Scheduler.DecayIntervalDuration()
	if err != nil {
		sb.err = err
		return sb
	}
	sb.decayService = services.NewReputationDecayService(sb.tracker, interval)
	if err := sb.decayService.Start(); err != nil {
		sb.err = fmt.Errorf("failed to start reputation decay service: %w", err)
		return sb
	}
	return sb
}

// Handlers exposes the HTTP handlers once InitServices has run.
func (sb *ServerBuilder) Handlers() v1.Handlers {
	return v1.Handlers{
		Worker:     handlers.NewWorkerHandler(sb.registry, sb.valuer),
		Stake:      handlers.NewStakeHandler(sb.ledger),
		Tier:       handlers.NewTierHandler(sb.classifier),
		Slash:      handlers.NewSlashHandler(sb.slashing),
		Allocation: handlers.NewAllocationHandler(sb.scorer),
		Job:        handlers.NewJobHandler(sb.tracker, sb.rewards),
	}
}

func (sb *ServerBuilder) InitRouter() *ServerBuilder {
	if sb.err != nil {
		return sb
	}

	var registry *prometheus.Registry
	if sb.metrics != nil {
		registry = sb.metrics.Registry
	}
	router := api.NewRouter(sb.Handlers(), sb.config.Server.Endpoint, sb.config.Auth.JWTSecret, registry)

	if err := utils.VerifyPortAvailable(sb.config.Server.Host, sb.config.Server.Port); err != nil {
		sb.err = fmt.Errorf("server port is not available: %w", err)
		return sb
	}

	sb.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%s", sb.config.Server.Host, sb.config.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return sb
}

func (sb *ServerBuilder) Build() (*Server, error) {
	if sb.err != nil {
		for _, c := range sb.ethClients {
			c.Close()
		}
		if sb.decayService != nil {
			sb.decayService.Stop()
		}
		return nil, sb.err
	}

	return &Server{
		Config:       sb.config,
		HttpServer:   sb.httpServer,
		DBManager:    sb.dbManager,
		DecayService: sb.decayService,
		Metrics:      sb.metrics,
		ethClients:   sb.ethClients,
	}, nil
}
