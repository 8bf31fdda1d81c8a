package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/partsledger/partsledger/internal/balance"
	"github.com/partsledger/partsledger/internal/inventory"
	"github.com/partsledger/partsledger/internal/payments"
	"github.com/partsledger/partsledger/internal/platform/cache"
	"github.com/partsledger/partsledger/internal/platform/db"
	"github.com/partsledger/partsledger/internal/platform/memstore"
	"github.com/partsledger/partsledger/internal/sales"
	"github.com/partsledger/partsledger/internal/shared"
)

// Services is the wired ledger.
type Services struct {
	Inventory   *inventory.Service
	Sales       *sales.Service
	Payments    *payments.Service
	Balances    *balance.Service
	Idempotency shared.IdempotencyPort
	Redis       *redis.Client

	closers []func()
}

// Close releases pools and clients in reverse order of creation.
func (s *Services) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// RedisOptions returns the Redis address shared by cache and queue.
func (c *Config) RedisOptions() cache.Options {
	return cache.Options{Addr: c.RedisAddr, DB: c.RedisDB}
}

// TxConfig returns the retry policy for ledger transactions.
func (c *Config) TxConfig() db.TxConfig {
	return db.TxConfig{MaxAttempts: c.TxMaxAttempts, BaseDelay: c.TxRetryBaseDelay, LockTimeout: c.TxLockTimeout}
}

type storeParts struct {
	inventory inventory.RepositoryPort
	sales     sales.RepositoryPort
	payments  payments.RepositoryPort
	balances  balance.Source
	audit     shared.AuditPort
	idem      shared.IdempotencyPort
}

// BuildServices connects the configured store and Redis and wires every
// ledger service. metrics may be nil. A Redis outage leaves the balance
// cache disabled instead of failing startup.
func BuildServices(ctx context.Context, cfg *Config, logger *slog.Logger, metrics shared.OperationRecorder) (*Services, error) {
	svc := &Services{}

	var parts storeParts
	switch cfg.StoreDriver {
	case DriverMemory:
		store, err := openMemstore(cfg.MemstoreSeedFile)
		if err != nil {
			return nil, err
		}
		parts = storeParts{
			inventory: store.Inventory(),
			sales:     store.Sales(),
			payments:  store.Payments(),
			balances:  store.Balances(),
			audit:     store,
			idem:      store,
		}
		logger.Info("using in-memory store", slog.String("seed", cfg.MemstoreSeedFile))
	default:
		pool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{MaxConns: cfg.PGMaxConns, ApplicationName: "partsledger"})
		if err != nil {
			return nil, err
		}
		svc.closers = append(svc.closers, pool.Close)
		parts = postgresParts(pool, cfg.TxConfig())
	}

	var balanceCache *balance.Cache
	if cfg.RedisAddr != "" {
		client, err := cache.New(ctx, cfg.RedisOptions())
		if err != nil {
			logger.Warn("balance cache disabled", slog.Any("error", err))
		} else {
			svc.Redis = client
			svc.closers = append(svc.closers, func() {
				if err := client.Close(); err != nil {
					logger.Warn("redis close", slog.Any("error", err))
				}
			})
			balanceCache = balance.NewCache(client, cfg.BalanceCacheTTL)
		}
	}

	svc.Balances = balance.NewService(parts.balances, balanceCache, logger)
	hooks := shared.Hooks{
		Logger:      logger,
		Audit:       parts.audit,
		Idempotency: parts.idem,
		Balances:    svc.Balances,
		Metrics:     metrics,
	}
	stockLedger := inventory.NewLedger(cfg.AllowNegativeStock)
	payLedger := payments.NewLedger(payments.Policy{
		Modes:            payments.ParseModes(cfg.PaymentModes),
		AllowOverpayment: cfg.AllowOverpayment,
	})
	svc.Inventory = inventory.NewService(parts.inventory, stockLedger, hooks)
	svc.Payments = payments.NewService(parts.payments, payLedger, hooks)
	svc.Sales = sales.NewService(parts.sales, stockLedger, payLedger, hooks)
	svc.Idempotency = parts.idem
	return svc, nil
}

func postgresParts(pool *pgxpool.Pool, txCfg db.TxConfig) storeParts {
	return storeParts{
		inventory: inventory.NewRepository(pool, txCfg),
		sales:     sales.NewRepository(pool, txCfg),
		payments:  payments.NewRepository(pool, txCfg),
		balances:  balance.NewRepository(pool),
		audit:     shared.NewAuditLogger(pool),
		idem:      shared.NewIdempotencyStore(pool),
	}
}

func openMemstore(seedFile string) (*memstore.Store, error) {
	store := memstore.New()
	if seedFile == "" {
		return store, nil
	}
	f, err := os.Open(seedFile)
	if err != nil {
		return nil, fmt.Errorf("app: open seed: %w", err)
	}
	defer f.Close()
	seed, err := memstore.LoadSeed(f)
	if err != nil {
		return nil, err
	}
	if err := store.Apply(seed); err != nil {
		return nil, fmt.Errorf("app: apply seed %s: %w", seedFile, err)
	}
	return store, nil
}
