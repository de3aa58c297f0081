// Package database manages the gateway's GORM connection pool: sizing,
// background health checks, and retrying transactions.
//
// PoolManager wraps a *gorm.DB and its underlying *sql.DB, applying
// MaxIdleConns/MaxOpenConns/ConnMaxLifetime/ConnMaxIdleTime from PoolConfig
// and, when HealthCheckInterval is set, running a background ping loop that
// logs failures through zap.
//
// WithTransaction runs a TransactionFunc inside a single GORM transaction.
// WithTransactionRetry wraps that with exponential backoff, retrying only
// the errors isRetryableError recognizes as transient (deadlocks,
// serialization failures, dropped connections, lock timeouts) — this is
// what backs the quota accountant's usage updates and login-code
// redemption, so a dropped connection mid-update doesn't surface as a
// client-facing 500.
package database
