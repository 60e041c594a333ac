package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"hirepipe/pkg/metrics"
)

const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeUniqueViolation      = "23505"
)

// ErrRetriesExhausted 可重试的冲突在多次重试后仍然失败
var ErrRetriesExhausted = errors.New("transaction retries exhausted")

// TxFunc 在事务中执行的函数
type TxFunc func(ctx context.Context, tx pgx.Tx) error

// TxRunner 负责开启事务、提交/回滚以及死锁/serialization failure 重试
type TxRunner struct {
	pool       *pgxpool.Pool
	logger     *zap.Logger
	maxRetries int
	backoff    time.Duration
}

// NewTxRunner 创建 TxRunner；maxRetries <= 0 时默认 5 次
func NewTxRunner(pool *pgxpool.Pool, logger *zap.Logger, maxRetries int) *TxRunner {
	if maxRetries <= 0 {
		maxRetries = 5
	}
	return &TxRunner{
		pool:       pool,
		logger:     logger,
		maxRetries: maxRetries,
		backoff:    20 * time.Millisecond,
	}
}

// ReadCommitted 在 READ COMMITTED 读写事务中执行 fn，遇到 40001/40P01 时整体重试。
// 每条语句读取的是最新已提交数据，调用方先加锁再读即可得到加锁后的状态
func (r *TxRunner) ReadCommitted(ctx context.Context, operation string, fn TxFunc) error {
	opts := pgx.TxOptions{IsoLevel: pgx.ReadCommitted, AccessMode: pgx.ReadWrite}

	var lastErr error
	for attempt := 1; attempt <= r.maxRetries; attempt++ {
		err := r.run(ctx, opts, fn)
		if err == nil {
			return nil
		}
		if !IsRetryable(err) {
			return err
		}
		lastErr = err
		metrics.IncrementTxRetry(operation)
		r.logger.Debug("Retrying transaction",
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * r.backoff):
		}
	}

	r.logger.Warn("Transaction retries exhausted",
		zap.String("operation", operation),
		zap.Int("max_retries", r.maxRetries),
		zap.Error(lastErr),
	)
	return fmt.Errorf("%s: %w: %v", operation, ErrRetriesExhausted, lastErr)
}

// ReadSnapshot 在 REPEATABLE READ 只读事务中执行 fn，保证多次查询看到同一快照
func (r *TxRunner) ReadSnapshot(ctx context.Context, fn TxFunc) error {
	return r.run(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}, fn)
}

func (r *TxRunner) run(ctx context.Context, opts pgx.TxOptions, fn TxFunc) error {
	tx, err := r.pool.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	// Commit 之后 Rollback 是 no-op
	defer func() { _ = tx.Rollback(context.Background()) }()

	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit tx: %w", err)
	}
	return nil
}

// IsRetryable 判断错误是否为可重试的并发冲突
func IsRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == codeSerializationFailure || pgErr.Code == codeDeadlockDetected
	}
	return false
}

// IsUniqueViolation 判断错误是否为唯一约束冲突，constraint 为空时匹配任意约束
func IsUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != codeUniqueViolation {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}
