// Copyright (C) 2025 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package configdb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jellydator/ttlcache/v3"
)

// DBTX is the subset of pgx shared by the pool and a transaction.
type DBTX interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	SendBatch(context.Context, *pgx.Batch) pgx.BatchResults
}

// Store provides all functions to execute db queries and transactions
type Store struct {
	db            DBTX
	connPool      *pgxpool.Pool
	adminKeyCache *ttlcache.Cache[string, TenantAdminKeyCacheValue]
}

// DefaultScanPageSize is the number of rows read per round trip when
// scanning tenant configuration.
const DefaultScanPageSize = 1000

// NewStore creates a new Store
func NewStore(connPool *pgxpool.Pool) *Store {
	store := &Store{
		db:       connPool,
		connPool: connPool,
		adminKeyCache: ttlcache.New(
			ttlcache.WithTTL[string, TenantAdminKeyCacheValue](5 * time.Minute),
		),
	}
	go store.adminKeyCache.Start()
	return store
}

// Pool returns the underlying connection pool.
func (store *Store) Pool() *pgxpool.Pool {
	return store.connPool
}

// Close stops the cache goroutine. The pool is owned by the caller.
func (store *Store) Close() {
	store.adminKeyCache.Stop()
}

func (store *Store) execTx(ctx context.Context, fn func(*Store) error) (err error) {
	tx, err := store.connPool.Begin(ctx)
	if err != nil {
		return err
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		// Never use the caller ctx for cleanup as it may be cancelled.
		rbCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if rbErr := tx.Rollback(rbCtx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			if err != nil {
				err = errors.Join(err, fmt.Errorf("rollback failed: %w", rbErr))
			} else {
				err = fmt.Errorf("rollback failed: %w", rbErr)
			}
		}
	}()

	txStore := &Store{
		db:            tx,
		connPool:      store.connPool,
		adminKeyCache: store.adminKeyCache,
	}
	if err = fn(txStore); err != nil {
		return err
	}

	if err = tx.Commit(ctx); err != nil {
		return err
	}
	committed = true
	return nil
}
