package repository

import (
	"context"

	"github.com/jackc/pgx/v4"
)

// Tx is an opaque transaction handle threaded through repository calls.
// The concrete type is infra-defined (pgx.Tx for Postgres). Repositories
// accept a nil handle for the non-transactional path.
type Tx interface{}

// NoTX marks an explicitly non-transactional call at call sites.
var NoTX Tx

// TransactionManager executes fn inside one database transaction, passing the
// underlying handle via tx. It keeps transaction types out of the use-case
// interfaces while letting repository implementations run
// SELECT ... FOR UPDATE and conditional updates against the tx-bound
// connection. If fn returns an error the transaction is rolled back.
type TransactionManager interface {
	WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx Tx) error) error
}
