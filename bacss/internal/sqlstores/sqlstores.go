// package sqlstores keeps content addressed blobs in sqlite.
package sqlstores

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"nsbaci.org/nsbaci"
	"nsbaci.org/nsbaci/bacss/internal/migrations"
)

// MaxBlobSize is the largest blob Post accepts.
const MaxBlobSize = 64 << 20

var ErrTooLarge = fmt.Errorf("blob exceeds max size %d", MaxBlobSize)

type ErrNotFound struct {
	Key nsbaci.Fingerprint
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("blob %v not found", e.Key)
}

func Migration(x *migrations.State) *migrations.State {
	return x.ApplyStmt(`CREATE TABLE blobs (
		id BLOB NOT NULL,
		data BLOB NOT NULL,

		PRIMARY KEY(id)
	) WITHOUT ROWID, STRICT;`)
}

// Post stores data and returns its fingerprint.
// Posting the same data twice stores it once.
func Post(tx *sqlx.Tx, data []byte) (nsbaci.Fingerprint, error) {
	if len(data) > MaxBlobSize {
		return nsbaci.Fingerprint{}, ErrTooLarge
	}
	id := nsbaci.Hash(data)
	if _, err := tx.Exec(`INSERT INTO blobs (id, data)
		VALUES (?, ?) ON CONFLICT DO NOTHING`, id[:], data); err != nil {
		return nsbaci.Fingerprint{}, err
	}
	return id, nil
}

func Get(tx *sqlx.Tx, id nsbaci.Fingerprint) ([]byte, error) {
	var data []byte
	if err := tx.Get(&data, `SELECT data FROM blobs WHERE id = ?`, id[:]); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = ErrNotFound{Key: id}
		}
		return nil, err
	}
	return data, nil
}

func Exists(tx *sqlx.Tx, id nsbaci.Fingerprint) (bool, error) {
	var exists bool
	if err := tx.Get(&exists, `SELECT EXISTS(
		SELECT 1 FROM blobs WHERE id = ?
	)`, id[:]); err != nil {
		return false, err
	}
	return exists, nil
}

// DropUnreferenced deletes every blob whose id is not in the column col of table.
func DropUnreferenced(tx *sqlx.Tx, table, col string) (int64, error) {
	res, err := tx.Exec(fmt.Sprintf(`DELETE FROM blobs WHERE id NOT IN (
		SELECT %s FROM %s
	)`, col, table))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// CountBlobs counts every blob
func CountBlobs(tx *sqlx.Tx) (int64, error) {
	var ret int64
	err := tx.Get(&ret, `SELECT count(*) FROM blobs`)
	return ret, err
}
