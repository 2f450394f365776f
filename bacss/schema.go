package bacss

import (
	"context"

	"github.com/jmoiron/sqlx"

	"nsbaci.org/nsbaci/bacss/internal/dbutil"
	"nsbaci.org/nsbaci/bacss/internal/migrations"
	"nsbaci.org/nsbaci/bacss/internal/sqlstores"
)

func OpenDB(p string) (*sqlx.DB, error) {
	return dbutil.Open(p)
}

func SetupDB(ctx context.Context, db *sqlx.DB) error {
	return migrations.Migrate(ctx, db, currentSchema)
}

var currentSchema = func() *migrations.State {
	x := migrations.InitialState()
	x = sqlstores.Migration(x)
	x = x.ApplyStmt(`CREATE TABLE sessions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		image_id BLOB NOT NULL,
		config TEXT NOT NULL,
		created_at INTEGER NOT NULL,

		FOREIGN KEY(image_id) REFERENCES blobs(id)
	)`)
	x = x.ApplyStmt(`CREATE TABLE runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id INTEGER NOT NULL,
		image_id BLOB NOT NULL,
		steps INTEGER NOT NULL,
		halted INTEGER NOT NULL,
		fault TEXT NOT NULL DEFAULT '',
		output TEXT NOT NULL,
		finished_at INTEGER NOT NULL,

		FOREIGN KEY(session_id) REFERENCES sessions(id) ON DELETE CASCADE
	)`)
	x = x.ApplyStmt(`CREATE INDEX runs_session ON runs(session_id)`)
	return x
}()
