// package migrations applies an ordered list of schema statements.
// The number of statements applied so far is kept in PRAGMA user_version.
package migrations

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"go.brendoncarroll.net/stdctx/logctx"
	"go.uber.org/zap"

	"nsbaci.org/nsbaci/bacss/internal/dbutil"
)

// State is a schema, described by the statements which produce it.
// States are immutable.
type State struct {
	stmts []string
}

func InitialState() *State {
	return &State{}
}

// ApplyStmt returns a new State with stmt applied after x.
func (x *State) ApplyStmt(stmt string) *State {
	stmts := make([]string, len(x.stmts), len(x.stmts)+1)
	copy(stmts, x.stmts)
	return &State{stmts: append(stmts, stmt)}
}

// Version is the number of statements in the state.
func (x *State) Version() int {
	return len(x.stmts)
}

// Migrate brings db up to the target state.
// It fails if db has applied more statements than target contains.
func Migrate(ctx context.Context, db *sqlx.DB, target *State) error {
	return dbutil.DoTx(ctx, db, func(tx *sqlx.Tx) error {
		var have int
		if err := tx.GetContext(ctx, &have, `PRAGMA user_version`); err != nil {
			return err
		}
		if have > target.Version() {
			return fmt.Errorf("database schema version %d is newer than %d", have, target.Version())
		}
		for _, stmt := range target.stmts[have:] {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("migration %d: %w", have, err)
			}
			have++
		}
		// pragmas do not accept parameters
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(`PRAGMA user_version = %d`, have)); err != nil {
			return err
		}
		logctx.Debug(ctx, "schema migrated", zap.Int("version", have))
		return nil
	})
}
