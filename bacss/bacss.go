// package bacss keeps BACI debugging sessions in a sqlite database.
package bacss

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/hashicorp/golang-lru/v2/simplelru"
	"github.com/jmoiron/sqlx"
	"go.brendoncarroll.net/stdctx/logctx"
	"go.brendoncarroll.net/tai64"
	"go.uber.org/zap"

	"nsbaci.org/nsbaci"
	"nsbaci.org/nsbaci/bacimg"
	"nsbaci.org/nsbaci/bacrt"
	"nsbaci.org/nsbaci/bacss/internal/dbutil"
	"nsbaci.org/nsbaci/bacss/internal/sqlstores"
)

type SessionID int64

// ErrSessionNotFound is returned for a session id with no row in the database.
type ErrSessionNotFound struct {
	SessionID
}

func (e ErrSessionNotFound) Error() string {
	return fmt.Sprintf("session %d not found", e.SessionID)
}

// ErrSessionClosed is returned by a Session which has been dropped from its System.
// Callers holding the Session should discard it.
type ErrSessionClosed struct {
	SessionID
}

func (e ErrSessionClosed) Error() string {
	return fmt.Sprintf("session %d was dropped", e.SessionID)
}

const imageCacheSize = 64

// A System is a single database.
// Systems contain sessions.
type System struct {
	db  *sqlx.DB
	cfg bacrt.Config

	mu       sync.Mutex
	sessions map[SessionID]*Session
	images   *simplelru.LRU[nsbaci.Fingerprint, *bacimg.Image]
}

// NewSystem returns a System using db, which must have been set up with SetupDB.
// New sessions run with cfg.
func NewSystem(db *sqlx.DB, cfg bacrt.Config) *System {
	images, err := simplelru.NewLRU[nsbaci.Fingerprint, *bacimg.Image](imageCacheSize, nil)
	if err != nil {
		panic(err)
	}
	return &System{
		db:       db,
		cfg:      cfg,
		sessions: make(map[SessionID]*Session),
		images:   images,
	}
}

// Create stores img and starts a new session running it.
func (s *System) Create(ctx context.Context, img *bacimg.Image) (*Session, error) {
	if err := img.Check(); err != nil {
		return nil, err
	}
	if err := s.cfg.Validate(); err != nil {
		return nil, err
	}
	data, err := bacimg.Encode(img)
	if err != nil {
		return nil, err
	}
	cfgData, err := json.Marshal(s.cfg)
	if err != nil {
		return nil, err
	}
	now := tai64.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	var fp nsbaci.Fingerprint
	sid, err := dbutil.DoTx1(ctx, s.db, func(tx *sqlx.Tx) (SessionID, error) {
		var err error
		if fp, err = sqlstores.Post(tx, data); err != nil {
			return 0, err
		}
		var sid SessionID
		if err := tx.GetContext(ctx, &sid, `INSERT INTO sessions (image_id, config, created_at) VALUES (?, ?, ?) RETURNING id`,
			fp[:], string(cfgData), int64(now.Seconds)); err != nil {
			return 0, err
		}
		return sid, nil
	})
	if err != nil {
		return nil, err
	}
	s.images.Add(fp, img)
	sess := newSession(ctx, s.db, sid, fp, img, s.cfg)
	s.sessions[sid] = sess
	logctx.Info(ctx, "session created", zap.Int64("session", int64(sid)), zap.Stringer("image", fp))
	return sess, nil
}

// Get returns the session with id sid, or ErrSessionNotFound.
func (s *System) Get(ctx context.Context, sid SessionID) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.get(ctx, sid)
}

// get opens the session from the database if it is not already open.
// it does not take a lock.
func (s *System) get(ctx context.Context, sid SessionID) (*Session, error) {
	if sess, exists := s.sessions[sid]; exists {
		return sess, nil
	}
	var row struct {
		ImageID nsbaci.Fingerprint `db:"image_id"`
		Config  string             `db:"config"`
	}
	if err := s.db.GetContext(ctx, &row, `SELECT image_id, config FROM sessions WHERE id = ?`, sid); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = ErrSessionNotFound{sid}
		}
		return nil, err
	}
	var cfg bacrt.Config
	if err := json.Unmarshal([]byte(row.Config), &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	img, err := s.loadImage(ctx, row.ImageID)
	if err != nil {
		return nil, err
	}
	sess := newSession(ctx, s.db, sid, row.ImageID, img, cfg)
	s.sessions[sid] = sess
	return sess, nil
}

func (s *System) loadImage(ctx context.Context, fp nsbaci.Fingerprint) (*bacimg.Image, error) {
	if img, exists := s.images.Get(fp); exists {
		return img, nil
	}
	data, err := dbutil.DoTx1(ctx, s.db, func(tx *sqlx.Tx) ([]byte, error) {
		return sqlstores.Get(tx, fp)
	})
	if err != nil {
		return nil, err
	}
	img, err := bacimg.Decode(data)
	if err != nil {
		return nil, err
	}
	s.images.Add(fp, img)
	return img, nil
}

// List returns every session, ordered by id.
func (s *System) List(ctx context.Context) (ret []*Session, _ error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []SessionID
	if err := s.db.SelectContext(ctx, &ids, `SELECT id FROM sessions ORDER BY id`); err != nil {
		return nil, err
	}
	for _, sid := range ids {
		sess, err := s.get(ctx, sid)
		if err != nil {
			return nil, err
		}
		ret = append(ret, sess)
	}
	return ret, nil
}

// Drop deletes a session and its history.
// Images no longer used by any session are deleted as well.
func (s *System) Drop(ctx context.Context, sid SessionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := dbutil.DoTx(ctx, s.db, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE session_id = ?`, sid); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, sid)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			return ErrSessionNotFound{sid}
		}
		_, err = sqlstores.DropUnreferenced(tx, "sessions", "image_id")
		return err
	}); err != nil {
		return err
	}
	if sess, exists := s.sessions[sid]; exists {
		sess.close()
		delete(s.sessions, sid)
	}
	logctx.Info(ctx, "session dropped", zap.Int64("session", int64(sid)))
	return nil
}

// RunInfo is a finished execution of a session's program.
type RunInfo struct {
	ID      int64              `db:"id" json:"id"`
	Session SessionID          `db:"session_id" json:"session"`
	Image   nsbaci.Fingerprint `db:"image_id" json:"image"`
	Steps   int                `db:"steps" json:"steps"`
	Halted  bool               `db:"halted" json:"halted"`
	Fault   string             `db:"fault" json:"fault,omitempty"`
	Output  string             `db:"output" json:"output"`
	// FinishedAt is TAI64 seconds
	FinishedAt int64 `db:"finished_at" json:"finished_at"`
}

// History lists the finished runs of a session, oldest first.
func (s *System) History(ctx context.Context, sid SessionID) ([]RunInfo, error) {
	return dbutil.DoTx1(ctx, s.db, func(tx *sqlx.Tx) ([]RunInfo, error) {
		var exists bool
		if err := tx.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM sessions WHERE id = ?)`, sid); err != nil {
			return nil, err
		}
		if !exists {
			return nil, ErrSessionNotFound{sid}
		}
		var ret []RunInfo
		if err := tx.SelectContext(ctx, &ret, `SELECT id, session_id, image_id, steps, halted, fault, output, finished_at
			FROM runs WHERE session_id = ? ORDER BY id`, sid); err != nil {
			return nil, err
		}
		return ret, nil
	})
}
