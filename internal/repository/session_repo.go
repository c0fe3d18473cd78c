package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gleadbet/nest/internal/session"
)

type SessionSQLite struct {
	db     *sql.DB
	sealer *session.Sealer
}

func NewSessionSQLite(db *sql.DB, sealer *session.Sealer) *SessionSQLite {
	return &SessionSQLite{db: db, sealer: sealer}
}

const (
	insertSessionSQL = `
		INSERT INTO sessions (id, created_at, credential, device_names, auth_error)
		VALUES (?, ?, ?, ?, ?)
	`

	selectSessionSQL = `
		SELECT id, created_at, credential, device_names, auth_error
		FROM sessions WHERE id=?
	`

	updateSessionSQL = `
		UPDATE sessions SET credential=?, device_names=?, auth_error=? WHERE id=?
	`

	deleteSessionSQL = `DELETE FROM sessions WHERE id=?`
)

func (r *SessionSQLite) Create(ctx context.Context, s *session.Session) error {
	blob, names, err := r.encode(s)
	if err != nil {
		return err
	}
	createdAt := s.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	if _, err := r.db.ExecContext(ctx, insertSessionSQL, s.ID, createdAt.UTC(), blob, names, s.AuthError); err != nil {
		return fmt.Errorf("insert session %s: %w", s.ID, err)
	}
	return nil
}

func (r *SessionSQLite) Get(ctx context.Context, id string) (*session.Session, error) {
	var (
		s         session.Session
		createdAt time.Time
		blob      []byte
		names     string
	)
	row := r.db.QueryRowContext(ctx, selectSessionSQL, id)
	if err := row.Scan(&s.ID, &createdAt, &blob, &names, &s.AuthError); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("select session %s: %w", id, err)
	}
	s.CreatedAt = createdAt.UTC()

	if len(blob) > 0 {
		cred, err := r.sealer.Open(blob)
		if err != nil {
			return nil, fmt.Errorf("unseal credential for session %s: %w", id, err)
		}
		s.Credential = cred
	}
	if names != "" {
		if err := json.Unmarshal([]byte(names), &s.DeviceNames); err != nil {
			return nil, fmt.Errorf("decode device names for session %s: %w", id, err)
		}
	}
	return &s, nil
}

func (r *SessionSQLite) Update(ctx context.Context, s *session.Session) error {
	blob, names, err := r.encode(s)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, updateSessionSQL, blob, names, s.AuthError, s.ID)
	if err != nil {
		return fmt.Errorf("update session %s: %w", s.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

func (r *SessionSQLite) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, deleteSessionSQL, id); err != nil {
		return fmt.Errorf("delete session %s: %w", id, err)
	}
	return nil
}

// encode seals the credential and marshals the name overrides.
func (r *SessionSQLite) encode(s *session.Session) ([]byte, string, error) {
	var blob []byte
	if s.Credential != nil {
		var err error
		blob, err = r.sealer.Seal(s.Credential)
		if err != nil {
			return nil, "", fmt.Errorf("seal credential for session %s: %w", s.ID, err)
		}
	}
	names := s.DeviceNames
	if names == nil {
		names = map[string]string{}
	}
	encoded, err := json.Marshal(names)
	if err != nil {
		return nil, "", fmt.Errorf("encode device names for session %s: %w", s.ID, err)
	}
	return blob, string(encoded), nil
}
