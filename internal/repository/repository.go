package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	nest "github.com/gleadbet/nest"
	"github.com/gleadbet/nest/internal/repository/db"
	"github.com/gleadbet/nest/internal/session"
)

var ErrSessionNotFound = errors.New("session not found")

// Sessions persists server-side sessions; credentials are sealed before
// they reach the database.
type Sessions interface {
	Create(ctx context.Context, s *session.Session) error
	Get(ctx context.Context, id string) (*session.Session, error)
	Update(ctx context.Context, s *session.Session) error
	Delete(ctx context.Context, id string) error
}

// Readings stores temperature-history samples.
type Readings interface {
	Append(ctx context.Context, r nest.Reading) error
	ListRange(ctx context.Context, deviceID string, from, to time.Time) ([]nest.Reading, error)
}

type Repository struct {
	Sessions Sessions
	Readings Readings
}

func NewRepository(database *sql.DB, sealer *session.Sealer) *Repository {
	return &Repository{
		Sessions: NewSessionSQLite(database, sealer),
		Readings: NewReadingSQLite(database),
	}
}

// InitDB re-exports the sqlite bootstrap so main wires one package.
func InitDB(path string) (*sql.DB, error) {
	return db.InitDB(path)
}
