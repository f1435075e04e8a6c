// Package repository is the narrow persistence interface the controller
// consults: load session, mark started, mark finished, persist results,
// create a successor session, check a session's password.
package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/lab1702/typingserver/models"
)

var (
	// ErrNotFound is returned when a session or player id has no matching row.
	ErrNotFound = errors.New("repository: not found")
	// ErrIntegrity is returned for operations that violate a repository
	// invariant, such as persisting results before the session is finished.
	ErrIntegrity = errors.New("repository: integrity violation")
)

// Repository is the persistent entity store the game controller is built
// against. Every method it needs is represented here; nothing broader.
type Repository interface {
	LoadSession(ctx context.Context, id uuid.UUID) (*models.Session, error)
	MarkSessionStarted(ctx context.Context, id uuid.UUID) error
	MarkSessionFinished(ctx context.Context, id uuid.UUID) error
	PersistResults(ctx context.Context, results []models.SessionPlayerResult) error
	CreateSuccessorSession(ctx context.Context, previous *models.Session, newMode models.GameMode) (*models.Session, error)
	CheckPassword(ctx context.Context, sessionID uuid.UUID, password string) (bool, error)

	// UpdateSessionPlayersNow mirrors the in-memory players_now change onto
	// the persisted session row, so REST listing reflects live occupancy.
	UpdateSessionPlayersNow(ctx context.Context, id uuid.UUID, count int) error

	LoadPlayer(ctx context.Context, id uuid.UUID) (*models.Player, error)
}
