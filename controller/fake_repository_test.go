package controller

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/lab1702/typingserver/models"
	"github.com/lab1702/typingserver/repository"
)

// fakeRepository is an in-memory repository.Repository used by controller
// tests, playing the role the real pgx-backed repository plays in
// production.
type fakeRepository struct {
	mu         sync.Mutex
	sessions   map[uuid.UUID]*models.Session
	password   string
	results    []models.SessionPlayerResult
	successors []*models.Session
	finished   map[uuid.UUID]bool
}

func newFakeRepository(session *models.Session) *fakeRepository {
	return &fakeRepository{
		sessions: map[uuid.UUID]*models.Session{session.ID: session},
		finished: make(map[uuid.UUID]bool),
	}
}

func (f *fakeRepository) LoadSession(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (f *fakeRepository) MarkSessionStarted(ctx context.Context, id uuid.UUID) error {
	return nil
}

func (f *fakeRepository) MarkSessionFinished(ctx context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finished[id] = true
	return nil
}

// PersistResults mirrors the real repository's invariant that results can
// only be recorded once their session has been marked finished.
func (f *fakeRepository) PersistResults(ctx context.Context, results []models.SessionPlayerResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, res := range results {
		if !f.finished[res.SessionID] {
			return repository.ErrIntegrity
		}
	}
	f.results = append(f.results, results...)
	return nil
}

func (f *fakeRepository) CreateSuccessorSession(ctx context.Context, previous *models.Session, newMode models.GameMode) (*models.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	next := &models.Session{
		ID:         uuid.New(),
		Mode:       newMode,
		Name:       previous.Name,
		Private:    previous.Private,
		PlayersMax: previous.PlayersMax,
		CreatorID:  previous.CreatorID,
	}
	f.sessions[next.ID] = next
	f.successors = append(f.successors, next)
	return next, nil
}

func (f *fakeRepository) CheckPassword(ctx context.Context, sessionID uuid.UUID, password string) (bool, error) {
	return password == f.password, nil
}

func (f *fakeRepository) UpdateSessionPlayersNow(ctx context.Context, id uuid.UUID, count int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.sessions[id]; ok {
		s.PlayersNow = count
	}
	return nil
}

func (f *fakeRepository) LoadPlayer(ctx context.Context, id uuid.UUID) (*models.Player, error) {
	return nil, repository.ErrNotFound
}
