package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"

	"github.com/google/uuid"
	"github.com/lab1702/typingserver/models"
)

// PostgresRepository is the pgxpool-backed Repository implementation
// fronting the sessions, players, and session_player_results tables.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository wraps an already-connected pool.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) LoadSession(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	var s models.Session
	var mode string
	var passwordHash sql.NullString
	var creatorID *uuid.UUID
	var startedAt, finishedAt *time.Time

	err := r.db.QueryRow(ctx, `
SELECT id, mode, name, private, password_hash, players_max, players_now,
       creator_id, started_at, finished_at
FROM sessions
WHERE id = $1;
`, id).Scan(&s.ID, &mode, &s.Name, &s.Private, &passwordHash, &s.PlayersMax,
		&s.PlayersNow, &creatorID, &startedAt, &finishedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("repository: load session: %w", err)
	}

	s.Mode = models.GameMode(mode)
	s.PasswordHash = passwordHash.String
	s.CreatorID = creatorID
	s.StartedAt = startedAt
	s.FinishedAt = finishedAt
	return &s, nil
}

func (r *PostgresRepository) MarkSessionStarted(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `
UPDATE sessions SET started_at = now()
WHERE id = $1 AND started_at IS NULL;
`, id)
	if err != nil {
		return fmt.Errorf("repository: mark session started: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: session %s already started or missing", ErrIntegrity, id)
	}
	return nil
}

func (r *PostgresRepository) MarkSessionFinished(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `
UPDATE sessions SET finished_at = now()
WHERE id = $1 AND finished_at IS NULL;
`, id)
	if err != nil {
		return fmt.Errorf("repository: mark session finished: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: session %s already finished or missing", ErrIntegrity, id)
	}
	return nil
}

// PersistResults inserts every result row inside a single transaction.
// Every distinct session referenced must already be marked finished —
// enforced here, not just by caller ordering, since the interface's
// contract promises an IntegrityError otherwise — and a (session_id,
// player_id) collision is surfaced as ErrIntegrity rather than a raw
// constraint-violation error.
func (r *PostgresRepository) PersistResults(ctx context.Context, results []models.SessionPlayerResult) error {
	if len(results) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("repository: begin persist results: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	checkedFinished := make(map[uuid.UUID]bool)
	for _, res := range results {
		if !checkedFinished[res.SessionID] {
			var finishedAt *time.Time
			if err := tx.QueryRow(ctx, `SELECT finished_at FROM sessions WHERE id = $1;`, res.SessionID).Scan(&finishedAt); err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					return ErrNotFound
				}
				return fmt.Errorf("repository: check session finished: %w", err)
			}
			if finishedAt == nil {
				return fmt.Errorf("%w: session %s is not finished", ErrIntegrity, res.SessionID)
			}
			checkedFinished[res.SessionID] = true
		}

		var exists bool
		if err := tx.QueryRow(ctx, `
SELECT EXISTS (
	SELECT 1 FROM session_player_results
	WHERE session_id = $1 AND player_id IS NOT DISTINCT FROM $2
);
`, res.SessionID, res.PlayerID).Scan(&exists); err != nil {
			return fmt.Errorf("repository: check existing result: %w", err)
		}
		if exists {
			return fmt.Errorf("%w: result already recorded for session %s player %v", ErrIntegrity, res.SessionID, res.PlayerID)
		}

		if _, err := tx.Exec(ctx, `
INSERT INTO session_player_results
	(id, session_id, player_id, team_name, score, speed, mistake_ratio,
	 is_winner, correct_words, incorrect_words, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now());
`, uuid.New(), res.SessionID, res.PlayerID, res.TeamName, res.Score, res.Speed,
			res.MistakeRatio, res.IsWinner, res.CorrectWords, res.IncorrectWords); err != nil {
			return fmt.Errorf("repository: insert result: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("repository: commit persist results: %w", err)
	}
	return nil
}

// CreateSuccessorSession inserts the row for the next game voted into,
// inheriting the previous session's name/privacy/capacity/creator and
// persisting mode as its one-letter code.
func (r *PostgresRepository) CreateSuccessorSession(ctx context.Context, previous *models.Session, newMode models.GameMode) (*models.Session, error) {
	next := &models.Session{
		ID:           uuid.New(),
		Mode:         newMode,
		Name:         previous.Name,
		Private:      previous.Private,
		PasswordHash: previous.PasswordHash,
		PlayersMax:   previous.PlayersMax,
		CreatorID:    previous.CreatorID,
	}

	var passwordHash *string
	if next.PasswordHash != "" {
		passwordHash = &next.PasswordHash
	}
	_, err := r.db.Exec(ctx, `
INSERT INTO sessions (id, mode, name, private, password_hash, players_max, players_now, creator_id)
VALUES ($1, $2, $3, $4, $5, $6, 0, $7);
`, next.ID, string(next.Mode), next.Name, next.Private, passwordHash, next.PlayersMax, next.CreatorID)
	if err != nil {
		return nil, fmt.Errorf("repository: create successor session: %w", err)
	}
	return next, nil
}

func (r *PostgresRepository) CheckPassword(ctx context.Context, sessionID uuid.UUID, password string) (bool, error) {
	var hash sql.NullString
	err := r.db.QueryRow(ctx, `SELECT password_hash FROM sessions WHERE id = $1;`, sessionID).Scan(&hash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, ErrNotFound
		}
		return false, fmt.Errorf("repository: check password: %w", err)
	}
	if !hash.Valid {
		return true, nil
	}
	return bcrypt.CompareHashAndPassword([]byte(hash.String), []byte(password)) == nil, nil
}

// HashPassword produces the bcrypt hash stored in password_hash when a
// session is created with a password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("repository: hash password: %w", err)
	}
	return string(hash), nil
}

func (r *PostgresRepository) UpdateSessionPlayersNow(ctx context.Context, id uuid.UUID, count int) error {
	_, err := r.db.Exec(ctx, `UPDATE sessions SET players_now = $1 WHERE id = $2;`, count, id)
	if err != nil {
		return fmt.Errorf("repository: update players now: %w", err)
	}
	return nil
}

func (r *PostgresRepository) LoadPlayer(ctx context.Context, id uuid.UUID) (*models.Player, error) {
	var p models.Player
	err := r.db.QueryRow(ctx, `SELECT id, display_name, created_at FROM players WHERE id = $1;`, id).
		Scan(&p.ID, &p.DisplayName, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("repository: load player: %w", err)
	}
	return &p, nil
}

// SessionSummary is the public listing row served by GET /api/sessions.
type SessionSummary struct {
	ID         uuid.UUID `json:"id"`
	Mode       string    `json:"mode"`
	Name       string    `json:"name"`
	Private    bool      `json:"private"`
	PlayersNow int       `json:"playersNow"`
	PlayersMax int       `json:"playersMax"`
}

// ListOpenSessions returns sessions not yet finished, for GET /api/sessions.
func (r *PostgresRepository) ListOpenSessions(ctx context.Context) ([]SessionSummary, error) {
	rows, err := r.db.Query(ctx, `
SELECT id, mode, name, private, players_now, players_max
FROM sessions
WHERE finished_at IS NULL
ORDER BY started_at NULLS FIRST;
`)
	if err != nil {
		return nil, fmt.Errorf("repository: list open sessions: %w", err)
	}
	defer rows.Close()

	summaries := make([]SessionSummary, 0)
	for rows.Next() {
		var s SessionSummary
		var mode string
		if err := rows.Scan(&s.ID, &mode, &s.Name, &s.Private, &s.PlayersNow, &s.PlayersMax); err != nil {
			return nil, fmt.Errorf("repository: scan session summary: %w", err)
		}
		s.Mode = models.GameMode(mode).Label()
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: iterate session summaries: %w", err)
	}
	return summaries, nil
}

// PlayerStats is the aggregate served by GET /api/players/{id}/stats.
type PlayerStats struct {
	PlayerID            uuid.UUID `json:"playerId"`
	GamesPlayed         int       `json:"gamesPlayed"`
	Wins                int       `json:"wins"`
	AverageSpeed        float64   `json:"averageSpeed"`
	AverageMistakeRatio float64   `json:"averageMistakeRatio"`
}

func (r *PostgresRepository) LoadPlayerStats(ctx context.Context, playerID uuid.UUID) (*PlayerStats, error) {
	stats := &PlayerStats{PlayerID: playerID}
	err := r.db.QueryRow(ctx, `
SELECT
	count(*),
	count(*) FILTER (WHERE is_winner),
	coalesce(avg(speed), 0),
	coalesce(avg(mistake_ratio), 0)
FROM session_player_results
WHERE player_id = $1;
`, playerID).Scan(&stats.GamesPlayed, &stats.Wins, &stats.AverageSpeed, &stats.AverageMistakeRatio)
	if err != nil {
		return nil, fmt.Errorf("repository: load player stats: %w", err)
	}
	return stats, nil
}
