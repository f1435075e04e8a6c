// Package models holds the persistent record shapes backing the repository.
package models

import (
	"time"

	"github.com/google/uuid"
)

// GameMode is the one-letter persisted mode code. Labels only appear on the wire.
type GameMode string

const (
	ModeSingle   GameMode = "s"
	ModeIronwall GameMode = "i"
	ModeTugOfWar GameMode = "t"
	ModeEndless  GameMode = "e"
)

var modeLabels = map[GameMode]string{
	ModeSingle:   "single",
	ModeIronwall: "ironwall",
	ModeTugOfWar: "tugofwar",
	ModeEndless:  "endless",
}

var labelModes = map[string]GameMode{
	"single":   ModeSingle,
	"ironwall": ModeIronwall,
	"tugofwar": ModeTugOfWar,
	"endless":  ModeEndless,
}

// Label returns the wire label for a persisted mode code, empty if unknown.
func (m GameMode) Label() string { return modeLabels[m] }

// ModeForLabel maps a wire label back to its persisted one-letter code.
func ModeForLabel(label string) (GameMode, bool) {
	m, ok := labelModes[label]
	return m, ok
}

// AllModeLabels lists every known wire label, in a stable order.
func AllModeLabels() []string {
	return []string{"single", "ironwall", "tugofwar", "endless"}
}

// Session is the persisted session row.
type Session struct {
	ID           uuid.UUID
	Mode         GameMode
	Name         string
	Private      bool
	PasswordHash string // empty when the session has no password
	PlayersMax   int    // 0 means unbounded
	PlayersNow   int
	CreatorID    *uuid.UUID
	StartedAt    *time.Time
	FinishedAt   *time.Time
}

// Player is the persisted player row. A Player with Anonymous set is an
// ephemeral, never-persisted identity.
type Player struct {
	ID          uuid.UUID
	DisplayName string
	CreatedAt   time.Time
	Anonymous   bool // true for an ephemeral, never-persisted identity
}

// IsAnonymous reports whether this player record was never authenticated
// against the repository. ID is still populated (with a freshly generated
// UUID) so anonymous players remain distinguishable within a session.
func (p *Player) IsAnonymous() bool { return p.Anonymous }

// SessionPlayerResult is one row of the per-session, per-competitor result set.
type SessionPlayerResult struct {
	ID             uuid.UUID
	SessionID      uuid.UUID
	PlayerID       *uuid.UUID // nil for a never-persisted anonymous player
	TeamName       string     // empty when team mode is off
	Score          int
	Speed          float64
	MistakeRatio   float64
	IsWinner       bool
	CorrectWords   uint
	IncorrectWords uint
	CreatedAt      time.Time
}
