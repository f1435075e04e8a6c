package controller

import (
	"context"

	"github.com/google/uuid"
	"github.com/lab1702/typingserver/models"
	"github.com/lab1702/typingserver/repository"
)

// playerSnapshot is the camelCase-on-the-wire view of one local player.
// Fields are included or omitted per GameOptions, matching the variant
// schemas the teacher's player controller would otherwise pick at runtime.
type playerSnapshot map[string]any

func (pc *PlayerController) snapshotPlayer(lp *LocalPlayer, includeResults bool) playerSnapshot {
	s := playerSnapshot{
		"id":            lp.ID().String(),
		"displayedName": lp.DisplayName,
		"score":         lp.Score,
		"speed":         lp.Speed,
		"isReady":       lp.Ready,
	}
	if pc.options.TeamMode {
		s["teamName"] = lp.TeamName
	}
	if pc.options.GameDuration > 0 {
		s["timeLeft"] = lp.CompetitorTimeLeft()
	}
	if pc.options.WinCondition == WinSurvived {
		s["isOut"] = lp.Out
	}
	if includeResults {
		s["correctWords"] = lp.CorrectWords
		s["incorrectWords"] = lp.IncorrectWords
		s["mistakeRatio"] = lp.MistakeRatio()
		s["isWinner"] = lp.IsWinner()
	}
	return s
}

func (pc *PlayerController) snapshotTeam(t *LocalTeam, includeResults bool) playerSnapshot {
	players := make([]playerSnapshot, 0, t.Count())
	for _, p := range t.Players() {
		players = append(players, pc.snapshotPlayer(p, includeResults))
	}
	s := playerSnapshot{
		"players": players,
		"score":   t.Score(),
		"speed":   t.Speed(),
	}
	if pc.options.GameDuration > 0 {
		s["timeLeft"] = t.CompetitorTimeLeft()
	}
	if pc.options.WinCondition == WinSurvived {
		s["isOut"] = t.IsOut()
	}
	return s
}

// Snapshot produces the view object broadcast to clients: {players: [...]}
// in non-team sessions, {teams: {red: {...}, blue: {...}}} in team sessions.
func (pc *PlayerController) Snapshot(includeResults bool) map[string]any {
	if pc.options.TeamMode {
		return map[string]any{
			"teams": map[string]any{
				"red":  pc.snapshotTeam(pc.teamRed, includeResults),
				"blue": pc.snapshotTeam(pc.teamBlue, includeResults),
			},
		}
	}
	players := make([]playerSnapshot, 0, len(pc.order))
	for _, p := range pc.order {
		players = append(players, pc.snapshotPlayer(p, includeResults))
	}
	return map[string]any{"players": players}
}

// ResultsList flattens the results snapshot into one player list regardless
// of team mode, matching what GAME_OVER broadcasts.
func (pc *PlayerController) ResultsList() []playerSnapshot {
	snap := pc.Snapshot(true)
	if pc.options.TeamMode {
		teams := snap["teams"].(map[string]any)
		var players []playerSnapshot
		for _, name := range []string{"red", "blue"} {
			team := teams[name].(playerSnapshot)
			players = append(players, team["players"].([]playerSnapshot)...)
		}
		return players
	}
	return snap["players"].([]playerSnapshot)
}

// SaveResults serializes each local player into a result row and hands the
// batch to the repository's session-result sink.
func (pc *PlayerController) SaveResults(ctx context.Context, repo repository.Repository, sessionID uuid.UUID) error {
	rows := make([]models.SessionPlayerResult, 0, len(pc.order))
	for _, lp := range pc.order {
		row := models.SessionPlayerResult{
			SessionID:      sessionID,
			Score:          lp.Score,
			Speed:          lp.Speed,
			MistakeRatio:   lp.MistakeRatio(),
			IsWinner:       lp.IsWinner(),
			CorrectWords:   uint(lp.CorrectWords),
			IncorrectWords: uint(lp.IncorrectWords),
		}
		if pc.options.TeamMode {
			row.TeamName = lp.TeamName
		}
		if !lp.Record.IsAnonymous() {
			id := lp.Record.ID
			row.PlayerID = &id
		}
		rows = append(rows, row)
	}
	return repo.PersistResults(ctx, rows)
}
