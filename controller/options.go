package controller

import "github.com/lab1702/typingserver/models"

// WinCondition selects how the game-over stage transition and winner
// marking behave.
type WinCondition string

const (
	WinBestScore WinCondition = "best-score"
	WinBestTime  WinCondition = "best-time-remaining"
	WinSurvived  WinCondition = "survived-longest"
)

// GameOptions carries every variant-specific knob as data, replacing the
// per-mode subclass hierarchy with a single concrete controller that
// branches on these fields.
type GameOptions struct {
	GameDuration       int // seconds; 0 means untimed
	WinCondition       WinCondition
	TeamMode           bool
	SpeedUpPercent     float64
	PointsDifference   int // 0 means disabled
	TimePerCorrectWord float64
	StrictMode         bool
	StartDelaySeconds  float64
}

// defaultOptions mirrors the single-mode baseline every other mode starts
// from and overrides.
func defaultOptions() GameOptions {
	return GameOptions{
		GameDuration: 60,
		WinCondition: WinBestScore,
	}
}

// OptionsForMode derives a session's GameOptions from its persisted mode
// and player cap.
func OptionsForMode(mode models.GameMode, playersMax int) GameOptions {
	opts := defaultOptions()
	switch mode {
	case models.ModeSingle:
		// defaults apply unchanged
	case models.ModeIronwall:
		opts.StrictMode = true
	case models.ModeEndless:
		opts.GameDuration = 30
		opts.WinCondition = WinSurvived
		opts.TimePerCorrectWord = 0.5
		opts.SpeedUpPercent = 15.0
	case models.ModeTugOfWar:
		opts.GameDuration = 0
		opts.TeamMode = true
		opts.PointsDifference = 50
	}
	if playersMax != 1 {
		opts.StartDelaySeconds = 3
	}
	return opts
}
