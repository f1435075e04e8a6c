package controller

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"github.com/google/uuid"
	"github.com/lab1702/typingserver/models"
	"github.com/lab1702/typingserver/words"
)

// PlayerController owns the set of local players (and teams, when enabled)
// for one session: ready/voted counters, displayed-name uniqueness, and the
// serialized competitors snapshot.
type PlayerController struct {
	options GameOptions

	players     map[uuidKey]*LocalPlayer
	order       []*LocalPlayer
	displayed   map[string]bool
	readyCount  int
	votedCount  int

	teamRed  *LocalTeam
	teamBlue *LocalTeam

	onPlayersChanged func(count int)
}

func newPlayerController(options GameOptions, onPlayersChanged func(count int)) *PlayerController {
	pc := &PlayerController{
		options:          options,
		players:          make(map[uuidKey]*LocalPlayer),
		displayed:        make(map[string]bool),
		onPlayersChanged: onPlayersChanged,
	}
	if options.TeamMode {
		pc.teamRed = newLocalTeam("red")
		pc.teamBlue = newLocalTeam("blue")
	}
	return pc
}

// PlayerCount is the number of players currently present.
func (pc *PlayerController) PlayerCount() int { return len(pc.order) }

// ReadyCount is the number of players whose ready flag is true.
func (pc *PlayerController) ReadyCount() int { return pc.readyCount }

// VotedCount is the number of players whose voted-for mode is set.
func (pc *PlayerController) VotedCount() int { return pc.votedCount }

// Players returns every local player, in join order.
func (pc *PlayerController) Players() []*LocalPlayer { return pc.order }

// Teams returns the red/blue teams, nil when team mode is off.
func (pc *PlayerController) Teams() []*LocalTeam {
	if !pc.options.TeamMode {
		return nil
	}
	return []*LocalTeam{pc.teamRed, pc.teamBlue}
}

// Competitors returns the entities win conditions operate on: teams when
// team mode is on, players otherwise.
func (pc *PlayerController) Competitors() []Competitor {
	if pc.options.TeamMode {
		return []Competitor{pc.teamRed, pc.teamBlue}
	}
	out := make([]Competitor, len(pc.order))
	for i, p := range pc.order {
		out[i] = p
	}
	return out
}

// AddPlayer admits a new player, or returns the existing one if already
// present (idempotent re-add).
func (pc *PlayerController) AddPlayer(record *models.Player, provider *words.Provider, playersMax int) (*LocalPlayer, error) {
	key := uuidKey(record.ID)
	if existing, ok := pc.players[key]; ok {
		return existing, nil
	}
	if playersMax > 0 && pc.PlayerCount() >= playersMax {
		return nil, fmt.Errorf("%w: max players limit was reached", ErrPlayerJoinRefused)
	}

	lp := newLocalPlayer(record, provider)
	pc.assignUniqueDisplayName(lp)
	pc.players[key] = lp
	pc.order = append(pc.order, lp)

	if pc.options.TeamMode {
		team := pc.smallerTeam()
		lp.TeamName = team.Name
		team.addPlayer(lp)
	}

	pc.notifyPlayersChanged()
	return lp, nil
}

func (pc *PlayerController) smallerTeam() *LocalTeam {
	if pc.teamRed.Count() <= pc.teamBlue.Count() {
		return pc.teamRed
	}
	return pc.teamBlue
}

// RemovePlayer removes a present player. Calling it for a player that is
// not present is a programmer error: the connection endpoint and the game
// controller's requires-player wrapping guarantee presence first.
func (pc *PlayerController) RemovePlayer(record *models.Player) {
	key := uuidKey(record.ID)
	lp, ok := pc.players[key]
	if !ok {
		panic(fmt.Sprintf("controller: remove of absent player %s", record.ID))
	}
	delete(pc.players, key)
	for i, p := range pc.order {
		if uuidKey(p.ID()) == key {
			pc.order = append(pc.order[:i], pc.order[i+1:]...)
			break
		}
	}
	if lp.Ready {
		pc.readyCount--
	}
	if lp.HasVoted() {
		pc.votedCount--
	}
	pc.removeUniqueDisplayName(lp)

	if pc.options.TeamMode {
		pc.teamByName(lp.TeamName).removePlayer(lp)
	}

	pc.notifyPlayersChanged()
}

func (pc *PlayerController) teamByName(name string) *LocalTeam {
	if name == "blue" {
		return pc.teamBlue
	}
	return pc.teamRed
}

// GetPlayer performs an exact lookup by persistent player id. The caller
// guarantees presence; a missing key fails loudly.
func (pc *PlayerController) GetPlayer(id uuid.UUID) *LocalPlayer {
	lp, ok := pc.players[uuidKey(id)]
	if !ok {
		panic(fmt.Sprintf("controller: lookup of absent player %s", id))
	}
	return lp
}

// AnyPlayer returns some present player, or nil if the session is empty.
func (pc *PlayerController) AnyPlayer() *LocalPlayer {
	if len(pc.order) == 0 {
		return nil
	}
	return pc.order[0]
}

// Exists reports whether a player with this id is currently present.
func (pc *PlayerController) Exists(id uuid.UUID) bool {
	_, ok := pc.players[uuidKey(id)]
	return ok
}

// SetReadyState updates the ready counter only on an actual transition.
func (pc *PlayerController) SetReadyState(id uuid.UUID, ready bool) {
	lp := pc.GetPlayer(id)
	if lp.Ready != ready {
		if ready {
			pc.readyCount++
		} else {
			pc.readyCount--
		}
		lp.Ready = ready
	}
}

// SetPlayerVote records a mode vote. The first recognized vote per player
// increments the voted count; later votes replace the choice without
// double-counting.
func (pc *PlayerController) SetPlayerVote(id uuid.UUID, label string) error {
	if _, ok := models.ModeForLabel(label); !ok {
		return fmt.Errorf("%w: cannot select mode `%s`", ErrInvalidModeChoice, label)
	}
	lp := pc.GetPlayer(id)
	if !lp.HasVoted() {
		pc.votedCount++
	}
	lp.VotedFor = label
	return nil
}

// SetPlayerTeam moves a player to the named team. A no-op when the player
// is already there.
func (pc *PlayerController) SetPlayerTeam(id uuid.UUID, team string) error {
	if !pc.options.TeamMode {
		return ErrInvalidOperation
	}
	if team != "red" && team != "blue" {
		return fmt.Errorf("%w: unknown team `%s`", ErrInvalidOperation, team)
	}
	lp := pc.GetPlayer(id)
	if lp.TeamName == team {
		return nil
	}
	pc.teamByName(lp.TeamName).removePlayer(lp)
	pc.teamByName(team).addPlayer(lp)
	lp.TeamName = team
	return nil
}

// Votes returns the current per-mode-label vote tally.
func (pc *PlayerController) Votes() map[string]int {
	tally := make(map[string]int)
	for _, lp := range pc.order {
		if lp.HasVoted() {
			tally[lp.VotedFor]++
		}
	}
	return tally
}

func (pc *PlayerController) notifyPlayersChanged() {
	if pc.onPlayersChanged != nil {
		pc.onPlayersChanged(pc.PlayerCount())
	}
}

func (pc *PlayerController) assignUniqueDisplayName(lp *LocalPlayer) {
	name := lp.DisplayName
	for pc.displayed[name] {
		name = fmt.Sprintf("%s#%s", lp.DisplayName, randomTag())
	}
	lp.DisplayName = name
	pc.displayed[name] = true
}

func (pc *PlayerController) removeUniqueDisplayName(lp *LocalPlayer) {
	delete(pc.displayed, lp.DisplayName)
	lp.DisplayName = lp.OriginalDisplayName
}

func randomTag() string {
	buf := make([]byte, 3)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failing is not recoverable; panicking matches the
		// "programmer error" treatment used elsewhere in this package.
		panic(fmt.Sprintf("controller: crypto/rand failed: %v", err))
	}
	return base64.RawURLEncoding.EncodeToString(buf)
}
