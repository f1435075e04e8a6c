// Package events defines the wire and internal event-type vocabulary shared
// between the controller and the connection endpoint.
package events

import (
	"encoding/json"

	"github.com/lab1702/typingserver/models"
)

// Client-originated and internal event types. PlayerJoined, PlayerLeft and
// TriggerTick are synthesized by the connection endpoint, never accepted
// directly off the wire.
const (
	PlayerJoined     = "player_joined"
	PlayerLeft       = "player_left"
	PlayerReadyState = "ready_state"
	PlayerWord       = "word"
	PlayerModeVote   = "vote"
	PlayerSwitchTeam = "switch_team"
	TriggerTick      = "tick"
)

// Server-originated event types.
const (
	InitialState   = "initial_state"
	PlayersUpdate  = "players_update"
	GameBegins     = "game_begins"
	StartGame      = "start_game"
	NewWord        = "new_word"
	GameOver       = "game_over"
	ModesAvailable = "modes_available"
	VotesUpdate    = "votes_update"
	NewGame        = "new_game"
	NewHost        = "new_host"
	Error          = "error"
)

// ReservedTypes are never accepted as inbound player events; the connection
// endpoint synthesizes them itself.
var ReservedTypes = map[string]bool{
	PlayerJoined: true,
	PlayerLeft:   true,
	TriggerTick:  true,
	"":           true,
}

// Target identifies who receives an outbound event.
type Target string

const (
	TargetAll    Target = "all"
	TargetPlayer Target = "player"
)

// Out is a controller-emitted event, addressed to either one connection or
// every connection subscribed to the session.
type Out struct {
	Target Target
	Type   string
	Data   any
}

// In is a player-originated event fed into the controller's single entry
// point. Payload carries the raw wire data for handlers that need to
// unmarshal it into a concrete shape.
type In struct {
	Player  *models.Player
	Type    string
	Payload json.RawMessage
}

// Wire is the `{type, data}` frame shape shared by inbound and outbound
// messages over the session transport.
type Wire struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}
