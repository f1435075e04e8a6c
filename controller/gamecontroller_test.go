package controller

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lab1702/typingserver/events"
	"github.com/lab1702/typingserver/models"
	"github.com/lab1702/typingserver/words"
	"github.com/stretchr/testify/require"
)

type manualClock struct{ now time.Time }

func newManualClock() *manualClock { return &manualClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)} }
func (m *manualClock) Now() time.Time       { return m.now }
func (m *manualClock) Advance(d time.Duration) { m.now = m.now.Add(d) }

func newTestController(t *testing.T, mode models.GameMode, playersMax int) (*Controller, *fakeRepository, *manualClock) {
	t.Helper()
	session := &models.Session{ID: uuid.New(), Mode: mode, PlayersMax: playersMax}
	repo := newFakeRepository(session)
	clock := newManualClock()
	source := &words.StaticWordSource{Words: []string{"alpha", "beta", "gamma", "delta", "epsilon"}}

	c, err := NewController(context.Background(), repo, source, session.ID, clock.Now)
	require.NoError(t, err)
	return c, repo, clock
}

func newPlayer(name string) *models.Player {
	return &models.Player{ID: uuid.New(), DisplayName: name, Anonymous: true}
}

func eventTypes(out []events.Out) []string {
	types := make([]string, len(out))
	for i, e := range out {
		types[i] = e.Type
	}
	return types
}

func mustJoin(t *testing.T, c *Controller, player *models.Player) []events.Out {
	t.Helper()
	out, err := c.PlayerEvent(context.Background(), events.In{Player: player, Type: events.PlayerJoined})
	require.NoError(t, err)
	return out
}

func boolPayload(v bool) json.RawMessage {
	b, _ := json.Marshal(v)
	return b
}

func stringPayload(v string) json.RawMessage {
	b, _ := json.Marshal(v)
	return b
}

// Scenario 1: solo single-mode happy path.
func TestScenarioSoloSingleHappyPath(t *testing.T) {
	c, _, _ := newTestController(t, models.ModeSingle, 1)
	p := newPlayer("p1")

	joinOut := mustJoin(t, c, p)
	require.Equal(t, []string{events.InitialState, events.PlayersUpdate}, eventTypes(joinOut))

	readyOut, err := c.PlayerEvent(context.Background(), events.In{
		Player: p, Type: events.PlayerReadyState, Payload: boolPayload(true),
	})
	require.NoError(t, err)
	require.Equal(t, []string{
		events.PlayersUpdate, events.GameBegins, events.StartGame,
	}, eventTypes(readyOut))
	require.Equal(t, StatePlaying, c.State())

	wordOut, err := c.PlayerEvent(context.Background(), events.In{
		Player: p, Type: events.PlayerWord, Payload: stringPayload("alpha"),
	})
	require.NoError(t, err)
	require.Equal(t, []string{events.NewWord, events.PlayersUpdate}, eventTypes(wordOut))

	lp := c.players.GetPlayer(p.ID)
	require.Equal(t, len("alpha"), lp.Score)
	require.Equal(t, 1, lp.CorrectWords)
}

// Scenario 2: multi-player join-leave cascade.
func TestScenarioJoinLeaveCascade(t *testing.T) {
	c, _, _ := newTestController(t, models.ModeSingle, 2)
	a := newPlayer("a")
	b := newPlayer("b")

	mustJoin(t, c, a)
	mustJoin(t, c, b)

	readyOut, err := c.PlayerEvent(context.Background(), events.In{
		Player: a, Type: events.PlayerReadyState, Payload: boolPayload(true),
	})
	require.NoError(t, err)
	require.Equal(t, []string{events.PlayersUpdate}, eventTypes(readyOut))

	leaveOut, err := c.PlayerEvent(context.Background(), events.In{Player: b, Type: events.PlayerLeft})
	require.NoError(t, err)
	require.Equal(t, []string{events.PlayersUpdate, events.GameBegins}, eventTypes(leaveOut))
	require.Equal(t, StatePreparing, c.State())
}

// Scenario 3: endless survival.
func TestScenarioEndlessSurvival(t *testing.T) {
	c, _, clock := newTestController(t, models.ModeEndless, 1)
	a := newPlayer("a")

	mustJoin(t, c, a)
	require.NoError(t, c.SetHost(a))
	readyOut, err := c.PlayerEvent(context.Background(), events.In{
		Player: a, Type: events.PlayerReadyState, Payload: boolPayload(true),
	})
	require.NoError(t, err)
	require.Contains(t, eventTypes(readyOut), events.StartGame)
	require.Equal(t, StatePlaying, c.State())

	lp := c.players.GetPlayer(a.ID)
	lp.SetCompetitorTimeLeft(0.5)

	clock.Advance(time.Second)
	tickOut, err := c.PlayerEvent(context.Background(), events.In{Player: a, Type: events.TriggerTick})
	require.NoError(t, err)
	require.Equal(t, []string{events.PlayersUpdate, events.GameOver}, eventTypes(tickOut))
	require.True(t, lp.Out)
	require.Equal(t, 0.0, lp.CompetitorTimeLeft())
	require.True(t, lp.IsWinner())
}

// Scenario 4: tug-of-war team balance.
func TestScenarioTugOfWarTeamBalance(t *testing.T) {
	c, _, _ := newTestController(t, models.ModeTugOfWar, 0)
	a, b, cc := newPlayer("a"), newPlayer("b"), newPlayer("c")

	mustJoin(t, c, a)
	mustJoin(t, c, b)
	mustJoin(t, c, cc)

	lpA := c.players.GetPlayer(a.ID)
	lpB := c.players.GetPlayer(b.ID)
	lpC := c.players.GetPlayer(cc.ID)
	require.Equal(t, "red", lpA.TeamName)
	require.Equal(t, "blue", lpB.TeamName)
	require.Equal(t, "red", lpC.TeamName) // tie breaks red

	_, err := c.PlayerEvent(context.Background(), events.In{
		Player: cc, Type: events.PlayerSwitchTeam, Payload: stringPayload("blue"),
	})
	require.NoError(t, err)
	require.Equal(t, "blue", lpC.TeamName)
	require.Equal(t, 1, c.players.teamRed.Count())
	require.Equal(t, 2, c.players.teamBlue.Count())
}

// Scenario 5: voting resolution.
func TestScenarioVotingResolution(t *testing.T) {
	c, _, _ := newTestController(t, models.ModeSingle, 1)
	p := newPlayer("a")
	mustJoin(t, c, p)
	_, err := c.PlayerEvent(context.Background(), events.In{
		Player: p, Type: events.PlayerReadyState, Payload: boolPayload(true),
	})
	require.NoError(t, err)
	require.Equal(t, StatePlaying, c.State())

	// Force the game to end by calling gameOver directly: the best-score
	// default win condition only ends on duration expiry.
	over, err := c.gameOver(context.Background())
	require.NoError(t, err)
	require.Equal(t, events.GameOver, over.Type)
	require.Equal(t, StateVoting, c.State())

	voteOut, err := c.PlayerEvent(context.Background(), events.In{
		Player: p, Type: events.PlayerModeVote, Payload: stringPayload("single"),
	})
	require.NoError(t, err)
	require.Equal(t, []string{events.VotesUpdate, events.NewGame}, eventTypes(voteOut))
	require.Equal(t, StateTerminated, c.State())
	require.NotNil(t, c.NewSessionID())

	again, err := c.PlayerEvent(context.Background(), events.In{
		Player: p, Type: events.PlayerModeVote, Payload: stringPayload("single"),
	})
	require.NoError(t, err)
	require.Empty(t, again)
}

// Scenario 6: host migration on leave.
func TestScenarioHostMigrationOnLeave(t *testing.T) {
	c, _, _ := newTestController(t, models.ModeSingle, 0)
	a, b := newPlayer("a"), newPlayer("b")
	mustJoin(t, c, a)
	mustJoin(t, c, b)

	require.NoError(t, c.SetHost(a))

	out, err := c.PlayerEvent(context.Background(), events.In{Player: a, Type: events.PlayerLeft})
	require.NoError(t, err)
	require.Equal(t, []string{events.NewHost, events.PlayersUpdate}, eventTypes(out))
	require.Equal(t, b.ID, *c.HostID())
}

func TestTickFromNonHostIsDiscarded(t *testing.T) {
	c, _, _ := newTestController(t, models.ModeSingle, 0)
	p := newPlayer("p")
	mustJoin(t, c, p)

	out, err := c.PlayerEvent(context.Background(), events.In{Player: p, Type: events.TriggerTick})
	require.NoError(t, err)
	require.Empty(t, out)
	require.Equal(t, StatePreparing, c.State())
}

func TestJoinTwiceIsRefused(t *testing.T) {
	c, _, _ := newTestController(t, models.ModeSingle, 0)
	p := newPlayer("p")
	mustJoin(t, c, p)

	_, err := c.PlayerEvent(context.Background(), events.In{Player: p, Type: events.PlayerJoined})
	require.ErrorIs(t, err, ErrPlayerJoinRefused)
	require.Equal(t, 1, c.players.PlayerCount())
}

func TestReadyToggleCountsOnlyTransitions(t *testing.T) {
	c, _, _ := newTestController(t, models.ModeSingle, 0)
	p := newPlayer("p")
	mustJoin(t, c, p)

	setReady := func(v bool) {
		_, err := c.PlayerEvent(context.Background(), events.In{
			Player: p, Type: events.PlayerReadyState, Payload: boolPayload(v),
		})
		require.NoError(t, err)
	}
	initial := c.players.ReadyCount()
	setReady(true)
	setReady(false)
	setReady(true)
	require.Equal(t, initial+1, c.players.ReadyCount())
}
