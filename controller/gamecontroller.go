// Package controller implements the per-session game controller, the
// player controller it delegates to, and the process-wide session registry.
package controller

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lab1702/typingserver/events"
	"github.com/lab1702/typingserver/models"
	"github.com/lab1702/typingserver/repository"
	"github.com/lab1702/typingserver/words"
)

// State is one of the four stages a session's controller moves through.
type State string

const (
	StatePreparing   State = "preparing"
	StatePlaying     State = "playing"
	StateVoting      State = "voting"
	StateTerminated  State = "terminated"
)

// Clock is injected so ticks and start-delay math are testable without
// sleeping.
type Clock func() time.Time

// Controller is one session's authoritative state machine. All mutation
// goes through PlayerEvent, which serializes callers behind mu.
type Controller struct {
	mu sync.Mutex

	sessionID uuid.UUID
	session   *models.Session
	repo      repository.Repository
	options   GameOptions
	provider  *words.Provider
	players   *PlayerController
	clock     Clock

	state         State
	hostID        *uuid.UUID
	gameBeginsAt  *time.Time
	gameEndsAt    *time.Time
	lastTick      *time.Time
	newSessionID  *uuid.UUID
	modesAvailable []string

	handlers map[string]registeredHandler
}

type handlerOpts struct {
	requiresPlayer bool
	updatesPlayers bool
	updatesStage   bool
}

type handlerFunc func(ctx context.Context, in events.In) ([]events.Out, error)

type registeredHandler struct {
	fn   handlerFunc
	opts handlerOpts
}

// NewController loads the session record and builds a fresh controller for
// it. It fails with ErrGameOver if the session is already started or
// finished, matching the registry's at-most-one-controller invariant.
func NewController(ctx context.Context, repo repository.Repository, source words.Source, sessionID uuid.UUID, clock Clock) (*Controller, error) {
	session, err := repo.LoadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.StartedAt != nil || session.FinishedAt != nil {
		return nil, ErrGameOver
	}

	options := OptionsForMode(session.Mode, session.PlayersMax)
	provider := words.NewProvider(source)

	c := &Controller{
		sessionID:      sessionID,
		session:        session,
		repo:           repo,
		options:        options,
		provider:       provider,
		clock:          clock,
		state:          StatePreparing,
		modesAvailable: models.AllModeLabels(),
	}
	c.players = newPlayerController(options, c.onPlayersChanged)
	c.handlers = c.buildHandlers()
	return c, nil
}

func (c *Controller) now() time.Time {
	if c.clock != nil {
		return c.clock()
	}
	return time.Now()
}

func (c *Controller) onPlayersChanged(count int) {
	c.session.PlayersNow = count
	// Best-effort: the persisted players_now is a convenience mirror for
	// REST listing, not an invariant the controller itself depends on.
	_ = c.repo.UpdateSessionPlayersNow(context.Background(), c.sessionID, count)
}

// State reports the controller's current stage, for tests and metrics.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// HostID reports the current host, if any.
func (c *Controller) HostID() *uuid.UUID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hostID
}

// NewSessionID reports the successor session id once voting has resolved.
func (c *Controller) NewSessionID() *uuid.UUID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.newSessionID
}

func (c *Controller) buildHandlers() map[string]registeredHandler {
	return map[string]registeredHandler{
		events.PlayerJoined: {c.handlePlayerJoin, handlerOpts{updatesPlayers: true}},
		events.PlayerLeft: {c.handlePlayerLeave, handlerOpts{
			requiresPlayer: true, updatesPlayers: true, updatesStage: true,
		}},
		events.PlayerReadyState: {c.handlePlayerReady, handlerOpts{
			requiresPlayer: true, updatesPlayers: true, updatesStage: true,
		}},
		events.PlayerWord: {c.handleWord, handlerOpts{
			requiresPlayer: true, updatesPlayers: true,
		}},
		events.TriggerTick: {c.handleTick, handlerOpts{
			updatesPlayers: true, updatesStage: true,
		}},
		events.PlayerModeVote: {c.handlePlayerVote, handlerOpts{
			requiresPlayer: true, updatesStage: true,
		}},
		events.PlayerSwitchTeam: {c.handleSwitchTeam, handlerOpts{
			requiresPlayer: true, updatesPlayers: true,
		}},
	}
}

// PlayerEvent is the controller's single entry point: it dispatches in.Type
// through the handler table, applying the requires-player / updates-players
// / updates-stage wrapping the source language expressed as decorators.
func (c *Controller) PlayerEvent(ctx context.Context, in events.In) ([]events.Out, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	h, ok := c.handlers[in.Type]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrEventTypeNotDefined, in.Type)
	}

	if h.opts.requiresPlayer && (in.Player == nil || !c.players.Exists(in.Player.ID)) {
		return nil, nil
	}

	out, err := h.fn(ctx, in)
	if err != nil {
		if err == ErrDiscardedEvent {
			return nil, nil
		}
		return nil, err
	}

	if h.opts.updatesPlayers {
		out = append(out, c.playersUpdateEvent())
	}
	if h.opts.updatesStage {
		stageEvents, err := c.runStageTransition(ctx)
		if err != nil {
			return nil, err
		}
		out = append(out, stageEvents...)
	}
	return out, nil
}

func (c *Controller) isHost(player *models.Player) bool {
	if c.hostID == nil || player == nil {
		return false
	}
	return *c.hostID == player.ID
}

// SetHost assigns the host role to a present player. Called by the
// connection endpoint when it nominates itself as the first host.
func (c *Controller) SetHost(player *models.Player) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if player == nil || !c.players.Exists(player.ID) {
		return fmt.Errorf("%w: host must be a present player", ErrInvalidOperation)
	}
	id := player.ID
	c.hostID = &id
	return nil
}

func (c *Controller) setNewHost() events.Out {
	next := c.players.AnyPlayer()
	if next == nil {
		c.hostID = nil
	} else {
		id := next.ID()
		c.hostID = &id
	}
	return events.Out{Target: events.TargetAll, Type: events.NewHost, Data: hostData(c.hostID)}
}

func hostData(id *uuid.UUID) any {
	if id == nil {
		return nil
	}
	return id.String()
}

// --- event handlers ---

type joinPayload struct {
	Password string `json:"password"`
}

func (c *Controller) handlePlayerJoin(ctx context.Context, in events.In) ([]events.Out, error) {
	var payload joinPayload
	if len(in.Payload) > 0 {
		if err := json.Unmarshal(in.Payload, &payload); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
		}
	}

	reason, err := c.joinRefusalReason(ctx, in.Player, payload.Password)
	if err != nil {
		return nil, err
	}
	if reason != "" {
		return nil, fmt.Errorf("%w: %s", ErrPlayerJoinRefused, reason)
	}

	lp, err := c.players.AddPlayer(in.Player, c.provider, c.session.PlayersMax)
	if err != nil {
		return nil, err
	}
	return []events.Out{c.initialStateEvent(ctx, lp)}, nil
}

// joinRefusalReason returns a human-readable refusal reason, or "" when the
// player may join.
func (c *Controller) joinRefusalReason(ctx context.Context, player *models.Player, password string) (string, error) {
	if c.session.PlayersMax > 0 && c.players.PlayerCount() >= c.session.PlayersMax {
		return "max players limit was reached", nil
	}
	if c.state != StatePreparing {
		return fmt.Sprintf("cannot join during %s stage", c.state), nil
	}
	if c.players.Exists(player.ID) {
		return "player already in session", nil
	}
	if c.session.PasswordHash != "" {
		ok, err := c.repo.CheckPassword(ctx, c.sessionID, password)
		if err != nil {
			return "", err
		}
		if !ok {
			return "wrong password", nil
		}
	}
	return "", nil
}

func (c *Controller) handlePlayerLeave(ctx context.Context, in events.In) ([]events.Out, error) {
	var out []events.Out
	wasHost := c.isHost(in.Player)
	c.players.RemovePlayer(in.Player)
	if wasHost {
		out = append(out, c.setNewHost())
	}
	if c.state == StateVoting && c.players.PlayerCount() > 0 {
		out = append(out, c.votesUpdateEvent())
	}
	return out, nil
}

func (c *Controller) handlePlayerReady(ctx context.Context, in events.In) ([]events.Out, error) {
	if c.state != StatePreparing {
		return nil, fmt.Errorf("%w: cannot change ready state during %s stage", ErrInvalidOperation, c.state)
	}
	var ready bool
	if err := json.Unmarshal(in.Payload, &ready); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	c.players.SetReadyState(in.Player.ID, ready)
	return nil, nil
}

func (c *Controller) handleWord(ctx context.Context, in events.In) ([]events.Out, error) {
	if c.state != StatePlaying {
		return nil, fmt.Errorf("%w: cannot submit words during %s stage", ErrInvalidOperation, c.state)
	}
	lp := c.players.GetPlayer(in.Player.ID)
	if lp.Out {
		return nil, fmt.Errorf("%w: cannot submit words when out", ErrInvalidOperation)
	}
	var word string
	if err := json.Unmarshal(in.Payload, &word); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}

	expected, err := lp.NextExpectedWord(ctx)
	if err != nil {
		return nil, err
	}
	if word == expected {
		c.scoreCorrectWord(lp, word)
	} else {
		lp.IncorrectWords++
	}

	newWord, err := c.newWordEvent(ctx)
	if err != nil {
		return nil, err
	}
	return []events.Out{newWord}, nil
}

func (c *Controller) scoreCorrectWord(lp *LocalPlayer, word string) {
	wordLen := len(word)
	lp.Score += wordLen
	lp.TotalWordLength += wordLen
	lp.CorrectWords++
	if c.session.StartedAt != nil {
		elapsed := c.now().Sub(*c.session.StartedAt).Seconds()
		if elapsed > 0 {
			lp.Speed = float64(lp.TotalWordLength) / elapsed
		}
	}
	if c.options.TimePerCorrectWord > 0 {
		bonus := c.options.TimePerCorrectWord * float64(wordLen)
		var competitor Competitor = lp
		if c.options.TeamMode {
			competitor = c.players.teamByName(lp.TeamName)
		}
		next := competitor.CompetitorTimeLeft() + bonus
		if c.options.GameDuration > 0 {
			next = math.Min(float64(c.options.GameDuration), next)
		}
		competitor.SetCompetitorTimeLeft(next)
	}
}

func (c *Controller) handleTick(ctx context.Context, in events.In) ([]events.Out, error) {
	if !c.isHost(in.Player) {
		return nil, ErrDiscardedEvent
	}
	switch c.state {
	case StatePreparing:
		if c.gameBeginsAt == nil || c.now().Before(*c.gameBeginsAt) {
			return nil, ErrDiscardedEvent
		}
		start, err := c.startGame(ctx)
		if err != nil {
			return nil, err
		}
		return []events.Out{start}, nil
	case StatePlaying:
		c.advanceTime()
		return nil, nil
	default: // voting, terminated
		return nil, ErrDiscardedEvent
	}
}

// advanceTime applies the non-linear time-left decay described in spec.md
// §4.3: elapsed seconds since start, raised to 1+speedUpPercent/100, and the
// per-tick decrement is the difference of that value at this tick and the
// previous one.
func (c *Controller) advanceTime() {
	if c.options.GameDuration <= 0 || c.session.StartedAt == nil {
		return
	}
	prevTick := c.session.StartedAt
	if c.lastTick != nil {
		prevTick = c.lastTick
	}
	now := c.now()
	c.lastTick = &now

	exponent := 1 + c.options.SpeedUpPercent/100
	nowPsec := math.Pow(now.Sub(*c.session.StartedAt).Seconds(), exponent)
	prevPsec := math.Pow(prevTick.Sub(*c.session.StartedAt).Seconds(), exponent)
	delta := nowPsec - prevPsec

	survival := c.options.WinCondition == WinSurvived
	for _, comp := range c.players.Competitors() {
		left := comp.CompetitorTimeLeft() - delta
		comp.SetCompetitorTimeLeft(left)
		if survival && left <= 0 {
			comp.SetCompetitorTimeLeft(0)
			comp.SetCompetitorOut(true)
		}
	}
}

func (c *Controller) handlePlayerVote(ctx context.Context, in events.In) ([]events.Out, error) {
	if c.state != StateVoting {
		return nil, nil
	}
	var label string
	if err := json.Unmarshal(in.Payload, &label); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if !containsLabel(c.modesAvailable, label) {
		return []events.Out{c.modesAvailableEvent()}, nil
	}
	if err := c.players.SetPlayerVote(in.Player.ID, label); err != nil {
		return nil, err
	}
	return []events.Out{c.votesUpdateEvent()}, nil
}

func (c *Controller) handleSwitchTeam(ctx context.Context, in events.In) ([]events.Out, error) {
	if c.state != StatePreparing {
		return nil, ErrInvalidOperation
	}
	var team string
	if err := json.Unmarshal(in.Payload, &team); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if err := c.players.SetPlayerTeam(in.Player.ID, team); err != nil {
		return nil, err
	}
	return nil, nil
}

func containsLabel(labels []string, label string) bool {
	for _, l := range labels {
		if l == label {
			return true
		}
	}
	return false
}

// --- stage transitions ---

func (c *Controller) runStageTransition(ctx context.Context) ([]events.Out, error) {
	if c.canBeginPlaying() {
		return c.enterPlayingStage(ctx)
	}
	if c.canBeginVoting() {
		over, err := c.gameOver(ctx)
		if err != nil {
			return nil, err
		}
		return []events.Out{over}, nil
	}
	if c.canEnterNextGame() {
		next, err := c.createNewGame(ctx)
		if err != nil {
			return nil, err
		}
		return []events.Out{next}, nil
	}
	return nil, nil
}

func (c *Controller) canBeginPlaying() bool {
	if c.state != StatePreparing {
		return false
	}
	count := c.players.PlayerCount()
	return count > 0 && c.players.ReadyCount() >= count
}

func (c *Controller) canEnterNextGame() bool {
	if c.state != StateVoting {
		return false
	}
	count := c.players.PlayerCount()
	return count > 0 && c.players.VotedCount() >= count
}

func (c *Controller) canBeginVoting() bool {
	if c.state != StatePlaying {
		return false
	}
	if c.players.PlayerCount() <= 0 {
		return true
	}
	if c.options.WinCondition == WinSurvived {
		competitors := c.players.Competitors()
		outCount := 0
		for _, comp := range competitors {
			if comp.CompetitorIsOut() {
				outCount++
			}
		}
		return outCount > 0 && outCount >= len(competitors)-1
	}
	if c.options.GameDuration > 0 && c.gameEndsAt != nil {
		if !c.gameEndsAt.After(c.now()) {
			return true
		}
	}
	if c.options.PointsDifference > 0 {
		top, second, ok := topTwoScores(c.players.Competitors())
		if ok && top-second >= c.options.PointsDifference {
			return true
		}
	}
	return false
}

// topTwoScores returns the two highest distinct competitor scores. ok is
// false when fewer than two distinct scores exist yet (mirrors the
// source's "remove top, take max of what's left" behavior on a set).
func topTwoScores(competitors []Competitor) (top, second int, ok bool) {
	distinctSet := make(map[int]bool, len(competitors))
	for _, comp := range competitors {
		distinctSet[comp.CompetitorScore()] = true
	}
	if len(distinctSet) < 2 {
		return 0, 0, false
	}
	distinct := make([]int, 0, len(distinctSet))
	for s := range distinctSet {
		distinct = append(distinct, s)
	}
	top, second = distinct[0], distinct[1]
	if second > top {
		top, second = second, top
	}
	for _, s := range distinct[2:] {
		switch {
		case s > top:
			top, second = s, top
		case s > second:
			second = s
		}
	}
	return top, second, true
}

func (c *Controller) enterPlayingStage(ctx context.Context) ([]events.Out, error) {
	out := []events.Out{c.gameBeginsEvent()}
	if c.options.StartDelaySeconds <= 0 {
		start, err := c.startGame(ctx)
		if err != nil {
			return nil, err
		}
		out = append(out, start)
	} else {
		begins := c.now().Add(time.Duration(c.options.StartDelaySeconds * float64(time.Second)))
		c.gameBeginsAt = &begins
	}
	return out, nil
}

func (c *Controller) startGame(ctx context.Context) (events.Out, error) {
	if err := c.repo.MarkSessionStarted(ctx, c.sessionID); err != nil {
		return events.Out{}, err
	}
	c.state = StatePlaying
	now := c.now()
	c.session.StartedAt = &now
	c.postStart()
	return events.Out{Target: events.TargetAll, Type: events.StartGame, Data: map[string]any{}}, nil
}

func (c *Controller) postStart() {
	if c.options.GameDuration <= 0 {
		return
	}
	ends := c.session.StartedAt.Add(time.Duration(c.options.GameDuration) * time.Second)
	c.gameEndsAt = &ends
	duration := float64(c.options.GameDuration)
	for _, comp := range c.players.Competitors() {
		comp.SetCompetitorTimeLeft(duration)
	}
}

// gameOver commits the playing-to-voting transition only once both
// repository calls succeed: a MarkSessionFinished or SaveResults failure
// returns before c.state (or c.session.FinishedAt) is touched, so the
// controller stays in the playing stage and the next stage check calls
// gameOver again. Winner flags are already marked when SaveResults fails,
// and a successful MarkSessionFinished is not undone; the Postgres
// repository refuses a second MarkSessionFinished for the same session, so
// after a SaveResults failure every later attempt fails at that call.
func (c *Controller) gameOver(ctx context.Context) (events.Out, error) {
	if err := c.repo.MarkSessionFinished(ctx, c.sessionID); err != nil {
		return events.Out{}, err
	}
	c.markWinners()
	if err := c.players.SaveResults(ctx, c.repo, c.sessionID); err != nil {
		return events.Out{}, fmt.Errorf("persist results: %w", err)
	}
	c.state = StateVoting
	now := c.now()
	c.session.FinishedAt = &now
	return events.Out{Target: events.TargetAll, Type: events.GameOver, Data: c.players.ResultsList()}, nil
}

func (c *Controller) markWinners() {
	competitors := c.players.Competitors()
	if len(competitors) == 0 {
		return
	}
	switch c.options.WinCondition {
	case WinBestScore:
		max := competitors[0].CompetitorScore()
		for _, comp := range competitors {
			if comp.CompetitorScore() > max {
				max = comp.CompetitorScore()
			}
		}
		for _, comp := range competitors {
			comp.SetCompetitorWinner(comp.CompetitorScore() == max)
		}
	case WinBestTime:
		max := competitors[0].CompetitorTimeLeft()
		for _, comp := range competitors {
			if comp.CompetitorTimeLeft() > max {
				max = comp.CompetitorTimeLeft()
			}
		}
		for _, comp := range competitors {
			comp.SetCompetitorWinner(comp.CompetitorTimeLeft() == max)
		}
	case WinSurvived:
		for _, comp := range competitors {
			comp.SetCompetitorWinner(!comp.CompetitorIsOut())
		}
	}
	if len(competitors) == 1 {
		competitors[0].SetCompetitorWinner(true)
	}
}

func (c *Controller) createNewGame(ctx context.Context) (events.Out, error) {
	votes := c.players.Votes()
	winningLabel := pickWinningLabel(votes, c.modesAvailable)
	newMode, _ := models.ModeForLabel(winningLabel)

	newSession, err := c.repo.CreateSuccessorSession(ctx, c.session, newMode)
	if err != nil {
		return events.Out{}, err
	}
	id := newSession.ID
	c.newSessionID = &id
	c.state = StateTerminated
	return events.Out{Target: events.TargetAll, Type: events.NewGame, Data: id.String()}, nil
}

// pickWinningLabel returns the mode label with the most votes, breaking
// ties uniformly at random among the tied labels.
func pickWinningLabel(votes map[string]int, available []string) string {
	best := 0
	for _, label := range available {
		if votes[label] > best {
			best = votes[label]
		}
	}
	var tied []string
	for _, label := range available {
		if votes[label] == best {
			tied = append(tied, label)
		}
	}
	if len(tied) == 1 {
		return tied[0]
	}
	return tied[rand.IntN(len(tied))]
}

// --- event construction ---

func (c *Controller) initialStateEvent(ctx context.Context, lp *LocalPlayer) events.Out {
	wordList, _ := c.provider.Words(ctx)
	data := map[string]any{
		"player": c.players.snapshotPlayer(lp, false),
		"words":  wordList,
	}
	for k, v := range c.players.Snapshot(false) {
		data[k] = v
	}
	return events.Out{Target: events.TargetPlayer, Type: events.InitialState, Data: data}
}

func (c *Controller) playersUpdateEvent() events.Out {
	return events.Out{Target: events.TargetAll, Type: events.PlayersUpdate, Data: c.players.Snapshot(false)}
}

func (c *Controller) gameBeginsEvent() events.Out {
	return events.Out{Target: events.TargetAll, Type: events.GameBegins, Data: c.options.StartDelaySeconds}
}

func (c *Controller) newWordEvent(ctx context.Context) (events.Out, error) {
	word, err := c.provider.NextWord(ctx)
	if err != nil {
		return events.Out{}, err
	}
	return events.Out{Target: events.TargetAll, Type: events.NewWord, Data: word}, nil
}

type voteTally struct {
	Mode      string `json:"mode"`
	VoteCount int    `json:"voteCount"`
}

func (c *Controller) votesUpdateEvent() events.Out {
	votes := c.players.Votes()
	tally := make([]voteTally, 0, len(c.modesAvailable))
	for _, label := range c.modesAvailable {
		tally = append(tally, voteTally{Mode: label, VoteCount: votes[label]})
	}
	return events.Out{Target: events.TargetAll, Type: events.VotesUpdate, Data: tally}
}

func (c *Controller) modesAvailableEvent() events.Out {
	return events.Out{Target: events.TargetPlayer, Type: events.ModesAvailable, Data: c.modesAvailable}
}
