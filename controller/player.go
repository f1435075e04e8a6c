package controller

import (
	"context"

	"github.com/google/uuid"
	"github.com/lab1702/typingserver/models"
	"github.com/lab1702/typingserver/words"
)

// Competitor is whatever a win condition and tick decay operate on: a
// LocalPlayer when team mode is off, a LocalTeam when it is on.
type Competitor interface {
	CompetitorScore() int
	CompetitorTimeLeft() float64
	SetCompetitorTimeLeft(float64)
	CompetitorIsOut() bool
	SetCompetitorOut(bool)
	CompetitorIsWinner() bool
	SetCompetitorWinner(bool)
}

// LocalPlayer is the per-session volatile record for one participant,
// distinct from their durable profile (models.Player).
type LocalPlayer struct {
	Record              *models.Player
	DisplayName         string
	OriginalDisplayName string
	Score               int
	TotalWordLength     int
	Speed               float64
	CorrectWords        int
	IncorrectWords      int
	TimeLeft            *float64 // nullable until the game starts
	Ready               bool
	Out                 bool
	Winner              *bool // nullable until results exist
	TeamName            string
	VotedFor            string // empty means no vote cast

	cursor *playerWordCursor
}

func newLocalPlayer(record *models.Player, provider *words.Provider) *LocalPlayer {
	return &LocalPlayer{
		Record:              record,
		DisplayName:         record.DisplayName,
		OriginalDisplayName: record.DisplayName,
		cursor:              &playerWordCursor{provider: provider},
	}
}

func (p *LocalPlayer) ID() uuid.UUID { return p.Record.ID }

// NextExpectedWord consumes and returns the player's next expected word,
// advancing their independent position in the shared word list.
func (p *LocalPlayer) NextExpectedWord(ctx context.Context) (string, error) {
	return p.cursor.next(ctx)
}

func (p *LocalPlayer) HasVoted() bool { return p.VotedFor != "" }

func (p *LocalPlayer) MistakeRatio() float64 {
	total := p.CorrectWords + p.IncorrectWords
	if total == 0 {
		return 0
	}
	return float64(p.IncorrectWords) / float64(total)
}

func (p *LocalPlayer) IsWinner() bool { return p.Winner != nil && *p.Winner }

func (p *LocalPlayer) CompetitorScore() int { return p.Score }

func (p *LocalPlayer) CompetitorTimeLeft() float64 {
	if p.TimeLeft == nil {
		return 0
	}
	return *p.TimeLeft
}

func (p *LocalPlayer) SetCompetitorTimeLeft(v float64) { p.TimeLeft = &v }

func (p *LocalPlayer) CompetitorIsOut() bool { return p.Out }

func (p *LocalPlayer) SetCompetitorOut(v bool) { p.Out = v }

func (p *LocalPlayer) CompetitorIsWinner() bool { return p.IsWinner() }

func (p *LocalPlayer) SetCompetitorWinner(v bool) { p.Winner = &v }

// playerWordCursor is the one-shot iterator positioned at a player's next
// expected word: a plain index into the shared, ever-growing word list.
type playerWordCursor struct {
	provider *words.Provider
	pos      int
}

func (c *playerWordCursor) next(ctx context.Context) (string, error) {
	if err := c.provider.EnsureLength(ctx, c.pos+1); err != nil {
		return "", err
	}
	all, err := c.provider.Words(ctx)
	if err != nil {
		return "", err
	}
	w := all[c.pos]
	c.pos++
	return w, nil
}

// LocalTeam holds the red/blue roster when team mode is enabled, deriving
// its aggregate state from its current members.
type LocalTeam struct {
	Name     string
	order    []*LocalPlayer
	members  map[uuidKey]*LocalPlayer
	timeLeft *float64
	out      bool
	winner   *bool
}

type uuidKey = [16]byte

func newLocalTeam(name string) *LocalTeam {
	return &LocalTeam{Name: name, members: make(map[uuidKey]*LocalPlayer)}
}

func (t *LocalTeam) addPlayer(p *LocalPlayer) {
	key := uuidKey(p.ID())
	if _, ok := t.members[key]; ok {
		return
	}
	t.members[key] = p
	t.order = append(t.order, p)
}

func (t *LocalTeam) removePlayer(p *LocalPlayer) {
	key := uuidKey(p.ID())
	if _, ok := t.members[key]; !ok {
		return
	}
	delete(t.members, key)
	for i, m := range t.order {
		if uuidKey(m.ID()) == key {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
}

func (t *LocalTeam) Players() []*LocalPlayer { return t.order }

func (t *LocalTeam) Count() int { return len(t.order) }

func (t *LocalTeam) Score() int {
	total := 0
	for _, p := range t.order {
		total += p.Score
	}
	return total
}

func (t *LocalTeam) Speed() float64 {
	if len(t.order) == 0 {
		return 0
	}
	total := 0.0
	for _, p := range t.order {
		total += p.Speed
	}
	return total / float64(len(t.order))
}

func (t *LocalTeam) IsOut() bool {
	if len(t.order) == 0 {
		return t.out
	}
	for _, p := range t.order {
		if !p.Out {
			return false
		}
	}
	return true
}

func (t *LocalTeam) IsWinner() bool {
	for _, p := range t.order {
		if p.IsWinner() {
			return true
		}
	}
	return t.winner != nil && *t.winner
}

func (t *LocalTeam) CompetitorScore() int { return t.Score() }

func (t *LocalTeam) CompetitorTimeLeft() float64 {
	if t.timeLeft == nil {
		return 0
	}
	return *t.timeLeft
}

func (t *LocalTeam) SetCompetitorTimeLeft(v float64) { t.timeLeft = &v }

func (t *LocalTeam) CompetitorIsOut() bool { return t.IsOut() }

func (t *LocalTeam) SetCompetitorOut(v bool) {
	t.out = v
	for _, p := range t.order {
		p.Out = v
	}
}

func (t *LocalTeam) CompetitorIsWinner() bool { return t.IsWinner() }

func (t *LocalTeam) SetCompetitorWinner(v bool) {
	t.winner = &v
	for _, p := range t.order {
		p.SetCompetitorWinner(v)
	}
}
