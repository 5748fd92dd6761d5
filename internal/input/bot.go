package input

import (
	"math/rand/v2"

	"github.com/vovakirdan/lockstep/internal/core"
)

var botMoves = []Action{
	ActionNone,
	ActionForward,
	ActionBack,
	ActionStrafeLeft,
	ActionStrafeRight,
}

var botTurns = []Action{ActionNone, ActionTurnLeft, ActionTurnRight}

// Bot plays by pressing pseudo-random actions on its own Producer. The same
// seed always yields the same command sequence, which makes it suitable for
// soak runs and headless peers.
type Bot struct {
	p    *Producer
	rng  *rand.Rand
	move Action
	turn Action
	left int // tics until the next change of direction
}

// NewBot creates a bot with a deterministic command stream.
func NewBot(seed uint64, lowResTurn bool) *Bot {
	return &Bot{
		p:   NewProducer(lowResTurn),
		rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

// Sample returns the bot's command for the next tic.
func (b *Bot) Sample() core.Ticcmd {
	if b.left <= 0 {
		b.change()
	}
	b.left--

	if b.rng.IntN(8) == 0 {
		b.p.Press(ActionFire)
	}
	if b.rng.IntN(64) == 0 {
		b.p.SelectWeapon(1 + b.rng.IntN(7))
	}
	return b.p.Sample()
}

func (b *Bot) change() {
	if b.move != ActionNone {
		b.p.Release(b.move)
	}
	if b.turn != ActionNone {
		b.p.Release(b.turn)
	}
	b.p.Release(ActionRun)

	b.move = botMoves[b.rng.IntN(len(botMoves))]
	b.turn = botTurns[b.rng.IntN(len(botTurns))]
	if b.move != ActionNone {
		b.p.Hold(b.move)
	}
	if b.turn != ActionNone {
		b.p.Hold(b.turn)
	}
	if b.rng.IntN(2) == 0 {
		b.p.Hold(ActionRun)
	}
	b.left = 8 + b.rng.IntN(24)
}
