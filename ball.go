package ez

import "sync/atomic"

// noPlayer means the ball is caught and held by whichever player the
// last throw was addressed to.
const noPlayer = -1

// Ball is an atomic handoff token thrown between two or more players.
// Only the player currently holding the ball is allowed to access
// whatever resource the ball guards. Each player must poll with
// TryCatch to check whether the ball has been thrown to them yet.
//
// A throw carries release semantics and a successful catch carries
// acquire semantics, so everything the old holder wrote before
// ThrowTo is visible to the new holder after its catch.
type Ball struct {
	players  int32
	thrownTo atomic.Int32
}

// NewBall creates a ball for the given number of players, addressed to
// firstCatcher. players must be >= 2.
func NewBall(players, firstCatcher int) *Ball {
	if players < 2 {
		panic("players must be >= 2")
	}
	if firstCatcher < 0 || firstCatcher >= players {
		panic("first catcher out of range")
	}
	b := &Ball{players: int32(players)}
	b.thrownTo.Store(int32(firstCatcher))
	return b
}

// Player returns the handle for the player with the given fixed id.
// Each id must be used by at most one thread.
func (b *Ball) Player(id int) *Player {
	if id < 0 || id >= int(b.players) {
		panic("player id out of range")
	}
	return &Player{ball: b, id: int32(id)}
}

// Player is one participant's view of a Ball. Not safe for concurrent
// use; a Player belongs to exactly one thread.
type Player struct {
	ball *Ball
	id   int32
	have bool
}

// TryCatch attempts to catch the ball. Returns true if caught. Returns
// false if the ball is addressed to some other player, or spuriously
// if the CAS loses a race; keep polling and it will return true
// eventually once the ball has been thrown to this player.
//
// Calling TryCatch while already holding the ball is a caller error.
func (p *Player) TryCatch() bool {
	if p.have {
		panic("TryCatch while holding the ball")
	}
	if p.ball.thrownTo.CompareAndSwap(p.id, noPlayer) {
		p.have = true
	}
	return p.have
}

// ThrowTo throws the ball to the player with id c. Calling ThrowTo
// without holding the ball, or throwing to yourself, is a caller
// error.
func (p *Player) ThrowTo(c int) {
	if !p.have {
		panic("ThrowTo without holding the ball")
	}
	if int32(c) == p.id {
		panic("throw to self")
	}
	if c < 0 || c >= int(p.ball.players) {
		panic("catcher id out of range")
	}
	p.have = false
	p.ball.thrownTo.Store(int32(c))
}

// Have reports whether this player is currently holding the ball.
func (p *Player) Have() bool {
	return p.have
}

// Ensure catches the ball if it is not already held. Returns true if
// the player holds the ball afterwards.
func (p *Player) Ensure() bool {
	if !p.have {
		return p.TryCatch()
	}
	return true
}

// WithBall ensures the ball is held, runs fn, then throws to c.
// Does nothing and returns false if the ball could not be caught.
func (p *Player) WithBall(c int, fn func()) bool {
	if !p.Ensure() {
		return false
	}
	fn()
	p.ThrowTo(c)
	return true
}
