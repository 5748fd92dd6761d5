package simulation

import (
	"encoding/binary"
	"hash/fnv"
	"math/rand/v2"

	"github.com/vovakirdan/lockstep/internal/core"
)

// Direction represents a snake's movement direction.
type Direction int

const (
	DirRight Direction = iota
	DirDown
	DirLeft
	DirUp
)

func (d Direction) String() string {
	switch d {
	case DirRight:
		return "right"
	case DirDown:
		return "down"
	case DirLeft:
		return "left"
	case DirUp:
		return "up"
	default:
		return "unknown"
	}
}

// opposite reports whether two directions are opposite.
func (d Direction) opposite(o Direction) bool {
	return (d+2)%4 == o
}

// Point represents a grid cell.
type Point struct {
	X, Y int
}

// respawnDelay is how long a crashed snake waits before re-entering.
const respawnDelay = core.DefaultTicRate

// snakeLayouts are the arenas; the ruleset's map number picks one.
// '#' is a wall; the outer border is always solid.
var snakeLayouts = [][]string{
	{
		"################################################",
		"#                                              #",
		"#                                              #",
		"#                                              #",
		"#                                              #",
		"#                                              #",
		"#                                              #",
		"#                                              #",
		"#                                              #",
		"#                                              #",
		"#                                              #",
		"#                                              #",
		"#                                              #",
		"#                                              #",
		"#                                              #",
		"#                                              #",
		"#                                              #",
		"#                                              #",
		"#                                              #",
		"#                                              #",
		"#                                              #",
		"#                                              #",
		"#                                              #",
		"################################################",
	},
	{
		"################################################",
		"#                                              #",
		"#                                              #",
		"#                                              #",
		"#                                              #",
		"#                                              #",
		"#          ##########################          #",
		"#                                              #",
		"#                                              #",
		"#                                              #",
		"#                                              #",
		"#                                              #",
		"#                                              #",
		"#                                              #",
		"#                                              #",
		"#                                              #",
		"#                                              #",
		"#          ##########################          #",
		"#                                              #",
		"#                                              #",
		"#                                              #",
		"#                                              #",
		"#                                              #",
		"################################################",
	},
	{
		"################################################",
		"#                                              #",
		"#                                              #",
		"#                                              #",
		"#                                              #",
		"#                       #                      #",
		"#                       #                      #",
		"#                       #                      #",
		"#                       #                      #",
		"#                       #                      #",
		"#                                              #",
		"#           ###################                #",
		"#                                              #",
		"#                       #                      #",
		"#                       #                      #",
		"#                       #                      #",
		"#                       #                      #",
		"#                       #                      #",
		"#                                              #",
		"#                                              #",
		"#                                              #",
		"#                                              #",
		"#                                              #",
		"################################################",
	},
}

// Spawn points per slot, with their starting directions. Each snake starts
// three cells long, growing back from the head.
var snakeSpawns = [core.MaxPlayers]struct {
	head Point
	dir  Direction
}{
	{Point{X: 6, Y: 3}, DirRight},
	{Point{X: 41, Y: 20}, DirLeft},
	{Point{X: 41, Y: 3}, DirDown},
	{Point{X: 6, Y: 20}, DirUp},
}

// Snake is one player's state in the snake simulation.
type Snake struct {
	Body      []Point // head at index 0
	Direction Direction
	Score     int
	Deaths    int

	nextDir   Direction
	growing   bool
	alive     bool
	respawnIn int // tics until respawn while dead
}

// Head returns the head cell, or (-1,-1) while the snake is dead.
func (s *Snake) Head() Point {
	if !s.alive || len(s.Body) == 0 {
		return Point{X: -1, Y: -1}
	}
	return s.Body[0]
}

// Alive reports whether the snake is on the board.
func (s *Snake) Alive() bool {
	return s.alive
}

// SnakeGame is multiplayer snake: each in-game slot steers a snake around an
// arena, competing for the same food. Collisions with walls or any snake body
// remove the crashed snake until it respawns.
type SnakeGame struct {
	rules          core.Ruleset
	rng            *rand.Rand
	tics           int
	moveEveryTicks int
	moveTicker     int

	mapWidth  int
	mapHeight int
	walls     map[Point]bool
	food      Point
	snakes    [core.MaxPlayers]Snake

	sum uint64
	buf []byte
}

// NewSnake creates an unseeded snake game; call Reset before use.
func NewSnake() *SnakeGame {
	return &SnakeGame{}
}

func init() {
	Register("snake", func() Simulation {
		return NewSnake()
	})
}

// ID implements Simulation.
func (g *SnakeGame) ID() string { return "snake" }

// Title implements Simulation.
func (g *SnakeGame) Title() string { return "Snake" }

// Reset loads the arena for the ruleset and places food from the seed.
// Snakes enter the board on the first tic their slot is in game.
func (g *SnakeGame) Reset(rt core.RuntimeConfig, rules core.Ruleset) {
	g.rules = rules
	g.rng = rand.New(rand.NewPCG(uint64(rt.Seed), 0x5e5e))
	g.tics = 0
	g.moveTicker = 0
	g.moveEveryTicks = moveInterval(rules)

	layout := snakeLayouts[(int(rules.Map)+len(snakeLayouts)-1)%len(snakeLayouts)]
	g.walls = make(map[Point]bool)
	g.mapHeight = len(layout)
	g.mapWidth = 0
	for y, row := range layout {
		g.mapWidth = max(g.mapWidth, len(row))
		for x, ch := range row {
			if ch == '#' {
				g.walls[Point{X: x, Y: y}] = true
			}
		}
	}

	for i := range g.snakes {
		g.snakes[i] = Snake{}
	}
	g.spawnFood()
	g.sum = fnv.New64a().Sum64()
}

// moveInterval returns the tics between moves for the skill level.
func moveInterval(rules core.Ruleset) int {
	n := 6 - int(rules.Skill)
	if rules.Fast {
		n /= 2
	}
	return max(1, n)
}

// RunTic applies one frame of commands.
func (g *SnakeGame) RunTic(frame core.TicFrame) {
	g.tics++

	for i := range g.snakes {
		s := &g.snakes[i]
		if !frame.InGame[i] {
			if s.alive {
				s.alive = false
				s.Body = nil
			}
			continue
		}
		if !s.alive {
			if s.respawnIn > 0 {
				s.respawnIn--
				continue
			}
			g.spawnSnake(i)
		}
		g.processInput(s, frame.Cmds[i])
	}

	g.moveTicker++
	if g.moveTicker >= g.moveEveryTicks {
		g.moveTicker = 0
		for i := range g.snakes {
			if g.snakes[i].alive {
				g.moveSnake(i)
			}
		}
	}

	g.fold()
}

// processInput buffers a direction change. Side and forward moves select an
// absolute direction; a turn rotates relative to the buffered one.
func (g *SnakeGame) processInput(s *Snake, cmd core.Ticcmd) {
	if cmd.Buttons&core.BTSpecial != 0 {
		return
	}
	newDir := s.nextDir

	switch {
	case cmd.SideMove > 0:
		newDir = DirRight
	case cmd.SideMove < 0:
		newDir = DirLeft
	case cmd.ForwardMove > 0:
		newDir = DirUp
	case cmd.ForwardMove < 0:
		newDir = DirDown
	case cmd.AngleTurn > 0:
		newDir = (s.nextDir + 3) % 4
	case cmd.AngleTurn < 0:
		newDir = (s.nextDir + 1) % 4
	}

	// Prevent instant reversal
	if !newDir.opposite(s.Direction) {
		s.nextDir = newDir
	}
}

func (g *SnakeGame) spawnSnake(slot int) {
	sp := snakeSpawns[slot]
	back := (sp.dir + 2) % 4
	body := make([]Point, 3)
	p := sp.head
	for i := range body {
		body[i] = p
		p = step(p, back)
	}
	s := &g.snakes[slot]
	s.Body = body
	s.Direction = sp.dir
	s.nextDir = sp.dir
	s.growing = false
	s.alive = true
}

// moveSnake moves one snake a cell in its buffered direction.
func (g *SnakeGame) moveSnake(slot int) {
	s := &g.snakes[slot]
	s.Direction = s.nextDir
	newHead := step(s.Body[0], s.Direction)

	if g.blocked(newHead, slot) {
		g.crash(slot)
		return
	}

	s.Body = append([]Point{newHead}, s.Body...)

	if newHead == g.food {
		s.Score++
		s.growing = true
		g.spawnFood()
	}

	// Remove tail unless growing
	if s.growing {
		s.growing = false
	} else {
		s.Body = s.Body[:len(s.Body)-1]
	}
}

// blocked reports whether p is a wall or occupied by a snake. The mover's own
// tail is free unless it is about to grow, since it moves away this step.
func (g *SnakeGame) blocked(p Point, mover int) bool {
	if g.walls[p] || p.X < 0 || p.X >= g.mapWidth || p.Y < 0 || p.Y >= g.mapHeight {
		return true
	}
	for i := range g.snakes {
		s := &g.snakes[i]
		if !s.alive {
			continue
		}
		body := s.Body
		if i == mover && !s.growing {
			body = body[:len(body)-1]
		}
		for _, seg := range body {
			if seg == p {
				return true
			}
		}
	}
	return false
}

func (g *SnakeGame) crash(slot int) {
	s := &g.snakes[slot]
	s.alive = false
	s.Body = nil
	s.Deaths++
	s.respawnIn = respawnDelay
	if g.rules.Respawn {
		s.respawnIn = 0
	}
}

// spawnFood places food at a random empty cell.
func (g *SnakeGame) spawnFood() {
	var emptyCells []Point
	for y := 1; y < g.mapHeight-1; y++ {
		for x := 1; x < g.mapWidth-1; x++ {
			p := Point{X: x, Y: y}
			if !g.walls[p] && !g.occupied(p) {
				emptyCells = append(emptyCells, p)
			}
		}
	}

	if len(emptyCells) == 0 {
		g.food = Point{X: -1, Y: -1}
		return
	}
	g.food = emptyCells[g.rng.IntN(len(emptyCells))]
}

func (g *SnakeGame) occupied(p Point) bool {
	for i := range g.snakes {
		for _, seg := range g.snakes[i].Body {
			if seg == p {
				return true
			}
		}
	}
	return false
}

func step(p Point, d Direction) Point {
	switch d {
	case DirUp:
		return Point{X: p.X, Y: p.Y - 1}
	case DirDown:
		return Point{X: p.X, Y: p.Y + 1}
	case DirLeft:
		return Point{X: p.X - 1, Y: p.Y}
	default:
		return Point{X: p.X + 1, Y: p.Y}
	}
}

// fold mixes the tic's visible state into the running checksum.
func (g *SnakeGame) fold() {
	h := fnv.New64a()
	b := binary.LittleEndian.AppendUint64(g.buf[:0], g.sum)
	b = binary.LittleEndian.AppendUint32(b, uint32(g.tics))
	b = binary.LittleEndian.AppendUint32(b, uint32(int32(g.food.X)))
	b = binary.LittleEndian.AppendUint32(b, uint32(int32(g.food.Y)))
	for i := range g.snakes {
		s := &g.snakes[i]
		head := s.Head()
		b = binary.LittleEndian.AppendUint32(b, uint32(int32(head.X)))
		b = binary.LittleEndian.AppendUint32(b, uint32(int32(head.Y)))
		b = append(b, byte(s.Direction), byte(len(s.Body)))
		b = binary.LittleEndian.AppendUint16(b, uint16(s.Score))
		b = binary.LittleEndian.AppendUint16(b, uint16(s.Deaths))
	}
	g.buf = b
	h.Write(b)
	g.sum = h.Sum64()
}

// Tics implements Simulation.
func (g *SnakeGame) Tics() int { return g.tics }

// Checksum implements Simulation.
func (g *SnakeGame) Checksum() uint64 { return g.sum }

// Snakes returns the player state. The bodies alias internal storage.
func (g *SnakeGame) Snakes() [core.MaxPlayers]Snake { return g.snakes }

// Food returns the food cell.
func (g *SnakeGame) Food() Point { return g.food }
