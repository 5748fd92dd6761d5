package core

// TicFrame is everything the simulation needs to run one tic: one command per
// player slot and which slots are in the game.
type TicFrame struct {
	Tic    int
	Cmds   [MaxPlayers]Ticcmd
	InGame [MaxPlayers]bool
}
