// Package game implements the blackjack table engine.
//
// The aggregate root is Room, which owns the deck, every participant's hand,
// the bets and purses, and the lifecycle state machine for one table. Rooms
// are kept in an Engine, which is the command API used by the server and the
// simulator.
//
// # Basic Usage
//
//	e := game.NewEngine(logger)
//	e.CreateRoom("r1", "alice", 2)
//	e.JoinRoom("r1", "bob")
//	e.StartRound("r1", "alice")
//	e.PlaceBet("r1", "alice", 10)
//	e.PlaceBet("r1", "bob", 25)
//	e.DealInitial("r1")
//	e.PlayerAction("r1", "alice", game.Stand)
//	e.PlayerAction("r1", "bob", game.Hit)
//	...
//	e.DealerPlay("r1")
//	outcomes, snap, err := e.Settle("r1")
//
// # Lifecycle
//
//	pre-game -> betting -> dealing -> player-turns -> dealer-turn -> settlement -> pre-game
//
// Any state can move to closed when the host closes the room. Commands that
// are not legal in the room's current state fail with ErrInvalidState and
// leave the room untouched.
//
// # Deterministic Testing
//
// Shuffling uses the engine's random source. Seed it with WithSeed, or hand
// StartRoundWithDeck a deck built from deck.FromCards to control every card:
//
//	d := deck.FromCards(deck.MustParseCards("Kh 9s 3d 7c 8h 5s"))
//	e.StartRoundWithDeck("r1", "alice", d)
//
// # Concurrency
//
// Each Room carries its own mutex and every command holds it for its whole
// duration, so commands on one room are serialized while different rooms
// proceed independently. Events are published after the room lock is
// released and carry immutable snapshots.
package game
