package simulator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/lox/blackjack/internal/deck"
	"github.com/lox/blackjack/internal/game"
	"github.com/lox/blackjack/internal/statistics"
)

// RoomID is the room every simulation plays in
const RoomID = "simulation"

// Config holds configuration for running simulations
type Config struct {
	Rounds   int
	Players  int
	Strategy string // A name from StrategyNames, or "mixed"
	Bet      int
	Seed     int64
	Timeout  time.Duration
	Table    game.RoomConfig // MaxPlayers is taken from Players
	Logger   *log.Logger

	// Subscriber, when set, receives every room event the simulation
	// produces, e.g. a ledger recorder
	Subscriber game.EventSubscriber
}

// Result is what a finished simulation reports
type Result struct {
	Stats         *statistics.Statistics
	RoundsPlayed  int
	Strategies    []string // Strategy per seat
	FinalPurses   map[string]int
	StoppedReason string // Empty when every round was played
}

// Simulator plays scripted blackjack rounds against the engine
type Simulator struct {
	config Config
}

// New creates a new simulator with the given configuration
func New(config Config) *Simulator {
	if config.Logger == nil {
		config.Logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	if config.Table == (game.RoomConfig{}) {
		config.Table = game.DefaultRoomConfig()
	}
	if config.Bet == 0 {
		config.Bet = config.Table.MinBet
	}
	if config.Strategy == "" {
		config.Strategy = "basic"
	}
	return &Simulator{config: config}
}

// Validate checks the configuration before a run
func (c Config) Validate() error {
	if c.Rounds < 1 {
		return fmt.Errorf("rounds must be at least 1, got %d", c.Rounds)
	}
	if c.Players < 1 {
		return fmt.Errorf("players must be at least 1, got %d", c.Players)
	}
	if c.Bet < 1 {
		return fmt.Errorf("bet must be at least 1, got %d", c.Bet)
	}
	return nil
}

// Run plays up to Config.Rounds rounds and returns the tallied results. A
// run stops early once no player can cover the bet.
func (s *Simulator) Run(ctx context.Context) (*Result, error) {
	cfg := s.config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	players, strategies, err := s.seatPlayers()
	if err != nil {
		return nil, err
	}

	table := cfg.Table
	table.MaxPlayers = cfg.Players
	engine := game.NewEngine(cfg.Logger,
		game.WithSeed(cfg.Seed),
		game.WithRoomDefaults(table),
		game.WithMaxPlayersLimit(max(cfg.Players, game.DefaultMaxPlayersLimit)),
	)
	if cfg.Subscriber != nil {
		unsubscribe := engine.Events().Subscribe(cfg.Subscriber)
		defer unsubscribe()
	}

	if _, err := engine.CreateRoom(RoomID, players[0], cfg.Players); err != nil {
		return nil, err
	}
	for _, p := range players[1:] {
		if _, err := engine.JoinRoom(RoomID, p); err != nil {
			return nil, err
		}
	}

	result := &Result{
		Stats:      &statistics.Statistics{},
		Strategies: make([]string, len(strategies)),
	}
	for i, st := range strategies {
		result.Strategies[i] = st.Name()
	}

	for round := 1; round <= cfg.Rounds; round++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("simulation stopped at round %d: %w", round, err)
		}

		hands, err := s.playRound(engine, players, strategies)
		if errors.Is(err, errNoBets) {
			result.StoppedReason = "no player can cover the bet"
			cfg.Logger.Info("Stopping simulation", "round", round, "reason", result.StoppedReason)
			break
		}
		if err != nil {
			return nil, fmt.Errorf("round %d: %w", round, err)
		}

		for _, h := range hands {
			result.Stats.Add(h)
		}
		result.RoundsPlayed++
	}

	snap, err := engine.GetRoom(RoomID)
	if err != nil {
		return nil, err
	}
	result.FinalPurses = make(map[string]int, len(snap.Players))
	for _, p := range snap.Players {
		result.FinalPurses[p.ID] = p.Purse
	}

	if result.Stats.Hands > 0 {
		if err := result.Stats.Validate(); err != nil {
			return nil, fmt.Errorf("statistics validation failed: %w", err)
		}
	}
	return result, nil
}

func (s *Simulator) seatPlayers() ([]string, []Strategy, error) {
	cfg := s.config
	players := make([]string, cfg.Players)
	strategies := make([]Strategy, cfg.Players)

	for i := range players {
		players[i] = fmt.Sprintf("player-%d", i+1)

		name := cfg.Strategy
		if name == "mixed" {
			name = mixedStrategies[i%len(mixedStrategies)]
		}
		// Each seat gets its own source so seat order does not change the coin flips
		st, err := ParseStrategy(name, deck.NewRand(cfg.Seed+int64(i)+1))
		if err != nil {
			return nil, nil, err
		}
		strategies[i] = st
	}
	return players, strategies, nil
}

var errNoBets = errors.New("no bets placed")

// playRound drives one round from betting to settlement
func (s *Simulator) playRound(engine *game.Engine, players []string, strategies []Strategy) ([]statistics.HandResult, error) {
	bet := s.config.Bet

	snap, err := engine.StartRound(RoomID, players[0])
	if err != nil {
		return nil, err
	}

	betting := 0
	for _, p := range snap.Players {
		if p.Purse < bet {
			continue
		}
		if _, err := engine.PlaceBet(RoomID, p.ID, bet); err != nil {
			return nil, err
		}
		betting++
	}
	if betting == 0 {
		return nil, errNoBets
	}

	snap, err = engine.DealInitial(RoomID)
	if err != nil {
		return nil, err
	}

	seats := make(map[string]int, len(players))
	for i, p := range players {
		seats[p] = i
	}

	for snap.Status == game.StatusPlayerTurns {
		view, _ := snap.Player(snap.Turn)
		action := strategies[seats[snap.Turn]].Decide(view.Hand, snap.Dealer.Cards[0])
		s.config.Logger.Debug("Scripted action", "player", snap.Turn, "hand", game.Hand(view.Hand), "action", action)

		if snap, err = engine.PlayerAction(RoomID, snap.Turn, action); err != nil {
			return nil, err
		}
	}

	if snap, err = engine.DealerPlay(RoomID); err != nil {
		return nil, err
	}

	bets := make(map[string]int, len(snap.Players))
	for _, p := range snap.Players {
		bets[p.ID] = p.Bet
	}

	outcomes, settled, err := engine.Settle(RoomID)
	if err != nil {
		return nil, err
	}

	hands := make([]statistics.HandResult, 0, len(outcomes))
	for _, id := range settled.PlayerIDs() {
		o, ok := outcomes[id]
		if !ok {
			continue
		}
		hands = append(hands, statistics.HandResult{
			Player:  id,
			Seat:    seats[id] + 1,
			Round:   settled.Round,
			Bet:     bets[id],
			Outcome: o,
		})
	}
	return hands, nil
}

// Describe names the strategy line-up, e.g. "mixed(basic,dealer,random)"
func (r *Result) Describe(strategy string) string {
	if strategy == "mixed" {
		return fmt.Sprintf("mixed(%s)", strings.Join(r.Strategies, ","))
	}
	return strategy
}

// PrintSummary writes a summary of simulation results to w
func PrintSummary(w io.Writer, r *Result, strategy string) {
	stats := r.Stats
	low, high := stats.ConfidenceInterval95()

	fmt.Fprintf(w, "\n=== RESULTS: %s ===\n", r.Describe(strategy))
	fmt.Fprintf(w, "Rounds played: %d\n", r.RoundsPlayed)
	fmt.Fprintf(w, "Hands settled: %d\n", stats.Hands)
	if r.StoppedReason != "" {
		fmt.Fprintf(w, "Stopped early: %s\n", r.StoppedReason)
	}
	if stats.Hands == 0 {
		return
	}

	fmt.Fprintf(w, "\n=== NET CHIPS PER HAND ===\n")
	fmt.Fprintf(w, "Mean: %.4f\n", stats.Mean())
	fmt.Fprintf(w, "Median: %.4f\n", stats.Median())
	fmt.Fprintf(w, "Std Dev: %.4f\n", stats.StdDev())
	fmt.Fprintf(w, "95%% CI: [%.4f, %.4f]\n", low, high)
	fmt.Fprintf(w, "Player edge: %.2f%% of %d wagered\n", stats.PlayerEdge()*100, stats.Wagered)
	fmt.Fprintf(w, "Biggest win: %d, biggest loss: %d\n", stats.BiggestWin, stats.BiggestLoss)

	fmt.Fprintf(w, "\n=== OUTCOMES ===\n")
	for _, o := range []game.Outcome{game.OutcomeBlackjackWin, game.OutcomeWin, game.OutcomePush, game.OutcomeLoss, game.OutcomeBust} {
		fmt.Fprintf(w, "%-14s %6d (%5.1f%%) net %+.0f\n", o, stats.Outcomes[o], stats.Rate(o)*100, stats.OutcomeNet[o])
	}

	fmt.Fprintf(w, "\n=== SEATS ===\n")
	for seat := 1; seat <= len(r.Strategies); seat++ {
		ps, ok := stats.Seats[seat]
		if !ok {
			continue
		}
		id := fmt.Sprintf("player-%d", seat)
		fmt.Fprintf(w, "Seat %d (%s): %d hands, %.3f per hand, purse %d\n",
			seat, r.Strategies[seat-1], ps.Hands, stats.SeatMean(seat), r.FinalPurses[id])
	}
}
