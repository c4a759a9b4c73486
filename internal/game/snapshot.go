package game

import "github.com/lox/blackjack/internal/deck"

// Snapshot is an immutable view of a room suitable for sending to players.
// The dealer's hole card is masked until the dealer's turn.
type Snapshot struct {
	RoomID        string       `json:"roomId"`
	Table         string       `json:"table"`
	Version       uint64       `json:"version"`
	HostID        string       `json:"hostId"`
	Status        Status       `json:"status"`
	Round         int          `json:"round"`
	MaxPlayers    int          `json:"maxPlayers"`
	MinBet        int          `json:"minBet"`
	MaxBet        int          `json:"maxBet,omitempty"`
	Players       []PlayerView `json:"players"`
	Dealer        DealerView   `json:"dealer"`
	Turn          string       `json:"turn,omitempty"`
	DeckRemaining int          `json:"deckRemaining"`
}

// PlayerView is one seat as shown in a snapshot
type PlayerView struct {
	ID          string       `json:"id"`
	Hand        []deck.Card  `json:"hand"`
	Score       int          `json:"score"`
	Soft        bool         `json:"soft,omitempty"`
	Blackjack   bool         `json:"blackjack,omitempty"`
	Status      PlayerStatus `json:"status"`
	Purse       int          `json:"purse"`
	Bet         int          `json:"bet"`
	LastOutcome Outcome      `json:"lastOutcome,omitempty"`
}

// DealerView is the dealer's hand as players may see it
type DealerView struct {
	Cards       []deck.Card `json:"cards"`
	HiddenCards int         `json:"hiddenCards,omitempty"`
	Score       int         `json:"score"`
	Revealed    bool        `json:"revealed"`
}

// Player returns the view for id
func (s Snapshot) Player(id string) (PlayerView, bool) {
	for _, p := range s.Players {
		if p.ID == id {
			return p, true
		}
	}
	return PlayerView{}, false
}

// OlderThan reports whether s is an earlier state of the same table than
// other
func (s Snapshot) OlderThan(other Snapshot) bool {
	return s.RoomID == other.RoomID && s.Table == other.Table && s.Version < other.Version
}

// PlayerIDs returns enrolled players in enrollment order
func (s Snapshot) PlayerIDs() []string {
	ids := make([]string, len(s.Players))
	for i, p := range s.Players {
		ids[i] = p.ID
	}
	return ids
}

// snapshot must be called with r.mu held
func (r *Room) snapshot() Snapshot {
	snap := Snapshot{
		RoomID:     r.id,
		Table:      r.table,
		Version:    r.version,
		HostID:     r.hostID,
		Status:     r.status,
		Round:      r.round,
		MaxPlayers: r.cfg.MaxPlayers,
		MinBet:     r.cfg.MinBet,
		MaxBet:     r.cfg.MaxBet,
		Players:    make([]PlayerView, 0, len(r.order)),
		Turn:       r.currentTurn(),
	}
	if r.deck != nil {
		snap.DeckRemaining = r.deck.Remaining()
	}

	for _, id := range r.order {
		s := r.seats[id]
		snap.Players = append(snap.Players, PlayerView{
			ID:          s.PlayerID,
			Hand:        append([]deck.Card(nil), s.Hand...),
			Score:       s.Hand.Score(),
			Soft:        s.Hand.IsSoft(),
			Blackjack:   s.Hand.IsBlackjack(),
			Status:      s.Status,
			Purse:       s.Purse,
			Bet:         s.Bet,
			LastOutcome: s.LastOutcome,
		})
	}

	snap.Dealer = r.dealerView()
	return snap
}

func (r *Room) dealerView() DealerView {
	if r.holeRevealed || len(r.dealer) < 2 {
		return DealerView{
			Cards:    append([]deck.Card(nil), r.dealer...),
			Score:    r.dealer.Score(),
			Revealed: r.holeRevealed,
		}
	}

	// The first card dealt to the dealer is the up card; the rest stay face down.
	up := r.dealer[:1]
	return DealerView{
		Cards:       append([]deck.Card(nil), up...),
		HiddenCards: len(r.dealer) - 1,
		Score:       up.Score(),
	}
}
