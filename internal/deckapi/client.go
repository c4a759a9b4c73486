// Package deckapi fetches shuffled shoes from a Deck of Cards API server
// (https://deckofcardsapi.com or a self-hosted copy).
package deckapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/lox/blackjack/internal/deck"
)

// DefaultBaseURL is the public Deck of Cards API
const DefaultBaseURL = "https://deckofcardsapi.com"

// ErrAPI indicates the deck service answered but refused the request
var ErrAPI = errors.New("deckapi: request failed")

// DeckInfo describes a deck held by the service
type DeckInfo struct {
	ID        string `json:"deck_id"`
	Shuffled  bool   `json:"shuffled"`
	Remaining int    `json:"remaining"`
}

type response struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	DeckInfo
	Cards []struct {
		Code string `json:"code"`
	} `json:"cards,omitempty"`
}

// Client talks to a Deck of Cards API server
type Client struct {
	baseURL string
	client  *http.Client
	logger  *log.Logger
}

// New creates a client for baseURL. An empty baseURL uses DefaultBaseURL.
func New(baseURL string, timeout time.Duration, logger *log.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		logger:  logger.WithPrefix("deckapi"),
	}
}

// NewShuffledDeck asks the service for count shuffled sets and draws the
// whole shoe so the room can deal from it locally
func (c *Client) NewShuffledDeck(ctx context.Context, count int, jokers bool) (*deck.Deck, error) {
	info, err := c.Shuffle(ctx, count, jokers)
	if err != nil {
		return nil, err
	}

	cards, _, err := c.Draw(ctx, info.ID, info.Remaining)
	if err != nil {
		return nil, err
	}
	if len(cards) != info.Remaining {
		return nil, fmt.Errorf("%w: deck %s drew %d of %d cards", ErrAPI, info.ID, len(cards), info.Remaining)
	}

	c.logger.Debug("Fetched remote deck", "deck", info.ID, "sets", count, "cards", len(cards))
	return deck.FromCards(cards), nil
}

// Shuffle creates and shuffles a new deck made of count sets
func (c *Client) Shuffle(ctx context.Context, count int, jokers bool) (DeckInfo, error) {
	if count < 1 {
		return DeckInfo{}, fmt.Errorf("deck count must be at least 1, got %d", count)
	}

	q := url.Values{}
	q.Set("deck_count", strconv.Itoa(count))
	if jokers {
		q.Set("jokers_enabled", "true")
	}

	var resp response
	if err := c.get(ctx, "/api/deck/new/shuffle/", q, &resp); err != nil {
		return DeckInfo{}, err
	}
	return resp.DeckInfo, nil
}

// Draw removes count cards from the top of a service-held deck
func (c *Client) Draw(ctx context.Context, deckID string, count int) ([]deck.Card, DeckInfo, error) {
	q := url.Values{}
	q.Set("count", strconv.Itoa(count))

	var resp response
	if err := c.get(ctx, "/api/deck/"+url.PathEscape(deckID)+"/draw/", q, &resp); err != nil {
		return nil, DeckInfo{}, err
	}

	cards := make([]deck.Card, 0, len(resp.Cards))
	for _, rc := range resp.Cards {
		card, err := deck.ParseCard(rc.Code)
		if err != nil {
			return nil, DeckInfo{}, fmt.Errorf("%w: deck %s: %v", ErrAPI, deckID, err)
		}
		cards = append(cards, card)
	}
	return cards, resp.DeckInfo, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out *response) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("deckapi: build request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("deckapi: GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("deckapi: read %s: %w", path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: GET %s returned %d", ErrAPI, path, resp.StatusCode)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("deckapi: decode %s: %w", path, err)
	}
	if !out.Success {
		msg := out.Error
		if msg == "" {
			msg = "success was false"
		}
		return fmt.Errorf("%w: GET %s: %s", ErrAPI, path, msg)
	}
	return nil
}
