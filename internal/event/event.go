package event

import (
	"encoding/json"
	"time"
)

// Type identifies an event kind.
type Type string

const (
	AuctionStarted   Type = "auction.started"
	AuctionResumed   Type = "auction.resumed"
	AuctionPaused    Type = "auction.paused"
	AuctionAborted   Type = "auction.aborted"
	AuctionCompleted Type = "auction.completed"
	StateChanged     Type = "auction.state_changed"
	NoteAdded        Type = "auction.note_added"

	LotOpened  Type = "lot.opened"
	BidPlaced  Type = "lot.bid_placed"
	LotSold    Type = "lot.sold"
	LotUnsold  Type = "lot.unsold"
	LotSkipped Type = "lot.skipped"
)

// Event represents a single domain event. AggregateID is the auction run id.
type Event struct {
	ID          string          `json:"id" db:"id"`
	AggregateID string          `json:"aggregate_id" db:"aggregate_id"`
	Type        Type            `json:"type" db:"type"`
	Data        json.RawMessage `json:"data" db:"data"`
	Version     int             `json:"version" db:"version"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}

// AuctionStartedData is the payload for AuctionStarted and AuctionResumed events.
type AuctionStartedData struct {
	ChannelID    string `json:"channel_id"`
	TotalPlayers int    `json:"total_players"`
	TierIndex    int    `json:"tier_index"`
	PlayerIndex  int    `json:"player_index"`
}

// StateChangedData is the payload for StateChanged events.
type StateChangedData struct {
	Field string `json:"field"`
	Value any    `json:"value"`
}

// NoteAddedData is the payload for NoteAdded events.
type NoteAddedData struct {
	Text string `json:"text"`
}

// LotOpenedData is the payload for LotOpened and LotSkipped events.
type LotOpenedData struct {
	PlayerID   int64  `json:"player_id"`
	PlayerName string `json:"player_name,omitempty"`
	Tier       int    `json:"tier"`
	Reason     string `json:"reason,omitempty"`
}

// BidPlacedData is the payload for BidPlaced events.
type BidPlacedData struct {
	CaptainID string `json:"captain_id"`
	ActorID   string `json:"actor_id"`
	Amount    int    `json:"amount"`
}

// LotSettledData is the payload for LotSold and LotUnsold events.
type LotSettledData struct {
	PlayerID   int64  `json:"player_id"`
	PlayerName string `json:"player_name"`
	Tier       int    `json:"tier"`
	CaptainID  string `json:"captain_id,omitempty"`
	Cost       int    `json:"cost"`
}

// AuctionEndedData is the payload for AuctionPaused, AuctionAborted and
// AuctionCompleted events.
type AuctionEndedData struct {
	PlayersSold int `json:"players_sold"`
	TotalBids   int `json:"total_bids"`
	TotalSpent  int `json:"total_spent"`
}
