package auction

import "slices"

// Status is the lifecycle phase of the global auction.
type Status string

const (
	StatusIdle     Status = "idle"
	StatusRunning  Status = "running"
	StatusPausing  Status = "pausing"
	StatusAborting Status = "aborting"
	// StatusPaused is the in-memory status of a run whose snapshot could not
	// be persisted.
	StatusPaused Status = "paused"
)

// Active reports whether a run is in progress, including one that is winding down.
func (s Status) Active() bool {
	return s == StatusRunning || s == StatusPausing || s == StatusAborting
}

// State is the single mutable auction state. JSON keys follow the snapshot layout.
type State struct {
	RunID             string `json:"runId,omitempty"`
	Status            Status `json:"status"`
	CurrentTierIndex  int    `json:"currentTierIndex"`
	CurrentTier       int    `json:"currentTier,omitempty"`
	CurrentPlayer     int64  `json:"currentPlayer,omitempty"`
	CurrentPlayerName string `json:"currentPlayerName,omitempty"`
	CurrentThread     string `json:"currentThreadId,omitempty"`
	CurrentChannel    string `json:"currentAuctionChannel,omitempty"`
	BiddingActive     bool   `json:"biddingActive"`
	TimeRemaining     int    `json:"timeRemaining"`
	// HighestBid is meaningful only when HighestBidderID is set.
	HighestBid      int      `json:"highestBid,omitempty"`
	HighestBidderID string   `json:"highestBidderId,omitempty"`
	TotalPlayers    int      `json:"totalPlayers"`
	Events          []string `json:"events"`
}

func defaultState() State {
	return State{Status: StatusIdle, Events: []string{}}
}

func (s State) clone() State {
	s.Events = slices.Clone(s.Events)
	if s.Events == nil {
		s.Events = []string{}
	}
	return s
}

// MVP is the single most expensive sale of a run.
type MVP struct {
	Name  string `json:"name"`
	Value int    `json:"value"`
	Tier  int    `json:"tier"`
	Team  string `json:"team"`
}

// Stats accumulates per-run statistics.
type Stats struct {
	TotalBids    int  `json:"totalBids"`
	TotalSpent   int  `json:"totalSpent"`
	PlayersSold  int  `json:"playersSold"`
	TotalPlayers int  `json:"totalPlayers"`
	MVP          *MVP `json:"mostValuablePlayer,omitempty"`
}

func (s Stats) clone() Stats {
	if s.MVP != nil {
		mvp := *s.MVP
		s.MVP = &mvp
	}
	return s
}

// BidDetail describes the current highest bid.
type BidDetail struct {
	Amount      int
	CaptainID   string
	CaptainName string
}

// Patch is a partial State write. Nil fields are left unchanged.
type Patch struct {
	Status            *Status
	CurrentTierIndex  *int
	CurrentTier       *int
	CurrentPlayer     *int64
	CurrentPlayerName *string
	CurrentThread     *string
	CurrentChannel    *string
	BiddingActive     *bool
	TimeRemaining     *int
	HighestBid        *int
	HighestBidderID   *string
	TotalPlayers      *int
}

// change is one applied Patch field.
type change struct {
	field string
	value any
}

// apply writes p into s and returns the fields it set, excluding TimeRemaining.
func (p Patch) apply(s *State) []change {
	var out []change
	set := func(field string, value any) { out = append(out, change{field, value}) }

	if p.Status != nil {
		s.Status = *p.Status
		set("status", *p.Status)
	}
	if p.CurrentTierIndex != nil {
		s.CurrentTierIndex = *p.CurrentTierIndex
		set("currentTierIndex", *p.CurrentTierIndex)
	}
	if p.CurrentTier != nil {
		s.CurrentTier = *p.CurrentTier
		set("currentTier", *p.CurrentTier)
	}
	if p.CurrentPlayer != nil {
		s.CurrentPlayer = *p.CurrentPlayer
		set("currentPlayer", *p.CurrentPlayer)
	}
	if p.CurrentPlayerName != nil {
		s.CurrentPlayerName = *p.CurrentPlayerName
		set("currentPlayerName", *p.CurrentPlayerName)
	}
	if p.CurrentThread != nil {
		s.CurrentThread = *p.CurrentThread
		set("currentThreadId", *p.CurrentThread)
	}
	if p.CurrentChannel != nil {
		s.CurrentChannel = *p.CurrentChannel
		set("currentAuctionChannel", *p.CurrentChannel)
	}
	if p.BiddingActive != nil {
		s.BiddingActive = *p.BiddingActive
		set("biddingActive", *p.BiddingActive)
	}
	if p.TimeRemaining != nil {
		s.TimeRemaining = *p.TimeRemaining
	}
	if p.HighestBid != nil {
		s.HighestBid = *p.HighestBid
		set("highestBid", *p.HighestBid)
	}
	if p.HighestBidderID != nil {
		s.HighestBidderID = *p.HighestBidderID
		set("highestBidderId", *p.HighestBidderID)
	}
	if p.TotalPlayers != nil {
		s.TotalPlayers = *p.TotalPlayers
		set("totalPlayers", *p.TotalPlayers)
	}
	return out
}

func ptr[T any](v T) *T { return &v }
