// Package roster builds the captain table for an auction run and answers
// identity questions about chat users and seeded players.
package roster

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"

	"github.com/jensholdgaard/auction-house-bot/internal/config"
)

// ErrUnresolvedCaptain is returned when a captain's profile id has no display name.
var ErrUnresolvedCaptain = errors.New("unresolved captain")

// NameResolver maps a profile id to its display name.
type NameResolver interface {
	ResolveDisplayName(ctx context.Context, profileID int64) (string, error)
}

// PlayerLot is a player once their lot has been settled. Cost is 0 for free agents.
type PlayerLot struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Tier int    `json:"tier"`
	Cost int    `json:"cost"`
}

// Captain is the bidding state of one team.
type Captain struct {
	Seat        int         `json:"seat"`
	ChatID      string      `json:"discordId"`
	ProfileID   int64       `json:"osuId"`
	ProxyChatID string      `json:"proxyDiscId,omitempty"`
	Name        string      `json:"name"`
	TeamName    string      `json:"teamname"`
	Balance     int         `json:"balance"`
	TeamMembers []PlayerLot `json:"teammembers"`
	TeamValue   int         `json:"teamvalue"`
}

// Sign adds a bought player to the team and charges the captain.
func (c *Captain) Sign(lot PlayerLot) {
	c.Balance -= lot.Cost
	c.TeamMembers = append(c.TeamMembers, lot)
	c.TeamValue += lot.Cost
}

// TeamSize returns the number of players on the team, excluding the captain.
func (c *Captain) TeamSize() int {
	return len(c.TeamMembers)
}

// Clone returns a deep copy.
func (c *Captain) Clone() *Captain {
	cp := *c
	cp.TeamMembers = slices.Clone(c.TeamMembers)
	return &cp
}

// Kind classifies a chat user.
type Kind int

const (
	None Kind = iota
	Captaining
	Proxying
)

func (k Kind) String() string {
	switch k {
	case Captaining:
		return "captain"
	case Proxying:
		return "proxy"
	default:
		return "none"
	}
}

// Identity is the result of classifying a chat id.
type Identity struct {
	Kind      Kind
	CaptainID string
}

// IsCaptain reports whether the identity may act for a captain.
func (i Identity) IsCaptain() bool { return i.Kind != None }

// Captains is the live captain table keyed by chat id.
type Captains map[string]*Captain

// Classify resolves a chat id to the captain it acts for. A captain's own id
// takes precedence over any proxy mapping.
func (cs Captains) Classify(chatID string) Identity {
	if chatID == "" {
		return Identity{}
	}
	if _, ok := cs[chatID]; ok {
		return Identity{Kind: Captaining, CaptainID: chatID}
	}
	for id, c := range cs {
		if c.ProxyChatID == chatID {
			return Identity{Kind: Proxying, CaptainID: id}
		}
	}
	return Identity{}
}

// ByProfile returns the captain registered with the given profile id.
func (cs Captains) ByProfile(profileID int64) (*Captain, bool) {
	for _, c := range cs {
		if c.ProfileID == profileID {
			return c, true
		}
	}
	return nil, false
}

// Clone returns a deep copy of the table.
func (cs Captains) Clone() Captains {
	out := make(Captains, len(cs))
	for id, c := range cs {
		out[id] = c.Clone()
	}
	return out
}

// Sorted returns the captains in roster order.
func (cs Captains) Sorted() []*Captain {
	out := make([]*Captain, 0, len(cs))
	for _, c := range cs {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Seat != out[j].Seat {
			return out[i].Seat < out[j].Seat
		}
		return out[i].ChatID < out[j].ChatID
	})
	return out
}

// FromConfig returns the configured identities without display names or
// balances. It answers Classify before any run has resolved the roster.
func FromConfig(captains []config.CaptainConfig) Captains {
	out := make(Captains, len(captains))
	for i, cc := range captains {
		out[cc.ChatID] = &Captain{
			Seat:        i,
			ChatID:      cc.ChatID,
			ProfileID:   cc.ProfileID,
			ProxyChatID: cc.ProxyChatID,
			TeamName:    cc.TeamName,
		}
	}
	return out
}

// Table is the resolved, immutable captain roster.
type Table struct {
	entries []Captain
}

// Resolve looks up every captain's display name. Any failure is fatal for the
// run and wraps ErrUnresolvedCaptain.
func Resolve(ctx context.Context, captains []config.CaptainConfig, names NameResolver) (*Table, error) {
	t := &Table{entries: make([]Captain, 0, len(captains))}
	for i, cc := range captains {
		name, err := names.ResolveDisplayName(ctx, cc.ProfileID)
		if err != nil {
			return nil, fmt.Errorf("%w: captain %s (osu id %d): %w", ErrUnresolvedCaptain, cc.ChatID, cc.ProfileID, err)
		}
		if name == "" {
			return nil, fmt.Errorf("%w: captain %s (osu id %d) has no username", ErrUnresolvedCaptain, cc.ChatID, cc.ProfileID)
		}
		t.entries = append(t.entries, Captain{
			Seat:        i,
			ChatID:      cc.ChatID,
			ProfileID:   cc.ProfileID,
			ProxyChatID: cc.ProxyChatID,
			Name:        name,
			TeamName:    cc.TeamName,
		})
	}
	return t, nil
}

// Len returns the number of captains.
func (t *Table) Len() int { return len(t.entries) }

// Fresh returns a new captain table with full balances and empty teams.
func (t *Table) Fresh(startingBalance int) Captains {
	out := make(Captains, len(t.entries))
	for _, e := range t.entries {
		c := e
		c.Balance = startingBalance
		c.TeamMembers = []PlayerLot{}
		c.TeamValue = 0
		out[c.ChatID] = &c
	}
	return out
}

// LookupPlayerTier returns the first tier that lists the player.
func LookupPlayerTier(players config.PlayersConfig, profileID int64) (int, bool) {
	for _, tier := range config.Tiers {
		if slices.Contains(players[tier], profileID) {
			return tier, true
		}
	}
	return 0, false
}

// EligiblePlayers returns the tier lists without any captain's profile id,
// together with the ids that were dropped.
func EligiblePlayers(players config.PlayersConfig, captains []config.CaptainConfig) (config.PlayersConfig, []int64) {
	isCaptain := make(map[int64]struct{}, len(captains))
	for _, c := range captains {
		isCaptain[c.ProfileID] = struct{}{}
	}

	out := make(config.PlayersConfig, len(config.Tiers))
	var dropped []int64
	for _, tier := range config.Tiers {
		list := make([]int64, 0, len(players[tier]))
		for _, id := range players[tier] {
			if _, ok := isCaptain[id]; ok {
				dropped = append(dropped, id)
				continue
			}
			list = append(list, id)
		}
		out[tier] = list
	}
	return out, dropped
}
