package auction

import (
	"slices"
	"time"

	"github.com/jensholdgaard/auction-house-bot/internal/roster"
)

// TeamResult is one team at the end of a run.
type TeamResult struct {
	TeamName     string             `json:"teamName"`
	CaptainID    string             `json:"captainDiscordId"`
	CaptainName  string             `json:"captainName"`
	CaptainOsuID int64              `json:"captainOsuId"`
	Balance      int                `json:"balance"`
	TeamValue    int                `json:"teamValue"`
	Members      []roster.PlayerLot `json:"members"`
}

// Spender is the captain that spent the most during a run.
type Spender struct {
	Name   string `json:"name"`
	Team   string `json:"team"`
	Amount int    `json:"amount"`
}

// Results is the flat export of a completed run, overwritten on every run.
type Results struct {
	RunID           string             `json:"runId"`
	StartingBalance int                `json:"startingBalance"`
	Teams           []TeamResult       `json:"teams"`
	Stats           Stats              `json:"stats"`
	BiggestSpender  *Spender           `json:"biggestSpender,omitempty"`
	FreeAgents      []roster.PlayerLot `json:"freeAgents"`
	Events          []string           `json:"events"`
	Summary         string             `json:"summary,omitempty"`
	GeneratedAt     time.Time          `json:"generatedAt"`
}

// ResultRow is one denormalized line of the export: a team member, or a free
// agent with an empty team.
type ResultRow struct {
	TeamName    string `json:"teamName" db:"team_name"`
	CaptainName string `json:"captainName" db:"captain_name"`
	PlayerID    int64  `json:"playerId" db:"player_id"`
	PlayerName  string `json:"playerName" db:"player_name"`
	Tier        int    `json:"tier" db:"tier"`
	Cost        int    `json:"cost" db:"cost"`
}

// Rows flattens the results for tabular storage.
func (r Results) Rows() []ResultRow {
	var rows []ResultRow
	for _, t := range r.Teams {
		for _, p := range t.Members {
			rows = append(rows, ResultRow{
				TeamName:    t.TeamName,
				CaptainName: t.CaptainName,
				PlayerID:    p.ID,
				PlayerName:  p.Name,
				Tier:        p.Tier,
				Cost:        p.Cost,
			})
		}
	}
	for _, p := range r.FreeAgents {
		rows = append(rows, ResultRow{PlayerID: p.ID, PlayerName: p.Name, Tier: p.Tier})
	}
	return rows
}

// Results assembles the export of the current run.
func (m *Machine) Results(now time.Time) Results {
	m.mu.Lock()
	defer m.mu.Unlock()

	res := Results{
		RunID:           m.state.RunID,
		StartingBalance: m.cfg.StartingBalance,
		Stats:           m.stats.clone(),
		FreeAgents:      slices.Clone(m.freeAgents),
		Events:          slices.Clone(m.state.Events),
		GeneratedAt:     now.UTC(),
	}
	res.Stats.TotalPlayers = m.state.TotalPlayers

	for _, c := range m.captains.Sorted() {
		res.Teams = append(res.Teams, TeamResult{
			TeamName:     c.TeamName,
			CaptainID:    c.ChatID,
			CaptainName:  c.Name,
			CaptainOsuID: c.ProfileID,
			Balance:      c.Balance,
			TeamValue:    c.TeamValue,
			Members:      slices.Clone(c.TeamMembers),
		})
		if c.TeamValue > 0 && (res.BiggestSpender == nil || c.TeamValue > res.BiggestSpender.Amount) {
			res.BiggestSpender = &Spender{Name: c.Name, Team: c.TeamName, Amount: c.TeamValue}
		}
	}
	return res
}
