package auction

import (
	"fmt"
	"strings"
)

// maxMessageLen is the chat transport's per-message limit.
const maxMessageLen = 2000

func startMessage(resuming bool) string {
	if resuming {
		return "## Auction resuming.\nThe auction will be resumed shortly!"
	}
	return "## Auction starting!\nThe auction will be starting shortly.\n\n**Captains:** make sure you have read `/help`!"
}

func tierMessage(first bool, tier int) string {
	lead := "Next up!"
	if first {
		lead = "First up!"
	}
	return fmt.Sprintf("*%s*\n## Tier %d players!", lead, tier)
}

func threadTitle(prefix string, tier, index int, name string) string {
	return fmt.Sprintf("%s | Tier %d | #%d: %s", prefix, tier, index+1, name)
}

func lotIntroMessage(first bool, lot Lot, openIn int) string {
	lead := "Next up..."
	if first {
		lead = "First up!"
	}
	return fmt.Sprintf("*%s*\n## [%s](https://osu.ppy.sh/users/%d)\nSeeded tier: **%d**\nBidding starts in %d seconds!",
		lead, lot.PlayerName, lot.PlayerID, lot.Tier, openIn)
}

func bidsOpenMessage(minBid int) string {
	return fmt.Sprintf("## Bids are open!\nStarting bid: **%d**", minBid)
}

func countdownMessage(name string, remaining int) string {
	return fmt.Sprintf("Bidding for **%s** has started!\nTime remaining: **%d** seconds!", name, remaining)
}

func bidsClosedMessage() string {
	return "## Bids are now closed!"
}

func soldThreadMessage(o Outcome) string {
	return fmt.Sprintf("## Sold!\nSold to: **%s**\nWinning bid: **%d**", o.CaptainName, o.Player.Cost)
}

func unsoldThreadMessage() string {
	return "## No bids!\nNo one bid on this player. They will be placed in the free pool."
}

func settledChannelMessage(o Outcome, left int) string {
	if !o.Sold {
		return fmt.Sprintf("No one bid on **%s**. They will be placed in the free pool.\nThere are **%d** player(s) left in this tier (make sure you get at least one)!",
			o.Player.Name, left)
	}
	return fmt.Sprintf("**%s** has been sold to **%s** for **%d** points!\nThere are **%d** player(s) left in this tier (make sure you get at least one).",
		o.Player.Name, o.CaptainName, o.Player.Cost, left)
}

func pausedMessage() string {
	return "## Auction paused.\nThe auction has been paused by an admin."
}

func pauseFailedMessage() string {
	return "## Auction paused, but not saved.\nThe pause state could not be saved. It is kept in memory; start the auction again to resume."
}

func abortedMessage() string {
	return "## Auction aborted.\nThe auction has been aborted by an admin."
}

func finishedMessage() string {
	return "## Auction finished!\nThat's all folks, the auction has concluded!"
}

// resultsMessages renders the team results, split to fit the message limit.
func resultsMessages(r Results) []string {
	var (
		out []string
		b   strings.Builder
	)
	b.WriteString("## Team Results\n")
	for _, t := range r.Teams {
		var entry strings.Builder
		fmt.Fprintf(&entry, "\n**%s**\n%s **(C)**\n", t.TeamName, t.CaptainName)
		for _, p := range t.Members {
			fmt.Fprintf(&entry, "%s *(%d points)*\n", p.Name, p.Cost)
		}
		if b.Len()+entry.Len() > maxMessageLen {
			out = append(out, b.String())
			b.Reset()
			b.WriteString("## Team Results *(continued)*\n")
		}
		b.WriteString(entry.String())
	}
	if len(r.FreeAgents) > 0 {
		var entry strings.Builder
		entry.WriteString("\n**Free agents**\n")
		for _, p := range r.FreeAgents {
			fmt.Fprintf(&entry, "%s *(tier %d)*\n", p.Name, p.Tier)
		}
		if b.Len()+entry.Len() > maxMessageLen {
			out = append(out, b.String())
			b.Reset()
		}
		b.WriteString(entry.String())
	}
	return append(out, b.String())
}

func summaryMessage(summary string) string {
	msg := "## Auction report\n" + summary
	if len(msg) > maxMessageLen {
		msg = msg[:maxMessageLen-3] + "..."
	}
	return msg
}

// HighestBidMessage renders an accepted bid for the lot thread. mention is the
// chat mention of the user who placed it.
func HighestBidMessage(r Receipt, mention string) string {
	who := fmt.Sprintf("**%s** (%s)", r.CaptainName, mention)
	if r.Proxy {
		who = fmt.Sprintf("**%s** [Proxy %s]", r.CaptainName, mention)
	}
	timer := ""
	if r.TimerReset {
		timer = "\nTimer has been reset."
	}
	return fmt.Sprintf("## New highest bid!\n%s has set a new highest bid of **%d**!%s\n\nValid higher bids: **%d** - **%d**",
		who, r.Amount, timer, r.NextMin, r.NextMax)
}
