package auction

import (
	"errors"
	"fmt"
)

// ErrRejected is wrapped by every bid or command rejection. Rejections leave
// the auction state unchanged.
var ErrRejected = errors.New("rejected")

// Rejections, in the order the bid pipeline checks them.
var (
	ErrNotCaptain           = rejection("only captains can bid on players")
	ErrNoAuction            = rejection("there is currently no auction running")
	ErrBiddingClosed        = rejection("no player is currently being sold")
	ErrTeamFull             = rejection("team is already full")
	ErrAlreadyHighestBidder = rejection("you already hold the highest bid")
	ErrBelowMinimum         = rejection("bid is below the minimum bid")
	ErrAboveMaximum         = rejection("bid exceeds the maximum bid")
	ErrInsufficientBalance  = rejection("insufficient balance")
	ErrBelowIncrement       = rejection("bid is below the minimum increment")
	ErrAboveIncrement       = rejection("bid exceeds the maximum increment")
)

// Control command rejections.
var (
	ErrAuctionInProgress = rejection("an auction is already in progress")
	ErrAlreadyPausing    = rejection("the auction is already pausing")
	ErrAlreadyAborting   = rejection("the auction is already aborting")
)

var (
	// ErrPersistence wraps snapshot, results and event store failures.
	ErrPersistence = errors.New("persistence failure")
	// ErrMalformedSnapshot is returned when a resume snapshot fails validation.
	ErrMalformedSnapshot = errors.New("malformed snapshot")
)

func rejection(msg string) error {
	return fmt.Errorf("%w: %s", ErrRejected, msg)
}

// IsRejection reports whether err is a user-facing rejection.
func IsRejection(err error) bool {
	return errors.Is(err, ErrRejected)
}

var rejectionCodes = []struct {
	err  error
	code string
}{
	{ErrNotCaptain, "not_captain"},
	{ErrNoAuction, "no_auction"},
	{ErrBiddingClosed, "bidding_closed"},
	{ErrTeamFull, "team_full"},
	{ErrAlreadyHighestBidder, "already_highest_bidder"},
	{ErrBelowMinimum, "below_minimum"},
	{ErrAboveMaximum, "above_maximum"},
	{ErrInsufficientBalance, "insufficient_balance"},
	{ErrBelowIncrement, "below_increment"},
	{ErrAboveIncrement, "above_increment"},
}

// RejectionCode returns a stable short code for a bid result, "accepted" for nil.
func RejectionCode(err error) string {
	if err == nil {
		return "accepted"
	}
	for _, rc := range rejectionCodes {
		if errors.Is(err, rc.err) {
			return rc.code
		}
	}
	return "error"
}
