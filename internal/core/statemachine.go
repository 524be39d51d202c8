package core

import "github.com/transit-systems/ticketing-core/internal/model"

// legalTransitions encodes spec §4.6 exactly. Any pair not present here
// fails with InvalidBookingState carrying the current status.
var legalTransitions = map[model.BookingStatus]map[model.BookingStatus]bool{
	model.StatusPending: {
		model.StatusConfirmed: true,
		model.StatusCancelled: true,
	},
	model.StatusReserved: {
		model.StatusConfirmed: true,
		model.StatusCancelled: true,
		model.StatusExpired:   true,
	},
	model.StatusConfirmed: {
		model.StatusCancelled: true,
		model.StatusRefunded:  true,
	},
}

// canTransition reports whether from -> to is a legal transition.
func canTransition(from, to model.BookingStatus) bool {
	targets, ok := legalTransitions[from]
	if !ok {
		return false
	}
	return targets[to]
}

// requireTransition returns an InvalidBookingState error when from -> to
// is not legal, nil otherwise.
func requireTransition(from, to model.BookingStatus, subReason string) error {
	if canTransition(from, to) {
		return nil
	}
	return InvalidState(string(from), subReason)
}
