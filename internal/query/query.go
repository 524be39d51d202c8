// Package query implements the cache-aside read path (Q, spec §4.4):
// list a user's tickets and fetch one ticket's details, each checking the
// cache first and falling back to the read store on a miss.
package query

import (
	"context"
	"fmt"
	"time"

	"github.com/transit-systems/ticketing-core/internal/cache"
	"github.com/transit-systems/ticketing-core/internal/core"
	"github.com/transit-systems/ticketing-core/internal/model"
	"github.com/transit-systems/ticketing-core/internal/store"
)

// TTLs match spec §4.4's cache lifetimes exactly: ticket lists churn with
// booking activity more than individual ticket details, so they get the
// shorter TTL.
const (
	userTicketsTTL = 60 * time.Second
	ticketTTL      = 300 * time.Second
)

// defaultPageLimit matches spec §4.4.1's default page size exactly.
const defaultPageLimit = 10
const maxPageLimit = 100

// Query is the read-side core. It never mutates; every method here is
// safe to call concurrently from many HTTP requests.
type Query struct {
	Read  *store.ReadRepo
	Cache *cache.Cache
}

// New builds a Query over the read store and cache.
func New(read *store.ReadRepo, c *cache.Cache) *Query {
	return &Query{Read: read, Cache: c}
}

// TicketPage is the paginated result of ListUserTickets.
type TicketPage struct {
	Tickets []model.TicketView `json:"tickets"`
	Page    int                `json:"page"`
	Limit   int                `json:"limit"`
	Total   int                `json:"total"`
}

// ListUserTickets backs §4.4.1: a user's own tickets, optionally filtered
// by status, paginated, cache-aside with a 60s TTL.
func (q *Query) ListUserTickets(ctx context.Context, userID string, status *model.BookingStatus, page, limit int) (*TicketPage, error) {
	if userID == "" {
		return nil, fmt.Errorf("query: userId is required")
	}
	// page < 1 is rejected outright (§8 "Boundary behaviors"); only limit
	// is clamped, to a sane default and ceiling.
	if page < 1 {
		return nil, core.BadRequest("page must be at least 1")
	}
	limit = normalizeLimit(limit)

	// Status-filtered pages are not cached: caching one key per
	// (user, page, limit, status) combination multiplies the keyspace for
	// a filter spec §4.4.1 treats as a secondary, less-hit path.
	if status == nil {
		key := cache.UserTicketsPageKey(userID, page, limit)
		var cached TicketPage
		if q.Cache.Get(ctx, key, &cached) {
			return &cached, nil
		}
		result, err := q.listFromStore(ctx, userID, nil, page, limit)
		if err != nil {
			return nil, err
		}
		q.Cache.Set(ctx, key, result, userTicketsTTL)
		return result, nil
	}

	return q.listFromStore(ctx, userID, status, page, limit)
}

func (q *Query) listFromStore(ctx context.Context, userID string, status *model.BookingStatus, page, limit int) (*TicketPage, error) {
	tickets, total, err := q.Read.ListTicketsByUser(ctx, userID, status, page, limit)
	if err != nil {
		return nil, fmt.Errorf("query: list tickets: %w", err)
	}
	return &TicketPage{Tickets: tickets, Page: page, Limit: limit, Total: total}, nil
}

// GetTicket backs §4.4.2: one ticket's details, cache-aside with a 300s
// TTL. ownerUserID, when non-empty, enforces that only the owning user can
// fetch it (callers with a service capability pass "" to skip the check,
// mirroring Cancel's CallerCapability carve-out in internal/core).
func (q *Query) GetTicket(ctx context.Context, bookingID, ownerUserID string) (*model.TicketView, error) {
	if bookingID == "" {
		return nil, fmt.Errorf("query: bookingId is required")
	}

	key := cache.TicketKey(bookingID)
	var cached model.TicketView
	if q.Cache.Get(ctx, key, &cached) {
		if err := requireOwner(ownerUserID, cached.UserID); err != nil {
			return nil, err
		}
		return &cached, nil
	}

	t, err := q.Read.GetTicketByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	q.Cache.Set(ctx, key, t, ticketTTL)
	if err := requireOwner(ownerUserID, t.UserID); err != nil {
		return nil, err
	}
	return t, nil
}

// requireOwner enforces §4.4.2's ownership rule: a present row whose
// userId doesn't match the caller is Forbidden, never NotFound — NotFound
// is reserved for a row that does not exist at all. An empty ownerUserID
// means the caller presented a service capability and skips the check
// (mirrors Cancel's CallerCapability carve-out in internal/core).
func requireOwner(ownerUserID, actualUserID string) error {
	if ownerUserID != "" && actualUserID != ownerUserID {
		return core.Forbidden("caller does not own this booking")
	}
	return nil
}

// GetScheduleAvailability returns the current booked/available seat
// counts for a schedule from the projector-maintained counter, cache-aside
// with the same 60s TTL as ticket lists. The command core and sweeper do
// not read this counter; seat allocation uses seat_availability rows.
func (q *Query) GetScheduleAvailability(ctx context.Context, scheduleID string) (*model.ScheduleAvailability, error) {
	if scheduleID == "" {
		return nil, fmt.Errorf("query: scheduleId is required")
	}

	key := cache.ScheduleAvailabilityKey(scheduleID)
	var cached model.ScheduleAvailability
	if q.Cache.Get(ctx, key, &cached) {
		return &cached, nil
	}

	s, err := q.Read.GetScheduleAvailability(ctx, scheduleID)
	if err != nil {
		return nil, err
	}
	q.Cache.Set(ctx, key, s, userTicketsTTL)
	return s, nil
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	return limit
}
