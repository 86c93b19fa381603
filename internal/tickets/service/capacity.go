package tickets

import (
	"context"
	"fmt"
	"time"

	"park-ticketing/internal/calendar"
)

// daySummer is implemented by stores that can total a day without a full scan.
type daySummer interface {
	SumQuantityOnDay(ctx context.Context, day string) (int, error)
}

type CapacityDecision struct {
	Accepted  bool
	Remaining int
	Sold      int
}

// CapacityLedger derives per-day sales from the ticket store. Nothing is
// cached, so the store stays the only source of truth.
type CapacityLedger struct {
	store    TicketStore
	dailyCap int
	loc      *time.Location
}

func NewCapacityLedger(store TicketStore, dailyCap int, loc *time.Location) *CapacityLedger {
	if loc == nil {
		loc = time.UTC
	}
	return &CapacityLedger{store: store, dailyCap: dailyCap, loc: loc}
}

func (l *CapacityLedger) DailyCap() int {
	return l.dailyCap
}

func (l *CapacityLedger) SoldOnDay(ctx context.Context, day time.Time) (int, error) {
	key := calendar.Key(day)
	if summer, ok := l.store.(daySummer); ok {
		return summer.SumQuantityOnDay(ctx, key)
	}

	tickets, err := l.store.ListTickets(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to scan tickets: %w", err)
	}
	sold := 0
	for _, t := range tickets {
		visit, err := calendar.ParseDay(t.VisitDate, l.loc)
		if err != nil {
			continue
		}
		if calendar.Key(visit) == key {
			sold += t.Quantity
		}
	}
	return sold, nil
}

func (l *CapacityLedger) CanAccept(ctx context.Context, day time.Time, quantity int) (CapacityDecision, error) {
	sold, err := l.SoldOnDay(ctx, day)
	if err != nil {
		return CapacityDecision{}, err
	}
	remaining := l.dailyCap - sold
	if remaining < 0 {
		remaining = 0
	}
	return CapacityDecision{
		Accepted:  sold+quantity <= l.dailyCap,
		Remaining: remaining,
		Sold:      sold,
	}, nil
}
