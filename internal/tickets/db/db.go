package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"park-ticketing/internal/models"

	"github.com/uptrace/bun"
)

// DB stores tickets in a SQL database through bun. Ids come from an
// in-process sequence seeded with MAX(id) when the store is opened.
type DB struct {
	Bun *bun.DB

	mu     sync.Mutex
	nextID int64
}

func NewDB(ctx context.Context, bunDB *bun.DB) (*DB, error) {
	d := &DB{Bun: bunDB}
	if err := d.ensureSchema(ctx); err != nil {
		return nil, err
	}
	max, err := d.MaxID(ctx)
	if err != nil {
		return nil, err
	}
	d.nextID = max + 1
	return d, nil
}

func (d *DB) ensureSchema(ctx context.Context) error {
	_, err := d.Bun.NewCreateTable().
		Model((*models.Ticket)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create tickets table: %w", err)
	}
	_, err = d.Bun.NewCreateIndex().
		Model((*models.Ticket)(nil)).
		Index("tickets_visit_date_idx").
		Column("visit_date").
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create visit_date index: %w", err)
	}
	return nil
}

func (d *DB) NextID(ctx context.Context) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := d.nextID
	d.nextID++
	return id, nil
}

func (d *DB) MaxID(ctx context.Context) (int64, error) {
	var max sql.NullInt64
	err := d.Bun.NewSelect().
		Model((*models.Ticket)(nil)).
		ColumnExpr("MAX(id)").
		Scan(ctx, &max)
	if err != nil {
		return 0, fmt.Errorf("failed to read max ticket id: %w", err)
	}
	return max.Int64, nil
}

func (d *DB) AppendTicket(ctx context.Context, ticket models.Ticket) error {
	_, err := d.Bun.NewInsert().Model(&ticket).Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to insert ticket %d: %w", ticket.ID, err)
	}
	d.mu.Lock()
	if ticket.ID >= d.nextID {
		d.nextID = ticket.ID + 1
	}
	d.mu.Unlock()
	return nil
}

// ListTickets returns tickets in the order they were issued. Ids alone do not
// give that order: they are allocated under per-day locks, so purchases for
// different days may store a higher id first.
func (d *DB) ListTickets(ctx context.Context) ([]models.Ticket, error) {
	tickets := make([]models.Ticket, 0)
	err := d.Bun.NewSelect().
		Model(&tickets).
		Order("issued_at ASC", "id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list tickets: %w", err)
	}
	return tickets, nil
}

func (d *DB) GetTicketByID(ctx context.Context, id int64) (*models.Ticket, error) {
	var ticket models.Ticket
	err := d.Bun.NewSelect().
		Model(&ticket).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTicketNotFound
	}
	if err != nil {
		return nil, err
	}
	return &ticket, nil
}

// SumQuantityOnDay lets the capacity ledger skip the full scan.
func (d *DB) SumQuantityOnDay(ctx context.Context, day string) (int, error) {
	var total sql.NullInt64
	err := d.Bun.NewSelect().
		Model((*models.Ticket)(nil)).
		ColumnExpr("SUM(quantity)").
		Where("visit_date = ?", day).
		Scan(ctx, &total)
	if err != nil {
		return 0, fmt.Errorf("failed to sum quantity for %s: %w", day, err)
	}
	return int(total.Int64), nil
}
