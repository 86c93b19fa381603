package tickets

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"park-ticketing/internal/apperr"
	"park-ticketing/internal/calendar"
	"park-ticketing/internal/config"
	"park-ticketing/internal/logger"
	"park-ticketing/internal/models"
	"park-ticketing/internal/tickets/db"

	"github.com/google/uuid"
)

type TicketStore interface {
	NextID(ctx context.Context) (int64, error)
	AppendTicket(ctx context.Context, ticket models.Ticket) error
	ListTickets(ctx context.Context) ([]models.Ticket, error)
	GetTicketByID(ctx context.Context, id int64) (*models.Ticket, error)
}

type UserDirectory interface {
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
}

type Notifier interface {
	Send(ctx context.Context, ticket models.Ticket, email string) error
}

type QREncoder interface {
	GenerateDataURL(ticket models.Ticket) (string, error)
}

// EventPublisher receives issued tickets after they are stored.
type EventPublisher interface {
	PublishTicketIssued(ctx context.Context, ticket models.Ticket) error
}

type AvailabilityBroadcaster interface {
	Emit(update models.DayAvailability)
}

type TicketService struct {
	Store     TicketStore
	Validator *Validator
	Ledger    *CapacityLedger
	Locker    DayLocker
	QR        QREncoder
	Users     UserDirectory
	Notifier  Notifier
	Publisher EventPublisher
	Events    AvailabilityBroadcaster
	Logger    *logger.Logger

	park config.ParkConfig
	now  func() time.Time
}

type Option func(*TicketService)

func WithClock(now func() time.Time) Option {
	return func(s *TicketService) { s.now = now }
}

func WithLocker(locker DayLocker) Option {
	return func(s *TicketService) { s.Locker = locker }
}

func WithPublisher(publisher EventPublisher) Option {
	return func(s *TicketService) { s.Publisher = publisher }
}

func WithAvailabilityEvents(events AvailabilityBroadcaster) Option {
	return func(s *TicketService) { s.Events = events }
}

func NewTicketService(store TicketStore, park config.ParkConfig, qr QREncoder, users UserDirectory, notifier Notifier, log *logger.Logger, opts ...Option) *TicketService {
	s := &TicketService{
		Store:    store,
		QR:       qr,
		Users:    users,
		Notifier: notifier,
		Logger:   log,
		park:     park,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.Locker == nil {
		s.Locker = NewLocalDayLocker()
	}
	s.Ledger = NewCapacityLedger(store, park.DailyCap, park.Policy.Location)
	s.Validator = NewValidator(park, s.Ledger, s.now)
	return s
}

// Purchase validates the request and issues a ticket. The capacity check and
// the append happen under the visit day's lock.
func (s *TicketService) Purchase(ctx context.Context, req models.PurchaseRequest, authUserID int64) (*models.Ticket, error) {
	validated, err := s.Validator.ValidateRequest(req, authUserID)
	if err != nil {
		s.Logger.Info("TICKET", fmt.Sprintf("Purchase rejected for user %d: %v", authUserID, err))
		return nil, err
	}

	ticket, err := s.issueLocked(ctx, validated)
	if err != nil {
		return nil, err
	}
	s.Logger.LogTicket("ISSUED", ticket.ID, fmt.Sprintf("%d visitors on %s for user %d", ticket.Quantity, ticket.VisitDate, ticket.UserID))

	if s.Publisher != nil {
		if err := s.Publisher.PublishTicketIssued(ctx, *ticket); err != nil {
			s.Logger.Warn("KAFKA", fmt.Sprintf("Failed to publish ticket %d: %v", ticket.ID, err))
		}
	}
	return ticket, nil
}

func (s *TicketService) issueLocked(ctx context.Context, req *ValidatedRequest) (*models.Ticket, error) {
	unlock, err := s.Locker.LockDay(ctx, req.DayKey)
	if err != nil {
		return nil, apperr.Internal("failed to lock visit day", err)
	}
	defer unlock()

	if err := s.Validator.CheckCapacity(ctx, req); err != nil {
		s.Logger.Info("TICKET", fmt.Sprintf("Purchase rejected for user %d: %v", req.UserID, err))
		return nil, err
	}

	id, err := s.Store.NextID(ctx)
	if err != nil {
		return nil, apperr.Internal("failed to allocate ticket id", err)
	}

	ticket := models.Ticket{
		ID:            id,
		VisitDate:     req.DayKey,
		Quantity:      req.Quantity,
		Visitors:      req.Visitors,
		PaymentMethod: req.PaymentMethod,
		UserID:        req.UserID,
		IssuedAt:      s.now().UTC(),
	}

	if ticket.PaymentMethod == models.PaymentOnline {
		ticket.CheckoutURL = s.checkoutURL(ticket.ID)
	}

	qrPayload, err := s.QR.GenerateDataURL(ticket)
	if err != nil {
		s.Logger.Error("TICKET", fmt.Sprintf("QR generation failed for ticket %d: %v", ticket.ID, err))
		return nil, apperr.Internal("failed to generate QR code", err)
	}
	ticket.QRPayload = qrPayload

	ticket.EmailSent = s.notify(ctx, ticket)

	if err := s.Store.AppendTicket(ctx, ticket); err != nil {
		s.Logger.Error("DATABASE", fmt.Sprintf("Failed to store ticket %d: %v", ticket.ID, err))
		return nil, apperr.Internal("failed to store ticket", err)
	}

	if s.Events != nil {
		if update, err := s.dayAvailability(ctx, req.Day); err == nil {
			s.Events.Emit(*update)
		}
	}
	return &ticket, nil
}

// notify never fails the purchase; it reports whether a confirmation went out.
func (s *TicketService) notify(ctx context.Context, ticket models.Ticket) bool {
	if s.Users == nil || s.Notifier == nil {
		return false
	}
	user, err := s.Users.GetUserByID(ctx, ticket.UserID)
	if err != nil || user == nil || user.Email == "" {
		s.Logger.Warn("NOTIFY", fmt.Sprintf("No contact address for user %d, skipping confirmation", ticket.UserID))
		return false
	}
	if err := s.Notifier.Send(ctx, ticket, user.Email); err != nil {
		s.Logger.LogNotify("FAILED", user.Email, fmt.Sprintf("ticket %d: %v", ticket.ID, err))
		return false
	}
	s.Logger.LogNotify("SENT", user.Email, fmt.Sprintf("ticket %d", ticket.ID))
	return true
}

func (s *TicketService) checkoutURL(ticketID int64) string {
	q := url.Values{}
	q.Set("ticket", strconv.FormatInt(ticketID, 10))
	q.Set("session", uuid.NewString())
	return s.park.CheckoutBaseURL + "?" + q.Encode()
}

func (s *TicketService) ListTickets(ctx context.Context) ([]models.Ticket, error) {
	tickets, err := s.Store.ListTickets(ctx)
	if err != nil {
		return nil, apperr.Internal("failed to list tickets", err)
	}
	return tickets, nil
}

func (s *TicketService) GetTicket(ctx context.Context, id int64) (*models.Ticket, error) {
	ticket, err := s.Store.GetTicketByID(ctx, id)
	if errors.Is(err, db.ErrTicketNotFound) {
		return nil, apperr.NotFound("ticket %d not found", id)
	}
	if err != nil {
		return nil, apperr.Internal("failed to load ticket", err)
	}
	return ticket, nil
}

// Availability reports the capacity of a single day. An empty date means today.
func (s *TicketService) Availability(ctx context.Context, date string) (*models.DayAvailability, error) {
	policy := s.park.Policy
	day := policy.Today(s.now())
	if date != "" {
		parsed, err := policy.Parse(date)
		if err != nil {
			return nil, apperr.BadRequest("invalid date %q", date)
		}
		day = parsed
	}

	availability, err := s.dayAvailability(ctx, day)
	if err != nil {
		return nil, apperr.Internal("failed to read daily capacity", err)
	}
	return availability, nil
}

func (s *TicketService) dayAvailability(ctx context.Context, day time.Time) (*models.DayAvailability, error) {
	decision, err := s.Ledger.CanAccept(ctx, day, 0)
	if err != nil {
		return nil, err
	}
	return &models.DayAvailability{
		Date:      calendar.Key(day),
		Open:      s.park.Policy.IsOpen(day),
		Sold:      decision.Sold,
		Remaining: decision.Remaining,
		DailyCap:  s.Ledger.DailyCap(),
	}, nil
}
