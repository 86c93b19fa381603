package tickets_test

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"park-ticketing/internal/calendar"
	"park-ticketing/internal/config"
	"park-ticketing/internal/logger"
	"park-ticketing/internal/models"
	"park-ticketing/internal/tickets/db"
	"park-ticketing/internal/tickets/qr"
	tickets "park-ticketing/internal/tickets/service"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// Friday 2026-10-16, mid afternoon UTC.
var fixedNow = time.Date(2026, 10, 16, 14, 30, 0, 0, time.UTC)

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Send(ctx context.Context, ticket models.Ticket, email string) error {
	args := m.Called(ctx, ticket, email)
	return args.Error(0)
}

type MockUserDirectory struct {
	mock.Mock
}

func (m *MockUserDirectory) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) PublishTicketIssued(ctx context.Context, ticket models.Ticket) error {
	args := m.Called(ctx, ticket)
	return args.Error(0)
}

type MockQREncoder struct {
	mock.Mock
}

func (m *MockQREncoder) GenerateDataURL(ticket models.Ticket) (string, error) {
	args := m.Called(ticket)
	return args.String(0), args.Error(1)
}

func parkConfig() config.ParkConfig {
	return config.ParkConfig{
		Policy:          calendar.DefaultPolicy(),
		DailyCap:        15,
		MaxPerPurchase:  10,
		MaxAge:          120,
		HorizonMonths:   2,
		CheckoutBaseURL: "https://checkout.test/pay",
	}
}

func visitorRequests(n int) []models.VisitorRequest {
	out := make([]models.VisitorRequest, n)
	for i := range out {
		out[i] = models.VisitorRequest{Age: json.RawMessage("30"), PassType: "regular"}
	}
	return out
}

func purchase(day string, quantity int, method string) models.PurchaseRequest {
	return models.PurchaseRequest{
		VisitDate:     day,
		Quantity:      quantity,
		Visitors:      visitorRequests(quantity),
		PaymentMethod: method,
		UserID:        1,
	}
}

func newStore(t *testing.T, path string) *db.FileStore {
	store, err := db.OpenFileStore(path, logger.Discard())
	require.NoError(t, err)
	return store
}

type fixture struct {
	svc       *tickets.TicketService
	store     *db.FileStore
	path      string
	notifier  *MockNotifier
	users     *MockUserDirectory
	publisher *MockPublisher
}

func newFixture(t *testing.T, park config.ParkConfig, now time.Time) *fixture {
	path := filepath.Join(t.TempDir(), "tickets.json")
	f := &fixture{
		store:     newStore(t, path),
		path:      path,
		notifier:  new(MockNotifier),
		users:     new(MockUserDirectory),
		publisher: new(MockPublisher),
	}
	f.users.On("GetUserByID", mock.Anything, int64(1)).Return(&models.User{ID: 1, Name: "Ada", Email: "ada@example.com"}, nil).Maybe()
	f.notifier.On("Send", mock.Anything, mock.Anything, "ada@example.com").Return(nil).Maybe()
	f.publisher.On("PublishTicketIssued", mock.Anything, mock.Anything).Return(nil).Maybe()

	f.svc = tickets.NewTicketService(
		f.store,
		park,
		qr.NewQRGenerator("", 128),
		f.users,
		f.notifier,
		logger.Discard(),
		tickets.WithClock(func() time.Time { return now }),
		tickets.WithPublisher(f.publisher),
	)
	return f
}
