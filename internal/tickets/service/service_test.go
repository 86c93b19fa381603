package tickets_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"testing"
	"time"

	"park-ticketing/internal/apperr"
	"park-ticketing/internal/logger"
	"park-ticketing/internal/models"
	"park-ticketing/internal/tickets/qr"
	"park-ticketing/internal/tickets/qr/qrtest"
	tickets "park-ticketing/internal/tickets/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestPurchaseIssuesTicket(t *testing.T) {
	f := newFixture(t, parkConfig(), fixedNow)

	ticket, err := f.svc.Purchase(context.Background(), purchase("2026-10-20", 3, "cash"), 1)
	require.NoError(t, err)

	assert.Equal(t, int64(1), ticket.ID)
	assert.Equal(t, "2026-10-20", ticket.VisitDate)
	assert.Equal(t, ticket.Quantity, len(ticket.Visitors))
	assert.Empty(t, ticket.CheckoutURL)
	assert.True(t, ticket.EmailSent)
	assert.Contains(t, ticket.QRPayload, "data:image/png;base64,")

	stored, err := f.store.ListTickets(context.Background())
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, *ticket, stored[0])

	f.notifier.AssertCalled(t, "Send", mock.Anything, mock.Anything, "ada@example.com")
	f.publisher.AssertNumberOfCalls(t, "PublishTicketIssued", 1)
}

func TestOnlinePaymentGetsCheckoutURL(t *testing.T) {
	f := newFixture(t, parkConfig(), fixedNow)
	ctx := context.Background()

	online, err := f.svc.Purchase(ctx, purchase("2026-10-20", 1, "online"), 1)
	require.NoError(t, err)
	require.NotEmpty(t, online.CheckoutURL)

	parsed, err := url.Parse(online.CheckoutURL)
	require.NoError(t, err)
	assert.Equal(t, "checkout.test", parsed.Host)
	assert.Equal(t, fmt.Sprint(online.ID), parsed.Query().Get("ticket"))
	assert.NotEmpty(t, parsed.Query().Get("session"))

	cash, err := f.svc.Purchase(ctx, purchase("2026-10-20", 1, "cash"), 1)
	require.NoError(t, err)
	assert.Empty(t, cash.CheckoutURL)

	body, err := json.Marshal(cash)
	require.NoError(t, err)
	assert.NotContains(t, string(body), "checkoutUrl")
}

func TestQRPayloadDecodesToTicketFields(t *testing.T) {
	f := newFixture(t, parkConfig(), fixedNow)

	ticket, err := f.svc.Purchase(context.Background(), purchase("2026-10-21", 2, "online"), 1)
	require.NoError(t, err)

	png, err := qr.DecodeDataURL(ticket.QRPayload)
	require.NoError(t, err)
	text, err := qrtest.ReadPNG(png)
	require.NoError(t, err)

	var content models.QRContent
	require.NoError(t, json.Unmarshal([]byte(text), &content))
	assert.Equal(t, ticket.ID, content.ID)
	assert.Equal(t, ticket.UserID, content.UserID)
	assert.Equal(t, ticket.VisitDate, content.VisitDate)
}

func TestIDsContinueAfterRestart(t *testing.T) {
	f := newFixture(t, parkConfig(), fixedNow)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := f.svc.Purchase(ctx, purchase("2026-10-20", 1, "cash"), 1)
		require.NoError(t, err)
	}

	restarted := tickets.NewTicketService(
		newStore(t, f.path),
		parkConfig(),
		qr.NewQRGenerator("", 128),
		f.users,
		f.notifier,
		logger.Discard(),
		tickets.WithClock(func() time.Time { return fixedNow }),
	)
	ticket, err := restarted.Purchase(ctx, purchase("2026-10-20", 1, "cash"), 1)
	require.NoError(t, err)
	assert.Equal(t, int64(4), ticket.ID)
}

func TestDailyCap(t *testing.T) {
	ctx := context.Background()

	t.Run("ten then ten", func(t *testing.T) {
		f := newFixture(t, parkConfig(), fixedNow)
		_, err := f.svc.Purchase(ctx, purchase("2026-10-20", 10, "cash"), 1)
		require.NoError(t, err)

		_, err = f.svc.Purchase(ctx, purchase("2026-10-20", 10, "cash"), 1)
		require.Error(t, err)
		assert.True(t, apperr.IsKind(err, apperr.KindBadRequest))
		assert.Contains(t, err.Error(), "only 5 tickets left")
	})

	t.Run("exactly the cap on a fresh day", func(t *testing.T) {
		park := parkConfig()
		park.MaxPerPurchase = 20
		f := newFixture(t, park, fixedNow)

		_, err := f.svc.Purchase(ctx, purchase("2026-10-20", 15, "cash"), 1)
		require.NoError(t, err)

		_, err = f.svc.Purchase(ctx, purchase("2026-10-20", 1, "cash"), 1)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "daily capacity of 15 reached")
	})

	t.Run("one over the cap on a fresh day", func(t *testing.T) {
		park := parkConfig()
		park.MaxPerPurchase = 20
		f := newFixture(t, park, fixedNow)

		_, err := f.svc.Purchase(ctx, purchase("2026-10-20", 16, "cash"), 1)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "only 15 tickets left")

		stored, err := f.store.ListTickets(ctx)
		require.NoError(t, err)
		assert.Empty(t, stored)
	})

	t.Run("days are independent", func(t *testing.T) {
		f := newFixture(t, parkConfig(), fixedNow)
		_, err := f.svc.Purchase(ctx, purchase("2026-10-20", 10, "cash"), 1)
		require.NoError(t, err)
		_, err = f.svc.Purchase(ctx, purchase("2026-10-21", 10, "cash"), 1)
		require.NoError(t, err)
	})
}

func TestTodayAcceptedRegardlessOfTimeOfDay(t *testing.T) {
	ctx := context.Background()
	for _, now := range []time.Time{
		time.Date(2026, 10, 16, 0, 0, 1, 0, time.UTC),
		time.Date(2026, 10, 16, 23, 59, 59, 0, time.UTC),
	} {
		f := newFixture(t, parkConfig(), now)
		_, err := f.svc.Purchase(ctx, purchase("2026-10-16", 1, "cash"), 1)
		require.NoError(t, err, "now=%s", now)

		_, err = f.svc.Purchase(ctx, purchase("2026-10-15", 1, "cash"), 1)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "in the past")
	}
}

func TestClosedWeekdayRejected(t *testing.T) {
	f := newFixture(t, parkConfig(), fixedNow)
	ctx := context.Background()

	_, err := f.svc.Purchase(ctx, purchase("2026-10-19", 1, "cash"), 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "park is closed")

	for _, day := range []string{"2026-10-18", "2026-10-20"} {
		_, err := f.svc.Purchase(ctx, purchase(day, 1, "cash"), 1)
		assert.NoError(t, err, day)
	}
}

func TestIdentityMismatchIsForbidden(t *testing.T) {
	f := newFixture(t, parkConfig(), fixedNow)

	bad := models.PurchaseRequest{UserID: 1, Quantity: 99, VisitDate: "not a date"}
	_, err := f.svc.Purchase(context.Background(), bad, 2)
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindForbidden))

	_, err = f.svc.Purchase(context.Background(), purchase("2026-10-20", 1, "cash"), 2)
	assert.True(t, apperr.IsKind(err, apperr.KindForbidden))
}

func TestNotificationFailureDoesNotFailPurchase(t *testing.T) {
	f := newFixture(t, parkConfig(), fixedNow)
	f.notifier.ExpectedCalls = nil
	f.notifier.On("Send", mock.Anything, mock.Anything, "ada@example.com").Return(errors.New("smtp down"))

	ticket, err := f.svc.Purchase(context.Background(), purchase("2026-10-20", 2, "cash"), 1)
	require.NoError(t, err)
	assert.False(t, ticket.EmailSent)

	stored, err := f.store.GetTicketByID(context.Background(), ticket.ID)
	require.NoError(t, err)
	assert.False(t, stored.EmailSent)
}

func TestUnknownUserSkipsNotification(t *testing.T) {
	f := newFixture(t, parkConfig(), fixedNow)
	f.users.ExpectedCalls = nil
	f.users.On("GetUserByID", mock.Anything, int64(1)).Return(nil, errors.New("not found"))

	ticket, err := f.svc.Purchase(context.Background(), purchase("2026-10-20", 1, "cash"), 1)
	require.NoError(t, err)
	assert.False(t, ticket.EmailSent)
	f.notifier.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything)
}

func TestQRFailureIsInternalAndStoresNothing(t *testing.T) {
	f := newFixture(t, parkConfig(), fixedNow)
	encoder := new(MockQREncoder)
	encoder.On("GenerateDataURL", mock.Anything).Return("", errors.New("encoder broke"))
	f.svc.QR = encoder

	_, err := f.svc.Purchase(context.Background(), purchase("2026-10-20", 1, "cash"), 1)
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindInternal))

	stored, err := f.store.ListTickets(context.Background())
	require.NoError(t, err)
	assert.Empty(t, stored)
	f.publisher.AssertNotCalled(t, "PublishTicketIssued", mock.Anything, mock.Anything)
}

type failingStore struct {
	tickets.TicketStore
}

func (failingStore) AppendTicket(ctx context.Context, ticket models.Ticket) error {
	return errors.New("disk full")
}

func TestStoreFailureIsInternal(t *testing.T) {
	f := newFixture(t, parkConfig(), fixedNow)
	f.svc.Store = failingStore{TicketStore: f.store}

	_, err := f.svc.Purchase(context.Background(), purchase("2026-10-20", 1, "cash"), 1)
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindInternal))
	assert.Equal(t, "failed to store ticket", apperr.Message(err))
}

func TestPublishFailureIsIgnored(t *testing.T) {
	f := newFixture(t, parkConfig(), fixedNow)
	f.publisher.ExpectedCalls = nil
	f.publisher.On("PublishTicketIssued", mock.Anything, mock.Anything).Return(errors.New("broker gone"))

	ticket, err := f.svc.Purchase(context.Background(), purchase("2026-10-20", 1, "cash"), 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), ticket.ID)
}

func TestConcurrentPurchasesNeverExceedCap(t *testing.T) {
	f := newFixture(t, parkConfig(), fixedNow)
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	accepted := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.svc.Purchase(ctx, purchase("2026-10-20", 2, "cash"), 1); err == nil {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 7, accepted)
	sold, err := f.svc.Ledger.SoldOnDay(ctx, time.Date(2026, 10, 20, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 14, sold)

	stored, err := f.store.ListTickets(ctx)
	require.NoError(t, err)
	seen := map[int64]bool{}
	for _, ticket := range stored {
		assert.False(t, seen[ticket.ID], "duplicate id %d", ticket.ID)
		seen[ticket.ID] = true
	}
}

func TestGetTicket(t *testing.T) {
	f := newFixture(t, parkConfig(), fixedNow)
	ctx := context.Background()

	issued, err := f.svc.Purchase(ctx, purchase("2026-10-20", 1, "cash"), 1)
	require.NoError(t, err)

	got, err := f.svc.GetTicket(ctx, issued.ID)
	require.NoError(t, err)
	assert.Equal(t, issued.ID, got.ID)

	_, err = f.svc.GetTicket(ctx, 404)
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))

	all, err := f.svc.ListTickets(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestAvailability(t *testing.T) {
	f := newFixture(t, parkConfig(), fixedNow)
	ctx := context.Background()

	_, err := f.svc.Purchase(ctx, purchase("2026-10-20", 4, "cash"), 1)
	require.NoError(t, err)

	day, err := f.svc.Availability(ctx, "2026-10-20")
	require.NoError(t, err)
	assert.Equal(t, models.DayAvailability{Date: "2026-10-20", Open: true, Sold: 4, Remaining: 11, DailyCap: 15}, *day)

	monday, err := f.svc.Availability(ctx, "2026-10-19")
	require.NoError(t, err)
	assert.False(t, monday.Open)

	today, err := f.svc.Availability(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "2026-10-16", today.Date)

	_, err = f.svc.Availability(ctx, "someday")
	assert.True(t, apperr.IsKind(err, apperr.KindBadRequest))
}

type recordingBroadcaster struct {
	mu      sync.Mutex
	updates []models.DayAvailability
}

func (r *recordingBroadcaster) Emit(update models.DayAvailability) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, update)
}

func TestPurchaseBroadcastsAvailability(t *testing.T) {
	events := &recordingBroadcaster{}
	store := newStore(t, t.TempDir()+"/tickets.json")
	svc := tickets.NewTicketService(
		store,
		parkConfig(),
		qr.NewQRGenerator("", 128),
		nil,
		nil,
		logger.Discard(),
		tickets.WithClock(func() time.Time { return fixedNow }),
		tickets.WithAvailabilityEvents(events),
	)
	ctx := context.Background()

	_, err := svc.Purchase(ctx, purchase("2026-10-20", 4, "cash"), 1)
	require.NoError(t, err)
	_, err = svc.Purchase(ctx, purchase("2026-10-20", 20, "cash"), 1)
	require.Error(t, err)

	require.Len(t, events.updates, 1)
	assert.Equal(t, models.DayAvailability{Date: "2026-10-20", Open: true, Sold: 4, Remaining: 11, DailyCap: 15}, events.updates[0])
}
