package application

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmehra2102/vinyl-storefront/internal/order/domain"
)

type fixture struct {
	svc      *Service
	repo     *MockRepository
	catalog  *MockCatalog
	gateway  *MockGateway
	notifier *MockNotifier
	vinyl    domain.CatalogItem
	userID   uuid.UUID
}

func newFixture(t *testing.T, price string) *fixture {
	t.Helper()
	vinyl := domain.CatalogItem{
		ID:         uuid.New(),
		Name:       "Kind of Blue",
		AuthorName: "Miles Davis",
		Price:      decimal.RequireFromString(price),
	}
	f := &fixture{
		repo:     NewMockRepository(),
		catalog:  &MockCatalog{Items: map[uuid.UUID]domain.CatalogItem{vinyl.ID: vinyl}},
		gateway:  &MockGateway{Intent: domain.PaymentIntent{ID: "pi_123", ClientSecret: "pi_123_secret_abc"}},
		notifier: &MockNotifier{},
		vinyl:    vinyl,
		userID:   uuid.New(),
	}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.svc = NewService(log, f.repo, f.catalog, f.gateway, f.notifier)
	return f
}

// pendingWithIntent creates an order through the service so it carries an intent id.
func (f *fixture) pendingWithIntent(t *testing.T) uuid.UUID {
	t.Helper()
	res, err := f.svc.CreatePaymentIntent(context.Background(), f.userID, f.vinyl.ID)
	require.NoError(t, err)
	return res.OrderID
}

func TestCreatePaymentIntent_PersistsOrderAndAttachesIntent(t *testing.T) {
	f := newFixture(t, "29.99")

	res, err := f.svc.CreatePaymentIntent(context.Background(), f.userID, f.vinyl.ID)
	require.NoError(t, err)

	assert.Equal(t, int64(2999), res.Amount)
	assert.Equal(t, "pi_123_secret_abc", res.ClientSecret)

	orders, items := f.repo.Len()
	assert.Equal(t, 1, orders)
	assert.Equal(t, 1, items)

	o, ok := f.repo.Get(res.OrderID)
	require.True(t, ok)
	assert.Equal(t, "pi_123", o.PaymentIntentID)
	assert.Equal(t, domain.StatusPending, o.Status)
	assert.True(t, o.TotalAmount.Equal(decimal.RequireFromString("29.99")))
	assert.Equal(t, f.userID, o.UserID)
	assert.Equal(t, 1, o.Items[0].Quantity)
	assert.True(t, o.Items[0].PriceAtPurchase.Equal(f.vinyl.Price))

	require.Len(t, f.gateway.Requests, 1)
	req := f.gateway.Requests[0]
	assert.Equal(t, int64(2999), req.AmountMinor)
	assert.Equal(t, map[string]string{
		"orderId":   res.OrderID.String(),
		"userId":    f.userID.String(),
		"vinylId":   f.vinyl.ID.String(),
		"vinylName": "Kind of Blue",
	}, req.Metadata())
	assert.True(t, f.gateway.Deadline, "gateway call must be bounded by a timeout")
}

func TestCreatePaymentIntent_AmountSentToGateway(t *testing.T) {
	tests := []struct {
		price string
		want  int64
	}{
		{"19.99", 1999},
		{"29.99", 2999},
		{"0.01", 1},
		{"100.00", 10000},
		{"0.29", 29},
	}
	for _, tt := range tests {
		t.Run(tt.price, func(t *testing.T) {
			f := newFixture(t, tt.price)
			res, err := f.svc.CreatePaymentIntent(context.Background(), f.userID, f.vinyl.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Amount)
			require.Len(t, f.gateway.Requests, 1)
			assert.Equal(t, tt.want, f.gateway.Requests[0].AmountMinor)
		})
	}
}

func TestCreatePaymentIntent_UnknownVinyl(t *testing.T) {
	f := newFixture(t, "19.99")

	_, err := f.svc.CreatePaymentIntent(context.Background(), f.userID, uuid.New())
	require.ErrorIs(t, err, domain.ErrNotFound)
	assert.Zero(t, f.repo.Calls())
	assert.Empty(t, f.gateway.Requests)
}

func TestCreatePaymentIntent_GatewayFailureRollsBack(t *testing.T) {
	f := newFixture(t, "19.99")
	f.gateway.CreateErr = &domain.GatewayError{Message: "Your card was declined."}

	_, err := f.svc.CreatePaymentIntent(context.Background(), f.userID, f.vinyl.ID)
	require.Error(t, err)

	var gwErr *domain.GatewayError
	require.ErrorAs(t, err, &gwErr)
	assert.Equal(t, "Failed to create payment intent: Your card was declined.", err.Error())

	orders, items := f.repo.Len()
	assert.Zero(t, orders)
	assert.Zero(t, items)
	assert.Len(t, f.repo.DeletedItems, 1)

	list, err := f.svc.GetUserOrders(context.Background(), f.userID)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestCreatePaymentIntent_PlainGatewayErrorIsWrapped(t *testing.T) {
	f := newFixture(t, "19.99")
	cause := errors.New("connection reset by peer")
	f.gateway.CreateErr = cause

	_, err := f.svc.CreatePaymentIntent(context.Background(), f.userID, f.vinyl.ID)

	var gwErr *domain.GatewayError
	require.ErrorAs(t, err, &gwErr)
	assert.Equal(t, "connection reset by peer", gwErr.Message)
	assert.ErrorIs(t, err, cause)
}

func TestCreatePaymentIntent_RollbackSurvivesCancelledRequest(t *testing.T) {
	f := newFixture(t, "19.99")
	f.gateway.CreateErr = context.Canceled

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.svc.CreatePaymentIntent(ctx, f.userID, f.vinyl.ID)
	require.Error(t, err)

	orders, _ := f.repo.Len()
	assert.Zero(t, orders)
	assert.NoError(t, f.repo.DeleteCtxErr)
}

func TestCreatePaymentIntent_AttachSurvivesDisconnectAfterIntent(t *testing.T) {
	f := newFixture(t, "19.99")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.gateway.AfterCreate = cancel

	res, err := f.svc.CreatePaymentIntent(ctx, f.userID, f.vinyl.ID)
	require.NoError(t, err)

	o, ok := f.repo.Get(res.OrderID)
	require.True(t, ok)
	assert.Equal(t, "pi_123", o.PaymentIntentID)
	assert.Empty(t, f.gateway.Cancelled)

	list, err := f.svc.GetUserOrders(context.Background(), f.userID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, list[0].HasPaymentReference())
}

func TestCreatePaymentIntent_AttachFailureCompensates(t *testing.T) {
	f := newFixture(t, "19.99")
	f.repo.AttachErr = errors.New("db down")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.gateway.AfterCreate = cancel

	_, err := f.svc.CreatePaymentIntent(ctx, f.userID, f.vinyl.ID)
	require.Error(t, err)

	var gwErr *domain.GatewayError
	assert.False(t, errors.As(err, &gwErr))

	orders, items := f.repo.Len()
	assert.Zero(t, orders)
	assert.Zero(t, items)
	assert.NoError(t, f.repo.DeleteCtxErr)

	assert.Equal(t, []string{"pi_123"}, f.gateway.Cancelled)
	assert.NoError(t, f.gateway.CancelCtxErr)
	assert.True(t, f.gateway.CancelDeadline)

	list, err := f.svc.GetUserOrders(context.Background(), f.userID)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestCreatePaymentIntent_ChargesLivePriceOverStaleLookup(t *testing.T) {
	f := newFixture(t, "19.99")
	f.repo.LivePrices = map[uuid.UUID]decimal.Decimal{f.vinyl.ID: decimal.RequireFromString("29.99")}

	res, err := f.svc.CreatePaymentIntent(context.Background(), f.userID, f.vinyl.ID)
	require.NoError(t, err)

	assert.Equal(t, int64(2999), res.Amount)
	require.Len(t, f.gateway.Requests, 1)
	assert.Equal(t, int64(2999), f.gateway.Requests[0].AmountMinor)

	o, ok := f.repo.Get(res.OrderID)
	require.True(t, ok)
	assert.Equal(t, "29.99", o.Items[0].PriceAtPurchase.StringFixed(2))
	assert.Equal(t, []uuid.UUID{f.vinyl.ID}, f.catalog.Invalidated)
}

func TestCreatePaymentIntent_WithdrawnVinylIsNotFound(t *testing.T) {
	f := newFixture(t, "19.99")
	f.repo.Withdrawn = map[uuid.UUID]bool{f.vinyl.ID: true}

	_, err := f.svc.CreatePaymentIntent(context.Background(), f.userID, f.vinyl.ID)
	require.ErrorIs(t, err, domain.ErrItemNotFound)

	assert.Empty(t, f.gateway.Requests)
	assert.Equal(t, []uuid.UUID{f.vinyl.ID}, f.catalog.Invalidated)
	orders, _ := f.repo.Len()
	assert.Zero(t, orders)
}

func TestCreatePaymentIntent_UnchangedPriceKeepsCache(t *testing.T) {
	f := newFixture(t, "19.99")

	_, err := f.svc.CreatePaymentIntent(context.Background(), f.userID, f.vinyl.ID)
	require.NoError(t, err)
	assert.Empty(t, f.catalog.Invalidated)
}

func TestHandleWebhook_RejectsBadSignatureBeforeStore(t *testing.T) {
	f := newFixture(t, "19.99")
	f.gateway.ParseErr = domain.ErrSignature

	err := f.svc.HandleWebhook(context.Background(), "t=1,v1=bad", []byte(`{}`))
	require.ErrorIs(t, err, domain.ErrSignature)
	assert.Zero(t, f.repo.Calls())
	assert.Empty(t, f.notifier.Completed)
}

func TestHandleWebhook_MissingSecretFailsClosed(t *testing.T) {
	f := newFixture(t, "19.99")
	f.gateway.ParseErr = domain.ErrConfiguration

	err := f.svc.HandleWebhook(context.Background(), "sig", []byte(`{}`))
	require.ErrorIs(t, err, domain.ErrConfiguration)
	assert.Zero(t, f.repo.Calls())
}

func TestHandleWebhook_SucceededTwiceStaysCompleted(t *testing.T) {
	f := newFixture(t, "19.99")
	orderID := f.pendingWithIntent(t)
	f.gateway.Event = domain.WebhookEvent{ID: "evt_1", Type: "payment_intent.succeeded", Kind: domain.EventPaymentSucceeded, IntentID: "pi_123"}

	require.NoError(t, f.svc.HandleWebhook(context.Background(), "sig", []byte(`{}`)))
	o, _ := f.repo.Get(orderID)
	assert.Equal(t, domain.StatusCompleted, o.Status)

	require.NoError(t, f.svc.HandleWebhook(context.Background(), "sig", []byte(`{}`)))
	o, _ = f.repo.Get(orderID)
	assert.Equal(t, domain.StatusCompleted, o.Status)

	orders, items := f.repo.Len()
	assert.Equal(t, 1, orders)
	assert.Equal(t, 1, items)
	assert.Equal(t, []uuid.UUID{orderID}, f.notifier.Completed)
}

func TestHandleWebhook_ConcurrentDeliveriesNotifyOnce(t *testing.T) {
	f := newFixture(t, "19.99")
	orderID := f.pendingWithIntent(t)
	f.gateway.Event = domain.WebhookEvent{Kind: domain.EventPaymentSucceeded, IntentID: "pi_123"}

	var wg sync.WaitGroup
	var mu sync.Mutex
	var errs []error
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := f.svc.CompleteOrder(context.Background(), "pi_123")
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
		}()
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	o, _ := f.repo.Get(orderID)
	assert.Equal(t, domain.StatusCompleted, o.Status)
	assert.Len(t, f.notifier.Completed, 1)
}

func TestHandleWebhook_UnknownIntentIsSuccess(t *testing.T) {
	f := newFixture(t, "19.99")
	f.gateway.Event = domain.WebhookEvent{Kind: domain.EventPaymentSucceeded, IntentID: "pi_unknown"}

	require.NoError(t, f.svc.HandleWebhook(context.Background(), "sig", []byte(`{}`)))
	assert.Zero(t, f.repo.TransitionCalls)
	assert.Empty(t, f.notifier.Completed)
}

func TestHandleWebhook_FailedRecordsReason(t *testing.T) {
	f := newFixture(t, "19.99")
	orderID := f.pendingWithIntent(t)
	f.gateway.Event = domain.WebhookEvent{
		Kind:           domain.EventPaymentFailed,
		IntentID:       "pi_123",
		FailureMessage: "Your card has insufficient funds.",
	}

	require.NoError(t, f.svc.HandleWebhook(context.Background(), "sig", []byte(`{}`)))

	o, _ := f.repo.Get(orderID)
	assert.Equal(t, domain.StatusFailed, o.Status)
	assert.Equal(t, []uuid.UUID{orderID}, f.notifier.Failed)
	assert.Equal(t, []string{"Your card has insufficient funds."}, f.notifier.Reasons)
}

func TestHandleWebhook_LateFailureDoesNotDowngradeCompleted(t *testing.T) {
	f := newFixture(t, "19.99")
	orderID := f.pendingWithIntent(t)

	require.NoError(t, f.svc.CompleteOrder(context.Background(), "pi_123"))
	require.NoError(t, f.svc.FailOrder(context.Background(), "pi_123", "late"))

	o, _ := f.repo.Get(orderID)
	assert.Equal(t, domain.StatusCompleted, o.Status)
	assert.Empty(t, f.notifier.Failed)
	assert.Equal(t, 1, f.repo.TransitionCalls)
}

func TestHandleWebhook_IgnoresUnmodelledEvents(t *testing.T) {
	f := newFixture(t, "19.99")
	f.gateway.Event = domain.WebhookEvent{ID: "evt_2", Type: "charge.succeeded", Kind: domain.EventIgnored}

	require.NoError(t, f.svc.HandleWebhook(context.Background(), "sig", []byte(`{}`)))
	assert.Zero(t, f.repo.Calls())
}

func TestHandleWebhook_NotifierErrorDoesNotPropagate(t *testing.T) {
	f := newFixture(t, "19.99")
	orderID := f.pendingWithIntent(t)
	f.notifier.Err = errors.New("smtp unavailable")
	f.gateway.Event = domain.WebhookEvent{Kind: domain.EventPaymentSucceeded, IntentID: "pi_123"}

	require.NoError(t, f.svc.HandleWebhook(context.Background(), "sig", []byte(`{}`)))
	o, _ := f.repo.Get(orderID)
	assert.Equal(t, domain.StatusCompleted, o.Status)
}

func TestHandleWebhook_StoreErrorPropagates(t *testing.T) {
	f := newFixture(t, "19.99")
	f.pendingWithIntent(t)
	f.repo.TransitionErr = errors.New("deadlock detected")
	f.gateway.Event = domain.WebhookEvent{Kind: domain.EventPaymentSucceeded, IntentID: "pi_123"}

	err := f.svc.HandleWebhook(context.Background(), "sig", []byte(`{}`))
	require.Error(t, err)
	assert.Empty(t, f.notifier.Completed)
}

func TestGetOrder_OwnershipIsolation(t *testing.T) {
	f := newFixture(t, "19.99")
	orderID := f.pendingWithIntent(t)

	o, err := f.svc.GetOrder(context.Background(), orderID, f.userID)
	require.NoError(t, err)
	assert.Equal(t, orderID, o.ID)

	_, errForeign := f.svc.GetOrder(context.Background(), orderID, uuid.New())
	_, errMissing := f.svc.GetOrder(context.Background(), uuid.New(), f.userID)

	require.ErrorIs(t, errForeign, domain.ErrNotFound)
	require.ErrorIs(t, errMissing, domain.ErrNotFound)
	assert.Equal(t, errMissing.Error(), errForeign.Error())
}

func TestGetUserOrders_OnlyCallersOrders(t *testing.T) {
	f := newFixture(t, "19.99")
	f.pendingWithIntent(t)

	mine, err := f.svc.GetUserOrders(context.Background(), f.userID)
	require.NoError(t, err)
	assert.Len(t, mine, 1)

	theirs, err := f.svc.GetUserOrders(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Empty(t, theirs)
}
