package application

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dmehra2102/vinyl-storefront/internal/order/domain"
)

// MockRepository is an in-memory OrderRepository that counts every call.
type MockRepository struct {
	mu     sync.Mutex
	orders map[uuid.UUID]domain.Order
	calls  int

	CreateErr      error
	AttachErr      error
	DeleteOrderErr error
	TransitionErr  error

	TransitionCalls int
	DeletedItems    []uuid.UUID
	DeleteCtxErr    error

	// LivePrices and Withdrawn stand in for the catalog rows CreatePending reads.
	LivePrices map[uuid.UUID]decimal.Decimal
	Withdrawn  map[uuid.UUID]bool
}

func NewMockRepository() *MockRepository {
	return &MockRepository{orders: map[uuid.UUID]domain.Order{}}
}

func (m *MockRepository) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *MockRepository) Put(o domain.Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[o.ID] = o
}

func (m *MockRepository) Get(id uuid.UUID) (domain.Order, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	return o, ok
}

func (m *MockRepository) Len() (orders, items int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		orders++
		items += len(o.Items)
	}
	return orders, items
}

func (m *MockRepository) CreatePending(_ context.Context, userID uuid.UUID, items []domain.LineItem) (domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.CreateErr != nil {
		return domain.Order{}, m.CreateErr
	}
	priced := make([]domain.LineItem, len(items))
	for i, li := range items {
		if m.Withdrawn[li.Item.ID] {
			return domain.Order{}, domain.ErrItemNotFound
		}
		if p, ok := m.LivePrices[li.Item.ID]; ok {
			li.Item.Price = p
		}
		priced[i] = li
	}
	o, err := domain.NewPendingOrder(userID, priced)
	if err != nil {
		return domain.Order{}, err
	}
	m.orders[o.ID] = o
	return o, nil
}

func (m *MockRepository) AttachPaymentReference(ctx context.Context, orderID uuid.UUID, ref string) (domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if err := ctx.Err(); err != nil {
		return domain.Order{}, err
	}
	if m.AttachErr != nil {
		return domain.Order{}, m.AttachErr
	}
	o, ok := m.orders[orderID]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	if o.HasPaymentReference() && o.PaymentIntentID != ref {
		return domain.Order{}, domain.ErrPaymentReferenceAlreadySet
	}
	o.PaymentIntentID = ref
	m.orders[orderID] = o
	return o, nil
}

func (m *MockRepository) DeleteItem(_ context.Context, itemID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.DeletedItems = append(m.DeletedItems, itemID)
	for id, o := range m.orders {
		kept := o.Items[:0]
		for _, it := range o.Items {
			if it.ID != itemID {
				kept = append(kept, it)
			}
		}
		o.Items = kept
		m.orders[id] = o
	}
	return nil
}

func (m *MockRepository) DeleteOrder(ctx context.Context, orderID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.DeleteCtxErr = ctx.Err()
	if m.DeleteOrderErr != nil {
		return m.DeleteOrderErr
	}
	delete(m.orders, orderID)
	return nil
}

func (m *MockRepository) FindByPaymentReference(_ context.Context, ref string) (domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	for _, o := range m.orders {
		if o.PaymentIntentID == ref && ref != "" {
			return o, nil
		}
	}
	return domain.Order{}, domain.ErrOrderNotFound
}

func (m *MockRepository) FindByIDForUser(_ context.Context, orderID, userID uuid.UUID) (domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	o, ok := m.orders[orderID]
	if !ok || o.UserID != userID {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return o, nil
}

func (m *MockRepository) ListForUser(_ context.Context, userID uuid.UUID) ([]domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	var out []domain.Order
	for _, o := range m.orders {
		if o.UserID == userID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (m *MockRepository) TransitionStatus(_ context.Context, orderID uuid.UUID, from, to domain.OrderStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.TransitionCalls++
	if m.TransitionErr != nil {
		return false, m.TransitionErr
	}
	o, ok := m.orders[orderID]
	if !ok || o.Status != from {
		return false, nil
	}
	o.Status = to
	m.orders[orderID] = o
	return true, nil
}

// MockCatalog implements CatalogLookup and CatalogInvalidator from a fixed set of items.
type MockCatalog struct {
	Items       map[uuid.UUID]domain.CatalogItem
	Err         error
	Invalidated []uuid.UUID
}

func (m *MockCatalog) Invalidate(_ context.Context, id uuid.UUID) error {
	m.Invalidated = append(m.Invalidated, id)
	return nil
}

func (m *MockCatalog) FindByID(_ context.Context, id uuid.UUID) (domain.CatalogItem, error) {
	if m.Err != nil {
		return domain.CatalogItem{}, m.Err
	}
	item, ok := m.Items[id]
	if !ok {
		return domain.CatalogItem{}, domain.ErrItemNotFound
	}
	return item, nil
}

// MockGateway implements PaymentGateway and captures the last intent request.
type MockGateway struct {
	Intent    domain.PaymentIntent
	CreateErr error
	Requests  []domain.IntentRequest
	Deadline  bool

	// AfterCreate runs once the intent has been created, before the service sees it.
	AfterCreate func()

	Cancelled      []string
	CancelCtxErr   error
	CancelDeadline bool

	Event    domain.WebhookEvent
	ParseErr error
	Parsed   int
}

func (m *MockGateway) CreateIntent(ctx context.Context, req domain.IntentRequest) (domain.PaymentIntent, error) {
	m.Requests = append(m.Requests, req)
	_, m.Deadline = ctx.Deadline()
	if m.CreateErr != nil {
		return domain.PaymentIntent{}, m.CreateErr
	}
	if m.AfterCreate != nil {
		m.AfterCreate()
	}
	return m.Intent, nil
}

func (m *MockGateway) CancelIntent(ctx context.Context, intentID string) error {
	m.Cancelled = append(m.Cancelled, intentID)
	m.CancelCtxErr = ctx.Err()
	_, m.CancelDeadline = ctx.Deadline()
	return nil
}

func (m *MockGateway) ParseWebhook(_ []byte, _ string) (domain.WebhookEvent, error) {
	m.Parsed++
	if m.ParseErr != nil {
		return domain.WebhookEvent{}, m.ParseErr
	}
	return m.Event, nil
}

// MockNotifier implements Notifier and records what it was asked to send.
type MockNotifier struct {
	Completed []uuid.UUID
	Failed    []uuid.UUID
	Reasons   []string
	Err       error
}

func (m *MockNotifier) OrderCompleted(_ context.Context, o domain.Order) error {
	m.Completed = append(m.Completed, o.ID)
	return m.Err
}

func (m *MockNotifier) PaymentFailed(_ context.Context, o domain.Order, reason string) error {
	m.Failed = append(m.Failed, o.ID)
	m.Reasons = append(m.Reasons, reason)
	return m.Err
}
