package orders

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/heremarket/orders/internal/domain"
	"github.com/heremarket/orders/internal/models"
)

// MemoryStore keeps orders in process memory. The mutex is held for the whole
// check-and-set of every mutation.
type MemoryStore struct {
	mu      sync.RWMutex
	orders  map[string]models.Order
	byRef   map[string]string
	byExtTx map[string]string
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		orders:  make(map[string]models.Order),
		byRef:   make(map[string]string),
		byExtTx: make(map[string]string),
		now:     time.Now,
	}
}

func (s *MemoryStore) Create(ctx context.Context, order *models.Order) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.byRef[order.HumanReference]; taken {
		return "", fmt.Errorf("humanReference %s: %w", order.HumanReference, domain.ErrConflict)
	}
	if order.ID == "" {
		order.ID = uuid.NewString()
	}
	if _, taken := s.orders[order.ID]; taken {
		return "", fmt.Errorf("order id %s: %w", order.ID, domain.ErrConflict)
	}
	order.Version = 1
	s.orders[order.ID] = cloneOrder(*order)
	s.byRef[order.HumanReference] = order.ID
	return order.ID, nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.orders[id]
	if !ok {
		return models.Order{}, fmt.Errorf("order %s: %w", id, domain.ErrNotFound)
	}
	return cloneOrder(o), nil
}

func (s *MemoryStore) GetByReference(ctx context.Context, reference string) (models.Order, error) {
	s.mu.RLock()
	id, ok := s.byRef[reference]
	s.mu.RUnlock()
	if !ok {
		return models.Order{}, fmt.Errorf("order reference %s: %w", reference, domain.ErrNotFound)
	}
	return s.Get(ctx, id)
}

func (s *MemoryStore) List(ctx context.Context, filter ListFilter) ([]models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Order, 0)
	for _, o := range s.orders {
		if filter.OwnerID != "" && (o.OwnerID == nil || *o.OwnerID != filter.OwnerID) {
			continue
		}
		if filter.Status != "" && o.Status != filter.Status {
			continue
		}
		out = append(out, cloneOrder(o))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	if filter.Offset > 0 {
		if filter.Offset >= int64(len(out)) {
			return []models.Order{}, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < int64(len(out)) {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *MemoryStore) MarkPaymentRequested(ctx context.Context, id, gatewayRef string, at time.Time) (models.Order, error) {
	o, _, err := s.mutate(id, decidePaymentRequest(gatewayRef, at))
	return o, err
}

func (s *MemoryStore) ApplyPaymentResult(ctx context.Context, id string, result PaymentResult) (models.Order, bool, error) {
	return s.mutate(id, decidePaymentResult(result, s.now()))
}

func (s *MemoryStore) SetFulfillmentStatus(ctx context.Context, id string, status models.OrderStatus, by Actor) (models.Order, bool, error) {
	return s.mutate(id, decideFulfillment(status, by, s.now()))
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *MemoryStore) mutate(id string, decide decideFunc) (models.Order, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.orders[id]
	if !ok {
		return models.Order{}, false, fmt.Errorf("order %s: %w", id, domain.ErrNotFound)
	}
	next, changed, err := decide(cloneOrder(current))
	if err != nil || !changed {
		return cloneOrder(current), false, err
	}

	if ref := next.ExternalRef(); ref != "" && ref != current.ExternalRef() {
		if owner, taken := s.byExtTx[ref]; taken && owner != id {
			return cloneOrder(current), false, fmt.Errorf("externalTransactionRef %s: %w", ref, domain.ErrConflict)
		}
		s.byExtTx[ref] = id
	}
	s.orders[id] = cloneOrder(next)
	return cloneOrder(next), true, nil
}

func cloneOrder(o models.Order) models.Order {
	out := o
	if o.Items != nil {
		out.Items = append([]models.LineItem(nil), o.Items...)
	}
	if o.OwnerID != nil {
		v := *o.OwnerID
		out.OwnerID = &v
	}
	if o.Payment.ExternalTransactionRef != nil {
		v := *o.Payment.ExternalTransactionRef
		out.Payment.ExternalTransactionRef = &v
	}
	if o.Payment.RequestedAt != nil {
		v := *o.Payment.RequestedAt
		out.Payment.RequestedAt = &v
	}
	if o.Payment.PaidAt != nil {
		v := *o.Payment.PaidAt
		out.Payment.PaidAt = &v
	}
	return out
}

var _ Store = (*MemoryStore)(nil)
