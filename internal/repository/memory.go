package repository

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"storefront/internal/domain"
)

// MemoryStore keeps products, orders and carts in process memory behind one RWMutex
type MemoryStore struct {
	mu           sync.RWMutex
	seq          uint64
	productsByID map[string]memRecord[domain.Product]
	ordersByID   map[string]memRecord[domain.Order]
	cartsByUser  map[string]*domain.Cart
}

// memRecord remembers insertion order so listings are stable
type memRecord[T any] struct {
	seq uint64
	val T
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		productsByID: make(map[string]memRecord[domain.Product]),
		ordersByID:   make(map[string]memRecord[domain.Order]),
		cartsByUser:  make(map[string]*domain.Cart),
	}
}

// transaction-aware locking helpers
type txKey struct{}

func isTx(ctx context.Context) bool {
	v := ctx.Value(txKey{})
	if v == nil {
		return false
	}
	b, ok := v.(bool)
	return ok && b
}

func (m *MemoryStore) rlock(ctx context.Context) {
	if !isTx(ctx) {
		m.mu.RLock()
	}
}
func (m *MemoryStore) runlock(ctx context.Context) {
	if !isTx(ctx) {
		m.mu.RUnlock()
	}
}
func (m *MemoryStore) wlock(ctx context.Context) {
	if !isTx(ctx) {
		m.mu.Lock()
	}
}
func (m *MemoryStore) wunlock(ctx context.Context) {
	if !isTx(ctx) {
		m.mu.Unlock()
	}
}

func (m *MemoryStore) nextSeq() uint64 {
	m.seq++
	return m.seq
}

var (
	_ ProductRepository = (*MemoryStore)(nil)
	_ Inventory         = (*MemoryStore)(nil)
)

// ProductRepository implementation
func (m *MemoryStore) Create(ctx context.Context, p *domain.Product) error {
	m.wlock(ctx)
	defer m.wunlock(ctx)
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
		p.UpdatedAt = p.CreatedAt
	}
	m.productsByID[p.ID] = memRecord[domain.Product]{seq: m.nextSeq(), val: *p}
	return nil
}

func (m *MemoryStore) GetByID(ctx context.Context, id string) (*domain.Product, error) {
	m.rlock(ctx)
	defer m.runlock(ctx)
	rec, ok := m.productsByID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := rec.val
	return &cp, nil
}

func (m *MemoryStore) Update(ctx context.Context, p *domain.Product) error {
	m.wlock(ctx)
	defer m.wunlock(ctx)
	rec, ok := m.productsByID[p.ID]
	if !ok {
		return ErrNotFound
	}
	// stock belongs to the ledger
	p.Quantity = rec.val.Quantity
	p.CreatedAt = rec.val.CreatedAt
	p.UpdatedAt = time.Now().UTC()
	rec.val = *p
	m.productsByID[p.ID] = rec
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, id string) error {
	m.wlock(ctx)
	defer m.wunlock(ctx)
	if _, ok := m.productsByID[id]; !ok {
		return ErrNotFound
	}
	delete(m.productsByID, id)
	return nil
}

func (m *MemoryStore) List(ctx context.Context, f ProductFilter) ([]domain.Product, error) {
	m.rlock(ctx)
	defer m.runlock(ctx)
	recs := make([]memRecord[domain.Product], 0, len(m.productsByID))
	for _, rec := range m.productsByID {
		if f.Match(rec.val) {
			recs = append(recs, rec)
		}
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].seq < recs[j].seq })
	out := make([]domain.Product, 0, len(recs))
	for _, rec := range recs {
		out = append(out, rec.val)
	}
	return out, nil
}

// Inventory implementation
func (m *MemoryStore) CheckAndReserve(ctx context.Context, productID string, qty int64) (int64, bool, error) {
	m.wlock(ctx)
	defer m.wunlock(ctx)
	rec, ok := m.productsByID[productID]
	if !ok {
		return 0, false, ErrNotFound
	}
	if rec.val.Quantity < qty {
		return rec.val.Quantity, false, nil
	}
	rec.val.Quantity -= qty
	m.productsByID[productID] = rec
	return rec.val.Quantity, true, nil
}

func (m *MemoryStore) Restore(ctx context.Context, productID string, qty int64) error {
	m.wlock(ctx)
	defer m.wunlock(ctx)
	rec, ok := m.productsByID[productID]
	if !ok {
		return ErrNotFound
	}
	if qty > math.MaxInt64-rec.val.Quantity {
		return ErrStockOverflow
	}
	rec.val.Quantity += qty
	m.productsByID[productID] = rec
	return nil
}

// OrderRepository implementation on wrapper type
type MemoryOrders struct{ store *MemoryStore }

func NewMemoryOrders(store *MemoryStore) *MemoryOrders { return &MemoryOrders{store: store} }

var _ OrderRepository = (*MemoryOrders)(nil)

func cloneOrder(o domain.Order) domain.Order {
	o.Lines = append([]domain.OrderLine(nil), o.Lines...)
	return o
}

func (mo *MemoryOrders) Create(ctx context.Context, o *domain.Order) error {
	mo.store.wlock(ctx)
	defer mo.store.wunlock(ctx)
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now().UTC()
		o.UpdatedAt = o.CreatedAt
	}
	mo.store.ordersByID[o.ID] = memRecord[domain.Order]{seq: mo.store.nextSeq(), val: cloneOrder(*o)}
	return nil
}

func (mo *MemoryOrders) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	mo.store.rlock(ctx)
	defer mo.store.runlock(ctx)
	rec, ok := mo.store.ordersByID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := cloneOrder(rec.val)
	return &cp, nil
}

func (mo *MemoryOrders) List(ctx context.Context, f OrderFilter) ([]domain.Order, error) {
	mo.store.rlock(ctx)
	defer mo.store.runlock(ctx)
	recs := make([]memRecord[domain.Order], 0)
	for _, rec := range mo.store.ordersByID {
		if f.Match(rec.val) {
			recs = append(recs, rec)
		}
	}
	// newest first
	sort.Slice(recs, func(i, j int) bool {
		if !recs[i].val.CreatedAt.Equal(recs[j].val.CreatedAt) {
			return recs[i].val.CreatedAt.After(recs[j].val.CreatedAt)
		}
		return recs[i].seq > recs[j].seq
	})
	out := make([]domain.Order, 0, len(recs))
	for _, rec := range recs {
		out = append(out, cloneOrder(rec.val))
	}
	return out, nil
}

func (mo *MemoryOrders) UpdateStatus(ctx context.Context, id string, from, to domain.OrderStatus) (*domain.Order, error) {
	mo.store.wlock(ctx)
	defer mo.store.wunlock(ctx)
	rec, ok := mo.store.ordersByID[id]
	if !ok {
		return nil, ErrNotFound
	}
	if rec.val.Status != from {
		return nil, domain.ErrConcurrencyConflict
	}
	rec.val.Status = to
	rec.val.UpdatedAt = time.Now().UTC()
	mo.store.ordersByID[id] = rec
	cp := cloneOrder(rec.val)
	return &cp, nil
}

func (mo *MemoryOrders) Delete(ctx context.Context, id string) error {
	mo.store.wlock(ctx)
	defer mo.store.wunlock(ctx)
	if _, ok := mo.store.ordersByID[id]; !ok {
		return ErrNotFound
	}
	delete(mo.store.ordersByID, id)
	return nil
}

// CartRepository implementation on wrapper type
type MemoryCarts struct{ store *MemoryStore }

func NewMemoryCarts(store *MemoryStore) *MemoryCarts { return &MemoryCarts{store: store} }

var _ CartRepository = (*MemoryCarts)(nil)

func (mc *MemoryCarts) Get(ctx context.Context, userID string) (*domain.Cart, error) {
	mc.store.rlock(ctx)
	defer mc.store.runlock(ctx)
	c, ok := mc.store.cartsByUser[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return c.Clone(), nil
}

func (mc *MemoryCarts) Mutate(ctx context.Context, userID string, create bool, fn func(c *domain.Cart) error) (*domain.Cart, error) {
	mc.store.wlock(ctx)
	defer mc.store.wunlock(ctx)
	var work *domain.Cart
	if c, ok := mc.store.cartsByUser[userID]; ok {
		work = c.Clone()
	} else if create {
		work = domain.NewCart(userID, time.Now().UTC())
	} else {
		return nil, ErrNotFound
	}
	if err := fn(work); err != nil {
		return nil, err
	}
	work.UpdatedAt = time.Now().UTC()
	mc.store.cartsByUser[userID] = work
	return work.Clone(), nil
}

// MemoryTx emulates a transaction with the store write lock
type MemoryTx struct{ store *MemoryStore }

func NewMemoryTx(store *MemoryStore) *MemoryTx { return &MemoryTx{store: store} }

func (tx *MemoryTx) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	// already inside: the lock is held by the outer call
	if isTx(ctx) {
		return fn(ctx)
	}
	// repositories see the marked ctx and skip their own locks
	tx.store.mu.Lock()
	defer tx.store.mu.Unlock()
	ctx = context.WithValue(ctx, txKey{}, true)
	return fn(ctx)
}
