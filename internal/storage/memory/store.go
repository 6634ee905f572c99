package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/wholesale/internal/domain"
)

// lineItemRecord хранит позицию и порядковый номер вставки.
type lineItemRecord struct {
	item domain.OrderProduct
	seq  int64
}

// state — всё содержимое in-memory хранилища.
type state struct {
	seq        int64
	categories map[string]domain.Category
	products   map[string]domain.Product
	offers     map[string]domain.Offer
	customers  map[string]domain.BusinessUser
	orders     map[string]domain.Order
	lineItems  map[string]lineItemRecord
	timeline   map[string][]domain.TimelineEvent
	outbox     map[string]outboxRecord
}

func newState() *state {
	return &state{
		categories: make(map[string]domain.Category),
		products:   make(map[string]domain.Product),
		offers:     make(map[string]domain.Offer),
		customers:  make(map[string]domain.BusinessUser),
		orders:     make(map[string]domain.Order),
		lineItems:  make(map[string]lineItemRecord),
		timeline:   make(map[string][]domain.TimelineEvent),
		outbox:     make(map[string]outboxRecord),
	}
}

func (s *state) nextSeq() int64 {
	s.seq++
	return s.seq
}

// clone возвращает черновик для транзакции: O(число строк во всех таблицах).
// Значения в картах неизменяемы, поэтому копируются поверхностно.
func (s *state) clone() *state {
	dst := &state{
		seq:        s.seq,
		categories: cloneMap(s.categories),
		products:   cloneMap(s.products),
		offers:     cloneMap(s.offers),
		customers:  cloneMap(s.customers),
		orders:     cloneMap(s.orders),
		lineItems:  cloneMap(s.lineItems),
		timeline:   make(map[string][]domain.TimelineEvent, len(s.timeline)),
		outbox:     cloneMap(s.outbox),
	}
	for orderID, events := range s.timeline {
		dst.timeline[orderID] = append([]domain.TimelineEvent(nil), events...)
	}
	return dst
}

func cloneMap[K comparable, V any](src map[K]V) map[K]V {
	dst := make(map[K]V, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

// Store — in-memory реализация domain.Store для локальной разработки и тестов.
// Транзакции сериализуются одной блокировкой и работают над копией состояния,
// которая подменяет текущее только при успешном завершении.
//
// Каждая пишущая транзакция копирует все таблицы, так что её стоимость растёт
// линейно с общим числом строк, а не с числом изменённых. Для наборов данных
// тестов и локального запуска это незаметно; нагрузочные сценарии и большие
// каталоги нужно гонять на postgres.Store.
type Store struct {
	mu    sync.RWMutex
	state *state
	now   func() time.Time
}

// Option настраивает Store.
type Option func(*Store)

// WithClock подменяет источник времени (для тестов).
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// NewStore создаёт пустое хранилище.
func NewStore(opts ...Option) *Store {
	s := &Store{
		state: newState(),
		now:   func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// WithinTx выполняет fn над черновиком состояния и фиксирует его, если fn не вернула ошибку.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx domain.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	draft := s.state.clone()
	if err := fn(ctx, &memTx{st: draft, now: s.now}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.state = draft
	return nil
}

// View выполняет fn над текущим состоянием без права записи.
func (s *Store) View(ctx context.Context, fn func(ctx context.Context, tx domain.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return fn(ctx, &memTx{st: s.state, readOnly: true, now: s.now})
}

// Ping всегда успешен; нужен для health-проверки наравне с Postgres.
func (s *Store) Ping(context.Context) error { return nil }

// memTx реализует domain.Tx поверх одного снимка состояния.
type memTx struct {
	st       *state
	readOnly bool
	now      func() time.Time
}

func (t *memTx) Categories() domain.CategoryRepository { return categoryRepo{t} }
func (t *memTx) Products() domain.ProductRepository    { return productRepo{t} }
func (t *memTx) Offers() domain.OfferRepository        { return offerRepo{t} }
func (t *memTx) Customers() domain.CustomerRepository  { return customerRepo{t} }
func (t *memTx) Orders() domain.OrderRepository        { return orderRepo{t} }
func (t *memTx) Timeline() domain.TimelineRepository   { return timelineRepo{t} }
func (t *memTx) Outbox() domain.OutboxWriter           { return outboxWriter{t} }

func (t *memTx) writable() error {
	if t.readOnly {
		return domain.ErrReadOnlyTx
	}
	return nil
}

// sortByCreated упорядочивает записи по времени создания, при равенстве по ID.
func sortByCreated[T any](items []T, created func(T) time.Time, id func(T) string) {
	sort.Slice(items, func(i, j int) bool {
		ci, cj := created(items[i]), created(items[j])
		if !ci.Equal(cj) {
			return ci.Before(cj)
		}
		return id(items[i]) < id(items[j])
	})
}

var (
	_ domain.Store = (*Store)(nil)
	_ domain.Tx    = (*memTx)(nil)
)
