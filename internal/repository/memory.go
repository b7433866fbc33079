package repository

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/mmeshcher/uniform-points/internal/model"
)

type inventoryKey struct {
	storeID   int64
	productID int64
	variant   string
}

type sequenceKey struct {
	scope string
	day   string
}

// memoryState хранит полное состояние in-memory хранилища.
// Транзакция работает с ним напрямую, откат восстанавливает снимок.
type memoryState struct {
	ids       map[string]int64
	persons   map[int64]model.Person
	summaries map[int64]model.PointSummary
	products  map[int64]model.Product
	stores    map[int64]model.Store
	tailors   map[int64]model.Tailor
	ledger    []model.LedgerEntry
	sequences map[sequenceKey]int
	orders    map[int64]model.Order
	inventory map[inventoryKey]model.InventoryRecord
	invLogs   []model.InventoryLog
	tickets   map[int64]model.Ticket
	batches   map[int64]model.SettlementBatch
}

func newMemoryState() *memoryState {
	return &memoryState{
		ids:       map[string]int64{},
		persons:   map[int64]model.Person{},
		summaries: map[int64]model.PointSummary{},
		products:  map[int64]model.Product{},
		stores:    map[int64]model.Store{},
		tailors:   map[int64]model.Tailor{},
		sequences: map[sequenceKey]int{},
		orders:    map[int64]model.Order{},
		inventory: map[inventoryKey]model.InventoryRecord{},
		tickets:   map[int64]model.Ticket{},
		batches:   map[int64]model.SettlementBatch{},
	}
}

// snapshot копирует состояние. Вложенные срезы заказов не изменяются
// после вставки, поэтому достаточно поверхностной копии карт.
func (s *memoryState) snapshot() *memoryState {
	return &memoryState{
		ids:       maps.Clone(s.ids),
		persons:   maps.Clone(s.persons),
		summaries: maps.Clone(s.summaries),
		products:  maps.Clone(s.products),
		stores:    maps.Clone(s.stores),
		tailors:   maps.Clone(s.tailors),
		ledger:    slices.Clone(s.ledger),
		sequences: maps.Clone(s.sequences),
		orders:    maps.Clone(s.orders),
		inventory: maps.Clone(s.inventory),
		invLogs:   slices.Clone(s.invLogs),
		tickets:   maps.Clone(s.tickets),
		batches:   maps.Clone(s.batches),
	}
}

func (s *memoryState) nextID(table string) int64 {
	s.ids[table]++
	return s.ids[table]
}

// MemoryRepository реализует хранилище в памяти для тестов и локального запуска.
// Транзакции сериализуются одним мьютексом; ошибка fn откатывает состояние к снимку.
type MemoryRepository struct {
	mu    sync.Mutex
	state *memoryState
	now   func() time.Time
}

// NewMemoryRepository создаёт пустое in-memory хранилище.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		state: newMemoryState(),
		now:   time.Now,
	}
}

// InTx выполняет fn атомарно относительно других транзакций и чтений.
func (r *MemoryRepository) InTx(ctx context.Context, fn func(Tx) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	snapshot := r.state.snapshot()
	if err := fn(&memoryTx{s: r.state, now: r.now}); err != nil {
		r.state = snapshot
		return asTransactionFailure(err)
	}
	return nil
}

// Close ничего не делает; метод нужен для единообразия с PostgresRepository.
func (r *MemoryRepository) Close() error {
	return nil
}

type memoryTx struct {
	s   *memoryState
	now func() time.Time
}

func (t *memoryTx) GetPerson(_ context.Context, id int64) (*model.Person, error) {
	return t.s.person(id)
}

func (s *memoryState) person(id int64) (*model.Person, error) {
	p, ok := s.persons[id]
	if !ok {
		return nil, fmt.Errorf("person: %w", ErrNotFound)
	}
	return &p, nil
}

func (t *memoryTx) ListActiveBeneficiaries(_ context.Context) ([]model.Person, error) {
	var res []model.Person
	for _, p := range t.s.persons {
		if p.Active && p.IsBeneficiary() {
			res = append(res, p)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res, nil
}

func (t *memoryTx) InsertPerson(_ context.Context, p *model.Person) error {
	for _, existing := range t.s.persons {
		if existing.ServiceNumber == p.ServiceNumber {
			return &ValidationError{Field: "service_number", Reason: "already registered"}
		}
	}
	if p.StoreID != nil {
		if _, ok := t.s.stores[*p.StoreID]; !ok {
			return &ValidationError{Field: "affiliation", Reason: "unknown store or tailor"}
		}
	}
	if p.TailorID != nil {
		if _, ok := t.s.tailors[*p.TailorID]; !ok {
			return &ValidationError{Field: "affiliation", Reason: "unknown store or tailor"}
		}
	}

	p.ID = t.s.nextID("persons")
	p.Active = true
	p.CreatedAt = t.now()
	t.s.persons[p.ID] = *p

	if p.IsBeneficiary() {
		t.s.summaries[p.ID] = model.PointSummary{PersonID: p.ID, UpdatedAt: p.CreatedAt}
	}
	return nil
}

func (t *memoryTx) DeactivatePerson(_ context.Context, id int64) error {
	p, ok := t.s.persons[id]
	if !ok {
		return fmt.Errorf("person: %w", ErrNotFound)
	}
	p.Active = false
	t.s.persons[id] = p
	return nil
}

func (t *memoryTx) GetProduct(_ context.Context, id int64) (*model.Product, error) {
	p, ok := t.s.products[id]
	if !ok {
		return nil, fmt.Errorf("product %d: %w", id, ErrNotFound)
	}
	return &p, nil
}

func (t *memoryTx) InsertProduct(_ context.Context, p *model.Product) error {
	p.ID = t.s.nextID("products")
	p.Active = true
	t.s.products[p.ID] = *p
	return nil
}

func (t *memoryTx) GetStore(_ context.Context, id int64) (*model.Store, error) {
	s, ok := t.s.stores[id]
	if !ok {
		return nil, fmt.Errorf("store %d: %w", id, ErrNotFound)
	}
	return &s, nil
}

func (t *memoryTx) InsertStore(_ context.Context, s *model.Store) error {
	s.ID = t.s.nextID("stores")
	t.s.stores[s.ID] = *s
	return nil
}

func (t *memoryTx) LockTailor(_ context.Context, id int64) (*model.Tailor, error) {
	tl, ok := t.s.tailors[id]
	if !ok {
		return nil, fmt.Errorf("tailor %d: %w", id, ErrNotFound)
	}
	return &tl, nil
}

func (t *memoryTx) InsertTailor(_ context.Context, tl *model.Tailor) error {
	tl.ID = t.s.nextID("tailors")
	tl.Active = true
	t.s.tailors[tl.ID] = *tl
	return nil
}

func (s *memoryState) summary(personID int64) (*model.PointSummary, error) {
	sum, ok := s.summaries[personID]
	if !ok {
		return nil, fmt.Errorf("point summary for person %d: %w", personID, ErrNotFound)
	}
	return &sum, nil
}

func (t *memoryTx) LockPointSummary(_ context.Context, personID int64) (*model.PointSummary, error) {
	return t.s.summary(personID)
}

func (t *memoryTx) AppendLedgerEntry(_ context.Context, e *model.LedgerEntry) (*model.PointSummary, error) {
	if !e.Kind.IsValid() || e.Amount <= 0 {
		return nil, &ValidationError{Field: "ledger_entry", Reason: "unknown kind or non-positive amount"}
	}

	current, err := t.s.summary(e.PersonID)
	if err != nil {
		return nil, err
	}
	next := current.Apply(e.Kind, e.Amount)
	if !next.Valid() {
		return nil, &InsufficientPointsError{PersonID: e.PersonID, Available: current.Available(), Requested: e.Amount}
	}

	if e.Kind == model.LedgerGrant && e.FiscalYear != nil {
		for _, existing := range t.s.ledger {
			if existing.PersonID == e.PersonID && existing.Kind == model.LedgerGrant &&
				existing.FiscalYear != nil && *existing.FiscalYear == *e.FiscalYear {
				return nil, fmt.Errorf("annual grant for person %d year %d: %w", e.PersonID, *e.FiscalYear, ErrBatchInProgress)
			}
		}
	}

	e.ID = t.s.nextID("ledger_entries")
	e.CreatedAt = t.now()
	next.UpdatedAt = e.CreatedAt
	if !next.UpdatedAt.After(current.UpdatedAt) {
		next.UpdatedAt = current.UpdatedAt.Add(time.Microsecond)
	}

	t.s.ledger = append(t.s.ledger, *e)
	t.s.summaries[e.PersonID] = next
	return &next, nil
}

func (t *memoryTx) HasAnnualGrant(_ context.Context, personID int64, fiscalYear int) (bool, error) {
	for _, e := range t.s.ledger {
		if e.PersonID == personID && e.Kind == model.LedgerGrant && e.FiscalYear != nil && *e.FiscalYear == fiscalYear {
			return true, nil
		}
	}
	return false, nil
}

func (t *memoryTx) NextSequence(_ context.Context, scope string, day time.Time) (int, error) {
	key := sequenceKey{scope: scope, day: day.Format("2006-01-02")}
	if t.s.sequences[key] >= MaxDailySequence {
		return 0, fmt.Errorf("%s %s: %w", scope, key.day, ErrSequenceExhausted)
	}
	t.s.sequences[key]++
	return t.s.sequences[key], nil
}

func (t *memoryTx) InsertOrder(_ context.Context, o *model.Order) error {
	for _, existing := range t.s.orders {
		if existing.Number == o.Number {
			return fmt.Errorf("insert order: duplicate number %s", o.Number)
		}
	}

	o.ID = t.s.nextID("orders")
	o.CreatedAt = t.now()
	o.UpdatedAt = o.CreatedAt
	for i := range o.Items {
		o.Items[i].ID = t.s.nextID("order_items")
		o.Items[i].OrderID = o.ID
	}

	stored := *o
	stored.Items = slices.Clone(o.Items)
	t.s.orders[o.ID] = stored
	return nil
}

func (s *memoryState) order(id int64) (*model.Order, error) {
	o, ok := s.orders[id]
	if !ok {
		return nil, fmt.Errorf("order: %w", ErrNotFound)
	}
	o.Items = slices.Clone(o.Items)
	return &o, nil
}

func (t *memoryTx) LockOrder(_ context.Context, id int64) (*model.Order, error) {
	return t.s.order(id)
}

func (t *memoryTx) UpdateOrderStatus(_ context.Context, id int64, status model.OrderStatus, returnReason string, at time.Time) error {
	o, ok := t.s.orders[id]
	if !ok {
		return fmt.Errorf("order %d: %w", id, ErrNotFound)
	}
	o.Status = status
	if returnReason != "" {
		o.ReturnReason = returnReason
	}
	o.UpdatedAt = at
	t.s.orders[id] = o
	return nil
}

func (t *memoryTx) ApplyInventoryChange(_ context.Context, c model.InventoryChange) (*model.InventoryLog, error) {
	delta := c.Delta()
	if delta == 0 {
		return nil, &ValidationError{Field: "quantity", Reason: "must be positive with a known change type"}
	}

	key := inventoryKey{storeID: c.StoreID, productID: c.ProductID, variant: c.Variant}
	rec, ok := t.s.inventory[key]
	if rec.Quantity+delta < 0 {
		return nil, &InsufficientInventoryError{
			StoreID: c.StoreID, ProductID: c.ProductID, Variant: c.Variant,
			OnHand: rec.Quantity, Requested: c.Quantity,
		}
	}
	if !ok {
		rec = model.InventoryRecord{
			ID:        t.s.nextID("inventory_records"),
			StoreID:   c.StoreID,
			ProductID: c.ProductID,
			Variant:   c.Variant,
		}
	}

	now := t.now()
	rec.Quantity += delta
	rec.UpdatedAt = now
	t.s.inventory[key] = rec

	log := model.InventoryLog{
		ID:             t.s.nextID("inventory_logs"),
		RecordID:       rec.ID,
		ChangeType:     c.Type,
		ChangeQuantity: delta,
		BalanceAfter:   rec.Quantity,
		Reason:         c.Reason,
		OrderID:        c.OrderID,
		CreatedBy:      c.CreatedBy,
		CreatedAt:      now,
	}
	t.s.invLogs = append(t.s.invLogs, log)
	return &log, nil
}

func (t *memoryTx) InsertTicket(_ context.Context, tk *model.Ticket) error {
	for _, existing := range t.s.tickets {
		if existing.Number == tk.Number {
			return fmt.Errorf("insert ticket: duplicate number %s", tk.Number)
		}
	}
	tk.ID = t.s.nextID("tickets")
	tk.CreatedAt = t.now()
	t.s.tickets[tk.ID] = *tk
	return nil
}

func (t *memoryTx) LockTicket(_ context.Context, id int64) (*model.Ticket, error) {
	tk, ok := t.s.tickets[id]
	if !ok {
		return nil, fmt.Errorf("ticket: %w", ErrNotFound)
	}
	return &tk, nil
}

func (t *memoryTx) RegisterTicket(_ context.Context, id, tailorID int64, at time.Time) error {
	tk, ok := t.s.tickets[id]
	if !ok {
		return fmt.Errorf("ticket: %w", ErrNotFound)
	}
	if tk.Status != model.TicketIssued {
		return &InvalidStateError{Entity: "ticket", ID: id, State: string(tk.Status), Action: "register"}
	}
	tk.Status = model.TicketRegistered
	tk.TailorID = &tailorID
	tk.RegisteredAt = &at
	t.s.tickets[id] = tk
	return nil
}

func (t *memoryTx) LockRegisteredTickets(_ context.Context, tailorID int64) ([]model.Ticket, error) {
	return t.s.ticketsWhere(func(tk model.Ticket) bool {
		return tk.TailorID != nil && *tk.TailorID == tailorID && tk.Status == model.TicketRegistered
	}), nil
}

func (s *memoryState) ticketsWhere(match func(model.Ticket) bool) []model.Ticket {
	var res []model.Ticket
	for _, tk := range s.tickets {
		if match(tk) {
			res = append(res, tk)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res
}

func (t *memoryTx) MoveTicketsToBatch(_ context.Context, ids []int64, batchID int64) error {
	for _, id := range ids {
		tk, ok := t.s.tickets[id]
		if !ok || tk.Status != model.TicketRegistered {
			return &InvalidStateError{Entity: "settlement batch", ID: batchID, State: "tickets changed concurrently", Action: "fill"}
		}
		tk.Status = model.TicketSettlementRequested
		tk.BatchID = &batchID
		t.s.tickets[id] = tk
	}
	return nil
}

func (t *memoryTx) SettleBatchTickets(_ context.Context, batchID int64) (int, error) {
	n := 0
	for id, tk := range t.s.tickets {
		if tk.BatchID != nil && *tk.BatchID == batchID && tk.Status == model.TicketSettlementRequested {
			tk.Status = model.TicketSettled
			t.s.tickets[id] = tk
			n++
		}
	}
	return n, nil
}

func (t *memoryTx) InsertSettlementBatch(_ context.Context, b *model.SettlementBatch) error {
	b.ID = t.s.nextID("settlement_batches")
	b.CreatedAt = t.now()
	t.s.batches[b.ID] = *b
	return nil
}

func (t *memoryTx) LockSettlementBatch(_ context.Context, id int64) (*model.SettlementBatch, error) {
	b, ok := t.s.batches[id]
	if !ok {
		return nil, fmt.Errorf("settlement batch: %w", ErrNotFound)
	}
	return &b, nil
}

func (t *memoryTx) ConfirmSettlementBatch(_ context.Context, id int64, at time.Time) error {
	b, ok := t.s.batches[id]
	if !ok {
		return fmt.Errorf("settlement batch: %w", ErrNotFound)
	}
	if b.Status != model.SettlementPending {
		return &InvalidStateError{Entity: "settlement batch", ID: id, State: string(b.Status), Action: "confirm"}
	}
	b.Status = model.SettlementConfirmed
	b.ConfirmedAt = &at
	t.s.batches[id] = b
	return nil
}

// --- Reader ---

// GetPerson возвращает человека по идентификатору.
func (r *MemoryRepository) GetPerson(_ context.Context, id int64) (*model.Person, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.person(id)
}

// GetPointSummary возвращает сводку баллов получателя.
func (r *MemoryRepository) GetPointSummary(_ context.Context, personID int64) (*model.PointSummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.summary(personID)
}

// ListLedgerEntries возвращает журнал движений баллов получателя.
func (r *MemoryRepository) ListLedgerEntries(_ context.Context, personID int64) ([]model.LedgerEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var res []model.LedgerEntry
	for _, e := range r.state.ledger {
		if e.PersonID == personID {
			res = append(res, e)
		}
	}
	return res, nil
}

// GetOrder возвращает заказ по идентификатору.
func (r *MemoryRepository) GetOrder(_ context.Context, id int64) (*model.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.order(id)
}

// GetOrderByNumber возвращает заказ по номеру.
func (r *MemoryRepository) GetOrderByNumber(_ context.Context, number string) (*model.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, o := range r.state.orders {
		if o.Number == number {
			return r.state.order(id)
		}
	}
	return nil, fmt.Errorf("order: %w", ErrNotFound)
}

// ListOrdersByPerson возвращает заказы получателя, начиная с последних.
func (r *MemoryRepository) ListOrdersByPerson(_ context.Context, personID int64) ([]model.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var res []model.Order
	for _, o := range r.state.orders {
		if o.PersonID == personID {
			o.Items = nil
			res = append(res, o)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID > res[j].ID })
	return res, nil
}

// GetTicketByNumber возвращает талон по номеру.
func (r *MemoryRepository) GetTicketByNumber(_ context.Context, number string) (*model.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, tk := range r.state.tickets {
		if tk.Number == number {
			return &tk, nil
		}
	}
	return nil, fmt.Errorf("ticket: %w", ErrNotFound)
}

// ListTicketsByPerson возвращает талоны получателя.
func (r *MemoryRepository) ListTicketsByPerson(_ context.Context, personID int64) ([]model.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.ticketsWhere(func(tk model.Ticket) bool { return tk.PersonID == personID }), nil
}

// ListTicketsByTailor возвращает талоны ателье; пустой статус означает любые.
func (r *MemoryRepository) ListTicketsByTailor(_ context.Context, tailorID int64, status model.TicketStatus) ([]model.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.ticketsWhere(func(tk model.Ticket) bool {
		return tk.TailorID != nil && *tk.TailorID == tailorID && (status == "" || tk.Status == status)
	}), nil
}

// ListSettlementBatches возвращает пакеты расчётов ателье, начиная с последних.
func (r *MemoryRepository) ListSettlementBatches(_ context.Context, tailorID int64) ([]model.SettlementBatch, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var res []model.SettlementBatch
	for _, b := range r.state.batches {
		if b.TailorID == tailorID {
			res = append(res, b)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID > res[j].ID })
	return res, nil
}

// ListInventory возвращает остатки точки продаж.
func (r *MemoryRepository) ListInventory(_ context.Context, storeID int64) ([]model.InventoryRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var res []model.InventoryRecord
	for _, rec := range r.state.inventory {
		if rec.StoreID == storeID {
			res = append(res, rec)
		}
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].ProductID != res[j].ProductID {
			return res[i].ProductID < res[j].ProductID
		}
		return res[i].Variant < res[j].Variant
	})
	return res, nil
}

// ListInventoryLogs возвращает журнал движений по записи остатка.
func (r *MemoryRepository) ListInventoryLogs(_ context.Context, recordID int64) ([]model.InventoryLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var res []model.InventoryLog
	for _, l := range r.state.invLogs {
		if l.RecordID == recordID {
			res = append(res, l)
		}
	}
	return res, nil
}

var (
	_ Tx     = (*memoryTx)(nil)
	_ Reader = (*MemoryRepository)(nil)
)
