package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/mmeshcher/uniform-points/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
type PostgresRepository struct {
	pool   *pgxpool.Pool
	delays []time.Duration
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{
		pool:   pool,
		delays: []time.Duration{1 * time.Second, 3 * time.Second, 5 * time.Second},
	}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// InTx выполняет fn в одной транзакции. Любая ошибка fn откатывает все изменения.
// Конфликты сериализации и взаимоблокировки повторяются с задержкой.
func (r *PostgresRepository) InTx(ctx context.Context, fn func(Tx) error) error {
	err := r.withRetry(ctx, func() error {
		tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		if err := fn(&pgTx{q: tx}); err != nil {
			return err
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}
		return nil
	})
	return asTransactionFailure(err)
}

func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	var err error

	for i := 0; i <= len(r.delays); i++ {
		err = fn()
		if err == nil {
			return nil
		}

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		if !isRetryable(err) || i == len(r.delays) {
			break
		}

		timer := time.NewTimer(r.delays[i])
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return err
}

func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected
	}
	return isConnectionError(err)
}

func isConnectionError(err error) bool {
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

func isCheckViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.CheckViolation
}

// annualGrantIndex гарантирует не более одного годового начисления на человека.
const annualGrantIndex = "idx_ledger_entries_annual_grant"

func isAnnualGrantConflict(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation && pgErr.ConstraintName == annualGrantIndex
}

// querier объединяет pgxpool.Pool и pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// civilDate приводит момент времени к календарной дате без часового пояса.
func civilDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// --- persons and catalog ---

const personColumns = `id, service_number, name, rank, enlistment_date, retirement_date,
	role, store_id, tailor_id, active, created_at`

func scanPerson(row pgx.Row) (*model.Person, error) {
	var (
		p    model.Person
		role string
	)
	err := row.Scan(&p.ID, &p.ServiceNumber, &p.Name, &p.Rank, &p.EnlistmentDate, &p.RetirementDate,
		&role, &p.StoreID, &p.TailorID, &p.Active, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("person: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("scan person: %w", err)
	}
	p.Role = model.Role(role)
	return &p, nil
}

func getPerson(ctx context.Context, q querier, id int64) (*model.Person, error) {
	return scanPerson(q.QueryRow(ctx, `SELECT `+personColumns+` FROM persons WHERE id = $1`, id))
}

// GetPerson возвращает человека по идентификатору.
func (r *PostgresRepository) GetPerson(ctx context.Context, id int64) (*model.Person, error) {
	return getPerson(ctx, r.pool, id)
}

func (t *pgTx) GetPerson(ctx context.Context, id int64) (*model.Person, error) {
	return getPerson(ctx, t.q, id)
}

func (t *pgTx) ListActiveBeneficiaries(ctx context.Context) ([]model.Person, error) {
	rows, err := t.q.Query(ctx,
		`SELECT `+personColumns+`
		 FROM persons
		 WHERE active AND role = $1
		 ORDER BY id`,
		string(model.RoleBeneficiary),
	)
	if err != nil {
		return nil, fmt.Errorf("select beneficiaries: %w", err)
	}
	defer rows.Close()

	var res []model.Person
	for rows.Next() {
		p, err := scanPerson(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return res, nil
}

func (t *pgTx) InsertPerson(ctx context.Context, p *model.Person) error {
	var retirement *time.Time
	if p.RetirementDate != nil {
		d := civilDate(*p.RetirementDate)
		retirement = &d
	}

	err := t.q.QueryRow(ctx,
		`INSERT INTO persons (service_number, name, rank, enlistment_date, retirement_date, role, store_id, tailor_id, active)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, TRUE)
		 RETURNING id, created_at`,
		p.ServiceNumber, p.Name, p.Rank, civilDate(p.EnlistmentDate), retirement, string(p.Role), p.StoreID, p.TailorID,
	).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return &ValidationError{Field: "service_number", Reason: "already registered"}
		}
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation {
			return &ValidationError{Field: "affiliation", Reason: "unknown store or tailor"}
		}
		return fmt.Errorf("insert person: %w", err)
	}
	p.Active = true

	if p.IsBeneficiary() {
		_, err = t.q.Exec(ctx, `INSERT INTO point_summaries (person_id) VALUES ($1)`, p.ID)
		if err != nil {
			return fmt.Errorf("insert point summary: %w", err)
		}
	}
	return nil
}

func (t *pgTx) DeactivatePerson(ctx context.Context, id int64) error {
	tag, err := t.q.Exec(ctx, `UPDATE persons SET active = FALSE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deactivate person: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("person: %w", ErrNotFound)
	}
	return nil
}

func (t *pgTx) GetProduct(ctx context.Context, id int64) (*model.Product, error) {
	var (
		p           model.Product
		productType string
	)
	err := t.q.QueryRow(ctx,
		`SELECT id, name, product_type, price, active FROM products WHERE id = $1`, id,
	).Scan(&p.ID, &p.Name, &productType, &p.Price, &p.Active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("product %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("get product: %w", err)
	}
	p.Type = model.ProductType(productType)
	return &p, nil
}

func (t *pgTx) InsertProduct(ctx context.Context, p *model.Product) error {
	err := t.q.QueryRow(ctx,
		`INSERT INTO products (name, product_type, price, active) VALUES ($1, $2, $3, TRUE) RETURNING id`,
		p.Name, string(p.Type), p.Price,
	).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("insert product: %w", err)
	}
	p.Active = true
	return nil
}

func (t *pgTx) GetStore(ctx context.Context, id int64) (*model.Store, error) {
	var s model.Store
	err := t.q.QueryRow(ctx, `SELECT id, name FROM stores WHERE id = $1`, id).Scan(&s.ID, &s.Name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("store %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("get store: %w", err)
	}
	return &s, nil
}

func (t *pgTx) InsertStore(ctx context.Context, s *model.Store) error {
	if err := t.q.QueryRow(ctx, `INSERT INTO stores (name) VALUES ($1) RETURNING id`, s.Name).Scan(&s.ID); err != nil {
		return fmt.Errorf("insert store: %w", err)
	}
	return nil
}

// LockTailor блокирует строку ателье, сериализуя расчёты по нему.
func (t *pgTx) LockTailor(ctx context.Context, id int64) (*model.Tailor, error) {
	var tl model.Tailor
	err := t.q.QueryRow(ctx,
		`SELECT id, name, active FROM tailors WHERE id = $1 FOR UPDATE`, id,
	).Scan(&tl.ID, &tl.Name, &tl.Active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("tailor %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("lock tailor: %w", err)
	}
	return &tl, nil
}

func (t *pgTx) InsertTailor(ctx context.Context, tl *model.Tailor) error {
	err := t.q.QueryRow(ctx, `INSERT INTO tailors (name, active) VALUES ($1, TRUE) RETURNING id`, tl.Name).Scan(&tl.ID)
	if err != nil {
		return fmt.Errorf("insert tailor: %w", err)
	}
	tl.Active = true
	return nil
}

// --- ledger ---

func getPointSummary(ctx context.Context, q querier, personID int64, lock bool) (*model.PointSummary, error) {
	query := `SELECT person_id, granted, used, reserved, updated_at FROM point_summaries WHERE person_id = $1`
	if lock {
		query += ` FOR UPDATE`
	}

	var s model.PointSummary
	err := q.QueryRow(ctx, query, personID).Scan(&s.PersonID, &s.Granted, &s.Used, &s.Reserved, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("point summary for person %d: %w", personID, ErrNotFound)
		}
		return nil, fmt.Errorf("get point summary: %w", err)
	}
	return &s, nil
}

// GetPointSummary возвращает сводку баллов получателя.
func (r *PostgresRepository) GetPointSummary(ctx context.Context, personID int64) (*model.PointSummary, error) {
	return getPointSummary(ctx, r.pool, personID, false)
}

// LockPointSummary блокирует строку сводки для предотвращения параллельных списаний, превышающих остаток.
func (t *pgTx) LockPointSummary(ctx context.Context, personID int64) (*model.PointSummary, error) {
	return getPointSummary(ctx, t.q, personID, true)
}

func (t *pgTx) AppendLedgerEntry(ctx context.Context, e *model.LedgerEntry) (*model.PointSummary, error) {
	if !e.Kind.IsValid() || e.Amount <= 0 {
		return nil, &ValidationError{Field: "ledger_entry", Reason: "unknown kind or non-positive amount"}
	}

	current, err := getPointSummary(ctx, t.q, e.PersonID, true)
	if err != nil {
		return nil, err
	}
	next := current.Apply(e.Kind, e.Amount)
	if !next.Valid() {
		return nil, &InsufficientPointsError{PersonID: e.PersonID, Available: current.Available(), Requested: e.Amount}
	}

	granted, used, reserved := e.Kind.Effect(e.Amount)
	err = t.q.QueryRow(ctx,
		`UPDATE point_summaries
		 SET granted = granted + $2, used = used + $3, reserved = reserved + $4,
		     updated_at = GREATEST(clock_timestamp(), updated_at + interval '1 microsecond')
		 WHERE person_id = $1
		 RETURNING granted, used, reserved, updated_at`,
		e.PersonID, granted, used, reserved,
	).Scan(&next.Granted, &next.Used, &next.Reserved, &next.UpdatedAt)
	if err != nil {
		if isCheckViolation(err) {
			return nil, &InsufficientPointsError{PersonID: e.PersonID, Available: current.Available(), Requested: e.Amount}
		}
		return nil, fmt.Errorf("update point summary: %w", err)
	}

	err = t.q.QueryRow(ctx,
		`INSERT INTO ledger_entries (person_id, kind, amount, fiscal_year, order_id, description, created_by)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id, created_at`,
		e.PersonID, string(e.Kind), e.Amount, e.FiscalYear, e.OrderID, e.Description, e.CreatedBy,
	).Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		if isAnnualGrantConflict(err) {
			return nil, fmt.Errorf("annual grant for person %d year %d: %w", e.PersonID, *e.FiscalYear, ErrBatchInProgress)
		}
		return nil, fmt.Errorf("insert ledger entry: %w", err)
	}

	return &next, nil
}

func (t *pgTx) HasAnnualGrant(ctx context.Context, personID int64, fiscalYear int) (bool, error) {
	var exists bool
	err := t.q.QueryRow(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM ledger_entries WHERE person_id = $1 AND kind = $2 AND fiscal_year = $3
		 )`,
		personID, string(model.LedgerGrant), fiscalYear,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check annual grant: %w", err)
	}
	return exists, nil
}

// ListLedgerEntries возвращает журнал движений баллов получателя в хронологическом порядке.
func (r *PostgresRepository) ListLedgerEntries(ctx context.Context, personID int64) ([]model.LedgerEntry, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, person_id, kind, amount, fiscal_year, order_id, description, created_by, created_at
		 FROM ledger_entries
		 WHERE person_id = $1
		 ORDER BY id`,
		personID,
	)
	if err != nil {
		return nil, fmt.Errorf("select ledger entries: %w", err)
	}
	defer rows.Close()

	var res []model.LedgerEntry
	for rows.Next() {
		var (
			e    model.LedgerEntry
			kind string
		)
		if err := rows.Scan(&e.ID, &e.PersonID, &kind, &e.Amount, &e.FiscalYear, &e.OrderID,
			&e.Description, &e.CreatedBy, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		e.Kind = model.LedgerKind(kind)
		res = append(res, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return res, nil
}

// --- sequences ---

func (t *pgTx) NextSequence(ctx context.Context, scope string, day time.Time) (int, error) {
	var value int
	err := t.q.QueryRow(ctx,
		`INSERT INTO daily_sequences (scope, day, value) VALUES ($1, $2, 1)
		 ON CONFLICT (scope, day) DO UPDATE SET value = daily_sequences.value + 1
		 RETURNING value`,
		scope, civilDate(day),
	).Scan(&value)
	if err != nil {
		return 0, fmt.Errorf("next sequence: %w", err)
	}
	if value > MaxDailySequence {
		return 0, fmt.Errorf("%s %s: %w", scope, day.Format("2006-01-02"), ErrSequenceExhausted)
	}
	return value, nil
}

// --- orders ---

const orderColumns = `id, number, person_id, store_id, channel, product_type, status, total_amount,
	delivery_method, delivery_address, return_reason, created_by, created_at, updated_at`

func scanOrder(row pgx.Row) (*model.Order, error) {
	var (
		o                            model.Order
		channel, productType, status string
	)
	err := row.Scan(&o.ID, &o.Number, &o.PersonID, &o.StoreID, &channel, &productType, &status, &o.TotalAmount,
		&o.DeliveryMethod, &o.DeliveryAddress, &o.ReturnReason, &o.CreatedBy, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("order: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("scan order: %w", err)
	}
	o.Channel = model.Channel(channel)
	o.ProductType = model.ProductType(productType)
	o.Status = model.OrderStatus(status)
	return &o, nil
}

func loadOrderItems(ctx context.Context, q querier, o *model.Order) error {
	rows, err := q.Query(ctx,
		`SELECT id, order_id, product_id, variant, quantity, unit_price, subtotal
		 FROM order_items
		 WHERE order_id = $1
		 ORDER BY id`,
		o.ID,
	)
	if err != nil {
		return fmt.Errorf("select order items: %w", err)
	}
	defer rows.Close()

	o.Items = o.Items[:0]
	for rows.Next() {
		var it model.OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.Variant, &it.Quantity, &it.UnitPrice, &it.Subtotal); err != nil {
			return fmt.Errorf("scan order item: %w", err)
		}
		o.Items = append(o.Items, it)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("rows error: %w", err)
	}
	return nil
}

func getOrder(ctx context.Context, q querier, where string, arg any, lock bool) (*model.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE ` + where + ` = $1`
	if lock {
		query += ` FOR UPDATE`
	}
	o, err := scanOrder(q.QueryRow(ctx, query, arg))
	if err != nil {
		return nil, err
	}
	if err := loadOrderItems(ctx, q, o); err != nil {
		return nil, err
	}
	return o, nil
}

// GetOrder возвращает заказ с позициями по идентификатору.
func (r *PostgresRepository) GetOrder(ctx context.Context, id int64) (*model.Order, error) {
	return getOrder(ctx, r.pool, "id", id, false)
}

// GetOrderByNumber возвращает заказ с позициями по номеру.
func (r *PostgresRepository) GetOrderByNumber(ctx context.Context, number string) (*model.Order, error) {
	return getOrder(ctx, r.pool, "number", number, false)
}

// ListOrdersByPerson возвращает заказы получателя, начиная с последних.
func (r *PostgresRepository) ListOrdersByPerson(ctx context.Context, personID int64) ([]model.Order, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+orderColumns+`
		 FROM orders
		 WHERE person_id = $1
		 ORDER BY created_at DESC, id DESC`,
		personID,
	)
	if err != nil {
		return nil, fmt.Errorf("select orders: %w", err)
	}
	defer rows.Close()

	var orders []model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return orders, nil
}

func (t *pgTx) InsertOrder(ctx context.Context, o *model.Order) error {
	err := t.q.QueryRow(ctx,
		`INSERT INTO orders (number, person_id, store_id, channel, product_type, status, total_amount,
			delivery_method, delivery_address, created_by)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING id, created_at, updated_at`,
		o.Number, o.PersonID, o.StoreID, string(o.Channel), string(o.ProductType), string(o.Status), o.TotalAmount,
		o.DeliveryMethod, o.DeliveryAddress, o.CreatedBy,
	).Scan(&o.ID, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	for i := range o.Items {
		it := &o.Items[i]
		it.OrderID = o.ID
		err := t.q.QueryRow(ctx,
			`INSERT INTO order_items (order_id, product_id, variant, quantity, unit_price, subtotal)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 RETURNING id`,
			it.OrderID, it.ProductID, it.Variant, it.Quantity, it.UnitPrice, it.Subtotal,
		).Scan(&it.ID)
		if err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}
	return nil
}

func (t *pgTx) LockOrder(ctx context.Context, id int64) (*model.Order, error) {
	return getOrder(ctx, t.q, "id", id, true)
}

func (t *pgTx) UpdateOrderStatus(ctx context.Context, id int64, status model.OrderStatus, returnReason string, at time.Time) error {
	tag, err := t.q.Exec(ctx,
		`UPDATE orders
		 SET status = $2, return_reason = CASE WHEN $3 = '' THEN return_reason ELSE $3 END, updated_at = $4
		 WHERE id = $1`,
		id, string(status), returnReason, at,
	)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("order %d: %w", id, ErrNotFound)
	}
	return nil
}

// --- inventory ---

func (t *pgTx) ApplyInventoryChange(ctx context.Context, c model.InventoryChange) (*model.InventoryLog, error) {
	delta := c.Delta()
	if delta == 0 {
		return nil, &ValidationError{Field: "quantity", Reason: "must be positive with a known change type"}
	}

	var (
		recordID int64
		quantity int
		err      error
	)
	if delta > 0 {
		err = t.q.QueryRow(ctx,
			`INSERT INTO inventory_records (store_id, product_id, variant, quantity, updated_at)
			 VALUES ($1, $2, $3, $4, now())
			 ON CONFLICT (store_id, product_id, variant)
			 DO UPDATE SET quantity = inventory_records.quantity + EXCLUDED.quantity, updated_at = now()
			 RETURNING id, quantity`,
			c.StoreID, c.ProductID, c.Variant, delta,
		).Scan(&recordID, &quantity)
	} else {
		err = t.q.QueryRow(ctx,
			`UPDATE inventory_records
			 SET quantity = quantity + $4, updated_at = now()
			 WHERE store_id = $1 AND product_id = $2 AND variant = $3 AND quantity + $4 >= 0
			 RETURNING id, quantity`,
			c.StoreID, c.ProductID, c.Variant, delta,
		).Scan(&recordID, &quantity)
		if errors.Is(err, pgx.ErrNoRows) {
			var onHand int
			lookupErr := t.q.QueryRow(ctx,
				`SELECT quantity FROM inventory_records WHERE store_id = $1 AND product_id = $2 AND variant = $3`,
				c.StoreID, c.ProductID, c.Variant,
			).Scan(&onHand)
			if lookupErr != nil && !errors.Is(lookupErr, pgx.ErrNoRows) {
				return nil, fmt.Errorf("select inventory: %w", lookupErr)
			}
			return nil, &InsufficientInventoryError{
				StoreID: c.StoreID, ProductID: c.ProductID, Variant: c.Variant,
				OnHand: onHand, Requested: c.Quantity,
			}
		}
	}
	if err != nil {
		return nil, fmt.Errorf("apply inventory change: %w", err)
	}

	log := &model.InventoryLog{
		RecordID:       recordID,
		ChangeType:     c.Type,
		ChangeQuantity: delta,
		BalanceAfter:   quantity,
		Reason:         c.Reason,
		OrderID:        c.OrderID,
		CreatedBy:      c.CreatedBy,
	}
	err = t.q.QueryRow(ctx,
		`INSERT INTO inventory_logs (record_id, change_type, change_quantity, balance_after, reason, order_id, created_by)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id, created_at`,
		log.RecordID, string(log.ChangeType), log.ChangeQuantity, log.BalanceAfter, log.Reason, log.OrderID, log.CreatedBy,
	).Scan(&log.ID, &log.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert inventory log: %w", err)
	}
	return log, nil
}

// ListInventory возвращает остатки точки продаж.
func (r *PostgresRepository) ListInventory(ctx context.Context, storeID int64) ([]model.InventoryRecord, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, store_id, product_id, variant, quantity, updated_at
		 FROM inventory_records
		 WHERE store_id = $1
		 ORDER BY product_id, variant`,
		storeID,
	)
	if err != nil {
		return nil, fmt.Errorf("select inventory: %w", err)
	}
	defer rows.Close()

	var res []model.InventoryRecord
	for rows.Next() {
		var rec model.InventoryRecord
		if err := rows.Scan(&rec.ID, &rec.StoreID, &rec.ProductID, &rec.Variant, &rec.Quantity, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan inventory record: %w", err)
		}
		res = append(res, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return res, nil
}

// ListInventoryLogs возвращает журнал движений по записи остатка.
func (r *PostgresRepository) ListInventoryLogs(ctx context.Context, recordID int64) ([]model.InventoryLog, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, record_id, change_type, change_quantity, balance_after, reason, order_id, created_by, created_at
		 FROM inventory_logs
		 WHERE record_id = $1
		 ORDER BY id`,
		recordID,
	)
	if err != nil {
		return nil, fmt.Errorf("select inventory logs: %w", err)
	}
	defer rows.Close()

	var res []model.InventoryLog
	for rows.Next() {
		var (
			l          model.InventoryLog
			changeType string
		)
		if err := rows.Scan(&l.ID, &l.RecordID, &changeType, &l.ChangeQuantity, &l.BalanceAfter, &l.Reason,
			&l.OrderID, &l.CreatedBy, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan inventory log: %w", err)
		}
		l.ChangeType = model.InventoryChangeType(changeType)
		res = append(res, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return res, nil
}

// --- tickets ---

const ticketColumns = `id, number, person_id, order_id, order_item_id, tailor_id, status, registered_at, batch_id, created_at`

func scanTicket(row pgx.Row) (*model.Ticket, error) {
	var (
		tk     model.Ticket
		status string
	)
	err := row.Scan(&tk.ID, &tk.Number, &tk.PersonID, &tk.OrderID, &tk.OrderItemID, &tk.TailorID, &status,
		&tk.RegisteredAt, &tk.BatchID, &tk.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("ticket: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("scan ticket: %w", err)
	}
	tk.Status = model.TicketStatus(status)
	return &tk, nil
}

func queryTickets(ctx context.Context, q querier, query string, args ...any) ([]model.Ticket, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select tickets: %w", err)
	}
	defer rows.Close()

	var res []model.Ticket
	for rows.Next() {
		tk, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *tk)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return res, nil
}

func (t *pgTx) InsertTicket(ctx context.Context, tk *model.Ticket) error {
	err := t.q.QueryRow(ctx,
		`INSERT INTO tailoring_tickets (number, person_id, order_id, order_item_id, status)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, created_at`,
		tk.Number, tk.PersonID, tk.OrderID, tk.OrderItemID, string(tk.Status),
	).Scan(&tk.ID, &tk.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert ticket: %w", err)
	}
	return nil
}

func (t *pgTx) LockTicket(ctx context.Context, id int64) (*model.Ticket, error) {
	return scanTicket(t.q.QueryRow(ctx, `SELECT `+ticketColumns+` FROM tailoring_tickets WHERE id = $1 FOR UPDATE`, id))
}

func (t *pgTx) RegisterTicket(ctx context.Context, id, tailorID int64, at time.Time) error {
	tag, err := t.q.Exec(ctx,
		`UPDATE tailoring_tickets
		 SET status = $3, tailor_id = $2, registered_at = $4
		 WHERE id = $1 AND status = $5`,
		id, tailorID, string(model.TicketRegistered), at, string(model.TicketIssued),
	)
	if err != nil {
		return fmt.Errorf("register ticket: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &InvalidStateError{Entity: "ticket", ID: id, Action: "register"}
	}
	return nil
}

func (t *pgTx) LockRegisteredTickets(ctx context.Context, tailorID int64) ([]model.Ticket, error) {
	return queryTickets(ctx, t.q,
		`SELECT `+ticketColumns+`
		 FROM tailoring_tickets
		 WHERE tailor_id = $1 AND status = $2
		 ORDER BY id
		 FOR UPDATE`,
		tailorID, string(model.TicketRegistered),
	)
}

func (t *pgTx) MoveTicketsToBatch(ctx context.Context, ids []int64, batchID int64) error {
	tag, err := t.q.Exec(ctx,
		`UPDATE tailoring_tickets
		 SET status = $3, batch_id = $2
		 WHERE id = ANY($1) AND status = $4`,
		ids, batchID, string(model.TicketSettlementRequested), string(model.TicketRegistered),
	)
	if err != nil {
		return fmt.Errorf("move tickets to batch: %w", err)
	}
	if int(tag.RowsAffected()) != len(ids) {
		return &InvalidStateError{Entity: "settlement batch", ID: batchID, State: "tickets changed concurrently", Action: "fill"}
	}
	return nil
}

func (t *pgTx) SettleBatchTickets(ctx context.Context, batchID int64) (int, error) {
	tag, err := t.q.Exec(ctx,
		`UPDATE tailoring_tickets SET status = $2 WHERE batch_id = $1 AND status = $3`,
		batchID, string(model.TicketSettled), string(model.TicketSettlementRequested),
	)
	if err != nil {
		return 0, fmt.Errorf("settle batch tickets: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// GetTicketByNumber возвращает талон по номеру.
func (r *PostgresRepository) GetTicketByNumber(ctx context.Context, number string) (*model.Ticket, error) {
	return scanTicket(r.pool.QueryRow(ctx, `SELECT `+ticketColumns+` FROM tailoring_tickets WHERE number = $1`, number))
}

// ListTicketsByPerson возвращает талоны получателя.
func (r *PostgresRepository) ListTicketsByPerson(ctx context.Context, personID int64) ([]model.Ticket, error) {
	return queryTickets(ctx, r.pool,
		`SELECT `+ticketColumns+` FROM tailoring_tickets WHERE person_id = $1 ORDER BY id`, personID)
}

// ListTicketsByTailor возвращает талоны ателье; пустой статус означает любые.
func (r *PostgresRepository) ListTicketsByTailor(ctx context.Context, tailorID int64, status model.TicketStatus) ([]model.Ticket, error) {
	return queryTickets(ctx, r.pool,
		`SELECT `+ticketColumns+`
		 FROM tailoring_tickets
		 WHERE tailor_id = $1 AND ($2 = '' OR status = $2)
		 ORDER BY id`,
		tailorID, string(status),
	)
}

// --- settlements ---

const batchColumns = `id, tailor_id, period_start, period_end, total_amount, ticket_count, status,
	created_by, created_at, confirmed_at`

func scanBatch(row pgx.Row) (*model.SettlementBatch, error) {
	var (
		b      model.SettlementBatch
		status string
	)
	err := row.Scan(&b.ID, &b.TailorID, &b.PeriodStart, &b.PeriodEnd, &b.TotalAmount, &b.TicketCount, &status,
		&b.CreatedBy, &b.CreatedAt, &b.ConfirmedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("settlement batch: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("scan settlement batch: %w", err)
	}
	b.Status = model.SettlementStatus(status)
	return &b, nil
}

func (t *pgTx) InsertSettlementBatch(ctx context.Context, b *model.SettlementBatch) error {
	err := t.q.QueryRow(ctx,
		`INSERT INTO settlement_batches (tailor_id, period_start, period_end, total_amount, ticket_count, status, created_by)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id, created_at`,
		b.TailorID, civilDate(b.PeriodStart), civilDate(b.PeriodEnd), b.TotalAmount, b.TicketCount, string(b.Status), b.CreatedBy,
	).Scan(&b.ID, &b.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert settlement batch: %w", err)
	}
	return nil
}

func (t *pgTx) LockSettlementBatch(ctx context.Context, id int64) (*model.SettlementBatch, error) {
	return scanBatch(t.q.QueryRow(ctx, `SELECT `+batchColumns+` FROM settlement_batches WHERE id = $1 FOR UPDATE`, id))
}

func (t *pgTx) ConfirmSettlementBatch(ctx context.Context, id int64, at time.Time) error {
	tag, err := t.q.Exec(ctx,
		`UPDATE settlement_batches SET status = $2, confirmed_at = $3 WHERE id = $1 AND status = $4`,
		id, string(model.SettlementConfirmed), at, string(model.SettlementPending),
	)
	if err != nil {
		return fmt.Errorf("confirm settlement batch: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &InvalidStateError{Entity: "settlement batch", ID: id, Action: "confirm"}
	}
	return nil
}

// ListSettlementBatches возвращает пакеты расчётов ателье, начиная с последних.
func (r *PostgresRepository) ListSettlementBatches(ctx context.Context, tailorID int64) ([]model.SettlementBatch, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+batchColumns+` FROM settlement_batches WHERE tailor_id = $1 ORDER BY id DESC`, tailorID)
	if err != nil {
		return nil, fmt.Errorf("select settlement batches: %w", err)
	}
	defer rows.Close()

	var res []model.SettlementBatch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return res, nil
}

// pgTx реализует Tx поверх открытой транзакции pgx.
type pgTx struct {
	q querier
}

var (
	_ Tx     = (*pgTx)(nil)
	_ Reader = (*PostgresRepository)(nil)
)
