//go:build integration

package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/mmeshcher/uniform-points/internal/model"
)

func newTestPostgres(t *testing.T) *PostgresRepository {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("uniformpoints_test"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err, "start postgres container")
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	repo, err := NewPostgresRepository(dsn)
	require.NoError(t, err)
	repo.delays = []time.Duration{10 * time.Millisecond, 20 * time.Millisecond, 50 * time.Millisecond}
	t.Cleanup(func() { _ = repo.Close() })

	return repo
}

type fixture struct {
	storeID   int64
	tailorID  int64
	productID int64
	personID  int64
}

func seedFixture(t *testing.T, repo *PostgresRepository, granted int64) fixture {
	t.Helper()
	ctx := context.Background()

	var f fixture
	err := repo.InTx(ctx, func(tx Tx) error {
		store := &model.Store{Name: "Склад №1"}
		if err := tx.InsertStore(ctx, store); err != nil {
			return err
		}
		tailor := &model.Tailor{Name: "Ателье Северное"}
		if err := tx.InsertTailor(ctx, tailor); err != nil {
			return err
		}
		product := &model.Product{Name: "Китель", Type: model.ProductFinished, Price: 10000}
		if err := tx.InsertProduct(ctx, product); err != nil {
			return err
		}
		person := &model.Person{
			ServiceNumber:  "SN-100",
			Name:           "Петров П.П.",
			Rank:           "sergeant",
			EnlistmentDate: time.Date(2018, 5, 1, 0, 0, 0, 0, time.UTC),
			Role:           model.RoleBeneficiary,
		}
		if err := tx.InsertPerson(ctx, person); err != nil {
			return err
		}
		if granted > 0 {
			year := 2026
			if _, err := tx.AppendLedgerEntry(ctx, &model.LedgerEntry{
				PersonID: person.ID, Kind: model.LedgerGrant, Amount: granted, FiscalYear: &year,
			}); err != nil {
				return err
			}
		}
		f = fixture{storeID: store.ID, tailorID: tailor.ID, productID: product.ID, personID: person.ID}
		return nil
	})
	require.NoError(t, err)
	return f
}

func TestPostgresConcurrentReservesDoNotOverdraw(t *testing.T) {
	repo := newTestPostgres(t)
	f := seedFixture(t, repo, 50000)
	ctx := context.Background()

	const workers = 10
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := repo.InTx(ctx, func(tx Tx) error {
				sum, err := tx.LockPointSummary(ctx, f.personID)
				if err != nil {
					return err
				}
				if sum.Available() < 10000 {
					return &InsufficientPointsError{PersonID: f.personID, Available: sum.Available(), Requested: 10000}
				}
				_, err = tx.AppendLedgerEntry(ctx, &model.LedgerEntry{PersonID: f.personID, Kind: model.LedgerReserve, Amount: 10000})
				return err
			})
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, ErrInsufficientPoints)
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, succeeded)
	sum, err := repo.GetPointSummary(ctx, f.personID)
	require.NoError(t, err)
	assert.Equal(t, int64(50000), sum.Reserved)
	assert.Equal(t, int64(0), sum.Available())
}

func TestPostgresConcurrentSalesDoNotOversell(t *testing.T) {
	repo := newTestPostgres(t)
	f := seedFixture(t, repo, 0)
	ctx := context.Background()

	require.NoError(t, repo.InTx(ctx, func(tx Tx) error {
		_, err := tx.ApplyInventoryChange(ctx, model.InventoryChange{
			StoreID: f.storeID, ProductID: f.productID, Variant: "52-4", Type: model.InventoryIncoming, Quantity: 3,
		})
		return err
	}))

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		rejected int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := repo.InTx(ctx, func(tx Tx) error {
				_, err := tx.ApplyInventoryChange(ctx, model.InventoryChange{
					StoreID: f.storeID, ProductID: f.productID, Variant: "52-4", Type: model.InventorySale, Quantity: 1,
				})
				return err
			})
			if errors.Is(err, ErrInsufficientInventory) {
				mu.Lock()
				rejected++
				mu.Unlock()
				return
			}
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, rejected)
	records, err := repo.ListInventory(ctx, f.storeID)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 0, records[0].Quantity)

	logs, err := repo.ListInventoryLogs(ctx, records[0].ID)
	require.NoError(t, err)
	total := 0
	for _, l := range logs {
		total += l.ChangeQuantity
	}
	assert.Equal(t, records[0].Quantity, total)
}

func TestPostgresConcurrentSequencesAreUnique(t *testing.T) {
	repo := newTestPostgres(t)
	ctx := context.Background()
	day := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = map[int]bool{}
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var n int
			err := repo.InTx(ctx, func(tx Tx) error {
				var err error
				n, err = tx.NextSequence(ctx, ScopeOnlineOrder, day)
				return err
			})
			assert.NoError(t, err)
			mu.Lock()
			seen[n] = true
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, seen, 20)
	for i := 1; i <= 20; i++ {
		assert.True(t, seen[i], "missing sequence %d", i)
	}
}

func TestPostgresSettlementSelectionIsExclusive(t *testing.T) {
	repo := newTestPostgres(t)
	f := seedFixture(t, repo, 0)
	ctx := context.Background()

	require.NoError(t, repo.InTx(ctx, func(tx Tx) error {
		order := &model.Order{
			Number: "ORD-20260315-00001", PersonID: f.personID, StoreID: f.storeID,
			Channel: model.ChannelOnline, ProductType: model.ProductCustom, Status: model.OrderPending,
			TotalAmount: 40000, CreatedBy: f.personID,
			Items: []model.OrderItem{{ProductID: f.productID, Variant: "52-4", Quantity: 4, UnitPrice: 10000, Subtotal: 40000}},
		}
		if err := tx.InsertOrder(ctx, order); err != nil {
			return err
		}
		for i := 1; i <= 4; i++ {
			tk := &model.Ticket{
				Number:      fmt.Sprintf("TKT-20260315-%05d", i),
				PersonID:    f.personID,
				OrderID:     order.ID,
				OrderItemID: order.Items[0].ID,
				Status:      model.TicketIssued,
			}
			if err := tx.InsertTicket(ctx, tk); err != nil {
				return err
			}
			if err := tx.RegisterTicket(ctx, tk.ID, f.tailorID, time.Now()); err != nil {
				return err
			}
		}
		return nil
	}))

	request := func() (int, error) {
		var count int
		err := repo.InTx(ctx, func(tx Tx) error {
			if _, err := tx.LockTailor(ctx, f.tailorID); err != nil {
				return err
			}
			tickets, err := tx.LockRegisteredTickets(ctx, f.tailorID)
			if err != nil {
				return err
			}
			if len(tickets) == 0 {
				return ErrNoEligibleTickets
			}
			now := time.Now()
			batch := &model.SettlementBatch{
				TailorID: f.tailorID, PeriodStart: now, PeriodEnd: now,
				TotalAmount: int64(len(tickets)) * 30000, TicketCount: len(tickets),
				Status: model.SettlementPending, CreatedBy: 1,
			}
			if err := tx.InsertSettlementBatch(ctx, batch); err != nil {
				return err
			}
			ids := make([]int64, 0, len(tickets))
			for _, tk := range tickets {
				ids = append(ids, tk.ID)
			}
			count = len(ids)
			return tx.MoveTicketsToBatch(ctx, ids, batch.ID)
		})
		return count, err
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		total   int
		batches int
	)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := request()
			if errors.Is(err, ErrNoEligibleTickets) {
				return
			}
			assert.NoError(t, err)
			mu.Lock()
			total += n
			batches++
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, batches)
	assert.Equal(t, 4, total)

	list, err := repo.ListSettlementBatches(ctx, f.tailorID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 4, list[0].TicketCount)
}

func TestPostgresRepeatedAnnualGrantIsBatchConflict(t *testing.T) {
	repo := newTestPostgres(t)
	f := seedFixture(t, repo, 0)
	ctx := context.Background()
	year := 2027

	grant := func() error {
		return repo.InTx(ctx, func(tx Tx) error {
			_, err := tx.AppendLedgerEntry(ctx, &model.LedgerEntry{
				PersonID: f.personID, Kind: model.LedgerGrant, Amount: 1000, FiscalYear: &year,
			})
			return err
		})
	}

	require.NoError(t, grant())
	err := grant()
	require.ErrorIs(t, err, ErrBatchInProgress)
	assert.NotErrorIs(t, err, ErrTransactionFailure)

	sum, err := repo.GetPointSummary(ctx, f.personID)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), sum.Granted)
}

func TestPostgresSummaryUpdatedAtGrowsWithinTx(t *testing.T) {
	repo := newTestPostgres(t)
	f := seedFixture(t, repo, 50000)
	ctx := context.Background()

	var first, second *model.PointSummary
	err := repo.InTx(ctx, func(tx Tx) error {
		var err error
		first, err = tx.AppendLedgerEntry(ctx, &model.LedgerEntry{PersonID: f.personID, Kind: model.LedgerReserve, Amount: 100})
		if err != nil {
			return err
		}
		second, err = tx.AppendLedgerEntry(ctx, &model.LedgerEntry{PersonID: f.personID, Kind: model.LedgerRelease, Amount: 100})
		return err
	})
	require.NoError(t, err)
	assert.True(t, second.UpdatedAt.After(first.UpdatedAt))
}
