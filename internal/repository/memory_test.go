package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/uniform-points/internal/model"
)

func seedBeneficiary(t *testing.T, r *MemoryRepository) int64 {
	t.Helper()

	p := &model.Person{
		ServiceNumber:  "SN-001",
		Name:           "Иванов И.И.",
		Rank:           "captain",
		EnlistmentDate: time.Date(2016, 1, 1, 0, 0, 0, 0, time.UTC),
		Role:           model.RoleBeneficiary,
	}
	err := r.InTx(context.Background(), func(tx Tx) error {
		return tx.InsertPerson(context.Background(), p)
	})
	require.NoError(t, err)
	return p.ID
}

func TestMemoryInTxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepository()
	personID := seedBeneficiary(t, r)

	boom := errors.New("boom")
	err := r.InTx(ctx, func(tx Tx) error {
		_, err := tx.AppendLedgerEntry(ctx, &model.LedgerEntry{PersonID: personID, Kind: model.LedgerGrant, Amount: 1000})
		require.NoError(t, err)
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.ErrorIs(t, err, ErrTransactionFailure)

	sum, err := r.GetPointSummary(ctx, personID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), sum.Granted)

	entries, err := r.ListLedgerEntries(ctx, personID)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestMemoryInTxKeepsDomainErrors(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepository()

	err := r.InTx(ctx, func(tx Tx) error {
		_, err := tx.GetPerson(ctx, 42)
		return err
	})
	require.ErrorIs(t, err, ErrNotFound)
	assert.NotErrorIs(t, err, ErrTransactionFailure)
}

func TestMemoryAppendLedgerEntryRejectsOverdraw(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepository()
	personID := seedBeneficiary(t, r)

	err := r.InTx(ctx, func(tx Tx) error {
		if _, err := tx.AppendLedgerEntry(ctx, &model.LedgerEntry{PersonID: personID, Kind: model.LedgerGrant, Amount: 100}); err != nil {
			return err
		}
		_, err := tx.AppendLedgerEntry(ctx, &model.LedgerEntry{PersonID: personID, Kind: model.LedgerReserve, Amount: 150})
		return err
	})

	var insufficient *InsufficientPointsError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, int64(100), insufficient.Available)
	assert.Equal(t, int64(150), insufficient.Requested)

	sum, err := r.GetPointSummary(ctx, personID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), sum.Granted)
}

func TestMemorySummaryMatchesLedgerFold(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepository()
	personID := seedBeneficiary(t, r)

	year := 2026
	steps := []model.LedgerEntry{
		{Kind: model.LedgerGrant, Amount: 650000, FiscalYear: &year},
		{Kind: model.LedgerReserve, Amount: 50000},
		{Kind: model.LedgerRelease, Amount: 50000},
		{Kind: model.LedgerUse, Amount: 50000},
		{Kind: model.LedgerReturn, Amount: 20000},
	}
	for _, step := range steps {
		e := step
		e.PersonID = personID
		err := r.InTx(ctx, func(tx Tx) error {
			_, err := tx.AppendLedgerEntry(ctx, &e)
			return err
		})
		require.NoError(t, err)
	}

	entries, err := r.ListLedgerEntries(ctx, personID)
	require.NoError(t, err)
	require.Len(t, entries, len(steps))

	var folded model.PointSummary
	for _, e := range entries {
		folded = folded.Apply(e.Kind, e.Amount)
	}

	sum, err := r.GetPointSummary(ctx, personID)
	require.NoError(t, err)
	assert.Equal(t, folded.Granted, sum.Granted)
	assert.Equal(t, folded.Used, sum.Used)
	assert.Equal(t, folded.Reserved, sum.Reserved)
	assert.Equal(t, int64(620000), sum.Available())
}

func TestMemoryAnnualGrantIsUnique(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepository()
	personID := seedBeneficiary(t, r)
	year := 2026

	grant := func() error {
		return r.InTx(ctx, func(tx Tx) error {
			_, err := tx.AppendLedgerEntry(ctx, &model.LedgerEntry{
				PersonID: personID, Kind: model.LedgerGrant, Amount: 10, FiscalYear: &year,
			})
			return err
		})
	}

	require.NoError(t, grant())
	err := grant()
	require.ErrorIs(t, err, ErrBatchInProgress)
	assert.NotErrorIs(t, err, ErrTransactionFailure)

	err = r.InTx(ctx, func(tx Tx) error {
		ok, err := tx.HasAnnualGrant(ctx, personID, year)
		require.True(t, ok)
		return err
	})
	require.NoError(t, err)
}

func TestMemoryInventoryLogReconcilesWithRecord(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepository()

	changes := []model.InventoryChange{
		{StoreID: 1, ProductID: 7, Variant: "M", Type: model.InventoryIncoming, Quantity: 5},
		{StoreID: 1, ProductID: 7, Variant: "M", Type: model.InventorySale, Quantity: 2},
		{StoreID: 1, ProductID: 7, Variant: "M", Type: model.InventoryAdjustDown, Quantity: 1},
		{StoreID: 1, ProductID: 7, Variant: "M", Type: model.InventoryReturn, Quantity: 1},
	}
	for _, c := range changes {
		err := r.InTx(ctx, func(tx Tx) error {
			_, err := tx.ApplyInventoryChange(ctx, c)
			return err
		})
		require.NoError(t, err)
	}

	err := r.InTx(ctx, func(tx Tx) error {
		_, err := tx.ApplyInventoryChange(ctx, model.InventoryChange{
			StoreID: 1, ProductID: 7, Variant: "M", Type: model.InventorySale, Quantity: 4,
		})
		return err
	})
	var insufficient *InsufficientInventoryError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, 3, insufficient.OnHand)

	records, err := r.ListInventory(ctx, 1)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 3, records[0].Quantity)

	logs, err := r.ListInventoryLogs(ctx, records[0].ID)
	require.NoError(t, err)
	require.Len(t, logs, 4)

	sum := 0
	for _, l := range logs {
		sum += l.ChangeQuantity
		assert.Equal(t, sum, l.BalanceAfter)
	}
	assert.Equal(t, records[0].Quantity, sum)
}

func TestMemoryDecrementWithoutRecord(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepository()

	err := r.InTx(ctx, func(tx Tx) error {
		_, err := tx.ApplyInventoryChange(ctx, model.InventoryChange{
			StoreID: 1, ProductID: 1, Variant: "L", Type: model.InventorySale, Quantity: 1,
		})
		return err
	})
	require.ErrorIs(t, err, ErrInsufficientInventory)

	records, err := r.ListInventory(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestMemoryNextSequenceIsScopedByDay(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepository()
	day := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)

	var got []int
	err := r.InTx(ctx, func(tx Tx) error {
		for _, scope := range []string{ScopeOnlineOrder, ScopeOnlineOrder, ScopeTicket} {
			n, err := tx.NextSequence(ctx, scope, day)
			if err != nil {
				return err
			}
			got = append(got, n)
		}
		n, err := tx.NextSequence(ctx, ScopeOnlineOrder, day.AddDate(0, 0, 1))
		got = append(got, n)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 1, 1}, got)
}

func TestMemoryNextSequenceExhausted(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepository()
	day := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	r.state.sequences[sequenceKey{scope: ScopeTicket, day: "2026-03-15"}] = MaxDailySequence

	err := r.InTx(ctx, func(tx Tx) error {
		_, err := tx.NextSequence(ctx, ScopeTicket, day)
		return err
	})
	require.ErrorIs(t, err, ErrSequenceExhausted)
}

func TestMemoryRegisterTicketOnlyFromIssued(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepository()
	tk := &model.Ticket{Number: "TKT-20260315-00001", PersonID: 1, OrderID: 1, OrderItemID: 1, Status: model.TicketIssued}

	require.NoError(t, r.InTx(ctx, func(tx Tx) error { return tx.InsertTicket(ctx, tk) }))
	require.NoError(t, r.InTx(ctx, func(tx Tx) error { return tx.RegisterTicket(ctx, tk.ID, 5, time.Now()) }))

	err := r.InTx(ctx, func(tx Tx) error { return tx.RegisterTicket(ctx, tk.ID, 6, time.Now()) })
	require.ErrorIs(t, err, ErrInvalidState)

	got, err := r.GetTicketByNumber(ctx, tk.Number)
	require.NoError(t, err)
	assert.Equal(t, model.TicketRegistered, got.Status)
	require.NotNil(t, got.TailorID)
	assert.Equal(t, int64(5), *got.TailorID)
}

func TestMemorySummaryUpdatedAtIsStrictlyIncreasing(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepository()
	frozen := time.Date(2026, time.March, 15, 10, 30, 0, 0, time.UTC)
	r.now = func() time.Time { return frozen }
	personID := seedBeneficiary(t, r)

	var stamps []time.Time
	err := r.InTx(ctx, func(tx Tx) error {
		for _, kind := range []model.LedgerKind{model.LedgerGrant, model.LedgerReserve, model.LedgerRelease} {
			sum, err := tx.AppendLedgerEntry(ctx, &model.LedgerEntry{PersonID: personID, Kind: kind, Amount: 100})
			if err != nil {
				return err
			}
			stamps = append(stamps, sum.UpdatedAt)
		}
		return nil
	})
	require.NoError(t, err)

	require.Len(t, stamps, 3)
	assert.True(t, stamps[1].After(stamps[0]))
	assert.True(t, stamps[2].After(stamps[1]))
}
