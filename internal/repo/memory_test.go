package repo

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/LeventeLantos/event-messaging/internal/model"
)

func seedMemory(t *testing.T, balance int64) (*MemoryStore, *model.Event) {
	t.Helper()

	s := NewMemoryStore()
	ctx := context.Background()
	created := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)

	err := s.InTx(ctx, func(ctx context.Context, tx Tx) error {
		return tx.InsertWorkspace(ctx, &model.Workspace{ID: "ws-1", Name: "w", CreditBalance: balance, CreatedAt: created})
	})
	if err != nil {
		t.Fatalf("seed workspace: %v", err)
	}

	ev := &model.Event{ID: "ev-1", WorkspaceID: "ws-1", Title: "Wedding", CreatedAt: created}
	if err := s.CreateEvent(ctx, ev); err != nil {
		t.Fatalf("seed event: %v", err)
	}
	return s, ev
}

func TestMemoryStore_InTxRollsBackOnError(t *testing.T) {
	t.Parallel()

	s, ev := seedMemory(t, 5)
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.InTx(ctx, func(ctx context.Context, tx Tx) error {
		if _, err := tx.DebitBalance(ctx, "ws-1", 3); err != nil {
			return err
		}
		if err := tx.InsertMessage(ctx, &model.Message{ID: "m-1", EventID: ev.ID, DispatchState: model.DispatchPending}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	ws, _ := s.GetWorkspace(ctx, "ws-1")
	if ws.CreditBalance != 5 {
		t.Fatalf("expected balance untouched, got %d", ws.CreditBalance)
	}
	if _, err := s.GetMessage(ctx, "m-1"); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected message to be rolled back, got %v", err)
	}
}

func TestMemoryStore_DebitNeverOverdraws(t *testing.T) {
	t.Parallel()

	s, _ := seedMemory(t, 10)
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.InTx(ctx, func(ctx context.Context, tx Tx) error {
				_, err := tx.DebitBalance(ctx, "ws-1", 1)
				return err
			})
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			} else if !errors.Is(err, model.ErrInsufficientCredits) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if succeeded != 10 {
		t.Fatalf("expected exactly 10 debits, got %d", succeeded)
	}
	ws, _ := s.GetWorkspace(ctx, "ws-1")
	if ws.CreditBalance != 0 {
		t.Fatalf("expected balance 0, got %d", ws.CreditBalance)
	}
}

func TestMemoryStore_CreateGuestIsUniquePerEventPhone(t *testing.T) {
	t.Parallel()

	s, ev := seedMemory(t, 0)
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	created := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ok, err := s.CreateGuest(ctx, &model.Guest{
				ID: fmt.Sprintf("g-%d", i), EventID: ev.ID, Name: "x", Phone: "972500000000", Status: model.GuestPending,
			})
			if err != nil {
				t.Errorf("CreateGuest: %v", err)
				return
			}
			if ok {
				mu.Lock()
				created++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	if created != 1 {
		t.Fatalf("expected exactly one guest created, got %d", created)
	}
	guests, _ := s.ListPendingGuests(ctx, ev.ID)
	if len(guests) != 1 {
		t.Fatalf("expected 1 guest row, got %d", len(guests))
	}
}

func TestMemoryStore_ClaimIsExclusive(t *testing.T) {
	t.Parallel()

	s, ev := seedMemory(t, 0)
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)

	err := s.InTx(ctx, func(ctx context.Context, tx Tx) error {
		return tx.InsertMessage(ctx, &model.Message{ID: "m-1", EventID: ev.ID, DispatchState: model.DispatchPending, CreatedAt: now})
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	stale := now.Add(-10 * time.Minute)
	ok, _ := s.ClaimMessage(ctx, "m-1", now, stale)
	if !ok {
		t.Fatalf("expected first claim to succeed")
	}
	if ok, _ := s.ClaimMessage(ctx, "m-1", now, stale); ok {
		t.Fatalf("expected second claim to fail")
	}

	later := now.Add(11 * time.Minute)
	if ok, _ := s.ClaimMessage(ctx, "m-1", later, later.Add(-10*time.Minute)); !ok {
		t.Fatalf("expected stale claim to be reclaimable")
	}

	if err := s.MarkProcessed(ctx, "m-1", later); err != nil {
		t.Fatalf("MarkProcessed: %v", err)
	}
	if ok, _ := s.ClaimMessage(ctx, "m-1", later.Add(time.Hour), later.Add(time.Hour)); ok {
		t.Fatalf("expected processed message to be unclaimable")
	}
}

func TestMemoryStore_ListDueRespectsScheduleAndClaims(t *testing.T) {
	t.Parallel()

	s, ev := seedMemory(t, 0)
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	future := now.Add(time.Hour)
	past := now.Add(-time.Hour)

	err := s.InTx(ctx, func(ctx context.Context, tx Tx) error {
		for _, m := range []model.Message{
			{ID: "immediate", EventID: ev.ID, DispatchState: model.DispatchPending, CreatedAt: now.Add(-time.Minute)},
			{ID: "future", EventID: ev.ID, DispatchState: model.DispatchPending, ScheduledAt: &future, CreatedAt: past},
			{ID: "past", EventID: ev.ID, DispatchState: model.DispatchPending, ScheduledAt: &past, CreatedAt: past},
		} {
			m := m
			if err := tx.InsertMessage(ctx, &m); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	ids, err := s.ListDue(ctx, now, now.Add(-10*time.Minute), 10)
	if err != nil {
		t.Fatalf("ListDue: %v", err)
	}
	if len(ids) != 2 || ids[0] != "past" || ids[1] != "immediate" {
		t.Fatalf("unexpected due ids: %v", ids)
	}

	_, _ = s.ClaimMessage(ctx, "past", now, now.Add(-10*time.Minute))
	ids, _ = s.ListDue(ctx, now, now.Add(-10*time.Minute), 10)
	if len(ids) != 1 || ids[0] != "immediate" {
		t.Fatalf("expected claimed message to be skipped, got %v", ids)
	}

	ids, _ = s.ListDue(ctx, now, now.Add(-10*time.Minute), 1)
	if len(ids) != 1 {
		t.Fatalf("expected limit to apply, got %v", ids)
	}
}

func TestMemoryStore_ApplyTargetStatusNeverRegresses(t *testing.T) {
	t.Parallel()

	s, ev := seedMemory(t, 0)
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)

	err := s.InTx(ctx, func(ctx context.Context, tx Tx) error {
		if err := tx.InsertMessage(ctx, &model.Message{ID: "m-1", EventID: ev.ID, DispatchState: model.DispatchPending, CreatedAt: now}); err != nil {
			return err
		}
		return tx.InsertTargets(ctx, []model.Target{{ID: "t-1", MessageID: "m-1", GuestID: "g", Phone: "1", Status: model.TargetPending}})
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := s.MarkTargetSent(ctx, "t-1", "wamid.1", now); err != nil {
		t.Fatalf("MarkTargetSent: %v", err)
	}

	if ok, _ := s.ApplyTargetStatus(ctx, "wamid.1", model.TargetRead, now.Add(2*time.Minute)); !ok {
		t.Fatalf("expected read to apply")
	}
	if ok, _ := s.ApplyTargetStatus(ctx, "wamid.1", model.TargetDelivered, now.Add(time.Minute)); ok {
		t.Fatalf("expected delivered after read to be ignored")
	}
	if ok, _ := s.ApplyTargetStatus(ctx, "wamid.unknown", model.TargetDelivered, now); ok {
		t.Fatalf("expected unknown provider id to be a no-op")
	}

	m, _ := s.GetMessage(ctx, "m-1")
	if got := m.Targets[0].Status; got != model.TargetRead {
		t.Fatalf("expected read, got %s", got)
	}
	if m.Targets[0].ReadAt == nil || m.Targets[0].DeliveredAt != nil {
		t.Fatalf("unexpected timestamps: %+v", m.Targets[0])
	}
}

func TestMemoryStore_MarkTargetOnlyFromPending(t *testing.T) {
	t.Parallel()

	s, ev := seedMemory(t, 0)
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)

	_ = s.InTx(ctx, func(ctx context.Context, tx Tx) error {
		_ = tx.InsertMessage(ctx, &model.Message{ID: "m-1", EventID: ev.ID, DispatchState: model.DispatchPending, CreatedAt: now})
		return tx.InsertTargets(ctx, []model.Target{{ID: "t-1", MessageID: "m-1", GuestID: "g", Phone: "1", Status: model.TargetPending}})
	})

	_ = s.MarkTargetSent(ctx, "t-1", "wamid.1", now)
	_ = s.MarkTargetFailed(ctx, "t-1", "late failure")

	m, _ := s.GetMessage(ctx, "m-1")
	if m.Targets[0].Status != model.TargetSent || m.Targets[0].ErrorCode != nil {
		t.Fatalf("expected sent target to stay sent, got %+v", m.Targets[0])
	}
}

func TestMemoryStore_TargetClaims(t *testing.T) {
	t.Parallel()

	s, ev := seedMemory(t, 0)
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)

	_ = s.InTx(ctx, func(ctx context.Context, tx Tx) error {
		_ = tx.InsertMessage(ctx, &model.Message{ID: "m-1", EventID: ev.ID, DispatchState: model.DispatchPending, CreatedAt: now})
		return tx.InsertTargets(ctx, []model.Target{{ID: "t-1", MessageID: "m-1", GuestID: "g", Phone: "1", Status: model.TargetPending}})
	})

	if won, _ := s.ClaimTarget(ctx, "t-1", now); !won {
		t.Fatalf("expected first claim to win")
	}
	if won, _ := s.ClaimTarget(ctx, "t-1", now); won {
		t.Fatalf("expected second claim to lose")
	}
	if won, _ := s.ReclaimTarget(ctx, "t-1", now.Add(time.Minute), now.Add(-time.Minute)); won {
		t.Fatalf("expected live claim not to be reclaimable")
	}

	later := now.Add(time.Hour)
	if won, _ := s.ReclaimTarget(ctx, "t-1", later, later.Add(-10*time.Minute)); !won {
		t.Fatalf("expected stale claim to be reclaimable")
	}
	_ = s.MarkTargetFailed(ctx, "t-1", model.ErrorCodeInterrupted)

	if err := s.MarkTargetSent(ctx, "t-1", "wamid.late", later); err != nil {
		t.Fatalf("MarkTargetSent: %v", err)
	}
	m, _ := s.GetMessage(ctx, "m-1")
	if m.Targets[0].Status != model.TargetSent || m.Targets[0].ErrorCode != nil {
		t.Fatalf("expected late result to replace interrupted marker, got %+v", m.Targets[0])
	}
}

func TestMemoryStore_FindEventByKeyword(t *testing.T) {
	t.Parallel()

	s, _ := seedMemory(t, 0)
	ctx := context.Background()
	later := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)

	if err := s.CreateEvent(ctx, &model.Event{ID: "ev-2", WorkspaceID: "ws-1", Title: "Wedding Afterparty", CreatedAt: later}); err != nil {
		t.Fatalf("CreateEvent: %v", err)
	}

	ev, err := s.FindEventByKeyword(ctx, "ws-1", "wedding")
	if err != nil || ev.ID != "ev-2" {
		t.Fatalf("expected newest match ev-2, got %+v err=%v", ev, err)
	}
	ev, err = s.FindEventByKeyword(ctx, "ws-1", "ev-1")
	if err != nil || ev.ID != "ev-1" {
		t.Fatalf("expected id match ev-1, got %+v err=%v", ev, err)
	}
	if _, err := s.FindEventByKeyword(ctx, "ws-1", "gala"); !errors.Is(err, model.ErrEventNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
