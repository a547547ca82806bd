package service_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/LeventeLantos/event-messaging/internal/ledger"
	"github.com/LeventeLantos/event-messaging/internal/model"
	"github.com/LeventeLantos/event-messaging/internal/repo"
	"github.com/LeventeLantos/event-messaging/internal/service"
)

type fixture struct {
	store      *repo.MemoryStore
	ledger     *ledger.Ledger
	workspaces *service.Workspaces
	events     *service.Events
	workspace  *model.Workspace
	event      *model.Event
}

func newFixture(t *testing.T, credits int64, guests int) *fixture {
	t.Helper()

	ctx := context.Background()
	store := repo.NewMemoryStore()
	l := ledger.New(nil)

	f := &fixture{
		store:      store,
		ledger:     l,
		workspaces: service.NewWorkspaces(store, l, credits, nil),
		events:     service.NewEvents(store, nil),
	}

	ws, err := f.workspaces.CreateWorkspace(ctx, "Cohen wedding", "+972 50-000-0000")
	if err != nil {
		t.Fatalf("CreateWorkspace() error: %v", err)
	}
	f.workspace = ws

	ev, err := f.events.CreateEvent(ctx, service.NewEvent{WorkspaceID: ws.ID, Title: "Wedding"})
	if err != nil {
		t.Fatalf("CreateEvent() error: %v", err)
	}
	f.event = ev

	for i := 0; i < guests; i++ {
		_, err := f.events.AddGuest(ctx, ev.ID, service.NewGuest{
			Name:  fmt.Sprintf("Guest %d", i),
			Phone: fmt.Sprintf("97250%07d", i),
		})
		if err != nil {
			t.Fatalf("AddGuest(%d) error: %v", i, err)
		}
	}
	return f
}

func (f *fixture) balance(t *testing.T) int64 {
	t.Helper()

	ws, err := f.store.GetWorkspace(context.Background(), f.workspace.ID)
	if err != nil {
		t.Fatalf("GetWorkspace() error: %v", err)
	}
	return ws.CreditBalance
}

func (f *fixture) ledgerSum(t *testing.T) int64 {
	t.Helper()

	entries, err := f.store.ListLedgerEntries(context.Background(), f.workspace.ID)
	if err != nil {
		t.Fatalf("ListLedgerEntries() error: %v", err)
	}
	var sum int64
	for _, e := range entries {
		sum += e.Delta
	}
	return sum
}

// recordingSender counts sends per phone and fails for the phones in fail.
type recordingSender struct {
	mu    sync.Mutex
	calls map[string]int
	fail  map[string]error
	seq   int
}

func newRecordingSender() *recordingSender {
	return &recordingSender{calls: map[string]int{}, fail: map[string]error{}}
}

func (s *recordingSender) Send(ctx context.Context, to, text, imageURL string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls[to]++
	if err := s.fail[to]; err != nil {
		return "", err
	}
	s.seq++
	return fmt.Sprintf("wamid.%d", s.seq), nil
}

func (s *recordingSender) total() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, c := range s.calls {
		n += c
	}
	return n
}

// manualQueue records ids instead of dispatching them.
type manualQueue struct {
	mu     sync.Mutex
	ids    []string
	reject bool
}

func (q *manualQueue) TryEnqueue(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.reject {
		return false
	}
	q.ids = append(q.ids, id)
	return true
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
