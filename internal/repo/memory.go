package repo

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/LeventeLantos/event-messaging/internal/model"
)

var errDuplicateProviderID = errors.New("duplicate provider message id")

// MemoryStore is an in-process Store. Transactions run under the store lock
// against a cloned state that replaces the live one only on commit, which
// makes them serializable and all-or-nothing.
type MemoryStore struct {
	mu    sync.Mutex
	state *memState
}

var _ Store = (*MemoryStore)(nil)

type memState struct {
	workspaces map[string]model.Workspace
	ledger     []model.LedgerEntry

	events   []model.Event
	eventIdx map[string]int

	guests   []model.Guest
	guestKey map[string]struct{}

	messages   []model.Message
	messageIdx map[string]int

	targets     []model.Target
	targetIdx   map[string]int
	providerIdx map[string]int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: &memState{
		workspaces:  map[string]model.Workspace{},
		eventIdx:    map[string]int{},
		guestKey:    map[string]struct{}{},
		messageIdx:  map[string]int{},
		targetIdx:   map[string]int{},
		providerIdx: map[string]int{},
	}}
}

func (st *memState) clone() *memState {
	c := &memState{
		workspaces:  make(map[string]model.Workspace, len(st.workspaces)),
		ledger:      append([]model.LedgerEntry(nil), st.ledger...),
		events:      append([]model.Event(nil), st.events...),
		eventIdx:    make(map[string]int, len(st.eventIdx)),
		guests:      append([]model.Guest(nil), st.guests...),
		guestKey:    make(map[string]struct{}, len(st.guestKey)),
		messages:    append([]model.Message(nil), st.messages...),
		messageIdx:  make(map[string]int, len(st.messageIdx)),
		targets:     append([]model.Target(nil), st.targets...),
		targetIdx:   make(map[string]int, len(st.targetIdx)),
		providerIdx: make(map[string]int, len(st.providerIdx)),
	}
	for k, v := range st.workspaces {
		c.workspaces[k] = v
	}
	for k, v := range st.eventIdx {
		c.eventIdx[k] = v
	}
	for k := range st.guestKey {
		c.guestKey[k] = struct{}{}
	}
	for k, v := range st.messageIdx {
		c.messageIdx[k] = v
	}
	for k, v := range st.targetIdx {
		c.targetIdx[k] = v
	}
	for k, v := range st.providerIdx {
		c.providerIdx[k] = v
	}
	return c
}

func guestKey(eventID, phone string) string {
	return eventID + "\x00" + phone
}

func (s *MemoryStore) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	work := s.state.clone()
	if err := fn(ctx, &memoryTx{st: work}); err != nil {
		return err
	}
	s.state = work
	return nil
}

type memoryTx struct {
	st *memState
}

func (t *memoryTx) InsertWorkspace(_ context.Context, ws *model.Workspace) error {
	if _, ok := t.st.workspaces[ws.ID]; ok {
		return errors.New("workspace already exists")
	}
	t.st.workspaces[ws.ID] = *ws
	return nil
}

func (t *memoryTx) DebitBalance(_ context.Context, workspaceID string, amount int64) (int64, error) {
	ws, ok := t.st.workspaces[workspaceID]
	if !ok {
		return 0, model.ErrWorkspaceNotFound
	}
	if ws.CreditBalance < amount {
		return 0, model.ErrInsufficientCredits
	}
	ws.CreditBalance -= amount
	t.st.workspaces[workspaceID] = ws
	return ws.CreditBalance, nil
}

func (t *memoryTx) CreditBalance(_ context.Context, workspaceID string, amount int64) (int64, error) {
	ws, ok := t.st.workspaces[workspaceID]
	if !ok {
		return 0, model.ErrWorkspaceNotFound
	}
	ws.CreditBalance += amount
	t.st.workspaces[workspaceID] = ws
	return ws.CreditBalance, nil
}

func (t *memoryTx) InsertLedgerEntry(_ context.Context, e *model.LedgerEntry) error {
	if _, ok := t.st.workspaces[e.WorkspaceID]; !ok {
		return model.ErrWorkspaceNotFound
	}
	t.st.ledger = append(t.st.ledger, *e)
	return nil
}

func (t *memoryTx) InsertMessage(_ context.Context, m *model.Message) error {
	if _, ok := t.st.messageIdx[m.ID]; ok {
		return errors.New("message already exists")
	}
	if _, ok := t.st.eventIdx[m.EventID]; !ok {
		return model.ErrEventNotFound
	}
	cp := *m
	cp.Targets = nil
	t.st.messageIdx[m.ID] = len(t.st.messages)
	t.st.messages = append(t.st.messages, cp)
	return nil
}

func (t *memoryTx) InsertTargets(_ context.Context, targets []model.Target) error {
	for _, tg := range targets {
		if _, ok := t.st.messageIdx[tg.MessageID]; !ok {
			return model.ErrNotFound
		}
		if _, ok := t.st.targetIdx[tg.ID]; ok {
			return errors.New("target already exists")
		}
		t.st.targetIdx[tg.ID] = len(t.st.targets)
		t.st.targets = append(t.st.targets, tg)
	}
	return nil
}

func (s *MemoryStore) GetMessage(_ context.Context, id string) (*model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.state.messageIdx[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	m := s.state.messages[i]
	m.Targets = s.state.targetsOf(id)
	return &m, nil
}

func (st *memState) targetsOf(messageID string) []model.Target {
	var out []model.Target
	for _, t := range st.targets {
		if t.MessageID == messageID {
			out = append(out, t)
		}
	}
	return out
}

func (s *MemoryStore) ListEventMessages(_ context.Context, eventID string) ([]model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []model.Message
	for i := len(s.state.messages) - 1; i >= 0; i-- {
		m := s.state.messages[i]
		if m.EventID != eventID {
			continue
		}
		m.Targets = s.state.targetsOf(m.ID)
		out = append(out, m)
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].CreatedAt.After(out[b].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) ListDue(_ context.Context, now, staleBefore time.Time, limit int) ([]string, error) {
	if limit <= 0 {
		return nil, errors.New("limit must be > 0")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var due []model.Message
	for _, m := range s.state.messages {
		if m.DueAt().After(now) || !m.Claimable(staleBefore) {
			continue
		}
		due = append(due, m)
	}
	sort.SliceStable(due, func(a, b int) bool { return due[a].DueAt().Before(due[b].DueAt()) })

	ids := make([]string, 0, min(limit, len(due)))
	for _, m := range due {
		if len(ids) == limit {
			break
		}
		ids = append(ids, m.ID)
	}
	return ids, nil
}

func (s *MemoryStore) ClaimMessage(_ context.Context, id string, now, staleBefore time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.state.messageIdx[id]
	if !ok {
		return false, nil
	}
	m := s.state.messages[i]
	if !m.Claimable(staleBefore) {
		return false, nil
	}
	claimedAt := now
	m.DispatchState = model.DispatchDispatching
	m.ClaimedAt = &claimedAt
	s.state.messages[i] = m
	return true, nil
}

func (s *MemoryStore) ClaimTarget(_ context.Context, targetID string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.state.targetIdx[targetID]
	if !ok || s.state.targets[i].Status != model.TargetPending {
		return false, nil
	}
	claimedAt := now
	s.state.targets[i].Status = model.TargetSending
	s.state.targets[i].ClaimedAt = &claimedAt
	return true, nil
}

func (s *MemoryStore) ReclaimTarget(_ context.Context, targetID string, now, staleBefore time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.state.targetIdx[targetID]
	if !ok || !s.state.targets[i].Reclaimable(staleBefore) {
		return false, nil
	}
	claimedAt := now
	s.state.targets[i].ClaimedAt = &claimedAt
	return true, nil
}

func (s *MemoryStore) MarkTargetSent(_ context.Context, targetID, providerMessageID string, sentAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.state.targetIdx[targetID]
	if !ok || !s.state.targets[i].AcceptsSent() {
		return nil
	}
	if _, dup := s.state.providerIdx[providerMessageID]; dup {
		return errDuplicateProviderID
	}
	t := s.state.targets[i]
	pid := providerMessageID
	at := sentAt
	t.Status = model.TargetSent
	t.ProviderMessageID = &pid
	t.SentAt = &at
	t.ErrorCode = nil
	s.state.targets[i] = t
	s.state.providerIdx[providerMessageID] = i
	return nil
}

func (s *MemoryStore) MarkTargetFailed(_ context.Context, targetID, errorCode string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.state.targetIdx[targetID]
	if !ok || s.state.targets[i].Status.Terminal() {
		return nil
	}
	t := s.state.targets[i]
	code := errorCode
	t.Status = model.TargetFailed
	t.ErrorCode = &code
	s.state.targets[i] = t
	return nil
}

func (s *MemoryStore) MarkProcessed(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.state.messageIdx[id]
	if !ok || s.state.messages[i].ProcessedAt != nil {
		return nil
	}
	m := s.state.messages[i]
	processedAt := at
	m.ProcessedAt = &processedAt
	m.DispatchState = model.DispatchDone
	s.state.messages[i] = m
	return nil
}

func (s *MemoryStore) ApplyTargetStatus(_ context.Context, providerMessageID string, status model.TargetStatus, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.state.providerIdx[providerMessageID]
	if !ok {
		return false, nil
	}
	t := s.state.targets[i]
	if !status.CanReplace(t.Status) {
		return false, nil
	}
	ts := at
	t.Status = status
	switch status {
	case model.TargetDelivered:
		t.DeliveredAt = &ts
	case model.TargetRead:
		t.ReadAt = &ts
	}
	s.state.targets[i] = t
	return true, nil
}

func (s *MemoryStore) CreateEvent(_ context.Context, e *model.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.state.workspaces[e.WorkspaceID]; !ok {
		return model.ErrWorkspaceNotFound
	}
	if _, ok := s.state.eventIdx[e.ID]; ok {
		return errors.New("event already exists")
	}
	s.state.eventIdx[e.ID] = len(s.state.events)
	s.state.events = append(s.state.events, *e)
	return nil
}

func (s *MemoryStore) GetEvent(_ context.Context, id string) (*model.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.state.eventIdx[id]
	if !ok {
		return nil, model.ErrEventNotFound
	}
	e := s.state.events[i]
	return &e, nil
}

// latestEvent returns the newest event of the workspace matching keep; on
// equal creation times the later insert wins.
func (st *memState) latestEvent(workspaceID string, keep func(model.Event) bool) (*model.Event, error) {
	var best *model.Event
	for i := range st.events {
		e := st.events[i]
		if e.WorkspaceID != workspaceID || !keep(e) {
			continue
		}
		if best == nil || !e.CreatedAt.Before(best.CreatedAt) {
			best = &e
		}
	}
	if best == nil {
		return nil, model.ErrEventNotFound
	}
	return best, nil
}

func (s *MemoryStore) LatestEvent(_ context.Context, workspaceID string) (*model.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state.latestEvent(workspaceID, func(model.Event) bool { return true })
}

func (s *MemoryStore) FindEventByKeyword(_ context.Context, workspaceID, keyword string) (*model.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kw := strings.ToLower(keyword)
	return s.state.latestEvent(workspaceID, func(e model.Event) bool {
		return e.ID == keyword || strings.Contains(strings.ToLower(e.Title), kw)
	})
}

func (s *MemoryStore) ListGuests(_ context.Context, eventID string) ([]model.Guest, error) {
	return s.guestsOf(eventID, func(model.Guest) bool { return true }), nil
}

func (s *MemoryStore) ListPendingGuests(_ context.Context, eventID string) ([]model.Guest, error) {
	return s.guestsOf(eventID, func(g model.Guest) bool { return g.Status == model.GuestPending }), nil
}

func (s *MemoryStore) guestsOf(eventID string, keep func(model.Guest) bool) []model.Guest {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []model.Guest
	for _, g := range s.state.guests {
		if g.EventID == eventID && keep(g) {
			out = append(out, g)
		}
	}
	return out
}

func (s *MemoryStore) CreateGuest(_ context.Context, g *model.Guest) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.state.eventIdx[g.EventID]; !ok {
		return false, model.ErrEventNotFound
	}
	key := guestKey(g.EventID, g.Phone)
	if _, exists := s.state.guestKey[key]; exists {
		return false, nil
	}
	s.state.guestKey[key] = struct{}{}
	s.state.guests = append(s.state.guests, *g)
	return true, nil
}

func (s *MemoryStore) GetWorkspace(_ context.Context, id string) (*model.Workspace, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ws, ok := s.state.workspaces[id]
	if !ok {
		return nil, model.ErrWorkspaceNotFound
	}
	return &ws, nil
}

func (s *MemoryStore) FindWorkspaceByOwnerPhone(_ context.Context, phone string) (*model.Workspace, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var best *model.Workspace
	for _, ws := range s.state.workspaces {
		if ws.OwnerPhone == nil || *ws.OwnerPhone != phone {
			continue
		}
		if best == nil || ws.CreatedAt.Before(best.CreatedAt) {
			w := ws
			best = &w
		}
	}
	if best == nil {
		return nil, model.ErrWorkspaceNotFound
	}
	return best, nil
}

func (s *MemoryStore) SetActiveEvent(_ context.Context, workspaceID, eventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ws, ok := s.state.workspaces[workspaceID]
	if !ok {
		return model.ErrWorkspaceNotFound
	}
	id := eventID
	ws.ActiveEventID = &id
	s.state.workspaces[workspaceID] = ws
	return nil
}

func (s *MemoryStore) AdoptActiveEvent(_ context.Context, workspaceID, eventID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ws, ok := s.state.workspaces[workspaceID]
	if !ok || ws.ActiveEventID != nil {
		return false, nil
	}
	id := eventID
	ws.ActiveEventID = &id
	s.state.workspaces[workspaceID] = ws
	return true, nil
}

func (s *MemoryStore) ListLedgerEntries(_ context.Context, workspaceID string) ([]model.LedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []model.LedgerEntry
	for _, e := range s.state.ledger {
		if e.WorkspaceID == workspaceID {
			out = append(out, e)
		}
	}
	return out, nil
}
