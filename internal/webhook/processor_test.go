package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/LeventeLantos/event-messaging/internal/ledger"
	"github.com/LeventeLantos/event-messaging/internal/model"
	"github.com/LeventeLantos/event-messaging/internal/repo"
	"github.com/LeventeLantos/event-messaging/internal/service"
)

const ownerPhone = "972501112222"

type sentReply struct {
	to, text string
}

type recordingReplier struct {
	mu      sync.Mutex
	replies []sentReply
}

func (r *recordingReplier) Send(ctx context.Context, to, text, imageURL string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.replies = append(r.replies, sentReply{to: to, text: text})
	return fmt.Sprintf("wamid.reply.%d", len(r.replies)), nil
}

func (r *recordingReplier) last(t *testing.T) sentReply {
	t.Helper()

	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.replies) == 0 {
		t.Fatalf("expected a reply, got none")
	}
	return r.replies[len(r.replies)-1]
}

type env struct {
	store     *repo.MemoryStore
	events    *service.Events
	replier   *recordingReplier
	proc      *Processor
	workspace *model.Workspace
}

func newEnv(t *testing.T) *env {
	t.Helper()

	store := repo.NewMemoryStore()
	ws, err := service.NewWorkspaces(store, ledger.New(nil), 100, nil).
		CreateWorkspace(context.Background(), "Owner", "+"+ownerPhone)
	if err != nil {
		t.Fatalf("CreateWorkspace() error: %v", err)
	}

	replier := &recordingReplier{}
	return &env{
		store:     store,
		events:    service.NewEvents(store, nil),
		replier:   replier,
		proc:      NewProcessor(store, replier, Config{VerifyToken: "verify-me"}),
		workspace: ws,
	}
}

func (e *env) createEvent(t *testing.T, title string) *model.Event {
	t.Helper()

	ev, err := e.events.CreateEvent(context.Background(), service.NewEvent{WorkspaceID: e.workspace.ID, Title: title})
	if err != nil {
		t.Fatalf("CreateEvent() error: %v", err)
	}
	return ev
}

func (e *env) activeEvent(t *testing.T) string {
	t.Helper()

	ws, err := e.store.GetWorkspace(context.Background(), e.workspace.ID)
	if err != nil {
		t.Fatalf("GetWorkspace() error: %v", err)
	}
	if ws.ActiveEventID == nil {
		return ""
	}
	return *ws.ActiveEventID
}

func decode(t *testing.T, raw string) *Payload {
	t.Helper()

	var p Payload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	return &p
}

func messagePayload(from, message string) string {
	return fmt.Sprintf(`{"object":"whatsapp_business_account","entry":[{"id":"1","changes":[{"field":"messages","value":{"messaging_product":"whatsapp","messages":[%s]}}]}]}`,
		strings.ReplaceAll(message, "{{from}}", from))
}

func contactsMessage(phones ...string) string {
	var contacts []string
	for i, ph := range phones {
		contacts = append(contacts, fmt.Sprintf(`{"name":{"formatted_name":"Contact %d"},"phones":[{"phone":%q,"type":"CELL"}]}`, i, ph))
	}
	return `{"from":"{{from}}","id":"wamid.in","timestamp":"1700000000","type":"contacts","contacts":[` + strings.Join(contacts, ",") + `]}`
}

func textMessage(body string) string {
	return fmt.Sprintf(`{"from":"{{from}}","id":"wamid.in","timestamp":"1700000000","type":"text","text":{"body":%q}}`, body)
}

func statusPayload(id, status string, ts int64) string {
	return fmt.Sprintf(`{"object":"whatsapp_business_account","entry":[{"id":"1","changes":[{"field":"messages","value":{"statuses":[{"id":%q,"status":%q,"timestamp":"%d","recipient_id":"9725"}]}}]}]}`, id, status, ts)
}

func TestVerify(t *testing.T) {
	t.Parallel()

	p := NewProcessor(nil, nil, Config{VerifyToken: "verify-me"})

	if got, ok := p.Verify("subscribe", "verify-me", "12345"); !ok || got != "12345" {
		t.Fatalf("expected challenge echoed, got %q ok=%v", got, ok)
	}
	if _, ok := p.Verify("subscribe", "wrong", "12345"); ok {
		t.Fatalf("expected wrong token to be rejected")
	}
	if _, ok := p.Verify("unsubscribe", "verify-me", "12345"); ok {
		t.Fatalf("expected wrong mode to be rejected")
	}

	unset := NewProcessor(nil, nil, Config{})
	if _, ok := unset.Verify("subscribe", "", "12345"); ok {
		t.Fatalf("expected unset verify token to reject everything")
	}
}

func TestProcess_ContactsImportCountsDuplicates(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	ev := e.createEvent(t, "Wedding")
	ctx := context.Background()

	for _, ph := range []string{"972520000001", "972520000002"} {
		if _, err := e.events.AddGuest(ctx, ev.ID, service.NewGuest{Name: "existing", Phone: ph}); err != nil {
			t.Fatalf("AddGuest() error: %v", err)
		}
	}

	payload := messagePayload(ownerPhone, contactsMessage(
		"+972 52-000-0001",
		"+972 52-000-0002",
		"+972 52-000-0003",
		"+972 52-000-0004",
		"+972 52-000-0005",
	))
	r := e.proc.Process(ctx, decode(t, payload))

	if r.GuestsAdded != 3 || r.GuestDuplicates != 2 {
		t.Fatalf("expected 3 added / 2 duplicates, got %+v", r)
	}

	guests, err := e.store.ListPendingGuests(ctx, ev.ID)
	if err != nil {
		t.Fatalf("ListPendingGuests() error: %v", err)
	}
	if len(guests) != 5 {
		t.Fatalf("expected 5 guests, got %d", len(guests))
	}

	reply := e.replier.last(t)
	if reply.to != ownerPhone || !strings.Contains(reply.text, "Added 3") || !strings.Contains(reply.text, "Duplicates: 2") {
		t.Fatalf("unexpected reply: %+v", reply)
	}
}

func TestProcess_ContactNameFallbacks(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	ev := e.createEvent(t, "Wedding")
	ctx := context.Background()

	payload := messagePayload(ownerPhone, `{"from":"{{from}}","type":"contacts","contacts":[
		{"profile":{"name":"Profile Only"},"phones":[{"phone":"111"}]},
		{"phones":[{"phone":"222"}]},
		{"name":{"formatted_name":"Formatted"},"profile":{"name":"Ignored"},"phones":[{"phone":"333"},{"phone":"no digits"}]}
	]}`)
	r := e.proc.Process(ctx, decode(t, payload))
	if r.GuestsAdded != 3 {
		t.Fatalf("expected 3 added, got %+v", r)
	}

	guests, err := e.store.ListPendingGuests(ctx, ev.ID)
	if err != nil {
		t.Fatalf("ListPendingGuests() error: %v", err)
	}
	names := map[string]string{}
	for _, g := range guests {
		names[g.Phone] = g.Name
	}
	want := map[string]string{"111": "Profile Only", "222": "Unknown", "333": "Formatted"}
	for phone, name := range want {
		if names[phone] != name {
			t.Fatalf("phone %s: expected name %q, got %q", phone, name, names[phone])
		}
	}
}

func TestProcess_UnknownSenderIsIgnored(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	e.createEvent(t, "Wedding")

	r := e.proc.Process(context.Background(), decode(t, messagePayload("15550001111", contactsMessage("9725"))))
	if r.Ignored != 1 || r.GuestsAdded != 0 {
		t.Fatalf("expected message to be ignored, got %+v", r)
	}
	if len(e.replier.replies) != 0 {
		t.Fatalf("expected no reply to unknown sender, got %+v", e.replier.replies)
	}
}

func TestProcess_NoEventRepliesWithGuidance(t *testing.T) {
	t.Parallel()

	e := newEnv(t)

	r := e.proc.Process(context.Background(), decode(t, messagePayload(ownerPhone, contactsMessage("9725"))))
	if r.GuestsAdded != 0 {
		t.Fatalf("expected no guests, got %+v", r)
	}
	if reply := e.replier.last(t); reply.text != replyNoActiveEvent {
		t.Fatalf("expected guidance reply, got %q", reply.text)
	}
}

func TestProcess_AdoptsLatestEventWhenNoneActive(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	ctx := context.Background()

	// Stored directly so that neither event is adopted on creation.
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	first := &model.Event{ID: "ev-first", WorkspaceID: e.workspace.ID, Title: "First", CreatedAt: base}
	latest := &model.Event{ID: "ev-latest", WorkspaceID: e.workspace.ID, Title: "Latest", CreatedAt: base.Add(time.Hour)}
	for _, ev := range []*model.Event{first, latest} {
		if err := e.store.CreateEvent(ctx, ev); err != nil {
			t.Fatalf("CreateEvent() error: %v", err)
		}
	}

	r := e.proc.Process(ctx, decode(t, messagePayload(ownerPhone, contactsMessage("9725"))))
	if r.GuestsAdded != 1 {
		t.Fatalf("expected 1 added, got %+v", r)
	}
	if got := e.activeEvent(t); got != latest.ID {
		t.Fatalf("expected latest event %s to be adopted, got %s (first=%s)", latest.ID, got, first.ID)
	}

	guests, err := e.store.ListPendingGuests(ctx, latest.ID)
	if err != nil {
		t.Fatalf("ListPendingGuests() error: %v", err)
	}
	if len(guests) != 1 {
		t.Fatalf("expected guest on latest event, got %d", len(guests))
	}
}

func TestProcess_SetCommand(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	ctx := context.Background()

	wedding := e.createEvent(t, "Wedding")
	henna := e.createEvent(t, "Henna Night")

	if got := e.activeEvent(t); got != wedding.ID {
		t.Fatalf("expected first event active, got %s", got)
	}

	r := e.proc.Process(ctx, decode(t, messagePayload(ownerPhone, textMessage("  SET henna "))))
	if r.ActiveEventSet != 1 {
		t.Fatalf("expected active event to be set, got %+v", r)
	}
	if got := e.activeEvent(t); got != henna.ID {
		t.Fatalf("expected henna active, got %s", got)
	}
	if reply := e.replier.last(t); reply.text != "Active event updated: Henna Night" {
		t.Fatalf("unexpected reply %q", reply.text)
	}

	e.proc.Process(ctx, decode(t, messagePayload(ownerPhone, textMessage("set "+wedding.ID))))
	if got := e.activeEvent(t); got != wedding.ID {
		t.Fatalf("expected lookup by id, got %s", got)
	}

	e.proc.Process(ctx, decode(t, messagePayload(ownerPhone, textMessage("set bar mitzvah"))))
	if reply := e.replier.last(t); reply.text != "No event matches the keyword: bar mitzvah" {
		t.Fatalf("unexpected reply %q", reply.text)
	}
	if got := e.activeEvent(t); got != wedding.ID {
		t.Fatalf("expected active event unchanged, got %s", got)
	}

	before := len(e.replier.replies)
	e.proc.Process(ctx, decode(t, messagePayload(ownerPhone, textMessage("hello there"))))
	if len(e.replier.replies) != before {
		t.Fatalf("expected plain text to get no reply")
	}
}

func sentTarget(t *testing.T, e *env) (msgID, providerID string) {
	t.Helper()

	ctx := context.Background()
	ev := e.createEvent(t, "Wedding")
	if _, err := e.events.AddGuest(ctx, ev.ID, service.NewGuest{Name: "A", Phone: "9725"}); err != nil {
		t.Fatalf("AddGuest() error: %v", err)
	}

	l := ledger.New(nil)
	res, err := service.NewMessages(e.store, l, nil, service.MessagesConfig{ContentMax: 100}).
		CreateAndSchedule(ctx, service.SendRequest{EventID: ev.ID, BodyText: "hi"}, time.Now())
	if err != nil {
		t.Fatalf("CreateAndSchedule() error: %v", err)
	}

	d := service.NewDispatcher(e.store, &recordingReplier{}, nil, service.DispatcherConfig{})
	if _, err := d.Dispatch(ctx, res.MessageID); err != nil {
		t.Fatalf("Dispatch() error: %v", err)
	}

	msg, err := e.store.GetMessage(ctx, res.MessageID)
	if err != nil {
		t.Fatalf("GetMessage() error: %v", err)
	}
	return msg.ID, *msg.Targets[0].ProviderMessageID
}

func targetOf(t *testing.T, e *env, msgID string) model.Target {
	t.Helper()

	msg, err := e.store.GetMessage(context.Background(), msgID)
	if err != nil {
		t.Fatalf("GetMessage() error: %v", err)
	}
	return msg.Targets[0]
}

func TestProcess_StatusesNeverRegress(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	ctx := context.Background()
	msgID, pid := sentTarget(t, e)

	e.proc.Process(ctx, decode(t, statusPayload(pid, "read", 1700000100)))
	tg := targetOf(t, e, msgID)
	if tg.Status != model.TargetRead || tg.ReadAt == nil || tg.ReadAt.Unix() != 1700000100 {
		t.Fatalf("expected read target, got %+v", tg)
	}

	r := e.proc.Process(ctx, decode(t, statusPayload(pid, "delivered", 1700000050)))
	if r.StatusesApplied != 0 {
		t.Fatalf("expected delivered after read to be skipped, got %+v", r)
	}
	r = e.proc.Process(ctx, decode(t, statusPayload(pid, "failed", 1700000200)))
	if r.StatusesApplied != 0 {
		t.Fatalf("expected failed after read to be skipped, got %+v", r)
	}

	if tg := targetOf(t, e, msgID); tg.Status != model.TargetRead || tg.DeliveredAt != nil {
		t.Fatalf("expected target to stay read, got %+v", tg)
	}
}

func TestProcess_FailedEndsDeliveredTarget(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	ctx := context.Background()
	msgID, pid := sentTarget(t, e)

	e.proc.Process(ctx, decode(t, statusPayload(pid, "delivered", 1700000100)))
	e.proc.Process(ctx, decode(t, statusPayload(pid, "failed", 1700000200)))
	r := e.proc.Process(ctx, decode(t, statusPayload(pid, "read", 1700000300)))
	if r.StatusesApplied != 0 {
		t.Fatalf("expected read after failed to be skipped, got %+v", r)
	}

	if tg := targetOf(t, e, msgID); tg.Status != model.TargetFailed {
		t.Fatalf("expected failed target, got %+v", tg)
	}
}

func TestProcess_UnknownProviderIDAndUntrackedStatusAreNoOps(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	ctx := context.Background()
	msgID, pid := sentTarget(t, e)

	r := e.proc.Process(ctx, decode(t, statusPayload("wamid.unknown", "delivered", 1700000100)))
	if r.StatusesApplied != 0 || r.StatusesSkipped != 1 {
		t.Fatalf("unexpected report %+v", r)
	}
	r = e.proc.Process(ctx, decode(t, statusPayload(pid, "sent", 1700000100)))
	if r.StatusesApplied != 0 {
		t.Fatalf("expected untracked status to be ignored, got %+v", r)
	}
	if tg := targetOf(t, e, msgID); tg.Status != model.TargetSent {
		t.Fatalf("expected target still sent, got %+v", tg)
	}
}

func TestProcess_ConcurrentImportsCreateNoDuplicates(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	ev := e.createEvent(t, "Wedding")
	ctx := context.Background()

	payload := messagePayload(ownerPhone, contactsMessage("9721", "9722", "9723", "9724"))

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		added int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r := e.proc.Process(ctx, decode(t, payload))
			mu.Lock()
			added += r.GuestsAdded
			mu.Unlock()
		}()
	}
	wg.Wait()

	if added != 4 {
		t.Fatalf("expected 4 guests added across all imports, got %d", added)
	}
	guests, err := e.store.ListPendingGuests(ctx, ev.ID)
	if err != nil {
		t.Fatalf("ListPendingGuests() error: %v", err)
	}
	if len(guests) != 4 {
		t.Fatalf("expected 4 guests, got %d", len(guests))
	}
}

func TestVerifySignature(t *testing.T) {
	t.Parallel()

	body := []byte(`{"object":"whatsapp_business_account"}`)

	p := NewProcessor(nil, nil, Config{AppSecret: "s3cret"})
	if !p.VerifySignature(body, Sign("s3cret", body)) {
		t.Fatalf("expected valid signature to pass")
	}
	if p.VerifySignature(body, Sign("other", body)) {
		t.Fatalf("expected signature with wrong secret to fail")
	}
	if p.VerifySignature(body, "sha256=zz") || p.VerifySignature(body, "") {
		t.Fatalf("expected malformed signatures to fail")
	}

	open := NewProcessor(nil, nil, Config{})
	if !open.VerifySignature(body, "") {
		t.Fatalf("expected no app secret to skip verification")
	}
}
