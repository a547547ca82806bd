package model

import "time"

type TargetStatus string

const (
	TargetPending   TargetStatus = "pending"
	TargetSending   TargetStatus = "sending"
	TargetSent      TargetStatus = "sent"
	TargetDelivered TargetStatus = "delivered"
	TargetRead      TargetStatus = "read"
	TargetFailed    TargetStatus = "failed"
)

// ErrorCodeInterrupted marks a target whose send was claimed by a dispatch
// that never reported back. A late result from that dispatch replaces it.
const ErrorCodeInterrupted = "dispatch_interrupted"

// Precedence orders stored target statuses. Failed sits above everything so
// that no callback can move a target out of it.
func (s TargetStatus) Precedence() int {
	switch s {
	case TargetPending, TargetSending:
		return 0
	case TargetSent:
		return 1
	case TargetDelivered:
		return 2
	case TargetRead:
		return 3
	case TargetFailed:
		return 4
	}
	return -1
}

// CallbackPrecedence is the precedence an incoming status callback carries.
// A failed callback ranks with read: it can end a sent or delivered target but
// never one the recipient already read.
func (s TargetStatus) CallbackPrecedence() int {
	if s == TargetFailed {
		return TargetRead.Precedence()
	}
	return s.Precedence()
}

// CanReplace reports whether a callback carrying s may overwrite current.
func (s TargetStatus) CanReplace(current TargetStatus) bool {
	return current.Precedence() < s.CallbackPrecedence()
}

// Terminal reports whether the target has had its send attempt recorded.
func (s TargetStatus) Terminal() bool {
	return s != TargetPending && s != TargetSending
}

// ParseCallbackStatus maps a provider status string to a target status.
// Strings the core does not track (e.g. "sent", "deleted") are rejected.
func ParseCallbackStatus(raw string) (TargetStatus, bool) {
	switch raw {
	case "delivered":
		return TargetDelivered, true
	case "read":
		return TargetRead, true
	case "failed":
		return TargetFailed, true
	}
	return "", false
}

type DispatchState string

const (
	DispatchPending     DispatchState = "pending"
	DispatchDispatching DispatchState = "dispatching"
	DispatchDone        DispatchState = "done"
)

type Message struct {
	ID            string        `json:"id"`
	EventID       string        `json:"eventId"`
	BodyText      string        `json:"bodyText"`
	ImageURL      *string       `json:"imageUrl,omitempty"`
	ScheduledAt   *time.Time    `json:"scheduledAt,omitempty"`
	ProcessedAt   *time.Time    `json:"processedAt,omitempty"`
	DispatchState DispatchState `json:"dispatchState"`
	ClaimedAt     *time.Time    `json:"claimedAt,omitempty"`
	CreatedAt     time.Time     `json:"createdAt"`

	Targets []Target `json:"targets,omitempty"`
}

// DueAt is when the message becomes eligible for dispatch. Immediate messages
// are due from creation, which lets the scheduler recover any whose handoff
// was lost.
func (m *Message) DueAt() time.Time {
	if m.ScheduledAt != nil {
		return *m.ScheduledAt
	}
	return m.CreatedAt
}

// Claimable reports whether a dispatcher may take the message at now. A
// dispatching claim older than staleBefore is treated as abandoned.
func (m *Message) Claimable(staleBefore time.Time) bool {
	if m.ProcessedAt != nil {
		return false
	}
	switch m.DispatchState {
	case DispatchPending:
		return true
	case DispatchDispatching:
		return m.ClaimedAt == nil || m.ClaimedAt.Before(staleBefore)
	}
	return false
}

type Target struct {
	ID                string       `json:"id"`
	MessageID         string       `json:"messageId"`
	GuestID           string       `json:"guestId"`
	Phone             string       `json:"phone"`
	Status            TargetStatus `json:"status"`
	ProviderMessageID *string      `json:"providerMessageId,omitempty"`
	SentAt            *time.Time   `json:"sentAt,omitempty"`
	DeliveredAt       *time.Time   `json:"deliveredAt,omitempty"`
	ReadAt            *time.Time   `json:"readAt,omitempty"`
	ErrorCode         *string      `json:"errorCode,omitempty"`
	ClaimedAt         *time.Time   `json:"claimedAt,omitempty"`
	CreatedAt         time.Time    `json:"createdAt"`
}

// Reclaimable reports whether a sending claim is older than staleBefore.
func (t *Target) Reclaimable(staleBefore time.Time) bool {
	return t.Status == TargetSending && (t.ClaimedAt == nil || t.ClaimedAt.Before(staleBefore))
}

// AcceptsSent reports whether a send result may still be written to the
// target.
func (t *Target) AcceptsSent() bool {
	switch t.Status {
	case TargetPending, TargetSending:
		return true
	case TargetFailed:
		return t.ErrorCode != nil && *t.ErrorCode == ErrorCodeInterrupted
	}
	return false
}
