package model

import "time"

type Event struct {
	ID             string     `json:"id"`
	WorkspaceID    string     `json:"workspaceId"`
	Title          string     `json:"title"`
	Date           *time.Time `json:"date,omitempty"`
	TimeStr        *string    `json:"timeStr,omitempty"`
	Venue          *string    `json:"venue,omitempty"`
	InviteImageURL *string    `json:"inviteImageUrl,omitempty"`
	Timezone       *string    `json:"timezone,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
}

type GuestStatus string

const (
	GuestPending   GuestStatus = "pending"
	GuestConfirmed GuestStatus = "confirmed"
	GuestDeclined  GuestStatus = "declined"
)

type Guest struct {
	ID        string      `json:"id"`
	EventID   string      `json:"eventId"`
	Name      string      `json:"name"`
	Phone     string      `json:"phone"`
	Relation  *string     `json:"relation,omitempty"`
	Side      *string     `json:"side,omitempty"`
	Status    GuestStatus `json:"status"`
	CreatedAt time.Time   `json:"createdAt"`
}
