package model

import "time"

type Workspace struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	OwnerPhone    *string   `json:"ownerPhone,omitempty"`
	CreditBalance int64     `json:"creditBalance"`
	ActiveEventID *string   `json:"activeEventId,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

type LedgerEntry struct {
	ID           string    `json:"id"`
	WorkspaceID  string    `json:"workspaceId"`
	Delta        int64     `json:"delta"`
	Reason       string    `json:"reason"`
	ReferenceID  *string   `json:"referenceId,omitempty"`
	BalanceAfter int64     `json:"balanceAfter"`
	CreatedAt    time.Time `json:"createdAt"`
}
