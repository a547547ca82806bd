package webhook

// Payload is the body WhatsApp Cloud API posts to the webhook. Only the
// fields the processor reads are modeled.
type Payload struct {
	Object string  `json:"object"`
	Entry  []Entry `json:"entry"`
}

type Entry struct {
	ID      string   `json:"id"`
	Changes []Change `json:"changes"`
}

type Change struct {
	Field string `json:"field"`
	Value Value  `json:"value"`
}

type Value struct {
	MessagingProduct string           `json:"messaging_product"`
	Messages         []InboundMessage `json:"messages"`
	Statuses         []Status         `json:"statuses"`
}

type InboundMessage struct {
	From      string          `json:"from"`
	ID        string          `json:"id"`
	Timestamp string          `json:"timestamp"`
	Type      string          `json:"type"`
	Text      *TextContent    `json:"text,omitempty"`
	Contacts  []SharedContact `json:"contacts,omitempty"`
}

type TextContent struct {
	Body string `json:"body"`
}

type SharedContact struct {
	Name    *ContactName   `json:"name,omitempty"`
	Profile *Profile       `json:"profile,omitempty"`
	Phones  []ContactPhone `json:"phones"`
}

type ContactName struct {
	FormattedName string `json:"formatted_name"`
	FirstName     string `json:"first_name"`
	LastName      string `json:"last_name"`
}

type Profile struct {
	Name string `json:"name"`
}

type ContactPhone struct {
	Phone string `json:"phone"`
	WaID  string `json:"wa_id"`
	Type  string `json:"type"`
}

type Status struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	Timestamp   string `json:"timestamp"`
	RecipientID string `json:"recipient_id"`
}

func (c SharedContact) displayName() string {
	if c.Name != nil && c.Name.FormattedName != "" {
		return c.Name.FormattedName
	}
	if c.Profile != nil && c.Profile.Name != "" {
		return c.Profile.Name
	}
	return "Unknown"
}
