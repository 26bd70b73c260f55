package domain

// Message is a rendered notification ready for a sender.
type Message struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}
