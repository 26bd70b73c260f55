package service

import (
	"bytes"
	"fmt"
	"text/template"
	"time"

	"pixwithdraw/internal/domain"
)

const (
	subjectTemplate = `Withdrawal {{.TransactionID}} completed`
	bodyTemplate    = `Hello {{.AccountName}},

Your PIX withdrawal of {{.Amount}} was completed on {{.CompletedAt}}.

Transaction: {{.TransactionID}}
Destination key: {{.MaskedKey}}

If you did not request this withdrawal, contact support immediately.
`
)

type confirmation struct {
	AccountName   string
	Amount        string
	TransactionID string
	MaskedKey     string
	CompletedAt   string
}

// Renderer builds the confirmation message sent after a completed withdrawal.
type Renderer struct {
	subject *template.Template
	body    *template.Template
}

func NewRenderer() *Renderer {
	return &Renderer{
		subject: template.Must(template.New("subject").Parse(subjectTemplate)),
		body:    template.Must(template.New("body").Parse(bodyTemplate)),
	}
}

func (r *Renderer) Render(account domain.Account, w domain.Withdrawal, maskedKey string) (domain.Message, error) {
	data := confirmation{
		AccountName:   account.Name,
		Amount:        "R$ " + w.Amount.StringFixed(2),
		TransactionID: w.TransactionID,
		MaskedKey:     maskedKey,
		CompletedAt:   w.UpdatedAt.UTC().Format(time.RFC1123),
	}

	var subject, body bytes.Buffer
	if err := r.subject.Execute(&subject, data); err != nil {
		return domain.Message{}, fmt.Errorf("render subject: %w", err)
	}
	if err := r.body.Execute(&body, data); err != nil {
		return domain.Message{}, fmt.Errorf("render body: %w", err)
	}
	return domain.Message{Subject: subject.String(), Body: body.String()}, nil
}
