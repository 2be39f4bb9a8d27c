package report

import (
	"fmt"
	"net/url"
	"strings"
)

// MailDraft is a pre-filled message for submitting a report.
// Browsers cannot attach files to a mailto link, so the body asks the user to attach it.
type MailDraft struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// NewMailDraft builds the submission message for a rendered document
func NewMailDraft(recipient string, c Header, doc *Document) MailDraft {
	claimant := displayText(c.ClaimantName)
	subject := "Expense Report " + doc.ID
	if claimant != "" {
		subject += " - " + claimant
	}

	var body strings.Builder
	fmt.Fprintf(&body, "Please find attached expense report %s (%s).\n\n", doc.ID, doc.Filename)
	if claimant != "" {
		fmt.Fprintf(&body, "Claimant: %s\n", claimant)
	}
	if c.Project != "" {
		fmt.Fprintf(&body, "Project: %s\n", displayText(c.Project))
	}
	fmt.Fprintf(&body, "Items: %d\n", doc.Rows)
	fmt.Fprintf(&body, "Grand total: %s %s\n\n", FormatAmount(doc.Total), c.currency())
	body.WriteString("The report file has to be attached to this message manually.\n")

	return MailDraft{
		To:      recipient,
		Subject: subject,
		Body:    body.String(),
	}
}

// URL renders the draft as a mailto link
func (m MailDraft) URL() string {
	return fmt.Sprintf("mailto:%s?subject=%s&body=%s", m.To, mailEscape(m.Subject), mailEscape(m.Body))
}

// mailEscape percent-encodes s; mail clients do not decode "+" as a space
func mailEscape(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}
