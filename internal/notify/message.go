// Package notify renders customer messages and delivers them through the
// configured channel.
package notify

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// Default message templates. Placeholders are written as {name}.
const (
	DefaultOrderReadyTemplate = "Hello {customer_name}, Your order #{order_number} is ready at {shop}. " +
		"Total: {currency}{amount}. Pending Due: {currency}{pending}. Please pickup soon!"
	DefaultReminderTemplate = "Hello {customer_name},\n\nYour total due amount at {shop} is {currency} {pending}.\n" +
		"Please pay eagerly.\n\nThank you!\n{shop} Store"
)

// Templates configures the rendered text.
type Templates struct {
	Shop            string
	Currency        string
	Language        string
	OrderReady      string
	PaymentReminder string
}

// Renderer formats amounts for a locale and fills templates.
type Renderer struct {
	printer   *message.Printer
	templates Templates
}

// NewRenderer validates the language tag and applies defaults.
func NewRenderer(t Templates) (*Renderer, error) {
	if t.Language == "" {
		t.Language = "en-IN"
	}
	tag, err := language.Parse(t.Language)
	if err != nil {
		return nil, fmt.Errorf("notify: language %q: %w", t.Language, err)
	}
	if t.Shop == "" {
		t.Shop = "SilaiBook"
	}
	if t.Currency == "" {
		t.Currency = "₹"
	}
	if strings.TrimSpace(t.OrderReady) == "" {
		t.OrderReady = DefaultOrderReadyTemplate
	}
	if strings.TrimSpace(t.PaymentReminder) == "" {
		t.PaymentReminder = DefaultReminderTemplate
	}
	return &Renderer{printer: message.NewPrinter(tag), templates: t}, nil
}

// Amount formats a money value with two decimals and locale grouping.
func (r *Renderer) Amount(v decimal.Decimal) string {
	f, _ := v.Round(2).Float64()
	return r.printer.Sprint(number.Decimal(f, number.Scale(2)))
}

// OrderReady renders the pickup message. A pending balance is always shown,
// even when a custom template leaves it out.
func (r *Renderer) OrderReady(p OrderReadyPayload) string {
	tmpl := r.templates.OrderReady
	if p.AmountDue.IsPositive() && !strings.Contains(strings.ToLower(tmpl), "pending") {
		tmpl += "\n\nPending Balance: {currency}{pending}"
	}
	name := p.CustomerName
	if strings.TrimSpace(name) == "" {
		name = "Customer"
	}
	return r.fill(tmpl, map[string]string{
		"customer_name": name,
		"order_number":  p.OrderNumber,
		"amount":        r.Amount(p.AmountTotal),
		"pending":       r.Amount(p.AmountDue),
	})
}

// PaymentReminder renders the outstanding balance reminder. An overdue balance
// gets a due date line unless the template already places {due_date}.
func (r *Renderer) PaymentReminder(p ReminderPayload) string {
	due := ""
	if p.DueDate != nil {
		due = p.DueDate.Format("02 Jan 2006")
	}
	text := r.fill(r.templates.PaymentReminder, map[string]string{
		"customer_name": p.CustomerName,
		"pending":       r.Amount(p.RemainingAmount),
		"due_date":      due,
	})
	if p.Overdue && due != "" && !strings.Contains(r.templates.PaymentReminder, "{due_date}") {
		text += "\n\nThis payment was due on " + due + "."
	}
	return text
}

func (r *Renderer) fill(tmpl string, values map[string]string) string {
	pairs := []string{"{shop}", r.templates.Shop, "{currency}", r.templates.Currency}
	for k, v := range values {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(tmpl)
}

// WhatsAppLink builds a click-to-chat link for an E.164 number.
func WhatsAppLink(contact, text string) string {
	var digits strings.Builder
	for _, c := range contact {
		if c >= '0' && c <= '9' {
			digits.WriteRune(c)
		}
	}
	if digits.Len() == 0 {
		return ""
	}
	link := "https://wa.me/" + digits.String()
	if text == "" {
		return link
	}
	return link + "?text=" + strings.ReplaceAll(url.QueryEscape(text), "+", "%20")
}
