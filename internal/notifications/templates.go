package notifications

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/duka/supermarket-backend/pkg/enums"
	"github.com/duka/supermarket-backend/pkg/outbox/payloads"
)

func shortID(id fmt.Stringer) string {
	s := id.String()
	if len(s) > 8 {
		return s[:8]
	}
	return s
}

func ksh(amount decimal.Decimal) string {
	return "KSh " + amount.StringFixed(2)
}

// messagesFor renders the notifications owed to the customer for an event.
// Missing contact details drop the corresponding channel.
func messagesFor(payload any) []Message {
	switch p := payload.(type) {
	case *payloads.PaymentConfirmedEvent:
		ref := shortID(p.OrderID)
		body := fmt.Sprintf("Payment of %s received for order %s. M-Pesa receipt %s. Thank you for shopping with us.", ksh(p.Amount), ref, p.ReceiptNo)
		return forCustomer(p.Customer, "Payment received for order "+ref, body, p.PayerPhone)
	case *payloads.PaymentFailedEvent:
		ref := shortID(p.OrderID)
		body := fmt.Sprintf("Your M-Pesa payment of %s for order %s did not go through. Please try again.", ksh(p.Amount), ref)
		return forCustomer(p.Customer, "Payment failed for order "+ref, body, nil)
	case *payloads.OrderRefundedEvent:
		ref := shortID(p.OrderID)
		body := fmt.Sprintf("Order %s has been refunded (%s).", ref, ksh(p.Amount))
		return forCustomer(p.Customer, "Refund for order "+ref, body, nil)
	case *payloads.OrderExpiredEvent:
		ref := shortID(p.OrderID)
		body := fmt.Sprintf("Order %s was cancelled because payment was not completed.", ref)
		return forCustomer(p.Customer, "Order "+ref+" cancelled", body, nil)
	}
	return nil
}

func forCustomer(c payloads.Customer, subject, body string, phoneOverride *string) []Message {
	name := c.Name
	if name == "" {
		name = "customer"
	}
	var out []Message
	if c.Email != nil && *c.Email != "" {
		out = append(out, Message{
			Channel:   enums.NotificationChannelEmail,
			Recipient: *c.Email,
			Subject:   subject,
			Body:      fmt.Sprintf("Hello %s,\n\n%s\n", name, body),
		})
	}
	phone := c.Phone
	if phoneOverride != nil && *phoneOverride != "" {
		phone = phoneOverride
	}
	if phone != nil && *phone != "" {
		out = append(out, Message{
			Channel:   enums.NotificationChannelSMS,
			Recipient: *phone,
			Body:      body,
		})
	}
	return out
}
