package enums

// PaymentStatus tracks the lifecycle of one gateway transaction attempt.
type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "PENDING"
	PaymentStatusPaid     PaymentStatus = "PAID"
	PaymentStatusFailed   PaymentStatus = "FAILED"
	PaymentStatusRefunded PaymentStatus = "REFUNDED"
)

var paymentStatuses = []PaymentStatus{
	PaymentStatusPending,
	PaymentStatusPaid,
	PaymentStatusFailed,
	PaymentStatusRefunded,
}

func (p PaymentStatus) String() string { return string(p) }

func (p PaymentStatus) IsValid() bool { return member(paymentStatuses, p) }

// IsTerminal reports whether a gateway outcome has been recorded. Anything
// other than PENDING counts, including unknown values.
func (p PaymentStatus) IsTerminal() bool { return p != PaymentStatusPending }

func ParsePaymentStatus(value string) (PaymentStatus, error) {
	return parse(paymentStatuses, "payment status", value)
}
