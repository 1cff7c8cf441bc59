package enums

// OrderStatus tracks the lifecycle of a customer order.
type OrderStatus string

const (
	OrderStatusPending       OrderStatus = "PENDING"
	OrderStatusPaid          OrderStatus = "PAID"
	OrderStatusStockDeducted OrderStatus = "STOCK_DEDUCTED"
	OrderStatusShipped       OrderStatus = "SHIPPED"
	OrderStatusDelivered     OrderStatus = "DELIVERED"
	OrderStatusFailed        OrderStatus = "FAILED"
	OrderStatusCancelled     OrderStatus = "CANCELLED"
	OrderStatusRefunded      OrderStatus = "REFUNDED"
)

var orderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusPaid,
	OrderStatusStockDeducted,
	OrderStatusShipped,
	OrderStatusDelivered,
	OrderStatusFailed,
	OrderStatusCancelled,
	OrderStatusRefunded,
}

// postPayment are the statuses reachable only after a confirmed payment.
var postPayment = []OrderStatus{
	OrderStatusPaid,
	OrderStatusStockDeducted,
	OrderStatusShipped,
	OrderStatusDelivered,
}

var terminalOrderStatuses = []OrderStatus{
	OrderStatusFailed,
	OrderStatusCancelled,
	OrderStatusRefunded,
}

func (s OrderStatus) String() string { return string(s) }

func (s OrderStatus) IsValid() bool { return member(orderStatuses, s) }

// IsPostPayment reports whether the order has already been settled by a
// successful payment.
func (s OrderStatus) IsPostPayment() bool { return member(postPayment, s) }

// IsTerminal reports whether no further transition leaves the status.
func (s OrderStatus) IsTerminal() bool { return member(terminalOrderStatuses, s) }

// ParseOrderStatus is case sensitive. Statuses are stored upper case.
func ParseOrderStatus(value string) (OrderStatus, error) {
	return parse(orderStatuses, "order status", value)
}
