package enums

// OperatorRole is the staff role carried in operator access tokens.
type OperatorRole string

const (
	OperatorRoleOwner OperatorRole = "owner"
	OperatorRoleAdmin OperatorRole = "admin"
	OperatorRoleStaff OperatorRole = "staff"
)

var operatorRoles = []OperatorRole{OperatorRoleOwner, OperatorRoleAdmin, OperatorRoleStaff}

func (r OperatorRole) IsValid() bool { return member(operatorRoles, r) }

// CanCompensate reports whether the role may refund or adjust stock.
func (r OperatorRole) CanCompensate() bool {
	return r == OperatorRoleOwner || r == OperatorRoleAdmin
}

func ParseOperatorRole(value string) (OperatorRole, error) {
	return parse(operatorRoles, "operator role", value)
}
