package mpesa

import (
	"strings"
	"time"

	pkgerrors "github.com/duka/supermarket-backend/pkg/errors"
)

// nairobi is East Africa Time. Daraja timestamps carry no zone.
var nairobi = time.FixedZone("EAT", 3*60*60)

// NormalizePhone converts 07XXXXXXXX, 7XXXXXXXX, +2547XXXXXXXX and
// 2547XXXXXXXX (and the 01 prefix range) into the 2547XXXXXXXX form Daraja
// expects.
func NormalizePhone(raw string) (string, error) {
	phone := strings.TrimSpace(raw)
	phone = strings.ReplaceAll(phone, " ", "")
	phone = strings.TrimPrefix(phone, "+")

	switch {
	case strings.HasPrefix(phone, "0") && len(phone) == 10:
		phone = "254" + phone[1:]
	case (strings.HasPrefix(phone, "7") || strings.HasPrefix(phone, "1")) && len(phone) == 9:
		phone = "254" + phone
	}

	if len(phone) != 12 || !strings.HasPrefix(phone, "254") {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "phone number must be a Kenyan mobile number")
	}
	for _, r := range phone {
		if r < '0' || r > '9' {
			return "", pkgerrors.New(pkgerrors.CodeValidation, "phone number must contain digits only")
		}
	}
	if phone[3] != '7' && phone[3] != '1' {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "phone number must be a Kenyan mobile number")
	}
	return phone, nil
}

// ParseTimestamp reads a Daraja yyyyMMddHHmmss value in East Africa Time.
func ParseTimestamp(value string) (time.Time, error) {
	return time.ParseInLocation(timestampLayout, strings.TrimSpace(value), nairobi)
}
