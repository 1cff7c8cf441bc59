package enums

// NotificationChannel selects how a customer message is delivered.
type NotificationChannel string

const (
	NotificationChannelEmail NotificationChannel = "email"
	NotificationChannelSMS   NotificationChannel = "sms"
)

var notificationChannels = []NotificationChannel{NotificationChannelEmail, NotificationChannelSMS}

func (n NotificationChannel) IsValid() bool { return member(notificationChannels, n) }

func ParseNotificationChannel(value string) (NotificationChannel, error) {
	return parse(notificationChannels, "notification channel", value)
}
