package models

// Role of a profile inside the marketplace. Preferences are kept per (user, role).
type Role string

const (
	RoleHomeowner Role = "homeowner"
	RoleProvider  Role = "provider"
	RoleAdmin     Role = "admin"
	// RoleService is carried by tokens of internal callers (edge functions, schedulers).
	RoleService Role = "service"
)

// Valid reports whether r can own preferences.
func (r Role) Valid() bool {
	switch r {
	case RoleHomeowner, RoleProvider, RoleAdmin:
		return true
	}
	return false
}

// Category is the event family a notification belongs to.
type Category string

const (
	CategoryAnnouncement Category = "announcement"
	CategoryMessage      Category = "message"
	CategoryPayment      Category = "payment"
	CategoryPayout       Category = "payout"
	CategoryJob          Category = "job"
	CategoryQuote        Category = "quote"
	CategoryReview       Category = "review"
	CategoryBooking      Category = "booking"
)

// Categories lists every category in display order.
var Categories = []Category{
	CategoryAnnouncement,
	CategoryMessage,
	CategoryPayment,
	CategoryPayout,
	CategoryJob,
	CategoryQuote,
	CategoryReview,
	CategoryBooking,
}

func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// Channel is a delivery medium.
type Channel string

const (
	ChannelInApp Channel = "inapp"
	ChannelPush  Channel = "push"
	ChannelEmail Channel = "email"
)

// Channels lists every channel; dispatch inserts outbox rows in this order.
var Channels = []Channel{ChannelInApp, ChannelPush, ChannelEmail}

func (c Channel) Valid() bool {
	switch c {
	case ChannelInApp, ChannelPush, ChannelEmail:
		return true
	}
	return false
}

// Suppressible reports whether quiet hours apply to the channel. In-app is passive and never suppressed.
func (c Channel) Suppressible() bool {
	return c == ChannelPush || c == ChannelEmail
}

type OutboxStatus string

const (
	StatusPending OutboxStatus = "pending"
	StatusSent    OutboxStatus = "sent"
	StatusFailed  OutboxStatus = "failed"
)

func (s OutboxStatus) Valid() bool {
	switch s {
	case StatusPending, StatusSent, StatusFailed:
		return true
	}
	return false
}
