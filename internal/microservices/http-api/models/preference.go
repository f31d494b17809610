package models

import "time"

// ChannelFlags is one row of the category x channel matrix.
type ChannelFlags struct {
	InApp bool `gorm:"column:inapp;not null" json:"inapp"`
	Push  bool `gorm:"column:push;not null" json:"push"`
	Email bool `gorm:"column:email;not null" json:"email"`
}

// Enabled reads the flag for ch.
func (f ChannelFlags) Enabled(ch Channel) bool {
	switch ch {
	case ChannelInApp:
		return f.InApp
	case ChannelPush:
		return f.Push
	case ChannelEmail:
		return f.Email
	}
	return false
}

// Set writes the flag for ch. Unknown channels are ignored.
func (f *ChannelFlags) Set(ch Channel, on bool) {
	switch ch {
	case ChannelInApp:
		f.InApp = on
	case ChannelPush:
		f.Push = on
	case ChannelEmail:
		f.Email = on
	}
}

// NotificationPreference is the per (user, role) delivery matrix plus quiet hours.
// Exactly one row exists per (user_id, role); rows are never deleted.
type NotificationPreference struct {
	ID     int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID string `gorm:"type:uuid;not null;uniqueIndex:idx_notification_preferences_user_role" json:"user_id"`
	Role   Role   `gorm:"type:text;not null;uniqueIndex:idx_notification_preferences_user_role" json:"role"`

	Announcement ChannelFlags `gorm:"embedded;embeddedPrefix:announcement_" json:"announcement"`
	Message      ChannelFlags `gorm:"embedded;embeddedPrefix:message_" json:"message"`
	Payment      ChannelFlags `gorm:"embedded;embeddedPrefix:payment_" json:"payment"`
	Payout       ChannelFlags `gorm:"embedded;embeddedPrefix:payout_" json:"payout"`
	Job          ChannelFlags `gorm:"embedded;embeddedPrefix:job_" json:"job"`
	Quote        ChannelFlags `gorm:"embedded;embeddedPrefix:quote_" json:"quote"`
	Review       ChannelFlags `gorm:"embedded;embeddedPrefix:review_" json:"review"`
	Booking      ChannelFlags `gorm:"embedded;embeddedPrefix:booking_" json:"booking"`

	WeeklyDigestEnabled bool    `gorm:"not null" json:"weekly_digest_enabled"`
	QuietHoursStart     *string `gorm:"type:varchar(5)" json:"quiet_hours_start"` // HH:MM, nil = disabled
	QuietHoursEnd       *string `gorm:"type:varchar(5)" json:"quiet_hours_end"`
	QuietHoursTimezone  string  `gorm:"type:text;not null" json:"quiet_hours_timezone"`

	// Version increases on every update; callers may send it back for a conditional write.
	Version   int64     `gorm:"not null" json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (NotificationPreference) TableName() string {
	return "notification_preferences"
}

// Flags returns the matrix row for cat, or nil for an unknown category.
func (p *NotificationPreference) Flags(cat Category) *ChannelFlags {
	switch cat {
	case CategoryAnnouncement:
		return &p.Announcement
	case CategoryMessage:
		return &p.Message
	case CategoryPayment:
		return &p.Payment
	case CategoryPayout:
		return &p.Payout
	case CategoryJob:
		return &p.Job
	case CategoryQuote:
		return &p.Quote
	case CategoryReview:
		return &p.Review
	case CategoryBooking:
		return &p.Booking
	}
	return nil
}

// Enabled reports whether cat may be delivered on ch.
func (p *NotificationPreference) Enabled(cat Category, ch Channel) bool {
	f := p.Flags(cat)
	if f == nil {
		return false
	}
	return f.Enabled(ch)
}

// HasQuietHours reports whether both ends of the window are set.
func (p *NotificationPreference) HasQuietHours() bool {
	return p.QuietHoursStart != nil && p.QuietHoursEnd != nil &&
		*p.QuietHoursStart != "" && *p.QuietHoursEnd != ""
}

// DefaultPreference returns the hard-coded defaults written on first read.
// Changing these only affects rows created afterwards.
func DefaultPreference(userID string, role Role, timezone string) *NotificationPreference {
	return &NotificationPreference{
		UserID:              userID,
		Role:                role,
		Announcement:        ChannelFlags{InApp: true, Push: false, Email: true},
		Message:             ChannelFlags{InApp: true, Push: true, Email: false},
		Payment:             ChannelFlags{InApp: true, Push: true, Email: true},
		Payout:              ChannelFlags{InApp: true, Push: true, Email: true},
		Job:                 ChannelFlags{InApp: true, Push: true, Email: false},
		Quote:               ChannelFlags{InApp: true, Push: true, Email: true},
		Review:              ChannelFlags{InApp: true, Push: true, Email: false},
		Booking:             ChannelFlags{InApp: true, Push: true, Email: true},
		WeeklyDigestEnabled: true,
		QuietHoursTimezone:  timezone,
		Version:             1,
	}
}
