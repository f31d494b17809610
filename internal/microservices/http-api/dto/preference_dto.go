package dto

import (
	"bytes"
	"encoding/json"
	"time"

	"notifyhub/internal/microservices/http-api/models"
)

// PreferencesResponse is the flat row shape clients read: one {category}_{channel} boolean per cell.
type PreferencesResponse struct {
	UserID string      `json:"user_id"`
	Role   models.Role `json:"role"`

	AnnouncementInApp bool `json:"announcement_inapp"`
	AnnouncementPush  bool `json:"announcement_push"`
	AnnouncementEmail bool `json:"announcement_email"`
	MessageInApp      bool `json:"message_inapp"`
	MessagePush       bool `json:"message_push"`
	MessageEmail      bool `json:"message_email"`
	PaymentInApp      bool `json:"payment_inapp"`
	PaymentPush       bool `json:"payment_push"`
	PaymentEmail      bool `json:"payment_email"`
	PayoutInApp       bool `json:"payout_inapp"`
	PayoutPush        bool `json:"payout_push"`
	PayoutEmail       bool `json:"payout_email"`
	JobInApp          bool `json:"job_inapp"`
	JobPush           bool `json:"job_push"`
	JobEmail          bool `json:"job_email"`
	QuoteInApp        bool `json:"quote_inapp"`
	QuotePush         bool `json:"quote_push"`
	QuoteEmail        bool `json:"quote_email"`
	ReviewInApp       bool `json:"review_inapp"`
	ReviewPush        bool `json:"review_push"`
	ReviewEmail       bool `json:"review_email"`
	BookingInApp      bool `json:"booking_inapp"`
	BookingPush       bool `json:"booking_push"`
	BookingEmail      bool `json:"booking_email"`

	WeeklyDigestEnabled bool      `json:"weekly_digest_enabled"`
	QuietHoursStart     *string   `json:"quiet_hours_start"`
	QuietHoursEnd       *string   `json:"quiet_hours_end"`
	QuietHoursTimezone  string    `json:"quiet_hours_timezone"`
	Version             int64     `json:"version"`
	UpdatedAt           time.Time `json:"updated_at"`
}

func NewPreferencesResponse(p *models.NotificationPreference) PreferencesResponse {
	return PreferencesResponse{
		UserID: p.UserID,
		Role:   p.Role,

		AnnouncementInApp: p.Announcement.InApp,
		AnnouncementPush:  p.Announcement.Push,
		AnnouncementEmail: p.Announcement.Email,
		MessageInApp:      p.Message.InApp,
		MessagePush:       p.Message.Push,
		MessageEmail:      p.Message.Email,
		PaymentInApp:      p.Payment.InApp,
		PaymentPush:       p.Payment.Push,
		PaymentEmail:      p.Payment.Email,
		PayoutInApp:       p.Payout.InApp,
		PayoutPush:        p.Payout.Push,
		PayoutEmail:       p.Payout.Email,
		JobInApp:          p.Job.InApp,
		JobPush:           p.Job.Push,
		JobEmail:          p.Job.Email,
		QuoteInApp:        p.Quote.InApp,
		QuotePush:         p.Quote.Push,
		QuoteEmail:        p.Quote.Email,
		ReviewInApp:       p.Review.InApp,
		ReviewPush:        p.Review.Push,
		ReviewEmail:       p.Review.Email,
		BookingInApp:      p.Booking.InApp,
		BookingPush:       p.Booking.Push,
		BookingEmail:      p.Booking.Email,

		WeeklyDigestEnabled: p.WeeklyDigestEnabled,
		QuietHoursStart:     p.QuietHoursStart,
		QuietHoursEnd:       p.QuietHoursEnd,
		QuietHoursTimezone:  p.QuietHoursTimezone,
		Version:             p.Version,
		UpdatedAt:           p.UpdatedAt,
	}
}

// NullableString distinguishes an absent field from an explicit null.
type NullableString struct {
	Set   bool
	Value *string
}

func (n *NullableString) UnmarshalJSON(data []byte) error {
	n.Set = true
	if bytes.Equal(data, []byte("null")) {
		n.Value = nil
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	n.Value = &s
	return nil
}

// UpdatePreferencesRequest used for PUT /preferences (omitted fields keep their stored value;
// quiet hours set to null disable the window)
type UpdatePreferencesRequest struct {
	AnnouncementInApp *bool `json:"announcement_inapp,omitempty"`
	AnnouncementPush  *bool `json:"announcement_push,omitempty"`
	AnnouncementEmail *bool `json:"announcement_email,omitempty"`
	MessageInApp      *bool `json:"message_inapp,omitempty"`
	MessagePush       *bool `json:"message_push,omitempty"`
	MessageEmail      *bool `json:"message_email,omitempty"`
	PaymentInApp      *bool `json:"payment_inapp,omitempty"`
	PaymentPush       *bool `json:"payment_push,omitempty"`
	PaymentEmail      *bool `json:"payment_email,omitempty"`
	PayoutInApp       *bool `json:"payout_inapp,omitempty"`
	PayoutPush        *bool `json:"payout_push,omitempty"`
	PayoutEmail       *bool `json:"payout_email,omitempty"`
	JobInApp          *bool `json:"job_inapp,omitempty"`
	JobPush           *bool `json:"job_push,omitempty"`
	JobEmail          *bool `json:"job_email,omitempty"`
	QuoteInApp        *bool `json:"quote_inapp,omitempty"`
	QuotePush         *bool `json:"quote_push,omitempty"`
	QuoteEmail        *bool `json:"quote_email,omitempty"`
	ReviewInApp       *bool `json:"review_inapp,omitempty"`
	ReviewPush        *bool `json:"review_push,omitempty"`
	ReviewEmail       *bool `json:"review_email,omitempty"`
	BookingInApp      *bool `json:"booking_inapp,omitempty"`
	BookingPush       *bool `json:"booking_push,omitempty"`
	BookingEmail      *bool `json:"booking_email,omitempty"`

	WeeklyDigestEnabled *bool          `json:"weekly_digest_enabled,omitempty"`
	QuietHoursStart     NullableString `json:"quiet_hours_start"`
	QuietHoursEnd       NullableString `json:"quiet_hours_end"`
	QuietHoursTimezone  *string        `json:"quiet_hours_timezone,omitempty"`
	// Version, when non-zero, must match the stored row or the update is rejected.
	Version int64 `json:"version,omitempty"`
}

type flagUpdate struct {
	category models.Category
	channel  models.Channel
	value    *bool
}

func (d UpdatePreferencesRequest) flagUpdates() []flagUpdate {
	return []flagUpdate{
		{models.CategoryAnnouncement, models.ChannelInApp, d.AnnouncementInApp},
		{models.CategoryAnnouncement, models.ChannelPush, d.AnnouncementPush},
		{models.CategoryAnnouncement, models.ChannelEmail, d.AnnouncementEmail},
		{models.CategoryMessage, models.ChannelInApp, d.MessageInApp},
		{models.CategoryMessage, models.ChannelPush, d.MessagePush},
		{models.CategoryMessage, models.ChannelEmail, d.MessageEmail},
		{models.CategoryPayment, models.ChannelInApp, d.PaymentInApp},
		{models.CategoryPayment, models.ChannelPush, d.PaymentPush},
		{models.CategoryPayment, models.ChannelEmail, d.PaymentEmail},
		{models.CategoryPayout, models.ChannelInApp, d.PayoutInApp},
		{models.CategoryPayout, models.ChannelPush, d.PayoutPush},
		{models.CategoryPayout, models.ChannelEmail, d.PayoutEmail},
		{models.CategoryJob, models.ChannelInApp, d.JobInApp},
		{models.CategoryJob, models.ChannelPush, d.JobPush},
		{models.CategoryJob, models.ChannelEmail, d.JobEmail},
		{models.CategoryQuote, models.ChannelInApp, d.QuoteInApp},
		{models.CategoryQuote, models.ChannelPush, d.QuotePush},
		{models.CategoryQuote, models.ChannelEmail, d.QuoteEmail},
		{models.CategoryReview, models.ChannelInApp, d.ReviewInApp},
		{models.CategoryReview, models.ChannelPush, d.ReviewPush},
		{models.CategoryReview, models.ChannelEmail, d.ReviewEmail},
		{models.CategoryBooking, models.ChannelInApp, d.BookingInApp},
		{models.CategoryBooking, models.ChannelPush, d.BookingPush},
		{models.CategoryBooking, models.ChannelEmail, d.BookingEmail},
	}
}

// ApplyTo copies the provided fields onto p.
func (d UpdatePreferencesRequest) ApplyTo(p *models.NotificationPreference) {
	for _, u := range d.flagUpdates() {
		if u.value != nil {
			p.Flags(u.category).Set(u.channel, *u.value)
		}
	}
	if d.WeeklyDigestEnabled != nil {
		p.WeeklyDigestEnabled = *d.WeeklyDigestEnabled
	}
	if d.QuietHoursStart.Set {
		p.QuietHoursStart = d.QuietHoursStart.Value
	}
	if d.QuietHoursEnd.Set {
		p.QuietHoursEnd = d.QuietHoursEnd.Value
	}
	if d.QuietHoursTimezone != nil {
		p.QuietHoursTimezone = *d.QuietHoursTimezone
	}
	p.Version = d.Version
}
