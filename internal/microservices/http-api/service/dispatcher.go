package service

import (
	"context"
	"log/slog"
	"time"

	"notifyhub/internal/metrics"
	"notifyhub/internal/microservices/http-api/models"
	"notifyhub/internal/microservices/http-api/repository"
	"notifyhub/internal/worker"
)

// DispatchRequest is one notification for one recipient in one role.
type DispatchRequest struct {
	Type     models.Category
	UserID   string
	Role     models.Role
	Title    string
	Body     string
	URL      string
	Metadata map[string]any
	// ForceChannels, when set, is used verbatim: preferences and quiet hours are skipped.
	ForceChannels *models.ChannelFlags
}

type DispatchResult struct {
	Recipients   int                   `json:"recipients"`
	EmailsSent   int                   `json:"emails_sent"`
	EmailsFailed int                   `json:"emails_failed"`
	PushSent     int                   `json:"push_sent"`
	PushFailed   int                   `json:"push_failed"`
	Suppressed   []models.Channel      `json:"suppressed,omitempty"`
	Entries      []*models.OutboxEntry `json:"-"`
}

func (r *DispatchResult) add(o *DispatchResult) {
	r.Recipients += o.Recipients
	r.EmailsSent += o.EmailsSent
	r.EmailsFailed += o.EmailsFailed
	r.PushSent += o.PushSent
	r.PushFailed += o.PushFailed
	r.Entries = append(r.Entries, o.Entries...)
}

type Dispatcher interface {
	// Dispatch writes one outbox row per surviving channel and attempts each right away.
	// Delivery failures are recorded on the rows, not returned.
	Dispatch(ctx context.Context, req DispatchRequest) (*DispatchResult, error)
	// DispatchAsync runs Dispatch in the background and only logs failures.
	DispatchAsync(req DispatchRequest)
	DispatchAnnouncement(ctx context.Context, req AnnouncementRequest) (*DispatchResult, error)
}

// DispatcherConfig carries the dispatcher's collaborators.
type DispatcherConfig struct {
	Preferences PreferenceService
	Outbox      repository.OutboxRepository
	Sender      ChannelSender
	Profiles    RecipientDirectory
	Policy      RetryPolicy
	DefaultTZ   *time.Location
	// Lease keeps freshly created rows away from the retry sweep during the immediate attempt.
	// It should match the sweep's lease.
	Lease time.Duration
	// FanoutWorkers bounds concurrent recipients of an announcement.
	FanoutWorkers int
	// Async, when set, runs DispatchAsync work; otherwise a goroutine per call is used.
	Async  *worker.Pool
	Now    func() time.Time
	Logger *slog.Logger
}

type dispatcher struct {
	prefs         PreferenceService
	outbox        repository.OutboxRepository
	profiles      RecipientDirectory
	deliverer     *entryDeliverer
	defaultLoc    *time.Location
	lease         time.Duration
	fanoutWorkers int
	async         *worker.Pool
	now           func() time.Time
	logger        *slog.Logger
}

func NewDispatcher(cfg DispatcherConfig) Dispatcher {
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.DefaultTZ == nil {
		cfg.DefaultTZ = time.UTC
	}
	if cfg.FanoutWorkers < 1 {
		cfg.FanoutWorkers = 8
	}
	if cfg.Lease <= 0 {
		cfg.Lease = defaultLease
	}
	return &dispatcher{
		prefs:    cfg.Preferences,
		outbox:   cfg.Outbox,
		profiles: cfg.Profiles,
		deliverer: &entryDeliverer{
			outbox: cfg.Outbox,
			sender: cfg.Sender,
			policy: cfg.Policy,
			now:    cfg.Now,
			logger: cfg.Logger,
		},
		defaultLoc:    cfg.DefaultTZ,
		lease:         cfg.Lease,
		fanoutWorkers: cfg.FanoutWorkers,
		async:         cfg.Async,
		now:           cfg.Now,
		logger:        cfg.Logger,
	}
}

func (d *dispatcher) validate(req DispatchRequest) error {
	if !req.Type.Valid() {
		return invalidf("unknown notification type %q", req.Type)
	}
	if req.UserID == "" {
		return invalidf("user_id is required")
	}
	if !req.Role.Valid() {
		return invalidf("unknown role %q", req.Role)
	}
	if req.Title == "" {
		return invalidf("title is required")
	}
	return nil
}

func (d *dispatcher) Dispatch(ctx context.Context, req DispatchRequest) (*DispatchResult, error) {
	if err := d.validate(req); err != nil {
		return nil, err
	}

	now := d.now()
	result := &DispatchResult{Recipients: 1}

	channels, suppressed, err := d.resolveChannels(ctx, req, now)
	if err != nil {
		return nil, err
	}
	result.Suppressed = suppressed

	payload := models.OutboxPayload{
		Title:    req.Title,
		Body:     req.Body,
		URL:      req.URL,
		Metadata: req.Metadata,
	}
	entries := make([]*models.OutboxEntry, 0, len(channels))
	for _, ch := range channels {
		entries = append(entries, models.NewOutboxEntry(req.UserID, req.Role, req.Type, ch, payload, now, d.lease))
	}
	if err := d.outbox.CreateBatch(ctx, entries); err != nil {
		return nil, err
	}
	metrics.DispatchTotal.WithLabelValues(string(req.Type)).Inc()
	for _, e := range entries {
		metrics.OutboxEntriesCreated.WithLabelValues(string(e.Channel)).Inc()
	}

	for _, entry := range entries {
		res := d.deliverer.attempt(ctx, entry)
		entry.AttemptCount++
		entry.Status = res.Status

		switch entry.Channel {
		case models.ChannelEmail:
			if res.Status == models.StatusSent {
				result.EmailsSent++
			} else {
				result.EmailsFailed++
			}
		case models.ChannelPush:
			if res.Status == models.StatusSent {
				result.PushSent++
			} else {
				result.PushFailed++
			}
		}
	}
	result.Entries = entries

	d.logger.Info("notification_dispatched",
		"user_id", req.UserID,
		"role", req.Role,
		"category", req.Type,
		"channels", channels,
		"suppressed", suppressed,
	)
	return result, nil
}

// resolveChannels applies forced channels, then preferences and quiet hours.
func (d *dispatcher) resolveChannels(ctx context.Context, req DispatchRequest, now time.Time) ([]models.Channel, []models.Channel, error) {
	var channels []models.Channel

	if req.ForceChannels != nil {
		for _, ch := range models.Channels {
			if req.ForceChannels.Enabled(ch) {
				channels = append(channels, ch)
			}
		}
		return channels, nil, nil
	}

	pref, err := d.prefs.GetOrCreate(ctx, req.UserID, req.Role)
	if err != nil {
		return nil, nil, err
	}

	quiet := pref.HasQuietHours() &&
		InQuietHours(now, *pref.QuietHoursStart, *pref.QuietHoursEnd, loadLocation(pref.QuietHoursTimezone, d.defaultLoc))

	var suppressed []models.Channel
	for _, ch := range models.Channels {
		if !pref.Enabled(req.Type, ch) {
			continue
		}
		if quiet && ch.Suppressible() {
			suppressed = append(suppressed, ch)
			metrics.QuietHoursSuppressed.WithLabelValues(string(ch)).Inc()
			continue
		}
		channels = append(channels, ch)
	}
	return channels, suppressed, nil
}

const asyncDispatchTimeout = 30 * time.Second

func (d *dispatcher) DispatchAsync(req DispatchRequest) {
	task := func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, asyncDispatchTimeout)
		defer cancel()
		if _, err := d.Dispatch(ctx, req); err != nil {
			d.logger.Error("dispatch_failed",
				"user_id", req.UserID,
				"category", req.Type,
				"error", err,
			)
		}
		return nil
	}

	if d.async != nil {
		if err := d.async.Submit(task); err != nil {
			d.logger.Error("dispatch_rejected", "user_id", req.UserID, "category", req.Type, "error", err)
		}
		return
	}
	go task(context.Background())
}
