package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"notifyhub/internal/metrics"
	"notifyhub/internal/microservices/http-api/models"
	"notifyhub/internal/microservices/http-api/repository"
	"notifyhub/internal/worker"
)

// SweepResult summarizes one retry sweep.
type SweepResult struct {
	Claimed  int `json:"claimed"`
	Sent     int `json:"sent"`
	Retrying int `json:"retrying"`
	Failed   int `json:"failed"`
}

// OutboxService is the retry worker plus the admin views over the ledger.
type OutboxService interface {
	// Sweep claims due pending entries in batches and attempts each once.
	Sweep(ctx context.Context) (*SweepResult, error)
	// RetryEntry requeues a failed entry and attempts it immediately. Pending entries belong
	// to the sweep and are rejected.
	RetryEntry(ctx context.Context, id string) (*models.OutboxEntry, error)
	List(ctx context.Context, filter repository.OutboxFilter) ([]models.OutboxEntry, error)
	Stats(ctx context.Context) ([]repository.OutboxStat, error)
}

const defaultLease = 2 * time.Minute

type OutboxServiceConfig struct {
	Outbox    repository.OutboxRepository
	Sender    ChannelSender
	Policy    RetryPolicy
	BatchSize int
	Workers   int
	// Lease is how far a claim pushes next_attempt_at so other sweepers skip the row.
	Lease time.Duration
	// MaxBatches bounds one sweep; zero means 10.
	MaxBatches int
	Now        func() time.Time
	Logger     *slog.Logger
}

type outboxService struct {
	outbox     repository.OutboxRepository
	deliverer  *entryDeliverer
	batchSize  int
	workers    int
	lease      time.Duration
	maxBatches int
	now        func() time.Time
	logger     *slog.Logger
}

func NewOutboxService(cfg OutboxServiceConfig) OutboxService {
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 100
	}
	if cfg.Workers < 1 {
		cfg.Workers = 4
	}
	if cfg.Lease <= 0 {
		cfg.Lease = defaultLease
	}
	if cfg.MaxBatches < 1 {
		cfg.MaxBatches = 10
	}
	return &outboxService{
		outbox: cfg.Outbox,
		deliverer: &entryDeliverer{
			outbox: cfg.Outbox,
			sender: cfg.Sender,
			policy: cfg.Policy,
			now:    cfg.Now,
			logger: cfg.Logger,
		},
		batchSize:  cfg.BatchSize,
		workers:    cfg.Workers,
		lease:      cfg.Lease,
		maxBatches: cfg.MaxBatches,
		now:        cfg.Now,
		logger:     cfg.Logger,
	}
}

func (s *outboxService) Sweep(ctx context.Context) (*SweepResult, error) {
	start := time.Now()
	defer func() { metrics.SweepDuration.Observe(time.Since(start).Seconds()) }()

	result := &SweepResult{}
	var mu sync.Mutex

	for batch := 0; batch < s.maxBatches; batch++ {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		entries, err := s.outbox.ClaimDue(ctx, s.now(), s.lease, s.batchSize)
		if err != nil {
			return result, err
		}
		if len(entries) == 0 {
			break
		}
		result.Claimed += len(entries)

		tasks := make([]worker.Task, 0, len(entries))
		for i := range entries {
			entry := &entries[i]
			tasks = append(tasks, func(ctx context.Context) error {
				res := s.deliverer.attempt(ctx, entry)
				mu.Lock()
				defer mu.Unlock()
				switch res.Status {
				case models.StatusSent:
					result.Sent++
				case models.StatusFailed:
					result.Failed++
				default:
					result.Retrying++
				}
				return nil
			})
		}
		worker.Run(ctx, "outbox-sweep", s.workers, tasks)

		if len(entries) < s.batchSize {
			break
		}
	}

	if result.Claimed > 0 {
		s.logger.Info("outbox_sweep_completed",
			"claimed", result.Claimed,
			"sent", result.Sent,
			"retrying", result.Retrying,
			"failed", result.Failed,
			"duration", time.Since(start),
		)
	}
	return result, nil
}

func (s *outboxService) RetryEntry(ctx context.Context, id string) (*models.OutboxEntry, error) {
	entry, err := s.outbox.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	switch entry.Status {
	case models.StatusSent:
		return nil, invalidf("entry %s was already sent", id)
	case models.StatusPending:
		return nil, invalidf("entry %s is still pending retry", id)
	}

	now := s.now()
	if err := s.outbox.Requeue(ctx, id, now, s.lease); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrVersionConflict
		}
		return nil, err
	}
	entry.Status = models.StatusPending
	entry.NextAttemptAt = now.Add(s.lease)

	s.deliverer.attempt(ctx, entry)
	return s.outbox.FindByID(ctx, id)
}

func (s *outboxService) List(ctx context.Context, filter repository.OutboxFilter) ([]models.OutboxEntry, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, invalidf("unknown status %q", filter.Status)
	}
	if filter.Channel != "" && !filter.Channel.Valid() {
		return nil, invalidf("unknown channel %q", filter.Channel)
	}
	return s.outbox.List(ctx, filter)
}

func (s *outboxService) Stats(ctx context.Context) ([]repository.OutboxStat, error) {
	return s.outbox.Stats(ctx)
}
