package service

import (
	"context"
	"log/slog"
	"time"

	"notifyhub/internal/delivery"
	"notifyhub/internal/metrics"
	"notifyhub/internal/microservices/http-api/models"
	"notifyhub/internal/microservices/http-api/repository"
)

// ChannelSender delivers one outbox entry; *delivery.Registry implements it.
type ChannelSender interface {
	Send(ctx context.Context, entry *models.OutboxEntry) (delivery.Receipt, error)
}

const maxLastErrorLen = 1000

// attemptResult is the outcome of one delivery attempt of one entry.
type attemptResult struct {
	Status  models.OutboxStatus
	Receipt delivery.Receipt
	Err     error
}

// entryDeliverer runs one attempt and records it on the outbox row.
// Dispatch and the retry sweep share it so both follow the same state machine.
type entryDeliverer struct {
	outbox repository.OutboxRepository
	sender ChannelSender
	policy RetryPolicy
	now    func() time.Time
	logger *slog.Logger
}

func (d *entryDeliverer) attempt(ctx context.Context, entry *models.OutboxEntry) attemptResult {
	receipt, sendErr := d.sender.Send(ctx, entry)
	now := d.now()

	if sendErr == nil {
		if err := d.outbox.MarkSent(ctx, entry.ID, now); err != nil {
			d.logger.Error("outbox_mark_sent_failed", "entry_id", entry.ID, "error", err)
		}
		metrics.DeliveriesTotal.WithLabelValues(string(entry.Channel), metrics.ResultSent).Inc()
		d.logger.Debug("outbox_entry_sent", "entry_id", entry.ID, "channel", entry.Channel, "sent", receipt.Sent)
		return attemptResult{Status: models.StatusSent, Receipt: receipt}
	}

	// the row's attempt_count is bumped by the write below, so this is attempt number n+1
	retry, delay := d.policy.Next(entry.AttemptCount+1, sendErr)
	status, next, label := models.StatusPending, now.Add(delay), metrics.ResultRetry
	if !retry {
		status, next, label = models.StatusFailed, now, metrics.ResultFailed
	}

	if err := d.outbox.RecordFailure(ctx, entry.ID, status, errorText(sendErr), next); err != nil {
		d.logger.Error("outbox_record_failure_failed", "entry_id", entry.ID, "error", err)
	}
	metrics.DeliveriesTotal.WithLabelValues(string(entry.Channel), label).Inc()
	d.logger.Warn("outbox_entry_attempt_failed",
		"entry_id", entry.ID,
		"channel", entry.Channel,
		"attempt", entry.AttemptCount+1,
		"status", status,
		"permanent", delivery.IsPermanent(sendErr),
		"error", sendErr,
	)
	return attemptResult{Status: status, Err: sendErr}
}

func errorText(err error) string {
	msg := err.Error()
	if len(msg) > maxLastErrorLen {
		return msg[:maxLastErrorLen]
	}
	return msg
}
