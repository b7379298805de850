// Package syncer drains the submission queue against an injected upload
// collaborator. One failing entry never blocks the rest of the drain; its
// failure is recorded on the entry and retried on the next pass.
package syncer

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/Mahmud-Aminu/odk-surverlens-sub000/internal/queue"
	"github.com/Mahmud-Aminu/odk-surverlens-sub000/internal/storage"
	"github.com/Mahmud-Aminu/odk-surverlens-sub000/pkg/types"
)

// errInstanceMissing marks entries whose payload is gone from storage.
var errInstanceMissing = errors.New("instance payload missing from storage")

// Uploader is the external delivery collaborator. The payload is the
// decrypted instance payload exactly as stored.
type Uploader interface {
	Upload(ctx context.Context, formID, instanceID string, payload []byte) error
}

// Config tunes the drain loop.
type Config struct {
	// BackoffMin and BackoffMax bound the delay inserted after consecutive
	// failed attempts within one drain. The delay doubles per failure.
	BackoffMin time.Duration
	BackoffMax time.Duration
}

// DefaultConfig returns the standard backoff bounds.
func DefaultConfig() Config {
	return Config{
		BackoffMin: 1 * time.Second,
		BackoffMax: 60 * time.Second,
	}
}

// Driver connects the queue, the storage manager, and the uploader.
type Driver struct {
	queue    *queue.Queue
	storage  *storage.Manager
	uploader Uploader
	config   Config
	logger   *slog.Logger
}

// New returns a drain driver. A nil logger falls back to slog.Default.
func New(q *queue.Queue, m *storage.Manager, u Uploader, cfg Config, logger *slog.Logger) *Driver {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BackoffMin <= 0 {
		cfg.BackoffMin = DefaultConfig().BackoffMin
	}
	if cfg.BackoffMax < cfg.BackoffMin {
		cfg.BackoffMax = DefaultConfig().BackoffMax
	}
	return &Driver{queue: q, storage: m, uploader: u, config: cfg, logger: logger}
}

// Result summarizes one drain pass.
type Result struct {
	Attempted int
	Delivered int
	Failed    int
}

// Drain takes a snapshot of the pending entries and attempts delivery of
// each in order. Per entry: mark syncing, load and decrypt the payload,
// upload, then record synced or failed. Errors are recorded on the entry and
// the loop continues; the context cancels between entries.
func (d *Driver) Drain(ctx context.Context) (Result, error) {
	pending, err := d.queue.Pending()
	if err != nil {
		return Result{}, err
	}

	var res Result
	backoff := d.config.BackoffMin
	for i, entry := range pending {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Attempted++

		if d.deliver(ctx, entry) {
			res.Delivered++
			backoff = d.config.BackoffMin
			continue
		}
		res.Failed++

		// Give the transport room before attempting the next entry.
		if i < len(pending)-1 {
			select {
			case <-ctx.Done():
				return res, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > d.config.BackoffMax {
				backoff = d.config.BackoffMax
			}
		}
	}
	return res, nil
}

// deliver attempts one entry, returning whether it was delivered.
func (d *Driver) deliver(ctx context.Context, entry types.SubmissionEntry) bool {
	log := d.logger.With("form_id", entry.FormID, "instance_id", entry.InstanceID)

	if err := d.queue.UpdateStatus(entry.InstanceID, types.SubmissionSyncing, ""); err != nil {
		log.Warn("marking entry syncing failed", "error", err)
		return false
	}

	payload, err := d.storage.InstanceData(entry.FormID, entry.InstanceID)
	if err == nil && payload == nil {
		// Instance vanished from storage; the entry can never deliver.
		err = errInstanceMissing
	}
	if err == nil {
		err = d.uploader.Upload(ctx, entry.FormID, entry.InstanceID, payload)
	}

	if err != nil {
		log.Warn("submission attempt failed", "error", err, "retry_count", entry.RetryCount+1)
		if uerr := d.queue.UpdateStatus(entry.InstanceID, types.SubmissionFailed, err.Error()); uerr != nil {
			log.Warn("recording failure failed", "error", uerr)
		}
		if serr := d.markInstance(entry, types.InstanceSubmissionFailed); serr != nil {
			log.Warn("stamping instance status failed", "error", serr)
		}
		return false
	}

	if uerr := d.queue.UpdateStatus(entry.InstanceID, types.SubmissionSynced, ""); uerr != nil {
		log.Warn("recording success failed", "error", uerr)
	}
	if serr := d.markInstance(entry, types.InstanceSubmitted); serr != nil {
		log.Warn("stamping instance status failed", "error", serr)
	}
	log.Info("submission delivered")
	return true
}

// markInstance best-effort stamps the instance side-file; the queue entry
// remains the source of truth for delivery state.
func (d *Driver) markInstance(entry types.SubmissionEntry, status string) error {
	meta, err := d.storage.InstanceMeta(entry.FormID, entry.InstanceID)
	if err != nil || meta == nil {
		return err
	}
	if meta.Status == status {
		return nil
	}
	return d.storage.UpdateInstanceStatus(entry.FormID, entry.InstanceID, status)
}
