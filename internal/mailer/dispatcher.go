package mailer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/emersion/go-message/mail"

	"github.com/mixelka/novamailer/pkg/models"
)

const (
	defaultBatchSize = 100
	messageTimeout   = 2 * time.Minute
)

// ErrAlreadySending is returned when a campaign already has a running job
var ErrAlreadySending = errors.New("campaign is already sending")

var (
	errCancelled = errors.New("send cancelled")
	errShutdown  = errors.New("dispatcher stopped")
)

// Store is the persistence the dispatcher needs
type Store interface {
	GetSMTPSettings(ctx context.Context, userID int64) (*models.SMTPSettings, error)
	GetPendingRecipients(ctx context.Context, campaignID int64, limit int) ([]*models.Recipient, error)
	MarkRecipientSent(ctx context.Context, id int64) error
	MarkRecipientFailed(ctx context.Context, id int64, reason string) error
	CountRecipientsByStatus(ctx context.Context, campaignID int64) (map[models.RecipientStatus]int, error)
	TransitionCampaignStatus(ctx context.Context, id int64, from, to models.CampaignStatus) (bool, error)
}

// DispatcherDeps contains dependencies for the dispatcher
type DispatcherDeps struct {
	Store    Store
	Sender   Sender
	Composer *Composer
	Cipher   *Cipher
	Logger   *slog.Logger
	// Interval is the pause between two messages of one campaign
	Interval  time.Duration
	BatchSize int
}

// Dispatcher runs one send job per campaign in status "sending"
type Dispatcher struct {
	jobs      map[int64]*sendJob
	mu        sync.RWMutex
	wg        sync.WaitGroup
	store     Store
	sender    Sender
	composer  *Composer
	cipher    *Cipher
	interval  time.Duration
	batchSize int
	logger    *slog.Logger
}

type sendJob struct {
	campaign *models.Campaign
	account  Account
	from     *mail.Address
	text     string
	ctx      context.Context
	cancel   context.CancelCauseFunc
	logger   *slog.Logger
}

// NewDispatcher creates a new dispatcher
func NewDispatcher(deps DispatcherDeps) *Dispatcher {
	batchSize := deps.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &Dispatcher{
		jobs:      make(map[int64]*sendJob),
		store:     deps.Store,
		sender:    deps.Sender,
		composer:  deps.Composer,
		cipher:    deps.Cipher,
		interval:  deps.Interval,
		batchSize: batchSize,
		logger:    deps.Logger.With("component", "dispatcher"),
	}
}

// Start launches the send job of a campaign. The campaign must already be
// in status "sending".
func (d *Dispatcher) Start(ctx context.Context, campaign *models.Campaign) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.jobs[campaign.ID]; exists {
		return ErrAlreadySending
	}

	settings, err := d.store.GetSMTPSettings(ctx, campaign.UserID)
	if err != nil {
		return fmt.Errorf("failed to get smtp settings: %w", err)
	}

	password, err := d.cipher.Decrypt(settings.Password)
	if err != nil {
		return fmt.Errorf("failed to decrypt smtp password: %w", err)
	}

	text, err := d.composer.PlainText(campaign.Body)
	if err != nil {
		return err
	}

	jobCtx, cancel := context.WithCancelCause(context.Background())
	job := &sendJob{
		campaign: campaign,
		account:  AccountFromSettings(settings, password),
		from:     &mail.Address{Name: settings.FromName, Address: settings.FromEmail},
		text:     text,
		ctx:      jobCtx,
		cancel:   cancel,
		logger:   d.logger.With("campaign_id", campaign.ID),
	}
	d.jobs[campaign.ID] = job

	d.wg.Add(1)
	go d.run(job)

	job.logger.Info("started sending", "smtp_host", settings.Host)
	return nil
}

// Cancel stops a running job. The campaign returns to draft with its
// unsent recipients still pending.
func (d *Dispatcher) Cancel(campaignID int64) bool {
	d.mu.RLock()
	job, exists := d.jobs[campaignID]
	d.mu.RUnlock()

	if !exists {
		return false
	}
	job.cancel(errCancelled)
	return true
}

// IsRunning reports whether a campaign has a running job
func (d *Dispatcher) IsRunning(campaignID int64) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	_, exists := d.jobs[campaignID]
	return exists
}

// RestoreAll resumes campaigns that were sending when the process stopped
func (d *Dispatcher) RestoreAll(ctx context.Context, campaigns []*models.Campaign) {
	d.logger.Info("restoring send jobs", "count", len(campaigns))

	for _, campaign := range campaigns {
		if err := d.Start(ctx, campaign); err != nil {
			d.logger.Error("failed to restore send job", "campaign_id", campaign.ID, "error", err)
			if _, err := d.store.TransitionCampaignStatus(ctx, campaign.ID, models.CampaignSending, models.CampaignFailed); err != nil {
				d.logger.Error("failed to mark campaign failed", "campaign_id", campaign.ID, "error", err)
			}
		}
	}
}

// StopAll stops every job and waits for in-flight messages. Campaigns stay
// in "sending" so RestoreAll picks them up on the next start.
func (d *Dispatcher) StopAll() {
	d.mu.Lock()
	d.logger.Info("stopping all send jobs", "count", len(d.jobs))
	for _, job := range d.jobs {
		job.cancel(errShutdown)
	}
	d.mu.Unlock()

	d.wg.Wait()
	d.logger.Info("all send jobs stopped")
}

func (d *Dispatcher) run(job *sendJob) {
	defer d.wg.Done()
	defer job.cancel(nil)

	status, done := d.sendAll(job)

	// The job leaves the map before the status changes so a restarted
	// campaign never sees a stale job
	d.mu.Lock()
	delete(d.jobs, job.campaign.ID)
	d.mu.Unlock()

	if done {
		d.finish(job, status)
	}
}

// sendAll works through pending recipients in batches. done is false when
// the campaign must stay in "sending".
func (d *Dispatcher) sendAll(job *sendJob) (models.CampaignStatus, bool) {
	storeCtx := context.WithoutCancel(job.ctx)
	first := true

	for job.ctx.Err() == nil {
		batch, err := d.store.GetPendingRecipients(storeCtx, job.campaign.ID, d.batchSize)
		if err != nil {
			job.logger.Error("failed to load recipients", "error", err)
			return models.CampaignFailed, true
		}
		if len(batch) == 0 {
			break
		}

		for _, r := range batch {
			if !first && !d.pause(job.ctx) {
				break
			}
			if job.ctx.Err() != nil {
				break
			}
			first = false

			if err := d.deliver(job, r); err != nil {
				job.logger.Error("failed to record delivery", "recipient_id", r.ID, "error", err)
				return models.CampaignFailed, true
			}
		}
	}

	switch context.Cause(job.ctx) {
	case errCancelled:
		job.logger.Info("send job cancelled")
		return models.CampaignDraft, true
	case errShutdown:
		job.logger.Info("send job interrupted by shutdown")
		return models.CampaignSending, false
	default:
		return d.outcome(storeCtx, job), true
	}
}

// deliver sends one message. Only store failures are returned; SMTP errors
// are recorded on the recipient.
func (d *Dispatcher) deliver(job *sendJob, r *models.Recipient) error {
	storeCtx := context.WithoutCancel(job.ctx)

	raw, err := d.composer.Compose(&Message{
		From:    job.from,
		To:      &mail.Address{Name: r.Name, Address: r.Email},
		Subject: job.campaign.Subject,
		HTML:    job.campaign.Body,
		Text:    job.text,
	})
	if err != nil {
		return d.store.MarkRecipientFailed(storeCtx, r.ID, err.Error())
	}

	ctx, cancel := context.WithTimeout(job.ctx, messageTimeout)
	defer cancel()

	if err := d.sender.Send(ctx, job.account, job.from.Address, r.Email, raw); err != nil {
		// Interrupted sends stay pending
		if job.ctx.Err() != nil {
			return nil
		}
		job.logger.Warn("delivery failed", "email", r.Email, "error", err)
		return d.store.MarkRecipientFailed(storeCtx, r.ID, err.Error())
	}

	return d.store.MarkRecipientSent(storeCtx, r.ID)
}

func (d *Dispatcher) pause(ctx context.Context) bool {
	if d.interval <= 0 {
		return ctx.Err() == nil
	}

	timer := time.NewTimer(d.interval)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// outcome is failed when nothing at all was delivered
func (d *Dispatcher) outcome(ctx context.Context, job *sendJob) models.CampaignStatus {
	counts, err := d.store.CountRecipientsByStatus(ctx, job.campaign.ID)
	if err != nil {
		job.logger.Error("failed to count recipients", "error", err)
		return models.CampaignFailed
	}

	job.logger.Info("finished sending",
		"sent", counts[models.RecipientSent],
		"failed", counts[models.RecipientFailed],
	)
	if counts[models.RecipientSent] == 0 && counts[models.RecipientFailed] > 0 {
		return models.CampaignFailed
	}
	return models.CampaignCompleted
}

func (d *Dispatcher) finish(job *sendJob, to models.CampaignStatus) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(job.ctx), 10*time.Second)
	defer cancel()

	ok, err := d.store.TransitionCampaignStatus(ctx, job.campaign.ID, models.CampaignSending, to)
	if err != nil {
		job.logger.Error("failed to update campaign status", "status", to, "error", err)
		return
	}
	if !ok {
		job.logger.Warn("campaign left sending state while job was running", "status", to)
		return
	}
	job.logger.Info("campaign status updated", "status", to)
}
