package scheduler

import (
	"context"
	"log"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/fibernode/backoffice/models"
	"github.com/fibernode/backoffice/repository"
	"github.com/fibernode/backoffice/utils"
)

// MessageSender is the slice of the session registry the processor needs.
type MessageSender interface {
	IsRegistered(accountID uint) bool
	Send(ctx context.Context, accountID uint, phone, message string) bool
}

// QueueProcessor drains the outbound message queue, one session at a time,
// at the pace the rate policy allows. Only one drain runs at a time; an
// overlapping tick is dropped, not queued.
type QueueProcessor struct {
	queueRepo   repository.MessageQueueRepository
	sessionRepo repository.WASessionRepository
	logRepo     repository.MessageLogRepository
	sender      MessageSender
	policy      RatePolicy
	logger      *log.Logger
	rng         *rand.Rand

	running atomic.Bool

	// sleep is swappable so tests do not wait out real delays.
	sleep func(ctx context.Context, d time.Duration) bool
}

func NewQueueProcessor(
	queueRepo repository.MessageQueueRepository,
	sessionRepo repository.WASessionRepository,
	logRepo repository.MessageLogRepository,
	sender MessageSender,
	policy RatePolicy,
	logger *log.Logger,
) *QueueProcessor {
	if logger == nil {
		logger = log.Default()
	}
	return &QueueProcessor{
		queueRepo:   queueRepo,
		sessionRepo: sessionRepo,
		logRepo:     logRepo,
		sender:      sender,
		policy:      policy,
		logger:      logger,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
		sleep:       sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// Process drains every session with due pending messages. Returns the number
// of messages it attempted; 0 with no error when a previous drain still runs.
func (p *QueueProcessor) Process(ctx context.Context) (int, error) {
	if !p.running.CompareAndSwap(false, true) {
		return 0, nil
	}
	defer p.running.Store(false)

	sessionIDs, err := p.queueRepo.SessionIDsWithPending(ctx, utils.UTCNow())
	if err != nil {
		return 0, err
	}

	attempted := 0
	for _, sessionID := range sessionIDs {
		if ctx.Err() != nil {
			break
		}
		n, err := p.drainSession(ctx, sessionID)
		attempted += n
		if err != nil {
			p.logger.Printf("queue: drain session id=%d failed: %v", sessionID, err)
		}
	}
	return attempted, nil
}

func (p *QueueProcessor) drainSession(ctx context.Context, sessionID uint) (int, error) {
	session, err := p.sessionRepo.ByID(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	if session == nil {
		return 0, nil
	}
	if !p.sender.IsRegistered(session.UserID) {
		// Leave the backlog for the next tick; the account may reconnect.
		return 0, nil
	}

	attempted := 0
	for {
		if ctx.Err() != nil {
			return attempted, nil
		}

		msg, err := p.queueRepo.ClaimNextPending(ctx, sessionID, utils.UTCNow())
		if err != nil {
			return attempted, err
		}
		if msg == nil {
			return attempted, nil
		}

		attempted++
		p.deliver(ctx, session.UserID, msg)

		if p.policy.BatchSize > 0 && attempted%p.policy.BatchSize == 0 {
			if !p.sleep(ctx, p.policy.BatchCooldown) {
				return attempted, nil
			}
		} else if !p.sleep(ctx, p.policy.NextDelay(p.rng)) {
			return attempted, nil
		}
	}
}

// deliver pushes one claimed message and records the outcome. Failures below
// the retry ceiling go back to pending with backoff; at the ceiling the
// message is failed and an audit row written.
func (p *QueueProcessor) deliver(ctx context.Context, accountID uint, msg *models.QueuedMessage) {
	if p.sender.Send(ctx, accountID, msg.Phone, msg.Content) {
		sentAt := utils.UTCNow()
		if err := p.queueRepo.MarkSent(ctx, msg.ID, sentAt); err != nil {
			p.logger.Printf("queue: mark sent id=%d failed: %v", msg.ID, err)
			return
		}
		messagesDelivered.WithLabelValues(msg.Category).Inc()
		p.appendLog(ctx, msg, models.MessageLogStatusSent, nil, sentAt)
		return
	}

	errMsg := "failed to deliver message"
	if msg.RetryCount+1 >= msg.MaxRetries {
		failMsg := "max retries exceeded"
		if err := p.queueRepo.MarkFailed(ctx, msg.ID, failMsg); err != nil {
			p.logger.Printf("queue: mark failed id=%d failed: %v", msg.ID, err)
			return
		}
		messagesFailed.Inc()
		p.logger.Printf("queue: message id=%d failed permanently after %d attempts", msg.ID, msg.RetryCount+1)
		p.appendLog(ctx, msg, models.MessageLogStatusFailed, &failMsg, utils.UTCNow())
		return
	}

	nextAt := utils.UTCNowAdd(p.policy.RetryBackoff)
	if err := p.queueRepo.RescheduleRetry(ctx, msg.ID, msg.RetryCount+1, nextAt, errMsg); err != nil {
		p.logger.Printf("queue: reschedule id=%d failed: %v", msg.ID, err)
		return
	}
	messagesRetried.Inc()
	p.logger.Printf("queue: message id=%d retry %d/%d scheduled for %s", msg.ID, msg.RetryCount+1, msg.MaxRetries, nextAt.Format(time.RFC3339))
}

func (p *QueueProcessor) appendLog(ctx context.Context, msg *models.QueuedMessage, status string, errMsg *string, sentAt time.Time) {
	entry := &models.MessageLog{
		SessionID:    msg.SessionID,
		CustomerID:   msg.CustomerID,
		InvoiceID:    msg.InvoiceID,
		Category:     msg.Category,
		Phone:        msg.Phone,
		Content:      msg.Content,
		Status:       status,
		ErrorMessage: errMsg,
		SentAt:       sentAt,
	}
	if err := p.logRepo.Save(ctx, entry); err != nil {
		p.logger.Printf("queue: append log for message id=%d failed: %v", msg.ID, err)
	}
}
