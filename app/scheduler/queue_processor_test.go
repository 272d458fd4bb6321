package scheduler

import (
	"context"
	"log"
	"testing"
	"time"

	"github.com/fibernode/backoffice/models"
	"github.com/fibernode/backoffice/repository"
	"github.com/fibernode/backoffice/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeQueueRepo backs the processor with an in-memory pending list. The
// embedded interface covers methods the processor never calls.
type fakeQueueRepo struct {
	repository.MessageQueueRepository

	pending     map[uint][]*models.QueuedMessage
	sent        []uint
	failed      map[uint]string
	rescheduled map[uint]time.Time
	retryCounts map[uint]int
}

func newFakeQueueRepo() *fakeQueueRepo {
	return &fakeQueueRepo{
		pending:     make(map[uint][]*models.QueuedMessage),
		failed:      make(map[uint]string),
		rescheduled: make(map[uint]time.Time),
		retryCounts: make(map[uint]int),
	}
}

func (f *fakeQueueRepo) SessionIDsWithPending(ctx context.Context, now time.Time) ([]uint, error) {
	var ids []uint
	for id, msgs := range f.pending {
		if len(msgs) > 0 {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (f *fakeQueueRepo) ClaimNextPending(ctx context.Context, sessionID uint, now time.Time) (*models.QueuedMessage, error) {
	msgs := f.pending[sessionID]
	if len(msgs) == 0 {
		return nil, nil
	}
	msg := msgs[0]
	f.pending[sessionID] = msgs[1:]
	msg.Status = models.QueueStatusSending
	return msg, nil
}

func (f *fakeQueueRepo) MarkSent(ctx context.Context, messageID uint, sentAt time.Time) error {
	f.sent = append(f.sent, messageID)
	return nil
}

func (f *fakeQueueRepo) MarkFailed(ctx context.Context, messageID uint, errorMessage string) error {
	f.failed[messageID] = errorMessage
	// Mirrors the SQL, which counts the failing attempt too.
	f.retryCounts[messageID]++
	return nil
}

func (f *fakeQueueRepo) RescheduleRetry(ctx context.Context, messageID uint, retryCount int, nextAt time.Time, errorMessage string) error {
	f.rescheduled[messageID] = nextAt
	f.retryCounts[messageID] = retryCount
	return nil
}

type fakeSessionRepo struct {
	repository.WASessionRepository

	sessions map[uint]*models.WASession
}

func (f *fakeSessionRepo) ByID(ctx context.Context, id uint) (*models.WASession, error) {
	return f.sessions[id], nil
}

type fakeLogRepo struct {
	repository.MessageLogRepository

	entries []*models.MessageLog
}

func (f *fakeLogRepo) Save(ctx context.Context, entry *models.MessageLog) error {
	f.entries = append(f.entries, entry)
	return nil
}

// fakeSender delivers or rejects per phone number
type fakeSender struct {
	registered map[uint]bool
	failPhones map[string]bool
	delivered  []string
}

func (f *fakeSender) IsRegistered(accountID uint) bool {
	return f.registered[accountID]
}

func (f *fakeSender) Send(ctx context.Context, accountID uint, phone, message string) bool {
	if f.failPhones[phone] {
		return false
	}
	f.delivered = append(f.delivered, phone)
	return true
}

func newTestProcessor(queueRepo *fakeQueueRepo, sessionRepo *fakeSessionRepo, logRepo *fakeLogRepo, sender *fakeSender) *QueueProcessor {
	policy := RatePolicy{
		MinDelay:      time.Millisecond,
		MaxDelay:      2 * time.Millisecond,
		Jitter:        time.Millisecond,
		BatchSize:     20,
		BatchCooldown: time.Millisecond,
		RetryBackoff:  10 * time.Minute,
	}
	p := NewQueueProcessor(queueRepo, sessionRepo, logRepo, sender, policy, log.Default())
	// Skip real pacing in tests
	p.sleep = func(ctx context.Context, d time.Duration) bool { return ctx.Err() == nil }
	return p
}

func queuedMsg(id, sessionID uint, phone string, retryCount, maxRetries int) *models.QueuedMessage {
	return &models.QueuedMessage{
		ID:          id,
		SessionID:   &sessionID,
		Category:    models.MessageCategoryReminder,
		Phone:       phone,
		Content:     "Tagihan Anda",
		Status:      models.QueueStatusPending,
		RetryCount:  retryCount,
		MaxRetries:  maxRetries,
		ScheduledAt: utils.UTCNow().Add(-time.Minute),
	}
}

func TestProcessDeliversPendingMessages(t *testing.T) {
	queueRepo := newFakeQueueRepo()
	queueRepo.pending[1] = []*models.QueuedMessage{
		queuedMsg(10, 1, "+62811111111", 0, 3),
		queuedMsg(11, 1, "+62822222222", 0, 3),
	}
	sessionRepo := &fakeSessionRepo{sessions: map[uint]*models.WASession{
		1: {ID: 1, UserID: 5, Status: models.WASessionStatusConnected},
	}}
	logRepo := &fakeLogRepo{}
	sender := &fakeSender{registered: map[uint]bool{5: true}, failPhones: map[string]bool{}}

	p := newTestProcessor(queueRepo, sessionRepo, logRepo, sender)
	attempted, err := p.Process(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 2, attempted)
	assert.Equal(t, []uint{10, 11}, queueRepo.sent)
	assert.Empty(t, queueRepo.failed)
	assert.Len(t, logRepo.entries, 2)
	for _, entry := range logRepo.entries {
		assert.Equal(t, models.MessageLogStatusSent, entry.Status)
	}
}

func TestProcessSkipsUnregisteredSession(t *testing.T) {
	queueRepo := newFakeQueueRepo()
	queueRepo.pending[1] = []*models.QueuedMessage{queuedMsg(10, 1, "+62811111111", 0, 3)}
	sessionRepo := &fakeSessionRepo{sessions: map[uint]*models.WASession{
		1: {ID: 1, UserID: 5, Status: models.WASessionStatusConnected},
	}}
	logRepo := &fakeLogRepo{}
	sender := &fakeSender{registered: map[uint]bool{}, failPhones: map[string]bool{}}

	p := newTestProcessor(queueRepo, sessionRepo, logRepo, sender)
	attempted, err := p.Process(context.Background())

	require.NoError(t, err)
	assert.Zero(t, attempted)
	// Backlog must survive untouched for the next tick
	assert.Len(t, queueRepo.pending[1], 1)
	assert.Empty(t, queueRepo.sent)
}

func TestProcessReschedulesFailureBelowRetryCeiling(t *testing.T) {
	queueRepo := newFakeQueueRepo()
	queueRepo.pending[1] = []*models.QueuedMessage{queuedMsg(10, 1, "+62811111111", 0, 3)}
	sessionRepo := &fakeSessionRepo{sessions: map[uint]*models.WASession{
		1: {ID: 1, UserID: 5, Status: models.WASessionStatusConnected},
	}}
	logRepo := &fakeLogRepo{}
	sender := &fakeSender{
		registered: map[uint]bool{5: true},
		failPhones: map[string]bool{"+62811111111": true},
	}

	p := newTestProcessor(queueRepo, sessionRepo, logRepo, sender)
	before := utils.UTCNow()
	attempted, err := p.Process(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, attempted)
	assert.Empty(t, queueRepo.sent)
	assert.Empty(t, queueRepo.failed)

	nextAt, ok := queueRepo.rescheduled[10]
	require.True(t, ok, "failed message must be rescheduled")
	assert.Equal(t, 1, queueRepo.retryCounts[10])
	// Backoff pushes the retry well into the future
	assert.True(t, nextAt.After(before.Add(9*time.Minute)))
	// No audit row for non-terminal outcomes
	assert.Empty(t, logRepo.entries)
}

func TestProcessFailsPermanentlyAtRetryCeiling(t *testing.T) {
	queueRepo := newFakeQueueRepo()
	queueRepo.pending[1] = []*models.QueuedMessage{queuedMsg(10, 1, "+62811111111", 2, 3)}
	queueRepo.retryCounts[10] = 2
	sessionRepo := &fakeSessionRepo{sessions: map[uint]*models.WASession{
		1: {ID: 1, UserID: 5, Status: models.WASessionStatusConnected},
	}}
	logRepo := &fakeLogRepo{}
	sender := &fakeSender{
		registered: map[uint]bool{5: true},
		failPhones: map[string]bool{"+62811111111": true},
	}

	p := newTestProcessor(queueRepo, sessionRepo, logRepo, sender)
	attempted, err := p.Process(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, attempted)
	assert.Equal(t, "max retries exceeded", queueRepo.failed[10])
	assert.Empty(t, queueRepo.rescheduled)
	// Retry count walks 0 -> 1 -> 2 -> 3; the terminal failure is attempt 3
	assert.Equal(t, 3, queueRepo.retryCounts[10])

	require.Len(t, logRepo.entries, 1)
	assert.Equal(t, models.MessageLogStatusFailed, logRepo.entries[0].Status)
	require.NotNil(t, logRepo.entries[0].ErrorMessage)
	assert.Equal(t, "max retries exceeded", *logRepo.entries[0].ErrorMessage)
}

func TestProcessSingleFlight(t *testing.T) {
	queueRepo := newFakeQueueRepo()
	sessionRepo := &fakeSessionRepo{sessions: map[uint]*models.WASession{}}
	logRepo := &fakeLogRepo{}
	sender := &fakeSender{registered: map[uint]bool{}, failPhones: map[string]bool{}}

	p := newTestProcessor(queueRepo, sessionRepo, logRepo, sender)

	// Simulate a drain already holding the flag
	require.True(t, p.running.CompareAndSwap(false, true))
	attempted, err := p.Process(context.Background())
	require.NoError(t, err)
	assert.Zero(t, attempted)
	p.running.Store(false)

	// Released flag lets the next tick through
	attempted, err = p.Process(context.Background())
	require.NoError(t, err)
	assert.Zero(t, attempted)
}

func TestProcessStopsOnCancelledContext(t *testing.T) {
	queueRepo := newFakeQueueRepo()
	queueRepo.pending[1] = []*models.QueuedMessage{
		queuedMsg(10, 1, "+62811111111", 0, 3),
		queuedMsg(11, 1, "+62822222222", 0, 3),
	}
	sessionRepo := &fakeSessionRepo{sessions: map[uint]*models.WASession{
		1: {ID: 1, UserID: 5, Status: models.WASessionStatusConnected},
	}}
	logRepo := &fakeLogRepo{}
	sender := &fakeSender{registered: map[uint]bool{5: true}, failPhones: map[string]bool{}}

	p := newTestProcessor(queueRepo, sessionRepo, logRepo, sender)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	attempted, err := p.Process(ctx)
	require.NoError(t, err)
	assert.Zero(t, attempted)
	assert.Len(t, queueRepo.pending[1], 2)
}
