package scheduler

import (
	"context"
	"io"
	"log"
	"math/rand"
	"os"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	businessflow "github.com/fibernode/backoffice/business_flow"
	"github.com/fibernode/backoffice/models"
	"github.com/fibernode/backoffice/repository"
	"github.com/fibernode/backoffice/utils"
)

// BillingScheduler owns the two periodic jobs of the billing pipeline: the
// daily run that generates next-period invoices and enqueues reminders for
// customers billed tomorrow, and the minute tick that drains the queue.
type BillingScheduler struct {
	invoiceFlow  businessflow.InvoiceFlow
	customerRepo repository.CustomerRepository
	sessionRepo  repository.WASessionRepository
	queueRepo    repository.MessageQueueRepository
	processor    *QueueProcessor
	policy       RatePolicy
	logger       *log.Logger
	rng          *rand.Rand

	// dailyHour is the local hour of day the daily run fires at.
	dailyHour int
	loc       *time.Location
	// drainInterval is how often the queue processor ticks.
	drainInterval time.Duration
}

func NewBillingScheduler(
	invoiceFlow businessflow.InvoiceFlow,
	customerRepo repository.CustomerRepository,
	sessionRepo repository.WASessionRepository,
	queueRepo repository.MessageQueueRepository,
	processor *QueueProcessor,
	policy RatePolicy,
	dailyHour int,
	timezone string,
	drainInterval time.Duration,
	logPath string,
) *BillingScheduler {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		loc = time.UTC
	}
	if dailyHour < 0 || dailyHour > 23 {
		dailyHour = 6
	}
	if drainInterval <= 0 {
		drainInterval = time.Minute
	}

	s := &BillingScheduler{
		invoiceFlow:   invoiceFlow,
		customerRepo:  customerRepo,
		sessionRepo:   sessionRepo,
		queueRepo:     queueRepo,
		processor:     processor,
		policy:        policy,
		dailyHour:     dailyHour,
		loc:           loc,
		drainInterval: drainInterval,
		rng:           rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	s.initLogger(logPath)
	return s
}

// initLogger writes to stdout plus a size-rotated file when a path is given.
func (s *BillingScheduler) initLogger(logPath string) {
	var w io.Writer = os.Stdout
	if logPath != "" {
		w = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   logPath,
			MaxSize:    50, // megabytes
			MaxBackups: 5,
			MaxAge:     30, // days
			Compress:   true,
		})
	}
	s.logger = log.New(w, "billing ", log.LstdFlags|log.Lmicroseconds|log.LUTC)
}

// Start launches both loops in background goroutines and returns a stop
// function.
func (s *BillingScheduler) Start(parent context.Context) func() {
	ctx, cancel := context.WithCancel(parent)

	go s.runDailyLoop(ctx)
	go s.runDrainLoop(ctx)

	return cancel
}

func (s *BillingScheduler) runDailyLoop(ctx context.Context) {
	for {
		wait := s.untilNextDailyRun(time.Now().In(s.loc))
		s.logger.Printf("daily run scheduled in %s", wait.Round(time.Second))

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			s.RunDaily(ctx)
		}
	}
}

func (s *BillingScheduler) runDrainLoop(ctx context.Context) {
	ticker := time.NewTicker(s.drainInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.processor.Process(ctx); err != nil {
				s.logger.Printf("queue drain failed: %v", err)
			}
		}
	}
}

// untilNextDailyRun returns the wait until the next dailyHour boundary in the
// configured timezone.
func (s *BillingScheduler) untilNextDailyRun(now time.Time) time.Duration {
	next := time.Date(now.Year(), now.Month(), now.Day(), s.dailyHour, 0, 0, 0, s.loc)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next.Sub(now)
}

// RunDaily generates invoices for customers billed tomorrow and enqueues
// their payment reminders, staggered per merchant.
func (s *BillingScheduler) RunDaily(ctx context.Context) {
	tomorrow := time.Now().In(s.loc).AddDate(0, 0, 1)
	day := tomorrow.Day()

	created, skipped, err := s.invoiceFlow.GenerateForBillingDay(ctx, day, nil)
	if err != nil {
		s.logger.Printf("invoice generation for day %d failed: %v", day, err)
		return
	}
	invoicesGenerated.Add(float64(created))
	s.logger.Printf("invoice generation for day %d: %d created, %d existing", day, created, skipped)

	queued, err := s.enqueueReminders(ctx, day)
	if err != nil {
		s.logger.Printf("reminder fan-out for day %d failed: %v", day, err)
		return
	}
	remindersQueued.Add(float64(queued))
	s.logger.Printf("reminder fan-out for day %d: %d messages queued", day, queued)
}

// enqueueReminders queues one reminder per billable customer billed on the
// given day. Customers whose merchant has no connected session are skipped
// silently; they will be picked up once the merchant reconnects and the next
// daily run fires.
func (s *BillingScheduler) enqueueReminders(ctx context.Context, day int) (int, error) {
	customers, err := s.customerRepo.ListBillableByBillingDay(ctx, day, nil)
	if err != nil {
		return 0, err
	}
	if len(customers) == 0 {
		return 0, nil
	}

	byOwner := make(map[uint][]*models.Customer)
	for _, c := range customers {
		byOwner[c.OwnerID] = append(byOwner[c.OwnerID], c)
	}

	period := utils.UTCNow().AddDate(0, 1, 0)
	queued := 0

	for ownerID, group := range byOwner {
		session, err := s.sessionRepo.ByUserID(ctx, ownerID)
		if err != nil {
			s.logger.Printf("load session for owner id=%d failed: %v", ownerID, err)
			continue
		}
		if session == nil || !session.IsConnected() {
			s.logger.Printf("owner id=%d has no connected session, skipping %d reminders", ownerID, len(group))
			continue
		}

		offsets := s.policy.StaggerOffsets(s.rng, len(group))
		base := utils.UTCNow()

		for i, customer := range group {
			if customer.Package == nil || customer.Owner == nil {
				s.logger.Printf("customer id=%d missing package or owner, skipping reminder", customer.ID)
				continue
			}

			content := businessflow.BuildReminderMessage(s.rng, businessflow.ReminderData{
				CustomerName: customer.Name,
				NextMonth:    businessflow.MonthName(period.Month()),
				Year:         period.Year(),
				PackageName:  customer.Package.Name,
				Speed:        customer.Package.Speed,
				TotalBill:    customer.TotalBill,
				BillingDate:  customer.BillingDay,
				BankName:     customer.Owner.BankName,
				BankAccount:  customer.Owner.BankAccount,
				BankHolder:   customer.Owner.BankHolder,
				BusinessName: customer.Owner.BusinessName,
			})

			msg := &models.QueuedMessage{
				SessionID:   &session.ID,
				CustomerID:  &customer.ID,
				Category:    models.MessageCategoryReminder,
				Phone:       customer.Phone,
				Content:     content,
				Status:      models.QueueStatusPending,
				MaxRetries:  s.policy.MaxRetries,
				ScheduledAt: base.Add(offsets[i]),
			}
			if err := s.queueRepo.Save(ctx, msg); err != nil {
				s.logger.Printf("enqueue reminder for customer id=%d failed: %v", customer.ID, err)
				continue
			}
			queued++
		}
	}
	return queued, nil
}
