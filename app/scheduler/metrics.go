package scheduler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	messagesDelivered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wa_messages_delivered_total",
			Help: "Outbound WhatsApp messages delivered, by category",
		},
		[]string{"category"},
	)

	messagesFailed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "wa_messages_failed_total",
			Help: "Outbound WhatsApp messages that exhausted all retries",
		},
	)

	messagesRetried = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "wa_messages_retried_total",
			Help: "Outbound WhatsApp messages rescheduled after a failed attempt",
		},
	)

	remindersQueued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "billing_reminders_queued_total",
			Help: "Payment reminders enqueued by the daily billing run",
		},
	)

	invoicesGenerated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "billing_invoices_generated_total",
			Help: "Invoices created by the daily billing run",
		},
	)
)
