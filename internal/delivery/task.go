// Package delivery sends generated invoices to customers by email. Tasks
// flow through a queue so generation never blocks on SMTP, and a failed
// send retries with backoff without touching invoice state.
package delivery

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Task is one requested invoice delivery. Subject and Message override
// the rendered defaults when set. Attempt counts sends already tried.
type Task struct {
	InvoiceID snowflake.ID `json:"invoice_id"`
	Subject   string       `json:"subject,omitempty"`
	Message   string       `json:"message,omitempty"`
	Attempt   int          `json:"attempt"`
}

// Queue hands tasks from producers to the delivery workers. Dequeue is
// non-blocking; workers poll it. Delayed tasks become visible once their
// delay elapses.
type Queue interface {
	Enqueue(ctx context.Context, task Task) error
	EnqueueAfter(ctx context.Context, task Task, delay time.Duration) error
	Dequeue(ctx context.Context) (*Task, error)
	DeadLetter(ctx context.Context, task Task, reason string) error
}
