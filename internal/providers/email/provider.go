// Package email sends invoice notifications. The SMTP provider is used
// when an SMTP host is configured; deployments without one fall back to
// the no-op provider so delivery still drains the queue.
package email

import "context"

type Provider interface {
	Send(ctx context.Context, to []string, subject string, htmlBody string) error
}

type NoOpProvider struct{}

func (p *NoOpProvider) Send(ctx context.Context, to []string, subject string, htmlBody string) error {
	return nil
}
