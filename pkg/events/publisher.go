// Package events publishes deployment lifecycle events to NATS so other
// tooling (dashboards, chat notifiers) can follow a deploy in flight.
// Publishing follows the same best-effort policy as status reporting: a
// failure is a warning, never a deployment error.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/nats-io/nats.go"

	"github.com/clubemkt/agendai-deploy/pkg/statusreport"
)

// subjectPrefix namespaces every deployment event.
const subjectPrefix = "agendai.deploy"

// Event is the JSON payload published for each lifecycle phase.
type Event struct {
	Environment string    `json:"environment"`
	Status      string    `json:"status"`
	Description string    `json:"description,omitempty"`
	URL         string    `json:"url,omitempty"`
	Error       string    `json:"error,omitempty"`
	EmittedAt   time.Time `json:"emitted_at"`
}

// conn is the subset of nats.Conn the publisher needs, so tests can
// substitute a recording fake.
type conn interface {
	Publish(subj string, data []byte) error
	Flush() error
	Close()
}

// Publisher emits deployment events on NATS subjects of the form
// agendai.deploy.<environment>.
type Publisher struct {
	nc     conn
	logger hclog.Logger
}

// Connect dials the NATS server and returns a publisher. The connection
// uses a short timeout so an unreachable server fails fast instead of
// stalling the deploy.
func Connect(url string, logger hclog.Logger) (*Publisher, error) {
	if url == "" {
		return nil, fmt.Errorf("events URL cannot be empty")
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	nc, err := nats.Connect(url,
		nats.Name("agendai-deploy"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(2),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to events server: %w", err)
	}

	return &Publisher{nc: nc, logger: logger.Named("events")}, nil
}

// Notify publishes the status update as a deployment event. It satisfies
// the executor's notifier contract alongside the HTTP status reporter.
func (p *Publisher) Notify(ctx context.Context, update statusreport.Update) error {
	event := Event{
		Environment: update.Environment,
		Status:      update.Status,
		Description: update.Description,
		URL:         update.URL,
		Error:       update.Error,
		EmittedAt:   time.Now().UTC(),
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	subject := Subject(update.Environment)
	if err := p.nc.Publish(subject, payload); err != nil {
		return fmt.Errorf("failed to publish %s: %w", subject, err)
	}
	if err := p.nc.Flush(); err != nil {
		return fmt.Errorf("failed to flush events connection: %w", err)
	}

	p.logger.Debug("event published", "subject", subject, "status", update.Status)
	return nil
}

// Close drains the connection.
func (p *Publisher) Close() {
	if p.nc != nil {
		p.nc.Close()
	}
}

// Subject returns the NATS subject for an environment's deploy events.
func Subject(environment string) string {
	return fmt.Sprintf("%s.%s", subjectPrefix, environment)
}
