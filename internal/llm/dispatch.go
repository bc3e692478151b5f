package llm

import (
	"context"
	"time"

	mnemoerrors "mnemo/internal/errors"
	"mnemo/internal/logging"
	"mnemo/internal/observability"
	"mnemo/internal/session"
)

// Result is the outcome of a successful dispatch.
type Result struct {
	Text       string
	Provider   session.ProviderID
	UsedBackup bool
}

// clientFactory abstracts client construction so tests can inject fakes.
type clientFactory interface {
	NewClient(provider session.ProviderID) (Client, error)
}

// Dispatcher routes a generation request to the session's primary
// provider, retrying transient failures, and falls back to the backup
// provider when the primary's budget is exhausted. When both fail, the
// primary's error is surfaced.
type Dispatcher struct {
	factory clientFactory
	metrics *observability.Metrics
	logger  *logging.Logger
}

// NewDispatcher creates a dispatcher over the given factory. metrics may
// be nil.
func NewDispatcher(factory *Factory, metrics *observability.Metrics) *Dispatcher {
	return &Dispatcher{
		factory: factory,
		metrics: metrics,
		logger:  logging.NewComponentLogger("dispatch"),
	}
}

// Generate runs the request against primary then, on failure, backup.
// Each provider gets the full retry budget from config. The error of the
// primary provider is the one reported when both fail.
func (d *Dispatcher) Generate(ctx context.Context, primary, backup session.ProviderID, req Request, config mnemoerrors.RetryConfig) (*Result, error) {
	start := time.Now()

	text, primaryErr := d.tryProvider(ctx, primary, req, config)
	if primaryErr == nil {
		d.metrics.RecordGeneration(ctx, string(primary), false, nil, time.Since(start))
		return &Result{Text: text, Provider: primary}, nil
	}
	d.logger.Warn("Primary provider %s failed: %v", primary, primaryErr)

	if backup == "" || backup == primary {
		d.metrics.RecordGeneration(ctx, string(primary), false, primaryErr, time.Since(start))
		return nil, primaryErr
	}

	text, backupErr := d.tryProvider(ctx, backup, req, config)
	if backupErr == nil {
		d.logger.Info("Backup provider %s answered after primary failure", backup)
		d.metrics.RecordGeneration(ctx, string(backup), true, nil, time.Since(start))
		return &Result{Text: text, Provider: backup, UsedBackup: true}, nil
	}
	d.logger.Error("Backup provider %s also failed: %v", backup, backupErr)

	// Both providers failed. The primary's error is the meaningful one
	// for the caller's messaging.
	d.metrics.RecordGeneration(ctx, string(primary), false, primaryErr, time.Since(start))
	return nil, primaryErr
}

func (d *Dispatcher) tryProvider(ctx context.Context, provider session.ProviderID, req Request, config mnemoerrors.RetryConfig) (string, error) {
	client, err := d.factory.NewClient(provider)
	if err != nil {
		return "", err
	}
	defer func() {
		if closeErr := client.Close(); closeErr != nil {
			d.logger.Warn("Closing %s client: %v", provider, closeErr)
		}
	}()

	return mnemoerrors.RetryWithResultAndLog(ctx, config, func(ctx context.Context) (string, error) {
		return client.Generate(ctx, req)
	}, d.logger)
}
