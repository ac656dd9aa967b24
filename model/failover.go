package model

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/aidenhq/aiden/core"
	"github.com/aidenhq/aiden/logging"
)

// Failover composes a primary and a fallback Model behind the Model interface.
//
// Selection policy: attempt primary; on a connection, authentication or
// rate-limit fault retry primary once with no backoff, then fail over to the
// fallback for the remainder of that call. The decision is not cached across
// calls: every call re-attempts primary first, since quota windows reset.
// A call that exhausts both providers fails with core.ErrProviderUnavailable.
type Failover struct {
	primary  Model
	fallback Model
	logger   logging.Logger
}

// NewFailover wires a primary and fallback provider. A nil logger is
// substituted with a NoOpLogger.
func NewFailover(primary, fallback Model, logger logging.Logger) *Failover {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &Failover{primary: primary, fallback: fallback, logger: logger}
}

// shouldFailOver classifies a provider fault. Context cancellation is never
// retried; classified provider errors consult their Retryable flag; bare
// network errors count as connection faults.
func shouldFailOver(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Retryable()
	}
	var ne net.Error
	return errors.As(err, &ne)
}

// Complete implements Model.
func (f *Failover) Complete(ctx context.Context, req Request) (*Response, error) {
	resp, err := f.primary.Complete(ctx, req)
	if err == nil {
		return resp, nil
	}
	if !shouldFailOver(err) {
		return nil, err
	}
	f.logger.Warn("primary model call failed, retrying", "provider", f.primary.Info().Provider, "error", err)

	// Retry primary once with no backoff before failing over.
	if resp, err = f.primary.Complete(ctx, req); err == nil {
		return resp, nil
	}
	if !shouldFailOver(err) {
		return nil, err
	}
	f.logger.Warn("primary model exhausted, failing over", "fallback", f.fallback.Info().Provider)

	resp, fbErr := f.fallback.Complete(ctx, req)
	if fbErr == nil {
		return resp, nil
	}
	return nil, fmt.Errorf("%w: primary: %v; fallback: %v", core.ErrProviderUnavailable, err, fbErr)
}

// Stream implements Model. Failover is transparent only while no fragment has
// been relayed yet; once text has reached the consumer the call cannot be
// restarted without duplicating output, so later faults surface as errors.
func (f *Failover) Stream(ctx context.Context, req Request) (<-chan Response, <-chan error) {
	out := make(chan Response, 32)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		attempts := []Model{f.primary, f.primary, f.fallback}
		var lastErr error
		for i, m := range attempts {
			if ctx.Err() != nil {
				errCh <- ctx.Err()
				return
			}
			if i > 0 {
				f.logger.Warn("model stream attempt failed", "attempt", i, "provider", m.Info().Provider, "error", lastErr)
			}
			relayed, err := f.relay(ctx, m, req, out)
			if err == nil {
				return
			}
			if relayed || !shouldFailOver(err) {
				errCh <- err
				return
			}
			lastErr = err
		}
		errCh <- fmt.Errorf("%w: %v", core.ErrProviderUnavailable, lastErr)
	}()

	return out, errCh
}

// relay forwards one provider stream to out. It reports whether any response
// was already relayed, which disqualifies transparent retry.
func (f *Failover) relay(ctx context.Context, m Model, req Request, out chan<- Response) (bool, error) {
	respCh, errCh := m.Stream(ctx, req)
	relayed := false
	for respCh != nil || errCh != nil {
		select {
		case <-ctx.Done():
			return relayed, ctx.Err()
		case resp, ok := <-respCh:
			if !ok {
				respCh = nil
				continue
			}
			// Empty partial fragments are suppressed.
			if resp.Partial && resp.TextDelta == "" && len(resp.ToolCalls) == 0 {
				continue
			}
			select {
			case <-ctx.Done():
				return relayed, ctx.Err()
			case out <- resp:
				relayed = true
			}
		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			if err != nil {
				return relayed, err
			}
		}
	}
	if !relayed {
		return false, &ProviderError{Provider: m.Info().Provider, Err: fmt.Errorf("stream closed without response")}
	}
	return true, nil
}

// Info returns the primary provider's metadata.
func (f *Failover) Info() Info { return f.primary.Info() }
