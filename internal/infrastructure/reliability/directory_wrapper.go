package reliability

import (
	"context"
	"fmt"
	"time"

	"desklink/internal/core/domain"
	"desklink/internal/core/ports"
	"desklink/pkg/cache"
	"desklink/pkg/circuitbreaker"
	"desklink/pkg/retry"

	"go.uber.org/zap"
)

const memberCacheTTL = 2 * time.Second

// DirectoryWrapper guards a remote session directory with retries, a
// circuit breaker, and a short read-through cache on the hot read
// paths. The relay consults Members on every envelope; a Redis blip
// must not take signaling down with it.
type DirectoryWrapper struct {
	directory ports.SessionDirectory
	logger    *zap.SugaredLogger

	retryConfig retry.Config
	breaker     *circuitbreaker.CircuitBreaker
	reads       *cache.Cache
}

func NewDirectoryWrapper(
	directory ports.SessionDirectory,
	retryConfig retry.Config,
	cbConfig circuitbreaker.Config,
	logger *zap.SugaredLogger,
) *DirectoryWrapper {
	wrapper := &DirectoryWrapper{
		directory:   directory,
		logger:      logger,
		retryConfig: retryConfig,
		breaker:     circuitbreaker.New(cbConfig),
		reads:       cache.NewCache(memberCacheTTL),
	}

	wrapper.breaker.OnStateChange(func(from, to circuitbreaker.State) {
		logger.Infow("directory circuit breaker state changed",
			"from", from.String(),
			"to", to.String(),
		)
	})

	return wrapper
}

func membersCacheKey(sessionID domain.SessionID) string {
	return fmt.Sprintf("members:%s", sessionID)
}

func (w *DirectoryWrapper) Register(ctx context.Context, participant *domain.Participant) error {
	err := retry.Retry(ctx, w.retryConfig, func() error {
		return w.breaker.Execute(ctx, func() error {
			return w.directory.Register(ctx, participant)
		})
	})
	if err == nil {
		w.reads.Delete(membersCacheKey(participant.SessionID))
	}
	return err
}

func (w *DirectoryWrapper) Deregister(ctx context.Context, sessionID domain.SessionID, id domain.ParticipantID) error {
	err := retry.Retry(ctx, w.retryConfig, func() error {
		return w.breaker.Execute(ctx, func() error {
			return w.directory.Deregister(ctx, sessionID, id)
		})
	})
	if err == nil || err == domain.ErrParticipantNotFound {
		w.reads.Delete(membersCacheKey(sessionID))
	}
	return err
}

func (w *DirectoryWrapper) Get(ctx context.Context, sessionID domain.SessionID, id domain.ParticipantID) (*domain.Participant, error) {
	result, err := w.breaker.ExecuteWithResult(ctx, func() (interface{}, error) {
		return w.directory.Get(ctx, sessionID, id)
	})
	if err != nil {
		return nil, err
	}
	return result.(*domain.Participant), nil
}

// Members serves from the read cache when the entry is fresh, so an
// open breaker degrades to slightly stale membership instead of
// failing the relay.
func (w *DirectoryWrapper) Members(ctx context.Context, sessionID domain.SessionID) ([]*domain.Participant, error) {
	key := membersCacheKey(sessionID)
	if cached, ok := w.reads.Get(key); ok {
		return cached.([]*domain.Participant), nil
	}

	result, err := retry.RetryWithResult(ctx, w.retryConfig, func() ([]*domain.Participant, error) {
		res, err := w.breaker.ExecuteWithResult(ctx, func() (interface{}, error) {
			return w.directory.Members(ctx, sessionID)
		})
		if err != nil {
			return nil, err
		}
		return res.([]*domain.Participant), nil
	})
	if err != nil {
		return nil, err
	}

	w.reads.Set(key, result)
	return result, nil
}

func (w *DirectoryWrapper) Sessions(ctx context.Context) ([]domain.SessionID, error) {
	result, err := w.breaker.ExecuteWithResult(ctx, func() (interface{}, error) {
		return w.directory.Sessions(ctx)
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.SessionID), nil
}

// Touch is periodic keepalive traffic; one lost beat is harmless, so it
// goes through the breaker without retries.
func (w *DirectoryWrapper) Touch(ctx context.Context, sessionID domain.SessionID, id domain.ParticipantID) error {
	return w.breaker.Execute(ctx, func() error {
		return w.directory.Touch(ctx, sessionID, id)
	})
}

// BreakerStats exposes breaker counters for the health endpoint.
func (w *DirectoryWrapper) BreakerStats() circuitbreaker.Stats {
	return w.breaker.GetStats()
}

// Stop releases the cache cleanup goroutine.
func (w *DirectoryWrapper) Stop() {
	w.reads.Stop()
}

var _ ports.SessionDirectory = (*DirectoryWrapper)(nil)
