package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"
)

// maxDelay ограничивает задержку между повторами сверху.
const maxDelay = 10 * time.Second

// Policy задаёт параметры повторов для внешних вызовов.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Jitter      time.Duration
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent помечает ошибку, при которой повторы бессмысленны
// (некорректный запрос, отозванный токен, закрытый чат).
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Do выполняет fn с повторами по политике p. Задержка растёт линейно от
// базовой с ограничением сверху и случайным довеском, чтобы разнести
// повторы по времени. Ошибка, помеченная Permanent, прекращает повторы.
func Do(ctx context.Context, p Policy, op string, fn func(context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delayFor(p, attempt)):
			}
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		var perm *permanentError
		if errors.As(err, &perm) {
			return fmt.Errorf("%s: %w", op, perm.err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}

	return fmt.Errorf("%s: max retries exceeded: %w", op, lastErr)
}

func delayFor(p Policy, attempt int) time.Duration {
	delay := p.BaseDelay * time.Duration(attempt)
	if delay > maxDelay {
		delay = maxDelay
	}
	if p.Jitter > 0 {
		delay += time.Duration(rand.Int63n(int64(p.Jitter)))
	}
	return delay
}
