package delivery

import (
	"math/rand"
	"time"
)

// Backoff - экспоненциальная задержка с джиттером: base * 2^(attempt-1),
// с потолком Max, плюс случайная добавка до четверти задержки, чтобы
// ретраи разных задач не синхронизировались.
type Backoff struct {
	Base time.Duration
	Max  time.Duration

	// jitterFn возвращает случайное значение в [0, n); подменяется в тестах
	jitterFn func(n int64) int64
}

func NewBackoff(base, max time.Duration) Backoff {
	return Backoff{
		Base:     base,
		Max:      max,
		jitterFn: rand.Int63n,
	}
}

func (b Backoff) Next(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	delay := b.Base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= b.Max || delay <= 0 {
			delay = b.Max

			break
		}
	}

	if delay > b.Max {
		delay = b.Max
	}

	jitter := time.Duration(0)
	if quarter := int64(delay / 4); quarter > 0 {
		jitter = time.Duration(b.jitterFn(quarter))
	}

	return delay + jitter
}
