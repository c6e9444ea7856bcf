package retry

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"
)

// Policy computes exponential backoff delays for re-attempted work.
// Attempt numbers are 1-based: Delay(1) is the wait before the second try.
type Policy struct {
	BaseDelay   time.Duration
	CapDelay    time.Duration
	MaxAttempts int
}

// Delay returns min(BaseDelay * 2^(attempt-1), CapDelay).
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := p.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= p.CapDelay {
			return p.CapDelay
		}
	}
	if delay > p.CapDelay {
		return p.CapDelay
	}
	return delay
}

// Exhausted reports whether the attempt counter has reached the ceiling.
func (p Policy) Exhausted(attempts int) bool {
	return attempts >= p.MaxAttempts
}

// Kind classifies a provider failure for retry purposes.
type Kind int

const (
	// KindTransient failures are retried on the backoff schedule.
	KindTransient Kind = iota
	// KindPermanent failures short-circuit remaining retries.
	KindPermanent
)

// Classify maps an HTTP status code and/or transport error to a retry kind.
// Transport errors and timeouts are transient. 408, 429 and 5xx are
// transient; every other 4xx is a permanent rejection.
func Classify(statusCode int, err error) Kind {
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return KindTransient
		}
		var netErr net.Error
		if errors.As(err, &netErr) {
			return KindTransient
		}
		// Unrecognized transport errors get the benefit of the doubt.
		return KindTransient
	}

	switch {
	case statusCode >= 500:
		return KindTransient
	case statusCode == http.StatusRequestTimeout, statusCode == http.StatusTooManyRequests:
		return KindTransient
	case statusCode >= 400:
		return KindPermanent
	default:
		return KindTransient
	}
}
