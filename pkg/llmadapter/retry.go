// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package llmadapter

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"net/http"
	"time"
)

// RetryPolicy is the exponential backoff ladder applied to transient LLM
// call failures (HTTP 429 and 5xx, plus network errors).
type RetryPolicy struct {
	MaxAttempts int
	InitialWait time.Duration
	MaxWait     time.Duration
	Factor      float64
}

// DefaultRetryPolicy mirrors common provider SDK defaults: three attempts,
// one second initial wait, thirty second ceiling.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		InitialWait: time.Second,
		MaxWait:     30 * time.Second,
		Factor:      2.0,
	}
}

// permanentError marks an error as non-retryable (4xx other than 429).
type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

func permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func isPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// backoffFor computes the wait duration before the given attempt (1-based),
// honoring a Retry-After hint from the server when present and larger than
// the computed exponential wait.
func backoffFor(policy RetryPolicy, attempt int, retryAfter time.Duration) time.Duration {
	wait := float64(policy.InitialWait) * math.Pow(policy.Factor, float64(attempt-1))
	if wait > float64(policy.MaxWait) {
		wait = float64(policy.MaxWait)
	}
	jittered := time.Duration(wait * (0.5 + rand.Float64()))
	if retryAfter > jittered {
		return retryAfter
	}
	return jittered
}

// withRetry runs op, retrying transient failures according to policy. op
// must wrap non-retryable errors with permanent() (see classifyHTTPStatus).
func withRetry(ctx context.Context, policy RetryPolicy, op func(attempt int) error) error {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = op(attempt)
		if lastErr == nil {
			return nil
		}
		if isPermanent(lastErr) {
			return lastErr
		}
		if attempt == policy.MaxAttempts {
			break
		}
		retryAfter := retryAfterFromError(lastErr)
		wait := backoffFor(policy, attempt, retryAfter)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return lastErr
}

// httpStatusError carries a response status and an optional Retry-After
// duration parsed from the response, so withRetry can classify and pace
// retries without re-parsing headers.
type httpStatusError struct {
	status     int
	retryAfter time.Duration
	err        error
}

func (e *httpStatusError) Error() string { return e.err.Error() }
func (e *httpStatusError) Unwrap() error { return e.err }

func retryAfterFromError(err error) time.Duration {
	var hse *httpStatusError
	if errors.As(err, &hse) {
		return hse.retryAfter
	}
	return 0
}

// classifyHTTPStatus wraps err as permanent unless the status indicates a
// transient condition (429 or any 5xx).
func classifyHTTPStatus(resp *http.Response, err error) error {
	if err == nil {
		return nil
	}
	wrapped := &httpStatusError{status: resp.StatusCode, err: err, retryAfter: parseRetryAfter(resp)}
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return wrapped
	}
	return permanent(wrapped)
}

func parseRetryAfter(resp *http.Response) time.Duration {
	if resp == nil {
		return 0
	}
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return 0
	}
	if secs, err := time.ParseDuration(v + "s"); err == nil {
		return secs
	}
	if t, err := http.ParseTime(v); err == nil {
		return time.Until(t)
	}
	return 0
}
