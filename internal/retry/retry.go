// Package retry wraps cenkalti/backoff with the fixed-attempt ladders used
// for object uploads, managed RPC calls and workspace removal.
package retry

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Config configures retry behavior
type Config struct {
	MaxRetries      int           // Retries after the first attempt (0 = no retries)
	InitialInterval time.Duration // Delay before the first retry
	MaxInterval     time.Duration // Upper bound for a single delay
	Multiplier      float64       // Growth factor between delays
}

// UploadConfig is the ladder for a single object upload
func UploadConfig(retries int) *Config {
	return &Config{
		MaxRetries:      retries,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     10 * time.Second,
		Multiplier:      2.0,
	}
}

// RPCConfig is the ladder for a managed RPC round trip that failed at transport level
func RPCConfig() *Config {
	return &Config{
		MaxRetries:      2,
		InitialInterval: 250 * time.Millisecond,
		MaxInterval:     2 * time.Second,
		Multiplier:      2.0,
	}
}

// CleanupConfig is the ladder for removing a workspace that may hold locked files
func CleanupConfig() *Config {
	return &Config{
		MaxRetries:      5,
		InitialInterval: 200 * time.Millisecond,
		MaxInterval:     3 * time.Second,
		Multiplier:      2.0,
	}
}

// Permanent marks an error as not worth retrying
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Do runs operation until it succeeds, returns a permanent error, or the
// ladder is exhausted. notify, when non-nil, is called before each delay.
// It returns the last error and the number of attempts made.
func Do(ctx context.Context, cfg *Config, operation func() error, notify func(err error, wait time.Duration)) (int, error) {
	if cfg == nil {
		cfg = UploadConfig(3)
	}

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = cfg.InitialInterval
	expBackoff.MaxInterval = cfg.MaxInterval
	expBackoff.Multiplier = cfg.Multiplier
	expBackoff.RandomizationFactor = 0.2
	expBackoff.MaxElapsedTime = 0
	expBackoff.Reset()

	var b backoff.BackOff = backoff.WithMaxRetries(expBackoff, uint64(cfg.MaxRetries))
	b = backoff.WithContext(b, ctx)

	attempts := 0
	wrapped := func() error {
		attempts++
		err := operation()
		var permanent *backoff.PermanentError
		if err != nil && !errors.As(err, &permanent) && IsPermanentError(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	var err error
	if notify != nil {
		err = backoff.RetryNotify(wrapped, b, notify)
	} else {
		err = backoff.Retry(wrapped, b)
	}

	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		err = permanent.Err
	}
	return attempts, err
}

// IsPermanentError returns true if the error should not be retried
func IsPermanentError(err error) bool {
	if err == nil {
		return false
	}

	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return true
	}

	errStr := strings.ToLower(err.Error())
	permanentPatterns := []string{
		"access denied",
		"forbidden",
		"unauthorized",
		"invalid credentials",
		"invalid access key",
		"permission denied",
		"no such file",
		"is a directory",
	}
	for _, pattern := range permanentPatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}
	return false
}
