package upload

import (
	"time"

	"github.com/jladan/glacier-upload/internal/common"
	"github.com/sethvargo/go-retry"
)

// RetryPolicy controls automatic retries of transient part failures.
//
// MaxRetries is the number of retries after the first attempt; zero means one
// attempt per call and leaves retrying to the caller. Backoff maps the
// previous delay (zero before the first retry) to the next one; nil retries
// immediately.
type RetryPolicy struct {
	MaxRetries int
	Backoff    func(prev time.Duration) time.Duration
}

// ExponentialBackoff starts at base and doubles up to limit.
func ExponentialBackoff(base, limit time.Duration) func(time.Duration) time.Duration {
	return func(prev time.Duration) time.Duration {
		if prev <= 0 {
			return base
		}
		return min(2*prev, limit)
	}
}

func (p RetryPolicy) backoff() retry.Backoff {
	var prev time.Duration
	next := retry.BackoffFunc(func() (time.Duration, bool) {
		if p.Backoff != nil {
			prev = p.Backoff(prev)
		}
		return prev, false
	})
	return retry.WithMaxRetries(uint64(max(p.MaxRetries, 0)), next)
}

// Progress is reported after every uploaded chunk.
type Progress struct {
	JobID      string
	Done       int
	Total      int
	Bytes      int64
	TotalBytes int64
}

// Options configures a Coordinator.
type Options struct {
	// MaxConcurrentUploads bounds the UploadAll worker pool.
	MaxConcurrentUploads int
	Retry                RetryPolicy
	// VerifyFile re-hashes the whole source file before completing and
	// refuses to complete if it no longer matches the uploaded chunks.
	VerifyFile bool
	// OnProgress, when set, is called from upload workers.
	OnProgress func(Progress)
}

// DefaultOptions returns the options used when none are given.
func DefaultOptions() Options {
	return Options{
		MaxConcurrentUploads: common.DefaultMaxConcurrentUploads,
		VerifyFile:           true,
	}
}
