package ratelimit

import "time"

// Bucket is the budget of one operation: Limit hits per Window
type Bucket struct {
	Limit  int
	Window time.Duration
}

// Buckets maps a bucket name to its budget. Keys of unknown buckets are
// never limited.
type Buckets map[string]Bucket

func (b Buckets) lookup(name string) (Bucket, bool) {
	bucket, ok := b[name]
	if !ok || bucket.Limit <= 0 || bucket.Window <= 0 {
		return Bucket{}, false
	}
	return bucket, true
}
