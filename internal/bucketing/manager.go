package bucketing

import (
	"hash"
	"sync"

	"access-gate/internal/config"

	"github.com/spaolacci/murmur3"
)

// BucketingManager spreads the global code log over a fixed number of
// partitions so admin reads do not hit a single hot partition.
type BucketingManager struct {
	logBuckets int
	hasherPool sync.Pool
}

func NewBucketingManager(cfg *config.Config) *BucketingManager {
	n := cfg.Bucketing.LogBuckets
	if n <= 0 {
		n = 1
	}
	bm := &BucketingManager{logBuckets: n}

	bm.hasherPool = sync.Pool{
		New: func() interface{} {
			return murmur3.New64()
		},
	}

	return bm
}

// LogBucket returns the partition (0 to LogBuckets-1) for a record ID.
func (bm *BucketingManager) LogBucket(id string) int {
	return int(bm.getHash(id) % uint64(bm.logBuckets))
}

func (bm *BucketingManager) LogBuckets() int {
	return bm.logBuckets
}

// AllLogBuckets lists every partition, for fan-out reads.
func (bm *BucketingManager) AllLogBuckets() []int {
	out := make([]int, bm.logBuckets)
	for i := range out {
		out[i] = i
	}
	return out
}

func (bm *BucketingManager) getHash(key string) uint64 {
	hasher := bm.hasherPool.Get().(hash.Hash64)
	defer bm.hasherPool.Put(hasher)

	hasher.Reset()
	hasher.Write([]byte(key))
	return hasher.Sum64()
}
