package bucketing

import (
	"hash"
	"sync"
	"time"

	"club-ledger/internal/config"

	"github.com/spaolacci/murmur3"
)

// BucketingManager assigns members to stable partition buckets so the member
// table's partition key stays narrow regardless of roster size.
type BucketingManager struct {
	memberBuckets int
	hasherPool    sync.Pool
}

func NewBucketingManager(cfg *config.Config) *BucketingManager {
	bm := &BucketingManager{
		memberBuckets: cfg.Bucketing.MemberBuckets,
	}

	bm.hasherPool = sync.Pool{
		New: func() interface{} {
			return murmur3.New64()
		},
	}

	return bm
}

// GetMemberBucket returns a consistent bucket for a member id
// (0 to memberBuckets-1).
func (bm *BucketingManager) GetMemberBucket(memberID string) int {
	return int(bm.getHash(memberID) % uint64(bm.memberBuckets))
}

// GetTimeBucket returns the start of the current window, used for
// rate-limit style keys.
func (bm *BucketingManager) GetTimeBucket(windowSeconds int) int64 {
	return time.Now().Unix() / int64(windowSeconds) * int64(windowSeconds)
}

func (bm *BucketingManager) GetMemberBuckets() int {
	return bm.memberBuckets
}

func (bm *BucketingManager) getHash(key string) uint64 {
	hasher := bm.hasherPool.Get().(hash.Hash64)
	defer bm.hasherPool.Put(hasher)

	hasher.Reset()
	hasher.Write([]byte(key))
	return hasher.Sum64()
}
