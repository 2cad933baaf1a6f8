package quota

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"promptoon-server/modules/common/apperr"
)

const keyTTL = 24 * time.Hour

// Usage - 클라이언트별 오늘 사용량
type Usage struct {
	ClientID  string `json:"clientId"`
	UsedCount int    `json:"usedCount"`
	MaxCount  int    `json:"maxCount"`

	// Reserve로 잡은 카운터 키 (Release 대상)
	key string
}

// Remaining - 남은 호출 수 (제한 없으면 -1)
func (u *Usage) Remaining() int {
	if u.MaxCount <= 0 {
		return -1
	}
	if r := u.MaxCount - u.UsedCount; r > 0 {
		return r
	}
	return 0
}

// Limiter - Redis 일일 카운터
// rdb가 nil이거나 limit <= 0 이면 제한 없음
type Limiter struct {
	rdb   *redis.Client
	limit int
	now   func() time.Time
}

func NewLimiter(rdb *redis.Client, limit int) *Limiter {
	return &Limiter{rdb: rdb, limit: limit, now: time.Now}
}

// Enabled - 제한이 실제로 동작하는지
func (l *Limiter) Enabled() bool {
	return l != nil && l.rdb != nil && l.limit > 0
}

func (l *Limiter) key(clientID string) string {
	return fmt.Sprintf("promptoon:usage:%s:%s", l.now().Format("2006-01-02"), clientID)
}

// Check - 카운터를 늘리지 않고 현재 사용량만 확인, 한도 도달 시 RATE_LIMITED
// Redis 오류는 로그만 남기고 통과시킨다
func (l *Limiter) Check(ctx context.Context, clientID string) (*Usage, error) {
	usage := &Usage{ClientID: clientID}
	if !l.Enabled() {
		return usage, nil
	}
	usage.MaxCount = l.limit

	val, err := l.rdb.Get(ctx, l.key(clientID)).Result()
	if err == redis.Nil {
		return usage, nil
	}
	if err != nil {
		log.Printf("⚠️  [Quota] Redis error, skipping limit check: %v", err)
		return usage, nil
	}

	used, err := strconv.Atoi(val)
	if err != nil {
		log.Printf("⚠️  [Quota] Invalid counter for %s: %q", clientID, val)
		return usage, nil
	}
	usage.UsedCount = used

	if used >= l.limit {
		log.Printf("🚫 [Quota] Daily limit reached: client=%s used=%d max=%d", clientID, used, l.limit)
		return usage, apperr.Newf(apperr.CodeRateLimited, "daily limit of %d requests reached", l.limit)
	}
	return usage, nil
}

// Reserve - 모델 호출 전에 INCR로 한 칸을 먼저 잡는다 (24시간 TTL)
// 한도를 넘으면 되돌리고 RATE_LIMITED, 동시 요청도 한도를 넘지 못한다
// Redis 오류는 로그만 남기고 통과시킨다
func (l *Limiter) Reserve(ctx context.Context, clientID string) (*Usage, error) {
	usage := &Usage{ClientID: clientID}
	if !l.Enabled() {
		return usage, nil
	}
	usage.MaxCount = l.limit

	key := l.key(clientID)
	var incr *redis.IntCmd
	_, err := l.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, keyTTL)
		return nil
	})
	if err != nil {
		log.Printf("⚠️  [Quota] Redis error, skipping limit check: %v", err)
		return usage, nil
	}

	used := int(incr.Val())
	if used > l.limit {
		if err := l.rdb.Decr(ctx, key).Err(); err != nil {
			log.Printf("⚠️  [Quota] Failed to roll back rejected reservation for %s: %v", clientID, err)
		}
		usage.UsedCount = l.limit
		log.Printf("🚫 [Quota] Daily limit reached: client=%s max=%d", clientID, l.limit)
		return usage, apperr.Newf(apperr.CodeRateLimited, "daily limit of %d requests reached", l.limit)
	}

	usage.UsedCount = used
	usage.key = key
	log.Printf("📊 [Quota] Reserved: client=%s used=%d/%d", clientID, used, l.limit)
	return usage, nil
}

// Release - 모델 호출이 실패하면 예약한 한 칸을 돌려준다
// 요청 컨텍스트가 이미 끝났어도 되돌리기는 수행
func (l *Limiter) Release(ctx context.Context, usage *Usage) {
	if !l.Enabled() || usage == nil || usage.key == "" {
		return
	}
	if err := l.rdb.Decr(context.WithoutCancel(ctx), usage.key).Err(); err != nil {
		log.Printf("⚠️  [Quota] Failed to release reservation for %s: %v", usage.ClientID, err)
		return
	}
	usage.key = ""
	usage.UsedCount--
	log.Printf("↩️  [Quota] Released: client=%s used=%d/%d", usage.ClientID, usage.UsedCount, l.limit)
}
