package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisPipeline batches write commands onto a go-redis pipeliner. The
// queued commands only hit the wire on Exec, which surfaces the first
// per-command error.
type RedisPipeline struct {
	pipe redis.Pipeliner
}

func (p *RedisPipeline) Set(key string, value []byte, ttl time.Duration) {
	p.pipe.Set(context.Background(), key, value, ttl)
}

func (p *RedisPipeline) ZAdd(key string, score float64, member []byte) {
	p.pipe.ZAdd(context.Background(), key, redis.Z{
		Score:  score,
		Member: member,
	})
}

func (p *RedisPipeline) ZRemRangeByRank(key string, start, stop int64) {
	p.pipe.ZRemRangeByRank(context.Background(), key, start, stop)
}

func (p *RedisPipeline) Expire(key string, ttl time.Duration) {
	p.pipe.Expire(context.Background(), key, ttl)
}

func (p *RedisPipeline) Exec(ctx context.Context) error {
	cmds, err := p.pipe.Exec(ctx)
	if err != nil {
		return NewCacheError("pipeline", "", ErrCodeConnectionFailed, err)
	}
	for _, cmd := range cmds {
		if cmdErr := cmd.Err(); cmdErr != nil && cmdErr != redis.Nil {
			return NewCacheError("pipeline", cmd.Name(), ErrCodeConnectionFailed, cmdErr)
		}
	}
	return nil
}

func (p *RedisPipeline) Discard() {
	p.pipe.Discard()
}

var _ Pipeline = (*RedisPipeline)(nil)
