package ratelimit

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
)

// gcraScript runs the check-and-consume atomically on the server clock.
// ARGV: period and emission interval in milliseconds. Returns 1 if limited.
var gcraScript = redis.NewScript(`
local period = tonumber(ARGV[1])
local interval = tonumber(ARGV[2])
local t = redis.call('TIME')
local now = tonumber(t[1]) * 1000 + math.floor(tonumber(t[2]) / 1000)
local tat = tonumber(redis.call('GET', KEYS[1]) or now)
if tat < now then
  tat = now
end
if tat - now <= period - interval then
  local nextTat = tat + interval
  redis.call('SET', KEYS[1], nextTat, 'PX', nextTat - now)
  return 0
end
return 1
`)

// Redis is a GCRA limiter shared by every API instance.
type Redis struct {
	client redis.Scripter
	rate   Rate
	prefix string
}

// NewRedis builds a limiter storing TATs under prefix+key.
func NewRedis(client redis.Scripter, rate Rate, prefix string) (*Redis, error) {
	if err := rate.Validate(); err != nil {
		return nil, err
	}
	if prefix == "" {
		prefix = "ratelimit:"
	}
	return &Redis{client: client, rate: rate, prefix: prefix}, nil
}

func (r *Redis) CheckAndConsume(ctx context.Context, key string) (bool, error) {
	res, err := gcraScript.Run(ctx, r.client, []string{r.prefix + key},
		r.rate.Period.Milliseconds(), r.rate.Interval().Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrBackend, err)
	}
	return res == 1, nil
}
