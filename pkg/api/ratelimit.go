package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	mgin "github.com/ulule/limiter/v3/drivers/middleware/gin"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"
)

const limiterPrefix = "sosradar_limiter"

// NewLimiterStore 限流存储，多副本部署时使用 redis 共享计数
func NewLimiterStore(kind string, client redis.UniversalClient) (limiter.Store, error) {
	switch kind {
	case "", "memory":
		return memory.NewStoreWithOptions(limiter.StoreOptions{Prefix: limiterPrefix}), nil
	case "redis":
		if client == nil {
			return nil, fmt.Errorf("redis 限流存储需要 redis 客户端")
		}
		store, err := sredis.NewStoreWithOptions(client, limiter.StoreOptions{Prefix: limiterPrefix})
		if err != nil {
			return nil, fmt.Errorf("创建 redis 限流存储失败: %w", err)
		}
		return store, nil
	}
	return nil, fmt.Errorf("不支持的限流存储: %q", kind)
}

// RateLimit 按用户限流，未认证时按IP
func RateLimit(rate string, store limiter.Store) (gin.HandlerFunc, error) {
	r, err := limiter.NewRateFromFormatted(rate)
	if err != nil {
		return nil, fmt.Errorf("解析限流速率 %q 失败: %w", rate, err)
	}
	lim := limiter.New(store, r)

	return mgin.NewMiddleware(lim,
		mgin.WithKeyGetter(func(c *gin.Context) string {
			if userID := c.GetString("user_id"); userID != "" {
				return "user:" + userID
			}
			return "ip:" + c.ClientIP()
		}),
		mgin.WithLimitReachedHandler(func(c *gin.Context) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Too many requests"})
		}),
	), nil
}
