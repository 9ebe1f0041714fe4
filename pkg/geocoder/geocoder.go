// Package geocoder 反向地理编码，将坐标转换为可读地址
package geocoder

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

// Geocoder 反向地理编码
type Geocoder interface {
	// Reverse 无法解析时返回空字符串和 nil
	Reverse(ctx context.Context, lat, lon float64) (string, error)
}

// Options Nominatim 客户端参数
type Options struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
	CacheTTL  time.Duration
}

// NominatimClient 兼容 OpenStreetMap Nominatim 的 HTTP 客户端，结果按坐标缓存
type NominatimClient struct {
	httpClient *resty.Client
	cache      *gocache.Cache
	ttl        time.Duration
	logger     *zap.Logger
}

type reverseResponse struct {
	DisplayName string `json:"display_name"`
	Error       string `json:"error"`
}

// NewNominatim 创建 Nominatim 客户端
func NewNominatim(opts Options, logger *zap.Logger) *NominatimClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	client := resty.New().
		SetBaseURL(opts.BaseURL).
		SetTimeout(opts.Timeout).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", opts.UserAgent)

	ttl := opts.CacheTTL
	if ttl <= 0 {
		ttl = time.Hour
	}

	return &NominatimClient{
		httpClient: client,
		cache:      gocache.New(ttl, 2*ttl),
		ttl:        ttl,
		logger:     logger,
	}
}

// Reverse 查询坐标对应的地址
func (n *NominatimClient) Reverse(ctx context.Context, lat, lon float64) (string, error) {
	key := cacheKey(lat, lon)
	if v, found := n.cache.Get(key); found {
		return v.(string), nil
	}

	var result reverseResponse
	resp, err := n.httpClient.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"format": "jsonv2",
			"lat":    fmt.Sprintf("%f", lat),
			"lon":    fmt.Sprintf("%f", lon),
		}).
		SetResult(&result).
		Get("/reverse")
	if err != nil {
		return "", fmt.Errorf("调用地理编码服务失败: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return "", fmt.Errorf("地理编码服务返回状态码: %d", resp.StatusCode())
	}
	if result.Error != "" {
		// 海上等无地址的坐标
		n.logger.Debug("地理编码无结果",
			zap.Float64("latitude", lat),
			zap.Float64("longitude", lon),
			zap.String("reason", result.Error),
		)
		return "", nil
	}

	n.cache.Set(key, result.DisplayName, n.ttl)
	return result.DisplayName, nil
}

// cacheKey 精确到小数点后5位（约1米）
func cacheKey(lat, lon float64) string {
	return fmt.Sprintf("%.5f,%.5f", lat, lon)
}

// Nop 不做地理编码
type Nop struct{}

func (Nop) Reverse(context.Context, float64, float64) (string, error) {
	return "", nil
}
