package masterclient

import (
	"time"

	"github.com/smallbiznis/waiter/internal/config"
)

type Config struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	RetryCount int
	RetryDelay time.Duration

	// RateLimit is expressed in requests per minute.
	RateLimit int
	RateBurst int

	CircuitBreakerEnabled bool
	CBMinRequests         int
	CBFailureThreshold    int
	CBHalfOpenMaxSuccess  int
	CBSamplingDuration    time.Duration
	CBRecoveryTime        time.Duration
}

func ConfigFrom(cfg config.Config) Config {
	return Config{
		BaseURL:               cfg.Master.BaseURL,
		APIKey:                cfg.Master.APIKey,
		Timeout:               cfg.Master.Timeout,
		RetryCount:            cfg.Master.RetryCount,
		RetryDelay:            cfg.Master.RetryDelay,
		RateLimit:             cfg.Master.RateLimit,
		RateBurst:             cfg.Master.RateBurst,
		CircuitBreakerEnabled: true,
		CBMinRequests:         10,
		CBFailureThreshold:    5,
		CBHalfOpenMaxSuccess:  2,
		CBSamplingDuration:    time.Minute,
		CBRecoveryTime:        30 * time.Second,
	}
}
