package config

import (
	"time"
)

const (
	EnvPrefix  = "BIDEXTRACT"
	TraceIdKey = "traceId"
	AppName    = "bidextract"
	AppVersion = "0.3.0"
	ExitOK     = 0
	ExitFailed = 1
	ExitConfig = 2
	DotEnvFile = ".env"

	//bump when the prompt template changes so cached completions are not reused
	PromptTemplateVersion = "v1"

	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"

	PolicyHighestConfidence = "highest_confidence"
	PolicyEarliest          = "earliest"

	//document worker pool
	RequestsPerNewWorkerCount int64 = 2
	MinWorkerCount            int64 = 1
	IdleWorkerTimeout               = 30 * time.Second
	BufferLimit                     = 100

	//loader
	PageExtractTimeout = 10 * time.Second

	//ping before a run
	PreflightTimeout = 15 * time.Second

	//HTTP run API
	ServerListenAddr = ":8080"
	MaxPathsPerRun   = 500

	//HTTP server timeouts
	ReadTimeout            = 5 * time.Second
	WriteTimeout           = 10 * time.Second
	IdleTimeout            = 120 * time.Second
	ShutdownContextTimeout = 10 * time.Second

	//per-IP limit on the HTTP server
	RateLimitPerSecond      = 10
	BurstRateLimitPerSecond = 20

	MaxIdleConns        = 50
	MaxIdleConnsPerHost = 25
	IdleConnTimeout     = 60 * time.Second

	//redis completion cache
	RedisCompletionStore    = 2
	RedisCompletionStoreTTL = 7 * 24 * time.Hour

	//redis run job store for the HTTP API
	RedisJobStore    = 1
	RedisJobStoreTTL = 24 * time.Hour

	RedisDialTimeout = 5 * time.Second
)
