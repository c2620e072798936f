// Package util provides the shared HTTP clients, caches and logging used by
// every catalog source and stream provider.
package util

import (
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"golang.org/x/net/proxy"
)

// DefaultUserAgent is sent by clients that do not need a specific one
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

var (
	sharedClient     *http.Client
	sharedClientOnce sync.Once

	fastClient     *http.Client
	fastClientOnce sync.Once

	proxyMu  sync.RWMutex
	proxyURL *url.URL
)

// httpClientConfig holds configuration for creating pooled HTTP clients
type httpClientConfig struct {
	timeout             time.Duration
	maxIdleConns        int
	maxIdleConnsPerHost int
	maxConnsPerHost     int
	idleConnTimeout     time.Duration
	tlsHandshakeTimeout time.Duration
	keepAlive           time.Duration
	dialTimeout         time.Duration
}

func defaultConfig() httpClientConfig {
	return httpClientConfig{
		timeout:             30 * time.Second,
		maxIdleConns:        200,
		maxIdleConnsPerHost: 20,
		maxConnsPerHost:     50,
		idleConnTimeout:     120 * time.Second,
		tlsHandshakeTimeout: 5 * time.Second,
		keepAlive:           30 * time.Second,
		dialTimeout:         5 * time.Second,
	}
}

// fastConfig is tuned for catalog APIs answering small JSON payloads
func fastConfig() httpClientConfig {
	return httpClientConfig{
		timeout:             15 * time.Second,
		maxIdleConns:        150,
		maxIdleConnsPerHost: 25,
		maxConnsPerHost:     40,
		idleConnTimeout:     90 * time.Second,
		tlsHandshakeTimeout: 5 * time.Second,
		keepAlive:           30 * time.Second,
		dialTimeout:         5 * time.Second,
	}
}

// SetProxy routes every client created afterwards through the given proxy.
// Supported schemes are http, https, socks5 and socks5h. An empty string
// clears the proxy. Must be called before the first client is requested.
func SetProxy(raw string) error {
	proxyMu.Lock()
	defer proxyMu.Unlock()

	if raw == "" {
		proxyURL = nil
		return nil
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid proxy url: %w", err)
	}
	switch parsed.Scheme {
	case "http", "https", "socks5", "socks5h":
	default:
		return fmt.Errorf("unsupported proxy scheme %q", parsed.Scheme)
	}
	proxyURL = parsed
	return nil
}

func currentProxy() *url.URL {
	proxyMu.RLock()
	defer proxyMu.RUnlock()
	return proxyURL
}

// createTransport creates a pooled transport honoring the configured proxy
func createTransport(cfg httpClientConfig) *http.Transport {
	dialer := &net.Dialer{
		Timeout:   cfg.dialTimeout,
		KeepAlive: cfg.keepAlive,
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		MaxIdleConns:          cfg.maxIdleConns,
		MaxIdleConnsPerHost:   cfg.maxIdleConnsPerHost,
		MaxConnsPerHost:       cfg.maxConnsPerHost,
		IdleConnTimeout:       cfg.idleConnTimeout,
		TLSHandshakeTimeout:   cfg.tlsHandshakeTimeout,
		ExpectContinueTimeout: time.Second,
		ForceAttemptHTTP2:     true,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
	}

	p := currentProxy()
	if p == nil {
		return transport
	}

	switch p.Scheme {
	case "socks5", "socks5h":
		socks, err := proxy.FromURL(p, dialer)
		if err != nil {
			Warn("Failed to create SOCKS dialer, using direct connection", "error", err)
			return transport
		}
		transport.Proxy = nil
		if contextDialer, ok := socks.(proxy.ContextDialer); ok {
			transport.DialContext = contextDialer.DialContext
		}
	default:
		transport.Proxy = http.ProxyURL(p)
	}
	return transport
}

// GetSharedClient returns the shared HTTP client with connection pooling.
func GetSharedClient() *http.Client {
	sharedClientOnce.Do(func() {
		cfg := defaultConfig()
		sharedClient = &http.Client{
			Transport: createTransport(cfg),
			Timeout:   cfg.timeout,
		}
	})
	return sharedClient
}

// GetFastClient returns an HTTP client tuned for quick API requests.
func GetFastClient() *http.Client {
	fastClientOnce.Do(func() {
		cfg := fastConfig()
		fastClient = &http.Client{
			Transport: createTransport(cfg),
			Timeout:   cfg.timeout,
		}
	})
	return fastClient
}

// ResponseCache is a small in-memory TTL cache for API responses
type ResponseCache struct {
	mu      sync.RWMutex
	entries map[string]*cacheEntry
	maxAge  time.Duration
	maxSize int
	stop    chan struct{}
	once    sync.Once
}

type cacheEntry struct {
	data      []byte
	timestamp time.Time
}

// NewResponseCache creates a cache with the given TTL and capacity
func NewResponseCache(maxAge time.Duration, maxSize int) *ResponseCache {
	cache := &ResponseCache{
		entries: make(map[string]*cacheEntry, maxSize),
		maxAge:  maxAge,
		maxSize: maxSize,
		stop:    make(chan struct{}),
	}
	go cache.cleanupLoop()
	return cache
}

// Get retrieves a cached response if it exists and is not expired
func (c *ResponseCache) Get(key string) ([]byte, bool) {
	if c == nil {
		return nil, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, exists := c.entries[key]
	if !exists || time.Since(entry.timestamp) > c.maxAge {
		return nil, false
	}
	return entry.data, true
}

// Set stores a response, evicting the oldest entry when full
func (c *ResponseCache) Set(key string, data []byte) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxSize {
		var oldestKey string
		var oldestTime time.Time
		first := true
		for k, v := range c.entries {
			if first || v.timestamp.Before(oldestTime) {
				oldestKey = k
				oldestTime = v.timestamp
				first = false
			}
		}
		delete(c.entries, oldestKey)
	}

	c.entries[key] = &cacheEntry{data: data, timestamp: time.Now()}
}

// Len returns the number of live entries
func (c *ResponseCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Close stops the background cleanup goroutine
func (c *ResponseCache) Close() {
	c.once.Do(func() { close(c.stop) })
}

func (c *ResponseCache) cleanupLoop() {
	interval := c.maxAge / 2
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.cleanup()
		case <-c.stop:
			return
		}
	}
}

func (c *ResponseCache) cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for key, entry := range c.entries {
		if now.Sub(entry.timestamp) > c.maxAge {
			delete(c.entries, key)
		}
	}
}

var (
	searchCache     *ResponseCache
	searchCacheOnce sync.Once

	detailCache     *ResponseCache
	detailCacheOnce sync.Once
)

// GetSearchCache returns the global catalog search cache (2 minute TTL)
func GetSearchCache() *ResponseCache {
	searchCacheOnce.Do(func() {
		searchCache = NewResponseCache(2*time.Minute, 200)
	})
	return searchCache
}

// GetDetailCache returns the global item detail cache (10 minute TTL)
func GetDetailCache() *ResponseCache {
	detailCacheOnce.Do(func() {
		detailCache = NewResponseCache(10*time.Minute, 100)
	})
	return detailCache
}

// WorkerPool bounds the number of goroutines running at once
type WorkerPool struct {
	semaphore chan struct{}
	wg        sync.WaitGroup
}

// NewWorkerPool creates a pool with the given number of workers
func NewWorkerPool(maxWorkers int) *WorkerPool {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	return &WorkerPool{semaphore: make(chan struct{}, maxWorkers)}
}

// Submit runs task on the pool, blocking while every worker is busy
func (wp *WorkerPool) Submit(task func()) {
	wp.wg.Add(1)
	wp.semaphore <- struct{}{}
	go func() {
		defer func() {
			<-wp.semaphore
			wp.wg.Done()
		}()
		task()
	}()
}

// Wait waits for all submitted tasks to complete
func (wp *WorkerPool) Wait() {
	wp.wg.Wait()
}

// ParallelExecute runs tasks with at most maxWorkers in flight and returns
// once all of them completed.
func ParallelExecute(maxWorkers int, tasks ...func()) {
	if len(tasks) == 0 {
		return
	}

	workers := maxWorkers
	if len(tasks) < workers || workers < 1 {
		workers = len(tasks)
	}

	pool := NewWorkerPool(workers)
	for _, task := range tasks {
		pool.Submit(task)
	}
	pool.Wait()
}
