package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/berfenger/sensorhub/internal/core/domain"
	"github.com/berfenger/sensorhub/internal/storage"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
)

const (
	ConfigFile = "/settings/webhooks.json"

	// ResultFail is the response reported for a non 2xx answer.
	ResultFail = "fail"
)

// Webhook is an outgoing HTTP endpoint with optional custom headers.
type Webhook struct {
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers,omitempty"`
}

type hookListing struct {
	PositionID domain.PositionID `json:"positionID"`
	Webhook
}

type hooksConfig struct {
	Hooks []Webhook `json:"hooks"`
}

type hooksListing struct {
	Hooks []hookListing `json:"hooks"`
}

// Result is what a fired webhook answered.
type Result struct {
	Code     int    `json:"code"`
	Response string `json:"response"`
}

// Manager keeps the configured webhooks, addressed by position like devices.
type Manager struct {
	mu     sync.RWMutex
	hooks  []Webhook
	store  *storage.Store
	client *retryablehttp.Client
	logger *zap.Logger
}

func NewManager(store *storage.Store, timeout time.Duration, retries int, logger *zap.Logger) *Manager {
	logger = logger.With(zap.String("component", "webhooks"))
	client := retryablehttp.NewClient()
	client.HTTPClient.Timeout = timeout
	client.RetryMax = retries
	client.RetryWaitMin = 100 * time.Millisecond
	client.RetryWaitMax = time.Second
	client.Logger = leveledLogger{logger.Sugar()}
	// hand back the last response once retries are used up
	client.ErrorHandler = retryablehttp.PassthroughErrorHandler
	return &Manager{
		store:  store,
		client: client,
		logger: logger,
	}
}

// Begin loads the stored webhooks. Nothing stored yet is not an error.
func (m *Manager) Begin() error {
	if !m.store.Exists(ConfigFile) {
		return nil
	}
	config, err := m.store.Read(ConfigFile)
	if err != nil {
		return err
	}
	return m.Update(config)
}

// Update replaces the webhooks in use with the "hooks" array of config.
func (m *Manager) Update(config string) error {
	hooks, err := parseHooks(config)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.hooks = hooks
	m.mu.Unlock()
	m.logger.Info("webhooks@update", zap.Int("hooks", len(hooks)))
	return nil
}

// Save persists the webhooks in use.
func (m *Manager) Save() error {
	m.mu.RLock()
	data, err := json.Marshal(hooksConfig{Hooks: m.hooks})
	m.mu.RUnlock()
	if err != nil {
		return err
	}
	return m.store.Write(ConfigFile, string(data))
}

// Describe returns the webhooks with their positions.
func (m *Manager) Describe() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	listing := hooksListing{Hooks: make([]hookListing, len(m.hooks))}
	for i, h := range m.hooks {
		listing.Hooks[i] = hookListing{PositionID: domain.PositionID(i), Webhook: h}
	}
	data, err := json.Marshal(listing)
	if err != nil {
		return `{"hooks":[]}`
	}
	return string(data)
}

// FireGet sends a GET request with params as query string.
func (m *Manager) FireGet(ctx context.Context, id domain.PositionID, params map[string]string) (Result, error) {
	hook, err := m.get(id)
	if err != nil {
		return Result{}, err
	}
	target := hook.URL
	if len(params) > 0 {
		sep := "?"
		if strings.Contains(target, "?") {
			sep = "&"
		}
		target += sep + encodeParams(params).Encode()
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return Result{}, fmt.Errorf("webhook %d: %w", id, err)
	}
	return m.do(id, hook, req)
}

// FirePost sends params url encoded in a POST body.
func (m *Manager) FirePost(ctx context.Context, id domain.PositionID, params map[string]string) (Result, error) {
	hook, err := m.get(id)
	if err != nil {
		return Result{}, err
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, hook.URL, []byte(encodeParams(params).Encode()))
	if err != nil {
		return Result{}, fmt.Errorf("webhook %d: %w", id, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return m.do(id, hook, req)
}

// FirePostJSON sends body as a JSON POST body.
func (m *Manager) FirePostJSON(ctx context.Context, id domain.PositionID, body string) (Result, error) {
	hook, err := m.get(id)
	if err != nil {
		return Result{}, err
	}
	if !json.Valid([]byte(body)) {
		return Result{}, fmt.Errorf("%w: webhook body is not JSON", domain.ErrDeserializationFailed)
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, hook.URL, []byte(body))
	if err != nil {
		return Result{}, fmt.Errorf("webhook %d: %w", id, err)
	}
	req.Header.Set("Content-Type", "application/json")
	return m.do(id, hook, req)
}

func (m *Manager) get(id domain.PositionID) (Webhook, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if id < 0 || int(id) >= len(m.hooks) {
		return Webhook{}, fmt.Errorf("webhook %d of %d: %w", id, len(m.hooks), domain.ErrOutOfRange)
	}
	return m.hooks[id], nil
}

func (m *Manager) do(id domain.PositionID, hook Webhook, req *retryablehttp.Request) (Result, error) {
	for name, value := range hook.Headers {
		req.Header.Set(name, value)
	}
	resp, err := m.client.Do(req)
	if err != nil {
		m.logger.Warn("webhooks@fire failed", zap.Int("webhook", int(id)), zap.Error(err))
		return Result{}, fmt.Errorf("webhook %d: %w", id, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		m.logger.Warn("webhooks@fire rejected", zap.Int("webhook", int(id)), zap.Int("code", resp.StatusCode))
		return Result{Code: resp.StatusCode, Response: ResultFail}, nil
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, fmt.Errorf("webhook %d: %w", id, err)
	}
	return Result{Code: resp.StatusCode, Response: string(body)}, nil
}

func parseHooks(config string) ([]Webhook, error) {
	var parsed hooksConfig
	if err := json.Unmarshal([]byte(config), &parsed); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrDeserializationFailed, err)
	}
	for i, h := range parsed.Hooks {
		u, err := url.Parse(h.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return nil, fmt.Errorf("%w: hook %d has bad url %q", domain.ErrDeserializationFailed, i, h.URL)
		}
	}
	return parsed.Hooks, nil
}

// ParseParams decodes a flat JSON object into string parameters.
func ParseParams(params string) (map[string]string, error) {
	var raw map[string]any
	if err := json.Unmarshal([]byte(params), &raw); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrDeserializationFailed, err)
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		switch v := v.(type) {
		case string:
			out[k] = v
		default:
			data, _ := json.Marshal(v)
			out[k] = string(data)
		}
	}
	return out, nil
}

func encodeParams(params map[string]string) url.Values {
	values := url.Values{}
	for k, v := range params {
		values.Set(k, v)
	}
	return values
}

// leveledLogger routes retryablehttp logs to zap.
type leveledLogger struct {
	sugar *zap.SugaredLogger
}

func (l leveledLogger) Error(msg string, keysAndValues ...any) { l.sugar.Errorw(msg, keysAndValues...) }
func (l leveledLogger) Info(msg string, keysAndValues ...any)  { l.sugar.Debugw(msg, keysAndValues...) }
func (l leveledLogger) Debug(msg string, keysAndValues ...any) { l.sugar.Debugw(msg, keysAndValues...) }
func (l leveledLogger) Warn(msg string, keysAndValues ...any)  { l.sugar.Warnw(msg, keysAndValues...) }

// ensure interface compliance
var _ retryablehttp.LeveledLogger = leveledLogger{}
