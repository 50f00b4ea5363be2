package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"strata.evalgo.org/common"
	"strata.evalgo.org/hooks"
)

// Config tunes the delivery engine.
type Config struct {
	// MaxRetries is the attempt ceiling per delivery chain.
	MaxRetries int

	// InitialDelay is the backoff before attempt 2.
	InitialDelay time.Duration

	// Multiplier is the exponential backoff factor.
	Multiplier float64

	// MaxDelay caps the per-attempt backoff.
	MaxDelay time.Duration

	// RequestTimeout bounds each HTTP call.
	RequestTimeout time.Duration

	// Workers is the delivery worker count.
	Workers int

	// ResponseExcerptBytes bounds the response body stored per delivery.
	ResponseExcerptBytes int
}

func (c Config) withDefaults() Config {
	if c.MaxRetries == 0 {
		c.MaxRetries = 5
	}
	if c.InitialDelay == 0 {
		c.InitialDelay = time.Second
	}
	if c.Multiplier == 0 {
		c.Multiplier = 2
	}
	if c.MaxDelay == 0 {
		c.MaxDelay = 5 * time.Minute
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = 10 * time.Second
	}
	if c.Workers == 0 {
		c.Workers = 4
	}
	if c.ResponseExcerptBytes == 0 {
		c.ResponseExcerptBytes = 1024
	}
	return c
}

// Engine delivers webhook payloads with retries. One engine serves the whole
// process; the delivery queue is process-local, with pending retries
// journaled to bbolt.
type Engine struct {
	store   Store
	journal *Journal
	hooks   *hooks.Registry
	client  *http.Client
	cfg     Config
	logger  *logrus.Logger

	jobs chan job
	stop chan struct{}
	wg   sync.WaitGroup

	mu     sync.Mutex
	timers map[string]*time.Timer
}

// NewEngine creates a delivery engine. Call Start before enqueueing.
func NewEngine(store Store, journal *Journal, registry *hooks.Registry, cfg Config) *Engine {
	cfg = cfg.withDefaults()
	return &Engine{
		store:   store,
		journal: journal,
		hooks:   registry,
		client:  &http.Client{Timeout: cfg.RequestTimeout},
		cfg:     cfg,
		logger:  common.Logger,
		jobs:    make(chan job, 64),
		stop:    make(chan struct{}),
		timers:  make(map[string]*time.Timer),
	}
}

// Start resumes journaled retries and launches the delivery workers.
func (e *Engine) Start() error {
	pending, err := e.journal.Pending()
	if err != nil {
		return err
	}
	for _, j := range pending {
		e.schedule(j)
	}
	if len(pending) > 0 {
		e.logger.Infof("webhook engine resumed %d journaled deliveries", len(pending))
	}

	for i := 0; i < e.cfg.Workers; i++ {
		e.wg.Add(1)
		go e.worker()
	}
	return nil
}

// Stop halts the workers and cancels scheduled retries. Journal entries stay
// on disk and resume on the next Start.
func (e *Engine) Stop() {
	close(e.stop)

	e.mu.Lock()
	for _, t := range e.timers {
		t.Stop()
	}
	e.timers = make(map[string]*time.Timer)
	e.mu.Unlock()

	e.wg.Wait()
}

// Enqueue fans an event out to every active subscribed webhook, starting a
// fresh delivery chain per webhook.
func (e *Engine) Enqueue(ctx context.Context, event string, data interface{}) error {
	webhooks, err := e.store.ActiveWebhooksForEvent(ctx, event)
	if err != nil {
		return err
	}
	if len(webhooks) == 0 {
		return nil
	}

	body, err := json.Marshal(Payload{
		Event:     event,
		Timestamp: time.Now().Unix(),
		Data:      data,
	})
	if err != nil {
		return err
	}

	for _, w := range webhooks {
		j := job{
			ChainID:   uuid.NewString(),
			WebhookID: w.ID,
			Event:     event,
			Body:      body,
			Attempt:   1,
			Due:       time.Now(),
		}
		if err := e.journal.Put(j); err != nil {
			return err
		}
		e.schedule(j)
	}
	return nil
}

// RegisterContentHooks subscribes the engine to the given action events with
// low priority, so domain handlers observe events before deliveries start.
func (e *Engine) RegisterContentHooks(registry *hooks.Registry, events []string) {
	for _, event := range events {
		registry.On(event, func(ctx context.Context, event string, payload hooks.Payload) error {
			return e.Enqueue(ctx, event, map[string]interface{}(payload))
		}, hooks.Options{Priority: hooks.PriorityLow})
	}
}

// Delay returns the backoff before the attempt following attempt n:
// initialDelay × multiplier^(n-1), capped at MaxDelay.
func (e *Engine) Delay(attempt int) time.Duration {
	d := time.Duration(float64(e.cfg.InitialDelay) * math.Pow(e.cfg.Multiplier, float64(attempt-1)))
	if d > e.cfg.MaxDelay {
		return e.cfg.MaxDelay
	}
	return d
}

func (e *Engine) schedule(j job) {
	delay := time.Until(j.Due)
	if delay <= 0 {
		e.dispatch(j)
		return
	}

	e.mu.Lock()
	e.timers[j.ChainID] = time.AfterFunc(delay, func() {
		e.mu.Lock()
		delete(e.timers, j.ChainID)
		e.mu.Unlock()
		e.dispatch(j)
	})
	e.mu.Unlock()
}

func (e *Engine) dispatch(j job) {
	select {
	case e.jobs <- j:
	case <-e.stop:
	}
}

func (e *Engine) worker() {
	defer e.wg.Done()
	for {
		select {
		case <-e.stop:
			return
		case j := <-e.jobs:
			e.deliver(j)
		}
	}
}

// deliver performs one attempt of one chain and decides its follow-up.
func (e *Engine) deliver(j job) {
	ctx := context.Background()

	hook, err := e.store.GetWebhook(ctx, j.WebhookID)
	if err != nil || !hook.IsActive {
		// subscription vanished or was disabled mid-chain
		if err := e.journal.Delete(j.ChainID); err != nil {
			e.logger.Warn("failed to drop journal entry: ", err)
		}
		return
	}

	body := e.filterBody(ctx, hook, j)

	now := time.Now().UTC()
	d := &Delivery{
		ID:        uuid.NewString(),
		WebhookID: hook.ID,
		Event:     j.Event,
		Attempt:   j.Attempt,
		CreatedAt: now,
	}
	if err := e.store.InsertDelivery(ctx, d); err != nil {
		e.logger.Error("failed to record delivery attempt: ", err)
		return
	}

	statusCode, respBody, postErr := e.post(ctx, hook, body)

	completed := time.Now().UTC()
	d.StatusCode = statusCode
	d.Success = statusCode >= 200 && statusCode < 300
	d.Duration = completed.Sub(now).Milliseconds()
	d.Response = common.Truncate(respBody, e.cfg.ResponseExcerptBytes)
	d.CompletedAt = &completed
	if postErr != nil {
		d.Error = postErr.Error()
	}
	if err := e.store.CompleteDelivery(ctx, d); err != nil {
		e.logger.Error("failed to complete delivery row: ", err)
	}

	log := e.logger.WithFields(logrus.Fields{
		"webhook": hook.ID,
		"event":   j.Event,
		"attempt": j.Attempt,
		"status":  statusCode,
		"sent":    humanize.Bytes(uint64(len(body))),
	})

	if d.Success {
		log.Info("webhook delivered")
		e.finish(ctx, hook, j, d, true)
		return
	}

	category, retry := Classify(postErr, statusCode)
	log = log.WithField("category", category)

	if retry && j.Attempt < e.cfg.MaxRetries {
		next := j
		next.Attempt = j.Attempt + 1
		next.Due = time.Now().Add(e.Delay(j.Attempt))
		if err := e.journal.Put(next); err != nil {
			e.logger.Error("failed to journal retry: ", err)
		}
		log.Warnf("webhook delivery failed, retrying in %s", time.Until(next.Due).Round(time.Millisecond))
		e.schedule(next)
		return
	}

	log.Error("webhook delivery failed terminally")
	e.finish(ctx, hook, j, d, false)
}

// finish ends a chain: drops its journal entry and fires webhook:afterSend
// with the terminal outcome.
func (e *Engine) finish(ctx context.Context, hook *Webhook, j job, d *Delivery, success bool) {
	if err := e.journal.Delete(j.ChainID); err != nil {
		e.logger.Warn("failed to drop journal entry: ", err)
	}
	result := e.hooks.Emit(ctx, EventAfterSend, hooks.Payload{
		"webhook": hook.ID,
		"event":   j.Event,
		"attempt": d.Attempt,
		"success": success,
	}, hooks.EmitOptions{})
	for _, err := range result.Errors {
		e.logger.WithField("event", EventAfterSend).Warn("action hook failed: ", err)
	}
}

// filterBody lets webhook:beforeSend filters replace the outgoing payload.
func (e *Engine) filterBody(ctx context.Context, hook *Webhook, j job) []byte {
	filtered, result := e.hooks.Filter(ctx, EventBeforeSend, hooks.Payload{
		"webhook": hook.ID,
		"event":   j.Event,
		"body":    string(j.Body),
	}, hooks.EmitOptions{})
	for _, err := range result.Errors {
		e.logger.WithField("event", EventBeforeSend).Warn("filter hook failed: ", err)
	}
	if s, ok := filtered["body"].(string); ok {
		return []byte(s)
	}
	return j.Body
}

// post performs the HTTP call and returns status, body excerpt source and
// transport error.
func (e *Engine) post(ctx context.Context, hook *Webhook, body []byte) (int, string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.URL, bytes.NewReader(body))
	if err != nil {
		return 0, "", err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range hook.Headers {
		req.Header.Set(k, v)
	}
	if hook.Secret != "" {
		req.Header.Set(SignatureHeader, Sign(hook.Secret, body))
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, int64(e.cfg.ResponseExcerptBytes)+1))
	return resp.StatusCode, string(excerpt), nil
}
