package infra

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	detectdomain "github.com/predikt/arb-agent/business/detect/domain"
	"github.com/predikt/arb-agent/internal/apperror"
	"github.com/predikt/arb-agent/internal/logger"
)

// webhookPayload is the JSON body POSTed to alertWebhookUrl.
type webhookPayload struct {
	Kind       detectdomain.Kind      `json:"kind"`
	Key        string                 `json:"key"`
	DetectedAt time.Time              `json:"detectedAt"`
	Edge       float64                `json:"edge"`
	Confidence float64                `json:"confidence"`
	RiskLevel  detectdomain.RiskLevel `json:"riskLevel"`
}

// WebhookNotifier POSTs a JSON summary of each alerted opportunity to a
// configured URL, rate-limited per key by minInterval independent of the
// monitor's own AlertMinInterval (the two serve different operators: the
// monitor's gate throttles repeat sightings of the same key, this one
// throttles the webhook's own outbound call volume).
type WebhookNotifier struct {
	url         string
	minInterval time.Duration
	client      *http.Client
	log         logger.LoggerInterface

	mu   sync.Mutex
	last map[string]time.Time
}

// NewWebhookNotifier builds a WebhookNotifier posting to url.
func NewWebhookNotifier(url string, minInterval time.Duration, log logger.LoggerInterface) *WebhookNotifier {
	return &WebhookNotifier{
		url:         url,
		minInterval: minInterval,
		client:      &http.Client{Timeout: 5 * time.Second},
		log:         log,
		last:        make(map[string]time.Time),
	}
}

// Notify implements business/arb/app.Notifier.
func (n *WebhookNotifier) Notify(ctx context.Context, opp detectdomain.Opportunity) error {
	if n.throttled(opp.Key) {
		return nil
	}

	body, err := json.Marshal(webhookPayload{
		Kind:       opp.Kind,
		Key:        opp.Key,
		DetectedAt: opp.DetectedAt,
		Edge:       opp.Edge,
		Confidence: opp.Confidence,
		RiskLevel:  opp.RiskLevel,
	})
	if err != nil {
		return apperror.Wrap(err, apperror.CodeInvalidInput, "webhook notifier: marshal payload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return apperror.Wrap(err, apperror.CodeInvalidInput, "webhook notifier: build request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return apperror.External(apperror.CodeExternalServiceError, "webhook notifier: post", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return apperror.New(apperror.CodeExternalServiceError, apperror.WithStatusCode(resp.StatusCode),
			apperror.WithContext("webhook notifier: non-2xx response"))
	}
	return nil
}

func (n *WebhookNotifier) throttled(key string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if t, ok := n.last[key]; ok && time.Since(t) < n.minInterval {
		return true
	}
	n.last[key] = time.Now()
	return false
}

// FanoutNotifier delivers an opportunity to every configured Notifier,
// continuing past individual delivery errors so one broken channel never
// silences the others, and returns the first error it saw. It does not log
// those errors itself.
type FanoutNotifier struct {
	notifiers []notifierAndLog
}

type notifierAndLog struct {
	name string
	n    interface {
		Notify(ctx context.Context, opp detectdomain.Opportunity) error
	}
}

// NewFanoutNotifier builds a FanoutNotifier over console and additional
// channel-specific notifiers (e.g. a webhook).
func NewFanoutNotifier(console *ConsoleReporter, rest ...interface {
	Notify(ctx context.Context, opp detectdomain.Opportunity) error
}) *FanoutNotifier {
	f := &FanoutNotifier{notifiers: []notifierAndLog{{name: "console", n: console}}}
	for _, r := range rest {
		f.notifiers = append(f.notifiers, notifierAndLog{name: "webhook", n: r})
	}
	return f
}

// Notify implements business/arb/app.Notifier.
func (f *FanoutNotifier) Notify(ctx context.Context, opp detectdomain.Opportunity) error {
	var firstErr error
	for _, nl := range f.notifiers {
		if err := nl.n.Notify(ctx, opp); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
