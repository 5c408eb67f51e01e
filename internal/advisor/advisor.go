// Package advisor talks to the external policy-advisor service (spec §4.7):
// an out-of-process model that turns a symbol's DeterministicState and
// position into a suggested AdvisorPolicy. The contract is lenient — the
// service is allowed to wrap its JSON in markdown fences, leave a trailing
// comma, or drop a closing brace — so the response is repaired before
// unmarshaling.
//
// The HTTP client itself follows the teacher's single-resty-client
// convention (see internal/exchange/rest.go); the lenient-JSON repair and
// rate limiting are grounded on
// other_examples/dbca0aa9_koshedutech-binance-trading-app's llm-analyzer.go
// (stripMarkdownCodeBlock, AnalyzerConfig's timeout/retry/rate-limit shape,
// and the lastReset/requestCount per-minute counter).
package advisor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"orderflow-core/internal/config"
	"orderflow-core/pkg/types"
)

var codeFenceRe = regexp.MustCompile("(?s)^```(?:json)?\\s*\\n?(.*?)\\n?```$")

// stripMarkdownCodeBlock removes a surrounding ```json ... ``` or ``` ... ```
// fence, if present.
func stripMarkdownCodeBlock(response string) string {
	response = strings.TrimSpace(response)
	if matches := codeFenceRe.FindStringSubmatch(response); len(matches) > 1 {
		return strings.TrimSpace(matches[1])
	}
	return response
}

// stripTrailingCommas removes a comma that directly precedes a closing
// brace or bracket, which `encoding/json` otherwise rejects outright.
var trailingCommaRe = regexp.MustCompile(`,\s*([}\]])`)

func stripTrailingCommas(s string) string {
	return trailingCommaRe.ReplaceAllString(s, "$1")
}

// balanceBraces appends any closing braces the response is missing, the
// last resort for a response truncated mid-object. Square brackets are not
// counted or closed.
func balanceBraces(s string) string {
	var open, close int
	for _, r := range s {
		switch r {
		case '{':
			open++
		case '}':
			close++
		}
	}
	for i := 0; i < open-close; i++ {
		s += "}"
	}
	return s
}

// repairJSON applies the lenient-parsing pipeline in order: strip fences,
// strip trailing commas, balance unclosed braces.
func repairJSON(raw string) string {
	s := stripMarkdownCodeBlock(raw)
	s = stripTrailingCommas(s)
	s = balanceBraces(s)
	return s
}

// PolicyAdvisor is a bounded-timeout HTTP client for the external advisor
// contract.
type PolicyAdvisor struct {
	http   *resty.Client
	cfg    config.AdvisorConfig
	logger *slog.Logger

	mu           sync.Mutex
	requestCount int
	windowStart  time.Time
}

// NewPolicyAdvisor builds a PolicyAdvisor against cfg.BaseURL, bounded to
// cfg.TimeoutMs (default 2200ms per spec §9), retrying up to cfg.MaxRetries
// times after the first attempt.
func NewPolicyAdvisor(cfg config.AdvisorConfig, logger *slog.Logger) *PolicyAdvisor {
	timeout := time.Duration(cfg.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 2200 * time.Millisecond
	}
	h := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(timeout).
		SetRetryCount(cfg.MaxRetries)
	return &PolicyAdvisor{http: h, cfg: cfg, logger: logger.With("component", "advisor")}
}

// ErrRateLimited is returned when the advisor's per-minute request budget
// is exhausted.
var ErrRateLimited = fmt.Errorf("advisor: rate limit exceeded")

func (p *PolicyAdvisor) checkRateLimit() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if time.Since(p.windowStart) > time.Minute {
		p.requestCount = 0
		p.windowStart = time.Now()
	}
	if p.cfg.RateLimitPerMin > 0 && p.requestCount >= p.cfg.RateLimitPerMin {
		return false
	}
	p.requestCount++
	return true
}

// Advise requests a policy for req and returns a neutral HOLD fallback
// policy (with zero confidence) on any error — the orchestrator treats a
// failed advisor call as "no opinion", never as a crash.
func (p *PolicyAdvisor) Advise(ctx context.Context, req types.AdvisorRequest) (types.AdvisorPolicy, error) {
	fallback := types.AdvisorPolicy{Intent: types.IntentHold, Side: types.Flat, RiskMultiplier: 1, Confidence: 0}

	if !p.cfg.Enabled {
		return fallback, nil
	}
	if !p.checkRateLimit() {
		return fallback, ErrRateLimited
	}

	var raw struct {
		Response string `json:"response"`
	}
	resp, err := p.http.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&raw).
		Post("/advise")
	if err != nil {
		p.logger.Warn("advisor request failed", "symbol", req.Symbol, "error", err)
		return fallback, fmt.Errorf("advisor request: %w", err)
	}
	if resp.StatusCode() >= 400 {
		p.logger.Warn("advisor returned error status", "symbol", req.Symbol, "status", resp.StatusCode())
		return fallback, fmt.Errorf("advisor status %d", resp.StatusCode())
	}

	var policy types.AdvisorPolicy
	if err := json.Unmarshal([]byte(repairJSON(raw.Response)), &policy); err != nil {
		p.logger.Warn("advisor response unparseable after repair", "symbol", req.Symbol, "error", err)
		return fallback, fmt.Errorf("parse advisor response: %w", err)
	}
	return policy, nil
}
