// Package antispam decides whether newly-arriving content should be held for
// moderation. The gate is a pure decision function over the author's trust
// state, the content text, and per-community settings; cache-backed checks
// (rate limit, burst) fail open so a degraded redis never stalls ingestion.
package antispam

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/barazo-forum/barazo-api-sub003/directory"
	"github.com/barazo-forum/barazo-api-sub003/models"
)

// window set names shared by the rate and burst checks
const writeWindowName = "writes"

type Reason struct {
	Reason   string `json:"reason"`
	Evidence string `json:"evidence,omitempty"`
}

type Decision struct {
	Held    bool
	Reasons []Reason
}

func (d *Decision) add(reason, evidence string) {
	d.Held = true
	d.Reasons = append(d.Reasons, Reason{Reason: reason, Evidence: evidence})
	gateReasonCounter.WithLabelValues(reason).Inc()
}

// CheckInput carries everything the gate needs about one piece of content.
type CheckInput struct {
	AuthorDid         string
	Community         string
	ContentType       string
	Title             string
	Content           string
	Role              string
	TrustStatus       directory.TrustStatus
	IsTrusted         bool
	ApprovedPostCount int64
}

type Gate struct {
	Logger   *slog.Logger
	Settings *SettingsLoader
	Windows  WindowStore
}

func NewGate(settings *SettingsLoader, windows WindowStore, logger *slog.Logger) *Gate {
	return &Gate{
		Logger:   logger,
		Settings: settings,
		Windows:  windows,
	}
}

// Evaluate runs every check and returns the combined decision. Trusted
// accounts and moderators bypass all rules.
func (g *Gate) Evaluate(ctx context.Context, in CheckInput) (*Decision, error) {
	if in.IsTrusted || in.Role == models.RoleModerator || in.Role == models.RoleAdmin {
		gateBypassCounter.Inc()
		return &Decision{}, nil
	}

	settings, err := g.Settings.Load(ctx, in.Community)
	if err != nil {
		return nil, fmt.Errorf("loading gate settings: %w", err)
	}

	logger := g.Logger.With("did", in.AuthorDid, "community", in.Community, "contentType", in.ContentType)
	decision := &Decision{}
	text := in.Title + "\n" + in.Content

	if hits := NewWordFilter(settings.BlockedWords).Match(text); len(hits) > 0 {
		decision.add(models.ReasonWordFilter, strings.Join(hits, ","))
	}

	if settings.HoldLinks {
		if m, ok := ContainsURL(text); ok {
			decision.add(models.ReasonLink, m)
		}
	}

	g.checkWriteWindows(ctx, logger, in, settings, decision)

	if settings.FirstPostQueueCount > 0 && in.ApprovedPostCount < settings.FirstPostQueueCount {
		decision.add(models.ReasonFirstPost, fmt.Sprintf("approved_posts=%d", in.ApprovedPostCount))
	}

	if decision.Held {
		gateHeldCounter.Inc()
	} else {
		gateAllowedCounter.Inc()
	}
	return decision, nil
}

// checkWriteWindows records this write and applies the rate-limit and burst
// checks against the same sliding set. Window store errors are collapsed to
// "not limited" at this call site; a degraded redis must not stall the
// ingestion loop.
func (g *Gate) checkWriteWindows(ctx context.Context, logger *slog.Logger, in CheckInput, settings *Settings, decision *Decision) {
	windowVal := in.Community + "/" + in.AuthorDid

	if err := g.Windows.Add(ctx, writeWindowName, windowVal, time.Now()); err != nil {
		logger.Warn("window store unavailable, skipping rate checks", "err", err)
		gateFailOpenCounter.Inc()
		return
	}

	rateMax := settings.RateLimitMax
	if in.TrustStatus == directory.TrustStatusNew {
		rateMax = settings.NewAccountRateLimitMax
	}

	count, err := g.Windows.Count(ctx, writeWindowName, windowVal, settings.RateLimitWindow)
	if err != nil {
		logger.Warn("rate-limit count failed, treating as not limited", "err", err)
		gateFailOpenCounter.Inc()
	} else if rateMax > 0 && count > rateMax {
		decision.add(models.ReasonRateLimit, fmt.Sprintf("%d writes in %s", count, settings.RateLimitWindow))
	}

	count, err = g.Windows.Count(ctx, writeWindowName, windowVal, settings.BurstWindow)
	if err != nil {
		logger.Warn("burst count failed, treating as not limited", "err", err)
		gateFailOpenCounter.Inc()
	} else if settings.BurstMax > 0 && count > settings.BurstMax {
		decision.add(models.ReasonBurst, fmt.Sprintf("%d writes in %s", count, settings.BurstWindow))
	}
}
