package engine

import "strings"

// Verdict is the classification of a lightweight fetch.
type Verdict string

const (
	// VerdictSufficient means the body carries product signals and no
	// challenge; it is used as-is.
	VerdictSufficient Verdict = "sufficient"

	// VerdictBlocked covers transport failures and non-2xx statuses.
	VerdictBlocked Verdict = "blocked"

	// VerdictChallenged means an anti-bot interstitial was served.
	VerdictChallenged Verdict = "challenged"

	// VerdictInsufficient means a 2xx body without any product signal.
	VerdictInsufficient Verdict = "insufficient"
)

// Escalate reports whether the verdict calls for a rendered fetch.
func (v Verdict) Escalate() bool {
	return v != VerdictSufficient
}

// Classifier decides whether a lightweight response can be used directly.
type Classifier struct {
	challengeMarkers []string
	productMarkers   []string // lowercased
}

// NewClassifier builds a classifier. Challenge markers match exactly;
// product markers match case-insensitively.
func NewClassifier(challengeMarkers, productMarkers []string) *Classifier {
	lowered := make([]string, 0, len(productMarkers))
	for _, m := range productMarkers {
		if m = strings.TrimSpace(m); m != "" {
			lowered = append(lowered, strings.ToLower(m))
		}
	}
	return &Classifier{challengeMarkers: challengeMarkers, productMarkers: lowered}
}

// Classify applies, in order: transport/status failure, challenge marker,
// missing product markers.
func (c *Classifier) Classify(res *FetchResult, err error) Verdict {
	if err != nil || res == nil {
		return VerdictBlocked
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return VerdictBlocked
	}
	for _, m := range c.challengeMarkers {
		if m != "" && strings.Contains(res.HTML, m) {
			return VerdictChallenged
		}
	}
	if !isHTMLContentType(res.ContentType) {
		return VerdictInsufficient
	}
	body := strings.ToLower(res.HTML)
	for _, m := range c.productMarkers {
		if strings.Contains(body, m) {
			return VerdictSufficient
		}
	}
	return VerdictInsufficient
}
