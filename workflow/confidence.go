package workflow

import (
	"fmt"
	"strings"

	"github.com/prestonprussell/ITLicensingBreakdown/config"
	"github.com/prestonprussell/ITLicensingBreakdown/models"
)

// ScoreChargeSummary infers the branch a support charge belongs to from its
// free-text summary. Pure and deterministic: the configured rules are
// evaluated in order and the first keyword hit wins, so the same summary
// always scores the same. Home Office itself never keyword-matches; it is
// only ever the fallback.
func ScoreChargeSummary(chargeSummary string, cfg *config.AllocationConfig) (string, models.ConfidenceLevel, string) {
	summaryLower := strings.ToLower(chargeSummary)

	for _, rule := range cfg.Confidence.Rules {
		if rule.Branch == cfg.HomeOffice {
			continue
		}
		if !strings.Contains(summaryLower, strings.ToLower(rule.Keyword)) {
			continue
		}
		confidence, err := models.ParseConfidenceLevel(rule.Confidence)
		if err != nil {
			continue
		}
		reason := rule.Reason
		if reason == "" {
			reason = fmt.Sprintf("Found branch keyword '%s' in charge summary.", rule.Keyword)
		}
		return rule.Branch, confidence, reason
	}

	return cfg.HomeOffice, models.ConfidenceLow, "No explicit branch found in charge summary; defaulted to Home Office."
}

// needsReviewThreshold resolves the configured review cutoff; anything that
// ranks below it gets flagged. An unparseable configured value falls back to
// reviewing everything below high.
func needsReviewThreshold(cfg *config.AllocationConfig) models.ConfidenceLevel {
	threshold, err := models.ParseConfidenceLevel(cfg.Confidence.ReviewBelow)
	if err != nil {
		return models.ConfidenceHigh
	}
	return threshold
}
