// Package policy implements the Strategy pattern for classification rule profiles.
// Each profile supplies the domain and keyword tables the classifier runs on.
package policy

import (
	"strings"

	"github.com/eliteGoblin/focusd/attnmon/internal/domain"
)

// DefaultProfileID is the built-in profile used when none is configured.
const DefaultProfileID = "study"

// RuleProfile defines the strategy interface for a set of classification rules.
type RuleProfile interface {
	// ID returns unique identifier (e.g., "study", "custom").
	ID() string

	// Name returns human-readable name for display.
	Name() string

	// Rules returns the domain and keyword tables.
	Rules() domain.ClassificationRules
}

// ToRules converts a RuleProfile to normalized domain rules:
// entries are trimmed, lower-cased and de-duplicated, empty entries dropped.
func ToRules(p RuleProfile) domain.ClassificationRules {
	r := p.Rules()
	return domain.ClassificationRules{
		SelfProcessNames:        normalize(r.SelfProcessNames),
		BrowserProcesses:        normalize(r.BrowserProcesses),
		WhitelistDomains:        normalizeDomains(r.WhitelistDomains),
		BlacklistDomains:        normalizeDomains(r.BlacklistDomains),
		SearchEngineDomains:     normalizeDomains(r.SearchEngineDomains),
		VideoDomains:            normalizeDomains(r.VideoDomains),
		WorkTitleKeywords:       normalize(r.WorkTitleKeywords),
		NonWorkTitleKeywords:    normalize(r.NonWorkTitleKeywords),
		WindowBlacklistKeywords: normalize(r.WindowBlacklistKeywords),
		WindowWhitelistKeywords: normalize(r.WindowWhitelistKeywords),
	}
}

func normalize(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, s := range in {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

func normalizeDomains(in []string) []string {
	trimmed := make([]string, len(in))
	for i, d := range in {
		d = strings.TrimSpace(d)
		d = strings.TrimPrefix(strings.ToLower(d), "www.")
		trimmed[i] = strings.Trim(d, ".")
	}
	return normalize(trimmed)
}
