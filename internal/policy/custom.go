package policy

import "github.com/eliteGoblin/focusd/attnmon/internal/domain"

// CustomProfileID identifies the profile assembled from the config file.
const CustomProfileID = "custom"

// CustomProfile is a user-supplied rule set. Tables left empty fall back
// to the base profile's tables.
type CustomProfile struct {
	rules domain.ClassificationRules
	base  RuleProfile
}

// NewCustomProfile creates a profile from configured rules. base may be nil.
func NewCustomProfile(rules domain.ClassificationRules, base RuleProfile) *CustomProfile {
	return &CustomProfile{rules: rules, base: base}
}

func (p *CustomProfile) ID() string {
	return CustomProfileID
}

func (p *CustomProfile) Name() string {
	return "Custom"
}

// Rules returns the configured tables merged over the base profile.
func (p *CustomProfile) Rules() domain.ClassificationRules {
	r := p.rules
	if p.base == nil {
		return r
	}
	b := p.base.Rules()
	return domain.ClassificationRules{
		// Self names always include the base ones.
		SelfProcessNames:        append(append([]string{}, b.SelfProcessNames...), r.SelfProcessNames...),
		BrowserProcesses:        orElse(r.BrowserProcesses, b.BrowserProcesses),
		WhitelistDomains:        orElse(r.WhitelistDomains, b.WhitelistDomains),
		BlacklistDomains:        orElse(r.BlacklistDomains, b.BlacklistDomains),
		SearchEngineDomains:     orElse(r.SearchEngineDomains, b.SearchEngineDomains),
		VideoDomains:            orElse(r.VideoDomains, b.VideoDomains),
		WorkTitleKeywords:       orElse(r.WorkTitleKeywords, b.WorkTitleKeywords),
		NonWorkTitleKeywords:    orElse(r.NonWorkTitleKeywords, b.NonWorkTitleKeywords),
		WindowBlacklistKeywords: orElse(r.WindowBlacklistKeywords, b.WindowBlacklistKeywords),
		WindowWhitelistKeywords: orElse(r.WindowWhitelistKeywords, b.WindowWhitelistKeywords),
	}
}

func orElse(v, fallback []string) []string {
	if len(v) > 0 {
		return v
	}
	return fallback
}

// Ensure CustomProfile implements RuleProfile.
var _ RuleProfile = (*CustomProfile)(nil)
