// Package usecase contains application business logic.
package usecase

import (
	"net/url"
	"strings"

	"github.com/eliteGoblin/focusd/attnmon/internal/domain"
)

// browserTitleSuffixes are stripped from window titles when the window
// title stands in for a missing tab title.
var browserTitleSuffixes = []string{
	" - Google Chrome",
	" - Microsoft Edge",
	" - Mozilla Firefox",
	" — Mozilla Firefox",
	" - Brave",
	" - Chromium",
}

// Classifier implements domain.ActivityClassifier over static rule tables.
// It holds no mutable state and is safe for concurrent use.
type Classifier struct {
	rules domain.ClassificationRules
	self  map[string]bool
	brows map[string]bool
}

// NewClassifier creates a classifier. rules should already be normalized
// (see policy.ToRules).
func NewClassifier(rules domain.ClassificationRules) *Classifier {
	return &Classifier{
		rules: rules,
		self:  processSet(rules.SelfProcessNames),
		brows: processSet(rules.BrowserProcesses),
	}
}

// Rules returns the tables the classifier runs on.
func (c *Classifier) Rules() domain.ClassificationRules {
	return c.rules
}

// IsBrowser reports whether processName is a recognized browser.
func (c *Classifier) IsBrowser(processName string) bool {
	return c.brows[processKey(processName)]
}

// Classify labels the foreground activity. First match wins:
// own process, then the tab (when present), then the window title.
func (c *Classifier) Classify(window domain.WindowSnapshot, tab *domain.TabSnapshot) domain.ActivityLabel {
	if c.self[processKey(window.ProcessName)] {
		return domain.LabelWhitelisted
	}

	if tab != nil {
		t := *tab
		if t.Title == "" {
			t.Title = StripBrowserSuffix(window.Title)
		}
		if label := c.classifyTab(t); label != domain.LabelUnclassified {
			return label
		}
	}

	return c.classifyTitle(window.Title)
}

func (c *Classifier) classifyTab(tab domain.TabSnapshot) domain.ActivityLabel {
	host := HostOf(tab.URL)
	title := tab.Title

	if host != "" {
		switch {
		case hostIn(host, c.rules.WhitelistDomains):
			return domain.LabelWhitelisted

		case hostIn(host, c.rules.VideoDomains):
			// Video sites are only work when the title says so.
			if anyKeyword(title, c.rules.WorkTitleKeywords) {
				return domain.LabelWhitelisted
			}
			return domain.LabelBlacklisted

		case hostIn(host, c.rules.BlacklistDomains):
			return domain.LabelBlacklisted

		case hostIn(host, c.rules.SearchEngineDomains):
			return c.classifyTabTitle(title)
		}
	}

	return c.classifyTabTitle(title)
}

func (c *Classifier) classifyTabTitle(title string) domain.ActivityLabel {
	if anyKeyword(title, c.rules.WorkTitleKeywords) {
		return domain.LabelWhitelisted
	}
	if anyKeyword(title, c.rules.NonWorkTitleKeywords) {
		return domain.LabelBlacklisted
	}
	return domain.LabelUnclassified
}

func (c *Classifier) classifyTitle(title string) domain.ActivityLabel {
	if anyKeyword(title, c.rules.WindowBlacklistKeywords) {
		return domain.LabelBlacklisted
	}
	if anyKeyword(title, c.rules.WindowWhitelistKeywords) {
		return domain.LabelWhitelisted
	}
	return domain.LabelUnclassified
}

// HostOf extracts the lower-cased host of rawURL without a leading "www.".
// Address-bar text without a scheme is accepted. Returns "" when no host
// can be found.
func HostOf(rawURL string) string {
	s := strings.TrimSpace(rawURL)
	if s == "" {
		return ""
	}
	if !strings.Contains(s, "://") {
		s = "https://" + s
	}
	u, err := url.Parse(s)
	if err != nil {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	return strings.TrimPrefix(host, "www.")
}

// StripBrowserSuffix removes a trailing " - <Browser>" from a window title.
func StripBrowserSuffix(title string) string {
	for _, suf := range browserTitleSuffixes {
		if strings.HasSuffix(title, suf) {
			return strings.TrimSpace(strings.TrimSuffix(title, suf))
		}
	}
	return title
}

func hostIn(host string, domains []string) bool {
	for _, d := range domains {
		if d == "" {
			continue
		}
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

func anyKeyword(s string, keywords []string) bool {
	if s == "" {
		return false
	}
	s = strings.ToLower(s)
	for _, k := range keywords {
		if k != "" && strings.Contains(s, k) {
			return true
		}
	}
	return false
}

// processKey normalizes a process name for set lookups ("Chrome.exe" -> "chrome").
func processKey(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	return strings.TrimSuffix(name, ".exe")
}

func processSet(names []string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		if k := processKey(n); k != "" {
			set[k] = true
		}
	}
	return set
}

// Ensure Classifier implements domain.ActivityClassifier.
var _ domain.ActivityClassifier = (*Classifier)(nil)
