package policy

import "github.com/eliteGoblin/focusd/attnmon/internal/domain"

// StudyProfile is the built-in rule set for study sessions.
type StudyProfile struct {
	selfNames []string
}

// NewStudyProfile creates the built-in profile. selfNames are the process
// names of the monitoring program itself; they always classify as whitelisted.
func NewStudyProfile(selfNames ...string) *StudyProfile {
	return &StudyProfile{selfNames: selfNames}
}

func (p *StudyProfile) ID() string {
	return DefaultProfileID
}

func (p *StudyProfile) Name() string {
	return "Study"
}

// Rules returns the study tables.
func (p *StudyProfile) Rules() domain.ClassificationRules {
	return domain.ClassificationRules{
		SelfProcessNames: append([]string{"attnmon"}, p.selfNames...),
		BrowserProcesses: []string{
			"chrome", "google chrome", "chromium", "chromium-browser",
			"msedge", "microsoft edge", "firefox", "brave", "brave browser",
			"comet", "opera", "vivaldi",
		},
		WhitelistDomains: []string{
			"khanacademy.org", "coursera.org", "edx.org", "udemy.com",
			"ocw.mit.edu", "mit.edu", "brilliant.org",
			"wolframalpha.com", "wikipedia.org", "arxiv.org", "gutenberg.org",
			"notion.so", "obsidian.md", "onenote.com", "office.com",
			"docs.google.com", "drive.google.com", "sheets.google.com",
			"ankiweb.net", "quizlet.com", "pomofocus.io", "forestapp.cc",
			"leetcode.com", "hackerrank.com", "codeforces.com",
			"geeksforgeeks.org", "w3schools.com", "developer.mozilla.org",
			"stackoverflow.com",
		},
		BlacklistDomains: []string{
			"reddit.com", "tiktok.com", "instagram.com", "x.com", "twitter.com",
			"netflix.com", "disneyplus.com", "hulu.com", "twitch.tv",
			"pinterest.com", "tumblr.com",
			"cnn.com", "bbc.com", "nytimes.com", "theguardian.com",
		},
		SearchEngineDomains: []string{
			"google.com", "bing.com", "duckduckgo.com", "ddg.gg", "search.yahoo.com", "yandex.com",
		},
		VideoDomains: []string{"youtube.com"},
		WorkTitleKeywords: []string{
			"documentation", "docs", "api", "mdn", "w3schools",
			"leetcode", "hackerrank", "codeforces",
			"tutorial", "course", "lecture", "assignment",
			"problem set", "problem-set", "arxiv", "paper",
			"notion", "obsidian", "onenote", "google docs", "google sheets", "drive",
			"quizlet", "anki", "pomofocus", "forest",
			"wolfram", "khan academy", "ocw", "brilliant", "edx", "coursera", "udemy",
			"error", "exception", "stack overflow", "stackoverflow",
		},
		NonWorkTitleKeywords: []string{
			"highlights", "trailer", "vlog", "prank", "meme", "asmr", "music video",
			"live stream", "livestream", "shorts", "reaction", "tier list",
			"tiktok", "instagram", "reddit", "try not to", "funny",
			"movie clip", "behind the scenes", "bts", "gaming", "let's play", "lets play",
		},
		WindowBlacklistKeywords: []string{"discord", "whatsapp"},
		WindowWhitelistKeywords: []string{
			"anki", "microsoft teams", "outlook", "visual studio code", "google chrome", "comet",
		},
	}
}

// Ensure StudyProfile implements RuleProfile.
var _ RuleProfile = (*StudyProfile)(nil)
