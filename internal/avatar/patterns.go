package avatar

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// Patterns holds the regex lists driving the quick check. Patterns are
// matched case-insensitively against the combined profile text.
type Patterns struct {
	BlacklistSectors  []string `yaml:"blacklist_sectors"`
	BlacklistTitles   []string `yaml:"blacklist_titles"`
	BlacklistKeywords []string `yaml:"blacklist_keywords"`
	WhitelistTitles   []string `yaml:"whitelist_titles"`
	WhitelistSectors  []string `yaml:"whitelist_sectors"`
}

// DefaultPatterns returns the built-in rule set. The lists target French
// and English profiles; the ideal customer is agency and digital-services
// leadership, competitors and regulated professions are screened out.
func DefaultPatterns() Patterns {
	return Patterns{
		BlacklistSectors: []string{
			`\bimmobilier\b`,
			`\bcomptabilit[ée]\b`,
			`\bfiscalit[ée]\b`,
			`\bnotaire\b`,
			`\bbtp\b`,
			`\bconstruction\b`,
			`\bautomation\b`,
			`\bartificial intelligence\b`,
			`\b(ia|ai)\s`,
			`\s(ia|ai)\b`,
			`^(ia|ai)\s`,
			`\s(ia|ai)$`,
		},
		BlacklistTitles: []string{
			`\bnotaire\b`,
			`\bcomptable\b`,
			`\bexpert[- ]comptable\b`,
			`\bagent immobilier\b`,
			`\bhuissier\b`,
			`\bavocat fiscaliste\b`,
		},
		BlacklistKeywords: []string{
			`à l['’]écoute d['’]opportunit[ée]s`,
			`en recherche active`,
			`open to opportunities`,
			`actively looking`,
		},
		WhitelistTitles: []string{
			`\bceo\b`,
			`\bfounder\b`,
			`\bfondateur\b`,
			`\bfondatrice\b`,
			`\bco[- ]founder\b`,
			`\bdirecteur\b`,
			`\bdirectrice\b`,
			`\bdirector\b`,
			`\bcommunity manager\b`,
			`\b[^a-z]cm[^a-z]\b`,
			`\bchief\b`,
			`\bcto\b`,
			`\bcoo\b`,
			`\bcmo\b`,
			`\bconsultant\b`,
			`\bexpert\b`,
			`\bspécialiste\b`,
			`\bspecialist\b`,
			`\bmedia buyer\b`,
			`\bcopywriter\b`,
			`\brédacteur\b`,
			`\bredacteur\b`,
			`\btraffic manager\b`,
			`\bgrowth hacker\b`,
			`\bgrowth\b`,
			`\bproduct manager\b`,
			`\bchef de projet\b`,
			`\bproject manager\b`,
			`\bsocial media manager\b`,
			`\bstratège\b`,
			`\bstratégiste\b`,
			`\bstrategist\b`,
		},
		WhitelistSectors: []string{
			`\bagence\b`,
			`agency`, // also matches when glued to other words
			`\bmarketing\b`,
			`\bweb\b`,
			`\bdesign\b`,
			`\bdigital\b`,
			`\bcommunication\b`,
			`\bmedia\b`,
			`\bcréatif\b`,
			`\bcreative\b`,
			`\bstudio\b`,
			`\bseo\b`,
			`\bsem\b`,
			`\bcontent\b`,
			`\bréférencement\b`,
			`\bmotion\b`,
			`\banimation\b`,
			`\bvideo\b`,
			`\bvidéo\b`,
			`\bgraphic\b`,
			`\bgraphique\b`,
			`\bsaas\b`,
			`\btech\b`,
		},
	}
}

// LoadPatterns reads a YAML overlay and merges it over the defaults.
// Only non-empty lists in the file replace their built-in counterpart.
func LoadPatterns(path string) (Patterns, error) {
	base := DefaultPatterns()

	data, err := os.ReadFile(path)
	if err != nil {
		return base, err
	}
	var overlay Patterns
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return base, fmt.Errorf("parsing avatar patterns %s: %w", path, err)
	}

	if len(overlay.BlacklistSectors) > 0 {
		base.BlacklistSectors = overlay.BlacklistSectors
	}
	if len(overlay.BlacklistTitles) > 0 {
		base.BlacklistTitles = overlay.BlacklistTitles
	}
	if len(overlay.BlacklistKeywords) > 0 {
		base.BlacklistKeywords = overlay.BlacklistKeywords
	}
	if len(overlay.WhitelistTitles) > 0 {
		base.WhitelistTitles = overlay.WhitelistTitles
	}
	if len(overlay.WhitelistSectors) > 0 {
		base.WhitelistSectors = overlay.WhitelistSectors
	}
	return base, nil
}

// ruleset is the compiled form of Patterns
type ruleset struct {
	blacklistSectors  []*regexp.Regexp
	blacklistTitles   []*regexp.Regexp
	blacklistKeywords []*regexp.Regexp
	whitelistTitles   []*regexp.Regexp
	whitelistSectors  []*regexp.Regexp
}

func compile(p Patterns) (*ruleset, error) {
	rs := &ruleset{}
	for _, group := range []struct {
		name     string
		patterns []string
		dst      *[]*regexp.Regexp
	}{
		{"blacklist_sectors", p.BlacklistSectors, &rs.blacklistSectors},
		{"blacklist_titles", p.BlacklistTitles, &rs.blacklistTitles},
		{"blacklist_keywords", p.BlacklistKeywords, &rs.blacklistKeywords},
		{"whitelist_titles", p.WhitelistTitles, &rs.whitelistTitles},
		{"whitelist_sectors", p.WhitelistSectors, &rs.whitelistSectors},
	} {
		for _, pat := range group.patterns {
			re, err := regexp.Compile(`(?i)` + pat)
			if err != nil {
				return nil, fmt.Errorf("%s pattern %q: %w", group.name, pat, err)
			}
			*group.dst = append(*group.dst, re)
		}
	}
	return rs, nil
}

func anyMatch(text string, res []*regexp.Regexp) bool {
	if text == "" {
		return false
	}
	for _, re := range res {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}
