package discovery

import (
	"regexp"
	"strings"
)

var (
	nameSuffixRes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\s*-\s*Pages Jaunes`),
		regexp.MustCompile(`(?i)\s*-\s*Yelp`),
		regexp.MustCompile(`(?i)\s*\|\s*Google Maps`),
		regexp.MustCompile(`(?i)https?://[^/]+/?`),
	}

	websiteRes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(?:^|[^a-z0-9.-])site web[:\s]*([a-z0-9][^\s<>"']*\.[a-z]{2,})`),
		regexp.MustCompile(`(?i)(?:^|[^a-z0-9.-])website[:\s]*([a-z0-9][^\s<>"']*\.[a-z]{2,})`),
		regexp.MustCompile(`(?i)(?:^|[^a-z0-9.-])(www\.[a-z0-9][^\s<>"']*\.[a-z]{2,})`),
	}

	streetRe       = regexp.MustCompile(`(?i)\d+[,\s]+(?:rue|avenue|boulevard|place|impasse|chemin)[^,\n]{1,100}`)
	labeledAddrRe  = regexp.MustCompile(`(?i)(?:adresse|address)[:\s]*([^,\n]{10,100})`)
	labeledPhoneRe = regexp.MustCompile(`(?i)(?:tel|téléphone|phone)[:\s]*([0-9\s.\-+]{10,})`)
	frenchPhoneRe  = regexp.MustCompile(`(?:^|\s)((?:\+33|0)[1-9](?:[0-9\s.\-]{8,}[0-9]))`)
	whitespaceRe   = regexp.MustCompile(`\s+`)
)

// cleanName strips directory suffixes and URL prefixes from a search hit title.
func cleanName(titleOrURL string) string {
	if strings.TrimSpace(titleOrURL) == "" {
		return ""
	}
	name := titleOrURL
	for _, re := range nameSuffixRes {
		name = re.ReplaceAllString(name, "")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return "Business"
	}
	return name
}

// websiteFromContent returns the first business website mentioned in content,
// with a scheme.
func websiteFromContent(content string) string {
	for _, re := range websiteRes {
		m := re.FindStringSubmatch(content)
		if len(m) < 2 || m[1] == "" {
			continue
		}
		u := strings.TrimRight(m[1], ".,;:")
		if !strings.HasPrefix(strings.ToLower(u), "http") {
			u = "https://" + u
		}
		return u
	}
	return ""
}

// addressFromContent prefers a French street address and falls back to the
// text following an address label.
func addressFromContent(content string) string {
	if m := streetRe.FindString(content); m != "" {
		return strings.TrimSpace(m)
	}
	if m := labeledAddrRe.FindStringSubmatch(content); len(m) > 1 {
		return strings.TrimSpace(m[1])
	}
	return ""
}

// phoneFromContent returns a phone number with whitespace removed.
func phoneFromContent(content string) string {
	for _, re := range []*regexp.Regexp{labeledPhoneRe, frenchPhoneRe} {
		if m := re.FindStringSubmatch(content); len(m) > 1 {
			if p := whitespaceRe.ReplaceAllString(strings.TrimSpace(m[1]), ""); p != "" {
				return p
			}
		}
	}
	return ""
}

func collapseSpace(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}
