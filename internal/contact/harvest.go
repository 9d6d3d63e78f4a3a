package contact

import (
	"regexp"

	"github.com/palantir/business-contact-pipeline/internal/leads"
)

var (
	bareEmailRe   = regexp.MustCompile(`[a-zA-Z0-9._%-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)
	mailtoEmailRe = regexp.MustCompile(`(?i)mailto:([a-zA-Z0-9._%-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,})`)

	domainRe = regexp.MustCompile(`^(?:[a-z0-9](?:[a-z0-9-]*[a-z0-9])?\.)+[a-z]{2,}$`)
)

// Harvest returns the email addresses found in html, lower-cased, without
// role addresses, deduplicated in first-seen order.
func Harvest(html string) []string {
	var found []string
	found = append(found, bareEmailRe.FindAllString(html, -1)...)
	for _, m := range mailtoEmailRe.FindAllStringSubmatch(html, -1) {
		found = append(found, m[1])
	}
	return leads.NormalizeEmails(found)
}

// Placeholders returns the synthesized contact@ and info@ addresses for
// website's host, or nil when the host cannot be determined.
func Placeholders(website string) []string {
	host := Hostname(website)
	if !domainRe.MatchString(host) {
		return nil
	}
	return []string{"contact@" + host, "info@" + host}
}
