package parser

import (
	"regexp"
	"strings"
)

// SecondaryDomain identifies links to the secondary job board.
const SecondaryDomain = "jobtrain."

// DefaultStubThreshold is the description length under which a description
// linking to the secondary board is treated as a redirect stub.
const DefaultStubThreshold = 500

// AttributionMarker separates secondary board content from the source and
// apply links appended to it.
const AttributionMarker = "\n\n---\nFull listing: "

var secondaryURLRe = regexp.MustCompile(`https?://[^\s"'<>()]*jobtrain\.[^\s"'<>()]+`)

// IsStubRedirect reports whether a description is only a pointer to the
// secondary board: it links to the board and is shorter than threshold.
// An attribution footer is not part of the description.
func IsStubRedirect(description string, threshold int) bool {
	if threshold <= 0 {
		threshold = DefaultStubThreshold
	}
	description, _, _ = strings.Cut(description, AttributionMarker)
	return strings.Contains(strings.ToLower(description), SecondaryDomain) &&
		len(strings.TrimSpace(description)) < threshold
}

// SecondaryURL returns the first secondary board link in text, or "".
func SecondaryURL(text string) string {
	u := secondaryURLRe.FindString(text)
	return strings.TrimRight(u, ".,;:")
}
