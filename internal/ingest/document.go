package ingest

import (
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/webcompat/webcompat-search/internal/extract"
	"github.com/webcompat/webcompat-search/internal/github"
)

// Document field names added on top of the GitHub payload.
const (
	FieldDomains      = "domains"
	FieldValidDomains = "valid_domains"
	FieldParsedURL    = "parsed_url"
	FieldUpdatedAt    = "updated_at"
)

// Enrich builds the index document for issue: the raw GitHub payload plus
// the domains, valid domains, parsed URL and extracted metadata derived from
// its title and body. URL parse failures are logged and leave parsed_url
// empty.
func Enrich(issue github.Issue, logger zerolog.Logger) map[string]any {
	doc := basePayload(issue)

	domains := extract.ExtractDomains(issue.Title, issue.Body)
	doc[FieldDomains] = domains.Sorted()
	doc[FieldValidDomains] = extract.FilterValid(domains)

	parsed, err := extract.ParseLabeledURL(issue.Body)
	if err != nil {
		logger.Warn().Err(err).Int("issue", issue.Number).Msg("Could not parse reported URL")
		parsed = extract.ParsedURL{}
	}
	doc[FieldParsedURL] = parsed

	for k, v := range extract.ExtractMetadata(issue.Body) {
		doc[k] = v
	}
	return doc
}

// basePayload copies the raw payload, or rebuilds the core fields when the
// issue was not decoded from JSON.
func basePayload(issue github.Issue) map[string]any {
	if issue.Raw != nil {
		doc := make(map[string]any, len(issue.Raw)+8)
		for k, v := range issue.Raw {
			doc[k] = v
		}
		return doc
	}

	doc := map[string]any{
		"id":         issue.ID,
		"number":     issue.Number,
		"title":      issue.Title,
		"body":       issue.Body,
		"state":      issue.State,
		"html_url":   issue.HTMLURL,
		"created_at": issue.CreatedAt.UTC().Format(time.RFC3339),
		"closed_at":  nil,
	}
	doc[FieldUpdatedAt] = issue.UpdatedAt.UTC().Format(time.RFC3339)
	if issue.ClosedAt != nil {
		doc["closed_at"] = issue.ClosedAt.UTC().Format(time.RFC3339)
	}
	return doc
}

// DocumentID is the index id for an issue: its number, so re-ingesting an
// issue replaces the previous document.
func DocumentID(issue github.Issue) string {
	return strconv.Itoa(issue.Number)
}
