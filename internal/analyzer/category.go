package analyzer

import "strings"

// categoryRule maps a keyword set to a category. Rules are evaluated in
// declaration order and the first match wins; reordering changes output for
// inputs that contain keywords from more than one rule.
type categoryRule struct {
	keywords []string
	category string
}

var imageRules = []categoryRule{
	{keywords: []string{"receipt", "document"}, category: "Document-related Complaint"},
	{keywords: []string{"product", "merchandise"}, category: "Product-related Complaint"},
	{keywords: []string{"error", "warning"}, category: "Error or Warning Complaint"},
}

var videoRules = []categoryRule{
	{keywords: []string{"product", "merchandise"}, category: "Product-related Video Complaint"},
	{keywords: []string{"store", "shop"}, category: "In-store Video Complaint"},
	{keywords: []string{"website", "app"}, category: "Digital Service Video Complaint"},
}

const (
	defaultImageCategory = "General Image Complaint"
	defaultVideoCategory = "General Video Complaint"
	defaultVoiceCategory = "Voice Complaint"
)

// matchCategory checks detected names against the ordered rules.
func matchCategory(rules []categoryRule, names []string, fallback string) string {
	seen := make(map[string]struct{}, len(names))
	for _, n := range names {
		seen[strings.ToLower(strings.TrimSpace(n))] = struct{}{}
	}
	for _, rule := range rules {
		for _, kw := range rule.keywords {
			if _, ok := seen[kw]; ok {
				return rule.category
			}
		}
	}
	return fallback
}

// parseClassifierOutput extracts the category from the first line of a
// classifier response ("... Category: Billing") and treats the remainder as
// the summary. Output without a ':' delimiter is ill-formed; the category
// then defaults to the raw trimmed output.
func parseClassifierOutput(analysis string) (category, summary string) {
	trimmed := strings.TrimSpace(analysis)
	first, rest, _ := strings.Cut(trimmed, "\n")
	if idx := strings.LastIndex(first, ":"); idx >= 0 {
		return strings.TrimSpace(first[idx+1:]), strings.TrimSpace(rest)
	}
	return trimmed, strings.TrimSpace(rest)
}
