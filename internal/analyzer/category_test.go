package analyzer

import "testing"

func TestParseClassifierOutput(t *testing.T) {
	tests := []struct {
		name         string
		analysis     string
		wantCategory string
		wantSummary  string
	}{
		{
			name:         "well formed",
			analysis:     "Category: Billing\nThe customer was charged twice for one order.",
			wantCategory: "Billing",
			wantSummary:  "The customer was charged twice for one order.",
		},
		{
			name:         "colon in prefix only",
			analysis:     "This complaint falls under: Refunds\nDetails follow.",
			wantCategory: "Refunds",
			wantSummary:  "Details follow.",
		},
		{
			name:         "no delimiter falls back to raw output",
			analysis:     "  Billing dispute  ",
			wantCategory: "Billing dispute",
			wantSummary:  "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			category, summary := parseClassifierOutput(tt.analysis)
			if category != tt.wantCategory {
				t.Fatalf("category = %q, want %q", category, tt.wantCategory)
			}
			if summary != tt.wantSummary {
				t.Fatalf("summary = %q, want %q", summary, tt.wantSummary)
			}
		})
	}
}

func TestMatchCategoryPrecedence(t *testing.T) {
	// Rule order decides ambiguous inputs: receipt outranks product,
	// product outranks error.
	got := matchCategory(imageRules, []string{"product", "receipt"}, defaultImageCategory)
	if got != "Document-related Complaint" {
		t.Fatalf("expected document rule to win, got %q", got)
	}

	got = matchCategory(imageRules, []string{"warning", "merchandise"}, defaultImageCategory)
	if got != "Product-related Complaint" {
		t.Fatalf("expected product rule to win, got %q", got)
	}

	got = matchCategory(imageRules, []string{"Error"}, defaultImageCategory)
	if got != "Error or Warning Complaint" {
		t.Fatalf("expected case-insensitive match, got %q", got)
	}

	got = matchCategory(imageRules, []string{"cat", "tree"}, defaultImageCategory)
	if got != defaultImageCategory {
		t.Fatalf("expected default category, got %q", got)
	}

	got = matchCategory(videoRules, []string{"shop", "app"}, defaultVideoCategory)
	if got != "In-store Video Complaint" {
		t.Fatalf("expected store rule to win over website, got %q", got)
	}
}
