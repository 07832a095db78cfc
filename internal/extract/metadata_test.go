package extract

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestExtractMetadata(t *testing.T) {
	tests := []struct {
		name string
		body string
		want map[string]string
	}{
		{
			name: "reporter markers",
			body: "<!-- @browser: Firefox Mobile 68.0 -->\n<!-- @ua_header: Mozilla/5.0 (Android 9) -->\n<!-- @reported_with: mobile-reporter -->\n\n**URL**: https://example.com",
			want: map[string]string{
				"extracted_browser":       "Firefox Mobile 68.0",
				"extracted_ua_header":     "Mozilla/5.0 (Android 9)",
				"extracted_reported_with": "mobile-reporter",
			},
		},
		{
			name: "last duplicate wins",
			body: "<!-- @browser: Firefox 60 -->\n<!-- @browser: Firefox 61 -->",
			want: map[string]string{"extracted_browser": "Firefox 61"},
		},
		{
			name: "two markers on one line",
			body: "<!-- @a: 1 --><!-- @b: 2 -->",
			want: map[string]string{"extracted_a": "1", "extracted_b": "2"},
		},
		{
			name: "marker must be on a single line",
			body: "<!-- @browser: Firefox\n60 -->",
			want: map[string]string{},
		},
		{
			name: "no markers",
			body: "plain text",
			want: map[string]string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractMetadata(tt.body)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ExtractMetadata() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
