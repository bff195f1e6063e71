package pipeline

import "testing"

func TestSlugify(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Handwerkskammer Köln", "handwerkskammer-koln"},
		{"Müller & Söhne GmbH", "muller-sohne-gmbh"},
		{"ACME-2024", "acme-2024"},
		{"  trim  me  ", "trim-me"},
		{"___", ""},
		{"", ""},
	}
	for _, tc := range cases {
		if got := slugify(tc.in); got != tc.want {
			t.Errorf("slugify(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestDocumentFilename(t *testing.T) {
	cases := []struct {
		name     string
		company  string
		cert     string
		index    int
		total    int
		format   string
		expected string
	}{
		{"named cert", "DE-123456", "Unbedenklichkeitsbescheinigung", 0, 1, "pdf", "de-123456_unbedenklichkeitsbescheinigung.pdf"},
		{"unnamed single", "DE-123456", "", 0, 1, "pdf", "de-123456.pdf"},
		{"unnamed multiple", "DE-123456", "", 1, 3, "pdf", "de-123456_2.pdf"},
		{"jpeg extension", "DE-123456", "Meisterbrief", 0, 1, "jpeg", "de-123456_meisterbrief.jpg"},
		{"png extension", "DE-123456", "", 0, 1, "png", "de-123456.png"},
		{"unknown format defaults to pdf", "DE-123456", "", 0, 1, "octet-stream", "de-123456.pdf"},
		{"diacritics in cert name", "DE-7", "Handwerkskammer Köln Eintrag", 0, 2, "pdf", "de-7_handwerkskammer-koln-eintrag.pdf"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := DocumentFilename(tc.company, tc.cert, tc.index, tc.total, tc.format)
			if got != tc.expected {
				t.Errorf("DocumentFilename() = %q, want %q", got, tc.expected)
			}
		})
	}
}
