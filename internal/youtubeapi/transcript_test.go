package youtubeapi

import "testing"

func TestExtractVideoIDStandardURL(t *testing.T) {
	got := extractVideoID("https://www.youtube.com/watch?v=dQw4w9WgXcQ")
	if got != "dQw4w9WgXcQ" {
		t.Fatalf("got %q", got)
	}
}

func TestExtractVideoIDShortURL(t *testing.T) {
	got := extractVideoID("https://youtu.be/dQw4w9WgXcQ")
	if got != "dQw4w9WgXcQ" {
		t.Fatalf("got %q", got)
	}
}

func TestExtractVideoIDWithExtraParams(t *testing.T) {
	got := extractVideoID("https://www.youtube.com/watch?v=dQw4w9WgXcQ&t=42s&list=PLxyz")
	if got != "dQw4w9WgXcQ" {
		t.Fatalf("got %q", got)
	}
}

func TestExtractVideoIDWithoutWWW(t *testing.T) {
	got := extractVideoID("https://youtube.com/watch?v=dQw4w9WgXcQ")
	if got != "dQw4w9WgXcQ" {
		t.Fatalf("got %q", got)
	}
}

func TestExtractVideoIDInvalidURL(t *testing.T) {
	got := extractVideoID("https://example.com/invalid")
	if got != "" {
		t.Fatalf("expected empty video id for a non-YouTube URL, got %q", got)
	}
}

func TestExtractVideoIDEmbedURL(t *testing.T) {
	got := extractVideoID("https://www.youtube.com/embed/dQw4w9WgXcQ")
	if got != "dQw4w9WgXcQ" {
		t.Fatalf("got %q", got)
	}
}

func TestParseISO8601Duration(t *testing.T) {
	cases := map[string]int64{
		"PT15M33S": 933,
		"PT1H2M3S": 3723,
		"PT45S":    45,
		"":         0,
	}
	for in, want := range cases {
		if got := parseISO8601Duration(in); got != want {
			t.Fatalf("parseISO8601Duration(%q) = %d, want %d", in, got, want)
		}
	}
}
