package youtubeapi

import (
	"context"
	"encoding/xml"
	"fmt"
	"html"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/archivescribe/ytingest/internal/domain"
	"github.com/archivescribe/ytingest/internal/pkg/errs"
	"github.com/archivescribe/ytingest/internal/platform/logger"
)

// TranscriptService fetches a video's captions track via YouTube's public
// timedtext endpoint. Satisfies internal/steps.TranscriptFetcher.
//
// No captions track for a video (or a track in a language this service
// doesn't request) surfaces as errs.ErrTranscriptUnavailable, matching
// fetch_transcript's contract.
type TranscriptService struct {
	httpClient *http.Client
	languages  []string
	log        *logger.Logger
}

// NewTranscriptService builds a TranscriptService. languages is tried in
// order (e.g. []string{"en", "en-US"}); nil defaults to []string{"en"}.
func NewTranscriptService(languages []string, log *logger.Logger) *TranscriptService {
	if log == nil {
		log, _ = logger.New("")
	}
	if len(languages) == 0 {
		languages = []string{"en"}
	}
	return &TranscriptService{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		languages:  languages,
		log:        log.With("component", "youtubeapi.TranscriptService"),
	}
}

type timedTextTranscript struct {
	XMLName xml.Name        `xml:"transcript"`
	Texts   []timedTextLine `xml:"text"`
}

type timedTextLine struct {
	Start    string `xml:"start,attr"`
	Duration string `xml:"dur,attr"`
	Text     string `xml:",chardata"`
}

// FetchTranscript extracts the video id from videoURL and requests its
// timedtext captions track, trying each configured language in order. It
// returns errs.ErrTranscriptUnavailable if no language yields a track.
func (s *TranscriptService) FetchTranscript(ctx context.Context, videoURL string) (string, []domain.TimedTranscriptEntry, error) {
	videoID := extractVideoID(videoURL)
	if videoID == "" {
		return "", nil, fmt.Errorf("youtubeapi: could not extract video id from %q", videoURL)
	}

	var lastErr error
	for _, lang := range s.languages {
		text, timed, err := s.fetchLanguage(ctx, videoID, lang)
		if err == nil {
			return text, timed, nil
		}
		lastErr = err
	}
	if lastErr != nil {
		s.log.Info("no transcript track available", "video_id", videoID, "languages", s.languages, "error", lastErr)
	}
	return "", nil, errs.ErrTranscriptUnavailable
}

func (s *TranscriptService) fetchLanguage(ctx context.Context, videoID, lang string) (string, []domain.TimedTranscriptEntry, error) {
	endpoint := fmt.Sprintf("https://www.youtube.com/api/timedtext?v=%s&lang=%s", url.QueryEscape(videoID), url.QueryEscape(lang))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", nil, err
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", nil, fmt.Errorf("youtubeapi: timedtext request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", nil, fmt.Errorf("youtubeapi: timedtext status %d", resp.StatusCode)
	}

	var doc timedTextTranscript
	if err := xml.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return "", nil, fmt.Errorf("youtubeapi: decode timedtext xml: %w", err)
	}
	if len(doc.Texts) == 0 {
		return "", nil, fmt.Errorf("youtubeapi: empty timedtext track for lang %s", lang)
	}

	timed := make([]domain.TimedTranscriptEntry, 0, len(doc.Texts))
	var sb strings.Builder
	for i, line := range doc.Texts {
		start, _ := strconv.ParseFloat(line.Start, 64)
		dur, _ := strconv.ParseFloat(line.Duration, 64)
		text := html.UnescapeString(line.Text)
		timed = append(timed, domain.TimedTranscriptEntry{Text: text, Start: start, Duration: dur})
		if i > 0 {
			sb.WriteString(" ")
		}
		sb.WriteString(text)
	}
	return sb.String(), timed, nil
}

// extractVideoID parses the handful of YouTube URL shapes
// original_source/tools/tests/unit/test_youtube.py exercises against
// extract_video_id: standard watch URLs (with or without extra query
// params), youtu.be short links, and bare ids.
func extractVideoID(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	if v := u.Query().Get("v"); v != "" {
		return v
	}
	trimmed := strings.Trim(u.Path, "/")
	for _, marker := range []string{"embed/", "shorts/"} {
		if idx := strings.Index(raw, marker); idx >= 0 {
			rest := raw[idx+len(marker):]
			return firstPathSegment(rest)
		}
	}
	if u.Host == "youtu.be" && trimmed != "" {
		return firstPathSegment(trimmed)
	}
	if u.Host == "" && trimmed != "" && !strings.Contains(trimmed, "/") {
		return trimmed
	}
	return ""
}

func firstPathSegment(s string) string {
	s = strings.TrimPrefix(s, "/")
	if idx := strings.IndexAny(s, "/?&"); idx >= 0 {
		s = s[:idx]
	}
	return s
}
