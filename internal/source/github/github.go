package github

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"gitcord/internal/domain"
)

// Config holds GitHub source configuration.
type Config struct {
	BaseURL  string
	Token    string
	Timeout  time.Duration
	PageSize int
	MaxPages int
}

// Source fetches activity from the GitHub events API.
type Source struct {
	httpClient *http.Client
	baseURL    string
	token      string
	pageSize   int
	maxPages   int
	logger     *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *Source {
	if cfg.PageSize == 0 {
		cfg.PageSize = 100
	}
	if cfg.MaxPages == 0 {
		cfg.MaxPages = 3
	}
	return &Source{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL:  cfg.BaseURL,
		token:    cfg.Token,
		pageSize: cfg.PageSize,
		maxPages: cfg.MaxPages,
		logger:   logger.With("source", "github"),
	}
}

// Fetch returns the recent events for a subject, newest first, as GitHub
// reports them. The first page is requested conditionally with the stored
// ETag. Paging stops as soon as an event at or below cursor is seen, so
// the result always covers everything newer than the cursor without
// assuming a page size. Items at or below the cursor may still be
// included; the caller filters them.
func (s *Source) Fetch(ctx context.Context, subject string, cursor *int64, etag string) (*domain.FetchResult, error) {
	var all []domain.RawEvent
	result := &domain.FetchResult{}

	for page := 1; page <= s.maxPages; page++ {
		events, pageResult, err := s.fetchPage(ctx, subject, page, etag)
		if err != nil {
			return nil, fmt.Errorf("fetch %s page %d: %w", subject, page, err)
		}

		if page == 1 {
			result.ETag = pageResult.ETag
			result.PollInterval = pageResult.PollInterval
			if pageResult.NotModified {
				result.NotModified = true
				result.ETag = etag
				return result, nil
			}
		}

		all = append(all, events...)

		s.logger.Debug("fetched events page",
			"subject", subject,
			"page", page,
			"events", len(events),
			"total", len(all),
		)

		if len(events) < s.pageSize {
			break
		}
		if cursor != nil && pageReachesCursor(events, *cursor) {
			break
		}
	}

	result.Events = all
	return result, nil
}

// SubjectExists checks that a user or repository is visible on GitHub.
// Used by the follow command before a feed is stored.
func (s *Source) SubjectExists(ctx context.Context, subject string) (bool, error) {
	f := domain.Feed{Subject: subject}
	url := s.baseURL + "/users/" + subject
	if f.IsRepo() {
		url = s.baseURL + "/repos/" + subject
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, fmt.Errorf("create request: %w", err)
	}
	s.setHeaders(req)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("%w: %v", domain.ErrSourceUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return false, nil
	case resp.StatusCode >= 500:
		return false, fmt.Errorf("%w: status %d", domain.ErrSourceUnavailable, resp.StatusCode)
	case resp.StatusCode >= 400:
		return false, fmt.Errorf("%w: status %d", domain.ErrSourceRejected, resp.StatusCode)
	}
	return true, nil
}

func (s *Source) fetchPage(ctx context.Context, subject string, page int, etag string) ([]domain.RawEvent, *domain.FetchResult, error) {
	url := fmt.Sprintf("%s?per_page=%d&page=%d", s.eventsURL(subject), s.pageSize, page)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("create request: %w", err)
	}
	s.setHeaders(req)
	if page == 1 && etag != "" {
		req.Header.Set("If-None-Match", etag)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", domain.ErrSourceUnavailable, err)
	}
	defer resp.Body.Close()

	pageResult := &domain.FetchResult{
		ETag:         resp.Header.Get("ETag"),
		PollInterval: parsePollInterval(resp.Header.Get("X-Poll-Interval")),
	}

	switch {
	case resp.StatusCode == http.StatusNotModified:
		pageResult.NotModified = true
		return nil, pageResult, nil
	case resp.StatusCode >= 500:
		return nil, nil, fmt.Errorf("%w: status %d", domain.ErrSourceUnavailable, resp.StatusCode)
	case resp.StatusCode >= 400:
		return nil, nil, fmt.Errorf("%w: status %d", domain.ErrSourceRejected, resp.StatusCode)
	}

	var events []domain.RawEvent
	if err := json.NewDecoder(resp.Body).Decode(&events); err != nil {
		return nil, nil, fmt.Errorf("decode response: %w", err)
	}

	return events, pageResult, nil
}

func (s *Source) eventsURL(subject string) string {
	f := domain.Feed{Subject: subject}
	if f.IsRepo() {
		return s.baseURL + "/repos/" + subject + "/events"
	}
	return s.baseURL + "/users/" + subject + "/events"
}

func (s *Source) setHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("User-Agent", "gitcord/1.0")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
}

func pageReachesCursor(events []domain.RawEvent, cursor int64) bool {
	for i := range events {
		id, err := events[i].NumericID()
		if err != nil {
			continue
		}
		if id <= cursor {
			return true
		}
	}
	return false
}

func parsePollInterval(header string) int {
	if header == "" {
		return 0
	}
	n, err := strconv.Atoi(header)
	if err != nil {
		return 0
	}
	return n
}
