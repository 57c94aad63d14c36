package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	"kemono-scraper/internal/extract"
)

// The API only answers JSON when asked for text/css.
const apiAccept = "text/css"

type apiClient struct {
	http           *http.Client
	limiter        *rate.Limiter
	pageSize       int
	maxRetries     int
	initialBackoff time.Duration
}

func newAPIClient(cfg *Config) *apiClient {
	return &apiClient{
		http:           httpClient,
		limiter:        newRateLimiter(cfg.RequestsPerSecond),
		pageSize:       cfg.PageSize,
		maxRetries:     5,
		initialBackoff: time.Second,
	}
}

// get fetches url, backing off exponentially while the server answers 429.
func (c *apiClient) get(ctx context.Context, url, accept string) ([]byte, error) {
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, errors.Wrap(err, "rate limiter")
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, errors.Wrap(err, "failed to create request")
		}
		req.Header.Set("Accept", accept)
		req.Header.Set("User-Agent", userAgent)

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to call %s", url)
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			resp.Body.Close()
			if attempt < c.maxRetries {
				backoff := time.Duration(1<<uint(attempt-1)) * c.initialBackoff
				Log.Warnf("⚠️  Rate limited (429) on %s. Attempt %d/%d. Waiting %.0fs before retry...",
					url, attempt, c.maxRetries, backoff.Seconds())
				select {
				case <-time.After(backoff):
				case <-ctx.Done():
					return nil, ctx.Err()
				}
				continue
			}
			return nil, errors.Errorf("rate limited on %s after %d attempts", url, c.maxRetries)
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, errors.Errorf("%s returned status %d: %s", url, resp.StatusCode, string(body))
		}
		if err != nil {
			return nil, errors.Wrap(err, "failed to read response body")
		}
		return body, nil
	}

	return nil, errors.Errorf("failed to fetch %s after %d attempts", url, c.maxRetries)
}

func (c *apiClient) getJSON(ctx context.Context, url string, v interface{}) error {
	body, err := c.get(ctx, url, apiAccept)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return errors.Wrap(err, "failed to unmarshal JSON")
	}
	return nil
}

// fetchProfile retrieves the user profile and returns post count
func (c *apiClient) fetchProfile(ctx context.Context, profile *ProfileConfig) (*ProfileResponse, error) {
	apiURL := fmt.Sprintf("%s/api/v1/%s/user/%s/profile", profile.BaseURL, profile.Service, profile.UserID)

	var profileResp ProfileResponse
	if err := c.getJSON(ctx, apiURL, &profileResp); err != nil {
		return nil, errors.Wrap(err, "failed to fetch profile")
	}
	return &profileResp, nil
}

// fetchPostsWithPagination walks the posts listing until a short page.
func (c *apiClient) fetchPostsWithPagination(ctx context.Context, profile *ProfileConfig) ([]Post, error) {
	var allPosts []Post
	offset, pageNumber := 0, 1

	for {
		apiURL := fmt.Sprintf("%s/api/v1/%s/user/%s/posts", profile.BaseURL, profile.Service, profile.UserID)
		if offset > 0 {
			apiURL = fmt.Sprintf("%s?o=%d", apiURL, offset)
		}

		Log.Infof("Fetching page %d (offset=%d)", pageNumber, offset)

		var posts []Post
		if err := c.getJSON(ctx, apiURL, &posts); err != nil {
			Log.Errorf("❌ Page %d failed: %v", pageNumber, err)
			return nil, errors.Wrapf(err, "failed to fetch page %d", pageNumber)
		}

		if len(posts) == 0 {
			Log.Infof("✓ Page %d: No more posts available.", pageNumber)
			break
		}

		Log.Infof("✓ Page %d successfully fetched (%d/%d posts)", pageNumber, len(posts), c.pageSize)
		allPosts = append(allPosts, posts...)

		if len(posts) < c.pageSize {
			break
		}

		offset += c.pageSize
		pageNumber++
	}

	Log.Infof("Total posts fetched: %d", len(allPosts))
	return allPosts, nil
}

// fetchDetailedPost fetches the post payload from the API
func (c *apiClient) fetchDetailedPost(ctx context.Context, profile *ProfileConfig, postID string) (extract.Payload, error) {
	apiURL := fmt.Sprintf("%s/api/v1/%s/user/%s/post/%s", profile.BaseURL, profile.Service, profile.UserID, postID)

	body, err := c.get(ctx, apiURL, apiAccept)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to fetch post %s", postID)
	}
	return extract.ParsePayload(body)
}

// fetchDocument fetches and parses a rendered page.
func (c *apiClient) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	body, err := c.get(ctx, pageURL, "text/html")
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse %s", pageURL)
	}
	return doc, nil
}
