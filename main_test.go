package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kemono-scraper/internal/extract"
)

func TestExtractProfileConfig(t *testing.T) {
	profile, err := extractProfileConfig("https://kemono.cr/patreon/user/12345?o=50", "")
	require.NoError(t, err)
	assert.Equal(t, &ProfileConfig{BaseURL: "https://kemono.cr", Service: "patreon", UserID: "12345"}, profile)
	assert.Equal(t, "https://kemono.cr/patreon/user/12345/post/9", profile.PostURL("9"))

	profile, err = extractProfileConfig("https://coomer.st/onlyfans/user/someone/post/1", "https://kemono.cr")
	require.NoError(t, err)
	assert.Equal(t, "https://coomer.st", profile.BaseURL)
	assert.Equal(t, "someone", profile.UserID)

	// queue entries may omit the host
	for _, short := range []string{"fanbox/user/7", "/fanbox/user/7", "//coomer.st/fanbox/user/7"} {
		profile, err = extractProfileConfig(short, "https://coomer.st")
		require.NoError(t, err, short)
		assert.Equal(t, &ProfileConfig{BaseURL: "https://coomer.st", Service: "fanbox", UserID: "7"}, profile, short)
	}

	for _, bad := range []string{
		"",
		"kemono.cr/patreon/user/1",
		"https://kemono.cr/patreon/1",
		"https://kemono.cr/patreon/user/",
		"https://kemono.cr/posts",
	} {
		_, err := extractProfileConfig(bad, "https://kemono.cr")
		assert.Error(t, err, bad)
	}
}

// fakeKemono serves one creator with two posts: one whose payload lists its
// files and one that only has a rendered page.
func fakeKemono(t *testing.T, listings *int32) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/patreon/user/1/profile", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id":"1","name":"Artist","service":"patreon","updated":"2024-03-01T10:00:00","post_count":2}`)
	})
	mux.HandleFunc("/api/v1/patreon/user/1/posts", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(listings, 1)
		fmt.Fprint(w, `[{"id":"10","title":"With files","published":"2024-02-28T09:00:00"},{"id":"11","title":""}]`)
	})
	mux.HandleFunc("/api/v1/patreon/user/1/post/10", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"post":{"id":"10",
			"file":{"name":"pic.png","path":"/data/ab/pic.png"},
			"attachments":[{"name":"gone.zip","path":"/data/cd/gone.zip"}]}}`)
	})
	mux.HandleFunc("/api/v1/patreon/user/1/post/11", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"post":{"id":"11","content":""}}`)
	})
	mux.HandleFunc("/patreon/user/1/post/11", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><head><title>Page title | Kemono</title></head><body>
			<h1 class="post__title">Page title</h1>
			<div class="post__user-name">Artist</div>
			<div class="post__content"><p>hello</p></div>
			<a class="fileThumb" href="/data/ef/page.jpg" download="page.jpg">page</a>
		</body></html>`)
	})
	mux.HandleFunc("/data/ab/pic.png", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "PNG")
	})
	mux.HandleFunc("/data/ef/page.jpg", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "JPG")
	})
	return httptest.NewServer(mux)
}

func TestCrawlProfile(t *testing.T) {
	var listings int32
	srv := fakeKemono(t, &listings)
	defer srv.Close()

	out := t.TempDir()
	cfg := &Config{BaseURL: srv.URL, OutputDir: out, PageSize: 50}
	c := &crawler{
		cfg:        cfg,
		api:        testAPIClient(srv, cfg.PageSize),
		downloader: &mediaDownloader{client: srv.Client(), limiter: newRateLimiter(0)},
	}

	require.NoError(t, c.crawlProfile(context.Background(), srv.URL+"/patreon/user/1"))

	userDir := filepath.Join(out, "patreon", "1")
	assert.FileExists(t, filepath.Join(userDir, "Artist.json"))
	assert.FileExists(t, filepath.Join(userDir, "10", "pic.png"))
	assert.FileExists(t, filepath.Join(userDir, "11", "page.jpg"))

	var first SavedPost
	readJSON(t, filepath.Join(userDir, "10", "10.json"), &first)
	assert.Equal(t, "With files", first.Post.Title)
	require.NotNil(t, first.PublishedAt)
	assert.Equal(t, "2024-02-28T09:00:00Z", first.PublishedAt.Format(time.RFC3339))
	assert.Nil(t, first.Metadata)
	require.Len(t, first.Media, 2)
	assert.Equal(t, extract.TypeMain, first.Media[0].Type)
	assert.Equal(t, extract.TypeAttachment, first.Media[1].Type)

	var second SavedPost
	readJSON(t, filepath.Join(userDir, "11", "11.json"), &second)
	assert.Equal(t, "Page title", second.Post.Title)
	assert.Nil(t, second.PublishedAt)
	require.NotNil(t, second.Metadata)
	assert.Equal(t, "Artist", second.Metadata.User)
	require.NotEmpty(t, second.Media)
	assert.Equal(t, srv.URL+"/data/ef/page.jpg", second.Media[0].URL)
	assert.Equal(t, extract.TypeFileThumb, second.Media[0].Type)

	var failed []FailedItem
	readJSON(t, filepath.Join(userDir, "failed.json"), &failed)
	assert.Equal(t, []FailedItem{{Post: "10", URLs: []string{srv.URL + "/data/cd/gone.zip"}}}, failed)

	// unchanged profile: nothing is listed again
	require.NoError(t, c.crawlProfile(context.Background(), srv.URL+"/patreon/user/1"))
	assert.Equal(t, int32(1), atomic.LoadInt32(&listings))
}

func TestCrawlProfileSkipDownload(t *testing.T) {
	var listings int32
	srv := fakeKemono(t, &listings)
	defer srv.Close()

	out := t.TempDir()
	cfg := &Config{BaseURL: srv.URL, OutputDir: out, PageSize: 50, SkipDownload: true}
	c := &crawler{
		cfg:        cfg,
		api:        testAPIClient(srv, cfg.PageSize),
		downloader: &mediaDownloader{client: srv.Client(), limiter: newRateLimiter(0)},
	}

	require.NoError(t, c.crawlProfile(context.Background(), srv.URL+"/patreon/user/1"))

	userDir := filepath.Join(out, "patreon", "1")
	assert.FileExists(t, filepath.Join(userDir, "10", "10.json"))
	assert.NoFileExists(t, filepath.Join(userDir, "10", "pic.png"))
	assert.NoFileExists(t, filepath.Join(userDir, "failed.json"))
}

func TestCrawlProfileLogsLedgerFailure(t *testing.T) {
	var listings int32
	srv := fakeKemono(t, &listings)
	defer srv.Close()

	out := t.TempDir()
	// a directory where failed.json should go makes the ledger unwritable
	require.NoError(t, os.MkdirAll(filepath.Join(out, "patreon", "1", "failed.json"), 0755))

	cfg := &Config{BaseURL: srv.URL, OutputDir: out, PageSize: 50}
	c := &crawler{
		cfg:        cfg,
		api:        testAPIClient(srv, cfg.PageSize),
		downloader: &mediaDownloader{client: srv.Client(), limiter: newRateLimiter(0)},
	}

	hook := logtest.NewGlobal()
	defer hook.Reset()

	require.NoError(t, c.crawlProfile(context.Background(), "patreon/user/1"))
	assert.FileExists(t, filepath.Join(out, "patreon", "1", "10", "pic.png"))

	var logged bool
	for _, entry := range hook.AllEntries() {
		if entry.Level == logrus.WarnLevel && strings.Contains(entry.Message, "Failed to record failed download for post 10") {
			logged = true
		}
	}
	assert.True(t, logged, "ledger write failure was not logged")
}

func readJSON(t *testing.T, path string, v interface{}) {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, v))
}
