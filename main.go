package main

import (
	"context"
	"flag"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/PuerkitoBio/goquery"
	"github.com/pkg/errors"

	"kemono-scraper/internal/extract"
	"kemono-scraper/internal/queue"
)

func main() {
	forceUpdate := flag.Bool("force", false, "Force update even if profile timestamp hasn't changed")
	skipDownload := flag.Bool("skip-download", false, "Save post metadata without downloading files")
	htmlMode := flag.Bool("html", false, "Discover posts from the rendered profile page instead of the API listing")
	configPath := flag.String("config", "", "Path to YAML config (default kemono.yaml)")
	queueFile := flag.String("queue", "", "Profile queue file; positional URLs are appended to it")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: kemono-dl [options] <url>...\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
	}

	flag.Parse()

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		Log.Fatalf("Failed to load config: %s", err)
	}
	initLogger(cfg.LogLevel)

	if *skipDownload {
		cfg.SkipDownload = true
	}
	if *htmlMode {
		cfg.HTMLFallback = true
	}
	if *queueFile != "" {
		cfg.QueueFile = *queueFile
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	c := newCrawler(cfg, *forceUpdate)
	targets := flag.Args()

	if cfg.QueueFile == "" {
		if len(targets) < 1 {
			flag.Usage()
			os.Exit(1)
		}
		for _, target := range targets {
			if err := c.crawlProfile(ctx, target); err != nil {
				Log.Fatalf("Failed to crawl %s: %s", target, err)
			}
		}
		Log.Info("All posts saved successfully")
		return
	}

	q := queue.Open(cfg.QueueFile)
	for _, target := range targets {
		if _, err := q.Append(target); err != nil {
			Log.Fatalf("Failed to queue %s: %s", target, err)
		}
	}
	pending, err := q.Pending()
	if err != nil {
		Log.Fatalf("Failed to read queue: %s", err)
	}
	Log.Infof("%d profiles queued in %s", len(pending), q.Path())

	for _, target := range pending {
		if ctx.Err() != nil {
			break
		}
		if err := c.crawlProfile(ctx, target); err != nil {
			Log.Errorf("Failed to crawl %s: %s", target, err)
			continue
		}
		if err := q.MarkDone(target); err != nil {
			Log.Errorf("Failed to update queue: %s", err)
		}
	}
}

type crawler struct {
	cfg         *Config
	api         *apiClient
	downloader  *mediaDownloader
	forceUpdate bool
}

func newCrawler(cfg *Config, forceUpdate bool) *crawler {
	return &crawler{
		cfg:         cfg,
		api:         newAPIClient(cfg),
		downloader:  newMediaDownloader(cfg),
		forceUpdate: forceUpdate,
	}
}

// crawlProfile mirrors one creator: profile, post list, post media.
func (c *crawler) crawlProfile(ctx context.Context, inputURL string) error {
	profile, err := extractProfileConfig(inputURL, c.cfg.BaseURL)
	if err != nil {
		return errors.Wrap(err, "failed to parse URL")
	}

	Log.Infof("Base URL: %s", profile.BaseURL)
	Log.Infof("Service: %s", profile.Service)
	Log.Infof("User ID: %s", profile.UserID)

	ex := extract.New(profile.BaseURL, extract.WithObserver(newLogObserver()))

	profileData, err := c.api.fetchProfile(ctx, profile)
	if err != nil {
		return err
	}
	Log.Infof("Total posts: %d", profileData.PostCount)

	profileDir := filepath.Join(c.cfg.OutputDir, profile.Service, profileData.Id)
	shouldUpdate, err := shouldUpdateProfile(profileDir, profileData, c.forceUpdate)
	if err != nil {
		return errors.Wrap(err, "failed to check profile status")
	}
	if !shouldUpdate {
		Log.Info("Nothing to download")
		return nil
	}

	posts, err := c.discoverPosts(ctx, ex, profile)
	if err != nil {
		return err
	}

	if err := c.fetchAndSaveDetailedPosts(ctx, ex, profile, posts); err != nil {
		return errors.Wrap(err, "failed to save posts")
	}

	// Saved last so an interrupted crawl is retried on the next run.
	if err := saveProfile(c.cfg.OutputDir, profile.Service, profileData); err != nil {
		return errors.Wrap(err, "failed to save profile")
	}
	return nil
}

// discoverPosts uses the API listing and falls back to the rendered profile
// page when the listing is unavailable or HTML mode is on.
func (c *crawler) discoverPosts(ctx context.Context, ex *extract.Extractor, profile *ProfileConfig) ([]extract.PostRecord, error) {
	if !c.cfg.HTMLFallback {
		posts, err := c.api.fetchPostsWithPagination(ctx, profile)
		if err == nil {
			return postRecordsFromAPI(profile, posts), nil
		}
		Log.Warnf("⚠️  Posts listing failed, falling back to profile page: %s", err)
	}

	doc, err := c.api.fetchDocument(ctx, profile.ProfileURL())
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch profile page")
	}
	Log.Infof("Creator: %s", ex.Username(doc, profile.ProfileURL()))

	posts := ex.Posts(doc)
	Log.Infof("Found %d posts on profile page", len(posts))
	return posts, nil
}

func postRecordsFromAPI(profile *ProfileConfig, posts []Post) []extract.PostRecord {
	records := make([]extract.PostRecord, 0, len(posts))
	for _, p := range posts {
		title := strings.TrimSpace(p.Title)
		if title == "" {
			title = extract.UntitledPost
		}
		records = append(records, extract.PostRecord{
			URL:       profile.PostURL(p.Id),
			ID:        p.Id,
			Title:     title,
			Published: p.Published,
		})
	}
	return records
}

// fetchAndSaveDetailedPosts extracts, saves and downloads the media of every
// post. Failures are per post and never stop the crawl.
func (c *crawler) fetchAndSaveDetailedPosts(ctx context.Context, ex *extract.Extractor, profile *ProfileConfig, posts []extract.PostRecord) error {
	totalPosts := len(posts)
	Log.Infof("Processing %d posts", totalPosts)

	for idx, post := range posts {
		if err := ctx.Err(); err != nil {
			return err
		}
		Log.Infof("[%d/%d] Fetching detailed data for post: %s", idx+1, totalPosts, post.ID)

		saved := c.collectPost(ctx, ex, profile, post)
		if err := savePost(c.cfg.OutputDir, profile.Service, profile.UserID, saved); err != nil {
			Log.Warnf("Warning: Failed to save post %s: %s", post.ID, err)
			continue
		}
		Log.Infof("Saved post metadata: %s (%d media)", post.ID, len(saved.Media))

		if c.cfg.SkipDownload {
			Log.Infof("⏭️  Skipping file download for post %s (skip-download mode)", post.ID)
			continue
		}

		postDir := filepath.Join(c.cfg.OutputDir, profile.Service, profile.UserID, post.ID)
		for _, record := range saved.Media {
			if _, err := c.downloader.download(ctx, postDir, record); err != nil {
				Log.Warnf("Warning: Failed to download %s for post %s: %s", record.URL, post.ID, err)
				if err := AppendFailedDownload(c.cfg.OutputDir, profile.Service, profile.UserID, post.ID, record.URL); err != nil {
					Log.Warnf("Warning: Failed to record failed download for post %s: %s", post.ID, err)
				}
			}
		}
	}

	return nil
}

// collectPost gathers the media of one post: the API payload first, the
// rendered post page when the payload yields nothing.
func (c *crawler) collectPost(ctx context.Context, ex *extract.Extractor, profile *ProfileConfig, post extract.PostRecord) *SavedPost {
	saved := &SavedPost{Post: post, Media: []extract.MediaRecord{}}
	defer stampPublished(saved)

	payload, err := c.api.fetchDetailedPost(ctx, profile, post.ID)
	if err != nil {
		Log.Warnf("Warning: Failed to fetch detailed post %s: %s", post.ID, err)
	} else {
		saved.Payload = payload
		saved.Media = ex.PayloadMedia(payload)
	}
	if len(saved.Media) > 0 {
		return saved
	}

	doc, err := c.api.fetchDocument(ctx, post.URL)
	if err != nil {
		Log.Warnf("Warning: Failed to fetch post page %s: %s", post.URL, err)
		return saved
	}
	saved.Media = ex.Media(doc)
	saved.Metadata = pageMetadata(ex, doc)
	if saved.Post.Title == extract.UntitledPost && saved.Metadata.Title != extract.UntitledPost {
		saved.Post.Title = saved.Metadata.Title
	}
	if saved.Post.Published == "" {
		saved.Post.Published = saved.Metadata.Published
	}
	return saved
}

// stampPublished records the parsed publish time next to the raw text.
func stampPublished(saved *SavedPost) {
	if t, ok := saved.Post.PublishedTime(); ok {
		t = t.UTC()
		saved.PublishedAt = &t
	}
}

func pageMetadata(ex *extract.Extractor, doc *goquery.Document) *extract.Metadata {
	m := ex.Metadata(doc)
	return &m
}

// extractProfileConfig parses the profile URL and extracts base URL, service, and user ID.
// Entries without a scheme, such as "patreon/user/1", are resolved against baseURL.
func extractProfileConfig(profileURL, baseURL string) (*ProfileConfig, error) {
	if !strings.Contains(profileURL, "://") {
		profileURL = extract.NewNormalizer(baseURL).Canonicalize(profileURL)
	}
	parsedURL, err := url.Parse(profileURL)
	if err != nil {
		return nil, errors.Wrap(err, "invalid URL format")
	}
	if parsedURL.Scheme == "" || parsedURL.Host == "" {
		return nil, errors.New("URL must be absolute")
	}

	// Expected format: /{service}/user/{user_id}
	pathParts := strings.Split(strings.Trim(parsedURL.Path, "/"), "/")
	if len(pathParts) < 3 || pathParts[1] != "user" {
		return nil, errors.New("URL does not match expected format: /{service}/user/{user_id}")
	}

	service := pathParts[0]
	userID := pathParts[2]

	if service == "" || userID == "" {
		return nil, errors.New("service or user ID is empty")
	}

	return &ProfileConfig{
		BaseURL: fmt.Sprintf("%s://%s", parsedURL.Scheme, parsedURL.Host),
		Service: service,
		UserID:  userID,
	}, nil
}
