package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	getter "github.com/hashicorp/go-getter"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	"kemono-scraper/internal/extract"
)

// AppendFailedDownload records url under postID in {service}/{user}/failed.json.
func AppendFailedDownload(baseDir, service, userID, postID, url string) error {
	failedFile := filepath.Join(baseDir, service, userID, "failed.json")
	var failedList []FailedItem

	// Try to read existing failed.json
	data, err := os.ReadFile(failedFile)
	if err == nil {
		_ = json.Unmarshal(data, &failedList)
	}

	idx := -1
	for i, item := range failedList {
		if item.Post == postID {
			idx = i
			break
		}
	}
	if idx < 0 {
		failedList = append(failedList, FailedItem{Post: postID})
		idx = len(failedList) - 1
	}
	for _, u := range failedList[idx].URLs {
		if u == url {
			return nil
		}
	}
	failedList[idx].URLs = append(failedList[idx].URLs, url)

	if err := os.MkdirAll(filepath.Dir(failedFile), 0755); err != nil {
		return errors.Wrap(err, "failed to create profile directory")
	}
	out, err := json.MarshalIndent(failedList, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal failed list")
	}
	if err := os.WriteFile(failedFile, out, 0644); err != nil {
		return errors.Wrap(err, "failed to write failed.json")
	}
	return nil
}

// savePost saves the post record to {service}/{user}/{post}/{post}.json
func savePost(baseDir, service, userID string, saved *SavedPost) error {
	postDir := filepath.Join(baseDir, service, userID, saved.Post.ID)
	if err := os.MkdirAll(postDir, 0755); err != nil {
		return errors.Wrap(err, "failed to create post directory")
	}

	jsonData, err := json.MarshalIndent(saved, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal post data")
	}

	postFilePath := filepath.Join(postDir, saved.Post.ID+".json")
	if err := os.WriteFile(postFilePath, jsonData, 0644); err != nil {
		return errors.Wrap(err, "failed to write post JSON")
	}
	return nil
}

// saveProfile saves the profile details as a JSON file in the service/userID directory
func saveProfile(baseDir string, service string, profile *ProfileResponse) error {
	profileDir := filepath.Join(baseDir, service, profile.Id)
	if err := os.MkdirAll(profileDir, 0755); err != nil {
		return errors.Wrap(err, "failed to create profile directory")
	}

	profileData, err := json.MarshalIndent(profile, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal profile data")
	}

	// The file is named after the profile so shouldUpdateProfile can find it
	// without knowing the name.
	profileFilePath := filepath.Join(profileDir, sanitizeFilename(profile.Name, "profile")+".json")
	if err := os.WriteFile(profileFilePath, profileData, 0644); err != nil {
		return errors.Wrap(err, "failed to write profile JSON")
	}
	return nil
}

// shouldUpdateProfile checks if profile folder exists and compares the updated timestamp
func shouldUpdateProfile(profileDir string, newProfile *ProfileResponse, forceUpdate bool) (bool, error) {
	if forceUpdate {
		Log.Info("Force update enabled, skipping timestamp check")
		return true, nil
	}

	files, err := os.ReadDir(profileDir)
	if err != nil {
		if os.IsNotExist(err) {
			return true, nil
		}
		return false, errors.Wrap(err, "failed to read profile directory")
	}

	var profileFile string
	for _, file := range files {
		if !file.IsDir() && strings.HasSuffix(file.Name(), ".json") && file.Name() != "failed.json" {
			profileFile = filepath.Join(profileDir, file.Name())
			break
		}
	}
	if profileFile == "" {
		return true, nil
	}

	data, err := os.ReadFile(profileFile)
	if err != nil {
		return false, errors.Wrap(err, "failed to read profile file")
	}

	var existingProfile ProfileResponse
	if err := json.Unmarshal(data, &existingProfile); err != nil {
		return false, errors.Wrap(err, "failed to unmarshal existing profile")
	}

	return existingProfile.Updated != newProfile.Updated, nil
}

// ProgressWriter logs download progress at most once a second.
type ProgressWriter struct {
	fileName       string
	totalSize      int64
	downloadedSize int64
	lastLogTime    time.Time
}

func (pw *ProgressWriter) Write(p []byte) (int, error) {
	n := len(p)
	pw.downloadedSize += int64(n)

	now := time.Now()
	if now.Sub(pw.lastLogTime) >= time.Second || pw.downloadedSize == pw.totalSize {
		pw.lastLogTime = now
		downloadedMB := float64(pw.downloadedSize) / 1024 / 1024
		if pw.totalSize > 0 {
			percentage := float64(pw.downloadedSize) / float64(pw.totalSize) * 100
			totalMB := float64(pw.totalSize) / 1024 / 1024
			Log.Debugf("[%s] Progress: %.1f%% (%.2f MB / %.2f MB)", pw.fileName, percentage, downloadedMB, totalMB)
		} else {
			Log.Debugf("[%s] Downloaded: %.2f MB (unknown total size)", pw.fileName, downloadedMB)
		}
	}

	return n, nil
}

// progressTracker plugs a ProgressWriter into go-getter.
type progressTracker struct {
	pw *ProgressWriter
}

type trackedBody struct {
	io.Reader
	io.Closer
}

func (t progressTracker) TrackProgress(src string, currentSize, totalSize int64, stream io.ReadCloser) io.ReadCloser {
	t.pw.totalSize = totalSize
	t.pw.downloadedSize = currentSize
	return &trackedBody{Reader: io.TeeReader(stream, t.pw), Closer: stream}
}

type mediaDownloader struct {
	client  *http.Client
	limiter *rate.Limiter
}

func newMediaDownloader(cfg *Config) *mediaDownloader {
	return &mediaDownloader{
		client:  httpClient,
		limiter: newRateLimiter(cfg.RequestsPerSecond),
	}
}

// download fetches record into destDir and returns the written path. Existing
// files are left alone. When the full-resolution URL fails and the record
// came from a thumbnail, the thumbnail itself is saved instead.
func (d *mediaDownloader) download(ctx context.Context, destDir string, record extract.MediaRecord) (string, error) {
	fileName := mediaFilename(record)
	outputPath := filepath.Join(destDir, fileName)
	if _, err := os.Stat(outputPath); err == nil {
		Log.Infof("File already exists, skipping: %s", fileName)
		return outputPath, nil
	}

	err := d.fetch(ctx, record.URL, destDir, outputPath)
	if err != nil && record.ThumbnailURL != "" && record.ThumbnailURL != record.URL && ctx.Err() == nil {
		Log.Warnf("⚠️  %s failed, falling back to thumbnail: %s", fileName, err)
		err = d.fetch(ctx, record.ThumbnailURL, destDir, outputPath)
	}
	if err != nil {
		return "", err
	}
	return outputPath, nil
}

func (d *mediaDownloader) fetch(ctx context.Context, src, destDir, outputPath string) error {
	fileName := filepath.Base(outputPath)
	if err := d.limiter.Wait(ctx); err != nil {
		return errors.Wrap(err, "rate limiter")
	}

	httpGetter := &getter.HttpGetter{
		Client: d.client,
		Header: http.Header{"User-Agent": []string{userAgent}},
	}
	startTime := time.Now()
	progress := &ProgressWriter{fileName: fileName, lastLogTime: startTime}
	client := &getter.Client{
		Ctx:  ctx,
		Src:  src,
		Dst:  outputPath,
		Pwd:  destDir,
		Mode: getter.ClientModeFile,
		Getters: map[string]getter.Getter{
			"http":  httpGetter,
			"https": httpGetter,
		},
		// Archives are stored as downloaded, never unpacked.
		Decompressors:    map[string]getter.Decompressor{},
		ProgressListener: progressTracker{pw: progress},
	}

	Log.Infof("Starting download: %s", fileName)
	if err := client.Get(); err != nil {
		os.Remove(outputPath)
		return errors.Wrapf(err, "failed to download %s", src)
	}

	duration := time.Since(startTime)
	Log.Infof("Completed download: %s (%.2f MB in %.1fs)",
		fileName, float64(progress.downloadedSize)/1024/1024, duration.Seconds())
	return nil
}

// mediaFilename picks the on-disk name for a record. Alt texts and link
// labels often lack an extension, in which case the URL's name is used.
func mediaFilename(record extract.MediaRecord) string {
	name := sanitizeFilename(record.Filename, "")
	if filepath.Ext(name) == "" {
		name = sanitizeFilename(extract.FilenameFromURL(record.URL), "file")
	}
	return name
}

func sanitizeFilename(name, fallback string) string {
	name = strings.TrimSpace(name)
	name = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, name)
	if name == "" || name == "." || name == ".." {
		return fallback
	}
	return name
}
