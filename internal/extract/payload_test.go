package extract

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustPayload(t *testing.T, raw string) Payload {
	t.Helper()
	p, err := ParsePayload([]byte(raw))
	require.NoError(t, err)
	return p
}

func TestPayloadMediaMainFile(t *testing.T) {
	e := New("https://kemono.cr")
	p := mustPayload(t, `{"post":{"file":{"path":"/data/image1.jpg","name":"main-image.jpg"}}}`)

	got := e.PayloadMedia(p)
	want := []MediaRecord{{
		URL:       "https://kemono.cr/data/image1.jpg",
		Filename:  "main-image.jpg",
		Type:      TypeMain,
		MediaType: KindImage,
		Source:    "api:post.file",
	}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("PayloadMedia mismatch (-want +got):\n%s", diff)
	}
}

func TestPayloadMediaPreviewDuplicatesMain(t *testing.T) {
	e := New("https://kemono.cr")
	p := mustPayload(t, `{
		"post": {"file": {"path": "/data/aa/bb/same.png", "name": "same.png"}},
		"previews": [
			{"type": "thumbnail", "server": "https://n1.kemono.cr", "path": "/data/aa/bb/same.png", "name": "same.png"}
		]
	}`)

	got := e.PayloadMedia(p)
	require.Len(t, got, 1)
	assert.Equal(t, TypeMain, got[0].Type)
	assert.Equal(t, "https://kemono.cr/data/aa/bb/same.png", got[0].URL)
}

func TestPayloadMediaPreviewWithoutServer(t *testing.T) {
	e := New("https://kemono.cr")
	p := mustPayload(t, `{
		"post": {"file": {"path": "/data/x.png", "name": "x.png"}},
		"previews": [{"type": "thumbnail", "server": "", "path": "/data/x.png", "name": "x.png"}]
	}`)

	got := e.PayloadMedia(p)
	require.Len(t, got, 1)
	assert.Equal(t, TypeMain, got[0].Type)
}

func TestPayloadMediaFullResponse(t *testing.T) {
	e := New("https://kemono.cr")
	p := mustPayload(t, `{
		"post": {
			"id": "100",
			"file": {"name": "cover.jpg", "path": "/data/11/cover.jpg"},
			"attachments": [
				{"name": "pack.zip", "path": "/data/22/pack.zip"},
				{"name": "clip.mp4", "path": "/data/33/clip.mp4"},
				{"name": "broken"}
			],
			"content": "<p>see https://files.example.com/extra.png and https://example.com/page</p><img src=\"/data/44/inline.gif\">"
		},
		"attachments": [
			{"server": "https://n2.kemono.cr", "name": "pack.zip", "path": "/data/22/pack.zip"}
		],
		"previews": [
			{"type": "thumbnail", "server": "https://n3.kemono.cr", "name": "p.jpg", "path": "/data/55/p.jpg"}
		],
		"videos": [
			{"server": "https://n4.kemono.cr", "name": "clip.mp4", "path": "/data/33/clip.mp4"},
			{"server": "https://n4.kemono.cr", "name": "other.webm", "path": "/data/66/other.webm"}
		]
	}`)

	got := e.PayloadMedia(p)

	var urls []string
	var types []MediaType
	for _, r := range got {
		urls = append(urls, r.URL)
		types = append(types, r.Type)
	}
	assert.Equal(t, []string{
		"https://kemono.cr/data/11/cover.jpg",
		"https://kemono.cr/data/22/pack.zip",
		"https://kemono.cr/data/33/clip.mp4",
		"https://n3.kemono.cr/data/55/p.jpg",
		"https://files.example.com/extra.png",
		"https://kemono.cr/data/44/inline.gif",
		"https://n4.kemono.cr/data/66/other.webm",
	}, urls)
	assert.Equal(t, []MediaType{
		TypeMain, TypeAttachment, TypeAttachment, TypePreview, TypeContent, TypeHTML, TypeVideo,
	}, types)

	assert.Equal(t, KindArchive, got[1].MediaType)
	assert.Equal(t, KindVideo, got[2].MediaType)
	assert.Empty(t, got[4].Filename)
}

func TestPayloadMediaLegacyShapes(t *testing.T) {
	e := New("https://kemono.cr")
	p := mustPayload(t, `{
		"id": "7",
		"file": {"name": "old.jpg", "path": "/old.jpg"},
		"files": ["/legacy/a.png", {"path": "/legacy/b.gif", "name": "b.gif"}, 12, {"name": "nopath"}]
	}`)

	got := e.PayloadMedia(p)
	want := []MediaRecord{
		{URL: "https://kemono.cr/old.jpg", Filename: "old.jpg", Type: TypeLegacy, MediaType: KindImage, Source: "api:file"},
		{URL: "https://kemono.cr/legacy/a.png", Type: TypeLegacy, MediaType: KindImage, Source: "api:files"},
		{URL: "https://kemono.cr/legacy/b.gif", Filename: "b.gif", Type: TypeLegacy, MediaType: KindImage, Source: "api:files"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("PayloadMedia mismatch (-want +got):\n%s", diff)
	}
}

func TestPayloadMediaLegacyFileIgnoredWithNestedPost(t *testing.T) {
	e := New("https://kemono.cr")
	p := mustPayload(t, `{"post": {"id": "1"}, "file": {"path": "/data/top.jpg"}}`)

	assert.Empty(t, e.PayloadMedia(p))
}

func TestPayloadMediaMalformed(t *testing.T) {
	e := New("https://kemono.cr")

	cases := []string{
		`{}`,
		`{"post": "not an object"}`,
		`{"post": {"file": "nope", "attachments": {"a": 1}, "content": 5}}`,
		`{"previews": "x", "files": {"a": "b"}, "videos": [1, 2, null]}`,
		`{"post": {"file": {"path": 123, "name": ["x"]}}}`,
	}
	for _, raw := range cases {
		got := e.PayloadMedia(mustPayload(t, raw))
		assert.NotNil(t, got, raw)
		assert.Empty(t, got, raw)
	}

	assert.Empty(t, e.PayloadMedia(nil))
}

func TestParsePayloadInvalidJSON(t *testing.T) {
	_, err := ParsePayload([]byte(`{"post":`))
	assert.Error(t, err)
}

type panickyObserver struct {
	recovered []error
}

func (o *panickyObserver) Strategy(component, strategy string, found int) {
	panic("observer failure")
}

func (o *panickyObserver) Recovered(component string, err error) {
	o.recovered = append(o.recovered, err)
}

func TestPayloadMediaRecoversFromPanic(t *testing.T) {
	obs := &panickyObserver{}
	e := New("https://kemono.cr", WithObserver(obs))
	p := mustPayload(t, `{"post":{"file":{"path":"/data/image1.jpg","name":"main-image.jpg"}}}`)

	got := e.PayloadMedia(p)
	assert.NotNil(t, got)
	assert.Empty(t, got)
	require.Len(t, obs.recovered, 1)
	assert.Contains(t, obs.recovered[0].Error(), "observer failure")
}

func TestPayloadMediaIsDeterministic(t *testing.T) {
	e := New("https://kemono.cr")
	p := mustPayload(t, `{
		"post": {"file": {"path": "/data/a.jpg"}, "attachments": [{"path": "/data/b.zip"}, {"path": "/data/a.jpg"}],
			"content": "https://x.example/c.png https://x.example/c.png"},
		"previews": [{"server": "https://n1.kemono.cr", "path": "/data/d.png"}]
	}`)

	first := e.PayloadMedia(p)
	second := e.PayloadMedia(p)
	assert.Equal(t, first, second)

	seen := map[string]bool{}
	for _, r := range first {
		assert.False(t, seen[r.URL], "duplicate url %s", r.URL)
		seen[r.URL] = true
	}
	assert.Len(t, first, 4)
}
