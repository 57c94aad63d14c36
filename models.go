package main

import (
	"time"

	"kemono-scraper/internal/extract"
)

type ProfileConfig struct {
	BaseURL string
	Service string
	UserID  string
}

// ProfileURL is the rendered profile page for the configured creator.
func (p *ProfileConfig) ProfileURL() string {
	return p.BaseURL + "/" + p.Service + "/user/" + p.UserID
}

// PostURL is the rendered page of a single post.
func (p *ProfileConfig) PostURL(postID string) string {
	return p.ProfileURL() + "/post/" + postID
}

// Post is one entry of the paginated posts listing.
type Post struct {
	Id        string `json:"id"`
	User      string `json:"user"`
	Service   string `json:"service"`
	Title     string `json:"title"`
	Substring string `json:"substring"`
	Published string `json:"published"`
}

type ProfileResponse struct {
	Id         string      `json:"id"`
	Name       string      `json:"name"`
	Service    string      `json:"service"`
	Indexed    string      `json:"indexed"`
	Updated    string      `json:"updated"`
	PublicId   string      `json:"public_id"`
	RelationId interface{} `json:"relation_id"`
	PostCount  int         `json:"post_count"`
	DmCount    int         `json:"dm_count"`
	ShareCount int         `json:"share_count"`
	ChatCount  int         `json:"chat_count"`
}

// SavedPost is what gets written to {service}/{user}/{post}/{post}.json.
type SavedPost struct {
	Post        extract.PostRecord    `json:"post"`
	PublishedAt *time.Time            `json:"published_at,omitempty"`
	Metadata    *extract.Metadata     `json:"metadata,omitempty"`
	Media       []extract.MediaRecord `json:"media"`
	Payload     extract.Payload       `json:"payload,omitempty"`
}

type FailedItem struct {
	Post string   `json:"post"`
	URLs []string `json:"urls"`
}
