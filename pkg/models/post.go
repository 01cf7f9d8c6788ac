package models

import (
	"errors"
	"strings"
	"time"
)

var ErrInvalidImageSource = errors.New("image source must have exactly one of URL or data")

// HostedImage is a publicly reachable copy of a generated image.
type HostedImage struct {
	URL        string `json:"url"`
	ID         string `json:"id,omitempty"`
	DeleteHash string `json:"delete_hash,omitempty"`
}

// ImageSource is what a media container is created from: a public URL or the raw bytes.
type ImageSource struct {
	URL  string
	Data []byte
}

func SourceFromURL(url string) ImageSource {
	return ImageSource{URL: url}
}

func SourceFromBytes(data []byte) ImageSource {
	return ImageSource{Data: data}
}

func (s ImageSource) IsURL() bool {
	return s.URL != ""
}

func (s ImageSource) Validate() error {
	if (s.URL == "") == (len(s.Data) == 0) {
		return ErrInvalidImageSource
	}
	return nil
}

// MediaContainer is a server-side staging resource awaiting publish.
type MediaContainer struct {
	CreationID string `json:"id"`
}

type PublishStatus string

const (
	StatusSuccess PublishStatus = "success"
	StatusError   PublishStatus = "error"
)

type PublishResult struct {
	Status    PublishStatus `json:"status"`
	PostID    string        `json:"post_id,omitempty"`
	ImageURL  string        `json:"image_url,omitempty"`
	Message   string        `json:"message,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

func NewSuccessResult(postID string, at time.Time) PublishResult {
	return PublishResult{
		Status:    StatusSuccess,
		PostID:    postID,
		Timestamp: at,
	}
}

func NewErrorResult(message string, at time.Time) PublishResult {
	return PublishResult{
		Status:    StatusError,
		Message:   message,
		Timestamp: at,
	}
}

func (r PublishResult) OK() bool {
	return r.Status == StatusSuccess
}

// ComposeCaption appends the hashtags to the caption, separated by a blank line.
func ComposeCaption(caption string, hashtags []string) string {
	tags := make([]string, 0, len(hashtags))
	for _, h := range hashtags {
		h = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(h), "#"))
		if h == "" {
			continue
		}
		tags = append(tags, "#"+h)
	}
	if len(tags) == 0 {
		return caption
	}
	return caption + "\n\n" + strings.Join(tags, " ")
}

// Enrichment is a generation prompt plus the hashtags that go with it.
type Enrichment struct {
	Prompt   string   `json:"prompt"`
	Summary  string   `json:"summary,omitempty"`
	Hashtags []string `json:"hashtags"`
	Source   string   `json:"source"`
}
