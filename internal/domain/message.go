package domain

import (
	"encoding/json"
	"net/url"
)

// Message is the subset of an upstream message the archiver cares about
type Message struct {
	ID        Snowflake `json:"id"`
	ChannelID string    `json:"channel_id,omitempty"`
	Content   string    `json:"content,omitempty"`
	Timestamp string    `json:"timestamp,omitempty"`
	Embeds    []Embed   `json:"embeds"`
}

// Embed is a rich embed attached to a message
type Embed struct {
	Type        string      `json:"type,omitempty"`
	URL         string      `json:"url,omitempty"`
	Title       string      `json:"title,omitempty"`
	Description string      `json:"description,omitempty"`
	Image       *EmbedMedia `json:"image,omitempty"`
	Thumbnail   *EmbedMedia `json:"thumbnail,omitempty"`
	Video       *EmbedMedia `json:"video,omitempty"`
}

// EmbedMedia is one media variant of an embed
type EmbedMedia struct {
	URL      string `json:"url,omitempty"`
	ProxyURL string `json:"proxy_url,omitempty"`
	Width    int    `json:"width,omitempty"`
	Height   int    `json:"height,omitempty"`
}

func (m *EmbedMedia) usable() bool {
	return m != nil && m.URL != "" && m.ProxyURL != ""
}

// MediaVariant names which embed variant a media reference came from
type MediaVariant string

const (
	VariantVideo     MediaVariant = "video"
	VariantImage     MediaVariant = "image"
	VariantThumbnail MediaVariant = "thumbnail"
)

// MediaRef is one downloadable media reference extracted from an embed
type MediaRef struct {
	EmbedIndex int          `json:"embed_index"`
	Variant    MediaVariant `json:"variant"`
	URL        string       `json:"url"`       // direct URL, fetched first
	ProxyURL   string       `json:"proxy_url"` // upstream media proxy, the fallback
	Link       string       `json:"link,omitempty"`
}

// MediaRef returns the embed's media reference. Variants are checked in the
// order video, image, thumbnail; the first carrying both URLs wins.
func (e Embed) MediaRef() (MediaRef, bool) {
	candidates := []struct {
		variant MediaVariant
		media   *EmbedMedia
	}{
		{VariantVideo, e.Video},
		{VariantImage, e.Image},
		{VariantThumbnail, e.Thumbnail},
	}
	for _, c := range candidates {
		if !c.media.usable() {
			continue
		}
		ref := MediaRef{
			Variant:  c.variant,
			URL:      c.media.URL,
			ProxyURL: c.media.ProxyURL,
		}
		if e.URL != "" {
			ref.Link = NormalizeLink(e.URL)
		}
		return ref, true
	}
	return MediaRef{}, false
}

// MediaRefs extracts one media reference per qualifying embed, in embed order
func (m *Message) MediaRefs() []MediaRef {
	var refs []MediaRef
	for i, embed := range m.Embeds {
		if ref, ok := embed.MediaRef(); ok {
			ref.EmbedIndex = i
			refs = append(refs, ref)
		}
	}
	return refs
}

// HasArchivableMedia reports whether at least one embed carries a media reference
func (m *Message) HasArchivableMedia() bool {
	for _, embed := range m.Embeds {
		if _, ok := embed.MediaRef(); ok {
			return true
		}
	}
	return false
}

// EmbedsSnapshot returns the embeds as raw JSON for storing alongside a record
func (m *Message) EmbedsSnapshot() json.RawMessage {
	if len(m.Embeds) == 0 {
		return json.RawMessage("[]")
	}
	data, err := json.Marshal(m.Embeds)
	if err != nil {
		return json.RawMessage("[]")
	}
	return data
}

// twitterHostnames are mirrors canonicalized to twitterCanonicalHost
var twitterHostnames = map[string]bool{
	"twitter.com":       true,
	"www.twitter.com":   true,
	"m.twitter.com":     true,
	"x.com":             true,
	"www.x.com":         true,
	"vxtwitter.com":     true,
	"www.vxtwitter.com": true,
	"fxtwitter.com":     true,
	"www.fxtwitter.com": true,
}

const twitterCanonicalHost = "twitter.com"

// NormalizeLink rewrites known Twitter/X mirror hosts to twitter.com and strips
// their query string. Other URLs, and strings that do not parse, are returned as is.
func NormalizeLink(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	if !twitterHostnames[u.Hostname()] {
		return raw
	}
	u.Host = twitterCanonicalHost
	u.RawQuery = ""
	u.ForceQuery = false
	return u.String()
}
