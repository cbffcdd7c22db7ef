// Package youtube adapts the YouTube Data API v3 to the crawler's search and
// caption-track interfaces.
package youtube

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"google.golang.org/api/option"
	yt "google.golang.org/api/youtube/v3"

	"github.com/JakeFAU/dualsub-crawler/internal/crawler"
)

// Rate limiter keys, one per API method.
const (
	KeySearch   = "search.list"
	KeyVideos   = "videos.list"
	KeyCaptions = "captions.list"
)

// Waiter paces API calls.
type Waiter interface {
	Wait(ctx context.Context, key string) error
}

// Config configures the client.
type Config struct {
	APIKey string
	// Endpoint overrides the API base URL.
	Endpoint string
	// TranslationLanguages are the targets offered for any translatable track.
	TranslationLanguages []string
}

// Client implements crawler.SearchProvider and crawler.TrackLookup.
type Client struct {
	svc          *yt.Service
	limiter      Waiter
	translations []string
	logger       *zap.Logger

	mu   sync.Mutex
	last trackLookup
}

type trackLookup struct {
	id     string
	tracks []crawler.Track
}

var (
	_ crawler.SearchProvider = (*Client)(nil)
	_ crawler.TrackLookup    = (*Client)(nil)
)

// New creates a client. Extra options are appended after those derived from cfg.
func New(ctx context.Context, cfg Config, limiter Waiter, logger *zap.Logger, opts ...option.ClientOption) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var clientOpts []option.ClientOption
	if cfg.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.Endpoint != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(cfg.Endpoint))
	}
	clientOpts = append(clientOpts, opts...)
	if len(clientOpts) == 0 {
		return nil, errors.New("youtube: api key or client options are required")
	}
	svc, err := yt.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("youtube: create service: %w", err)
	}
	return &Client{
		svc:          svc,
		limiter:      limiter,
		translations: append([]string(nil), cfg.TranslationLanguages...),
		logger:       logger,
	}, nil
}

// Search fetches one page of captioned videos for profile starting at cursor
// and enriches the hits with their language metadata.
func (c *Client) Search(
	ctx context.Context,
	cursor crawler.Cursor,
	profile crawler.SourceProfile,
	pageSize int,
) (crawler.Page, error) {
	if err := c.wait(ctx, KeySearch); err != nil {
		return crawler.Page{}, err
	}
	call := c.svc.Search.List([]string{"snippet"}).
		Type("video").
		VideoCaption("closedCaption").
		MaxResults(int64(pageSize)).
		Context(ctx)
	if profile.RegionCode != "" {
		call = call.RegionCode(profile.RegionCode)
	}
	if profile.RelevanceLanguage != "" {
		call = call.RelevanceLanguage(profile.RelevanceLanguage)
	}
	if profile.Query != "" {
		call = call.Q(profile.Query)
	}
	if cursor.Token != "" {
		call = call.PageToken(cursor.Token)
	}
	resp, err := call.Do()
	if err != nil {
		return crawler.Page{}, fmt.Errorf("youtube: search.list: %w", err)
	}

	page := crawler.Page{Next: resp.NextPageToken}
	ids := make([]string, 0, len(resp.Items))
	hits := make(map[string]*yt.SearchResult, len(resp.Items))
	for _, hit := range resp.Items {
		if hit == nil || hit.Id == nil || hit.Id.VideoId == "" {
			continue
		}
		if _, dup := hits[hit.Id.VideoId]; dup {
			continue
		}
		ids = append(ids, hit.Id.VideoId)
		hits[hit.Id.VideoId] = hit
	}
	if len(ids) == 0 {
		return page, nil
	}

	videos, err := c.videos(ctx, ids)
	if err != nil {
		c.logger.Warn("video metadata lookup failed, using search snippets",
			zap.String("profile", profile.Name),
			zap.Error(err),
		)
	}
	for _, id := range ids {
		if video, ok := videos[id]; ok {
			page.Items = append(page.Items, fromVideo(video))
			continue
		}
		page.Items = append(page.Items, fromSearchResult(hits[id]))
	}
	return page, nil
}

func (c *Client) videos(ctx context.Context, ids []string) (map[string]*yt.Video, error) {
	if err := c.wait(ctx, KeyVideos); err != nil {
		return nil, err
	}
	resp, err := c.svc.Videos.List([]string{"snippet", "contentDetails"}).
		Id(ids...).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("youtube: videos.list: %w", err)
	}
	out := make(map[string]*yt.Video, len(resp.Items))
	for _, video := range resp.Items {
		if video != nil && video.Snippet != nil {
			out[video.Id] = video
		}
	}
	return out, nil
}

// ListTracks returns the caption tracks of a video.
func (c *Client) ListTracks(ctx context.Context, id string) ([]crawler.Track, error) {
	if err := c.wait(ctx, KeyCaptions); err != nil {
		return nil, err
	}
	resp, err := c.svc.Captions.List([]string{"snippet"}, id).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("youtube: captions.list %s: %w", id, err)
	}
	tracks := make([]crawler.Track, 0, len(resp.Items))
	for _, caption := range resp.Items {
		if caption == nil || caption.Snippet == nil {
			continue
		}
		s := caption.Snippet
		kind := strings.ToLower(s.TrackKind)
		tracks = append(tracks, crawler.Track{
			Language:      s.Language,
			AutoGenerated: kind == "asr",
			Translatable:  kind != "forced" && (s.Status == "" || s.Status == "serving"),
		})
	}
	c.mu.Lock()
	c.last = trackLookup{id: id, tracks: tracks}
	c.mu.Unlock()
	return tracks, nil
}

// ListTranslationTargets returns the languages a video's captions can be
// auto-translated into. The API does not list them per video, so any
// translatable track yields the configured language list.
func (c *Client) ListTranslationTargets(ctx context.Context, id string) ([]string, error) {
	c.mu.Lock()
	last := c.last
	c.mu.Unlock()

	tracks := last.tracks
	if last.id != id {
		var err error
		tracks, err = c.ListTracks(ctx, id)
		if err != nil {
			return nil, err
		}
	}
	for _, track := range tracks {
		if track.Translatable {
			return append([]string(nil), c.translations...), nil
		}
	}
	return nil, nil
}

func (c *Client) wait(ctx context.Context, key string) error {
	if c.limiter == nil {
		return nil
	}
	if err := c.limiter.Wait(ctx, key); err != nil {
		return fmt.Errorf("youtube: %s: %w", key, err)
	}
	return nil
}

func fromVideo(video *yt.Video) crawler.CandidateItem {
	s := video.Snippet
	item := crawler.CandidateItem{
		ID:                   video.Id,
		Title:                s.Title,
		ChannelTitle:         s.ChannelTitle,
		PublishedAt:          parseTime(s.PublishedAt),
		DefaultLanguage:      s.DefaultLanguage,
		DefaultAudioLanguage: s.DefaultAudioLanguage,
	}
	if raw, err := json.Marshal(video); err == nil {
		item.Raw = raw
	}
	return item
}

// fromSearchResult is used when videos.list did not return a hit. Search
// snippets carry HTML-escaped titles and no language metadata.
func fromSearchResult(hit *yt.SearchResult) crawler.CandidateItem {
	item := crawler.CandidateItem{ID: hit.Id.VideoId}
	if s := hit.Snippet; s != nil {
		item.Title = html.UnescapeString(s.Title)
		item.ChannelTitle = html.UnescapeString(s.ChannelTitle)
		item.PublishedAt = parseTime(s.PublishedAt)
	}
	if raw, err := json.Marshal(hit); err == nil {
		item.Raw = raw
	}
	return item
}

func parseTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}
