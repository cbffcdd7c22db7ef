package youtube_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/JakeFAU/dualsub-crawler/internal/crawler"
	"github.com/JakeFAU/dualsub-crawler/internal/youtube"
)

type fakeAPI struct {
	mu       sync.Mutex
	requests map[string][]*http.Request
	videos   int
}

func (f *fakeAPI) record(r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.requests == nil {
		f.requests = make(map[string][]*http.Request)
	}
	key := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
	f.requests[key] = append(f.requests[key], r)
}

func (f *fakeAPI) count(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests[key])
}

func (f *fakeAPI) last(key string) *http.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	reqs := f.requests[key]
	return reqs[len(reqs)-1]
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.record(r)
	w.Header().Set("Content-Type", "application/json")
	switch {
	case strings.HasSuffix(r.URL.Path, "/search"):
		writeJSON(w, map[string]any{
			"nextPageToken": "CDIQAA",
			"items": []map[string]any{
				{"id": map[string]any{"kind": "youtube#video", "videoId": "vid1"}, "snippet": map[string]any{"title": "ignored"}},
				{"id": map[string]any{"kind": "youtube#video", "videoId": "vid2"}, "snippet": map[string]any{
					"title": "Tom &amp; Jerry بالعربي", "channelTitle": "Cartoons", "publishedAt": "2023-05-01T10:00:00Z",
				}},
				{"id": map[string]any{"kind": "youtube#channel", "channelId": "ch1"}},
			},
		})
	case strings.HasSuffix(r.URL.Path, "/videos"):
		if f.videos >= 0 {
			writeJSON(w, map[string]any{
				"items": []map[string]any{{
					"id": "vid1",
					"snippet": map[string]any{
						"title":                "مسلسل الحلقة الأولى",
						"channelTitle":         "قناة",
						"publishedAt":          "2024-01-02T03:04:05Z",
						"defaultLanguage":      "ar",
						"defaultAudioLanguage": "ar-EG",
					},
				}},
			})
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
		writeJSON(w, map[string]any{"error": map[string]any{"code": 500, "message": "backend"}})
	case strings.HasSuffix(r.URL.Path, "/captions"):
		if r.URL.Query().Get("videoId") == "broken" {
			w.WriteHeader(http.StatusForbidden)
			writeJSON(w, map[string]any{"error": map[string]any{"code": 403, "message": "quotaExceeded"}})
			return
		}
		writeJSON(w, map[string]any{
			"items": []map[string]any{
				{"snippet": map[string]any{"language": "ar", "trackKind": "standard", "status": "serving"}},
				{"snippet": map[string]any{"language": "en", "trackKind": "asr", "status": "serving"}},
				{"snippet": map[string]any{"language": "fr", "trackKind": "forced", "status": "serving"}},
			},
		})
	default:
		http.NotFound(w, r)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	_ = json.NewEncoder(w).Encode(v)
}

type recordingWaiter struct {
	mu   sync.Mutex
	keys []string
}

func (r *recordingWaiter) Wait(_ context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys = append(r.keys, key)
	return nil
}

func newClient(t *testing.T, api *fakeAPI, waiter youtube.Waiter) *youtube.Client {
	t.Helper()
	server := httptest.NewServer(api)
	t.Cleanup(server.Close)
	client, err := youtube.New(context.Background(), youtube.Config{
		Endpoint:             server.URL + "/",
		TranslationLanguages: []string{"en", "fr", "de"},
	}, waiter, zap.NewNop(), option.WithoutAuthentication(), option.WithHTTPClient(server.Client()))
	require.NoError(t, err)
	return client
}

func TestSearchBuildsCandidates(t *testing.T) {
	api := &fakeAPI{}
	waiter := &recordingWaiter{}
	client := newClient(t, api, waiter)

	profile := crawler.SourceProfile{Name: "egypt", RegionCode: "EG", RelevanceLanguage: "ar", Query: "مسلسل"}
	page, err := client.Search(context.Background(), crawler.Cursor{Token: "CBQQAA", Profile: "egypt"}, profile, 25)
	require.NoError(t, err)
	require.Equal(t, "CDIQAA", page.Next)
	require.Len(t, page.Items, 2)

	first := page.Items[0]
	assert.Equal(t, "vid1", first.ID)
	assert.Equal(t, "مسلسل الحلقة الأولى", first.Title)
	assert.Equal(t, "ar", first.DefaultLanguage)
	assert.Equal(t, "ar-EG", first.DefaultAudioLanguage)
	assert.Equal(t, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), first.PublishedAt)
	assert.NotEmpty(t, first.Raw)

	second := page.Items[1]
	assert.Equal(t, "vid2", second.ID)
	assert.Equal(t, "Tom & Jerry بالعربي", second.Title)
	assert.Empty(t, second.LanguageHints())

	q := api.last("search").URL.Query()
	assert.Equal(t, "video", q.Get("type"))
	assert.Equal(t, "closedCaption", q.Get("videoCaption"))
	assert.Equal(t, "EG", q.Get("regionCode"))
	assert.Equal(t, "ar", q.Get("relevanceLanguage"))
	assert.Equal(t, "CBQQAA", q.Get("pageToken"))
	assert.Equal(t, "25", q.Get("maxResults"))
	assert.Equal(t, "مسلسل", q.Get("q"))
	assert.Equal(t, []string{youtube.KeySearch, youtube.KeyVideos}, waiter.keys)
}

func TestSearchDegradesWhenMetadataFails(t *testing.T) {
	api := &fakeAPI{videos: -1}
	client := newClient(t, api, nil)

	page, err := client.Search(context.Background(), crawler.Cursor{}, crawler.SourceProfile{Name: "egypt"}, 50)
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "ignored", page.Items[0].Title)
	assert.Empty(t, api.last("search").URL.Query().Get("pageToken"))
}

func TestListTracksMapsTrackKinds(t *testing.T) {
	api := &fakeAPI{}
	client := newClient(t, api, nil)

	tracks, err := client.ListTracks(context.Background(), "vid1")
	require.NoError(t, err)
	require.Equal(t, []crawler.Track{
		{Language: "ar", Translatable: true},
		{Language: "en", AutoGenerated: true, Translatable: true},
		{Language: "fr"},
	}, tracks)
	assert.Equal(t, "vid1", api.last("captions").URL.Query().Get("videoId"))
}

func TestListTranslationTargetsReusesLastLookup(t *testing.T) {
	api := &fakeAPI{}
	client := newClient(t, api, nil)

	_, err := client.ListTracks(context.Background(), "vid1")
	require.NoError(t, err)
	targets, err := client.ListTranslationTargets(context.Background(), "vid1")
	require.NoError(t, err)
	assert.Equal(t, []string{"en", "fr", "de"}, targets)
	assert.Equal(t, 1, api.count("captions"))

	_, err = client.ListTranslationTargets(context.Background(), "vid2")
	require.NoError(t, err)
	assert.Equal(t, 2, api.count("captions"))
}

func TestListTracksReturnsAPIError(t *testing.T) {
	client := newClient(t, &fakeAPI{}, nil)

	_, err := client.ListTracks(context.Background(), "broken")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "captions.list broken")
}
