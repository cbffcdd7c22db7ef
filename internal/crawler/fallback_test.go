package crawler

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type scriptedProvider struct {
	pages map[Cursor]Page
	errs  map[Cursor]error
	calls []Cursor
}

func (s *scriptedProvider) Search(_ context.Context, cursor Cursor, profile SourceProfile, _ int) (Page, error) {
	key := Cursor{Token: cursor.Token, Profile: profile.Name}
	s.calls = append(s.calls, key)
	if err := s.errs[key]; err != nil {
		return Page{}, err
	}
	return s.pages[key], nil
}

func fallbackConfig(withAlternate bool) Config {
	cfg := Config{
		TargetCount: 1,
		MaxAttempts: 10,
		Primary:     SourceProfile{Name: "egypt", RegionCode: "EG", RelevanceLanguage: "ar"},
	}
	if withAlternate {
		cfg.Fallback = SourceProfile{Name: "saudi", RegionCode: "SA", RelevanceLanguage: "ar"}
	}
	return cfg
}

func TestFallbackContinuesOnNonEmptyPage(t *testing.T) {
	provider := &scriptedProvider{pages: map[Cursor]Page{
		{Token: "t1", Profile: "egypt"}: {Items: []CandidateItem{{ID: "a"}}, Next: "t2"},
	}}
	f := NewFallback(provider, fallbackConfig(true), nil, nil)
	state := &RunState{ConsecutiveEmptyPages: 2}

	step := f.Next(context.Background(), Cursor{Token: "t1", Profile: "egypt"}, state)
	require.Len(t, step.Items, 1)
	require.Equal(t, Cursor{Token: "t2", Profile: "egypt"}, step.Cursor)
	require.Equal(t, "egypt", step.Profile)
	require.Equal(t, 1, step.Calls)
	require.Zero(t, state.ConsecutiveEmptyPages)
}

func TestFallbackRetriesOnceAtReturnedCursor(t *testing.T) {
	provider := &scriptedProvider{pages: map[Cursor]Page{
		{Token: "", Profile: "egypt"}:   {Next: "t1"},
		{Token: "t1", Profile: "egypt"}: {Items: []CandidateItem{{ID: "a"}}, Next: "t2"},
	}}
	f := NewFallback(provider, fallbackConfig(true), nil, nil)
	state := &RunState{}

	step := f.Next(context.Background(), Cursor{}, state)
	require.Equal(t, []Cursor{{Profile: "egypt"}, {Token: "t1", Profile: "egypt"}}, provider.calls)
	require.Equal(t, Cursor{Token: "t2", Profile: "egypt"}, step.Cursor)
	require.Zero(t, state.ConsecutiveEmptyPages)
}

func TestFallbackSwitchesToAlternateAndStaysThere(t *testing.T) {
	provider := &scriptedProvider{
		pages: map[Cursor]Page{
			{Token: "", Profile: "saudi"}:   {Items: []CandidateItem{{ID: "s1"}}, Next: "s2"},
			{Token: "s2", Profile: "saudi"}: {Items: []CandidateItem{{ID: "s2"}}, Next: "s3"},
		},
		errs: map[Cursor]error{{Token: "e5", Profile: "egypt"}: errors.New("backend error")},
	}
	f := NewFallback(provider, fallbackConfig(true), nil, nil)
	state := &RunState{}

	step := f.Next(context.Background(), Cursor{Token: "e5", Profile: "egypt"}, state)
	require.Equal(t, "saudi", step.Profile)
	require.Equal(t, Cursor{Token: "s2", Profile: "saudi"}, step.Cursor)
	require.Zero(t, state.ConsecutiveEmptyPages)

	step = f.Next(context.Background(), step.Cursor, state)
	require.Equal(t, []CandidateItem{{ID: "s2"}}, step.Items)
	require.Equal(t, Cursor{Token: "s3", Profile: "saudi"}, step.Cursor)
	require.Equal(t, []Cursor{
		{Token: "e5", Profile: "egypt"},
		{Token: "", Profile: "saudi"},
		{Token: "s2", Profile: "saudi"},
	}, provider.calls)
}

func TestFallbackResetsAfterThreshold(t *testing.T) {
	provider := &scriptedProvider{pages: map[Cursor]Page{
		{Token: "", Profile: "egypt"}: {Next: "deep"},
	}}
	f := NewFallback(provider, fallbackConfig(false), nil, nil)
	state := &RunState{}

	cursor := Cursor{Token: "x", Profile: "egypt"}
	for i := 1; i < DefaultEmptyPageThreshold; i++ {
		step := f.Next(context.Background(), cursor, state)
		require.Empty(t, step.Items)
		require.Equal(t, i, state.ConsecutiveEmptyPages)
		cursor = Cursor{Token: "x", Profile: "egypt"}
	}

	step := f.Next(context.Background(), cursor, state)
	require.Zero(t, state.ConsecutiveEmptyPages)
	require.True(t, step.Cursor.IsStart())
	require.Equal(t, "egypt", step.Cursor.Profile)
}

func TestFallbackEmptyAlternateWithCursorKeepsAlternate(t *testing.T) {
	provider := &scriptedProvider{pages: map[Cursor]Page{
		{Token: "", Profile: "saudi"}: {Next: "s-next"},
	}}
	f := NewFallback(provider, fallbackConfig(true), nil, nil)
	state := &RunState{}

	step := f.Next(context.Background(), Cursor{Profile: "egypt"}, state)
	require.Empty(t, step.Items)
	require.Equal(t, 1, state.ConsecutiveEmptyPages)
	require.Equal(t, Cursor{Token: "s-next", Profile: "saudi"}, step.Cursor)
	require.Equal(t, 2, step.Calls)
}

func TestFallbackUnknownProfileFallsBackToPrimary(t *testing.T) {
	provider := &scriptedProvider{pages: map[Cursor]Page{
		{Token: "", Profile: "egypt"}: {Items: []CandidateItem{{ID: "a"}}},
	}}
	f := NewFallback(provider, fallbackConfig(true), nil, nil)

	step := f.Next(context.Background(), Cursor{Token: "t", Profile: "retired"}, &RunState{})
	require.Equal(t, "egypt", step.Profile)
	require.Equal(t, []Cursor{{Profile: "egypt"}}, provider.calls)
}

func TestFallbackSearchErrorKeepsCursor(t *testing.T) {
	tests := []struct {
		name      string
		alternate bool
		cursor    Cursor
		errs      map[Cursor]error
	}{
		{
			name:   "primary without alternate",
			cursor: Cursor{Token: "P5", Profile: "egypt"},
			errs:   map[Cursor]error{{Token: "P5", Profile: "egypt"}: errors.New("503")},
		},
		{
			name:      "alternate profile",
			alternate: true,
			cursor:    Cursor{Token: "S7", Profile: "saudi"},
			errs:      map[Cursor]error{{Token: "S7", Profile: "saudi"}: errors.New("503")},
		},
		{
			name:      "primary and alternate both failing",
			alternate: true,
			cursor:    Cursor{Token: "P5", Profile: "egypt"},
			errs: map[Cursor]error{
				{Token: "P5", Profile: "egypt"}: errors.New("503"),
				{Token: "", Profile: "saudi"}:   errors.New("503"),
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := &scriptedProvider{errs: tt.errs}
			f := NewFallback(provider, fallbackConfig(tt.alternate), nil, nil)
			state := &RunState{}

			step := f.Next(context.Background(), tt.cursor, state)
			require.Empty(t, step.Items)
			require.Equal(t, tt.cursor, step.Cursor)
			require.Equal(t, 1, state.ConsecutiveEmptyPages)
		})
	}
}
