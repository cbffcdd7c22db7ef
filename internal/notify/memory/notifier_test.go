package memory

import (
	"context"
	"testing"

	"github.com/JakeFAU/dualsub-crawler/internal/crawler"
)

func TestNotifierStoresEntries(t *testing.T) {
	t.Parallel()

	n := New()
	if err := n.Notify(context.Background(), crawler.ResultEntry{ID: "a"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := n.Notify(context.Background(), crawler.ResultEntry{ID: "b"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	entries := n.Entries()
	if len(entries) != 2 || entries[0].ID != "a" || entries[1].ID != "b" {
		t.Fatalf("entries not recorded correctly: %+v", entries)
	}

	entries[0].ID = "modified"
	if n.Entries()[0].ID == "modified" {
		t.Fatalf("expected Entries to return a copy")
	}
}
