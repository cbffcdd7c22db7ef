// Package export publishes snapshots of the result set to object storage.
package export

import (
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/JakeFAU/dualsub-crawler/internal/crawler"
)

// ContentType of every snapshot.
const ContentType = "application/json"

type document struct {
	Videos []crawler.ResultEntry `json:"videos"`
}

// Encode renders entries as the result document.
func Encode(entries []crawler.ResultEntry) ([]byte, error) {
	if entries == nil {
		entries = []crawler.ResultEntry{}
	}
	data, err := json.MarshalIndent(document{Videos: entries}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode results: %w", err)
	}
	return data, nil
}

// ObjectName builds a timestamped snapshot key under prefix.
func ObjectName(prefix string, now time.Time) string {
	name := fmt.Sprintf("results-%s.json", now.UTC().Format("20060102T150405Z"))
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return name
	}
	return path.Join(prefix, name)
}
