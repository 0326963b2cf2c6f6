// Package feed renders folder playlists as podcast RSS so any podcast app
// can subscribe to a folder of the library.
package feed

import (
	"fmt"
	"net/http"
	"time"

	"github.com/eduncan911/podcast"

	"textcast/internal/models"
)

// BaseURL picks the externally visible base URL: the configured one when
// set, otherwise reconstructed from the request.
func BaseURL(configured string, r *http.Request) string {
	if configured != "" {
		return configured
	}

	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	return fmt.Sprintf("%s://%s", scheme, r.Host)
}

// GenerateRSS builds the feed XML for a folder's ready episodes. Enclosures
// point at the full-episode audio route in mp3, the one format every
// podcast client accepts.
func GenerateRSS(folderName string, episodes []models.Episode, baseURL string) (string, error) {
	p := podcast.New(
		fmt.Sprintf("textcast: %s", folderName),
		fmt.Sprintf("%s/feeds/folders/%s/rss", baseURL, folderName),
		"Audio episodes generated from your reading list.",
		&time.Time{}, &time.Time{},
	)

	for _, episode := range episodes {
		item := podcast.Item{
			Title:       episode.Title,
			Description: fmt.Sprintf("Generated with voice %s.", episode.VoiceID),
		}
		pubDate := episode.CreatedAt
		item.AddPubDate(&pubDate)
		if episode.TotalDurationSecs != nil {
			item.AddDuration(int64(*episode.TotalDurationSecs))
		}
		item.AddEnclosure(
			fmt.Sprintf("%s/api/episodes/%s/audio?format=mp3", baseURL, episode.ID),
			podcast.MP3, 0)
		if _, err := p.AddItem(item); err != nil {
			return "", err
		}
	}

	return p.String(), nil
}
