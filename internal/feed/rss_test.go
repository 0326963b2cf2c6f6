package feed

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"textcast/internal/models"
)

func TestGenerateRSS(t *testing.T) {
	total := 12.5
	episodes := []models.Episode{
		{ID: "e1", Title: "First Episode", VoiceID: "alba", CreatedAt: time.Now(), TotalDurationSecs: &total},
		{ID: "e2", Title: "Second Episode", VoiceID: "marius", CreatedAt: time.Now()},
	}

	xml, err := GenerateRSS("reading-list", episodes, "https://cast.example.com")
	require.NoError(t, err)
	assert.Contains(t, xml, "First Episode")
	assert.Contains(t, xml, "Second Episode")
	assert.Contains(t, xml, "https://cast.example.com/api/episodes/e1/audio?format=mp3")
}

func TestBaseURLPrefersConfigured(t *testing.T) {
	r := httptest.NewRequest("GET", "http://internal:8080/feeds/x", nil)
	assert.Equal(t, "https://public.example.com", BaseURL("https://public.example.com", r))

	r.Header.Set("X-Forwarded-Proto", "https")
	assert.Equal(t, "https://internal:8080", BaseURL("", r))
}
