package track

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPlaylist_TotalDuration(t *testing.T) {
	p := Playlist{
		Name: "Evening Mix",
		Tracks: []Track{
			{Title: "One", Duration: 3 * time.Minute},
			{Title: "Two", Duration: 4 * time.Minute},
			{Title: "Unknown", Duration: 0},
		},
	}
	assert.Equal(t, 7*time.Minute, p.TotalDuration())
}

func TestPlaylist_TotalDuration_Empty(t *testing.T) {
	p := Playlist{Name: "empty"}
	assert.Equal(t, time.Duration(0), p.TotalDuration())
}
