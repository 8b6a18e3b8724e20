package ghstats

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCurrentStreak(t *testing.T) {
	tests := []struct {
		name   string
		events []time.Time
		want   int
	}{
		{
			name:   "gap stops the streak",
			events: []time.Time{daysAgo(0, 9), daysAgo(1, 9), daysAgo(2, 9), daysAgo(4, 9)},
			want:   3,
		},
		{
			name:   "starts at yesterday when today is empty",
			events: []time.Time{daysAgo(1, 20), daysAgo(2, 1), daysAgo(3, 12)},
			want:   3,
		},
		{
			name:   "duplicate days count once",
			events: []time.Time{daysAgo(0, 1), daysAgo(0, 2), daysAgo(1, 3)},
			want:   2,
		},
		{
			name:   "nothing since the day before yesterday",
			events: []time.Time{daysAgo(2, 9), daysAgo(3, 9)},
			want:   0,
		},
		{
			name: "no events",
			want: 0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CurrentStreak(tt.events, now))
		})
	}
}

func TestCurrentStreakUsesUTCDates(t *testing.T) {
	tehran := time.FixedZone("IRST", 3*3600+1800)
	// 01:00 local on March 10th is still March 9th in UTC.
	events := []time.Time{
		time.Date(2026, time.March, 10, 1, 0, 0, 0, tehran),
		daysAgo(0, 12),
	}
	assert.Equal(t, 2, CurrentStreak(events, now))
}

func TestActivityFeed(t *testing.T) {
	fake := newFakeGitHub(t)
	fake.json("/users/octocat/events/public", http.StatusOK, []any{
		event("1", "PushEvent", daysAgo(0, 10), `{"size":1}`),
		event("2", "CreateEvent", daysAgo(0, 9), `{"ref_type":"repository"}`),
		event("3", "PullRequestEvent", daysAgo(0, 8), `{"action":"opened"}`),
		event("4", "GollumEvent", daysAgo(0, 7), `{}`),
		event("5", "PushEvent", daysAgo(0, 6), `{"size":4}`),
	})

	client := newTestClient(t, fake, Config{ActivityLimit: 4})
	feed, err := client.Activity(context.Background())
	require.NoError(t, err)

	require.Len(t, feed, 4)
	assert.Equal(t, Event{
		ID:        "1",
		Type:      "PushEvent",
		Repo:      "octocat/alpha",
		Action:    "pushed 1 commit",
		URL:       "https://github.com/octocat/alpha",
		CreatedAt: daysAgo(0, 10),
	}, feed[0])
	assert.Equal(t, "created repository", feed[1].Action)
	assert.Equal(t, "opened a pull request", feed[2].Action)
	assert.Equal(t, "gollum", feed[3].Action)
}

func TestActivityMalformed(t *testing.T) {
	fake := newFakeGitHub(t)
	fake.json("/users/octocat/events/public", http.StatusOK, `{"message":"Server Error"}`)
	client := newTestClient(t, fake, Config{})
	_, err := client.Activity(context.Background())
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestDefaultActivityIsEmptyArray(t *testing.T) {
	assert.NotNil(t, DefaultActivity())
	assert.Empty(t, DefaultActivity())
}
