package ghstats

import (
	"encoding/json"
	"time"
)

// Wire types, trimmed to the fields the pipeline reads.

type apiUser struct {
	Login       string    `json:"login"`
	Name        string    `json:"name"`
	AvatarURL   string    `json:"avatar_url"`
	HTMLURL     string    `json:"html_url"`
	Bio         string    `json:"bio"`
	PublicRepos int       `json:"public_repos"`
	Followers   int       `json:"followers"`
	Following   int       `json:"following"`
	CreatedAt   time.Time `json:"created_at"`
}

type apiRepo struct {
	Name        string `json:"name"`
	FullName    string `json:"full_name"`
	HTMLURL     string `json:"html_url"`
	Description string `json:"description"`
	Language    string `json:"language"`
	// Size is reported by GitHub in kilobytes.
	Size            int64     `json:"size"`
	StargazersCount int       `json:"stargazers_count"`
	ForksCount      int       `json:"forks_count"`
	Fork            bool      `json:"fork"`
	PushedAt        time.Time `json:"pushed_at"`
	Owner           struct {
		Login string `json:"login"`
	} `json:"owner"`
}

type apiEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Repo struct {
		Name string `json:"name"`
	} `json:"repo"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// Stats is the payload of the stats endpoint.
type Stats struct {
	Profile   Profile    `json:"profile"`
	Totals    Totals     `json:"totals"`
	Languages []Language `json:"languages"`
	TopRepos  []Repo     `json:"topRepos"`
	Activity  Activity   `json:"activity"`
}

type Profile struct {
	Login     string    `json:"login"`
	Name      string    `json:"name"`
	AvatarURL string    `json:"avatarUrl"`
	URL       string    `json:"url"`
	Bio       string    `json:"bio"`
	Followers int       `json:"followers"`
	Following int       `json:"following"`
	CreatedAt time.Time `json:"createdAt"`
}

type Totals struct {
	Repos         int `json:"repos"`
	Stars         int `json:"stars"`
	Forks         int `json:"forks"`
	AnalyzedRepos int `json:"analyzedRepos"`
	PublicRepos   int `json:"publicRepos"`
}

type Language struct {
	Name       string  `json:"name"`
	Bytes      int64   `json:"bytes"`
	Percentage float64 `json:"percentage"`
}

type Repo struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	URL         string    `json:"url"`
	Language    string    `json:"language"`
	Stars       int       `json:"stars"`
	Forks       int       `json:"forks"`
	PushedAt    time.Time `json:"pushedAt"`
}

// Activity summarises public events inside the trailing window.
type Activity struct {
	WindowDays    int `json:"windowDays"`
	Events        int `json:"events"`
	Commits       int `json:"commits"`
	ActiveDays    int `json:"activeDays"`
	CurrentStreak int `json:"currentStreak"`
}

// Event is one entry of the activity feed.
type Event struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Repo      string    `json:"repo"`
	Action    string    `json:"action"`
	URL       string    `json:"url"`
	CreatedAt time.Time `json:"createdAt"`
}

// DefaultStats is served when the upstream has never answered.
func DefaultStats(user string, window time.Duration) *Stats {
	if window <= 0 {
		window = DefaultActivityWindow
	}
	return &Stats{
		Profile: Profile{
			Login: user,
			URL:   "https://github.com/" + user,
		},
		Languages: []Language{},
		TopRepos:  []Repo{},
		Activity:  Activity{WindowDays: int(window / (24 * time.Hour))},
	}
}

// DefaultActivity is served when the upstream has never answered.
func DefaultActivity() []Event {
	return []Event{}
}
