package ghstats

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"net/url"
	"slices"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Stats runs the stats pipeline: profile and repositories are required, per-repository
// language lookups and the event feed degrade to local defaults when they fail.
func (c *Client) Stats(ctx context.Context) (*Stats, error) {
	if c.user == "" {
		return nil, ErrNoUser
	}

	var user apiUser
	if err := c.getObject(ctx, c.userPath(""), &user); err != nil {
		return nil, err
	}
	if user.Login == "" {
		return nil, fmt.Errorf("%w: user has no login", ErrMalformed)
	}

	var repos []apiRepo
	if err := c.getArray(ctx, c.userPath("/repos?per_page=100&sort=updated"), &repos); err != nil {
		return nil, err
	}

	analyzed := ownRepos(repos, c.repoLimit)
	languages := c.repoLanguages(ctx, analyzed)

	stats := &Stats{
		Profile: Profile{
			Login:     user.Login,
			Name:      user.Name,
			AvatarURL: user.AvatarURL,
			URL:       user.HTMLURL,
			Bio:       user.Bio,
			Followers: user.Followers,
			Following: user.Following,
			CreatedAt: user.CreatedAt,
		},
		Totals:    sumTotals(repos),
		Languages: TopLanguages(languages, c.topLanguages),
		TopRepos:  topRepos(repos, DefaultTopRepos),
	}
	stats.Totals.AnalyzedRepos = len(analyzed)
	stats.Totals.PublicRepos = user.PublicRepos

	events, err := c.events(ctx)
	if err != nil {
		logrus.WithError(err).WithField("user", c.user).Warn("failed to fetch events, reporting no activity")
		events = nil
	}
	// Per-item fallbacks stand in for upstream failures only. A run whose context ended
	// midway is incomplete and must not be reported as a result.
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("stats for %s: %w", c.user, err)
	}
	stats.Activity = summarizeActivity(events, c.Now(), c.activityWindow)
	return stats, nil
}

// ownRepos keeps the first limit repositories that are not forks.
func ownRepos(repos []apiRepo, limit int) []apiRepo {
	own := make([]apiRepo, 0, limit)
	for _, repo := range repos {
		if repo.Fork {
			continue
		}
		own = append(own, repo)
		if len(own) == limit {
			break
		}
	}
	return own
}

// repoLanguages looks up the language breakdown of every repository. A failed lookup
// contributes the repository's whole size to its primary language instead.
func (c *Client) repoLanguages(ctx context.Context, repos []apiRepo) []map[string]int64 {
	results := make([]map[string]int64, len(repos))
	var g errgroup.Group
	g.SetLimit(c.workers)
	for i, repo := range repos {
		g.Go(func() error {
			path := "/repos/" + url.PathEscape(repoOwner(repo, c.user)) + "/" + url.PathEscape(repo.Name) + "/languages"
			var breakdown map[string]int64
			if err := c.getObject(ctx, path, &breakdown); err != nil {
				logrus.WithError(err).WithField("repo", repo.Name).Debug("language lookup failed, using primary language")
				breakdown = primaryLanguage(repo)
			}
			results[i] = breakdown
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func repoOwner(repo apiRepo, fallback string) string {
	if repo.Owner.Login != "" {
		return repo.Owner.Login
	}
	return fallback
}

func primaryLanguage(repo apiRepo) map[string]int64 {
	if repo.Language == "" {
		return nil
	}
	return map[string]int64{repo.Language: repo.Size * 1024}
}

// TopLanguages sums bytes per language and keeps the k largest, with their share of
// all counted bytes in percent, rounded to one decimal.
func TopLanguages(breakdowns []map[string]int64, k int) []Language {
	totals := make(map[string]int64)
	var all int64
	for _, breakdown := range breakdowns {
		for name, bytes := range breakdown {
			if bytes <= 0 {
				continue
			}
			totals[name] += bytes
			all += bytes
		}
	}

	languages := make([]Language, 0, len(totals))
	for name, bytes := range totals {
		languages = append(languages, Language{
			Name:       name,
			Bytes:      bytes,
			Percentage: math.Round(float64(bytes)*1000/float64(all)) / 10,
		})
	}
	slices.SortFunc(languages, func(a, b Language) int {
		if a.Bytes != b.Bytes {
			return cmp.Compare(b.Bytes, a.Bytes)
		}
		return cmp.Compare(a.Name, b.Name)
	})
	if len(languages) > k {
		languages = languages[:k]
	}
	return languages
}

func sumTotals(repos []apiRepo) Totals {
	totals := Totals{Repos: len(repos)}
	for _, repo := range repos {
		totals.Stars += repo.StargazersCount
		totals.Forks += repo.ForksCount
	}
	return totals
}

func topRepos(repos []apiRepo, k int) []Repo {
	own := make([]Repo, 0, len(repos))
	for _, repo := range repos {
		if repo.Fork {
			continue
		}
		own = append(own, Repo{
			Name:        repo.Name,
			Description: repo.Description,
			URL:         repo.HTMLURL,
			Language:    repo.Language,
			Stars:       repo.StargazersCount,
			Forks:       repo.ForksCount,
			PushedAt:    repo.PushedAt,
		})
	}
	slices.SortStableFunc(own, func(a, b Repo) int {
		if a.Stars != b.Stars {
			return cmp.Compare(b.Stars, a.Stars)
		}
		return b.PushedAt.Compare(a.PushedAt)
	})
	if len(own) > k {
		own = own[:k]
	}
	return own
}

func summarizeActivity(events []apiEvent, now time.Time, window time.Duration) Activity {
	activity := Activity{WindowDays: int(window / (24 * time.Hour))}
	cutoff := now.Add(-window)
	var inWindow, all []time.Time
	for _, event := range events {
		all = append(all, event.CreatedAt)
		if event.CreatedAt.Before(cutoff) {
			continue
		}
		inWindow = append(inWindow, event.CreatedAt)
		activity.Events++
		if event.Type == "PushEvent" {
			activity.Commits += pushSize(event.Payload)
		}
	}
	activity.ActiveDays = distinctDays(inWindow)
	activity.CurrentStreak = CurrentStreak(all, now)
	return activity
}
