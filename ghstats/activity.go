package ghstats

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

func (c *Client) events(ctx context.Context) ([]apiEvent, error) {
	var events []apiEvent
	if err := c.getArray(ctx, c.userPath("/events/public?per_page=100"), &events); err != nil {
		return nil, err
	}
	return events, nil
}

// Activity returns the most recent public events of the user as a feed.
func (c *Client) Activity(ctx context.Context) ([]Event, error) {
	if c.user == "" {
		return nil, ErrNoUser
	}
	events, err := c.events(ctx)
	if err != nil {
		return nil, err
	}
	feed := make([]Event, 0, min(len(events), c.activityLimit))
	for _, event := range events {
		if len(feed) == c.activityLimit {
			break
		}
		feed = append(feed, Event{
			ID:        event.ID,
			Type:      event.Type,
			Repo:      event.Repo.Name,
			Action:    describe(event),
			URL:       "https://github.com/" + event.Repo.Name,
			CreatedAt: event.CreatedAt,
		})
	}
	return feed, nil
}

type eventPayload struct {
	Action  string `json:"action"`
	RefType string `json:"ref_type"`
	Size    int    `json:"size"`
	Commits []struct {
		SHA string `json:"sha"`
	} `json:"commits"`
}

func parsePayload(raw json.RawMessage) eventPayload {
	var payload eventPayload
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &payload)
	}
	return payload
}

// pushSize reports the number of commits of a PushEvent payload.
func pushSize(raw json.RawMessage) int {
	payload := parsePayload(raw)
	if payload.Size > 0 {
		return payload.Size
	}
	return len(payload.Commits)
}

func describe(event apiEvent) string {
	payload := parsePayload(event.Payload)
	switch event.Type {
	case "PushEvent":
		n := pushSize(event.Payload)
		if n == 1 {
			return "pushed 1 commit"
		}
		return fmt.Sprintf("pushed %d commits", n)
	case "CreateEvent":
		if payload.RefType != "" {
			return "created " + payload.RefType
		}
		return "created"
	case "DeleteEvent":
		return "deleted " + payload.RefType
	case "WatchEvent":
		return "starred"
	case "ForkEvent":
		return "forked"
	case "IssuesEvent":
		return payload.Action + " an issue"
	case "IssueCommentEvent":
		return "commented on an issue"
	case "PullRequestEvent":
		return payload.Action + " a pull request"
	case "PullRequestReviewEvent":
		return "reviewed a pull request"
	case "ReleaseEvent":
		return payload.Action + " a release"
	case "PublicEvent":
		return "open sourced"
	default:
		return strings.ToLower(strings.TrimSuffix(event.Type, "Event"))
	}
}
