// Package classify maps raw GitHub activity items onto the bridge's closed
// set of event payloads. Classification is pure: no network, no clock.
package classify

import (
	"encoding/json"
	"fmt"

	"github.com/samber/lo"

	"gitcord/internal/domain"
)

// Event classifies a raw activity item. Unrecognized event types and
// payloads that fail to decode come back as the Unhandled variant with a
// reason code; the error return is reserved for an unparseable event ID,
// which makes the item unusable for cursor tracking.
func Event(raw *domain.RawEvent) (*domain.Event, error) {
	id, err := raw.NumericID()
	if err != nil {
		return nil, fmt.Errorf("event id %q: %w", raw.ID, err)
	}

	ev := &domain.Event{
		ID:        id,
		CreatedAt: raw.CreatedAt,
		Actor:     actorName(raw),
		Repo:      raw.Repo.Name,
	}
	ev.Payload = payload(raw)
	return ev, nil
}

func actorName(raw *domain.RawEvent) string {
	if raw.Actor.DisplayLogin != "" {
		return raw.Actor.DisplayLogin
	}
	return raw.Actor.Login
}

var decoders = map[string]func(*domain.RawEvent) (domain.Payload, error){
	"CommitCommentEvent":            commitComment,
	"CreateEvent":                   create,
	"DeleteEvent":                   deleteRef,
	"ForkEvent":                     fork,
	"GollumEvent":                   gollum,
	"IssueCommentEvent":             issueComment,
	"IssuesEvent":                   issues,
	"MemberEvent":                   member,
	"PublicEvent":                   public,
	"PullRequestEvent":              pullRequest,
	"PullRequestReviewEvent":        pullRequestReview,
	"PullRequestReviewCommentEvent": pullRequestReviewComment,
	"PushEvent":                     push,
	"ReleaseEvent":                  release,
	"WatchEvent":                    watch,
}

func payload(raw *domain.RawEvent) domain.Payload {
	decode, ok := decoders[raw.Type]
	if !ok {
		return domain.UnhandledPayload{EventType: raw.Type, Reason: domain.ReasonUnknownType}
	}

	p, err := decode(raw)
	if err != nil {
		return domain.UnhandledPayload{EventType: raw.Type, Reason: domain.ReasonDecodeError}
	}
	return p
}

func commitComment(raw *domain.RawEvent) (domain.Payload, error) {
	var p struct {
		Comment struct {
			ID       int64  `json:"id"`
			Body     string `json:"body"`
			CommitID string `json:"commit_id"`
		} `json:"comment"`
	}
	if err := json.Unmarshal(raw.Payload, &p); err != nil {
		return nil, err
	}
	return domain.CommitCommentPayload{
		Body:      p.Comment.Body,
		CommitSHA: p.Comment.CommitID,
		CommentID: p.Comment.ID,
	}, nil
}

func create(raw *domain.RawEvent) (domain.Payload, error) {
	var p struct {
		RefType      string  `json:"ref_type"`
		Ref          *string `json:"ref"`
		MasterBranch string  `json:"master_branch"`
		Description  string  `json:"description"`
	}
	if err := json.Unmarshal(raw.Payload, &p); err != nil {
		return nil, err
	}
	out := domain.CreatePayload{
		RefType:      p.RefType,
		MasterBranch: p.MasterBranch,
		Description:  p.Description,
	}
	if p.Ref != nil {
		out.Ref = *p.Ref
	}
	return out, nil
}

func deleteRef(raw *domain.RawEvent) (domain.Payload, error) {
	var p struct {
		RefType string `json:"ref_type"`
		Ref     string `json:"ref"`
	}
	if err := json.Unmarshal(raw.Payload, &p); err != nil {
		return nil, err
	}
	return domain.DeletePayload{RefType: p.RefType, Ref: p.Ref}, nil
}

func fork(raw *domain.RawEvent) (domain.Payload, error) {
	var p struct {
		Forkee struct {
			FullName string `json:"full_name"`
		} `json:"forkee"`
	}
	if err := json.Unmarshal(raw.Payload, &p); err != nil {
		return nil, err
	}
	return domain.ForkPayload{ForkSlug: p.Forkee.FullName}, nil
}

type wikiPageJSON struct {
	PageName string `json:"page_name"`
	Title    string `json:"title"`
	Action   string `json:"action"`
	SHA      string `json:"sha"`
	HTMLURL  string `json:"html_url"`
}

func gollum(raw *domain.RawEvent) (domain.Payload, error) {
	var p struct {
		Pages []wikiPageJSON `json:"pages"`
	}
	if err := json.Unmarshal(raw.Payload, &p); err != nil {
		return nil, err
	}
	pages := lo.Map(p.Pages, func(pg wikiPageJSON, _ int) domain.WikiPage {
		return domain.WikiPage{
			PageName: pg.PageName,
			Title:    pg.Title,
			Action:   pg.Action,
			SHA:      pg.SHA,
			HTMLURL:  pg.HTMLURL,
		}
	})
	return domain.GollumPayload{Pages: pages}, nil
}

func issueComment(raw *domain.RawEvent) (domain.Payload, error) {
	var p struct {
		Action string `json:"action"`
		Issue  struct {
			Number int64 `json:"number"`
		} `json:"issue"`
		Comment struct {
			ID   int64  `json:"id"`
			Body string `json:"body"`
		} `json:"comment"`
	}
	if err := json.Unmarshal(raw.Payload, &p); err != nil {
		return nil, err
	}
	return domain.IssueCommentPayload{
		Action:    p.Action,
		Issue:     p.Issue.Number,
		Body:      p.Comment.Body,
		CommentID: p.Comment.ID,
	}, nil
}

func issues(raw *domain.RawEvent) (domain.Payload, error) {
	var p struct {
		Action string `json:"action"`
		Issue  struct {
			Number int64  `json:"number"`
			Title  string `json:"title"`
			Body   string `json:"body"`
			Labels []struct {
				Name string `json:"name"`
			} `json:"labels"`
		} `json:"issue"`
	}
	if err := json.Unmarshal(raw.Payload, &p); err != nil {
		return nil, err
	}
	labels := make([]string, 0, len(p.Issue.Labels))
	for _, l := range p.Issue.Labels {
		labels = append(labels, l.Name)
	}
	return domain.IssuesPayload{
		Action: p.Action,
		Number: p.Issue.Number,
		Title:  p.Issue.Title,
		Body:   p.Issue.Body,
		Labels: labels,
	}, nil
}

func member(raw *domain.RawEvent) (domain.Payload, error) {
	var p struct {
		Action string `json:"action"`
		Member struct {
			Login string `json:"login"`
		} `json:"member"`
	}
	if err := json.Unmarshal(raw.Payload, &p); err != nil {
		return nil, err
	}
	return domain.MemberPayload{Action: p.Action, User: p.Member.Login}, nil
}

func public(raw *domain.RawEvent) (domain.Payload, error) {
	return domain.PublicPayload{}, nil
}

func pullRequest(raw *domain.RawEvent) (domain.Payload, error) {
	var p struct {
		Action      string `json:"action"`
		PullRequest struct {
			Number int64  `json:"number"`
			Title  string `json:"title"`
			Body   string `json:"body"`
			Merged bool   `json:"merged"`
		} `json:"pull_request"`
	}
	if err := json.Unmarshal(raw.Payload, &p); err != nil {
		return nil, err
	}
	return domain.PullRequestPayload{
		Action: p.Action,
		Number: p.PullRequest.Number,
		Title:  p.PullRequest.Title,
		Body:   p.PullRequest.Body,
		Merged: p.PullRequest.Merged,
	}, nil
}

func pullRequestReview(raw *domain.RawEvent) (domain.Payload, error) {
	var p struct {
		Action string `json:"action"`
		Review struct {
			ID    int64  `json:"id"`
			State string `json:"state"`
			Body  string `json:"body"`
		} `json:"review"`
		PullRequest struct {
			Number int64 `json:"number"`
		} `json:"pull_request"`
	}
	if err := json.Unmarshal(raw.Payload, &p); err != nil {
		return nil, err
	}
	return domain.PullRequestReviewPayload{
		Action:   p.Action,
		Number:   p.PullRequest.Number,
		State:    p.Review.State,
		Body:     p.Review.Body,
		ReviewID: p.Review.ID,
	}, nil
}

func pullRequestReviewComment(raw *domain.RawEvent) (domain.Payload, error) {
	var p struct {
		Action  string `json:"action"`
		Comment struct {
			ID   int64  `json:"id"`
			Body string `json:"body"`
		} `json:"comment"`
		PullRequest struct {
			Number int64 `json:"number"`
		} `json:"pull_request"`
	}
	if err := json.Unmarshal(raw.Payload, &p); err != nil {
		return nil, err
	}
	return domain.PullRequestReviewCommentPayload{
		Action:    p.Action,
		Number:    p.PullRequest.Number,
		Body:      p.Comment.Body,
		CommentID: p.Comment.ID,
	}, nil
}

func push(raw *domain.RawEvent) (domain.Payload, error) {
	var p struct {
		Ref          string `json:"ref"`
		Before       string `json:"before"`
		Head         string `json:"head"`
		Size         int    `json:"size"`
		DistinctSize int    `json:"distinct_size"`
		Commits      []struct {
			SHA    string `json:"sha"`
			Author struct {
				Name string `json:"name"`
			} `json:"author"`
			Message  string `json:"message"`
			Distinct bool   `json:"distinct"`
		} `json:"commits"`
	}
	if err := json.Unmarshal(raw.Payload, &p); err != nil {
		return nil, err
	}
	out := domain.PushPayload{
		Ref:          p.Ref,
		BeforeSHA:    p.Before,
		HeadSHA:      p.Head,
		Size:         p.Size,
		DistinctSize: p.DistinctSize,
	}
	// Commit order is chronological as reported by the host (oldest
	// first); preserved verbatim. Non-distinct commits were already seen
	// on another ref and are dropped.
	for _, c := range p.Commits {
		if !c.Distinct {
			continue
		}
		out.Commits = append(out.Commits, domain.Commit{
			SHA:     c.SHA,
			Author:  c.Author.Name,
			Message: c.Message,
			URL:     "https://github.com/" + raw.Repo.Name + "/commit/" + c.SHA,
		})
	}
	return out, nil
}

func release(raw *domain.RawEvent) (domain.Payload, error) {
	var p struct {
		Action  string `json:"action"`
		Release struct {
			TagName         string  `json:"tag_name"`
			TargetCommitish string  `json:"target_commitish"`
			Draft           bool    `json:"draft"`
			Prerelease      bool    `json:"prerelease"`
			Name            *string `json:"name"`
			Body            *string `json:"body"`
		} `json:"release"`
	}
	if err := json.Unmarshal(raw.Payload, &p); err != nil {
		return nil, err
	}
	out := domain.ReleasePayload{
		Action:     p.Action,
		Tag:        p.Release.TagName,
		Target:     p.Release.TargetCommitish,
		Draft:      p.Release.Draft,
		Prerelease: p.Release.Prerelease,
	}
	if p.Release.Name != nil {
		out.Name = *p.Release.Name
	}
	if p.Release.Body != nil {
		out.Body = *p.Release.Body
	}
	return out, nil
}

func watch(raw *domain.RawEvent) (domain.Payload, error) {
	var p struct {
		Action string `json:"action"`
	}
	if err := json.Unmarshal(raw.Payload, &p); err != nil {
		return nil, err
	}
	return domain.WatchPayload{Action: p.Action}, nil
}
