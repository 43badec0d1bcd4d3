// Package render turns classified events into Discord message bodies.
// Rendering is deterministic: everything in the output comes from the
// event itself.
package render

import (
	"fmt"
	"strings"

	"github.com/samber/lo"

	"gitcord/internal/domain"
)

const (
	timeLayout       = "02.01.2006 03:04:05 PM"
	maxCommitMessage = 72
)

// Message renders a classified event into a delivery-ready message for
// the given channel.
func Message(ev *domain.Event, channelID int64) domain.RenderedMessage {
	var b strings.Builder
	b.WriteString(ev.CreatedAt.Format(timeLayout))
	b.WriteString(": ")
	b.WriteString(headline(ev))
	for _, line := range detailLines(ev) {
		b.WriteString("\n")
		b.WriteString(line)
	}
	// <...> keeps Discord from unfurling a link preview per URL.
	for _, u := range URLs(ev) {
		b.WriteString("\n<")
		b.WriteString(u)
		b.WriteString(">")
	}
	return domain.RenderedMessage{
		ChannelID: channelID,
		Body:      b.String(),
		EventID:   ev.ID,
	}
}

func headline(ev *domain.Event) string {
	switch p := ev.Payload.(type) {
	case domain.CommitCommentPayload:
		return fmt.Sprintf("%s commented on %s in %s", ev.Actor, p.CommitSHA, ev.Repo)
	case domain.CreatePayload:
		if p.Ref == "" {
			return fmt.Sprintf("%s created %s %s", ev.Actor, p.RefType, ev.Repo)
		}
		return fmt.Sprintf("%s created %s %s", ev.Actor, p.RefType, p.Ref)
	case domain.DeletePayload:
		return fmt.Sprintf("%s deleted %s %s", ev.Actor, p.RefType, p.Ref)
	case domain.ForkPayload:
		return fmt.Sprintf("%s forked %s to %s", ev.Actor, ev.Repo, p.ForkSlug)
	case domain.GollumPayload:
		return fmt.Sprintf("%s changed wiki on %s:", ev.Actor, ev.Repo)
	case domain.IssueCommentPayload:
		return fmt.Sprintf("%s %s comment to #%d on %s", ev.Actor, p.Action, p.Issue, ev.Repo)
	case domain.IssuesPayload:
		return fmt.Sprintf("%s %s #%d on %s: %q", ev.Actor, p.Action, p.Number, ev.Repo, p.Title)
	case domain.MemberPayload:
		return fmt.Sprintf("%s %s %s to %s", ev.Actor, p.Action, p.User, ev.Repo)
	case domain.PublicPayload:
		return fmt.Sprintf("%s made %s public", ev.Actor, ev.Repo)
	case domain.PullRequestPayload:
		action := p.Action
		if p.Action == "closed" && p.Merged {
			action = "merged"
		}
		return fmt.Sprintf("%s %s #%d on %s: %q", ev.Actor, action, p.Number, ev.Repo, p.Title)
	case domain.PullRequestReviewPayload:
		return fmt.Sprintf("%s %s as %s #%d on %s", ev.Actor, p.Action, p.State, p.Number, ev.Repo)
	case domain.PullRequestReviewCommentPayload:
		return fmt.Sprintf("%s %s comment to #%d on %s", ev.Actor, p.Action, p.Number, ev.Repo)
	case domain.PushPayload:
		return fmt.Sprintf("%s pushed %d %s to %s in %s",
			ev.Actor, p.DistinctSize, plural("commit", p.DistinctSize), branch(p.Ref), ev.Repo)
	case domain.ReleasePayload:
		return fmt.Sprintf("%s %s %s from %s", ev.Actor, p.Action, p.Tag, p.Target)
	case domain.WatchPayload:
		return fmt.Sprintf("%s starred %s", ev.Actor, ev.Repo)
	case domain.UnhandledPayload:
		return fmt.Sprintf("%s invoked an unsupported event on %s: %s", ev.Actor, ev.Repo, p.EventType)
	default:
		return fmt.Sprintf("%s invoked an unknown event on %s", ev.Actor, ev.Repo)
	}
}

func detailLines(ev *domain.Event) []string {
	switch p := ev.Payload.(type) {
	case domain.GollumPayload:
		return lo.Map(p.Pages, func(pg domain.WikiPage, _ int) string {
			return fmt.Sprintf("  %s %q", pg.Action, pg.Title)
		})
	case domain.PushPayload:
		return lo.Map(p.Commits, func(c domain.Commit, _ int) string {
			return fmt.Sprintf("  %s: %s <%s>", c.Author, truncate(c.Message), c.URL)
		})
	default:
		return nil
	}
}

// URLs returns the links appended to the message body, one per line.
func URLs(ev *domain.Event) []string {
	repo := "https://github.com/" + ev.Repo
	switch p := ev.Payload.(type) {
	case domain.CommitCommentPayload:
		return []string{fmt.Sprintf("%s/commit/%s#commitcomment-%d", repo, p.CommitSHA, p.CommentID)}
	case domain.CreatePayload:
		if p.Ref == "" {
			return []string{repo}
		}
		return []string{repo + "/compare/" + p.Ref}
	case domain.ForkPayload:
		return []string{"https://github.com/" + p.ForkSlug}
	case domain.GollumPayload:
		return lo.Map(p.Pages, func(pg domain.WikiPage, _ int) string {
			return "https://github.com" + pg.HTMLURL
		})
	case domain.IssueCommentPayload:
		return []string{fmt.Sprintf("%s/issues/%d#issuecomment-%d", repo, p.Issue, p.CommentID)}
	case domain.IssuesPayload:
		return []string{fmt.Sprintf("%s/issues/%d", repo, p.Number)}
	case domain.PublicPayload:
		return []string{repo}
	case domain.PullRequestPayload:
		return []string{fmt.Sprintf("%s/pull/%d", repo, p.Number)}
	case domain.PullRequestReviewPayload:
		return []string{fmt.Sprintf("%s/pull/%d#pullrequestreview-%d", repo, p.Number, p.ReviewID)}
	case domain.PullRequestReviewCommentPayload:
		return []string{fmt.Sprintf("%s/pull/%d#discussion_r%d", repo, p.Number, p.CommentID)}
	case domain.PushPayload:
		return []string{fmt.Sprintf("%s/compare/%s...%s", repo, p.BeforeSHA, p.HeadSHA)}
	case domain.ReleasePayload:
		return []string{repo + "/releases/tag/" + p.Tag}
	case domain.WatchPayload:
		return []string{repo + "/stargazers"}
	default:
		// delete, member, unhandled
		return nil
	}
}

func branch(ref string) string {
	return strings.TrimPrefix(ref, "refs/heads/")
}

func plural(word string, n int) string {
	if n == 1 {
		return word
	}
	return word + "s"
}

func truncate(msg string) string {
	if i := strings.IndexByte(msg, '\n'); i >= 0 {
		msg = msg[:i]
	}
	if len(msg) > maxCommitMessage {
		msg = msg[:maxCommitMessage-3] + "..."
	}
	return msg
}
