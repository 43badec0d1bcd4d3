package domain

import (
	"encoding/json"
	"strconv"
	"time"
)

// RawEvent is one item of the GitHub events feed, payload still undecoded.
// It lives only within a single poll cycle.
type RawEvent struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Actor     RawActor        `json:"actor"`
	Repo      RawRepo         `json:"repo"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// NumericID parses the host's decimal event ID. IDs are assigned in
// increasing order, which is what cursor comparisons rely on.
func (e *RawEvent) NumericID() (int64, error) {
	return strconv.ParseInt(e.ID, 10, 64)
}

type RawActor struct {
	Login        string `json:"login"`
	DisplayLogin string `json:"display_login"`
}

type RawRepo struct {
	Name string `json:"name"`
}

// Event is a classified activity item.
type Event struct {
	ID        int64
	CreatedAt time.Time
	Actor     string
	Repo      string
	Payload   Payload
}

// Payload is the closed set of event kinds the bridge understands. New
// kinds are added by defining a variant here and extending classify and
// render; everything else classifies to Unhandled.
type Payload interface {
	// Kind is a stable lowercase tag, used for logging and bus messages.
	Kind() string
}

// Commit is one commit of a push event, in the order reported by GitHub
// (oldest first).
type Commit struct {
	SHA     string `json:"sha"`
	Author  string `json:"author"`
	Message string `json:"message"`
	URL     string `json:"url"`
}

type PushPayload struct {
	Ref          string
	BeforeSHA    string
	HeadSHA      string
	Size         int
	DistinctSize int
	Commits      []Commit
}

// WikiPage is one page touched by a gollum event.
type WikiPage struct {
	PageName string
	Title    string
	Action   string
	SHA      string
	HTMLURL  string
}

type GollumPayload struct {
	Pages []WikiPage
}

type CommitCommentPayload struct {
	Body      string
	CommitSHA string
	CommentID int64
}

type CreatePayload struct {
	RefType      string
	Ref          string // empty for repository creation
	MasterBranch string
	Description  string
}

type DeletePayload struct {
	RefType string
	Ref     string
}

type ForkPayload struct {
	ForkSlug string
}

type IssuesPayload struct {
	Action string
	Number int64
	Title  string
	Body   string
	Labels []string
}

type IssueCommentPayload struct {
	Action    string
	Issue     int64
	Body      string
	CommentID int64
}

type MemberPayload struct {
	Action string
	User   string
}

type PublicPayload struct{}

type PullRequestPayload struct {
	Action string
	Number int64
	Title  string
	Body   string
	Merged bool
}

type PullRequestReviewPayload struct {
	Action   string
	Number   int64
	State    string
	Body     string
	ReviewID int64
}

type PullRequestReviewCommentPayload struct {
	Action    string
	Number    int64
	Body      string
	CommentID int64
}

type ReleasePayload struct {
	Action     string
	Tag        string
	Target     string
	Draft      bool
	Prerelease bool
	Name       string
	Body       string
}

type WatchPayload struct {
	Action string
}

// Unhandled reason codes.
const (
	ReasonUnknownType = "unknown_type"
	ReasonDecodeError = "decode_error"
)

// UnhandledPayload marks an event the bridge recognizes but does not
// deliver. It still counts as seen for cursor advancement.
type UnhandledPayload struct {
	EventType string
	Reason    string
}

func (PushPayload) Kind() string                     { return "push" }
func (GollumPayload) Kind() string                   { return "gollum" }
func (CommitCommentPayload) Kind() string            { return "commit_comment" }
func (CreatePayload) Kind() string                   { return "create" }
func (DeletePayload) Kind() string                   { return "delete" }
func (ForkPayload) Kind() string                     { return "fork" }
func (IssuesPayload) Kind() string                   { return "issues" }
func (IssueCommentPayload) Kind() string             { return "issue_comment" }
func (MemberPayload) Kind() string                   { return "member" }
func (PublicPayload) Kind() string                   { return "public" }
func (PullRequestPayload) Kind() string              { return "pull_request" }
func (PullRequestReviewPayload) Kind() string        { return "pull_request_review" }
func (PullRequestReviewCommentPayload) Kind() string { return "pull_request_review_comment" }
func (ReleasePayload) Kind() string                  { return "release" }
func (WatchPayload) Kind() string                    { return "watch" }
func (UnhandledPayload) Kind() string                { return "unhandled" }

// IsUnhandled reports whether the event classified to the unhandled
// variant.
func (e *Event) IsUnhandled() bool {
	_, ok := e.Payload.(UnhandledPayload)
	return ok
}
