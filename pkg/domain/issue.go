package domain

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// IssueType is the coarse classification shown next to an issue.
type IssueType string

const (
	IssueError   IssueType = "error"
	IssueWarning IssueType = "warning"
	IssueInfo    IssueType = "info"
)

// Severity ranks issues so a consumer can prioritise them.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Rank orders severities from most (0) to least severe.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 0
	case SeverityHigh:
		return 1
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 3
	default:
		return 4
	}
}

// IssueAction is a navigation hint for a UI router. It has no behaviour here.
type IssueAction struct {
	Label string `json:"label"`
	Path  string `json:"path"`
}

// IssueMetadata lists the entities an issue concerns plus check specific
// diagnostic values.
type IssueMetadata struct {
	AffectedSubjects    []string       `json:"affectedSubjects,omitempty"`
	AffectedTeachers    []string       `json:"affectedTeachers,omitempty"`
	AffectedBlocks      []string       `json:"affectedBlocks,omitempty"`
	AffectedClasses     []string       `json:"affectedClasses,omitempty"`
	AffectedFormGroups  []string       `json:"affectedFormGroups,omitempty"`
	AffectedMetaLessons []string       `json:"affectedMetaLessons,omitempty"`
	Data                map[string]any `json:"data,omitempty"`
}

// Issue is a single finding produced by a check. Everything except ID and
// Timestamp is derived deterministically from the document.
type Issue struct {
	ID             string        `json:"id"`
	Type           IssueType     `json:"type"`
	Severity       Severity      `json:"severity"`
	Title          string        `json:"title"`
	Description    string        `json:"description"`
	Details        string        `json:"details"`
	Recommendation string        `json:"recommendation"`
	Action         *IssueAction  `json:"action,omitempty"`
	Metadata       IssueMetadata `json:"metadata"`
	CheckID        string        `json:"checkId"`
	Timestamp      time.Time     `json:"timestamp"`
}

// ValidationContext is the input of a validation run.
type ValidationContext struct {
	VersionData Document `json:"versionData"`
	OrgID       string   `json:"orgId,omitempty"`
	ProjectID   string   `json:"projectId,omitempty"`
	VersionID   string   `json:"versionId,omitempty"`
}

// Ref returns the version reference the context was built for.
func (vc ValidationContext) Ref() VersionRef {
	return VersionRef{OrgID: vc.OrgID, ProjectID: vc.ProjectID, VersionID: vc.VersionID}
}

// ValidationResult aggregates the issues of every executed check.
type ValidationResult struct {
	Issues        []Issue   `json:"issues"`
	ChecksRun     []string  `json:"checksRun"`
	ChecksSkipped []string  `json:"checksSkipped"`
	ChecksFailed  []string  `json:"checksFailed,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// CountBySeverity tallies issues per severity.
func (r ValidationResult) CountBySeverity() map[Severity]int {
	out := make(map[Severity]int, 4)
	for _, issue := range r.Issues {
		out[issue.Severity]++
	}
	return out
}

// HasErrors reports whether any issue is of type error.
func (r ValidationResult) HasErrors() bool {
	for _, issue := range r.Issues {
		if issue.Type == IssueError {
			return true
		}
	}
	return false
}

// VersionRef identifies one timetable version of a project.
type VersionRef struct {
	OrgID     string `json:"orgId"`
	ProjectID string `json:"projectId"`
	VersionID string `json:"versionId"`
}

func (r VersionRef) String() string {
	return fmt.Sprintf("%s/%s/%s", r.OrgID, r.ProjectID, r.VersionID)
}

// DocumentSource loads the version data of a stored version.
type DocumentSource interface {
	Load(ctx context.Context, ref VersionRef) (Document, error)
}

// ErrVersionNotFound is returned by sources when the version does not exist.
var ErrVersionNotFound = errors.New("version not found")
