package checks

import (
	"fmt"
	"strings"
	"time"
	"timetabler/pkg/domain"

	"github.com/google/uuid"
)

func newIssue(checkID string, typ domain.IssueType, severity domain.Severity) domain.Issue {
	return domain.Issue{
		ID:        newIssueID(),
		Type:      typ,
		Severity:  severity,
		CheckID:   checkID,
		Timestamp: time.Now().UTC(),
		Metadata:  domain.IssueMetadata{Data: map[string]any{}},
	}
}

// newIssueID returns eight random hex characters.
func newIssueID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// versionAction builds a UI hint pointing at a section of the version being
// validated. It is omitted when the context does not name a version.
func versionAction(vc domain.ValidationContext, label, section string) *domain.IssueAction {
	if vc.OrgID == "" || vc.ProjectID == "" || vc.VersionID == "" {
		return nil
	}
	return &domain.IssueAction{
		Label: label,
		Path:  fmt.Sprintf("/org/%s/project/%s/version/%s/%s", vc.OrgID, vc.ProjectID, vc.VersionID, section),
	}
}

func plural(n int, singular, many string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, singular)
	}
	return fmt.Sprintf("%d %s", n, many)
}
