package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// SourceType identifies the kind of content a document was fetched from.
type SourceType string

// Available source types.
const (
	SourceDocumentation SourceType = "documentation"
	SourceCode          SourceType = "code"
	SourceIssue         SourceType = "issue"
	SourcePullRequest   SourceType = "pull_request"
)

// SourceTypes returns all source types in stage order.
func SourceTypes() []SourceType {
	return []SourceType{SourceDocumentation, SourceCode, SourceIssue, SourcePullRequest}
}

// IsValid returns true if the source type is recognised.
func (s SourceType) IsValid() bool {
	switch s {
	case SourceDocumentation, SourceCode, SourceIssue, SourcePullRequest:
		return true
	default:
		return false
	}
}

// String returns the string representation.
func (s SourceType) String() string {
	return string(s)
}

// collectionBase returns the per-source suffix used in collection names.
func (s SourceType) collectionBase() string {
	switch s {
	case SourceDocumentation:
		return "documentation"
	case SourceCode:
		return "repo_code_main"
	case SourceIssue:
		return "issues_history"
	case SourcePullRequest:
		return "pr_history"
	default:
		return string(s)
	}
}

// Stage is one of the four independently retryable ingestion stages.
type Stage string

// Ingestion stages in their fixed execution order.
const (
	StageDocs         Stage = "docs"
	StageCode         Stage = "code"
	StageIssues       Stage = "issues"
	StagePullRequests Stage = "pull_requests"
)

// Stages returns the ingestion stages in execution order.
func Stages() []Stage {
	return []Stage{StageDocs, StageCode, StageIssues, StagePullRequests}
}

// ParseStage parses a stage name. It accepts the canonical names and the
// short aliases used on the command line ("documentation", "prs").
func ParseStage(s string) (Stage, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "docs", "documentation":
		return StageDocs, nil
	case "code":
		return StageCode, nil
	case "issues":
		return StageIssues, nil
	case "pull_requests", "prs", "pulls":
		return StagePullRequests, nil
	default:
		return "", fmt.Errorf("%w: unknown stage %q", ErrInvalidInput, s)
	}
}

// IsValid returns true if the stage is recognised.
func (s Stage) IsValid() bool {
	switch s {
	case StageDocs, StageCode, StageIssues, StagePullRequests:
		return true
	default:
		return false
	}
}

// SourceType returns the source type a stage ingests.
func (s Stage) SourceType() SourceType {
	switch s {
	case StageDocs:
		return SourceDocumentation
	case StageCode:
		return SourceCode
	case StageIssues:
		return SourceIssue
	case StagePullRequests:
		return SourcePullRequest
	default:
		return ""
	}
}

// Index returns the zero-based position of the stage in execution order,
// or -1 for an unknown stage.
func (s Stage) Index() int {
	for i, st := range Stages() {
		if st == s {
			return i
		}
	}
	return -1
}

// String returns the string representation.
func (s Stage) String() string {
	return string(s)
}

// RepositoryID identifies a GitHub repository as owner/name.
type RepositoryID struct {
	Owner string
	Name  string
}

// ParseRepositoryID parses "owner/name", tolerating a github.com URL prefix
// and a trailing ".git".
func ParseRepositoryID(s string) (RepositoryID, error) {
	trimmed := strings.TrimSpace(s)
	trimmed = strings.TrimPrefix(trimmed, "https://")
	trimmed = strings.TrimPrefix(trimmed, "http://")
	trimmed = strings.TrimPrefix(trimmed, "github.com/")
	trimmed = strings.TrimSuffix(trimmed, "/")
	trimmed = strings.TrimSuffix(trimmed, ".git")

	parts := strings.Split(trimmed, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return RepositoryID{}, fmt.Errorf("%w: repository must be owner/name, got %q", ErrInvalidInput, s)
	}
	for _, p := range parts {
		if strings.ContainsAny(p, " \t\n\\:") {
			return RepositoryID{}, fmt.Errorf("%w: invalid repository %q", ErrInvalidInput, s)
		}
	}
	return RepositoryID{Owner: parts[0], Name: parts[1]}, nil
}

// String returns owner/name.
func (r RepositoryID) String() string {
	return r.Owner + "/" + r.Name
}

// IsZero reports whether the repository is unset.
func (r RepositoryID) IsZero() bool {
	return r.Owner == "" && r.Name == ""
}

// CollectionPrefix returns the name prefix shared by all of the repository's
// collections, e.g. "my_org_my_repo_1a2b3c4d_". The readable part folds
// "/", "-" and "." to "_", so a short digest of the exact lowercase
// owner/name keeps "a/b-c" and "a-b/c" apart.
func (r RepositoryID) CollectionPrefix() string {
	key := strings.ToLower(r.String())
	safe := strings.NewReplacer("/", "_", "-", "_", ".", "_").Replace(key)
	sum := sha256.Sum256([]byte(key))
	return safe + "_" + hex.EncodeToString(sum[:4]) + "_"
}

// CollectionName returns the deterministic collection name for a repository
// and source type. Ingestion and query sides both derive names from here.
func CollectionName(repo RepositoryID, source SourceType) string {
	return repo.CollectionPrefix() + source.collectionBase()
}
