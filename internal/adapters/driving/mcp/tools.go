package mcp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/repolens/internal/core/domain"
)

// defaultQueryResults is k when similarity_query is called without one.
const defaultQueryResults = 5

// RepositoryInput names a repository.
type RepositoryInput struct {
	Repository string `json:"repository" jsonschema:"the GitHub repository as owner/name"`
}

// toLimits builds the per-run limits from tool inputs. Zero fields use the
// configured defaults.
func toLimits(maxIssues, maxPRs, prBudgetSeconds int) domain.Limits {
	return domain.Limits{
		MaxIssues:       maxIssues,
		MaxPRs:          maxPRs,
		WallClockBudget: time.Duration(prBudgetSeconds) * time.Second,
	}
}

// IngestStageInput is the input schema for the ingest_stage tool.
type IngestStageInput struct {
	Repository     string `json:"repository" jsonschema:"the GitHub repository as owner/name"`
	Stage          string `json:"stage" jsonschema:"one of docs, code, issues, pull_requests"`
	MaxIssues      int    `json:"max_issues,omitempty" jsonschema:"maximum issues to ingest (default 100)"`
	MaxPRs         int    `json:"max_prs,omitempty" jsonschema:"maximum merged pull requests to ingest (default 15)"`
	PRBudgetSecs   int    `json:"pr_budget_seconds,omitempty" jsonschema:"wall-clock budget of the pull request scan in seconds (default 240)"`
	MaxWaitSeconds int    `json:"max_wait_seconds,omitempty" jsonschema:"how long to wait before returning a running status (default 270)"`
}

// IngestAllInput is the input schema for the ingest_all tool.
type IngestAllInput struct {
	Repository     string `json:"repository" jsonschema:"the GitHub repository as owner/name"`
	SkipComplete   bool   `json:"skip_complete,omitempty" jsonschema:"skip stages that already completed"`
	MaxIssues      int    `json:"max_issues,omitempty" jsonschema:"maximum issues to ingest (default 100)"`
	MaxPRs         int    `json:"max_prs,omitempty" jsonschema:"maximum merged pull requests to ingest (default 15)"`
	PRBudgetSecs   int    `json:"pr_budget_seconds,omitempty" jsonschema:"wall-clock budget of the pull request scan in seconds (default 240)"`
	MaxWaitSeconds int    `json:"max_wait_seconds,omitempty" jsonschema:"how long to wait before returning a running status (default 270)"`
}

// ClearInput is the input schema for the clear_repository tool.
type ClearInput struct {
	Repository string `json:"repository" jsonschema:"the GitHub repository as owner/name"`
	Confirm    bool   `json:"confirm" jsonschema:"must be true: every collection of the repository is deleted"`
}

// QueryInput is the input schema for the similarity_query tool.
type QueryInput struct {
	Query      string `json:"query" jsonschema:"the text to find similar chunks for"`
	Collection string `json:"collection,omitempty" jsonschema:"the collection to query; alternatively give repository and source"`
	Repository string `json:"repository,omitempty" jsonschema:"the GitHub repository as owner/name"`
	Source     string `json:"source,omitempty" jsonschema:"one of documentation, code, issue, pull_request"`
	K          int    `json:"k,omitempty" jsonschema:"number of results (default 5, maximum 50)"`
}

// PlanOutput is the output schema for the start_ingestion tool.
type PlanOutput struct {
	Repository    string            `json:"repository"`
	DefaultBranch string            `json:"default_branch"`
	NextStage     string            `json:"next_stage,omitempty"`
	Stages        []string          `json:"stages"`
	Collections   map[string]string `json:"collections"`
	Status        StatusOutput      `json:"status"`
}

// IngestAllOutput is the output schema for the ingest_all tool.
type IngestAllOutput struct {
	Repository string              `json:"repository"`
	Results    []StageResultOutput `json:"results"`
	Running    bool                `json:"running"`
	RunID      string              `json:"run_id,omitempty"`
	NextStage  string              `json:"next_stage,omitempty"`
	Message    string              `json:"message,omitempty"`
}

// ListOutput is the output schema for the list_repositories tool.
type ListOutput struct {
	Repositories []RepositoryOutput `json:"repositories"`
	Count        int                `json:"count"`
}

// ClearOutput is the output schema for the clear_repository tool.
type ClearOutput struct {
	Repository         string   `json:"repository"`
	DeletedCollections []string `json:"deleted_collections"`
	ProgressDeleted    bool     `json:"progress_deleted"`
}

// CancelOutput is the output schema for the cancel_ingestion tool.
type CancelOutput struct {
	Repository string `json:"repository"`
	Cancelled  bool   `json:"cancelled"`
	Message    string `json:"message"`
}

// QueryOutput is the output schema for the similarity_query tool.
type QueryOutput struct {
	Collection string        `json:"collection,omitempty"`
	Matches    []MatchOutput `json:"matches"`
	Count      int           `json:"count"`
}

// HealthOutput is the output schema for the health tool.
type HealthOutput struct {
	Healthy            bool               `json:"healthy"`
	EmbeddingProvider  string             `json:"embedding_provider"`
	EmbeddingModel     string             `json:"embedding_model,omitempty"`
	EmbeddingReachable bool               `json:"embedding_reachable"`
	EmbeddingError     string             `json:"embedding_error,omitempty"`
	GitHubQuota        *QuotaOutput       `json:"github_quota,omitempty"`
	DatabasePath       string             `json:"database_path,omitempty"`
	StuckStages        []StuckStageOutput `json:"stuck_stages"`
	CheckedAt          string             `json:"checked_at"`
}

// QuotaOutput is the GitHub API rate window.
type QuotaOutput struct {
	Limit     int    `json:"limit"`
	Remaining int    `json:"remaining"`
	ResetAt   string `json:"reset_at,omitempty"`
}

// StuckStageOutput is an in-progress stage with no recent heartbeat.
type StuckStageOutput struct {
	Repository    string `json:"repository"`
	Stage         string `json:"stage"`
	RunID         string `json:"run_id,omitempty"`
	LastHeartbeat string `json:"last_heartbeat"`
}

// MatchOutput is one similarity match.
type MatchOutput struct {
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Score    float64        `json:"score"`
}

// registerTools registers all tool handlers with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "start_ingestion",
		Description: "Validate a GitHub repository and return its ingestion plan",
	}, s.handleStartIngestion)

	mcp.AddTool(s.server, &mcp.Tool{
		Name: "ingest_stage",
		Description: "Run one ingestion stage (docs, code, issues, pull_requests). " +
			"Returns running=true with a run id if the stage outlives the response budget; poll get_status then.",
	}, s.handleIngestStage)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "ingest_all",
		Description: "Run every ingestion stage in order, continuing past failed stages, within the response budget",
	}, s.handleIngestAll)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "get_status",
		Description: "Get the per-stage ingestion progress of a repository",
	}, s.handleGetStatus)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "list_repositories",
		Description: "List every ingested repository with its overall status",
	}, s.handleListRepositories)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "clear_repository",
		Description: "Delete all collections and progress of a repository. Requires confirm=true.",
	}, s.handleClearRepository)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "cancel_ingestion",
		Description: "Cancel the running ingestion stage of a repository",
	}, s.handleCancelIngestion)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "similarity_query",
		Description: "Find the chunks most similar to a text in one collection",
	}, s.handleSimilarityQuery)

	mcp.AddTool(s.server, &mcp.Tool{
		Name: "health",
		Description: "Check whether the embedding provider answers, how much GitHub API quota is left, " +
			"where the database lives and which stages are stuck in progress",
	}, s.handleHealth)
}

// handleStartIngestion handles the start_ingestion tool invocation.
func (s *Server) handleStartIngestion(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input RepositoryInput,
) (*mcp.CallToolResult, PlanOutput, error) {
	repo, err := domain.ParseRepositoryID(input.Repository)
	if err != nil {
		return nil, PlanOutput{}, err
	}

	plan, err := s.ports.Ingestion.StartIngestion(ctx, repo)
	if err != nil {
		return nil, PlanOutput{}, withSuggestion(err)
	}

	output := PlanOutput{
		Repository:    plan.Repository.String(),
		DefaultBranch: plan.DefaultBranch,
		NextStage:     plan.NextStage.String(),
		Collections:   make(map[string]string, len(plan.Collections)),
	}
	progress := &domain.IngestionProgress{
		Repository:    plan.Repository,
		DefaultBranch: plan.DefaultBranch,
		Stages:        make(map[domain.Stage]domain.StageProgress, len(plan.Stages)),
	}
	for _, sp := range plan.Stages {
		output.Stages = append(output.Stages, sp.Stage.String())
		progress.Stages[sp.Stage] = sp
	}
	for st, name := range plan.Collections {
		output.Collections[st.String()] = name
	}
	output.Status = toStatus(progress)

	return nil, output, nil
}

// handleIngestStage starts a stage on a worker and waits for it up to the
// response budget.
func (s *Server) handleIngestStage(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input IngestStageInput,
) (*mcp.CallToolResult, StageResultOutput, error) {
	repo, err := domain.ParseRepositoryID(input.Repository)
	if err != nil {
		return nil, StageResultOutput{}, err
	}
	stage, err := domain.ParseStage(input.Stage)
	if err != nil {
		return nil, StageResultOutput{}, err
	}

	output, _, err := s.runStage(ctx, repo, stage, toLimits(input.MaxIssues, input.MaxPRs, input.PRBudgetSecs), s.responseBudget(input.MaxWaitSeconds))
	if err != nil {
		return nil, StageResultOutput{}, err
	}
	return nil, output, nil
}

// handleIngestAll runs the stages in order until they are done or the
// response budget is used up.
func (s *Server) handleIngestAll(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input IngestAllInput,
) (*mcp.CallToolResult, IngestAllOutput, error) {
	repo, err := domain.ParseRepositoryID(input.Repository)
	if err != nil {
		return nil, IngestAllOutput{}, err
	}

	var complete map[domain.Stage]bool
	if input.SkipComplete {
		complete = make(map[domain.Stage]bool)
		if p, err := s.ports.Ingestion.GetStatus(ctx, repo); err == nil {
			for _, st := range domain.Stages() {
				complete[st] = p.Stage(st).Status == domain.StatusComplete
			}
		}
	}

	output := IngestAllOutput{Repository: repo.String(), Results: []StageResultOutput{}}
	deadline := time.Now().Add(s.responseBudget(input.MaxWaitSeconds))

	for _, st := range domain.Stages() {
		if complete[st] {
			continue
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			output.NextStage = st.String()
			output.Message = fmt.Sprintf("response budget used: call ingest_stage for %s and the stages after it", st)
			break
		}

		result, done, err := s.runStage(ctx, repo, st, toLimits(input.MaxIssues, input.MaxPRs, input.PRBudgetSecs), remaining)
		if err != nil {
			return nil, IngestAllOutput{}, err
		}
		output.Results = append(output.Results, result)

		if !done {
			output.Running = result.Running
			output.RunID = result.RunID
			output.NextStage = st.String()
			output.Message = fmt.Sprintf("%s stage is still running: poll get_status, then call ingest_all with skip_complete", st)
			break
		}
	}

	return nil, output, nil
}

// runStage starts one stage and waits up to budget. done is false when the
// stage is still running or held by another run. Only invalid input is an
// error; every other failure is reported in the result.
func (s *Server) runStage(
	ctx context.Context,
	repo domain.RepositoryID,
	stage domain.Stage,
	limits domain.Limits,
	budget time.Duration,
) (StageResultOutput, bool, error) {
	runID, err := s.ports.Ingestion.StartStage(ctx, repo, stage, limits)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidInput) {
			return StageResultOutput{}, false, err
		}
		return stageFailure(repo, stage, err), !errors.Is(err, domain.ErrStageInProgress), nil
	}

	result, done, err := s.ports.Ingestion.WaitStage(ctx, repo, runID, budget)
	if err != nil {
		return StageResultOutput{}, false, fmt.Errorf("wait for %s stage: %w", stage, err)
	}
	return toStageResult(result), done, nil
}

// handleGetStatus handles the get_status tool invocation.
func (s *Server) handleGetStatus(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input RepositoryInput,
) (*mcp.CallToolResult, StatusOutput, error) {
	repo, err := domain.ParseRepositoryID(input.Repository)
	if err != nil {
		return nil, StatusOutput{}, err
	}

	p, err := s.ports.Ingestion.GetStatus(ctx, repo)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, StatusOutput{}, fmt.Errorf("%s has not been ingested: call start_ingestion first", repo)
		}
		return nil, StatusOutput{}, err
	}
	return nil, toStatus(p), nil
}

// handleListRepositories handles the list_repositories tool invocation.
func (s *Server) handleListRepositories(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	_ struct{},
) (*mcp.CallToolResult, ListOutput, error) {
	summaries, err := s.ports.Ingestion.ListRepositories(ctx)
	if err != nil {
		return nil, ListOutput{}, err
	}

	output := ListOutput{
		Repositories: make([]RepositoryOutput, len(summaries)),
		Count:        len(summaries),
	}
	for i := range summaries {
		output.Repositories[i] = toRepository(summaries[i])
	}
	return nil, output, nil
}

// handleClearRepository handles the clear_repository tool invocation.
func (s *Server) handleClearRepository(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input ClearInput,
) (*mcp.CallToolResult, ClearOutput, error) {
	repo, err := domain.ParseRepositoryID(input.Repository)
	if err != nil {
		return nil, ClearOutput{}, err
	}

	result, err := s.ports.Ingestion.ClearRepository(ctx, repo, input.Confirm)
	if err != nil {
		return nil, ClearOutput{}, withSuggestion(err)
	}

	output := ClearOutput{
		Repository:         result.Repository.String(),
		DeletedCollections: result.DeletedCollections,
		ProgressDeleted:    result.ProgressDeleted,
	}
	if output.DeletedCollections == nil {
		output.DeletedCollections = []string{}
	}
	return nil, output, nil
}

// handleCancelIngestion handles the cancel_ingestion tool invocation.
func (s *Server) handleCancelIngestion(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input RepositoryInput,
) (*mcp.CallToolResult, CancelOutput, error) {
	repo, err := domain.ParseRepositoryID(input.Repository)
	if err != nil {
		return nil, CancelOutput{}, err
	}

	output := CancelOutput{Repository: repo.String()}
	err = s.ports.Ingestion.CancelStage(ctx, repo)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		output.Message = "no stage is running for this repository"
	case err != nil:
		return nil, CancelOutput{}, err
	default:
		output.Cancelled = true
		output.Message = "cancellation requested: the stage is recorded as failed with what it stored so far"
	}
	return nil, output, nil
}

// handleSimilarityQuery handles the similarity_query tool invocation.
func (s *Server) handleSimilarityQuery(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input QueryInput,
) (*mcp.CallToolResult, QueryOutput, error) {
	if s.ports.Query == nil {
		return nil, QueryOutput{}, withSuggestion(
			fmt.Errorf("%w: no embedding provider configured", domain.ErrEmbeddingUnavailable))
	}

	k := input.K
	if k <= 0 {
		k = defaultQueryResults
	}

	var (
		matches []domain.QueryMatch
		err     error
	)
	collection := input.Collection
	if collection != "" {
		matches, err = s.ports.Query.Query(ctx, collection, input.Query, k)
	} else {
		repo, perr := domain.ParseRepositoryID(input.Repository)
		if perr != nil {
			return nil, QueryOutput{}, fmt.Errorf("give a collection, or a repository and source: %w", perr)
		}
		source, perr := parseSource(input.Source)
		if perr != nil {
			return nil, QueryOutput{}, perr
		}
		collection = domain.CollectionName(repo, source)
		matches, err = s.ports.Query.QueryRepository(ctx, repo, source, input.Query, k)
	}
	if err != nil {
		return nil, QueryOutput{}, withSuggestion(err)
	}

	output := QueryOutput{
		Collection: collection,
		Matches:    make([]MatchOutput, len(matches)),
		Count:      len(matches),
	}
	for i, m := range matches {
		output.Matches[i] = MatchOutput{Text: m.Text, Metadata: m.Metadata, Score: m.Score}
	}
	return nil, output, nil
}

// parseSource accepts a source type or a stage name.
func parseSource(s string) (domain.SourceType, error) {
	if source := domain.SourceType(s); source.IsValid() {
		return source, nil
	}
	stage, err := domain.ParseStage(s)
	if err != nil {
		return "", fmt.Errorf("%w: unknown source %q", domain.ErrInvalidInput, s)
	}
	return stage.SourceType(), nil
}

// withSuggestion appends the recovery hint of err, if any.
func withSuggestion(err error) error {
	if hint := domain.Suggestion(err); hint != "" {
		return fmt.Errorf("%w (%s)", err, hint)
	}
	return err
}

// handleHealth handles the health tool invocation.
func (s *Server) handleHealth(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	_ struct{},
) (*mcp.CallToolResult, HealthOutput, error) {
	if s.ports.Health == nil {
		return nil, HealthOutput{}, ErrHealthUnavailable
	}

	report, err := s.ports.Health.Check(ctx)
	if err != nil {
		return nil, HealthOutput{}, err
	}
	return nil, toHealth(report), nil
}
