package mcp

import (
	"errors"
	"time"

	"github.com/custodia-labs/repolens/internal/core/domain"
)

// StageResultOutput is the structured outcome of one stage.
type StageResultOutput struct {
	Repository         string   `json:"repository"`
	Stage              string   `json:"stage"`
	Status             string   `json:"status"`
	DocumentsProcessed int      `json:"documents_processed"`
	ChunksStored       int      `json:"chunks_stored"`
	DocumentsStored    int      `json:"documents_stored"`
	NewDocuments       int      `json:"new_documents"`
	ElapsedSeconds     float64  `json:"elapsed_seconds"`
	TerminationReason  string   `json:"termination_reason,omitempty"`
	Examined           int      `json:"examined,omitempty"`
	Collection         string   `json:"collection"`
	Error              string   `json:"error,omitempty"`
	Suggestion         string   `json:"suggestion,omitempty"`
	Warnings           []string `json:"warnings,omitempty"`
	RunID              string   `json:"run_id,omitempty"`
	Running            bool     `json:"running"`
}

// StageStatusOutput is the persisted state of one stage.
type StageStatusOutput struct {
	Stage              string  `json:"stage"`
	Status             string  `json:"status"`
	DocumentsStored    int     `json:"documents_stored"`
	ChunksStored       int     `json:"chunks_stored"`
	DocumentsProcessed int     `json:"documents_processed"`
	Collection         string  `json:"collection"`
	TerminationReason  string  `json:"termination_reason,omitempty"`
	Error              string  `json:"error,omitempty"`
	StartedAt          string  `json:"started_at,omitempty"`
	CompletedAt        string  `json:"completed_at,omitempty"`
	HeartbeatAt        string  `json:"heartbeat_at,omitempty"`
	DurationSeconds    float64 `json:"duration_seconds,omitempty"`
}

// StatusOutput is the progress of one repository.
type StatusOutput struct {
	Repository           string              `json:"repository"`
	DefaultBranch        string              `json:"default_branch,omitempty"`
	OverallStatus        string              `json:"overall_status"`
	CompletionPercentage float64             `json:"completion_percentage"`
	TotalDocuments       int                 `json:"total_documents"`
	TotalChunks          int                 `json:"total_chunks"`
	NextStage            string              `json:"next_stage,omitempty"`
	Stages               []StageStatusOutput `json:"stages"`
	Collections          []string            `json:"collections"`
}

// RepositoryOutput is one row of the repository listing.
type RepositoryOutput struct {
	Repository           string  `json:"repository"`
	OverallStatus        string  `json:"overall_status"`
	CompletionPercentage float64 `json:"completion_percentage"`
	TotalDocuments       int     `json:"total_documents"`
	NextStage            string  `json:"next_stage,omitempty"`
	UpdatedAt            string  `json:"updated_at,omitempty"`
}

func toStageResult(r *domain.StageResult) StageResultOutput {
	return StageResultOutput{
		Repository:         r.Repository.String(),
		Stage:              r.Stage.String(),
		Status:             r.Status.String(),
		DocumentsProcessed: r.DocumentsProcessed,
		ChunksStored:       r.ChunksStored,
		DocumentsStored:    r.DocumentsStored,
		NewDocuments:       r.NewDocuments,
		ElapsedSeconds:     r.ElapsedSeconds,
		TerminationReason:  r.TerminationReason.String(),
		Examined:           r.Examined,
		Collection:         r.Collection,
		Error:              r.Error,
		Suggestion:         r.Suggestion,
		Warnings:           r.Warnings,
		RunID:              r.RunID,
		Running:            r.Running,
	}
}

// stageFailure reports a stage that could not be started.
func stageFailure(repo domain.RepositoryID, stage domain.Stage, err error) StageResultOutput {
	status := domain.StatusFailed
	if errors.Is(err, domain.ErrStageInProgress) {
		status = domain.StatusInProgress
	}
	return StageResultOutput{
		Repository: repo.String(),
		Stage:      stage.String(),
		Status:     status.String(),
		Collection: domain.CollectionName(repo, stage.SourceType()),
		Error:      err.Error(),
		Suggestion: domain.Suggestion(err),
	}
}

func toStatus(p *domain.IngestionProgress) StatusOutput {
	out := StatusOutput{
		Repository:           p.Repository.String(),
		DefaultBranch:        p.DefaultBranch,
		OverallStatus:        p.OverallStatus().String(),
		CompletionPercentage: p.CompletionPercentage(),
		TotalDocuments:       p.TotalDocuments(),
		TotalChunks:          p.TotalChunks(),
		NextStage:            p.NextStage().String(),
		Stages:               make([]StageStatusOutput, 0, len(domain.Stages())),
		Collections:          p.Collections(),
	}
	if out.Collections == nil {
		out.Collections = []string{}
	}
	for _, st := range domain.Stages() {
		sp := p.Stage(st)
		out.Stages = append(out.Stages, StageStatusOutput{
			Stage:              st.String(),
			Status:             sp.Status.String(),
			DocumentsStored:    sp.DocumentsStored,
			ChunksStored:       sp.ChunksStored,
			DocumentsProcessed: sp.DocumentsProcessed,
			Collection:         sp.CollectionName,
			TerminationReason:  sp.TerminationReason.String(),
			Error:              sp.Error,
			StartedAt:          timestamp(sp.StartedAt),
			CompletedAt:        timestamp(sp.CompletedAt),
			HeartbeatAt:        timestamp(sp.HeartbeatAt),
			DurationSeconds:    sp.Duration.Seconds(),
		})
	}
	return out
}

func toRepository(s domain.RepositorySummary) RepositoryOutput {
	return RepositoryOutput{
		Repository:           s.Repository.String(),
		OverallStatus:        s.OverallStatus.String(),
		CompletionPercentage: s.Completion,
		TotalDocuments:       s.TotalDocuments,
		NextStage:            s.NextStage.String(),
		UpdatedAt:            timestamp(s.UpdatedAt),
	}
}

func timestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func toHealth(r *domain.HealthReport) HealthOutput {
	out := HealthOutput{
		Healthy:            r.Healthy,
		EmbeddingProvider:  string(r.Embedding.Provider),
		EmbeddingModel:     r.Embedding.Model,
		EmbeddingReachable: r.Embedding.Reachable,
		EmbeddingError:     r.Embedding.Error,
		DatabasePath:       r.DatabasePath,
		StuckStages:        make([]StuckStageOutput, len(r.StuckStages)),
		CheckedAt:          timestamp(r.CheckedAt),
	}
	if q := r.GitHubQuota; q != nil {
		out.GitHubQuota = &QuotaOutput{Limit: q.Limit, Remaining: q.Remaining, ResetAt: timestamp(q.Reset)}
	}
	for i, st := range r.StuckStages {
		out.StuckStages[i] = StuckStageOutput{
			Repository:    st.Repository.String(),
			Stage:         st.Stage.String(),
			RunID:         st.RunID,
			LastHeartbeat: timestamp(st.LastHeartbeat),
		}
	}
	return out
}
