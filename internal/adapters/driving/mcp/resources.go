package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/repolens/internal/core/domain"
)

const (
	// URIScheme is the custom URI scheme for repolens resources.
	uriScheme = "repolens://"
)

// registerResources registers all resource handlers with the MCP server.
func (s *Server) registerResources() {
	// Static resource for listing repositories.
	s.server.AddResource(&mcp.Resource{
		URI:         uriScheme + "repositories",
		Name:        "repositories",
		Description: "Every ingested repository with its overall status",
		MIMEType:    "application/json",
	}, s.handleRepositoriesResource)

	// Template for the progress of one repository.
	s.server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: uriScheme + "repositories/{owner}/{name}/status",
		Name:        "repository-status",
		Description: "Per-stage ingestion progress of a repository",
		MIMEType:    "application/json",
	}, s.handleStatusResource)
}

// handleRepositoriesResource returns the repository listing.
func (s *Server) handleRepositoriesResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	summaries, err := s.ports.Ingestion.ListRepositories(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing repositories: %w", err)
	}

	infos := make([]RepositoryOutput, len(summaries))
	for i := range summaries {
		infos[i] = toRepository(summaries[i])
	}
	return jsonResource(req.Params.URI, infos)
}

// handleStatusResource returns the progress of one repository.
func (s *Server) handleStatusResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	// Extract the repository from URI: repolens://repositories/{owner}/{name}/status
	repo, ok := extractRepository(req.Params.URI)
	if !ok {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	p, err := s.ports.Ingestion.GetStatus(ctx, repo)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}
	if err != nil {
		return nil, fmt.Errorf("getting status: %w", err)
	}
	return jsonResource(req.Params.URI, toStatus(p))
}

func jsonResource(uri string, v any) (*mcp.ReadResourceResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshalling %s: %w", uri, err)
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		}},
	}, nil
}

// extractRepository extracts the repository from a URI like
// repolens://repositories/{owner}/{name}/status.
func extractRepository(uri string) (domain.RepositoryID, bool) {
	const prefix = uriScheme + "repositories/"
	const suffix = "/status"

	if !strings.HasPrefix(uri, prefix) || !strings.HasSuffix(uri, suffix) {
		return domain.RepositoryID{}, false
	}

	repo, err := domain.ParseRepositoryID(strings.TrimSuffix(strings.TrimPrefix(uri, prefix), suffix))
	if err != nil {
		return domain.RepositoryID{}, false
	}
	return repo, true
}
