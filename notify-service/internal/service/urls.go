package service

import (
	"context"
	"fmt"
	"time"

	"github.com/weiawesome/picpipe/notify-service/internal/domain"
)

// signVersions replaces every object key in versions with a download URL.
func signVersions(ctx context.Context, urls URLSigner, versions map[string]string, ttl time.Duration) (map[string]string, error) {
	out := make(map[string]string, len(versions))
	for name, key := range versions {
		u, err := urls.GetURL(ctx, key, ttl)
		if err != nil {
			return nil, fmt.Errorf("sign %s: %w", name, err)
		}
		out[name] = u
	}
	return out, nil
}

func toPush(ctx context.Context, urls URLSigner, p *domain.Project, ttl time.Duration, withProgress bool) (*domain.ProjectPush, error) {
	versions, err := signVersions(ctx, urls, p.Versions, ttl)
	if err != nil {
		return nil, err
	}
	push := &domain.ProjectPush{ProjectID: p.ID, State: p.State, Versions: versions}
	if withProgress {
		progress := p.Progress
		push.Progress = &progress
	}
	return push, nil
}

func toResponse(ctx context.Context, urls URLSigner, p *domain.Project, ttl time.Duration) (*domain.ProjectResponse, error) {
	versions, err := signVersions(ctx, urls, p.Versions, ttl)
	if err != nil {
		return nil, err
	}
	resp := &domain.ProjectResponse{
		ProjectID: p.ID,
		Filename:  p.Filename,
		State:     p.State,
		Versions:  versions,
		Error:     p.Error,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
	if p.Progress.Total > 0 {
		progress := p.Progress
		resp.Progress = &progress
	}
	return resp, nil
}
