package mysql

import (
	domain "pdmflow/internal/model"
)

// ToRunDomain converts a MySQL Run and its child rows to the domain Run
func ToRunDomain(run *Run, params []*RunParam, metrics []*RunMetric, artifacts []*RunArtifact) *domain.Run {
	if run == nil {
		return nil
	}

	out := &domain.Run{
		ID:          run.RunID,
		Name:        run.Name,
		Experiment:  run.Experiment,
		Status:      domain.RunStatus(run.Status),
		Error:       run.Error,
		WebhookURL:  run.WebhookURL,
		CreatedAt:   run.CreatedAt,
		UpdatedAt:   run.UpdatedAt,
		StartedAt:   run.StartedAt,
		CompletedAt: run.CompletedAt,
		Params:      make(map[string]string, len(params)),
		Metrics:     make(map[string]float64, len(metrics)),
	}
	for _, p := range params {
		out.Params[p.Key] = p.Value
	}
	for _, m := range metrics {
		out.Metrics[m.Key] = m.Value
	}
	for _, a := range artifacts {
		out.Artifacts = append(out.Artifacts, a.Path)
	}
	return out
}

// FromRunDomain converts a domain Run to the MySQL Run row. Params, metrics
// and artifacts are stored separately.
func FromRunDomain(run *domain.Run) *Run {
	if run == nil {
		return nil
	}
	status := string(run.Status)
	if status == "" {
		status = string(domain.RunStatusPending)
	}

	return &Run{
		RunID:       run.ID,
		Name:        run.Name,
		Experiment:  run.Experiment,
		Status:      status,
		Error:       run.Error,
		WebhookURL:  run.WebhookURL,
		CreatedAt:   run.CreatedAt,
		UpdatedAt:   run.UpdatedAt,
		StartedAt:   run.StartedAt,
		CompletedAt: run.CompletedAt,
	}
}

// ToModelVersionDomain converts a MySQL ModelVersion to the domain type
func ToModelVersionDomain(mv *ModelVersion) *domain.ModelVersion {
	if mv == nil {
		return nil
	}
	return &domain.ModelVersion{
		Name:        mv.Name,
		Version:     mv.Version,
		RunID:       mv.RunID,
		ArtifactKey: mv.ArtifactKey,
		CreatedAt:   mv.CreatedAt,
	}
}

// ToRunDomainList converts runs without their child rows
func ToRunDomainList(runs []*Run) []*domain.Run {
	out := make([]*domain.Run, 0, len(runs))
	for _, r := range runs {
		out = append(out, ToRunDomain(r, nil, nil, nil))
	}
	return out
}

func statusStrings(statuses []domain.RunStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
