package workflow

import (
	"context"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"tracker/internal/models"
)

// definitionFile is the on-disk shape of a seed file.
type definitionFile struct {
	Workflows []definition `yaml:"workflows"`
}

type definition struct {
	Name        string                      `yaml:"name"`
	Description string                      `yaml:"description"`
	Default     bool                        `yaml:"default"`
	Statuses    []models.WorkflowStatus     `yaml:"statuses"`
	Transitions []models.WorkflowTransition `yaml:"transitions"`
}

// LoadDefinitions parses a YAML seed document into workflows of workspaceID.
// Each workflow is normalised and validated.
func LoadDefinitions(r io.Reader, workspaceID string) ([]models.Workflow, error) {
	var file definitionFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("parse workflow definitions: %w", err)
	}

	out := make([]models.Workflow, 0, len(file.Workflows))
	for _, d := range file.Workflows {
		w := Normalize(models.Workflow{
			WorkspaceID: workspaceID,
			Name:        d.Name,
			Description: d.Description,
			IsDefault:   d.Default,
			Statuses:    d.Statuses,
			Transitions: d.Transitions,
		})
		if err := Validate(w); err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, nil
}

// Seed creates every loaded workflow that does not exist yet and returns the
// ones created. A workflow flagged default in the file becomes the default;
// otherwise the first workflow of an empty workspace does.
func (s *Service) Seed(ctx context.Context, defs []models.Workflow) ([]models.Workflow, error) {
	var created []models.Workflow
	for _, d := range defs {
		existing, err := s.store.GetWorkflowByName(ctx, d.WorkspaceID, d.Name)
		if err == nil {
			s.logger.Info("workflow already present, skipping", "workspace", d.WorkspaceID, "name", existing.Name)
			continue
		}
		if !errors.Is(err, models.ErrNotFound) {
			return created, err
		}
		w, err := s.Create(ctx, d)
		if err != nil {
			return created, fmt.Errorf("seed workflow %s: %w", d.Name, err)
		}
		created = append(created, w)
	}
	return created, nil
}
