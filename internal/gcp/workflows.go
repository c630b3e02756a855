package gcp

import (
	"context"
	"encoding/json"
	"fmt"

	executions "cloud.google.com/go/workflows/executions/apiv1"
	"cloud.google.com/go/workflows/executions/apiv1/executionspb"
)

// WorkflowConfig identifies the Cloud Workflow that drives a document
// from OCR_RUNNING to READY by calling the process endpoint.
type WorkflowConfig struct {
	ProjectID  string
	Location   string
	WorkflowID string
}

// WorkflowFinalizeTrigger implements services.WorkflowTrigger by
// starting a Cloud Workflows execution with the document ID as argument.
type WorkflowFinalizeTrigger struct {
	client *executions.Client
	config WorkflowConfig
}

// NewWorkflowFinalizeTrigger creates the trigger and its executions
// client.
func NewWorkflowFinalizeTrigger(ctx context.Context, config WorkflowConfig) (*WorkflowFinalizeTrigger, error) {
	client, err := executions.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create Workflows Executions client: %w", err)
	}
	return &WorkflowFinalizeTrigger{client: client, config: config}, nil
}

func (t *WorkflowFinalizeTrigger) TriggerFinalize(ctx context.Context, documentID string) error {
	payload, err := json.Marshal(map[string]any{"documentId": documentID})
	if err != nil {
		return fmt.Errorf("failed to marshal workflow payload: %w", err)
	}

	req := &executionspb.CreateExecutionRequest{
		Parent: fmt.Sprintf("projects/%s/locations/%s/workflows/%s",
			t.config.ProjectID, t.config.Location, t.config.WorkflowID),
		Execution: &executionspb.Execution{
			Argument: string(payload),
		},
	}
	if _, err := t.client.CreateExecution(ctx, req); err != nil {
		return fmt.Errorf("failed to trigger workflow execution: %w", err)
	}
	return nil
}
