package main

import (
	"encoding/json"
	"fmt"
	"os"

	"placement-workers/internal/common/placement"
	"placement-workers/internal/common/validation"
	"placement-workers/pkg/assignment"
)

func loadProblem(path string) (*placement.Problem, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read input file %s: %w", path, err)
	}

	var problem placement.Problem
	if err := json.Unmarshal(content, &problem); err != nil {
		return nil, fmt.Errorf("failed to unmarshal input JSON: %w", err)
	}
	if res := validation.ValidateStruct(&problem); !res.Valid {
		return nil, fmt.Errorf("invalid input: %s", res.Error())
	}

	problem.Preferences = assignment.Normalize(problem.Preferences)
	return &problem, nil
}

func loadResult(path string) (*assignment.Result, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read result file %s: %w", path, err)
	}

	var result assignment.Result
	if err := json.Unmarshal(content, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal result JSON: %w", err)
	}
	return &result, nil
}
