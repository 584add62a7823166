package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
)

func SaveResult(r *Result, path string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write result to %s: %w", path, err)
	}
	return nil
}

func LoadResult(path string) (*Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read result from %s: %w", path, err)
	}
	var r Result
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parse result from %s: %w", path, err)
	}
	if r.Persona == nil || len(r.Persona.Sections) == 0 {
		return nil, fmt.Errorf("result %s has no persona", path)
	}
	return &r, nil
}
