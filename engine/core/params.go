package core

import (
	"encoding/json"
	"fmt"
	"maps"
)

// -----------------------------------------------------------------------------
// Input
// -----------------------------------------------------------------------------

// Input holds the JSON-shaped payload a workflow or task receives.
type Input map[string]any

func NewInput(data map[string]any) Input {
	if data == nil {
		return Input{}
	}
	return Input(data)
}

func (i Input) AsMap() map[string]any {
	return i
}

func (i Input) Get(key string) (any, bool) {
	v, ok := i[key]
	return v, ok
}

// Clone returns a deep copy so one execution can never observe another's
// mutations.
func (i Input) Clone() (Input, error) {
	if i == nil {
		return nil, nil
	}
	copied, err := deepCopyMap(i)
	if err != nil {
		return nil, fmt.Errorf("failed to clone input: %w", err)
	}
	return Input(copied), nil
}

// -----------------------------------------------------------------------------
// Output
// -----------------------------------------------------------------------------

// Output holds the JSON-shaped payload a task produced.
type Output map[string]any

func (o Output) AsMap() map[string]any {
	return o
}

func (o Output) Clone() (Output, error) {
	if o == nil {
		return nil, nil
	}
	copied, err := deepCopyMap(o)
	if err != nil {
		return nil, fmt.Errorf("failed to clone output: %w", err)
	}
	return Output(copied), nil
}

func (o Output) Merge(other Output) Output {
	if o == nil {
		o = Output{}
	}
	maps.Copy(o, other)
	return o
}

// deepCopyMap round-trips through JSON, which matches the runtime shape of
// these values: they are decoded HTTP bodies and YAML documents, never native
// structs.
func deepCopyMap(src map[string]any) (map[string]any, error) {
	raw, err := json.Marshal(src)
	if err != nil {
		return nil, err
	}
	var dst map[string]any
	if err := json.Unmarshal(raw, &dst); err != nil {
		return nil, err
	}
	return dst, nil
}
