package task

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/flowgate/flowgate/engine/core"
	"github.com/flowgate/flowgate/engine/schema"
	"github.com/flowgate/flowgate/pkg/tplengine"
)

// -----------------------------------------------------------------------------
// Task type
// -----------------------------------------------------------------------------

type Type string

const (
	// TypeHTTP is the only task type today; the executor dispatches on this
	// tag so future types stay a closed set.
	TypeHTTP Type = "http"
)

// -----------------------------------------------------------------------------
// Config
// -----------------------------------------------------------------------------

// Config is a reusable task definition. Immutable once loaded; workflows
// reference it by Ref.
type Config struct {
	Ref         string `json:"ref"                   yaml:"ref"            validate:"required"`
	Type        Type   `json:"type,omitempty"        yaml:"type,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// HTTP request shape; every string may carry template expressions that
	// resolve against the task's own resolved input.
	Method  string            `json:"method"            yaml:"method"  validate:"required"`
	URL     string            `json:"url"               yaml:"url"     validate:"required"`
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	Body    any               `json:"body,omitempty"    yaml:"body,omitempty"`

	InputSchema  *schema.Schema `json:"input,omitempty"  yaml:"input,omitempty"`
	OutputSchema *schema.Schema `json:"output,omitempty" yaml:"output,omitempty"`

	// Timeout bounds the whole execute-with-retries sequence for one step.
	Timeout string       `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	Retry   *RetryConfig `json:"retry,omitempty"   yaml:"retry,omitempty"`
}

var supportedMethods = map[string]bool{
	http.MethodGet:     true,
	http.MethodPost:    true,
	http.MethodPut:     true,
	http.MethodPatch:   true,
	http.MethodDelete:  true,
	http.MethodHead:    true,
	http.MethodOptions: true,
}

// IsSupportedMethod reports whether the resolved HTTP method is one the
// executor will issue.
func IsSupportedMethod(method string) bool {
	return supportedMethods[method]
}

func (c *Config) EffectiveType() Type {
	if c.Type == "" {
		return TypeHTTP
	}
	return c.Type
}

// GetTimeout parses the per-task timeout; zero means unbounded (the global
// deadline still applies).
func (c *Config) GetTimeout() (time.Duration, error) {
	if c.Timeout == "" {
		return 0, nil
	}
	return core.ParseHumanDuration(c.Timeout)
}

// Validate performs the structural checks the catalog runs at load time.
func (c *Config) Validate(ctx context.Context) error {
	if err := schema.NewStructValidator(c).Validate(ctx); err != nil {
		return fmt.Errorf("task %q is invalid: %w", c.Ref, err)
	}
	if c.EffectiveType() != TypeHTTP {
		return fmt.Errorf("task %q has unsupported type %q", c.Ref, c.Type)
	}
	// A literal method must be a supported verb; templated methods are
	// checked again after resolution at execution time.
	if !tplengine.HasTemplate(c.Method) && !IsSupportedMethod(c.Method) {
		return fmt.Errorf("task %q has unsupported method %q", c.Ref, c.Method)
	}
	if _, err := c.GetTimeout(); err != nil {
		return fmt.Errorf("task %q has invalid timeout: %w", c.Ref, err)
	}
	for _, tmpl := range c.templateStrings() {
		if _, err := tplengine.Parse(tmpl); err != nil {
			return fmt.Errorf("task %q has invalid template: %w", c.Ref, err)
		}
	}
	return nil
}

func (c *Config) templateStrings() []string {
	strs := []string{c.Method, c.URL}
	for _, v := range c.Headers {
		strs = append(strs, v)
	}
	strs = append(strs, collectStrings(c.Body)...)
	return strs
}

func collectStrings(value any) []string {
	switch v := value.(type) {
	case string:
		return []string{v}
	case map[string]any:
		var strs []string
		for _, val := range v {
			strs = append(strs, collectStrings(val)...)
		}
		return strs
	case []any:
		var strs []string
		for _, val := range v {
			strs = append(strs, collectStrings(val)...)
		}
		return strs
	default:
		return nil
	}
}
