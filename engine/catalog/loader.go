package catalog

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-yaml"

	"github.com/flowgate/flowgate/engine/task"
	"github.com/flowgate/flowgate/engine/workflow"
	"github.com/flowgate/flowgate/pkg/logger"
)

const (
	KindTask     = "Task"
	KindWorkflow = "Workflow"
)

// LoadDir loads every YAML definition under dir into a validated Store.
// Files may hold multiple documents separated by "---"; each document
// declares its kind (Task or Workflow). Tasks load before workflows so
// referential validation sees the full task set.
func LoadDir(ctx context.Context, dir string) (*Store, error) {
	log := logger.FromContext(ctx)
	store := NewStore()

	var taskDocs, workflowDocs []document
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !isYAMLFile(path) {
			return nil
		}
		docs, err := readDocuments(path)
		if err != nil {
			return err
		}
		for _, doc := range docs {
			switch doc.kind {
			case KindTask:
				taskDocs = append(taskDocs, doc)
			case KindWorkflow:
				workflowDocs = append(workflowDocs, doc)
			default:
				return fmt.Errorf("%s: unknown kind %q", path, doc.kind)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load definitions from %s: %w", dir, err)
	}

	for _, doc := range taskDocs {
		cfg := &task.Config{}
		if err := yaml.Unmarshal(doc.body, cfg); err != nil {
			return nil, fmt.Errorf("%s: failed to decode task: %w", doc.path, err)
		}
		if err := store.AddTask(ctx, cfg); err != nil {
			return nil, fmt.Errorf("%s: %w", doc.path, err)
		}
	}
	for _, doc := range workflowDocs {
		cfg := &workflow.Config{}
		if err := yaml.Unmarshal(doc.body, cfg); err != nil {
			return nil, fmt.Errorf("%s: failed to decode workflow: %w", doc.path, err)
		}
		if err := store.AddWorkflow(ctx, cfg); err != nil {
			return nil, fmt.Errorf("%s: %w", doc.path, err)
		}
	}

	log.Info("Catalog loaded",
		"dir", dir,
		"tasks", len(store.tasks),
		"workflows", len(store.workflows),
	)
	return store, nil
}

type document struct {
	path string
	kind string
	body []byte
}

// readDocuments splits a YAML file into its documents and peeks at each
// document's kind without committing to a concrete config type yet.
func readDocuments(path string) ([]document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var docs []document
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	for {
		var node map[string]any
		if err := dec.Decode(&node); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("%s: invalid YAML: %w", path, err)
		}
		if node == nil {
			continue
		}
		kind, _ := node["kind"].(string)
		delete(node, "kind")
		body, err := yaml.Marshal(node)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		docs = append(docs, document{path: path, kind: kind, body: body})
	}
	return docs, nil
}

func isYAMLFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}
