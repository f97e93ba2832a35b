package actions

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// Manifest is the YAML file format for declarative actions: lightweight
// actions (emoji reactions, canned behaviors) declared without Go code.
// LLM-judged and coded actions still register programmatically.
type Manifest struct {
	Actions []ManifestAction `yaml:"actions"`
}

// ManifestAction is one declarative action entry.
type ManifestAction struct {
	Name        string      `yaml:"name"`
	Description string      `yaml:"description"`
	Activation  Policy      `yaml:"activation"`
	Parallel    bool        `yaml:"parallel"`
	Params      []ParamSpec `yaml:"params"`
	Display     string      `yaml:"display"` // outcome text when no executor is bound
}

// LoadManifest parses a YAML action manifest from disk.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	for i, a := range m.Actions {
		if a.Name == "" {
			return nil, fmt.Errorf("manifest %s: action %d missing name", path, i)
		}
		if err := validatePolicy(a.Activation); err != nil {
			return nil, fmt.Errorf("manifest %s: action %q: %w", path, a.Name, err)
		}
	}
	return &m, nil
}

func validatePolicy(p Policy) error {
	switch p.Kind {
	case PolicyAlways, PolicyNever:
		return nil
	case PolicyRandom:
		if p.Probability < 0 || p.Probability > 1 {
			return fmt.Errorf("random probability %v outside [0,1]", p.Probability)
		}
		return nil
	case PolicyKeyword:
		if len(p.Keywords) == 0 {
			return fmt.Errorf("keyword policy with no keywords")
		}
		return nil
	case PolicyLLMJudge:
		if p.JudgePrompt == "" {
			return fmt.Errorf("llm_judge policy with empty prompt")
		}
		return nil
	default:
		return fmt.Errorf("unknown policy kind %q", p.Kind)
	}
}

// Apply registers manifest actions into reg, binding executors from
// factories by action name. Entries without a factory get a display-only
// executor. Existing same-name registrations are replaced so the
// manifest can be hot-reloaded.
func (m *Manifest) Apply(reg *Registry, factories map[string]ExecutorFactory) error {
	for _, a := range m.Actions {
		a := a
		factory := factories[a.Name]
		if factory == nil {
			factory = displayOnlyFactory(a.Name, a.Display)
		}

		desc := &ActionDescriptor{
			Name:            a.Name,
			Description:     a.Description,
			Activation:      a.Activation,
			Parameters:      a.Params,
			ParallelAllowed: a.Parallel,
			NewExecutor:     factory,
		}

		reg.Unregister(a.Name)
		if err := reg.Register(desc); err != nil {
			return fmt.Errorf("apply manifest action %q: %w", a.Name, err)
		}
	}
	slog.Info("action manifest applied", "actions", len(m.Actions))
	return nil
}

// displayOnlyFactory produces executors that succeed immediately with a
// fixed display line. Used for declarative actions whose side effect is
// purely conversational.
func displayOnlyFactory(name, display string) ExecutorFactory {
	if display == "" {
		display = name + " done"
	}
	return func(params map[string]any) (Executor, error) {
		return ExecutorFunc(func(ctx context.Context) (Result, error) {
			return Result{Success: true, Display: display}, nil
		}), nil
	}
}
