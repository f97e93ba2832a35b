package actions

import (
	"os"
	"path/filepath"
	"testing"
)

const sampleManifest = `
actions:
  - name: weather
    description: Look up the weather
    activation:
      kind: keyword
      keywords: [weather, forecast]
    parallel: true
  - name: dice
    description: Roll a die
    activation:
      kind: random
      probability: 0.25
  - name: summarize
    description: Summarize the conversation
    activation:
      kind: llm_judge
      judge_prompt: Is the conversation long enough to be worth summarizing?
`

func writeManifest(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "actions.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadManifest(t *testing.T) {
	m, err := LoadManifest(writeManifest(t, sampleManifest))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(m.Actions) != 3 {
		t.Fatalf("actions = %d, want 3", len(m.Actions))
	}
	if m.Actions[0].Activation.Kind != PolicyKeyword {
		t.Errorf("weather policy = %q, want keyword", m.Actions[0].Activation.Kind)
	}
	if p := m.Actions[1].Activation.Probability; p != 0.25 {
		t.Errorf("dice probability = %v, want 0.25", p)
	}
}

func TestLoadManifest_BadProbability(t *testing.T) {
	body := `
actions:
  - name: dice
    description: Roll a die
    activation:
      kind: random
      probability: 1.5
`
	if _, err := LoadManifest(writeManifest(t, body)); err == nil {
		t.Error("expected error for probability outside [0,1]")
	}
}

func TestLoadManifest_UnknownKind(t *testing.T) {
	body := `
actions:
  - name: x
    description: y
    activation:
      kind: sometimes
`
	if _, err := LoadManifest(writeManifest(t, body)); err == nil {
		t.Error("expected error for unknown policy kind")
	}
}

func TestManifestApply_Reload(t *testing.T) {
	reg := NewRegistry()

	m, err := LoadManifest(writeManifest(t, sampleManifest))
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Apply(reg, nil); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if reg.Count() != 3 {
		t.Fatalf("count = %d, want 3", reg.Count())
	}

	// Re-applying the same manifest must not trip the duplicate check.
	if err := m.Apply(reg, nil); err != nil {
		t.Fatalf("re-apply: %v", err)
	}
	if reg.Count() != 3 {
		t.Errorf("count after re-apply = %d, want 3", reg.Count())
	}

	desc, ok := reg.Get("weather")
	if !ok {
		t.Fatal("weather missing after apply")
	}
	exec, err := desc.NewExecutor(nil)
	if err != nil {
		t.Fatalf("executor: %v", err)
	}
	res, err := exec.Execute(t.Context())
	if err != nil || !res.Success {
		t.Errorf("display-only executor: res=%+v err=%v", res, err)
	}
}
