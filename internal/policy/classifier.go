package policy

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v2"
	"scribe-pipeline-go/internal/types"
)

// builtinTasks are the task names the pipeline emits out of the box.
var builtinTasks = map[string]types.StageKind{
	"transcribe_audio":   types.StageTranscription,
	"transcribe_chunk":   types.StageTranscription,
	"live_transcription": types.StageTranscription,
	"extract_entities":   types.StageExtraction,
	"extract_findings":   types.StageExtraction,
	"generate_note":      types.StageGeneration,
	"generate_summary":   types.StageGeneration,
	"validate_note":      types.StageValidation,
	"validate_schema":    types.StageValidation,
	"save_record":        types.StagePersistence,
	"sync_remote":        types.StagePersistence,
}

// Classifier maps task names to stages. Immutable after NewClassifier.
type Classifier struct {
	tasks map[string]types.StageKind
}

// NewClassifier merges the built-in task names with extra. Entries in extra
// win. Every stage name also classifies as itself.
func NewClassifier(extra map[string]types.StageKind) *Classifier {
	tasks := make(map[string]types.StageKind, len(builtinTasks)+len(extra)+6)
	for _, s := range types.Stages() {
		tasks[string(s)] = s
	}
	for name, s := range builtinTasks {
		tasks[name] = s
	}
	for name, s := range extra {
		tasks[normalizeTask(name)] = s
	}
	return &Classifier{tasks: tasks}
}

// Classify returns the stage for task, or types.StageDefault when unknown.
func (c *Classifier) Classify(task string) types.StageKind {
	if s, ok := c.tasks[normalizeTask(task)]; ok {
		return s
	}
	return types.StageDefault
}

// Tasks returns a copy of the classification mapping.
func (c *Classifier) Tasks() map[string]types.StageKind {
	out := make(map[string]types.StageKind, len(c.tasks))
	for k, v := range c.tasks {
		out[k] = v
	}
	return out
}

func normalizeTask(task string) string {
	return strings.ToLower(strings.TrimSpace(task))
}

type taskMapFile struct {
	Tasks map[string]string `yaml:"tasks"`
}

// LoadTaskMap reads task overrides from a YAML file of the form
//
//	tasks:
//	  redact_phi: extraction
//
// Stage names outside the closed set are rejected.
func LoadTaskMap(path string) (map[string]types.StageKind, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read task map: %w", err)
	}
	var f taskMapFile
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &f); err != nil {
		return nil, fmt.Errorf("parse task map: %w", err)
	}
	out := make(map[string]types.StageKind, len(f.Tasks))
	for task, name := range f.Tasks {
		stage, ok := types.ParseStageKind(name)
		if !ok {
			return nil, fmt.Errorf("task map: task %q has unknown stage %q", task, name)
		}
		out[normalizeTask(task)] = stage
	}
	return out, nil
}
