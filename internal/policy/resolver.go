package policy

import "scribe-pipeline-go/internal/types"

// Resolver composes the classifier and the table.
type Resolver struct {
	table      *Table
	classifier *Classifier
}

func NewResolver(table *Table, classifier *Classifier) *Resolver {
	return &Resolver{table: table, classifier: classifier}
}

// Classify returns the stage a task belongs to.
func (r *Resolver) Classify(task string) types.StageKind {
	return r.classifier.Classify(task)
}

// PolicyFor returns Lookup(Classify(task)).
func (r *Resolver) PolicyFor(task string) RetryPolicy {
	return r.table.Lookup(r.classifier.Classify(task))
}

func (r *Resolver) Table() *Table { return r.table }
