// Package repair normalizes malformed array and JSON literals and other
// artifacts left in SQL text by imperfect exporters. Every pass only touches
// plain code; quoted strings, identifiers, comments and dollar-quoted bodies
// are copied through unchanged.
package repair

import (
	"dbrestore/internal/logger"
)

// Pass is one named text rewrite
type Pass struct {
	Name  string
	Apply func(sql string) string
}

// Pipeline runs the repair passes in order
type Pipeline struct {
	passes []Pass
	log    logger.Logger
}

// DefaultPasses returns the five repair passes in the order they must run
func DefaultPasses() []Pass {
	return []Pass{
		{Name: "arrays", Apply: NormalizeArrays},
		{Name: "contextual-json", Apply: WrapContextualJSON},
		{Name: "bare-objects", Apply: WrapBareObjects},
		{Name: "fragments", Apply: SanitizeFragments},
		{Name: "ddl-arrays", Apply: NormalizeDDLArrays},
	}
}

// New creates a pipeline with the default passes
func New(log logger.Logger) *Pipeline {
	if log == nil {
		log = logger.NewNullLogger()
	}
	return &Pipeline{passes: DefaultPasses(), log: log}
}

// Repair runs every pass over a whole script
func (p *Pipeline) Repair(sql string) string {
	for _, pass := range p.passes {
		next := pass.Apply(sql)
		if next != sql {
			p.log.Debug("Repair pass rewrote SQL", "pass", pass.Name, "before", len(sql), "after", len(next))
		}
		sql = next
	}
	return sql
}

// RepairStatement runs the pipeline on a single statement that the database
// rejected with a syntax error. It reports whether anything changed.
func (p *Pipeline) RepairStatement(stmt string) (string, bool) {
	repaired := p.Repair(stmt)
	return repaired, repaired != stmt
}
