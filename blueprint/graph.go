package blueprint

import (
	"fmt"
	"slices"

	"github.com/kbukum/dwiflow/errors"
)

// Edge is a dependency: To runs after From.
type Edge struct {
	From string
	To   string
}

// BuildLevels groups nodes by dependency level with Kahn's algorithm.
// Nodes of one level do not depend on each other and can run in parallel.
// Each level is sorted by name, so the result is deterministic. A cycle or
// an edge to an unknown node is INVALID_INPUT.
func BuildLevels(nodes []string, edges []Edge) ([][]string, error) {
	inDegree := make(map[string]int, len(nodes))
	dependents := make(map[string][]string)

	for _, name := range nodes {
		inDegree[name] = 0
	}
	for _, e := range edges {
		if _, ok := inDegree[e.From]; !ok {
			return nil, errors.InvalidInput("depends_on", fmt.Sprintf("%s depends on unknown stage %s", e.To, e.From))
		}
		if _, ok := inDegree[e.To]; !ok {
			return nil, errors.InvalidInput("depends_on", fmt.Sprintf("edge references unknown stage %s", e.To))
		}
		inDegree[e.To]++
		dependents[e.From] = append(dependents[e.From], e.To)
	}

	var queue []string
	for name, deg := range inDegree {
		if deg == 0 {
			queue = append(queue, name)
		}
	}

	var levels [][]string
	visited := 0
	for len(queue) > 0 {
		slices.Sort(queue)
		levels = append(levels, queue)
		visited += len(queue)

		var next []string
		for _, name := range queue {
			for _, dep := range dependents[name] {
				inDegree[dep]--
				if inDegree[dep] == 0 {
					next = append(next, dep)
				}
			}
		}
		queue = next
	}

	if visited != len(inDegree) {
		var cyclic []string
		for name, deg := range inDegree {
			if deg > 0 {
				cyclic = append(cyclic, name)
			}
		}
		slices.Sort(cyclic)
		return nil, errors.InvalidInput("depends_on", fmt.Sprintf("dependency cycle among %v", cyclic))
	}
	return levels, nil
}

// stageLevels levels the stages of a blueprint.
func stageLevels(stages []StageDef) ([][]StageDef, error) {
	byName := make(map[string]StageDef, len(stages))
	names := make([]string, 0, len(stages))
	var edges []Edge
	for _, s := range stages {
		byName[s.Name] = s
		names = append(names, s.Name)
		for _, dep := range s.DependsOn {
			edges = append(edges, Edge{From: dep, To: s.Name})
		}
	}

	levels, err := BuildLevels(names, edges)
	if err != nil {
		return nil, err
	}
	out := make([][]StageDef, len(levels))
	for i, level := range levels {
		for _, name := range level {
			out[i] = append(out[i], byName[name])
		}
	}
	return out, nil
}
