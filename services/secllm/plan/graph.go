// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package plan

import "slices"

// detectCycles runs a depth-first search over the dependency edges and
// returns a *CycleError describing the first cycle found. Roots are
// visited in ascending id order so the reported path is deterministic.
func detectCycles(steps map[int]Step, deps map[int][]int) error {
	visited := make(map[int]bool, len(steps))
	recStack := make(map[int]bool, len(steps))
	path := make([]int, 0, len(steps))

	var dfs func(id int) error
	dfs = func(id int) error {
		visited[id] = true
		recStack[id] = true
		path = append(path, id)

		for _, dep := range deps[id] {
			if !visited[dep] {
				if err := dfs(dep); err != nil {
					return err
				}
			} else if recStack[dep] {
				start := slices.Index(path, dep)
				cycle := append(slices.Clone(path[start:]), dep)
				return &CycleError{Path: cycle}
			}
		}

		path = path[:len(path)-1]
		recStack[id] = false
		return nil
	}

	for _, id := range sortedIDs(steps) {
		if !visited[id] {
			if err := dfs(id); err != nil {
				return err
			}
		}
	}
	return nil
}

// topoOrder returns a topological order of an acyclic graph using Kahn's
// algorithm. Among ready steps the smallest id always goes first.
func topoOrder(steps map[int]Step, deps map[int][]int) []int {
	indegree := make(map[int]int, len(steps))
	dependents := make(map[int][]int, len(steps))
	for id := range steps {
		indegree[id] = len(deps[id])
		for _, d := range deps[id] {
			dependents[d] = append(dependents[d], id)
		}
	}

	var ready []int
	for id, n := range indegree {
		if n == 0 {
			ready = append(ready, id)
		}
	}

	order := make([]int, 0, len(steps))
	for len(ready) > 0 {
		slices.Sort(ready)
		id := ready[0]
		ready = ready[1:]
		order = append(order, id)
		for _, next := range dependents[id] {
			indegree[next]--
			if indegree[next] == 0 {
				ready = append(ready, next)
			}
		}
	}
	return order
}
