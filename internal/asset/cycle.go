package asset

// findCycles returns every strongly connected component of edges that forms
// a cycle, each rotated to start at its smallest key. Results are sorted so
// the first cycle reported is stable across runs.
//
// edges maps a key to the keys it depends on.
func findCycles(keys []Key, edges map[Key][]Key) [][]Key {
	var (
		index   = 0
		stack   []Key
		indices = make(map[Key]int)
		lowlink = make(map[Key]int)
		onStack = make(map[Key]bool)
		cycles  [][]Key
	)

	var strongConnect func(Key)
	strongConnect = func(v Key) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range edges[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		if lowlink[v] == indices[v] {
			var scc []Key
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			if len(scc) > 1 || hasSelfLoop(v, edges) {
				cycles = append(cycles, cyclePath(scc, edges))
			}
		}
	}

	for _, k := range keys {
		if _, visited := indices[k]; !visited {
			strongConnect(k)
		}
	}

	return cycles
}

func hasSelfLoop(node Key, edges map[Key][]Key) bool {
	for _, w := range edges[node] {
		if w == node {
			return true
		}
	}
	return false
}

// cyclePath walks the component from its smallest member back to itself.
func cyclePath(scc []Key, edges map[Key][]Key) []Key {
	members := make(map[Key]bool, len(scc))
	start := scc[0]
	for _, k := range scc {
		members[k] = true
		if Compare(k, start) < 0 {
			start = k
		}
	}

	path := []Key{start}
	visited := map[Key]bool{start: true}
	current := start
	for {
		var next Key
		for _, w := range edges[current] {
			if members[w] && (!visited[w] || w == start) {
				next = w
				break
			}
		}
		if next == "" {
			break
		}
		path = append(path, next)
		if next == start {
			break
		}
		visited[next] = true
		current = next
	}
	return path
}
