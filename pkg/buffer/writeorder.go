package buffer

import "github.com/cuemby/ember/pkg/emberr"

// RegisterWriteOrderDependency records that predecessor must reach stable
// storage before successor does (bf.cpp's register_write_order_dependency),
// rejecting the edge with emberr.KindWriteOrderLoop if it would create a
// cycle.
func (p *Pool) RegisterWriteOrderDependency(successor, predecessor *BCB) error {
	p.woMu.Lock()
	defer p.woMu.Unlock()

	if successor == predecessor {
		return emberr.New(emberr.KindWriteOrderLoop, "write-order dependency cannot reference itself (%s)", successor.PageID)
	}
	if p.hasPathLocked(successor, predecessor) {
		return emberr.New(emberr.KindWriteOrderLoop, "write-order dependency %s -> %s would create a cycle", predecessor.PageID, successor.PageID)
	}
	successor.predecessors[predecessor] = struct{}{}
	predecessor.successors[successor] = struct{}{}
	return nil
}

// hasPathLocked reports whether a chain of successor edges already
// connects from to to. Caller must hold woMu.
func (p *Pool) hasPathLocked(from, to *BCB) bool {
	visited := make(map[*BCB]bool)
	var dfs func(n *BCB) bool
	dfs = func(n *BCB) bool {
		if n == to {
			return true
		}
		if visited[n] {
			return false
		}
		visited[n] = true
		for succ := range n.successors {
			if dfs(succ) {
				return true
			}
		}
		return false
	}
	return dfs(from)
}

// hasPendingDependencies reports whether bcb has any outstanding
// predecessor it must wait to be flushed before it; the cleaner skips
// such pages, per spec.md §4.6.
func (p *Pool) hasPendingDependencies(bcb *BCB) bool {
	p.woMu.Lock()
	defer p.woMu.Unlock()
	return len(bcb.predecessors) > 0
}

// clearDependencies removes bcb from the write-order graph once it has
// been flushed: bf.cpp's "when a page is cleaned, its back-pointers
// remove it from successors' dependency lists".
func (p *Pool) clearDependencies(bcb *BCB) {
	p.woMu.Lock()
	defer p.woMu.Unlock()
	for succ := range bcb.successors {
		delete(succ.predecessors, bcb)
	}
	for pred := range bcb.predecessors {
		delete(pred.successors, bcb)
	}
	bcb.successors = make(map[*BCB]struct{})
	bcb.predecessors = make(map[*BCB]struct{})
}
