// Package kvtest is a deterministic, in-memory test double of the
// kvapi.Store collaborator interface. It is not the "real" transactional
// KV engine (that remains out of scope for this module), but it
// implements enough of get/set/clear/get_range/mutate(ADD)/snapshot/
// commit/reset and the directory layer to exercise every component in
// this adapter against real conflict and retry behavior in tests.
package kvtest

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/flatkv/sqladapter/internal/kvapi"
)

// dirNode is one node of the in-memory directory tree. Each node is
// assigned an 8-byte id exactly once, on first creation; moving a node
// relabels its position in the tree but never touches its id, so a
// directory Move never requires rewriting any data key — exactly the
// property the alter orchestrator relies on.
type dirNode struct {
	id       []byte
	prefix   []byte // concatenation of ids from root to this node
	children map[string]*dirNode
}

func newDirNode(prefix []byte) *dirNode {
	return &dirNode{prefix: prefix, children: map[string]*dirNode{}}
}

// directory implements kvapi.Directory over the dirNode tree.
type directory struct {
	mu      sync.Mutex
	root    *dirNode
	nextID  uint64
}

func newDirectory() *directory {
	return &directory{root: newDirNode(nil), nextID: 1}
}

func (d *directory) allocID() []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], d.nextID)
	d.nextID++
	return b[:]
}

func (d *directory) walk(path []string, create bool) (*dirNode, bool) {
	node := d.root
	for _, name := range path {
		child, ok := node.children[name]
		if !ok {
			if !create {
				return nil, false
			}
			id := d.allocID()
			prefix := append(append([]byte{}, node.prefix...), id...)
			child = newDirNode(prefix)
			child.id = id
			node.children[name] = child
		}
		node = child
	}
	return node, true
}

func (d *directory) CreateOrOpen(ctx context.Context, path []string) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	node, _ := d.walk(path, true)
	return append([]byte{}, node.prefix...), nil
}

func (d *directory) Open(ctx context.Context, path []string) ([]byte, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	node, ok := d.walk(path, false)
	if !ok {
		return nil, false, nil
	}
	return append([]byte{}, node.prefix...), true, nil
}

func (d *directory) List(ctx context.Context, path []string) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	node, ok := d.walk(path, false)
	if !ok {
		return nil, nil
	}
	names := make([]string, 0, len(node.children))
	for name := range node.children {
		names = append(names, name)
	}
	return names, nil
}

func (d *directory) Move(ctx context.Context, oldPath, newPath []string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(oldPath) == 0 || len(newPath) == 0 {
		return fmt.Errorf("kvtest: cannot move root")
	}
	oldParent, ok := d.walk(oldPath[:len(oldPath)-1], false)
	if !ok {
		return fmt.Errorf("kvtest: move source parent %v does not exist", oldPath[:len(oldPath)-1])
	}
	node, ok := oldParent.children[oldPath[len(oldPath)-1]]
	if !ok {
		return fmt.Errorf("kvtest: move source %v does not exist", oldPath)
	}
	newParent, _ := d.walk(newPath[:len(newPath)-1], true)
	delete(oldParent.children, oldPath[len(oldPath)-1])
	newParent.children[newPath[len(newPath)-1]] = node
	return nil
}

func (d *directory) RemoveIfExists(ctx context.Context, path []string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(path) == 0 {
		return false, fmt.Errorf("kvtest: cannot remove root")
	}
	parent, ok := d.walk(path[:len(path)-1], false)
	if !ok {
		return false, nil
	}
	last := path[len(path)-1]
	if _, ok := parent.children[last]; !ok {
		return false, nil
	}
	delete(parent.children, last)
	return true, nil
}

var _ kvapi.Directory = (*directory)(nil)
