package vfs

import (
	"sync"
	"sync/atomic"
)

// NodeOps is the directory operation set a driver attaches to its nodes.
type NodeOps interface {
	// Lookup returns the child of parent called name, or nil.
	Lookup(parent *Node, name string) *Node
	// CreateNode allocates a child of parent and links it into the driver's
	// structure.
	CreateNode(parent *Node, name string, mode Mode, fops FileOps, payload any) (*Node, error)
}

// Lister is implemented by NodeOps whose children are not tracked on the
// node itself, such as synthesized process entries.
type Lister interface {
	List(dir *Node) []*Node
}

// DefaultNodeOps can be embedded by drivers that support a subset of the
// directory operations. Missing hooks find nothing and refuse creation.
type DefaultNodeOps struct{}

func (DefaultNodeOps) Lookup(*Node, string) *Node { return nil }

func (DefaultNodeOps) CreateNode(*Node, string, Mode, FileOps, any) (*Node, error) {
	return nil, EPERM
}

var lastIno atomic.Uint64

// Node is an entry in the filesystem tree. Which of ops, fileOps and payload
// are meaningful depends on the node's Kind:
//
//	KindDirectory  ops
//	KindFile       fileOps, payload is driver data
//	KindSymlink    payload is the canonical target string
//	KindMount      payload is the mounted root *Node
type Node struct {
	name    string
	mode    Mode
	ino     uint64
	size    atomic.Int64
	ops     NodeOps
	fileOps FileOps
	payload any

	mu       sync.RWMutex // protects children
	children []*Node      // in creation order
}

// NewNode returns an unlinked node. The driver creating it is responsible for
// making it reachable from its parent.
func NewNode(name string, mode Mode, ops NodeOps, fops FileOps, payload any) *Node {
	return &Node{
		name:    name,
		mode:    mode,
		ino:     lastIno.Add(1),
		ops:     ops,
		fileOps: fops,
		payload: payload,
	}
}

func (n *Node) Name() string { return n.name }
func (n *Node) Mode() Mode { return n.mode }
func (n *Node) Kind() Kind { return n.mode.Kind() }
func (n *Node) IsDir() bool { return n.mode.IsDir() }
func (n *Node) Ino() uint64 { return n.ino }
func (n *Node) Ops() NodeOps { return n.ops }
func (n *Node) FileOps() FileOps { return n.fileOps }
func (n *Node) Payload() any { return n.payload }
func (n *Node) Size() int64 { return n.size.Load() }
func (n *Node) SetSize(size int64) { n.size.Store(size) }

// SymlinkTarget returns the stored target of a symlink node.
func (n *Node) SymlinkTarget() (string, bool) {
	if n.Kind() != KindSymlink {
		return "", false
	}
	target, ok := n.payload.(string)
	return target, ok
}

// MountedRoot returns the root node a mount stub redirects to.
func (n *Node) MountedRoot() (*Node, bool) {
	if n.Kind() != KindMount {
		return nil, false
	}
	root, ok := n.payload.(*Node)
	return root, ok && root != nil
}

// AddChild appends child to the node's ordered child list.
func (n *Node) AddChild(child *Node) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.children = append(n.children, child)
}

// Child returns the tracked child called name.
func (n *Node) Child(name string) (*Node, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	for _, c := range n.children {
		if c.name == name {
			return c, true
		}
	}
	return nil, false
}

// Children returns a snapshot of the tracked children in creation order.
func (n *Node) Children() []*Node {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]*Node, len(n.children))
	copy(out, n.children)
	return out
}

// listChildren asks the driver first and falls back to the tracked list.
func listChildren(n *Node) []*Node {
	if root, ok := n.MountedRoot(); ok {
		n = root
	}
	if l, ok := n.ops.(Lister); ok {
		return l.List(n)
	}
	return n.Children()
}
