package vfs

import (
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/fatih/color"
)

var (
	dirColor   = color.New(color.FgBlue, color.Bold)
	linkColor  = color.New(color.FgCyan)
	mountColor = color.New(color.FgMagenta, color.Bold)
)

// Tree writes an indented dump of the namespace, descending into mounts.
// Only meant for debugging.
func (v *VFS) Tree(w io.Writer) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.root == nil {
		return fmt.Errorf("%w: root filesystem not mounted", EFAULT)
	}
	return v.printTree(w, v.root, Separator, 0)
}

func (v *VFS) printTree(w io.Writer, n *Node, p string, level int) error {
	indent := strings.Repeat("  ", level)
	var line string
	switch n.Kind() {
	case KindDirectory:
		line = dirColor.Sprint(n.name)
	case KindSymlink:
		target, _ := n.SymlinkTarget()
		line = linkColor.Sprint(n.name) + " -> " + target
	case KindMount:
		line = mountColor.Sprint(n.name)
		if m, ok := v.mounts.Get(p); ok {
			line += fmt.Sprintf(" [%s %s]", m.Type, m.Device)
		}
	default:
		line = fmt.Sprintf("%s (%d)", n.name, n.Size())
	}
	if _, err := fmt.Fprintf(w, "%s%s\n", indent, line); err != nil {
		return err
	}

	if !n.IsDir() {
		return nil
	}
	for _, ch := range listChildren(n) {
		if err := v.printTree(w, ch, path.Join(p, ch.name), level+1); err != nil {
			return err
		}
	}
	return nil
}
