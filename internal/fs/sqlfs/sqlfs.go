// Package sqlfs persists a directory tree in a SQLite database. The device
// passed to mount is the database file; an empty device selects a private
// in-memory database.
//
// Lookups go through three layers:
//
//	an in-memory B-tree mapping "parent/name" keys to entry ids
//	a node cache keeping one *vfs.Node per entry id
//	the kvfs_entries table holding modes, symlink targets and file content
//
// Mount stubs and device nodes carry in-memory state that cannot be stored,
// so they are kept outside the database for the lifetime of the instance.
package sqlfs

import (
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/brettbedarf/kvfs/internal/util"
	"github.com/brettbedarf/kvfs/internal/vfs"
	"github.com/puzpuzpuz/xsync/v4"
	"github.com/tidwall/btree"
	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

const (
	// Name is the filesystem type name sqlfs registers under.
	Name = "sqlfs"
	// MemoryDevice is the device used when none is given.
	MemoryDevice = ":memory:"
)

// rootID is the parent id of top-level entries. It never appears as a row.
const rootID entryID = 0

type entryID int64

// FS is the sqlfs filesystem type.
type FS struct{}

// New returns the sqlfs filesystem type.
func New() *FS {
	return &FS{}
}

func (*FS) Name() string { return Name }

// ReadSuper opens the database at device.
func (*FS) ReadSuper(device string) (vfs.Superblock, error) {
	return Open(device)
}

// Superblock is one open database.
type Superblock struct {
	db    *sql.DB
	ops   *dirOps
	files *fileOps

	mu   sync.RWMutex // protects keys
	keys *btree.Map[string, entryID]

	nodes     *xsync.Map[entryID, *vfs.Node]
	transient *xsync.Map[string, *vfs.Node]
}

// Open opens or creates the database at device and loads its key index.
func Open(device string) (*Superblock, error) {
	logger := util.GetLogger("SqlFS.Open")

	if device == "" {
		device = MemoryDevice
	}
	db, err := sql.Open("sqlite", device)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", vfs.EIO, err)
	}
	// every connection to :memory: would see its own database
	db.SetMaxOpenConns(1)

	sb := &Superblock{
		db:        db,
		keys:      btree.NewMap[string, entryID](0),
		nodes:     xsync.NewMap[entryID, *vfs.Node](),
		transient: xsync.NewMap[string, *vfs.Node](),
	}
	sb.ops = &dirOps{sb: sb}
	sb.files = &fileOps{sb: sb}

	if err := sb.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %w", vfs.EIO, err)
	}
	if err := sb.loadKeys(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %w", vfs.EIO, err)
	}
	logger.Debug().Str("device", device).Int("entries", sb.keys.Len()).Msg("Database opened")
	return sb, nil
}

func (sb *Superblock) initSchema() error {
	if _, err := sb.db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		return err
	}
	schema := `
	CREATE TABLE IF NOT EXISTS kvfs_entries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		parent INTEGER NOT NULL,
		name TEXT NOT NULL,
		mode INTEGER NOT NULL,
		target TEXT,
		content BLOB NOT NULL DEFAULT x'',
		UNIQUE (parent, name)
	);
	`
	_, err := sb.db.Exec(schema)
	return err
}

func (sb *Superblock) loadKeys() error {
	rows, err := sb.db.Query("SELECT id, parent, name FROM kvfs_entries")
	if err != nil {
		return err
	}
	defer rows.Close()

	sb.mu.Lock()
	defer sb.mu.Unlock()
	for rows.Next() {
		var id, parent entryID
		var name string
		if err := rows.Scan(&id, &parent, &name); err != nil {
			return err
		}
		sb.keys.Set(entryKey(parent, name), id)
	}
	return rows.Err()
}

// Close closes the database and drops the in-memory layers.
func (sb *Superblock) Close() error {
	sb.mu.Lock()
	sb.keys.Clear()
	sb.mu.Unlock()
	sb.nodes.Clear()
	sb.transient.Clear()
	return sb.db.Close()
}

// Spawn creates the instance root.
func (sb *Superblock) Spawn(name string, mode vfs.Mode) (*vfs.Node, error) {
	root := vfs.NewNode(name, mode, sb.ops, nil, rootID)
	sb.nodes.Store(rootID, root)
	return root, nil
}

// entryKey orders entries by parent, then name. The parent id is zero padded
// so the children of one directory form a contiguous key range.
func entryKey(parent entryID, name string) string {
	return keyPrefix(parent) + name
}

func keyPrefix(parent entryID) string {
	return fmt.Sprintf("%020d/", parent)
}

func idOf(n *vfs.Node) (entryID, bool) {
	id, ok := n.Payload().(entryID)
	return id, ok
}

// node returns the cached node for id, loading it from the database on the
// first access.
func (sb *Superblock) node(id entryID, name string) (*vfs.Node, error) {
	var loadErr error
	n, _ := sb.nodes.LoadOrCompute(id, func() (*vfs.Node, bool) {
		n, err := sb.loadNode(id, name)
		if err != nil {
			loadErr = err
			return nil, true
		}
		return n, false
	})
	if loadErr != nil {
		return nil, loadErr
	}
	return n, nil
}

func (sb *Superblock) loadNode(id entryID, name string) (*vfs.Node, error) {
	var mode vfs.Mode
	var target sql.NullString
	var size int64
	err := sb.db.QueryRow(
		"SELECT mode, target, length(content) FROM kvfs_entries WHERE id = ?", id,
	).Scan(&mode, &target, &size)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: entry %d", vfs.ENOENT, id)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", vfs.EIO, err)
	}

	switch mode.Kind() {
	case vfs.KindDirectory:
		return vfs.NewNode(name, mode, sb.ops, nil, id), nil
	case vfs.KindSymlink:
		return vfs.NewNode(name, mode, nil, nil, target.String), nil
	default:
		n := vfs.NewNode(name, mode, nil, sb.files, id)
		n.SetSize(size)
		return n, nil
	}
}

type dirOps struct {
	sb *Superblock
}

func (o *dirOps) Lookup(parent *vfs.Node, name string) *vfs.Node {
	logger := util.GetLogger("SqlFS.Lookup")

	pid, ok := idOf(parent)
	if !ok {
		return nil
	}
	key := entryKey(pid, name)
	if n, ok := o.sb.transient.Load(key); ok {
		return n
	}

	o.sb.mu.RLock()
	id, ok := o.sb.keys.Get(key)
	o.sb.mu.RUnlock()
	if !ok {
		return nil
	}
	n, err := o.sb.node(id, name)
	if err != nil {
		logger.Error().Err(err).Str("name", name).Msg("Failed to load entry")
		return nil
	}
	return n
}

// CreateNode stores directories, symlinks and plain files in the database.
// Mount stubs and files with driver supplied operations stay in memory.
func (o *dirOps) CreateNode(parent *vfs.Node, name string, mode vfs.Mode, fops vfs.FileOps, payload any) (*vfs.Node, error) {
	logger := util.GetLogger("SqlFS.CreateNode")

	pid, ok := idOf(parent)
	if !ok {
		return nil, fmt.Errorf("%w: %q is not a sqlfs directory", vfs.EIO, parent.Name())
	}
	key := entryKey(pid, name)

	kind := mode.Kind()
	if kind == vfs.KindMount || (kind == vfs.KindFile && fops != nil) {
		n := vfs.NewNode(name, mode, nil, fops, payload)
		if _, loaded := o.sb.transient.LoadOrStore(key, n); loaded {
			return nil, fmt.Errorf("%w: %s", vfs.EEXIST, name)
		}
		logger.Debug().Str("name", name).Stringer("kind", kind).Msg("In-memory node created")
		return n, nil
	}

	var target sql.NullString
	if kind == vfs.KindSymlink {
		s, ok := payload.(string)
		if !ok {
			return nil, fmt.Errorf("%w: symlink %q without target", vfs.EINVAL, name)
		}
		target = sql.NullString{String: s, Valid: true}
	}

	res, err := o.sb.db.Exec(
		"INSERT INTO kvfs_entries (parent, name, mode, target) VALUES (?, ?, ?, ?)",
		pid, name, uint32(mode), target,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: insert %q: %w", vfs.EIO, name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", vfs.EIO, err)
	}

	o.sb.mu.Lock()
	o.sb.keys.Set(key, entryID(id))
	o.sb.mu.Unlock()

	logger.Trace().Str("name", name).Int64("id", id).Msg("Entry stored")
	return o.sb.node(entryID(id), name)
}

// List returns stored entries in name order followed by in-memory ones.
func (o *dirOps) List(dir *vfs.Node) []*vfs.Node {
	logger := util.GetLogger("SqlFS.List")

	pid, ok := idOf(dir)
	if !ok {
		return nil
	}
	prefix := keyPrefix(pid)

	type child struct {
		id   entryID
		name string
	}
	var stored []child
	o.sb.mu.RLock()
	o.sb.keys.Ascend(prefix, func(key string, id entryID) bool {
		if !strings.HasPrefix(key, prefix) {
			return false
		}
		stored = append(stored, child{id, strings.TrimPrefix(key, prefix)})
		return true
	})
	o.sb.mu.RUnlock()

	out := make([]*vfs.Node, 0, len(stored))
	for _, c := range stored {
		n, err := o.sb.node(c.id, c.name)
		if err != nil {
			logger.Error().Err(err).Str("name", c.name).Msg("Failed to load entry")
			continue
		}
		out = append(out, n)
	}

	var mem []*vfs.Node
	o.sb.transient.Range(func(key string, n *vfs.Node) bool {
		if strings.HasPrefix(key, prefix) {
			mem = append(mem, n)
		}
		return true
	})
	sort.Slice(mem, func(i, j int) bool { return mem[i].Name() < mem[j].Name() })
	return append(out, mem...)
}
