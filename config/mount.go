package config

// MountOptions holds high-level settings for exposing the namespace over FUSE.
// No go-fuse types are exposed here.
type MountOptions struct {
	Debug      bool   // fuse debug logs
	FsName     string // mount's FsName
	Name       string // mount's Name
	MaxHandles int    // Descriptor slots of the bridge process; every open host file holds one (Default 1024)
}

// MountSpec attaches a filesystem instance during boot.
type MountSpec struct {
	Path   string `yaml:"path" json:"path"`
	Type   string `yaml:"type" json:"type"`
	Device string `yaml:"device,omitempty" json:"device,omitempty"` // driver specific, e.g. a database file
}

// SymlinkSpec creates a symlink during boot.
type SymlinkSpec struct {
	Path   string `yaml:"path" json:"path"`
	Target string `yaml:"target" json:"target"`
}
