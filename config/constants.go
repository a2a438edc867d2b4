package config

import "github.com/brettbedarf/kvfs/internal/util"

// CLI verbosity levels, 1 (error) through 5 (trace).
const (
	ErrorVerbose = iota + 1
	WarnVerbose
	InfoVerbose
	DebugVerbose
	TraceVerbose
)

// Default configuration constants. See [Config] and [Limits] for field descriptions.
const (
	DefaultLogLvl = util.InfoLevel

	// Registry slots for filesystem types
	DefaultMaxFSTypes = 10
	// Longest canonical path including its terminator
	DefaultMaxPathLength = 256
	// Deepest canonical path in segments
	DefaultMaxPathDepth = 32
	// Descriptor slots per process
	DefaultMaxOpenFiles = 32
	// Descriptor slots of the FUSE bridge process
	DefaultMaxHandles = 1024
	// Block size reported by stat
	DefaultBlockSize = 512

	DefaultRootFS  = "tempfs"
	DefaultDevDir  = "/dev"
	DefaultConsole = "/dev/screen"

	DefaultFsName = "kvfs"
	DefaultName   = "kvfs"
)

// DefaultDirs are created right after the root mount.
var DefaultDirs = []string{"/dev", "/mount"}

// DefaultMounts are attached after the devices are installed.
var DefaultMounts = []MountSpec{
	{Path: "/proc", Type: "procfs"},
}
