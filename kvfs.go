package kvfs

import (
	"github.com/brettbedarf/kvfs/config"
	"github.com/brettbedarf/kvfs/internal/boot"
	"github.com/brettbedarf/kvfs/internal/fs/devfs"
)

// Console is where the screen and serial devices write.
type Console = devfs.Console

// New boots a kernel given your config.
func New(cfg *config.Config, console Console) (*boot.Kernel, error) {
	return boot.NewKernel(cfg, console)
}
