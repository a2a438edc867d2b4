// Package boot assembles a running kernel from configuration: filesystem
// types are registered, the root is mounted and the configured layout of
// directories, devices, mounts and symlinks is created.
package boot

import (
	"errors"
	"fmt"
	"io"

	"github.com/brettbedarf/kvfs/config"
	"github.com/brettbedarf/kvfs/internal/fs"
	"github.com/brettbedarf/kvfs/internal/fs/devfs"
	"github.com/brettbedarf/kvfs/internal/loader"
	"github.com/brettbedarf/kvfs/internal/process"
	"github.com/brettbedarf/kvfs/internal/util"
	"github.com/brettbedarf/kvfs/internal/vfs"
)

// Kernel holds the VFS together with the process table it serves.
type Kernel struct {
	VFS    *vfs.VFS
	Procs  *process.Table
	Loader *loader.Loader
	// Init is the kernel's own process. Boot runs on its behalf.
	Init *process.Process

	cfg *config.Config
}

// NewKernel validates cfg and boots a kernel whose output devices write to
// console.
func NewKernel(cfg *config.Config, console devfs.Console) (*Kernel, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	v := vfs.New(cfg)
	procs := process.NewTable(v)
	k := &Kernel{
		VFS:    v,
		Procs:  procs,
		Loader: loader.New(v, cfg.Boot.Console),
		Init:   procs.Spawn("init"),
		cfg:    cfg,
	}
	if err := k.boot(console); err != nil {
		return nil, errors.Join(err, v.Shutdown())
	}
	return k, nil
}

// Config returns the configuration the kernel was booted with.
func (k *Kernel) Config() *config.Config {
	return k.cfg
}

func (k *Kernel) boot(console devfs.Console) error {
	logger := util.GetLogger("Boot")
	b := k.cfg.Boot
	v, c := k.VFS, k.Init

	for _, t := range fs.Builtins(v, k.Procs) {
		if err := v.RegisterFS(t); err != nil {
			return fmt.Errorf("register %s: %w", t.Name(), err)
		}
	}

	if err := v.MountFS(c, vfs.Separator, b.RootFS, ""); err != nil {
		return fmt.Errorf("mount root partition: %w", err)
	}
	logger.Info().Str("type", b.RootFS).Msg("Root partition mounted")

	for _, dir := range b.Dirs {
		if err := v.Mkdir(c, dir); err != nil {
			return fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}

	if b.DevDir != "" {
		if err := devfs.Install(v, c, b.DevDir, devfs.Devices(console)); err != nil {
			return err
		}
	}

	for _, m := range b.Mounts {
		if err := v.MountFS(c, m.Path, m.Type, m.Device); err != nil {
			return fmt.Errorf("mount %s on %s: %w", m.Type, m.Path, err)
		}
	}

	for _, l := range b.Symlinks {
		if err := v.Symlink(c, l.Path, l.Target); err != nil {
			return fmt.Errorf("symlink %s -> %s: %w", l.Path, l.Target, err)
		}
	}

	logger.Info().Int("dirs", len(b.Dirs)).Int("mounts", len(b.Mounts)).
		Int("symlinks", len(b.Symlinks)).Msg("Boot complete")
	return nil
}

// ReadFile reads at most limit bytes of the file at path as the init
// process.
func (k *Kernel) ReadFile(path string, limit int64) ([]byte, error) {
	fd, err := k.VFS.Open(k.Init, path, vfs.ORdOnly)
	if err != nil {
		return nil, err
	}
	data, readErr := io.ReadAll(io.LimitReader(vfs.NewReader(k.VFS, k.Init, fd), limit))
	return data, errors.Join(readErr, k.VFS.Close(k.Init, fd))
}

// WriteFile writes data to the file at path, creating it when missing.
func (k *Kernel) WriteFile(path string, data []byte) error {
	fd, err := k.VFS.Open(k.Init, path, vfs.OWrOnly|vfs.OCreat)
	if err != nil {
		return err
	}
	var writeErr error
	for len(data) > 0 && writeErr == nil {
		var n int
		n, writeErr = k.VFS.Write(k.Init, fd, data)
		if n == 0 && writeErr == nil {
			writeErr = fmt.Errorf("%w: short write on %s", vfs.EIO, path)
		}
		data = data[n:]
	}
	return errors.Join(writeErr, k.VFS.Close(k.Init, fd))
}

// Shutdown exits the init process and releases every mounted instance.
func (k *Kernel) Shutdown() error {
	logger := util.GetLogger("Kernel.Shutdown")
	logger.Info().Msg("Shutting down")

	var errs []error
	for _, p := range k.Procs.List() {
		if err := k.Procs.Exit(p); err != nil {
			errs = append(errs, err)
		}
	}
	errs = append(errs, k.VFS.Shutdown())
	return errors.Join(errs...)
}
