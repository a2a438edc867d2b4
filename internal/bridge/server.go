package bridge

import (
	"github.com/brettbedarf/kvfs/config"
	"github.com/brettbedarf/kvfs/internal/process"
	"github.com/brettbedarf/kvfs/internal/util"
	"github.com/brettbedarf/kvfs/internal/vfs"
	"github.com/hanwen/go-fuse/v2/fuse"
)

// Server wraps the underlying fuse.Server together with the process its
// requests run as.
type Server struct {
	server *fuse.Server
	procs  *process.Table
	proc   *process.Process
}

// Mount mounts the namespace of v at mountPoint according to cfg. Requests
// are executed by a new process of procs whose descriptor table holds
// cfg.MaxHandles slots, one per file the host keeps open. Returns a Server
// you can Serve() and Unmount().
func Mount(v *vfs.VFS, procs *process.Table, mountPoint string, cfg *config.Config) (*Server, error) {
	logger := util.GetLogger("Fuse.Mount")

	opts := cfg.MountOptions
	if opts.FsName == "" {
		opts.FsName = config.DefaultFsName
	}
	if opts.Name == "" {
		opts.Name = config.DefaultName
	}
	if opts.MaxHandles <= 0 {
		opts.MaxHandles = config.DefaultMaxHandles
	}

	proc := procs.SpawnWithFiles("fuse", opts.MaxHandles)
	raw := NewFuseRaw(v, proc)
	srv, err := fuse.NewServer(raw, mountPoint, &fuse.MountOptions{
		Name:               opts.Name,
		FsName:             opts.FsName,
		Debug:              opts.Debug || cfg.LogLvl == util.TraceLevel,
		Logger:             util.NewLogLogger("FuseServer", util.DebugLevel),
		DisableReadDirPlus: true,
	})
	if err != nil {
		procs.Exit(proc) // nolint:errcheck
		return nil, err
	}
	logger.Info().Str("mountpoint", mountPoint).Int("pid", proc.PID()).Msg("FUSE server created")
	return &Server{server: srv, procs: procs, proc: proc}, nil
}

// Serve starts serving and waits until the filesystem is mounted.
func (s *Server) Serve() error {
	go s.server.Serve()
	return s.server.WaitMount()
}

// Wait blocks until the filesystem is unmounted.
func (s *Server) Wait() {
	s.server.Wait()
}

// Unmount cleanly unmounts the filesystem and closes every descriptor the
// bridge still holds.
func (s *Server) Unmount() error {
	if err := s.server.Unmount(); err != nil {
		return err
	}
	return s.procs.Exit(s.proc)
}
