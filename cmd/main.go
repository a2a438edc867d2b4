package main

import (
	"flag"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"github.com/brettbedarf/kvfs"
	"github.com/brettbedarf/kvfs/config"
	"github.com/brettbedarf/kvfs/internal/boot"
	"github.com/brettbedarf/kvfs/internal/bridge"
	"github.com/brettbedarf/kvfs/internal/util"
)

const usage = `usage: kvfs [flags] <command> [args]

commands:
  tree              print the namespace after boot
  ls <path>         list a directory
  cat <path>...     print files
  stat <path>       print the stat record of path
  serve <mnt>       expose the namespace on the host through FUSE; host open
                    files are capped by max_handles (default 1024)
`

func main() {
	var (
		configPath string
		verbose    int
		umount     bool
		catLimit   int64
	)
	flag.StringVar(&configPath, "config", "", "Path to a YAML or JSON config file")
	flag.StringVar(&configPath, "c", "", "--config (shorthand)")
	flag.BoolVar(&umount, "umount", false,
		"Unmount the fs first if needed before mounting again. Useful for debuggers that don't exit properly.")
	flag.BoolVar(&umount, "u", false, "--umount (shorthand)")
	flag.IntVar(&verbose, "verbose", 0, "Log verbosity level between 1 (error) and 5 (trace). Default is 3 (info).")
	flag.IntVar(&verbose, "v", 0, "--verbose (shorthand)")
	flag.Int64Var(&catLimit, "limit", 1<<20, "Maximum bytes printed per file by cat")
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	cfg := config.NewDefaultConfig()
	if configPath != "" {
		var err error
		if cfg, err = config.NewConfigFromFile(configPath); err != nil {
			fmt.Fprintf(os.Stderr, "load config %s: %v\n", configPath, err)
			os.Exit(1)
		}
	}
	if err := cfg.MergeEnv(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if verbose != 0 {
		cfg.Merge(&config.ConfigOverride{LogLvl: &verbose})
	}

	util.InitializeLogger(cfg.LogLvl, cfg.LogFile)
	logger := util.GetLogger("main")

	cmd := flag.Arg(0)
	if cmd == "" {
		flag.Usage()
		os.Exit(2)
	}

	k, err := kvfs.New(cfg, kvfs.Console{Screen: os.Stdout, Serial: os.Stderr})
	if err != nil {
		logger.Fatal().Err(err).Msg("Boot failed")
	}
	defer func() {
		if err := k.Shutdown(); err != nil {
			logger.Error().Err(err).Msg("Shutdown failed")
		}
	}()

	if err := run(k, cmd, flag.Args()[1:], catLimit, umount); err != nil {
		logger.Error().Err(err).Str("command", cmd).Msg("Command failed")
		k.Shutdown() // nolint:errcheck
		os.Exit(1)
	}
}

func run(k *boot.Kernel, cmd string, args []string, catLimit int64, umount bool) error {
	switch cmd {
	case "tree":
		return k.VFS.Tree(os.Stdout)
	case "ls":
		return ls(k, argOr(args, "/"))
	case "cat":
		for _, path := range args {
			data, err := k.ReadFile(path, catLimit)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			os.Stdout.Write(data) // nolint:errcheck
		}
		return nil
	case "stat":
		st, err := k.VFS.Stat(k.Init, argOr(args, "/"))
		if err != nil {
			return err
		}
		fmt.Printf("ino=%d mode=%s size=%d blksize=%d blocks=%d\n",
			st.Ino, st.Mode, st.Size, st.BlockSize, st.Blocks)
		return nil
	case "serve":
		return serve(k, argOr(args, ""), umount)
	default:
		flag.Usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func argOr(args []string, def string) string {
	if len(args) == 0 {
		return def
	}
	return args[0]
}

func ls(k *boot.Kernel, path string) error {
	entries, err := k.VFS.ReadDir(k.Init, path)
	if err != nil {
		return err
	}
	for _, e := range entries {
		fmt.Printf("%-14s %6d %s\n", e.Mode, e.Ino, e.Name)
	}
	return nil
}

func serve(k *boot.Kernel, mnt string, umount bool) error {
	logger := util.GetLogger("main")

	if mnt == "" {
		return fmt.Errorf("mount point not specified; it must be passed as the argument")
	}
	// Try unmount if requested
	if umount {
		cmd := exec.Command("fusermount", "-u", mnt)
		// we ignore error here if not already mounted
		cmd.Run() // nolint:errcheck
	}

	srv, err := bridge.Mount(k.VFS, k.Procs, mnt, k.Config())
	if err != nil {
		return err
	}
	if err := srv.Serve(); err != nil {
		return err
	}

	// Setup signal handling for graceful shutdown
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	logger.Info().Str("mountpoint", mnt).Msg("Filesystem mounted successfully")

	sig := <-signalChan
	logger.Info().Str("signal", sig.String()).Msg("Received signal, unmounting filesystem")

	if err := srv.Unmount(); err != nil {
		return err
	}
	logger.Info().Msg("Filesystem unmounted successfully")
	return nil
}
