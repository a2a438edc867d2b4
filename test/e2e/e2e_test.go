package e2e

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

var kvfsBin string

func TestMain(m *testing.M) {
	// FUSE is required for every test in this package
	if _, err := os.Stat("/dev/fuse"); err != nil {
		fmt.Println("skipping e2e tests: /dev/fuse not available")
		os.Exit(0)
	}
	if _, err := exec.LookPath("fusermount"); err != nil {
		fmt.Println("skipping e2e tests: fusermount not in PATH")
		os.Exit(0)
	}

	tmpBinDir, err := os.MkdirTemp("", "kvfs-bin")
	if err != nil {
		panic(err)
	}
	kvfsBin = filepath.Join(tmpBinDir, "kvfs")

	_, thisFile, _, ok := runtime.Caller(0)
	if !ok {
		panic("cannot determine current file path")
	}
	projRoot := filepath.Join(filepath.Dir(thisFile), "..", "..")
	src := filepath.Join(projRoot, "cmd", "main.go")

	// Build with debug symbols
	cmd := exec.Command("go", "build", "-o", kvfsBin, "-gcflags=all=-N -l", src)
	if out, err := cmd.CombinedOutput(); err != nil {
		panic(string(out))
	}

	code := m.Run()
	if err := os.RemoveAll(tmpBinDir); err != nil {
		panic(err)
	}
	os.Exit(code)
}

// KvfsInstance is one running "kvfs serve" process.
type KvfsInstance struct {
	cmd      *exec.Cmd
	MountDir string
	stdout   *bytes.Buffer
	stderr   *bytes.Buffer
}

// StartKvfs boots a kernel from the given YAML config and serves it at a
// fresh mount point.
func StartKvfs(t *testing.T, configYAML string) *KvfsInstance {
	t.Helper()

	baseDir := t.TempDir()
	mountDir := filepath.Join(baseDir, "mnt")
	if err := os.MkdirAll(mountDir, 0o755); err != nil {
		t.Fatalf("Failed to create mount dir: %v", err)
	}

	args := []string{"-v", "4"}
	if configYAML != "" {
		configFile := filepath.Join(baseDir, "kvfs.yaml")
		if err := os.WriteFile(configFile, []byte(configYAML), 0o644); err != nil {
			t.Fatalf("Failed to write config file: %v", err)
		}
		args = append(args, "-c", configFile)
	}
	args = append(args, "serve", mountDir)

	cmd := exec.Command(kvfsBin, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Start(); err != nil {
		t.Fatalf("Failed to start kvfs: %v", err)
	}

	instance := &KvfsInstance{cmd: cmd, MountDir: mountDir, stdout: &stdout, stderr: &stderr}
	if err := instance.WaitForMount(15 * time.Second); err != nil {
		instance.Stop()
		_, logs := instance.GetLogs()
		t.Fatalf("kvfs mount failed: %v\n%s", err, logs)
	}
	t.Cleanup(instance.Stop)
	return instance
}

// Stop gracefully stops the instance
func (k *KvfsInstance) Stop() {
	if k.cmd == nil || k.cmd.Process == nil || k.cmd.ProcessState != nil {
		return
	}
	_ = k.cmd.Process.Signal(os.Interrupt) // Process may have already exited

	done := make(chan error, 1)
	go func() {
		done <- k.cmd.Wait()
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		// Force kill if graceful shutdown takes too long
		_ = k.cmd.Process.Kill()
		<-done
		_ = exec.Command("fusermount", "-u", k.MountDir).Run()
	}
}

// WaitForMount waits until the booted namespace is visible at the mount
// point.
func (k *KvfsInstance) WaitForMount(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if files, err := os.ReadDir(k.MountDir); err == nil && len(files) > 0 {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("timeout waiting for kvfs mount to be ready")
}

// GetLogs returns the stdout and stderr of the kvfs process
func (k *KvfsInstance) GetLogs() (stdout, stderr string) {
	return k.stdout.String(), k.stderr.String()
}

func TestE2EDefaultLayout(t *testing.T) {
	kvfs := StartKvfs(t, "")

	entries, err := os.ReadDir(kvfs.MountDir)
	if err != nil {
		t.Fatalf("failed to read mount root: %v", err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	if got := strings.Join(names, ","); got != "dev,mount,proc" {
		t.Fatalf("root mismatch: got %q", got)
	}

	data, err := os.ReadFile(filepath.Join(kvfs.MountDir, "proc", "filesystems"))
	if err != nil {
		t.Fatalf("failed to read /proc/filesystems: %v", err)
	}
	if string(data) != "tempfs\nprocfs\nsqlfs\n" {
		t.Fatalf("filesystems mismatch: got %q", string(data))
	}
}

func TestE2EWriteAndRead(t *testing.T) {
	kvfs := StartKvfs(t, "")

	path := filepath.Join(kvfs.MountDir, "mount", "hello.txt")
	content := "Hello, kvfs!\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read file: %v", err)
	}
	if string(data) != content {
		t.Fatalf("content mismatch:\nexpected: %q\ngot:      %q", content, string(data))
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("failed to stat file: %v", err)
	}
	if info.Size() != int64(len(content)) {
		t.Fatalf("size mismatch: expected %d, got %d", len(content), info.Size())
	}
}

func TestE2EMkdirAndSymlink(t *testing.T) {
	kvfs := StartKvfs(t, "")

	dir := filepath.Join(kvfs.MountDir, "mount", "data")
	if err := os.Mkdir(dir, 0o755); err != nil {
		t.Fatalf("mkdir failed: %v", err)
	}
	if err := os.Mkdir(dir, 0o755); !os.IsExist(err) {
		t.Fatalf("expected EEXIST on second mkdir, got %v", err)
	}

	link := filepath.Join(kvfs.MountDir, "data")
	if err := os.Symlink("/mount/data", link); err != nil {
		t.Fatalf("symlink failed: %v", err)
	}
	target, err := os.Readlink(link)
	if err != nil {
		t.Fatalf("readlink failed: %v", err)
	}
	if target != "/mount/data" {
		t.Fatalf("symlink target mismatch: got %q", target)
	}
}

func TestE2ESqlRoot(t *testing.T) {
	kvfs := StartKvfs(t, "root_fs: sqlfs\n")

	path := filepath.Join(kvfs.MountDir, "mount", "stored.bin")
	payload := make([]byte, 1500)
	for i := range payload {
		payload[i] = byte(i % 256)
	}
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read file: %v", err)
	}
	if !bytes.Equal(data, payload) {
		t.Fatalf("binary content mismatch: got %d bytes", len(data))
	}
}
