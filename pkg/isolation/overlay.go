package isolation

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// OverlayDirs names the four directories an overlayfs mount needs: the
// shared, read-only lower (the workspace as it existed before this
// exec), a private upper and work pair unique to this exec, and the
// merged view processes actually see.
type OverlayDirs struct {
	Lower  string
	Upper  string
	Work   string
	Merged string
}

// PrepareOverlayDirs creates a fresh upper/work/merged triple under
// workspace/.cave-overlay/<execID>, layered over workspace itself as the
// lower. Each exec gets its own throwaway upper so writes never leak
// into the next exec's view of the workspace.
func PrepareOverlayDirs(workspace, execID string) (*OverlayDirs, error) {
	base := filepath.Join(workspace, ".cave-overlay", execID)
	dirs := &OverlayDirs{
		Lower:  workspace,
		Upper:  filepath.Join(base, "upper"),
		Work:   filepath.Join(base, "work"),
		Merged: filepath.Join(base, "merged"),
	}

	for _, dir := range []string{dirs.Upper, dirs.Work, dirs.Merged} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("isolation: create overlay dir %s: %w", dir, err)
		}
	}
	return dirs, nil
}

// MountOverlay mounts dirs.Merged as an overlayfs view of Lower with
// Upper/Work backing it. Requires CAP_SYS_ADMIN.
func MountOverlay(dirs *OverlayDirs) error {
	opts := fmt.Sprintf("lowerdir=%s,upperdir=%s,workdir=%s", dirs.Lower, dirs.Upper, dirs.Work)
	if err := unix.Mount("overlay", dirs.Merged, "overlay", 0, opts); err != nil {
		return fmt.Errorf("isolation: mount overlay at %s: %w", dirs.Merged, err)
	}
	return nil
}

// UnmountOverlay detaches dirs.Merged. ErrNoent/EINVAL (already gone) are
// treated as success.
func UnmountOverlay(dirs *OverlayDirs) error {
	if err := unix.Unmount(dirs.Merged, unix.MNT_DETACH); err != nil {
		if err == unix.EINVAL || err == unix.ENOENT {
			return nil
		}
		return fmt.Errorf("isolation: unmount overlay at %s: %w", dirs.Merged, err)
	}
	return nil
}

// CleanupOverlayDirs removes workspace/.cave-overlay, the parent of this
// exec's upper/work/merged directories, so every per-exec tree under it
// goes too, not only the one named by dirs.
// UnmountOverlay must be called first if the overlay was mounted.
func CleanupOverlayDirs(dirs *OverlayDirs) error {
	base := filepath.Dir(filepath.Dir(dirs.Upper))
	if err := os.RemoveAll(base); err != nil {
		return fmt.Errorf("isolation: remove overlay dirs under %s: %w", base, err)
	}
	return nil
}
