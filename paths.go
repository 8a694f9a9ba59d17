package hotlib

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
)

// ResolveDir locates dir. An existing path is returned as given. A relative
// path that does not exist is searched for by walking upward from the working
// directory, joining every ancestor with dir, so the host may be started from
// any subdirectory of a project tree. Fails with ErrNotFound when no ancestor
// matches.
func ResolveDir(dir string) (string, error) {
	if exists(dir) {
		return dir, nil
	}
	if !filepath.IsAbs(dir) {
		if cwd, err := os.Getwd(); err == nil {
			for p := cwd; ; {
				if c := filepath.Join(p, dir); exists(c) {
					return c, nil
				}
				parent := filepath.Dir(p)
				if parent == p {
					break
				}
				p = parent
			}
		}
	}
	return "", fmt.Errorf("%w: %s", ErrNotFound, dir)
}

func exists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}

// platformAffix is the dynamic library file prefix and extension of the
// current platform.
func platformAffix() (prefix, ext string) {
	switch runtime.GOOS {
	case "windows":
		return "", ".dll"
	case "darwin":
		return "lib", ".dylib"
	default:
		return "lib", ".so"
	}
}

// libraryPaths computes the watched build output file and the private copy
// that is actually opened. The watched file carries the platform prefix and
// extension. The loaded file name comes from template with {lib_name},
// {load_counter} and {pid} substituted, or defaults to libName-hot-counter;
// its extension is always the platform one.
func libraryPaths(libDir, libName string, loadCounter uint64, template string) (watched, loaded string) {
	prefix, ext := platformAffix()
	watched = filepath.Join(libDir, prefix+libName+ext)
	var name string
	if template != "" {
		name = strings.NewReplacer(
			"{lib_name}", libName,
			"{load_counter}", strconv.FormatUint(loadCounter, 10),
			"{pid}", strconv.Itoa(os.Getpid()),
		).Replace(template)
	} else {
		name = fmt.Sprintf("%s-hot-%d", libName, loadCounter)
	}
	loaded = filepath.Join(libDir, name+ext)
	return
}
