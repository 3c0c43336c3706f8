package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

func detArch(system, arch string) (string, error) {
	switch arch {
	case "amd64":
		return fmt.Sprintf("%s-%s", system, "x64"), nil
	case "386":
		return fmt.Sprintf("%s-%s", system, "x86"), nil
	case "arm64":
		return fmt.Sprintf("%s-%s", system, "arm64"), nil
	default:
		return "", fmt.Errorf("architecture %s not supported", arch)
	}
}

// Platform returns e.g. "linux-x64" for the running binary.
func Platform() (string, error) {
	return platformOf(runtime.GOOS, runtime.GOARCH)
}

func platformOf(system, arch string) (string, error) {
	switch system {
	case "windows", "linux", "darwin":
		return detArch(system, arch)
	default:
		return "", fmt.Errorf("operating system %s not supported", system)
	}
}

// sharedLibraryName is the onnxruntime library file name for a platform.
func sharedLibraryName(platform string) string {
	switch {
	case strings.HasPrefix(platform, "windows"):
		return "onnxruntime.dll"
	case strings.HasPrefix(platform, "darwin"):
		return "libonnxruntime.dylib"
	default:
		return "libonnxruntime.so"
	}
}

// FindSharedLibrary locates the onnxruntime shared library. An explicit
// path wins; otherwise the executable directory, the working directory and
// their src/ subdirectories are searched. The error lists every location
// tried.
func FindSharedLibrary(explicit string) (string, error) {
	if explicit != "" {
		if fileExists(explicit) {
			return filepath.Abs(explicit)
		}
		return "", fmt.Errorf("onnxruntime library %q not found", explicit)
	}
	platform, err := Platform()
	if err != nil {
		return "", err
	}
	name := sharedLibraryName(platform)

	var dirs []string
	if exePath, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exePath)
		dirs = append(dirs, exeDir, filepath.Join(exeDir, "src"), filepath.Join(exeDir, "src", platform))
	}
	if cwd, err := os.Getwd(); err == nil {
		dirs = append(dirs, cwd, filepath.Join(cwd, "src"), filepath.Join(cwd, "src", platform))
	}
	return searchLocations(name, dirs)
}

func searchLocations(name string, dirs []string) (string, error) {
	var tried []string
	seen := make(map[string]bool)
	for _, d := range dirs {
		if d == "" || seen[d] {
			continue
		}
		seen[d] = true
		tried = append(tried, d)
		if p := filepath.Join(d, name); fileExists(p) {
			return p, nil
		}
		if m := globFirst(d, name+".*"); m != "" {
			return m, nil
		}
	}
	diag := "Tried locations:\n"
	for _, t := range tried {
		diag += "  - " + t + "\n"
	}
	return "", fmt.Errorf("onnxruntime library %q not found. %s", name, diag)
}

func globFirst(dir, pat string) string {
	ms, err := filepath.Glob(filepath.Join(dir, pat))
	if err != nil || len(ms) == 0 {
		return ""
	}
	for _, m := range ms {
		if fileExists(m) {
			return m
		}
	}
	return ""
}
