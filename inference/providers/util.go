package providers

import (
	"os"
	"runtime"
)

// LibraryPathEnv overrides the shared library location.
const LibraryPathEnv = "ONNXRUNTIME_LIB"

// GetSharedLibPath returns the path to the shared library for the current platform.
//
// The ONNXRUNTIME_LIB environment variable takes precedence over the
// platform default.
//
// Returns:
//   - string: The path to the shared library, or "" when the platform has no default.
func GetSharedLibPath() string {
	if p := os.Getenv(LibraryPathEnv); p != "" {
		return p
	}
	switch runtime.GOOS {
	case "windows":
		return "./third_party/onnxruntime.dll"
	case "darwin":
		return "./third_party/libonnxruntime.dylib"
	case "linux":
		if runtime.GOARCH == "arm64" {
			return "./third_party/onnxruntime_arm64.so"
		}
		return "./third_party/onnxruntime.so"
	default:
		return ""
	}
}
