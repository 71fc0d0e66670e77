package providers

import (
	"os"
	"sync"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
)

// ErrNotInitialized is returned when a session is requested before Initialize.
var ErrNotInitialized = errors.New("onnxruntime environment not initialized")

// The ONNX Runtime environment is process-wide: it is created once by
// Initialize before the first session and destroyed once by Shutdown after
// the last session is closed.
var (
	envMu          sync.Mutex
	envInitialized bool
)

// Initialize loads the ONNX Runtime shared library and creates the
// process-wide environment. Calling it again after a successful call is a
// no-op; a failed call may be retried.
//
// Arguments:
//   - cfg: The provider configuration; LibraryPath overrides GetSharedLibPath.
//
// Returns:
//   - error: An error if the library is missing or fails to load.
func Initialize(cfg Config) error {
	envMu.Lock()
	defer envMu.Unlock()

	if envInitialized {
		return nil
	}

	libPath := cfg.LibraryPath
	if libPath == "" {
		libPath = GetSharedLibPath()
	}
	if libPath == "" {
		return errors.New("no ONNX Runtime library path for this platform; set " + LibraryPathEnv)
	}
	// Check if the shared library exists before trying to use it.
	if _, err := os.Stat(libPath); err != nil {
		return errors.Wrapf(err, "ONNX Runtime library not found at %s", libPath)
	}

	// Point ONNX Runtime to the exact shared library path (overrides default search).
	ort.SetSharedLibraryPath(libPath)

	if err := ort.InitializeEnvironment(); err != nil {
		return errors.Wrap(err, "error initializing ORT environment")
	}
	envInitialized = true
	return nil
}

// Initialized reports whether the environment is ready for sessions.
func Initialized() bool {
	envMu.Lock()
	defer envMu.Unlock()
	return envInitialized
}

// Shutdown destroys the process-wide environment. Every session must be
// closed first. Calling Shutdown without a prior Initialize is a no-op.
func Shutdown() error {
	envMu.Lock()
	defer envMu.Unlock()

	if !envInitialized {
		return nil
	}
	envInitialized = false
	if err := ort.DestroyEnvironment(); err != nil {
		return errors.Wrap(err, "error destroying ORT environment")
	}
	return nil
}
