package container

import "context"

// Driver is the uniform operation set every backend (Singularity/Apptainer,
// Docker/Podman, Shifter, containerd-style) implements.
type Driver interface {
	// Name is the backend's identifying name, used for --backend and the
	// registry key.
	Name() string

	// Available reports whether the backend's runtime binary is on PATH
	// and usable.
	Available() bool

	// Execute translates plan into the backend's CLI invocation and spawns
	// it, replacing argv as the command run inside the container,
	// inheriting stdio. It returns the child's exit code.
	Execute(ctx context.Context, plan *ExecPlan, argv []string) (int, error)

	// Exposed reports whether this backend should appear in --help and
	// shell completion. Internal/debug-only backends return false.
	Exposed() bool
}

// Guesser is optionally implemented by a Driver that can claim an image by
// its filename suffix.
type Guesser interface {
	Guess(imagePath string) bool
}
