package config

import "time"

// Model is the unified, format-agnostic representation of the manifests.
type Model struct {
	Storage   *Storage
	Executor  *Executor
	Remotes   []*Remote
	Federated *Federated
	DevServer *DevServer
}

// Storage selects where the script cache is persisted.
type Storage struct {
	// Kind is "memory" or "file".
	Kind string
	// Dir holds one file per key when Kind is "file".
	Dir string
	// Namespace selects the cache key, "release" or "debug".
	Namespace string
}

// Executor configures the native executor.
type Executor struct {
	Root          string
	AssetsDir     string
	PublicKeyFile string
}

// Remote is a static resolver: scripts matching Name (a glob) and, when set,
// Caller resolve to the given locator.
type Remote struct {
	Name       string
	Caller     string
	Priority   int
	URL        string
	Method     string
	Query      string
	Headers    map[string]string
	Body       *string
	Timeout    time.Duration
	Retry      int
	RetryDelay time.Duration
	Cache      *bool
	Absolute   bool
	Verify     string
	Policy     *Policy
}

// Policy is an update-policy expression.
type Policy struct {
	Engine     string
	Expression string
}

// Federated configures the Module Federation resolver.
type Federated struct {
	Priority   int
	Containers map[string]string
	Chunks     map[string]string
	ChunkExt   string
	Headers    map[string]string
}

// DevServer is the development server to subscribe to.
type DevServer struct {
	URL       string
	Namespace string
}
