package bridge

// DevSettings aggregates runtime configuration for one bridge invocation.
// GetInstance injects PlatformName and RuntimeHolder before constructing the
// instance; that injection is the only mutation of caller-supplied settings,
// after which ownership transfers to the instance and the caller must not
// touch the struct again.
type DevSettings struct {
	PlatformName   string // injected by GetInstance ("windesktop")
	BundleRootPath string // directory bundle files are resolved against; "" = as given
	DataDir        string // base directory for the storage module's databases
	MemoryLimitMB  int    // per-VM memory limit; 0 = engine default
	Debug          bool   // verbose load diagnostics

	// RuntimeHolder is injected by GetInstance after the script queue
	// exists; the instance consumes it. Callers leave it nil.
	RuntimeHolder *RuntimeHolder
}
