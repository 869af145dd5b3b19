// Package bridge boots a QuickJS runtime instance and connects it to a fixed
// set of host capability modules across two execution contexts: a native
// queue running module methods and a script queue owning the VM. Calls
// crossing the boundary are dispatched on the correct queue, in order, with
// neither side outliving the other.
package bridge

import "log"

// platformName is injected into the settings of every instance.
const platformName = "windesktop"

// InstanceHandle is the opaque caller-facing result of GetInstance. The
// handle is always non-nil; when construction failed its instance is nil and
// Release is a no-op.
type InstanceHandle struct {
	inst *Instance
}

// Instance returns the live instance, or nil if construction failed.
func (h *InstanceHandle) Instance() *Instance { return h.inst }

// Valid reports whether the handle wraps a live instance.
func (h *InstanceHandle) Valid() bool { return h.inst != nil }

// Release tears the instance down, quiescing both queues. Idempotent.
func (h *InstanceHandle) Release() {
	if h.inst != nil {
		h.inst.Close()
	}
}

// GetInstance boots a bridged runtime: it allocates the two queues,
// constructs the runtime holder bound to the script queue, injects holder
// and platform name into settings, builds the module table (built-ins plus
// extras, extras on the native queue), constructs the instance, and triggers
// asynchronous load of bundleFile. It returns immediately; load completion
// is observable only through the instance.
//
// Non-throwing boundary: GetInstance never panics outward and always returns
// a non-nil handle. Construction failures produce an invalid handle and a
// process-visible diagnostic. After return the queues and settings belong
// exclusively to the instance.
func GetInstance(bundleFile string, extraModules []ExtraModule, settings *DevSettings) (handle *InstanceHandle) {
	handle = &InstanceHandle{}
	defer func() {
		if r := recover(); r != nil {
			log.Printf("bridge: GetInstance: %v", r)
			handle.inst = nil
		}
	}()

	if settings == nil {
		log.Printf("bridge: GetInstance: nil settings, using defaults")
		settings = &DevSettings{}
	}

	nativeQueue := NewQueue("native")
	scriptQueue := NewQueue("script")

	settings.RuntimeHolder = newRuntimeHolder(settings, scriptQueue)
	settings.PlatformName = platformName

	sink := &eventSink{}
	table := buildModuleTable(builtinModules(nativeQueue, settings, sink), extraModules, nativeQueue)

	inst, err := newInstance("", table, nil, NoopInstanceCallback{}, scriptQueue, nativeQueue, settings)
	if err != nil {
		log.Printf("bridge: GetInstance: %v", err)
		scriptQueue.Post(func() { settings.RuntimeHolder.release() })
		scriptQueue.Shutdown()
		nativeQueue.Shutdown()
		return handle
	}
	sink.attach(inst.emitEvent)

	inst.LoadBundle(bundleFile)

	handle.inst = inst
	return handle
}
