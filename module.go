package bridge

// Method is a single native capability invokable from script code. Arguments
// arrive as the decoded JSON argument list of the script-side call; the
// return value is re-encoded to JSON before delivery back to the script
// context. Methods run on their module's assigned queue.
type Method func(args []any) (any, error)

// Module is a host capability object exposed to script code. Anything with a
// name-addressable method surface qualifies; the bridge treats methods
// opaquely and only routes calls to them.
type Module interface {
	Methods() map[string]Method
}

// Provider is a zero-argument factory producing a Module. Providers run
// synchronously during instance construction, on the constructing context;
// the produced module's methods run later on the module's assigned queue.
type Provider func() Module

// ExtraModule is a caller-supplied (name, provider) pair appended to the
// built-in module set by GetInstance.
type ExtraModule struct {
	Name     string
	Provider Provider
}

// ModuleDescriptor names a module, how to construct it, and the queue its
// methods must execute on.
type ModuleDescriptor struct {
	Name     string
	Provider Provider
	Queue    *Queue
}

// buildModuleTable merges the built-in descriptors with caller extras into a
// single ordered table. Built-ins keep their originally assigned queues;
// every extra is bound to extrasQueue. Output order is builtins then extras.
//
// Name collisions are resolved last-wins: consumers that index the table by
// name (see Instance) observe the latest descriptor with a given name, so an
// extra can deliberately shadow a built-in.
func buildModuleTable(builtins []ModuleDescriptor, extras []ExtraModule, extrasQueue *Queue) []ModuleDescriptor {
	table := make([]ModuleDescriptor, 0, len(builtins)+len(extras))
	table = append(table, builtins...)
	for _, ex := range extras {
		table = append(table, ModuleDescriptor{
			Name:     ex.Name,
			Provider: ex.Provider,
			Queue:    extrasQueue,
		})
	}
	return table
}

// Built-in module names, in table order. The three test modules are required
// by integration bundles and are stubs outside a full host application.
const (
	ModuleStorage    = "AsyncLocalStorage"
	ModuleWebSocket  = "WebSocketModule"
	ModuleNetworking = "Networking"
	ModuleTiming     = "Timing"
	ModuleAppState   = "AppState"
	ModuleUIManager  = "UIManager"
	ModuleDeviceInfo = "DeviceInfo"
)

// builtinModules returns the fixed built-in descriptor set, every entry bound
// to the native queue. The sink fans module events (socket messages, HTTP
// responses, timer fires) into the script context once an instance attaches.
func builtinModules(nativeQueue *Queue, settings *DevSettings, sink *eventSink) []ModuleDescriptor {
	dataDir := settings.DataDir
	return []ModuleDescriptor{
		{ModuleStorage, func() Module { return newStorageModule(dataDir) }, nativeQueue},
		{ModuleWebSocket, func() Module { return newWebSocketModule(sink) }, nativeQueue},
		{ModuleNetworking, func() Module { return newNetworkingModule(sink) }, nativeQueue},
		{ModuleTiming, func() Module { return newTimingModule(sink) }, nativeQueue},
		{ModuleAppState, func() Module { return newAppStateModule() }, nativeQueue},
		{ModuleUIManager, func() Module { return newUIManagerModule() }, nativeQueue},
		{ModuleDeviceInfo, func() Module { return newDeviceInfoModule() }, nativeQueue},
	}
}
