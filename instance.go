package bridge

import (
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"sync"
)

// FallbackProvider resolves modules absent from the table when script code
// calls into them. GetInstance passes nil: unknown modules reject the call.
type FallbackProvider func(name string) (ModuleDescriptor, bool)

// liveModule pairs a constructed capability object with its assigned queue.
type liveModule struct {
	name  string
	mod   Module
	queue *Queue
}

type closer interface{ Close() error }

// Instance is the live bridge object pairing the script engine with the
// module table and both execution queues. Created by GetInstance (or
// directly by richer hosts), destroyed via Close, which quiesces both queues
// and releases every module capability object.
type Instance struct {
	rootID      string
	holder      *RuntimeHolder
	scriptQueue *Queue
	nativeQueue *Queue
	table       []ModuleDescriptor
	callback    InstanceCallback
	settings    *DevSettings
	fallback    FallbackProvider

	// modules indexes constructed capability objects by name, last table
	// entry winning on collision. Immutable after construction.
	modules map[string]*liveModule

	mu      sync.Mutex
	loadErr error
	loaded  bool

	closeOnce sync.Once
}

// bridgeBootstrapJS installs the script-side half of the bridge: the pending
// native-call registry, the Promise-returning method factory, the completion
// entry point the native side calls back into, the event listener registry,
// and a console that forwards to the host log.
const bridgeBootstrapJS = `
(function() {
	globalThis.__pendingNativeCalls = {};
	globalThis.__nextCallID = 1;
	globalThis.__bridgeListeners = {};
	globalThis.__callables = {};
	globalThis.nativeModules = {};

	globalThis.__mkNativeMethod = function(module, method) {
		return function() {
			var args = Array.prototype.slice.call(arguments);
			var id = globalThis.__nextCallID++;
			return new Promise(function(resolve, reject) {
				globalThis.__pendingNativeCalls[id] = { resolve: resolve, reject: reject };
				__nativeCall(module, method, JSON.stringify(args), id);
			});
		};
	};

	globalThis.__nativeCallComplete = function(id, resultJSON, errMsg) {
		var p = globalThis.__pendingNativeCalls[id];
		if (!p) return;
		delete globalThis.__pendingNativeCalls[id];
		if (errMsg) {
			p.reject(new Error(errMsg));
		} else {
			p.resolve(resultJSON ? JSON.parse(resultJSON) : undefined);
		}
	};

	globalThis.__bridgeDispatchEvent = function(name, payloadJSON) {
		var listeners = globalThis.__bridgeListeners[name];
		if (!listeners) return;
		var payload = payloadJSON ? JSON.parse(payloadJSON) : null;
		for (var i = 0; i < listeners.length; i++) {
			try { listeners[i](payload); } catch (e) {}
		}
	};

	globalThis.addBridgeListener = function(name, fn) {
		var ls = globalThis.__bridgeListeners[name] || [];
		ls.push(fn);
		globalThis.__bridgeListeners[name] = ls;
	};

	globalThis.__registerCallable = function(name, obj) {
		globalThis.__callables[name] = obj;
	};
	globalThis.__callFunction = function(name, method, argsJSON) {
		var c = globalThis.__callables[name];
		if (!c || typeof c[method] !== 'function') {
			throw new Error('no callable ' + name + '.' + method);
		}
		return c[method].apply(c, argsJSON ? JSON.parse(argsJSON) : []);
	};

	globalThis.console = {};
	var levels = ['log', 'info', 'warn', 'error', 'debug'];
	for (var i = 0; i < levels.length; i++) {
		(function(level) {
			globalThis.console[level] = function() {
				var parts = [];
				for (var j = 0; j < arguments.length; j++) parts.push(String(arguments[j]));
				__bridgeLog(level, parts.join(' '));
			};
		})(levels[i]);
	}
})();
`

// newInstance constructs the live bridge: it synchronously constructs every
// module in the table (on the caller's context) and schedules the script-side
// bootstrap on the script queue. Ownership of both queues and the settings
// transfers to the instance; the caller must not post to the queues or
// mutate the settings afterwards.
func newInstance(
	rootID string,
	table []ModuleDescriptor,
	fallback FallbackProvider,
	callback InstanceCallback,
	scriptQueue, nativeQueue *Queue,
	settings *DevSettings,
) (*Instance, error) {
	if settings == nil {
		return nil, fmt.Errorf("nil settings")
	}
	if settings.RuntimeHolder == nil {
		return nil, fmt.Errorf("settings missing runtime holder")
	}
	if callback == nil {
		callback = NoopInstanceCallback{}
	}

	modules, err := constructModules(table)
	if err != nil {
		return nil, err
	}

	inst := &Instance{
		rootID:      rootID,
		holder:      settings.RuntimeHolder,
		scriptQueue: scriptQueue,
		nativeQueue: nativeQueue,
		table:       table,
		callback:    callback,
		settings:    settings,
		fallback:    fallback,
		modules:     modules,
	}

	inst.scriptQueue.Post(func() {
		if err := inst.bootstrap(); err != nil {
			inst.setLoadErr(fmt.Errorf("bridge bootstrap: %w", err))
		}
	})

	return inst, nil
}

// constructModules runs every descriptor's provider, recovering panics so a
// misbehaving provider surfaces as an error instead of unwinding the bridge.
// Later table entries overwrite earlier ones of the same name (last-wins).
func constructModules(table []ModuleDescriptor) (map[string]*liveModule, error) {
	modules := make(map[string]*liveModule, len(table))
	for _, d := range table {
		if d.Name == "" || d.Provider == nil || d.Queue == nil {
			return nil, fmt.Errorf("module %q: incomplete descriptor", d.Name)
		}
		mod, err := constructModule(d)
		if err != nil {
			return nil, err
		}
		modules[d.Name] = &liveModule{name: d.Name, mod: mod, queue: d.Queue}
	}
	return modules, nil
}

func constructModule(d ModuleDescriptor) (mod Module, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("constructing module %q: %v", d.Name, r)
		}
	}()
	mod = d.Provider()
	if mod == nil {
		return nil, fmt.Errorf("module %q: provider returned nil", d.Name)
	}
	return mod, nil
}

// bootstrap wires the VM to the native side. Script-queue only.
func (inst *Instance) bootstrap() error {
	if err := inst.holder.ready(); err != nil {
		return err
	}
	vm := inst.holder.vm

	if err := registerGoFunc(vm, "__nativeCall", inst.dispatchNativeCall); err != nil {
		return fmt.Errorf("registering __nativeCall: %w", err)
	}
	if err := registerGoFunc(vm, "__bridgeLog", func(level, msg string) {
		log.Printf("bridge: [script %s] %s", level, msg)
	}); err != nil {
		return fmt.Errorf("registering __bridgeLog: %w", err)
	}
	if err := setGlobal(vm, "__platformName", inst.settings.PlatformName); err != nil {
		return err
	}
	if err := evalDiscard(vm, bridgeBootstrapJS); err != nil {
		return fmt.Errorf("evaluating bootstrap script: %w", err)
	}

	// Facades in table order; a later entry reassigns the name, so the
	// script side observes the same last-wins resolution as the Go side.
	for _, d := range inst.table {
		lm := inst.modules[d.Name]
		if err := evalDiscard(vm, moduleFacadeJS(lm)); err != nil {
			return fmt.Errorf("installing facade for module %q: %w", d.Name, err)
		}
	}
	return nil
}

// moduleFacadeJS builds the nativeModules.<Name> object whose methods return
// Promises resolved from the native side.
func moduleFacadeJS(lm *liveModule) string {
	methods := make([]string, 0, len(lm.mod.Methods()))
	for name := range lm.mod.Methods() {
		methods = append(methods, name)
	}
	sort.Strings(methods)

	js := fmt.Sprintf("globalThis.nativeModules[%s] = {};\n", jsEscape(lm.name))
	for _, m := range methods {
		js += fmt.Sprintf("globalThis.nativeModules[%s][%s] = __mkNativeMethod(%s, %s);\n",
			jsEscape(lm.name), jsEscape(m), jsEscape(lm.name), jsEscape(m))
	}
	return js
}

// dispatchNativeCall is the Go entry point for script→native calls. It runs
// on the script queue (inside a VM callback), increments the pending-call
// count, and posts the invocation to the target module's queue. Completion
// is posted back to the script queue, so per-module FIFO holds but
// round-trip ordering across modules does not.
func (inst *Instance) dispatchNativeCall(module, method, argsJSON string, callID int) {
	inst.callback.IncrementPendingCalls()

	lm := inst.modules[module]
	if lm == nil && inst.fallback != nil {
		if d, ok := inst.fallback(module); ok {
			if mod, err := constructModule(d); err == nil {
				lm = &liveModule{name: d.Name, mod: mod, queue: d.Queue}
				inst.modules[module] = lm
			}
		}
	}
	if lm == nil {
		inst.completeNativeCall(callID, "", fmt.Sprintf("unknown native module %q", module))
		return
	}

	lm.queue.Post(func() {
		result, errMsg := invokeModuleMethod(lm, method, argsJSON)
		inst.completeNativeCall(callID, result, errMsg)
	})
}

// invokeModuleMethod runs a module method on the current (module's) queue and
// JSON-encodes its result. Failures come back as script-visible error
// strings, never as faults on the native context.
func invokeModuleMethod(lm *liveModule, method, argsJSON string) (resultJSON, errMsg string) {
	defer func() {
		if r := recover(); r != nil {
			resultJSON, errMsg = "", fmt.Sprintf("module %q method %q: %v", lm.name, method, r)
		}
	}()

	fn, ok := lm.mod.Methods()[method]
	if !ok {
		return "", fmt.Sprintf("module %q has no method %q", lm.name, method)
	}

	var args []any
	if argsJSON != "" {
		if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
			return "", fmt.Sprintf("decoding arguments for %s.%s: %v", lm.name, method, err)
		}
	}

	result, err := fn(args)
	if err != nil {
		return "", err.Error()
	}
	if result == nil {
		return "", ""
	}
	encoded, err := json.Marshal(result)
	if err != nil {
		return "", fmt.Sprintf("encoding result of %s.%s: %v", lm.name, method, err)
	}
	return string(encoded), ""
}

// completeNativeCall delivers a native call result to the script context and
// closes out the pending-call pair opened in dispatchNativeCall.
func (inst *Instance) completeNativeCall(callID int, resultJSON, errMsg string) {
	inst.scriptQueue.Post(func() {
		js := fmt.Sprintf("__nativeCallComplete(%d, %s, %s);", callID, jsEscape(resultJSON), jsEscape(errMsg))
		if err := inst.holder.eval(js); err != nil {
			log.Printf("bridge: delivering native call %d result: %v", callID, err)
		}
		inst.holder.pumpJobs()
		inst.callback.DecrementPendingCalls()
		inst.callback.OnBatchComplete()
	})
}

// emitEvent posts an event into the script context. Module goroutines call
// this through the event sink; it is safe from any context.
func (inst *Instance) emitEvent(name, payloadJSON string) {
	inst.scriptQueue.Post(func() {
		js := fmt.Sprintf("__bridgeDispatchEvent(%s, %s);", jsEscape(name), jsEscape(payloadJSON))
		if err := inst.holder.eval(js); err != nil {
			log.Printf("bridge: dispatching event %q: %v", name, err)
		}
		inst.holder.pumpJobs()
		inst.callback.OnBatchComplete()
	})
}

// LoadBundle schedules asynchronous load and top-level execution of a script
// bundle on the script queue. Fire-and-forget: success or failure is
// observable only through the instance afterwards (Loaded/LoadErr), never
// through this call.
func (inst *Instance) LoadBundle(bundleFile string) {
	root := inst.settings.BundleRootPath
	inst.scriptQueue.Post(func() {
		src, err := loadBundleSource(root, bundleFile)
		if err != nil {
			inst.setLoadErr(err)
			return
		}
		if err := inst.holder.eval(src); err != nil {
			inst.setLoadErr(fmt.Errorf("evaluating bundle %s: %w", bundleFile, err))
			return
		}
		inst.holder.pumpJobs()

		inst.mu.Lock()
		inst.loaded = true
		inst.mu.Unlock()

		inst.callback.OnBatchComplete()
	})
}

// CallFunction invokes a method on a callable the bundle registered via
// __registerCallable. Fire-and-forget, like every other entry into the
// script context.
func (inst *Instance) CallFunction(name, method string, args ...any) {
	argsJSON := "[]"
	if len(args) > 0 {
		if encoded, err := json.Marshal(args); err == nil {
			argsJSON = string(encoded)
		}
	}
	inst.scriptQueue.Post(func() {
		js := fmt.Sprintf("__callFunction(%s, %s, %s);", jsEscape(name), jsEscape(method), jsEscape(argsJSON))
		if err := inst.holder.eval(js); err != nil {
			log.Printf("bridge: calling %s.%s: %v", name, method, err)
		}
		inst.holder.pumpJobs()
		inst.callback.OnBatchComplete()
	})
}

func (inst *Instance) setLoadErr(err error) {
	log.Printf("bridge: bundle load: %v", err)
	inst.mu.Lock()
	if inst.loadErr == nil {
		inst.loadErr = err
	}
	inst.mu.Unlock()
}

// Loaded reports whether a bundle has finished top-level execution.
func (inst *Instance) Loaded() bool {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	return inst.loaded
}

// LoadErr returns the first asynchronous load or bootstrap error, if any.
func (inst *Instance) LoadErr() error {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	return inst.loadErr
}

// ModuleNames returns the table's names in order, collisions included.
func (inst *Instance) ModuleNames() []string {
	names := make([]string, len(inst.table))
	for i, d := range inst.table {
		names[i] = d.Name
	}
	return names
}

// moduleFor returns the live module a name resolves to (last-wins).
func (inst *Instance) moduleFor(name string) *liveModule {
	return inst.modules[name]
}

// Close quiesces the instance: the VM is released and the script queue shut
// down first (no new native calls can originate), then every module that
// holds resources is closed on its own queue before the native queue drains.
// Idempotent; blocks until both queues have exited.
func (inst *Instance) Close() {
	inst.closeOnce.Do(func() {
		inst.scriptQueue.Post(func() { inst.holder.release() })
		inst.scriptQueue.Shutdown()
		<-inst.scriptQueue.Done()

		for _, lm := range inst.modules {
			if c, ok := lm.mod.(closer); ok {
				lm.queue.Post(func() {
					if err := c.Close(); err != nil {
						log.Printf("bridge: closing module: %v", err)
					}
				})
			}
		}
		inst.nativeQueue.Shutdown()
		<-inst.nativeQueue.Done()
	})
}
