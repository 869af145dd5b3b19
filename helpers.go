package bridge

import (
	"fmt"
	"strconv"

	"modernc.org/quickjs"
)

// evalDiscard evaluates JavaScript and frees the result. Use for
// fire-and-forget execution where the return value is not needed.
func evalDiscard(vm *quickjs.VM, js string) error {
	v, err := vm.EvalValue(js, quickjs.EvalGlobal)
	if err != nil {
		return err
	}
	v.Free()
	return nil
}

// evalString evaluates JavaScript and returns the result as a Go string.
func evalString(vm *quickjs.VM, js string) (string, error) {
	r, err := vm.Eval(js, quickjs.EvalGlobal)
	if err != nil {
		return "", err
	}
	if r == nil {
		return "", nil
	}
	return fmt.Sprint(r), nil
}

// setGlobal sets a property on the VM's global object, auto-converting the
// Go value to a JS value.
func setGlobal(vm *quickjs.VM, name string, value any) error {
	atom, err := vm.NewAtom(name)
	if err != nil {
		return fmt.Errorf("creating atom %q: %w", name, err)
	}
	glob := vm.GlobalObject()
	defer glob.Free()
	return glob.SetProperty(atom, value)
}

// jsEscape quotes a string for safe embedding in JavaScript source. Go %q
// quoting is also valid JS.
func jsEscape(s string) string {
	return strconv.Quote(s)
}

// registerGoFunc registers a Go function as a global JS function and wraps it
// so that a (T, error) return throws a TypeError on error instead of
// surfacing as a [value, error] array, which is how the QuickJS Go wrapper
// marshals multi-value returns.
func registerGoFunc(vm *quickjs.VM, name string, f any) error {
	rawName := "__raw_" + name
	if err := vm.RegisterFunc(rawName, f, false); err != nil {
		return err
	}
	wrapJS := fmt.Sprintf(`(function() {
		var raw = globalThis[%q];
		globalThis[%q] = function() {
			var r = raw.apply(this, arguments);
			if (Array.isArray(r)) {
				if (r[1] !== null && r[1] !== undefined) throw new TypeError("calling %s: " + r[1]);
				return r[0];
			}
			return r;
		};
		delete globalThis[%q];
	})()`, rawName, name, name, rawName)
	return evalDiscard(vm, wrapJS)
}
