package bridge

import "testing"

type nopModule struct{}

func (nopModule) Methods() map[string]Method { return map[string]Method{} }

func nopProvider() Module { return nopModule{} }

func testBuiltins(t *testing.T) ([]ModuleDescriptor, *Queue) {
	t.Helper()
	native := NewQueue("native")
	t.Cleanup(func() { native.Shutdown() })
	return builtinModules(native, &DevSettings{DataDir: t.TempDir()}, &eventSink{}), native
}

func TestBuiltinModuleSet(t *testing.T) {
	builtins, native := testBuiltins(t)

	want := []string{
		ModuleStorage, ModuleWebSocket, ModuleNetworking, ModuleTiming,
		ModuleAppState, ModuleUIManager, ModuleDeviceInfo,
	}
	if len(builtins) != len(want) {
		t.Fatalf("built-in count = %d, want %d", len(builtins), len(want))
	}
	for i, d := range builtins {
		if d.Name != want[i] {
			t.Errorf("builtin[%d] = %q, want %q", i, d.Name, want[i])
		}
		if d.Queue != native {
			t.Errorf("builtin %q not bound to the native queue", d.Name)
		}
		if d.Provider == nil {
			t.Errorf("builtin %q has nil provider", d.Name)
		}
	}
}

func TestBuildModuleTableEmptyExtras(t *testing.T) {
	builtins, native := testBuiltins(t)

	table := buildModuleTable(builtins, nil, native)
	if len(table) != len(builtins) {
		t.Fatalf("table size = %d, want %d", len(table), len(builtins))
	}
	for i := range builtins {
		if table[i].Name != builtins[i].Name || table[i].Queue != builtins[i].Queue {
			t.Errorf("entry %d changed during build", i)
		}
	}
}

func TestBuildModuleTableAppendsExtras(t *testing.T) {
	builtins, native := testBuiltins(t)

	extras := []ExtraModule{
		{Name: "Custom", Provider: nopProvider},
		{Name: "Second", Provider: nopProvider},
	}
	table := buildModuleTable(builtins, extras, native)

	if len(table) != len(builtins)+2 {
		t.Fatalf("table size = %d, want %d", len(table), len(builtins)+2)
	}
	for i := range builtins {
		if table[i].Name != builtins[i].Name {
			t.Errorf("builtins reordered at %d", i)
		}
	}
	custom := table[len(builtins)]
	if custom.Name != "Custom" {
		t.Fatalf("extra name = %q, want Custom", custom.Name)
	}
	if custom.Queue != native {
		t.Error("extra not bound to the extras queue")
	}
	if table[len(builtins)+1].Name != "Second" {
		t.Error("extras reordered")
	}
}

// Name collisions resolve last-wins: the table keeps both entries in order,
// and consumers indexing by name observe the latest one.
func TestModuleTableCollisionLastWins(t *testing.T) {
	builtins, native := testBuiltins(t)

	shadow := nopModule{}
	extras := []ExtraModule{
		{Name: ModuleTiming, Provider: func() Module { return shadow }},
	}
	table := buildModuleTable(builtins, extras, native)

	if len(table) != len(builtins)+1 {
		t.Fatalf("collision must not drop entries: size = %d", len(table))
	}

	modules, err := constructModules(table)
	if err != nil {
		t.Fatalf("constructModules: %v", err)
	}
	lm := modules[ModuleTiming]
	if lm == nil {
		t.Fatal("Timing missing from index")
	}
	if lm.mod != Module(shadow) {
		t.Error("by-name lookup did not resolve to the last table entry")
	}
}

func TestConstructModulesRejectsIncompleteDescriptor(t *testing.T) {
	if _, err := constructModules([]ModuleDescriptor{{Name: "Broken"}}); err == nil {
		t.Error("expected error for descriptor without provider and queue")
	}
}

func TestConstructModulesRecoversProviderPanic(t *testing.T) {
	native := NewQueue("native")
	defer native.Shutdown()

	table := []ModuleDescriptor{{
		Name:     "Angry",
		Provider: func() Module { panic("no") },
		Queue:    native,
	}}
	if _, err := constructModules(table); err == nil {
		t.Error("expected error from panicking provider")
	}
}
