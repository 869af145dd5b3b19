package bridge

import (
	"reflect"
	"testing"
)

func TestStorageMultiSetMultiGet(t *testing.T) {
	m := newStorageModule(t.TempDir())
	defer func() { _ = m.Close() }()

	if _, err := m.multiSet([]any{[]any{
		[]any{"alpha", "1"},
		[]any{"beta", "2"},
	}}); err != nil {
		t.Fatalf("multiSet: %v", err)
	}

	result, err := m.multiGet([]any{[]any{"alpha", "beta", "missing"}})
	if err != nil {
		t.Fatalf("multiGet: %v", err)
	}
	pairs := result.([][]any)
	if len(pairs) != 3 {
		t.Fatalf("pairs = %d, want 3", len(pairs))
	}
	if pairs[0][1] != "1" || pairs[1][1] != "2" {
		t.Errorf("values = %v, %v, want 1, 2", pairs[0][1], pairs[1][1])
	}
	if pairs[2][1] != nil {
		t.Errorf("missing key value = %v, want nil", pairs[2][1])
	}
}

func TestStorageOverwriteAndRemove(t *testing.T) {
	m := newStorageModule(t.TempDir())
	defer func() { _ = m.Close() }()

	if _, err := m.multiSet([]any{[]any{[]any{"k", "old"}}}); err != nil {
		t.Fatalf("multiSet: %v", err)
	}
	if _, err := m.multiSet([]any{[]any{[]any{"k", "new"}}}); err != nil {
		t.Fatalf("multiSet overwrite: %v", err)
	}

	result, err := m.multiGet([]any{[]any{"k"}})
	if err != nil {
		t.Fatalf("multiGet: %v", err)
	}
	if got := result.([][]any)[0][1]; got != "new" {
		t.Errorf("value after overwrite = %v, want new", got)
	}

	if _, err := m.multiRemove([]any{[]any{"k"}}); err != nil {
		t.Fatalf("multiRemove: %v", err)
	}
	result, err = m.multiGet([]any{[]any{"k"}})
	if err != nil {
		t.Fatalf("multiGet after remove: %v", err)
	}
	if got := result.([][]any)[0][1]; got != nil {
		t.Errorf("removed key value = %v, want nil", got)
	}
}

func TestStorageGetAllKeysAndClear(t *testing.T) {
	m := newStorageModule(t.TempDir())
	defer func() { _ = m.Close() }()

	if _, err := m.multiSet([]any{[]any{
		[]any{"b", "2"},
		[]any{"a", "1"},
		[]any{"c", "3"},
	}}); err != nil {
		t.Fatalf("multiSet: %v", err)
	}

	keys, err := m.getAllKeys(nil)
	if err != nil {
		t.Fatalf("getAllKeys: %v", err)
	}
	if want := []string{"a", "b", "c"}; !reflect.DeepEqual(keys, want) {
		t.Errorf("keys = %v, want %v", keys, want)
	}

	if _, err := m.clear(nil); err != nil {
		t.Fatalf("clear: %v", err)
	}
	keys, err = m.getAllKeys(nil)
	if err != nil {
		t.Fatalf("getAllKeys after clear: %v", err)
	}
	if got := keys.([]string); len(got) != 0 {
		t.Errorf("keys after clear = %v, want none", got)
	}
}

func TestStorageRejectsMalformedArgs(t *testing.T) {
	m := newStorageModule(t.TempDir())
	defer func() { _ = m.Close() }()

	if _, err := m.multiGet(nil); err == nil {
		t.Error("multiGet without arguments should fail")
	}
	if _, err := m.multiGet([]any{"not-an-array"}); err == nil {
		t.Error("multiGet with non-array argument should fail")
	}
	if _, err := m.multiSet([]any{[]any{[]any{"only-key"}}}); err == nil {
		t.Error("multiSet with a 1-element pair should fail")
	}
}

func TestStoragePersistsAcrossModuleInstances(t *testing.T) {
	dir := t.TempDir()

	m := newStorageModule(dir)
	if _, err := m.multiSet([]any{[]any{[]any{"sticky", "yes"}}}); err != nil {
		t.Fatalf("multiSet: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	m2 := newStorageModule(dir)
	defer func() { _ = m2.Close() }()
	result, err := m2.multiGet([]any{[]any{"sticky"}})
	if err != nil {
		t.Fatalf("multiGet on reopened store: %v", err)
	}
	if got := result.([][]any)[0][1]; got != "yes" {
		t.Errorf("persisted value = %v, want yes", got)
	}
}
