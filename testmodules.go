package bridge

import "sync/atomic"

// The three modules below are stubs that integration bundles expect to find
// in the table. Outside a full host application they answer with fixed data;
// the UIManager stub additionally counts calls so tests can assert that
// script-issued view operations reached the native queue.

// appStateModule reports a permanently active application.
type appStateModule struct{}

func newAppStateModule() *appStateModule { return &appStateModule{} }

func (m *appStateModule) Methods() map[string]Method {
	return map[string]Method{
		"getCurrentAppState": func([]any) (any, error) {
			return map[string]string{"app_state": "active"}, nil
		},
	}
}

// uiManagerModule accepts view operations and discards them.
type uiManagerModule struct {
	createViews atomic.Int64
	updateViews atomic.Int64
}

func newUIManagerModule() *uiManagerModule { return &uiManagerModule{} }

func (m *uiManagerModule) Methods() map[string]Method {
	return map[string]Method{
		"getConstants": func([]any) (any, error) {
			return map[string]any{"Dimensions": deviceWindowMetrics()}, nil
		},
		"createView": func([]any) (any, error) {
			m.createViews.Add(1)
			return nil, nil
		},
		"updateView": func([]any) (any, error) {
			m.updateViews.Add(1)
			return nil, nil
		},
	}
}

// deviceInfoModule reports fixed desktop window metrics.
type deviceInfoModule struct{}

func newDeviceInfoModule() *deviceInfoModule { return &deviceInfoModule{} }

func (m *deviceInfoModule) Methods() map[string]Method {
	return map[string]Method{
		"getConstants": func([]any) (any, error) {
			return map[string]any{"Dimensions": deviceWindowMetrics()}, nil
		},
	}
}

func deviceWindowMetrics() map[string]any {
	return map[string]any{
		"window": map[string]any{
			"width":     1024,
			"height":    768,
			"scale":     1.0,
			"fontScale": 1.0,
		},
	}
}
