package bridge

import (
	"fmt"

	"modernc.org/quickjs"
)

// RuntimeHolder owns the QuickJS VM and its binding to the script queue. The
// VM is created on the script queue and must only ever be touched from tasks
// running there; the holder's methods assume they are already on that queue.
//
// Construction is a two-step dependency by design: the holder needs the
// script queue, and the instance needs the holder injected back into the
// settings it consumes (GetInstance performs the injection).
type RuntimeHolder struct {
	queue *Queue

	// Written by the construction task on the script queue, read by later
	// tasks on the same queue. FIFO ordering makes that safe.
	vm      *quickjs.VM
	initErr error
}

// newRuntimeHolder creates a holder bound to the script queue and schedules
// VM construction there. Callers posting work after this call observe a
// constructed VM (or a recorded construction error).
func newRuntimeHolder(settings *DevSettings, scriptQueue *Queue) *RuntimeHolder {
	h := &RuntimeHolder{queue: scriptQueue}
	limitMB := settings.MemoryLimitMB
	scriptQueue.Post(func() {
		vm, err := quickjs.NewVM()
		if err != nil {
			h.initErr = fmt.Errorf("creating QuickJS VM: %w", err)
			return
		}
		if limitMB > 0 {
			vm.SetMemoryLimit(uintptr(limitMB) * 1024 * 1024)
		}
		h.vm = vm
	})
	return h
}

// ready reports whether the VM exists; on false the construction error is
// returned. Script-queue only.
func (h *RuntimeHolder) ready() error {
	if h.vm == nil {
		if h.initErr != nil {
			return h.initErr
		}
		return fmt.Errorf("runtime holder: VM not constructed")
	}
	return nil
}

// eval runs JavaScript on the VM, discarding the result. Script-queue only.
func (h *RuntimeHolder) eval(js string) error {
	if err := h.ready(); err != nil {
		return err
	}
	return evalDiscard(h.vm, js)
}

// pumpJobs drains pending Promise microtasks. Script-queue only.
func (h *RuntimeHolder) pumpJobs() int {
	if h.vm == nil {
		return 0
	}
	return runPendingJobs(h.vm)
}

// release closes the VM. Script-queue only; the holder is inert afterwards.
func (h *RuntimeHolder) release() {
	if h.vm != nil {
		h.vm.Close()
		h.vm = nil
	}
}
