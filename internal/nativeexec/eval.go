package nativeexec

import (
	"sync"

	"github.com/dop251/goja"
)

// runtime evaluates bundles in a single goja VM. goja runtimes are not safe
// for concurrent use, so every evaluation holds mu.
type runtime struct {
	mu         sync.Mutex
	vm         *goja.Runtime
	registered []string
}

func newRuntime() *runtime {
	return &runtime{vm: goja.New()}
}

// evaluate runs code with a __scriptloader object describing the script.
// Scripts call __scriptloader.register(name) to announce what they define.
func (r *runtime) evaluate(scriptID, uniqueID, sourceURL string, code []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	program, err := goja.Compile(sourceURL, string(code), false)
	if err != nil {
		return err
	}

	host := r.vm.NewObject()
	if err := host.Set("scriptId", scriptID); err != nil {
		return err
	}
	if err := host.Set("uniqueId", uniqueID); err != nil {
		return err
	}
	if err := host.Set("register", func(call goja.FunctionCall) goja.Value {
		r.registered = append(r.registered, call.Argument(0).String())
		return goja.Undefined()
	}); err != nil {
		return err
	}
	if err := r.vm.Set("__scriptloader", host); err != nil {
		return err
	}

	_, err = r.vm.RunProgram(program)
	return err
}

// Registered returns every name passed to __scriptloader.register so far.
func (r *runtime) Registered() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.registered...)
}

// Global reads a global variable of the VM as a Go value.
func (r *runtime) Global(name string) any {
	r.mu.Lock()
	defer r.mu.Unlock()
	v := r.vm.Get(name)
	if v == nil {
		return nil
	}
	return v.Export()
}
