package manager

import (
	"sync"

	"github.com/specialistvlad/scriptloader/internal/scripterr"
)

var (
	sharedMu sync.RWMutex
	shared   *Manager
)

// Init creates the process-wide Manager. It fails when called twice without
// ResetShared in between.
func Init(executor Executor, opts ...Option) error {
	sharedMu.Lock()
	defer sharedMu.Unlock()
	if shared != nil {
		return &scripterr.ConfigurationError{Message: "already initialized"}
	}
	m, err := New(executor, opts...)
	if err != nil {
		return err
	}
	shared = m
	return nil
}

// Shared returns the process-wide Manager created by Init.
func Shared() (*Manager, error) {
	sharedMu.RLock()
	defer sharedMu.RUnlock()
	if shared == nil {
		return nil, &scripterr.ConfigurationError{Message: "used before Init"}
	}
	return shared, nil
}

// ResetShared forgets the process-wide Manager.
func ResetShared() {
	sharedMu.Lock()
	defer sharedMu.Unlock()
	shared = nil
}
