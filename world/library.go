package world

import (
	"maps"
	"sync"
)

// Library is the static capability table handed to the compiler when it
// builds its standard library.
type Library struct {
	// Features lists optional compiler features to enable.
	Features []string `json:"features"`
	// Inputs is exposed to documents as sys.inputs.
	Inputs map[string]string `json:"inputs"`
}

var (
	defaultLibrary *Library
	libraryOnce    sync.Once
)

// DefaultLibrary returns the process-wide library table. It is shared by
// every World and must not be modified.
func DefaultLibrary() *Library {
	libraryOnce.Do(func() {
		defaultLibrary = &Library{
			Features: []string{},
			Inputs:   map[string]string{},
		}
	})
	return defaultLibrary
}

// withInputs returns a copy of l with inputs merged over its own.
func (l *Library) withInputs(inputs map[string]string) *Library {
	merged := maps.Clone(l.Inputs)
	if merged == nil {
		merged = make(map[string]string, len(inputs))
	}
	maps.Copy(merged, inputs)
	return &Library{Features: l.Features, Inputs: merged}
}
