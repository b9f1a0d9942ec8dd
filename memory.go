package typst

import (
	"bytes"
	"context"

	"github.com/tetratelabs/wazero/api"

	"github.com/aperturerobotics/go-typst-wasi/errors"
)

// guestModule is the part of api.Module the memory helpers use.
type guestModule interface {
	Memory() api.Memory
	ExportedFunction(name string) api.Function
}

// guestInstance is a guest module owned by one compilation.
type guestInstance interface {
	guestModule
	Close(ctx context.Context) error
}

// Memory helpers

func allocBytes(ctx context.Context, mod guestModule, data []byte) (uint32, error) {
	malloc := mod.ExportedFunction(ExportMalloc)
	if malloc == nil {
		return 0, errors.MissingExport(ExportMalloc)
	}
	results, err := malloc.Call(ctx, uint64(len(data)))
	if err != nil {
		return 0, errors.Wrap(errors.PhaseHost, errors.KindAllocation, err, "malloc")
	}
	ptr := uint32(results[0])
	if ptr == 0 {
		return 0, errors.New(errors.PhaseHost, errors.KindAllocation).Detail("malloc returned null").Build()
	}
	if !mod.Memory().Write(ptr, data) {
		freePtr(ctx, mod, ptr)
		return 0, errors.New(errors.PhaseHost, errors.KindOutOfBounds).Detail("failed to write to memory").Build()
	}
	return ptr, nil
}

func freePtr(ctx context.Context, mod guestModule, ptr uint32) {
	if ptr == 0 {
		return
	}
	if free := mod.ExportedFunction(ExportFree); free != nil {
		free.Call(ctx, uint64(ptr))
	}
}

// writeResult stores data as a guest-allocated buffer and writes its
// pointer and length to ptrAddr and lenAddr. Empty data is written as a
// null pointer with length zero.
func writeResult(ctx context.Context, mod guestModule, ptrAddr, lenAddr uint32, data []byte) error {
	var ptr uint32
	if len(data) > 0 {
		var err error
		if ptr, err = allocBytes(ctx, mod, data); err != nil {
			return err
		}
	}
	mem := mod.Memory()
	if !mem.WriteUint32Le(ptrAddr, ptr) || !mem.WriteUint32Le(lenAddr, uint32(len(data))) {
		freePtr(ctx, mod, ptr)
		return errors.New(errors.PhaseHost, errors.KindOutOfBounds).Detail("result pointers out of range").Build()
	}
	return nil
}

// readString reads len bytes at ptr as a string.
func readString(mod guestModule, ptr, n uint32) (string, error) {
	if n == 0 {
		return "", nil
	}
	b, ok := mod.Memory().Read(ptr, n)
	if !ok {
		return "", errors.OutOfBounds(errors.PhaseHost, "memory", int(ptr), int(mod.Memory().Size()))
	}
	return string(b), nil
}

// takeResult reads the buffer whose pointer and length are stored at
// ptrAddr and lenAddr, copies it out and frees it in the guest.
func takeResult(ctx context.Context, mod guestModule, ptrAddr, lenAddr uint32) ([]byte, error) {
	mem := mod.Memory()
	ptr, ok1 := mem.ReadUint32Le(ptrAddr)
	n, ok2 := mem.ReadUint32Le(lenAddr)
	if !ok1 || !ok2 {
		return nil, errors.New(errors.PhaseHost, errors.KindOutOfBounds).Detail("result pointers out of range").Build()
	}
	if ptr == 0 || n == 0 {
		freePtr(ctx, mod, ptr)
		return nil, nil
	}
	defer freePtr(ctx, mod, ptr)
	view, ok := mem.Read(ptr, n)
	if !ok {
		return nil, errors.OutOfBounds(errors.PhaseHost, "memory", int(ptr), int(mem.Size()))
	}
	return bytes.Clone(view), nil
}

// scratch is a small guest allocation holding result pointers.
type scratch struct {
	ptr uint32
}

func newScratch(ctx context.Context, mod guestModule, words int) (*scratch, error) {
	ptr, err := allocBytes(ctx, mod, make([]byte, 4*words))
	if err != nil {
		return nil, err
	}
	return &scratch{ptr: ptr}, nil
}

// word returns the address of the i-th u32 slot.
func (s *scratch) word(i int) uint32 {
	return s.ptr + uint32(4*i)
}

func (s *scratch) free(ctx context.Context, mod guestModule) {
	freePtr(ctx, mod, s.ptr)
}
