package typst

import (
	"context"
	"encoding/binary"

	"github.com/tetratelabs/wazero/api"
)

// fakeMemory is a flat little-endian linear memory.
type fakeMemory struct {
	api.Memory
	buf []byte
}

func (m *fakeMemory) Size() uint32 { return uint32(len(m.buf)) }

func (m *fakeMemory) Read(offset, n uint32) ([]byte, bool) {
	if uint64(offset)+uint64(n) > uint64(len(m.buf)) {
		return nil, false
	}
	return m.buf[offset : offset+n], true
}

func (m *fakeMemory) Write(offset uint32, v []byte) bool {
	if uint64(offset)+uint64(len(v)) > uint64(len(m.buf)) {
		return false
	}
	copy(m.buf[offset:], v)
	return true
}

func (m *fakeMemory) ReadUint32Le(offset uint32) (uint32, bool) {
	b, ok := m.Read(offset, 4)
	if !ok {
		return 0, false
	}
	return binary.LittleEndian.Uint32(b), true
}

func (m *fakeMemory) WriteUint32Le(offset, v uint32) bool {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return m.Write(offset, b[:])
}

type fakeFunction struct {
	api.Function
	call func(ctx context.Context, params ...uint64) []uint64
}

func (f *fakeFunction) Call(ctx context.Context, params ...uint64) ([]uint64, error) {
	return f.call(ctx, params...), nil
}

// fakeGuest is a guest with a bump allocator. Addresses below heapBase are
// free for test scratch words.
type fakeGuest struct {
	mem   *fakeMemory
	next  uint32
	live  map[uint32]int
	freed []uint32
	funcs map[string]api.Function

	closed int
}

const heapBase = 1024

func newFakeGuest() *fakeGuest {
	g := &fakeGuest{
		mem:  &fakeMemory{buf: make([]byte, 64*1024)},
		next: heapBase,
		live: make(map[uint32]int),
	}
	g.funcs = map[string]api.Function{
		ExportMalloc: &fakeFunction{call: func(_ context.Context, p ...uint64) []uint64 {
			n := uint32(p[0])
			if g.next+n > g.mem.Size() {
				return []uint64{0}
			}
			ptr := g.next
			g.next += (n + 7) &^ 7
			if n == 0 {
				g.next += 8
			}
			g.live[ptr] = int(n)
			return []uint64{uint64(ptr)}
		}},
		ExportFree: &fakeFunction{call: func(_ context.Context, p ...uint64) []uint64 {
			ptr := uint32(p[0])
			delete(g.live, ptr)
			g.freed = append(g.freed, ptr)
			return nil
		}},
	}
	return g
}

func (g *fakeGuest) Memory() api.Memory { return g.mem }

func (g *fakeGuest) ExportedFunction(name string) api.Function {
	if f, ok := g.funcs[name]; ok {
		return f
	}
	return nil
}

func (g *fakeGuest) Close(context.Context) error {
	g.closed++
	return nil
}

// export registers fn as an exported function.
func (g *fakeGuest) export(name string, fn func(ctx context.Context, p ...uint64) []uint64) {
	g.funcs[name] = &fakeFunction{call: fn}
}

// result reads the buffer stored at ptrAddr and lenAddr without freeing it.
func (g *fakeGuest) result(ptrAddr, lenAddr uint32) (uint32, []byte) {
	ptr, _ := g.mem.ReadUint32Le(ptrAddr)
	n, _ := g.mem.ReadUint32Le(lenAddr)
	if ptr == 0 {
		return 0, nil
	}
	b, _ := g.mem.Read(ptr, n)
	return ptr, append([]byte(nil), b...)
}

// put stores s below the heap and returns its address and length.
func (g *fakeGuest) put(addr uint32, s string) (uint32, uint32) {
	g.mem.Write(addr, []byte(s))
	return addr, uint32(len(s))
}
