package typst

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"strings"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/aperturerobotics/go-typst-wasi/errors"
	"github.com/aperturerobotics/go-typst-wasi/world"
)

type worldKey struct{}

// withWorld binds w to the calls made with ctx.
func withWorld(ctx context.Context, w *world.World) context.Context {
	return context.WithValue(ctx, worldKey{}, w)
}

func worldFrom(ctx context.Context) *world.World {
	w, _ := ctx.Value(worldKey{}).(*world.World)
	return w
}

// rootless strips the root of a virtual path: the compiler asks for
// "/conf.typ", bundles name it "conf.typ".
func rootless(path string) string {
	return strings.TrimPrefix(path, "/")
}

var i32 = api.ValueTypeI32

// registerHost instantiates the typst host module in r unless present.
func registerHost(ctx context.Context, r wazero.Runtime) error {
	if r.Module(ImportModuleTypst) != nil {
		return nil
	}
	b := r.NewHostModuleBuilder(ImportModuleTypst)
	add := func(name string, fn func(context.Context, guestModule, []uint64), params ...api.ValueType) {
		b.NewFunctionBuilder().
			WithGoModuleFunction(api.GoModuleFunc(func(ctx context.Context, mod api.Module, stack []uint64) {
				fn(ctx, mod, stack)
			}), params, []api.ValueType{i32}).
			Export(name)
	}

	add(ImportWorldMain, hostWorldMain, i32, i32)
	add(ImportWorldSource, hostWorldSource, i32, i32, i32, i32)
	add(ImportWorldFile, hostWorldFile, i32, i32, i32, i32)
	add(ImportWorldFont, hostWorldFont, i32, i32, i32)
	add(ImportWorldToday, hostWorldToday, api.ValueTypeI64, i32, i32)
	add(ImportWorldBook, hostWorldBook, i32, i32)
	add(ImportWorldLibrary, hostWorldLibrary, i32, i32)

	if _, err := b.Instantiate(ctx); err != nil {
		return errors.Wrap(errors.PhaseHost, errors.KindInstantiation, err, "failed to register host functions")
	}
	return nil
}

// reply writes data as the call's result and stores the status on the stack.
func reply(ctx context.Context, mod guestModule, stack []uint64, status int32, ptrAddr, lenAddr uint32, data []byte) {
	if err := writeResult(ctx, mod, ptrAddr, lenAddr, data); err != nil {
		Logger().Warn("host reply failed", zap.Error(err))
		stack[0] = api.EncodeI32(StatusHostFailure)
		return
	}
	stack[0] = api.EncodeI32(status)
}

// replyErr reports err to the guest as an error message.
func replyErr(ctx context.Context, mod guestModule, stack []uint64, ptrAddr, lenAddr uint32, err error) {
	reply(ctx, mod, stack, StatusError, ptrAddr, lenAddr, []byte(err.Error()))
}

func boundWorld(ctx context.Context, stack []uint64) *world.World {
	w := worldFrom(ctx)
	if w == nil {
		Logger().Error("host call without a bound world")
		stack[0] = api.EncodeI32(StatusHostFailure)
	}
	return w
}

// hostWorldMain handles world_main(out_ptr, out_len).
func hostWorldMain(ctx context.Context, mod guestModule, stack []uint64) {
	outPtr, outLen := uint32(stack[0]), uint32(stack[1])
	w := boundWorld(ctx, stack)
	if w == nil {
		return
	}
	reply(ctx, mod, stack, StatusOK, outPtr, outLen, []byte(w.Main().Text))
}

// hostWorldSource handles world_source(path_ptr, path_len, out_ptr, out_len).
func hostWorldSource(ctx context.Context, mod guestModule, stack []uint64) {
	hostResolve(ctx, mod, stack, world.KindSource)
}

// hostWorldFile handles world_file(path_ptr, path_len, out_ptr, out_len).
func hostWorldFile(ctx context.Context, mod guestModule, stack []uint64) {
	hostResolve(ctx, mod, stack, world.KindAsset)
}

func hostResolve(ctx context.Context, mod guestModule, stack []uint64, kind world.RequestKind) {
	pathPtr, pathLen := uint32(stack[0]), uint32(stack[1])
	outPtr, outLen := uint32(stack[2]), uint32(stack[3])
	w := boundWorld(ctx, stack)
	if w == nil {
		return
	}

	path, err := readString(mod, pathPtr, pathLen)
	if err != nil {
		Logger().Warn("read resolve path", zap.Error(err))
		stack[0] = api.EncodeI32(StatusHostFailure)
		return
	}

	data, err := w.Resolve(world.Request{Kind: kind, Path: rootless(path)})
	if err != nil {
		Logger().Debug("unresolved virtual path", zap.Stringer("kind", kind), zap.String("path", path))
		replyErr(ctx, mod, stack, outPtr, outLen, err)
		return
	}
	reply(ctx, mod, stack, StatusOK, outPtr, outLen, data)
}

// hostWorldFont handles world_font(index, out_ptr, out_len).
func hostWorldFont(ctx context.Context, mod guestModule, stack []uint64) {
	index := int(api.DecodeI32(stack[0]))
	outPtr, outLen := uint32(stack[1]), uint32(stack[2])
	w := boundWorld(ctx, stack)
	if w == nil {
		return
	}
	data, err := w.Font(index)
	if err != nil {
		// The compiler only asks for slots of the book it was given.
		Logger().Error("font contract violation", zap.Int("index", index), zap.Error(err))
		replyErr(ctx, mod, stack, outPtr, outLen, err)
		return
	}
	reply(ctx, mod, stack, StatusOK, outPtr, outLen, data)
}

// hostWorldToday handles world_today(offset, has_offset, out).
func hostWorldToday(ctx context.Context, mod guestModule, stack []uint64) {
	offset := int(int64(stack[0]))
	hasOffset := api.DecodeI32(stack[1]) != 0
	out := uint32(stack[2])
	w := boundWorld(ctx, stack)
	if w == nil {
		return
	}

	var (
		d  world.Date
		ok bool
	)
	if hasOffset {
		d, ok = w.Today(&offset)
	} else {
		d, ok = w.Today(nil)
	}
	if !ok {
		// The guest reads this as no date.
		stack[0] = api.EncodeI32(StatusError)
		return
	}

	buf := make([]byte, 12)
	binary.LittleEndian.PutUint32(buf[0:], uint32(int32(d.Year)))
	binary.LittleEndian.PutUint32(buf[4:], uint32(d.Month))
	binary.LittleEndian.PutUint32(buf[8:], uint32(d.Day))
	if !mod.Memory().Write(out, buf) {
		stack[0] = api.EncodeI32(StatusHostFailure)
		return
	}
	stack[0] = api.EncodeI32(StatusOK)
}

// hostWorldBook handles world_book(out_ptr, out_len).
func hostWorldBook(ctx context.Context, mod guestModule, stack []uint64) {
	w := boundWorld(ctx, stack)
	if w == nil {
		return
	}
	replyJSON(ctx, mod, stack, w.Book())
}

// hostWorldLibrary handles world_library(out_ptr, out_len).
func hostWorldLibrary(ctx context.Context, mod guestModule, stack []uint64) {
	w := boundWorld(ctx, stack)
	if w == nil {
		return
	}
	replyJSON(ctx, mod, stack, w.Library())
}

func replyJSON(ctx context.Context, mod guestModule, stack []uint64, v any) {
	outPtr, outLen := uint32(stack[0]), uint32(stack[1])
	data, err := json.Marshal(v)
	if err != nil {
		replyErr(ctx, mod, stack, outPtr, outLen, err)
		return
	}
	reply(ctx, mod, stack, StatusOK, outPtr, outLen, data)
}
