// Package typst runs a Typst compiler built as a WASI reactor under wazero
// and serves its world queries from an in-memory world.World.
//
// The compiled module is shared; every compilation instantiates its own
// guest and binds its World through the call context, so concurrent
// compilations share no guest state:
//
//	r := wazero.NewRuntime(ctx)
//	defer r.Close(ctx)
//
//	eng, err := typst.NewEngine(ctx, r, wasm, nil)
//	if err != nil {
//		return err
//	}
//	res := gateway.Invoke(ctx, eng, gateway.Request{
//		Main:   base64.StdEncoding.EncodeToString(src),
//		Format: "pdf",
//	}, nil)
//
// The reactor's exports and the host imports it links against are listed in
// abi.go.
package typst
