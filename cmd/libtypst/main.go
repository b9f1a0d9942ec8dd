// Command libtypst builds the Typst engine as a C shared library:
//
//	go build -buildmode=c-shared -o libtypst.so ./cmd/libtypst
//
// Every returned string is allocated with malloc and must be released with
// TypstFree. The engine is loaded on the first call from the configuration
// file named by TYPST_WASI_CONFIG.
package main

/*
#include <stdlib.h>
*/
import "C"

import (
	"context"
	"unsafe"
)

func goString(s *C.char) *string {
	if s == nil {
		return nil
	}
	v := C.GoString(s)
	return &v
}

func call(mainB64, format, images, templates *C.char) (string, int) {
	res := defaultService.invoke(context.Background(), [4]*string{
		goString(mainB64),
		goString(format),
		goString(images),
		goString(templates),
	})
	return res.String(), int(res.Status())
}

// TypstCreate compiles a document and returns the encoded output, or a
// diagnostic starting with "Compilation Failed: ".
//
//export TypstCreate
func TypstCreate(mainB64, format, images, templates *C.char) *C.char {
	out, _ := call(mainB64, format, images, templates)
	return C.CString(out)
}

// TypstCompile is TypstCreate with the outcome class stored in status:
// zero on success, non-zero on failure.
//
//export TypstCompile
func TypstCompile(mainB64, format, images, templates *C.char, status *C.int) *C.char {
	out, code := call(mainB64, format, images, templates)
	if status != nil {
		*status = C.int(code)
	}
	return C.CString(out)
}

// TypstFree releases a string returned by this library.
//
//export TypstFree
func TypstFree(s *C.char) {
	C.free(unsafe.Pointer(s))
}

func main() {}
