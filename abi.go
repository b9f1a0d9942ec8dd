package typst

// Typst reactor exports
const (
	// ExportCompile compiles the main document of the bound world.
	// Signature: typst_compile(out_ptr: i32, out_len: i32) -> i32
	// Returns: a document handle, or 0 on failure with the diagnostics
	// written as a guest-allocated buffer to out_ptr/out_len.
	ExportCompile = "typst_compile"

	// ExportPageCount returns the number of pages of a document.
	// Signature: typst_page_count(doc: i32) -> i32
	ExportPageCount = "typst_page_count"

	// ExportPDF serializes a document to PDF.
	// Signature: typst_export_pdf(doc: i32, out_ptr: i32, out_len: i32) -> i32
	// Returns: 0 on success, non-zero with an error message in out.
	ExportPDF = "typst_export_pdf"

	// ExportRenderPage rasterizes one page to premultiplied RGBA8 pixels.
	// Signature: typst_render_page(doc: i32, page: i32, scale: f32, bg: i32,
	//   dims: i32, out_ptr: i32, out_len: i32) -> i32
	// bg is 0xRRGGBBAA. dims receives width and height as two u32.
	ExportRenderPage = "typst_render_page"

	// ExportSVG serializes one page to SVG.
	// Signature: typst_export_svg(doc: i32, page: i32, out_ptr: i32, out_len: i32) -> i32
	ExportSVG = "typst_export_svg"

	// ExportDocumentFree releases a document handle.
	// Signature: typst_document_free(doc: i32) -> void
	ExportDocumentFree = "typst_document_free"
)

// Memory management exports
const (
	// ExportMalloc allocates memory in WASM linear memory.
	// Signature: malloc(size: i32) -> i32 (pointer)
	ExportMalloc = "malloc"

	// ExportFree frees memory in WASM linear memory.
	// Signature: free(ptr: i32) -> void
	ExportFree = "free"
)

// requiredExports must all be present in the engine module.
var requiredExports = []string{
	ExportMalloc,
	ExportFree,
	ExportCompile,
	ExportPageCount,
	ExportPDF,
	ExportRenderPage,
	ExportSVG,
	ExportDocumentFree,
}

// Host import module through which the compiler queries its world.
// Every function writing a result takes (out_ptr: i32, out_len: i32) last
// and returns a status: StatusOK, StatusError with a message as the result,
// or StatusHostFailure.
const (
	// ImportModuleTypst is the import module name for world host functions.
	ImportModuleTypst = "typst"

	// ImportWorldMain returns the main document text.
	// Signature: world_main(out_ptr, out_len) -> i32
	ImportWorldMain = "world_main"

	// ImportWorldSource resolves an importable source by virtual path.
	// Signature: world_source(path_ptr, path_len, out_ptr, out_len) -> i32
	ImportWorldSource = "world_source"

	// ImportWorldFile resolves a binary file by virtual path.
	// Signature: world_file(path_ptr, path_len, out_ptr, out_len) -> i32
	ImportWorldFile = "world_file"

	// ImportWorldFont returns the data of a font catalog slot.
	// Signature: world_font(index, out_ptr, out_len) -> i32
	ImportWorldFont = "world_font"

	// ImportWorldToday writes year, month and day as three u32 to out.
	// Returns StatusError, leaving out untouched, when the date cannot be
	// represented.
	// Signature: world_today(offset: i64, has_offset: i32, out: i32) -> i32
	ImportWorldToday = "world_today"

	// ImportWorldBook returns the font book as JSON.
	// Signature: world_book(out_ptr, out_len) -> i32
	ImportWorldBook = "world_book"

	// ImportWorldLibrary returns the library table as JSON.
	// Signature: world_library(out_ptr, out_len) -> i32
	ImportWorldLibrary = "world_library"
)

// Host function status codes.
const (
	StatusOK          int32 = 0
	StatusError       int32 = 1
	StatusHostFailure int32 = -1
)
