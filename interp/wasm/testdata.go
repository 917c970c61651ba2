package wasm

// Hand-assembled rule modules. Each exports "memory" (1 page) and
// decide (func (param i32 i32) (result i32)).

var moduleHeader = []byte{
	0x00, 0x61, 0x73, 0x6d, // WASM_BINARY_MAGIC
	0x01, 0x00, 0x00, 0x00, // WASM_BINARY_VERSION
	// Type section
	0x01, 0x07, // section id, section size
	0x01,                               // number of types
	0x60, 0x02, 0x7f, 0x7f, 0x01, 0x7f, // (func (param i32 i32) (result i32))
	// Function section
	0x03, 0x02, // section id, section size
	0x01, // number of functions
	0x00, // function 0, type 0
	// Memory section
	0x05, 0x03, // section id, section size
	0x01,       // number of memories
	0x00, 0x01, // memory 0: min=1 page
	// Export section
	0x07, 0x13, // section id, section size (19 bytes)
	0x02,                                                 // number of exports
	0x06, 0x6d, 0x65, 0x6d, 0x6f, 0x72, 0x79, 0x02, 0x00, // export "memory"
	0x06, 0x64, 0x65, 0x63, 0x69, 0x64, 0x65, 0x00, 0x00, // export "decide"
}

func withCode(code ...byte) []byte {
	out := make([]byte, 0, len(moduleHeader)+len(code))
	out = append(out, moduleHeader...)
	return append(out, code...)
}

// titForTatModule returns the last history byte, or 0 for an empty history.
var titForTatModule = withCode(
	0x0a, 0x18, // code section, size 24
	0x01,       // number of functions
	0x16,       // function body size (22 bytes)
	0x00,       // number of local declarations
	0x20, 0x01, // local.get 1
	0x45,       // i32.eqz
	0x04, 0x7f, // if (result i32)
	0x41, 0x00, // i32.const 0
	0x05,       // else
	0x20, 0x00, // local.get 0
	0x20, 0x01, // local.get 1
	0x6a,       // i32.add
	0x41, 0x01, // i32.const 1
	0x6b,             // i32.sub
	0x2d, 0x00, 0x00, // i32.load8_u align=0 offset=0
	0x0b, // end if
	0x0b, // end
)

// trapModule hits unreachable on every call.
var trapModule = withCode(
	0x0a, 0x05, // code section, size 5
	0x01, // number of functions
	0x03, // function body size
	0x00, // number of local declarations
	0x00, // unreachable
	0x0b, // end
)

// spinModule never returns.
var spinModule = withCode(
	0x0a, 0x0b, // code section, size 11
	0x01,       // number of functions
	0x09,       // function body size
	0x00,       // number of local declarations
	0x03, 0x40, // loop
	0x0c, 0x00, // br 0
	0x0b,       // end loop
	0x41, 0x00, // i32.const 0
	0x0b, // end
)

// TitForTatModule returns a rule module that mirrors the opponent.
func TitForTatModule() []byte {
	return titForTatModule
}
