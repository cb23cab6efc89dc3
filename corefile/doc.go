// Package corefile reads typed values out of ELF core dump files.
//
// A Program is the memory image of a crashed or stopped process: the
// writable segments dumped into the core file, backed by the read-only
// segments and DWARF debug info of the executable that produced it. Global
// variables are found through the DWARF and are named with their C++
// qualified names, e.g., "JSC::Options::s_compilationInfo".
//
// A Value describes a value in memory. Values are typed; the supported types
// are the C numeric types, pointers, fixed-size arrays, and structs and
// classes. Everything else is an OpaqueType that can be addressed but not
// decoded.
//
// Decoder connects a Program to package compinfo: it implements
// compinfo.Decoder for Values, using a Layout to find the ring's fields.
//
// Currently unsupported:
//
// * Core files in formats other than Linux/ELF, and big-endian machines
//
// * Shared libraries. Only the DWARF and segments of the main executable
// are loaded, so a ring defined in a library (for example JavaScriptCore
// linked into libWPEWebKit or libQt5WebKit) is not found unless the build
// links it statically. The NT_FILE note that lists mapped libraries is not
// read
//
// * Thread-local variables and DWARF 5 DW_OP_addrx locations
//
// * Base-class subobjects; only members declared directly in a class are
// visible as fields
package corefile
