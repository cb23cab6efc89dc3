// Package compinfo renders the compilation-info ring buffer found in a
// stopped or crashed process.
//
// The buffer is a fixed-capacity array of entries that the target overwrites
// in a circle, plus the index of the most recently written slot. Slots that
// were never written have a zero start address. A RingBuffer turns that raw
// layout back into the logical list of entries, oldest first, and
// FormatEntry renders one entry as a ("name", 0xstart, size) tuple.
//
// Reading the buffer out of process memory is not done here. A Decoder
// supplied by the caller (see package corefile) turns opaque Objects into
// Entry values, and a Dispatcher routes each Object to the right Printer
// based on its type name.
package compinfo
