// Package barcode wraps the gozxing symbology readers behind a small
// Decoder interface.
//
// A Decoder is stateful between Reset calls and must not be used from two
// goroutines at once. The scan scheduler serializes access per session, so
// each session owns exactly one Decoder.
package barcode
