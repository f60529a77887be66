// Package hdl32e owns the Velodyne HDL-32E packet formats used by the
// emulator.
//
// Responsibilities: decoding raster scan frames into measurement blocks,
// encoding 12-column firing groups into 1206-byte data packets, and
// supplying the constant 512-byte position packet. Everything here is pure
// byte manipulation; framing and capture files live in the network package.
package hdl32e
