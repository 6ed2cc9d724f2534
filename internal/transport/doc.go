// Package transport serves the register bank as a Modbus TCP slave.
//
// Server wraps a simonvetter/modbus server whose request handler reads and
// writes holding registers straight from a registers.Bank. Coils, discrete
// inputs and input registers are not served.
package transport
