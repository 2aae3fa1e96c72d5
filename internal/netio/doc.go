// Package netio provides the UDP socket transport ESP datagrams travel
// over, and the receive loop that demultiplexes inbound datagrams by SPI
// to internal/sa's security association directory.
package netio
