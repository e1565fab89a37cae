// Package xdp sketches an AF_XDP transport adapter: a NIC-attached UMEM
// ring pinned to a fixed-size registered memory region, with separate
// fill/completion/rx/tx rings. None of the example repos or the Rust
// reference implementation (catpowder/win/ring/umemreg.rs) carry a working
// driver binding — both are license-header-only stubs — so this package
// documents the verb surface and wires it to buffer.Umem for the memory
// model without attempting a live bpf/xsk_socket syscall path.
package xdp
