// Package iouring implements the transport.Verbs contract on top of Linux
// io_uring, grounded on ehrlich-b-go-ublk's internal/uring package: a small
// Ring interface hides the real io_uring bindings behind a build tag, with
// a stub returning ErrNotSupported in default builds (the real bindings
// need a `giouring`-tagged build on a Linux host with a recent kernel).
package iouring
