// Package kernelsocket is the "Catnap"-style transport adapter: it drives
// ordinary POSIX sockets in non-blocking mode and is the default, most
// portable backend for the LibOS façade.
package kernelsocket
