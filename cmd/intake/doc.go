// Package main hosts the intake CLI entrypoint and command graph.
//
// Commands resolve configuration once, then talk to the running daemon over
// its HTTP control API. Only `daemon` and `config` work without a daemon.
package main
