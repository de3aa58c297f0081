/*
Package server provides HTTP/HTTPS listener lifecycle management:
non-blocking startup, graceful shutdown, and OS signal handling.

# Overview

Manager wraps net/http.Server to unify listen, serve, shutdown, and error
propagation. It supports both plain HTTP and TLS startup, with built-in
SIGINT/SIGTERM handling for production shutdown.

# Core types

  - Manager: holds the http.Server, its net.Listener, and an async error
    channel; exposes Start/StartTLS/Shutdown/WaitForShutdown.
  - Config: listener address, read/write/idle timeouts, max header size,
    and graceful shutdown timeout.

# Capabilities

  - Non-blocking startup: Start/StartTLS run the server in a background
    goroutine; the caller never blocks.
  - Graceful shutdown: Shutdown drains in-flight requests and releases
    connections within the configured timeout.
  - Signal handling: WaitForShutdown listens for SIGINT/SIGTERM and
    triggers graceful shutdown automatically.
  - Error propagation: Errors() returns an async channel callers can
    monitor for listener failures.
  - TLS support: StartTLS takes certificate and key file paths.
  - Status queries: IsRunning reports false only once Shutdown has run
    (a new Manager reports true before Start); Addr returns the
    configured listen address.
*/
package server
