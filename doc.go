/*
Package hotlib reloads native code modules in a running process.

A [Reloader] watches a compiled dynamic library and, when the build output
changes, closes the old version and opens the new one without restarting the
host. A [Module] wraps a Reloader with an update goroutine and a [Notifier]
so call sites get a coordinated window to persist and restore state across
the swap.

# Underwater

 1. The watched build output is never opened directly. Every load copies it
    to a private versioned file first, so a rebuild can freely overwrite the
    original and platforms that lock an open library file are not upset.
 2. Change detection is debounced and gated on a content hash. Duplicate
    events and the reloader's own copy step produce no signals.
 3. Before a swap every [Observer] receives AboutToReload carrying a
    [BlockReload] token. The swap waits until all tokens are released, which
    gives subscribers time to serialize state while the old code is still
    loaded.

# Notes

 1. Symbol lookup is unsafe by nature. The caller asserts that the requested
    call signature matches the actual export, this package can not verify it.
 2. A BlockReload token must be released on every path that receives one.
    There are no destructors, a leaked token blocks the update loop forever.
 3. If closing the old version succeeds but loading the new one fails, the
    process keeps running with no library loaded and lookups return
    [ErrNotLoaded] until the next successful reload.
 4. The handshake only covers code that waits for AboutToReload. Calls
    already on the stack when a swap begins are the caller's problem.

# Backends

The default backend opens platform dynamic libraries (.so, .dylib, .dll)
through dlopen or LoadLibrary. [GoObjOpener] instead links relocatable Go
object files via [goloader], which lets the same reload machinery hot-swap
modules written in Go.

# Samples

See the tests.

[goloader]: https://github.com/pkujhd/goloader
*/
package hotlib
