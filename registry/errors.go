package registry

import "errors"

// ErrPermissionDenied is returned by Client.Bind when the client lacks
// the execute permission required to bind a global, spec.md §4.10 and
// original_source's PW_PERM_X gate on method calls.
var ErrPermissionDenied = errors.New("registry: permission denied")
