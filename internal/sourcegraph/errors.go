package sourcegraph

import "errors"

// ErrInvalidArgument is returned by FetchContent when the repository or
// path does not exist on the backend.
var ErrInvalidArgument = errors.New("the given path or repository does not exist")
