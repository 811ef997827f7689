package feed

import (
	"github.com/pkg/errors"
)

var (
	ErrLoading     = errors.New("fetch is already in progress")
	ErrUnknownFeed = errors.New("unknown feed")
	ErrStale       = errors.New("feed has been reset since the fetch started")
	ErrClosed      = errors.New("tracker is closed")
	ErrNotFound    = errors.New("not found")
)

// DefaultMessage is shown when there is nothing better to say.
const DefaultMessage = "Could not retrieve Reddit data."
