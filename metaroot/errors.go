package metaroot

import "errors"

// Errors returned while locating and parsing a metadata root.
var (
	ErrInvalidSignature = errors.New("metaroot: invalid metadata root signature")
	ErrTruncated        = errors.New("metaroot: metadata root is truncated")
	ErrStreamRange      = errors.New("metaroot: stream lies outside the metadata root")
	ErrNoCLIHeader      = errors.New("metaroot: image has no CLI header")
	ErrRVA              = errors.New("metaroot: RVA is not mapped by any section")
	ErrStreamName       = errors.New("metaroot: invalid stream name")
)
