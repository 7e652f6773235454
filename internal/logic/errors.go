package logic

import "errors"

// ErrNilStore is returned when a required store dependency is nil.
var ErrNilStore = errors.New("store is nil")
