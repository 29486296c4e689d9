package marketdata

import (
	"fmt"
	"strings"
)

// ConnectionError wraps a gateway transport failure. It is propagated
// up for the gateway boundary to retry; the core never treats it as a
// data error.
type ConnectionError struct {
	Op   string
	Code string
	Err  error
}

func (e *ConnectionError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("gateway %s for %s: %v", e.Op, e.Code, e.Err)
	}
	return fmt.Sprintf("gateway %s: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// ValidationError is a hard structural violation — negative price,
// broken OHLC ordering, wrong shape. It aborts the specific write but
// never a whole batch.
type ValidationError struct {
	Code       string
	SeriesType SeriesType
	Reasons    []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for %s/%s: %s",
		e.SeriesType, e.Code, strings.Join(e.Reasons, "; "))
}

// StorageError wraps a disk or metadata failure on persist/load. It
// carries the failing path so a caller can locate the bad slice.
type StorageError struct {
	Op   string
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
