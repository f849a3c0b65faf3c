package replay

import "errors"

// ErrInvalidOrdering is returned when journal entries are not in sequence order.
var ErrInvalidOrdering = errors.New("journal entries are not in sequence order")
