package model

import "time"

// EndOfTime is the sentinel deletion time of an active resource. A resource
// with DeletionTime == EndOfTime has never been deleted or scheduled for
// deletion.
var EndOfTime = time.Date(9999, 12, 31, 23, 59, 59, 0, time.UTC)
