package importing

// StageResult reports how rows reached the staging table.
type StageResult struct {
	Rows          int64
	InvalidRows   int64
	Strategy      string
	RowsPerSecond float64
}

// ValidationResult carries exact counts plus a capped list of row errors.
type ValidationResult struct {
	Valid   int64
	Invalid int64
	Errors  []ImportFailure
}

// UpsertResult counts target rows by outcome. Duplicates are valid staged
// rows collapsed onto a later row with the same natural key.
type UpsertResult struct {
	Inserted   int64
	Updated    int64
	Duplicates int64
}

// StageRequest describes one staging run. Open must return a fresh reader
// positioned at the first row; it may be called again when a load path has
// to restart. OnRow receives the running count of staged rows and, when the
// reader implements RowEstimator, its current guess of the total.
type StageRequest struct {
	JobID  string
	Schema *Schema
	// Parent, when set, overrides ParentField on every row.
	Parent string
	Open   func() (RowReader, error)
	OnRow  func(staged, estimated int64)
}
