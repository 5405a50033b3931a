package query

import "fmt"

// QueryError wraps a failure inside one query execution with the mode and
// project it happened under.
type QueryError struct {
	Mode      Mode
	ProjectID string
	Op        string
	Err       error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("%s query failed for project %s during %s: %v",
		e.Mode, e.ProjectID, e.Op, e.Err)
}

func (e *QueryError) Unwrap() error {
	return e.Err
}
