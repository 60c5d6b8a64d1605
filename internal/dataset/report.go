package dataset

import (
	"errors"
	"fmt"
)

// Report renders the outcome of Validate or ValidateFile for display.
func Report(path string, count int, err error) string {
	if err == nil {
		return fmt.Sprintf("%s: valid, %d records", path, count)
	}

	var verr *ValidationError
	if errors.As(err, &verr) {
		return fmt.Sprintf("%s: invalid at line %d: %s", path, verr.Line, verr.Reason)
	}
	return fmt.Sprintf("%s: %v", path, err)
}
