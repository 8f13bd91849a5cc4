package orm

import "github.com/tinywasm/fmt"

func validate(q Query) error {
	if q.Table == "" {
		return ErrEmptyTable
	}

	if q.Action == ActionCreate || q.Action == ActionUpdate {
		if len(q.Columns) != len(q.Values) {
			return fmt.Err(ErrValidation, "columns and values length mismatch")
		}
		if len(q.Columns) == 0 && q.Action == ActionUpdate {
			return fmt.Err(ErrValidation, "update without columns")
		}
	}

	if (q.Action == ActionUpdate || q.Action == ActionDelete) && len(q.Conditions) == 0 {
		return fmt.Err(ErrValidation, "write without conditions")
	}

	return nil
}
