package txn

import "fmt"

// TxnError reports a transaction state violation: committing or rolling
// back with no active transaction, referencing an unknown checkpoint, and
// the like. It never wraps file I/O failures — those are plain wrapped
// errors from the stage/apply/finalize phases.
type TxnError struct {
	Checkpoint string
	Message    string
}

func (e *TxnError) Error() string {
	if e.Checkpoint != "" {
		return fmt.Sprintf("txn: checkpoint %q: %s", e.Checkpoint, e.Message)
	}
	return fmt.Sprintf("txn: %s", e.Message)
}
