// Package txn implements the engine's transaction manager: an in-memory log
// of table operations that is staged to temp files, applied against those
// temp files, and only then swapped in to replace the live data files. A
// transaction that fails while staging or applying leaves every live .db
// file untouched; index files, which the table operations write in place
// during apply, are not restored.
package txn

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/RecDB/recdb/internal/catalog"
	"github.com/RecDB/recdb/internal/table"
)

// OperationKind identifies what kind of table mutation a LogEntry records.
type OperationKind string

const (
	OpInsert OperationKind = "INSERT"
	OpUpdate OperationKind = "UPDATE"
	OpDelete OperationKind = "DELETE"
)

// LogEntry is one queued table mutation. Fields not relevant to Kind are
// left zero; this is a tagged record rather than a union of per-column
// optional fields.
type LogEntry struct {
	Kind        OperationKind
	Table       string
	Column      string
	Values      []string
	WhereClause string
	Checkpoint  string
}

// Options configures how a Transaction narrates its work and finalizes a
// commit. Out defaults to io.Discard. KeepBackups, when true, leaves each
// affected table's pre-commit ".bak" file on disk after a successful
// commit instead of removing it.
type Options struct {
	Out         io.Writer
	KeepBackups bool
}

func (o Options) out() io.Writer {
	if o.Out == nil {
		return io.Discard
	}
	return o.Out
}

// Transaction is an in-memory log of table operations bound to a single
// database, plus a set of named checkpoints marking positions in that log.
// Nothing is written to disk until Commit (or CommitToCheckpoint) runs.
type Transaction struct {
	session Session
	opts    Options

	active            bool
	log               []LogEntry
	checkpoints       map[string]int
	currentCheckpoint string
}

// Session names where a Transaction's tables live: the same catalog session
// the rest of the engine uses to resolve table names to files.
type Session = catalog.Session

// New creates a Transaction bound to session. It starts with no active
// transaction; call Begin before logging operations.
func New(session Session, opts Options) *Transaction {
	return &Transaction{session: session, opts: opts, checkpoints: map[string]int{}}
}

// Begin starts a transaction, discarding any prior log and checkpoints.
// Calling Begin while already active is a no-op that reports the conflict.
func (tx *Transaction) Begin() error {
	if tx.active {
		return &TxnError{Message: "transaction already in progress"}
	}
	tx.log = nil
	tx.checkpoints = map[string]int{}
	tx.currentCheckpoint = ""
	tx.active = true
	fmt.Fprintln(tx.opts.out(), "Transaction started.")
	return nil
}

// InTransaction reports whether a transaction is currently active.
func (tx *Transaction) InTransaction() bool {
	return tx.active
}

// AddInsert logs an INSERT to be applied on Commit.
func (tx *Transaction) AddInsert(tableName string, values []string) error {
	if !tx.active {
		return &TxnError{Message: "no active transaction to log INSERT"}
	}
	tx.log = append(tx.log, LogEntry{
		Kind:       OpInsert,
		Table:      tableName,
		Values:     values,
		Checkpoint: tx.currentCheckpoint,
	})
	fmt.Fprintf(tx.opts.out(), "Logged INSERT on table %s\n", tableName)
	return nil
}

// AddUpdate logs an UPDATE to be applied on Commit.
func (tx *Transaction) AddUpdate(tableName, column, newValue, whereClause string) error {
	if !tx.active {
		return &TxnError{Message: "no active transaction to log UPDATE"}
	}
	tx.log = append(tx.log, LogEntry{
		Kind:        OpUpdate,
		Table:       tableName,
		Column:      column,
		Values:      []string{newValue},
		WhereClause: whereClause,
		Checkpoint:  tx.currentCheckpoint,
	})
	fmt.Fprintf(tx.opts.out(), "Logged UPDATE on %s where %s\n", tableName, whereClause)
	return nil
}

// AddDelete logs a DELETE to be applied on Commit.
func (tx *Transaction) AddDelete(tableName, whereClause string) error {
	if !tx.active {
		return &TxnError{Message: "no active transaction to log DELETE"}
	}
	tx.log = append(tx.log, LogEntry{
		Kind:        OpDelete,
		Table:       tableName,
		WhereClause: whereClause,
		Checkpoint:  tx.currentCheckpoint,
	})
	fmt.Fprintf(tx.opts.out(), "Logged DELETE from %s where %s\n", tableName, whereClause)
	return nil
}

func dataPath(dir, name string) string { return filepath.Join(dir, name+".db") }

// prepareTemporaryFiles stage-copies each distinct table touched by entries
// from its live .db file to a .db.temp file, once per table regardless of
// how many entries touch it.
func (tx *Transaction) prepareTemporaryFiles(entries []LogEntry) (map[string]string, error) {
	dir := tx.session.DataDir()
	temps := map[string]string{}
	for _, e := range entries {
		if _, done := temps[e.Table]; done {
			continue
		}
		src := dataPath(dir, e.Table)
		dst := src + ".temp"

		in, err := os.Open(src)
		if err != nil {
			return nil, fmt.Errorf("txn: stage %s: %w", e.Table, err)
		}
		out, err := os.Create(dst)
		if err != nil {
			in.Close()
			return nil, fmt.Errorf("txn: stage %s: %w", e.Table, err)
		}
		_, copyErr := io.Copy(out, in)
		in.Close()
		closeErr := out.Close()
		if copyErr != nil {
			return nil, fmt.Errorf("txn: stage %s: %w", e.Table, copyErr)
		}
		if closeErr != nil {
			return nil, fmt.Errorf("txn: stage %s: %w", e.Table, closeErr)
		}
		temps[e.Table] = dst
	}
	return temps, nil
}

// applyOperations replays entries, in order, against each table's staged
// .temp file (never the live file). The first failing operation aborts the
// whole apply phase without touching the remaining entries.
func (tx *Transaction) applyOperations(entries []LogEntry) error {
	dir := tx.session.DataDir()
	for _, e := range entries {
		tbl, err := table.Load(dir, e.Table, table.Options{})
		if err != nil {
			return fmt.Errorf("txn: load %s for apply: %w", e.Table, err)
		}
		tempPath := dataPath(dir, e.Table) + ".temp"

		switch e.Kind {
		case OpInsert:
			if err := tbl.InsertInto(tempPath, e.Values); err != nil {
				return fmt.Errorf("txn: apply INSERT on %s: %w", e.Table, err)
			}
			fmt.Fprintf(tx.opts.out(), "Applied INSERT on %s\n", e.Table)
		case OpUpdate:
			if _, err := tbl.UpdateInto(tempPath, e.Column, e.Values[0], e.WhereClause); err != nil {
				return fmt.Errorf("txn: apply UPDATE on %s where %s: %w", e.Table, e.WhereClause, err)
			}
			fmt.Fprintf(tx.opts.out(), "Applied UPDATE on %s where %s\n", e.Table, e.WhereClause)
		case OpDelete:
			if _, err := tbl.DeleteWhereInto(tempPath, e.WhereClause); err != nil {
				return fmt.Errorf("txn: apply DELETE from %s where %s: %w", e.Table, e.WhereClause, err)
			}
			fmt.Fprintf(tx.opts.out(), "Applied DELETE from %s where %s\n", e.Table, e.WhereClause)
		default:
			return fmt.Errorf("txn: unknown operation %q in transaction log", e.Kind)
		}
	}
	return nil
}

// finalizeCommit swaps each affected table's staged .temp file in to
// replace its live .db file, backing up the live file first on a best
// effort basis. A rename failure attempts to restore the backup before
// reporting the error.
func (tx *Transaction) finalizeCommit(affectedTables []string) error {
	dir := tx.session.DataDir()
	for _, name := range affectedTables {
		final := dataPath(dir, name)
		temp := final + ".temp"
		backup := final + ".bak"

		if err := copyFile(final, backup); err != nil {
			fmt.Fprintf(tx.opts.out(), "Warning: could not create backup for %s: %v\n", name, err)
		}

		if err := os.Remove(final); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("txn: remove %s: %w", final, err)
		}

		if err := os.Rename(temp, final); err != nil {
			fmt.Fprintf(tx.opts.out(), "Failed to rename temp file to original file: %s -> %s\n", temp, final)
			if restoreErr := copyFile(backup, final); restoreErr != nil {
				fmt.Fprintln(tx.opts.out(), "Failed to restore from backup!")
			} else {
				fmt.Fprintln(tx.opts.out(), "Restored from backup file")
			}
			return fmt.Errorf("txn: rename %s to %s: %w", temp, final, err)
		}

		if !tx.opts.KeepBackups {
			os.Remove(backup)
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, in)
	return err
}

func cleanupTemporaryFiles(temps map[string]string) {
	for _, path := range temps {
		os.Remove(path)
	}
}

func affectedTables(entries []LogEntry) []string {
	seen := map[string]bool{}
	var names []string
	for _, e := range entries {
		if !seen[e.Table] {
			seen[e.Table] = true
			names = append(names, e.Table)
		}
	}
	return names
}

// Commit stages, applies, and swaps in every logged operation. A failure at
// any phase rolls the transaction back (discarding the log). A staging or
// apply failure leaves every live .db file untouched; a swap failure leaves
// the tables swapped before the failing one with their new contents.
func (tx *Transaction) Commit() error {
	if !tx.active {
		return &TxnError{Message: "no transaction to commit"}
	}

	temps, err := tx.prepareTemporaryFiles(tx.log)
	if err != nil {
		cleanupTemporaryFiles(temps)
		tx.Rollback()
		return err
	}

	if err := tx.applyOperations(tx.log); err != nil {
		fmt.Fprintln(tx.opts.out(), "Transaction failed during operation application. Rolling back.")
		cleanupTemporaryFiles(temps)
		tx.Rollback()
		return err
	}

	if err := tx.finalizeCommit(affectedTables(tx.log)); err != nil {
		fmt.Fprintln(tx.opts.out(), "Transaction failed during commit phase. Rolling back.")
		cleanupTemporaryFiles(temps)
		tx.Rollback()
		return err
	}

	tx.log = nil
	tx.checkpoints = map[string]int{}
	tx.currentCheckpoint = ""
	tx.active = false
	fmt.Fprintln(tx.opts.out(), "Transaction committed successfully.")
	return nil
}

// Rollback discards the log and any checkpoints. It performs no file I/O:
// nothing was ever written to a live file to begin with.
func (tx *Transaction) Rollback() error {
	if !tx.active {
		return &TxnError{Message: "no transaction to rollback"}
	}
	tx.log = nil
	tx.checkpoints = map[string]int{}
	tx.currentCheckpoint = ""
	tx.active = false
	fmt.Fprintln(tx.opts.out(), "Transaction rolled back completely.")
	return nil
}

// CreateCheckpoint marks the current log position under checkpointID, so a
// later RollbackToCheckpoint or CommitToCheckpoint can refer back to it.
func (tx *Transaction) CreateCheckpoint(checkpointID string) error {
	if !tx.active {
		return &TxnError{Message: "no active transaction for creating checkpoint"}
	}
	if checkpointID == "" {
		return &TxnError{Message: "checkpoint ID cannot be empty"}
	}
	if _, exists := tx.checkpoints[checkpointID]; exists {
		return &TxnError{Checkpoint: checkpointID, Message: "already exists"}
	}
	tx.checkpoints[checkpointID] = len(tx.log)
	tx.currentCheckpoint = checkpointID
	fmt.Fprintf(tx.opts.out(), "Created checkpoint %q at position %d\n", checkpointID, len(tx.log))
	return nil
}

// RollbackToCheckpoint discards every log entry logged after checkpointID
// was created, along with every checkpoint at a later log position.
// Checkpoints created at the same position are kept.
func (tx *Transaction) RollbackToCheckpoint(checkpointID string) error {
	if !tx.active {
		return &TxnError{Message: "no active transaction for rollback to checkpoint"}
	}
	pos, ok := tx.checkpoints[checkpointID]
	if !ok {
		return &TxnError{Checkpoint: checkpointID, Message: "does not exist"}
	}
	if pos < len(tx.log) {
		tx.log = tx.log[:pos]
	}
	for id, p := range tx.checkpoints {
		if p > pos {
			delete(tx.checkpoints, id)
		}
	}
	tx.currentCheckpoint = checkpointID
	fmt.Fprintf(tx.opts.out(), "Rolled back to checkpoint %q\n", checkpointID)
	return nil
}

// CommitToCheckpoint stages, applies, and swaps in only the log entries
// recorded before checkpointID, then removes them from the log and shifts
// every remaining checkpoint's position back accordingly. The transaction
// stays active afterward with any entries logged after the checkpoint still
// pending.
func (tx *Transaction) CommitToCheckpoint(checkpointID string) error {
	if !tx.active {
		return &TxnError{Message: "no active transaction for commit to checkpoint"}
	}
	pos, ok := tx.checkpoints[checkpointID]
	if !ok {
		return &TxnError{Checkpoint: checkpointID, Message: "does not exist"}
	}

	entries := append([]LogEntry(nil), tx.log[:pos]...)

	temps, err := tx.prepareTemporaryFiles(entries)
	if err != nil {
		cleanupTemporaryFiles(temps)
		return fmt.Errorf("txn: checkpoint commit failed: %w", err)
	}

	if err := tx.applyOperations(entries); err != nil {
		fmt.Fprintln(tx.opts.out(), "Checkpoint commit failed during operation application.")
		cleanupTemporaryFiles(temps)
		return err
	}

	if err := tx.finalizeCommit(affectedTables(entries)); err != nil {
		fmt.Fprintln(tx.opts.out(), "Checkpoint commit failed during finalization.")
		cleanupTemporaryFiles(temps)
		return err
	}

	tx.log = tx.log[pos:]
	for id, p := range tx.checkpoints {
		if p > pos {
			tx.checkpoints[id] = p - pos
		} else {
			tx.checkpoints[id] = 0
		}
	}
	fmt.Fprintf(tx.opts.out(), "Committed to checkpoint %q\n", checkpointID)
	return nil
}

// HasCheckpoint reports whether checkpointID names an existing checkpoint.
func (tx *Transaction) HasCheckpoint(checkpointID string) bool {
	_, ok := tx.checkpoints[checkpointID]
	return ok
}

// ListCheckpoints returns the names of every checkpoint currently set, in
// no particular order.
func (tx *Transaction) ListCheckpoints() []string {
	names := make([]string, 0, len(tx.checkpoints))
	for id := range tx.checkpoints {
		names = append(names, id)
	}
	return names
}

