package expense

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"go.etcd.io/bbolt"
)

const (
	expenseBucketName  = "expenses"
	documentBucketName = "documents"
	reportBucketName   = "reports"
	pendingBucketName  = "pending"
)

// DB defines the interface for database operations
type DB interface {
	// InsertExpense appends an expense, assigning its Seq. A non-empty
	// documentKey is recorded in the document number index in the same transaction.
	// Every attachment must be a pending upload; it stops being pending.
	InsertExpense(expense *Expense, documentKey string) error

	// AddPending records uploaded files that wait for review
	AddPending(filenames []string) error

	// RemovePending forgets pending uploads and returns the ones that were pending
	RemovePending(filenames []string) ([]string, error)

	// GetExpense retrieves an expense by ID
	GetExpense(id string) (*Expense, error)

	// ListExpenses returns all expenses in insertion order
	ListExpenses() ([]*Expense, error)

	// DeleteExpense removes an expense and its document number index entries
	DeleteExpense(id string) error

	// ClearExpenses removes every expense and the document number index
	ClearExpenses() error

	// DocumentNumbers returns the normalized document numbers of accepted expenses
	DocumentNumbers() (map[string]bool, error)

	// SaveReport saves report metadata
	SaveReport(report *ReportRecord) error

	// GetReport retrieves report metadata by ID
	GetReport(id string) (*ReportRecord, error)

	// ListReports returns all reports ordered by number
	ListReports() ([]*ReportRecord, error)

	// Close closes the database connection
	Close() error
}

// BoltDB implements the DB interface using BoltDB
type BoltDB struct {
	db *bbolt.DB
}

// NewBoltDB opens the database file and creates the buckets
func NewBoltDB(path string) (*BoltDB, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{expenseBucketName, documentBucketName, reportBucketName, pendingBucketName} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BoltDB{db: db}, nil
}

// Handle exposes the underlying database so other repositories can share the file
func (b *BoltDB) Handle() *bbolt.DB {
	return b.db
}

// InsertExpense appends an expense
func (b *BoltDB) InsertExpense(expense *Expense, documentKey string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		pending := tx.Bucket([]byte(pendingBucketName))
		for _, a := range expense.Attachments {
			if pending.Get([]byte(a.Filename)) == nil {
				return fmt.Errorf("%w: attachment %q is not a pending upload", ErrInvalidExpense, a.Filename)
			}
			if err := pending.Delete([]byte(a.Filename)); err != nil {
				return err
			}
		}

		bucket := tx.Bucket([]byte(expenseBucketName))
		seq, err := bucket.NextSequence()
		if err != nil {
			return fmt.Errorf("allocating sequence: %w", err)
		}
		expense.Seq = seq

		data, err := json.Marshal(expense)
		if err != nil {
			return fmt.Errorf("marshaling expense: %w", err)
		}
		if err := bucket.Put([]byte(expense.ID), data); err != nil {
			return err
		}
		if documentKey == "" {
			return nil
		}
		return tx.Bucket([]byte(documentBucketName)).Put([]byte(documentKey), []byte(expense.ID))
	})
}

// AddPending records uploaded files that wait for review
func (b *BoltDB) AddPending(filenames []string) error {
	now := []byte(time.Now().UTC().Format(time.RFC3339))
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(pendingBucketName))
		for _, name := range filenames {
			if err := bucket.Put([]byte(name), now); err != nil {
				return err
			}
		}
		return nil
	})
}

// RemovePending forgets pending uploads and returns the ones that were pending
func (b *BoltDB) RemovePending(filenames []string) ([]string, error) {
	var removed []string
	err := b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(pendingBucketName))
		for _, name := range filenames {
			if bucket.Get([]byte(name)) == nil {
				continue
			}
			if err := bucket.Delete([]byte(name)); err != nil {
				return err
			}
			removed = append(removed, name)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return removed, nil
}

// GetExpense retrieves an expense by ID
func (b *BoltDB) GetExpense(id string) (*Expense, error) {
	var expense *Expense
	err := b.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(expenseBucketName)).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("%w: expense %s", ErrNotFound, id)
		}
		return json.Unmarshal(data, &expense)
	})
	if err != nil {
		return nil, err
	}
	return expense, nil
}

// ListExpenses returns all expenses in insertion order
func (b *BoltDB) ListExpenses() ([]*Expense, error) {
	expenses := make([]*Expense, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(expenseBucketName)).ForEach(func(k, v []byte) error {
			var expense Expense
			if err := json.Unmarshal(v, &expense); err != nil {
				return fmt.Errorf("unmarshaling expense: %w", err)
			}
			expenses = append(expenses, &expense)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(expenses, func(i, j int) bool { return expenses[i].Seq < expenses[j].Seq })
	return expenses, nil
}

// DeleteExpense removes an expense and any index entry pointing at it
func (b *BoltDB) DeleteExpense(id string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket([]byte(expenseBucketName)).Delete([]byte(id)); err != nil {
			return err
		}
		docs := tx.Bucket([]byte(documentBucketName))
		var stale [][]byte
		err := docs.ForEach(func(k, v []byte) error {
			if string(v) == id {
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range stale {
			if err := docs.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

// ClearExpenses drops and recreates the expense and document buckets
func (b *BoltDB) ClearExpenses() error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{expenseBucketName, documentBucketName} {
			if err := tx.DeleteBucket([]byte(name)); err != nil {
				return fmt.Errorf("dropping %s: %w", name, err)
			}
			if _, err := tx.CreateBucket([]byte(name)); err != nil {
				return fmt.Errorf("recreating %s: %w", name, err)
			}
		}
		return nil
	})
}

// DocumentNumbers returns the document number index
func (b *BoltDB) DocumentNumbers() (map[string]bool, error) {
	seen := make(map[string]bool)
	err := b.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(documentBucketName)).ForEach(func(k, v []byte) error {
			seen[string(k)] = true
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return seen, nil
}

// SaveReport saves report metadata
func (b *BoltDB) SaveReport(report *ReportRecord) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(report)
		if err != nil {
			return fmt.Errorf("marshaling report: %w", err)
		}
		return tx.Bucket([]byte(reportBucketName)).Put([]byte(report.ID), data)
	})
}

// GetReport retrieves report metadata by ID
func (b *BoltDB) GetReport(id string) (*ReportRecord, error) {
	var report *ReportRecord
	err := b.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(reportBucketName)).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("%w: report %s", ErrNotFound, id)
		}
		return json.Unmarshal(data, &report)
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}

// ListReports returns all reports ordered by number
func (b *BoltDB) ListReports() ([]*ReportRecord, error) {
	reports := make([]*ReportRecord, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(reportBucketName)).ForEach(func(k, v []byte) error {
			var report ReportRecord
			if err := json.Unmarshal(v, &report); err != nil {
				return fmt.Errorf("unmarshaling report: %w", err)
			}
			reports = append(reports, &report)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(reports, func(i, j int) bool { return reports[i].Number < reports[j].Number })
	return reports, nil
}

// Close closes the database connection
func (b *BoltDB) Close() error {
	return b.db.Close()
}
