// Package activity keeps a local CSV log of the wallet actions run from this
// machine.
package activity

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Entry is one row in the activity log.
type Entry struct {
	Timestamp time.Time
	UserID    string
	Action    string
	Amount    decimal.Decimal
	Currency  string
	Reference string
	Details   string
}

// Header is the CSV header for activity.csv.
const Header = "timestamp,user_id,action,amount,currency,reference,details"

// FileName is the log file inside the activity directory.
const FileName = "activity.csv"

const (
	numFields    = 7
	colTimestamp = 0
	colUserID    = 1
	colAction    = 2
	colAmount    = 3
	colCurrency  = 4
	colReference = 5
	colDetails   = 6
)

// MarshalEntry converts an Entry to a CSV row. A zero amount is written as
// an empty cell.
func MarshalEntry(e Entry) []string {
	row := make([]string, numFields)
	row[colTimestamp] = e.Timestamp.UTC().Format(time.RFC3339)
	row[colUserID] = e.UserID
	row[colAction] = e.Action
	if !e.Amount.IsZero() {
		row[colAmount] = e.Amount.StringFixed(2)
	}
	row[colCurrency] = e.Currency
	row[colReference] = e.Reference
	row[colDetails] = e.Details
	return row
}

// UnmarshalEntry converts a CSV row to an Entry.
func UnmarshalEntry(record []string) (Entry, error) {
	if len(record) != numFields {
		return Entry{}, fmt.Errorf("expected %d fields, got %d", numFields, len(record))
	}

	ts, err := time.Parse(time.RFC3339, record[colTimestamp])
	if err != nil {
		return Entry{}, fmt.Errorf("parsing timestamp %q: %w", record[colTimestamp], err)
	}
	var amount decimal.Decimal
	if s := record[colAmount]; s != "" {
		if amount, err = decimal.NewFromString(s); err != nil {
			return Entry{}, fmt.Errorf("parsing amount %q: %w", s, err)
		}
	}

	return Entry{
		Timestamp: ts,
		UserID:    record[colUserID],
		Action:    record[colAction],
		Amount:    amount,
		Currency:  record[colCurrency],
		Reference: record[colReference],
		Details:   record[colDetails],
	}, nil
}

// Append writes entries to <dir>/activity.csv, creating the file and header
// if needed.
func Append(dir string, entries []Entry) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating activity dir: %w", err)
	}

	path := filepath.Join(dir, FileName)
	needsHeader := false
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		needsHeader = true
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("opening activity log: %w", err)
	}
	defer f.Close()

	cw := csv.NewWriter(f)

	if needsHeader {
		if err := cw.Write(strings.Split(Header, ",")); err != nil {
			return fmt.Errorf("writing header: %w", err)
		}
	}

	for i, e := range entries {
		if err := cw.Write(MarshalEntry(e)); err != nil {
			return fmt.Errorf("writing entry %d: %w", i, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// Read returns all entries from <dir>/activity.csv. A missing file yields no
// entries and no error.
func Read(dir string) ([]Entry, error) {
	f, err := os.Open(filepath.Join(dir, FileName))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening activity log: %w", err)
	}
	defer f.Close()

	return readEntries(f)
}

func readEntries(r io.Reader) ([]Entry, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = numFields

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading activity CSV: %w", err)
	}

	if len(records) <= 1 {
		return nil, nil
	}

	var entries []Entry
	for i, rec := range records[1:] {
		e, err := UnmarshalEntry(rec)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Recorder appends entries to one directory. A nil *Recorder discards them,
// so callers need not check whether the log is enabled.
type Recorder struct {
	dir string
	now func() time.Time
}

// NewRecorder returns a Recorder writing under dir.
func NewRecorder(dir string) *Recorder {
	return &Recorder{dir: dir, now: time.Now}
}

// Record stamps e with the current time when unset and appends it.
func (r *Recorder) Record(e Entry) error {
	if r == nil {
		return nil
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = r.now()
	}
	return Append(r.dir, []Entry{e})
}

// Dir returns the directory the recorder writes to.
func (r *Recorder) Dir() string {
	if r == nil {
		return ""
	}
	return r.dir
}
