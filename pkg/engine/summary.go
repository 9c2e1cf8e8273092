package engine

import (
	"encoding/csv"
	"errors"
	"io"
	"strconv"
	"time"

	"github.com/Sternrassler/catalog-sync/pkg/batch"
	"github.com/Sternrassler/catalog-sync/pkg/catalog"
	"github.com/Sternrassler/catalog-sync/pkg/category"
	"github.com/rs/zerolog"
)

// Skip is a product a flow chose not to touch.
type Skip struct {
	ProductID int
	Reason    string
}

// Totals counts item results for one operation.
type Totals struct {
	Succeeded int
	Failed    int
	Unknown   int
}

// Summary is the final report of a run. It accounts for every submitted
// item: succeeded, failed, or unknown when its whole batch failed.
type Summary struct {
	Flow     string
	Started  time.Time
	Duration time.Duration

	// Outcomes holds one entry per dispatched batch, grouped by operation
	// in dispatch order and sorted by batch index within each group.
	Outcomes []batch.Outcome

	Unresolved []*category.UnresolvedReference
	Skipped    []Skip

	CategoryID      int
	CategoryDeleted bool
}

// Totals sums item results of every batch with operation op.
func (s *Summary) Totals(op catalog.Op) Totals {
	var t Totals
	for _, o := range s.Outcomes {
		if o.Op != op {
			continue
		}
		t.Succeeded += o.Succeeded()
		t.Failed += o.Failed()
		t.Unknown += o.Unknown()
	}
	return t
}

// Created returns the number of items created.
func (s *Summary) Created() int { return s.Totals(catalog.OpCreate).Succeeded }

// Updated returns the number of items updated, excluding hides.
func (s *Summary) Updated() int {
	if s.Flow == FlowHide {
		return 0
	}
	return s.Totals(catalog.OpUpdate).Succeeded
}

// Hidden returns the number of products hidden.
func (s *Summary) Hidden() int {
	if s.Flow != FlowHide {
		return 0
	}
	return s.Totals(catalog.OpUpdate).Succeeded
}

// Deleted returns the number of items deleted.
func (s *Summary) Deleted() int { return s.Totals(catalog.OpDelete).Succeeded }

// Failed returns the number of items the server rejected.
func (s *Summary) Failed() int {
	n := 0
	for _, o := range s.Outcomes {
		n += o.Failed()
	}
	return n
}

// Unknown returns the number of items whose batch failed as a whole.
func (s *Summary) Unknown() int {
	n := 0
	for _, o := range s.Outcomes {
		n += o.Unknown()
	}
	return n
}

// FailedBatches returns the number of batches that did not fully succeed.
func (s *Summary) FailedBatches() int {
	n := 0
	for _, o := range s.Outcomes {
		if !o.OK() {
			n++
		}
	}
	return n
}

// OK reports whether every dispatched item succeeded.
func (s *Summary) OK() bool {
	return s.FailedBatches() == 0
}

// Err joins the failures of all batches, or returns nil.
func (s *Summary) Err() error {
	var errs []error
	for _, o := range s.Outcomes {
		if err := o.Failure(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Log writes the run totals.
func (s *Summary) Log(logger zerolog.Logger) {
	event := logger.Info()
	if !s.OK() {
		event = logger.Warn()
	}
	event.
		Str("flow", s.Flow).
		Int("batches", len(s.Outcomes)).
		Int("failed_batches", s.FailedBatches()).
		Int("created", s.Created()).
		Int("updated", s.Updated()).
		Int("hidden", s.Hidden()).
		Int("deleted", s.Deleted()).
		Int("failed", s.Failed()).
		Int("unknown", s.Unknown()).
		Int("unresolved", len(s.Unresolved)).
		Int("skipped", len(s.Skipped)).
		Dur("duration", s.Duration).
		Msg("Run complete")
}

// Report statuses written by WriteCSV.
const (
	StatusOK         = "ok"
	StatusFailed     = "failed"
	StatusUnknown    = "unknown"
	StatusSkipped    = "skipped"
	StatusUnresolved = "unresolved"
)

var reportHeader = []string{"flow", "batch", "op", "status", "id", "name", "items", "error"}

// WriteCSV writes one row per item result, one row per wholly failed
// batch, and one row per skipped product or unresolved category.
func (s *Summary) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(reportHeader); err != nil {
		return err
	}

	for _, o := range s.Outcomes {
		idx := strconv.Itoa(o.Index)
		op := string(o.Op)

		if o.Err != nil {
			if err := cw.Write([]string{s.Flow, idx, op, StatusUnknown, "", "", strconv.Itoa(o.Submitted), o.Err.Error()}); err != nil {
				return err
			}
			continue
		}

		for _, it := range o.Items {
			status, msg := StatusOK, ""
			if !it.OK() {
				status, msg = StatusFailed, it.Err.Error()
			}
			if err := cw.Write([]string{s.Flow, idx, op, status, itoa(it.ID), it.Name, "1", msg}); err != nil {
				return err
			}
		}
		if n := o.Unknown(); n > 0 {
			if err := cw.Write([]string{s.Flow, idx, op, StatusUnknown, "", "", strconv.Itoa(n), "no result in response"}); err != nil {
				return err
			}
		}
	}

	for _, sk := range s.Skipped {
		if err := cw.Write([]string{s.Flow, "", "", StatusSkipped, itoa(sk.ProductID), "", "1", sk.Reason}); err != nil {
			return err
		}
	}
	for _, u := range s.Unresolved {
		if err := cw.Write([]string{s.Flow, "", string(catalog.OpCreate), StatusUnresolved, "", u.Name, "1", u.Err.Error()}); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

func itoa(id int) string {
	if id == 0 {
		return ""
	}
	return strconv.Itoa(id)
}
