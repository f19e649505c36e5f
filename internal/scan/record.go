package scan

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/JakeFAU/dubbadge/internal/dom"
)

// Processing record attributes stored on each card.
const (
	AttrChecked = "data-dub-badge-checked"
	AttrRetries = "data-badge-retries"
)

// Phase is a card's position in the processing state machine.
type Phase int

// Phases.
const (
	Unseen Phase = iota
	Retrying
	Terminal
)

func (p Phase) String() string {
	switch p {
	case Unseen:
		return "unseen"
	case Retrying:
		return "retrying"
	case Terminal:
		return "terminal"
	default:
		return "phase(" + strconv.Itoa(int(p)) + ")"
	}
}

// Record is the decoded processing state of one card.
type Record struct {
	Phase   Phase
	Retries int
}

// Decode builds a record from raw attribute values. Unparseable retry counts
// read as zero.
func Decode(checked string, hasChecked bool, retries string, hasRetries bool) Record {
	if hasChecked && checked == "true" {
		n, _ := strconv.Atoi(strings.TrimSpace(retries))
		return Record{Phase: Terminal, Retries: max(n, 0)}
	}
	if !hasRetries {
		return Record{Phase: Unseen}
	}
	n, err := strconv.Atoi(strings.TrimSpace(retries))
	if err != nil || n <= 0 {
		return Record{Phase: Unseen}
	}
	return Record{Phase: Retrying, Retries: n}
}

// Resolved is the transition after an identifier was found.
func (r Record) Resolved() Record {
	return Record{Phase: Terminal, Retries: r.Retries}
}

// Unresolved is the transition after every strategy missed: the counter
// grows by one and the card turns terminal once it exceeds maxRetries.
func (r Record) Unresolved(maxRetries int) Record {
	n := r.Retries + 1
	if n > maxRetries {
		return Record{Phase: Terminal, Retries: n}
	}
	return Record{Phase: Retrying, Retries: n}
}

// ReadRecord loads the record stored on el.
func ReadRecord(ctx context.Context, el dom.Element) (Record, error) {
	checked, hasChecked, err := el.GetAttribute(ctx, AttrChecked)
	if err != nil {
		return Record{}, fmt.Errorf("read %s: %w", AttrChecked, err)
	}
	retries, hasRetries, err := el.GetAttribute(ctx, AttrRetries)
	if err != nil {
		return Record{}, fmt.Errorf("read %s: %w", AttrRetries, err)
	}
	return Decode(checked, hasChecked, retries, hasRetries), nil
}

// WriteRecord persists the transition from prev to next.
func WriteRecord(ctx context.Context, el dom.Element, prev, next Record) error {
	if next.Retries != prev.Retries && next.Retries > 0 {
		if err := el.SetAttribute(ctx, AttrRetries, strconv.Itoa(next.Retries)); err != nil {
			return fmt.Errorf("write %s: %w", AttrRetries, err)
		}
	}
	if next.Phase == Terminal && prev.Phase != Terminal {
		if err := el.SetAttribute(ctx, AttrChecked, "true"); err != nil {
			return fmt.Errorf("write %s: %w", AttrChecked, err)
		}
	}
	return nil
}
