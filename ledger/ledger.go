// Package ledger records which posts have been published so that the same
// post is not published twice by accident.
//
// The ledger is a JSON document:
//
//	{"posted": [1, 3], "records": [{"id": 1, "postId": "urn:li:share:1", "publishedAt": "..."}]}
//
// It is read fully and rewritten fully on every change. There is no locking:
// two processes recording at the same time can lose a record.
package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Record is one successful publish
type Record struct {
	UnitID      int       `json:"id"`
	PostID      string    `json:"postId"`
	PublishedAt time.Time `json:"publishedAt"`
}

type document struct {
	Posted  []int    `json:"posted"`
	Records []Record `json:"records,omitempty"`
}

// Ledger is the set of published posts
type Ledger struct {
	Backend Backend
	Now     func() time.Time // nil means time.Now
}

// New creates a ledger stored in b
func New(b Backend) *Ledger {
	return &Ledger{Backend: b}
}

// Open creates a ledger for a file path or a gs://bucket/object location
func Open(ctx context.Context, location string) (*Ledger, error) {
	b, err := NewBackend(ctx, location)
	if err != nil {
		return nil, err
	}
	return New(b), nil
}

func (l *Ledger) now() time.Time {
	if l.Now != nil {
		return l.Now()
	}
	return time.Now()
}

func (l *Ledger) load(ctx context.Context) (*document, error) {
	buf, err := l.Backend.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("error reading ledger %s: %w", l.Backend, err)
	}

	var d document
	if len(buf) == 0 {
		return &d, nil
	}
	if err := json.Unmarshal(buf, &d); err != nil {
		return nil, fmt.Errorf("error decoding ledger %s: %w", l.Backend, err)
	}
	return &d, nil
}

// HasPosted reports whether the unit has been published before
func (l *Ledger) HasPosted(ctx context.Context, unitID int) (bool, error) {
	d, err := l.load(ctx)
	if err != nil {
		return false, err
	}
	for _, id := range d.Posted {
		if id == unitID {
			return true, nil
		}
	}
	return false, nil
}

// Records returns every recorded publish in the order they were made
func (l *Ledger) Records(ctx context.Context) ([]Record, error) {
	d, err := l.load(ctx)
	if err != nil {
		return nil, err
	}
	return d.Records, nil
}

// Posted returns the ids of all published units
func (l *Ledger) Posted(ctx context.Context) (map[int]bool, error) {
	d, err := l.load(ctx)
	if err != nil {
		return nil, err
	}
	posted := make(map[int]bool, len(d.Posted))
	for _, id := range d.Posted {
		posted[id] = true
	}
	return posted, nil
}

// Record adds a publish to the ledger, creating the backing store if it does
// not exist yet. Recording a unit again adds another record but leaves the
// unit listed once in "posted".
func (l *Ledger) Record(ctx context.Context, unitID int, postID string) error {
	d, err := l.load(ctx)
	if err != nil {
		return err
	}

	var found bool
	for _, id := range d.Posted {
		if id == unitID {
			found = true
			break
		}
	}
	if !found {
		d.Posted = append(d.Posted, unitID)
	}
	d.Records = append(d.Records, Record{
		UnitID:      unitID,
		PostID:      postID,
		PublishedAt: l.now().UTC(),
	})

	buf, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return fmt.Errorf("error encoding ledger: %w", err)
	}
	if err := l.Backend.Write(ctx, append(buf, '\n')); err != nil {
		return fmt.Errorf("error writing ledger %s: %w", l.Backend, err)
	}

	zerolog.Ctx(ctx).Debug().Int("post", unitID).Str("ledger", l.Backend.String()).Msg("recorded publish")
	return nil
}
