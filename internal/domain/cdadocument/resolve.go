package cdadocument

import (
	"context"
	"errors"
	"strings"
)

// Placeholder is the narrative used when no source supplies a value.
const Placeholder = "Not recorded"

// strategy is one way of obtaining a field's value. An empty result means
// the strategy has nothing to offer and the next one is tried.
type strategy struct {
	source string
	value  func() string
}

// field reads a string from rec, which may be nil.
func field[T any](source string, rec *T, get func(*T) string) strategy {
	return strategy{source: source, value: func() string {
		if rec == nil {
			return ""
		}
		return get(rec)
	}}
}

func literal(source, v string) strategy {
	return strategy{source: source, value: func() string { return v }}
}

type resolution struct {
	value  string
	source string
}

func (r resolution) found() bool { return r.source != "" }

// resolve evaluates strategies in order. When none yields a value the
// result is the placeholder with an empty source.
func resolve(strategies ...strategy) resolution {
	for _, s := range strategies {
		if v := strings.TrimSpace(s.value()); v != "" {
			return resolution{value: v, source: s.source}
		}
	}
	return resolution{value: Placeholder}
}

// fetch applies the source resolution policy for one lookup: the exact
// record when a source id is given, else the latest record of the medical
// record, else nothing. A record that does not exist is not an error.
func fetch[T any](ctx context.Context, l Lookup[T], req Request) (*T, error) {
	var (
		rec *T
		err error
	)
	switch {
	case req.SourceID != nil:
		rec, err = l.ByID(ctx, *req.SourceID)
	case req.MedicalRecordID != nil:
		rec, err = l.LatestForMedicalRecord(ctx, *req.MedicalRecordID)
	default:
		return nil, nil
	}
	if errors.Is(err, ErrSourceNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}
