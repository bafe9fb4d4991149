// Package storage provides the persistence backends behind an assessment:
// an owner-scoped sqlite store for signed-in users, a JSON file store for
// everyone else, and a router that picks between them per call.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kingrea/compass/internal/assessment"
)

// Key names one persisted collection.
type Key string

const (
	KeySelected    Key = "values_assessment_selected"
	KeyPrioritized Key = "values_assessment_prioritized"
	KeyReflections Key = "values_assessment_reflections"
)

// Keys lists every collection key in a stable order.
func Keys() []Key {
	return []Key{KeySelected, KeyPrioritized, KeyReflections}
}

var (
	// ErrRecordNotFound reports that a key has never been written.
	ErrRecordNotFound = errors.New("storage: record not found")
	// ErrUnauthenticated reports a remote operation without a signed-in owner.
	ErrUnauthenticated = errors.New("storage: not authenticated")
)

// entry is one key's payload as written by SaveAssessment.
type entry struct {
	key  Key
	data []byte
}

// entriesFor marshals the collections selected by the record's field mask.
// A zero mask means every collection.
func entriesFor(record assessment.Record) ([]entry, error) {
	fields := record.Fields
	if fields == 0 {
		fields = assessment.FieldAll
	}
	var entries []entry
	add := func(key Key, v any) error {
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("storage: encode %s: %w", key, err)
		}
		entries = append(entries, entry{key: key, data: data})
		return nil
	}
	if fields.Has(assessment.FieldSelected) {
		if err := add(KeySelected, nonNilIDs(record.SelectedValues)); err != nil {
			return nil, err
		}
	}
	if fields.Has(assessment.FieldPrioritized) {
		if err := add(KeyPrioritized, nonNilIDs(record.PrioritizedValues)); err != nil {
			return nil, err
		}
	}
	if fields.Has(assessment.FieldReflections) {
		reflections := record.ReflectionResponses
		if reflections == nil {
			reflections = map[string]string{}
		}
		if err := add(KeyReflections, reflections); err != nil {
			return nil, err
		}
	}
	return entries, nil
}

func nonNilIDs(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}

func decodeIDs(key Key, data []byte) ([]string, error) {
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, fmt.Errorf("storage: decode %s: %w", key, err)
	}
	return ids, nil
}

func decodeReflections(data []byte) (map[string]string, error) {
	var out map[string]string
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("storage: decode %s: %w", KeyReflections, err)
	}
	return out, nil
}
