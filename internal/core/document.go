package core

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformedDocument marks stored data that does not fit the wallet shape.
var ErrMalformedDocument = errors.New("malformed wallet document")

// ToDocument converts a value to its JSON-shaped map form, as stored.
func ToDocument(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// DecodeWallet reads a stored document. Months that do not decode are left
// out and reported in the returned error; the rest of the wallet is still
// usable, so callers log the error rather than fail.
func DecodeWallet(doc map[string]any) (Wallet, error) {
	w := EmptyWallet()
	if doc == nil {
		return w, nil
	}
	var errs []error
	if v, ok := doc["createdAt"]; ok && v != nil {
		if err := decodeValue(v, &w.CreatedAt); err != nil {
			errs = append(errs, fmt.Errorf("createdAt: %w", err))
		}
	}
	months, ok := doc["months"].(map[string]any)
	if !ok && doc["months"] != nil {
		errs = append(errs, fmt.Errorf("months is %T", doc["months"]))
	}
	for k, v := range months {
		var m MonthRecord
		if err := decodeValue(v, &m); err != nil {
			errs = append(errs, fmt.Errorf("month %q: %w", k, err))
			continue
		}
		w.Months[MonthKey(k)] = m
	}
	w = w.Normalize()
	if len(errs) > 0 {
		return w, fmt.Errorf("%w: %w", ErrMalformedDocument, errors.Join(errs...))
	}
	return w, nil
}

func decodeValue(v any, dst any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dst)
}
