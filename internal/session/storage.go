package session

import (
	"context"
	"encoding/json"
	"fmt"
)

// StorageType names a DOM storage area. Only the two whitelisted areas are
// scriptable; anything else is rejected before any script is built.
type StorageType string

const (
	LocalStorage   StorageType = "localStorage"
	SessionStorage StorageType = "sessionStorage"
)

func (t StorageType) validate() error {
	switch t {
	case LocalStorage, SessionStorage:
		return nil
	default:
		return fmt.Errorf("session: unknown storage type %q (want localStorage or sessionStorage)", t)
	}
}

// StorageEntries reads every key/value pair of a storage area.
func (s *Session) StorageEntries(ctx context.Context, typ StorageType) (map[string]string, error) {
	if err := typ.validate(); err != nil {
		return nil, err
	}
	expr := fmt.Sprintf(`JSON.stringify(Object.fromEntries(Object.entries(%s)))`, typ)
	res, err := s.Eval(ctx, expr, true)
	if err != nil {
		return nil, err
	}
	if res.ExceptionDetails != nil {
		return nil, fmt.Errorf("session: read %s: %s", typ, formatException(res.ExceptionDetails))
	}
	if res.Result == nil {
		return map[string]string{}, nil
	}
	entries := map[string]string{}
	if err := json.Unmarshal([]byte(res.Result.Value.Str()), &entries); err != nil {
		return nil, fmt.Errorf("session: decode %s entries: %w", typ, err)
	}
	return entries, nil
}

// StorageGet reads one key. Missing keys return ok=false.
func (s *Session) StorageGet(ctx context.Context, typ StorageType, key string) (string, bool, error) {
	if err := typ.validate(); err != nil {
		return "", false, err
	}
	expr := fmt.Sprintf(`%s.getItem(%s)`, typ, jsString(key))
	res, err := s.Eval(ctx, expr, true)
	if err != nil {
		return "", false, err
	}
	if res.Result == nil || res.Result.Value.Val() == nil {
		return "", false, nil
	}
	return res.Result.Value.Str(), true, nil
}

// StorageSet writes one key.
func (s *Session) StorageSet(ctx context.Context, typ StorageType, key, value string) error {
	if err := typ.validate(); err != nil {
		return err
	}
	expr := fmt.Sprintf(`%s.setItem(%s, %s)`, typ, jsString(key), jsString(value))
	res, err := s.Eval(ctx, expr, true)
	if err != nil {
		return err
	}
	if res.ExceptionDetails != nil {
		return fmt.Errorf("session: write %s[%s]: %s", typ, key, formatException(res.ExceptionDetails))
	}
	return nil
}

// StorageDelete removes one key.
func (s *Session) StorageDelete(ctx context.Context, typ StorageType, key string) error {
	if err := typ.validate(); err != nil {
		return err
	}
	_, err := s.Eval(ctx, fmt.Sprintf(`%s.removeItem(%s)`, typ, jsString(key)), true)
	return err
}

// StorageClear wipes one storage area.
func (s *Session) StorageClear(ctx context.Context, typ StorageType) error {
	if err := typ.validate(); err != nil {
		return err
	}
	_, err := s.Eval(ctx, fmt.Sprintf(`%s.clear()`, typ), true)
	return err
}

// jsString renders s as a JavaScript string literal. JSON string encoding is
// a strict subset of JS string syntax, so no hand-rolled escaping.
func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
