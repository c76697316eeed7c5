package repository

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	appErrors "github.com/unclebandit/mailcampaign-backend/internal/errors"
)

const pqForeignKeyViolation = "23503"

// translateWriteError turns a foreign key violation into ErrInvalidInput.
// Inserts reference users and saved_databases rows owned elsewhere.
func translateWriteError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == pqForeignKeyViolation {
		return fmt.Errorf("%w: referenced %s does not exist", appErrors.ErrInvalidInput, pqErr.Table)
	}
	return err
}

// jsonValue encodes v as text for a JSONB parameter. Nil slices and maps
// are stored as SQL NULL.
func jsonValue(v any) (any, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case []byte:
		return string(t), nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode jsonb: %w", err)
	}
	if string(b) == "null" {
		return nil, nil
	}
	return string(b), nil
}

// decodeJSON decodes a scanned JSONB column; NULL leaves dst untouched.
func decodeJSON(raw []byte, dst any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decode jsonb: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}
