package database

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
)

// StringMap stores a map[string]string as a JSON text column on every driver.
type StringMap map[string]string

// Scan implements the sql.Scanner interface for reading from the database.
func (m *StringMap) Scan(value interface{}) error {
	if value == nil {
		*m = nil
		return nil
	}

	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return errors.New("StringMap: unsupported scan type")
	}

	if len(data) == 0 {
		*m = StringMap{}
		return nil
	}
	return json.Unmarshal(data, m)
}

// Value implements the driver.Valuer interface for writing to the database.
func (m StringMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// GormDataType returns the GORM data type hint.
func (StringMap) GormDataType() string {
	return "text"
}
