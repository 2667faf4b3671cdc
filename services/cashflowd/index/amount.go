package index

import (
	"database/sql/driver"
	"fmt"
	"strconv"

	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// Amount is a token quantity column. It is stored as a decimal so the full
// uint64 range survives drivers whose integer columns are signed.
type Amount uint64

// Uint64 returns the raw quantity.
func (a Amount) Uint64() uint64 { return uint64(a) }

// Value implements driver.Valuer.
func (a Amount) Value() (driver.Value, error) {
	return strconv.FormatUint(uint64(a), 10), nil
}

// Scan implements sql.Scanner.
func (a *Amount) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*a = 0
		return nil
	case string:
		return a.parse(v)
	case []byte:
		return a.parse(string(v))
	case int64:
		if v < 0 {
			return fmt.Errorf("index: negative amount %d", v)
		}
		*a = Amount(v)
		return nil
	case uint64:
		*a = Amount(v)
		return nil
	default:
		return fmt.Errorf("index: cannot scan %T into Amount", src)
	}
}

func (a *Amount) parse(raw string) error {
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("index: amount %q: %w", raw, err)
	}
	*a = Amount(v)
	return nil
}

// GormDataType implements schema.GormDataTypeInterface.
func (Amount) GormDataType() string { return "amount" }

// GormDBDataType picks an exact column type per dialect.
func (Amount) GormDBDataType(db *gorm.DB, _ *schema.Field) string {
	if db.Dialector.Name() == "postgres" {
		return "numeric(20,0)"
	}
	return "text"
}
