package orm

// FieldType represents the abstract storage type of a model field.
type FieldType int

const (
	TypeText FieldType = iota
	TypeInt64
	TypeFloat64
	TypeBool
	TypeBlob
	TypeDecimal // github.com/shopspring/decimal
	TypeUUID    // github.com/google/uuid
)

func (t FieldType) String() string {
	switch t {
	case TypeText:
		return "text"
	case TypeInt64:
		return "int64"
	case TypeFloat64:
		return "float64"
	case TypeBool:
		return "bool"
	case TypeBlob:
		return "blob"
	case TypeDecimal:
		return "decimal"
	case TypeUUID:
		return "uuid"
	}
	return "unknown"
}

// Constraint is a bitmask of column-level constraints.
// ConstraintNone = 0 is defined separately to avoid shifting iota off-by-one.
type Constraint int

const ConstraintNone Constraint = 0

const (
	ConstraintPK            Constraint = 1 << iota // 1: Primary Key
	ConstraintUnique                               // 2: UNIQUE
	ConstraintNotNull                              // 4: NOT NULL
	ConstraintAutoIncrement                        // 8: SERIAL / AUTOINCREMENT
)

// Has reports whether all bits of c2 are set in c.
func (c Constraint) Has(c2 Constraint) bool { return c&c2 == c2 }

// Field describes a single scalar column of an entity.
// Ref is kept for Model compatibility: a Field with Ref set is turned into an
// owning to-one relation by EntityBuilder.Model.
type Field struct {
	Name        string
	Column      string
	Type        FieldType
	Constraints Constraint
	Default     any
	HasDefault  bool
	Ref         string // FK: target entity name. Empty = no FK.
	RefColumn   string // FK: target column. Empty = primary key of Ref.
}

// Nullable reports whether the column accepts NULL.
func (f Field) Nullable() bool {
	return !f.Constraints.Has(ConstraintNotNull) && !f.Constraints.Has(ConstraintPK)
}

// IsPK reports whether the field is the primary key.
func (f Field) IsPK() bool { return f.Constraints.Has(ConstraintPK) }
