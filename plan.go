package orm

// Plan describes how the Executor should run the operation.
type Plan struct {
	Mode  Action
	Query string
	Args  []any
}

// Compiler converts ORM queries into parameterized statements.
type Compiler interface {
	Compile(q Query) (Plan, error)
}

// ForeignKeySwitch is implemented by compilers whose dialect can suspend
// foreign-key checks for the rest of a transaction.
type ForeignKeySwitch interface {
	DisableForeignKeys() string
}
