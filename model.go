package orm

// Model is a struct-backed entity declaration.
// Schema() lists columns in storage order; EntityBuilder.Model turns it into
// an entity descriptor.
type Model interface {
	TableName() string
	Schema() []Field
}
