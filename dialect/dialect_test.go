package dialect_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tinywasm/orm/v2"
	"github.com/tinywasm/orm/v2/dialect"
	"github.com/tinywasm/orm/v2/schema"
)

func TestCompile(t *testing.T) {
	tests := []struct {
		name string
		q    orm.Query
		lite string
		pg   string
		args []any
	}{
		{
			name: "insert returning",
			q:    orm.Query{Action: orm.ActionCreate, Table: "brand", Columns: []string{"name"}, Values: []any{"acme"}, Returning: []string{"id"}},
			lite: `INSERT INTO "brand" ("name") VALUES (?) RETURNING "id"`,
			pg:   `INSERT INTO "brand" ("name") VALUES ($1) RETURNING "id"`,
			args: []any{"acme"},
		},
		{
			name: "insert without columns",
			q:    orm.Query{Action: orm.ActionCreate, Table: "brand", Returning: []string{"id"}},
			lite: `INSERT INTO "brand" DEFAULT VALUES RETURNING "id"`,
			pg:   `INSERT INTO "brand" DEFAULT VALUES RETURNING "id"`,
		},
		{
			name: "select with null and in",
			q: orm.Query{
				Action:     orm.ActionReadAll,
				Table:      "product",
				Columns:    []string{"id", "name"},
				Conditions: []orm.Condition{orm.Eq("brand_id", nil), orm.Or(orm.In("id", 1, 2))},
				Limit:      5,
			},
			lite: `SELECT "id", "name" FROM "product" WHERE "brand_id" IS NULL OR "id" IN (?, ?) LIMIT 5`,
			pg:   `SELECT "id", "name" FROM "product" WHERE "brand_id" IS NULL OR "id" IN ($1, $2) LIMIT 5`,
			args: []any{1, 2},
		},
		{
			name: "offset without limit",
			q:    orm.Query{Action: orm.ActionReadAll, Table: "product", Offset: 10},
			lite: `SELECT * FROM "product" LIMIT -1 OFFSET 10`,
			pg:   `SELECT * FROM "product" OFFSET 10`,
		},
		{
			name: "empty in matches nothing",
			q:    orm.Query{Action: orm.ActionReadAll, Table: "product", Conditions: []orm.Condition{orm.In("id")}},
			lite: `SELECT * FROM "product" WHERE 1 = 0`,
			pg:   `SELECT * FROM "product" WHERE 1 = 0`,
		},
		{
			name: "versioned update",
			q: orm.Query{
				Action:     orm.ActionUpdate,
				Table:      "doc",
				Columns:    []string{"title", "version"},
				Values:     []any{"t", int64(2)},
				Conditions: []orm.Condition{orm.Eq("id", 1), orm.Eq("version", int64(1))},
			},
			lite: `UPDATE "doc" SET "title" = ?, "version" = ? WHERE "id" = ? AND "version" = ?`,
			pg:   `UPDATE "doc" SET "title" = $1, "version" = $2 WHERE "id" = $3 AND "version" = $4`,
			args: []any{"t", int64(2), 1, int64(1)},
		},
		{
			name: "delete",
			q:    orm.Query{Action: orm.ActionDelete, Table: "doc", Conditions: []orm.Condition{orm.Neq("title", nil)}},
			lite: `DELETE FROM "doc" WHERE "title" IS NOT NULL`,
			pg:   `DELETE FROM "doc" WHERE "title" IS NOT NULL`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := dialect.SQLite{}.Compile(tt.q)
			require.NoError(t, err)
			assert.Equal(t, tt.lite, plan.Query)
			assert.Equal(t, tt.args, plan.Args)

			plan, err = dialect.Postgres{}.Compile(tt.q)
			require.NoError(t, err)
			assert.Equal(t, tt.pg, plan.Query)
		})
	}
}

func TestCompileErrors(t *testing.T) {
	_, err := dialect.SQLite{}.Compile(orm.Query{Action: orm.ActionReadAll})
	assert.ErrorIs(t, err, orm.ErrEmptyTable)

	_, err = dialect.SQLite{}.Compile(orm.Query{Action: orm.ActionCreate, Table: "t", Columns: []string{"a"}})
	assert.Error(t, err)
}

func TestColumnTypesAndLiterals(t *testing.T) {
	lite, pg := dialect.SQLite{}, dialect.Postgres{}
	assert.Equal(t, "integer", lite.ColumnType(orm.TypeBool, false))
	assert.Equal(t, "boolean", pg.ColumnType(orm.TypeBool, false))
	assert.Equal(t, "bigserial", pg.ColumnType(orm.TypeInt64, true))
	assert.Equal(t, "uuid", pg.ColumnType(orm.TypeUUID, false))
	assert.Equal(t, "numeric", lite.ColumnType(orm.TypeDecimal, false))

	assert.Equal(t, "1", lite.Literal(true))
	assert.Equal(t, "true", pg.Literal(true))
	assert.Equal(t, "'it''s'", lite.Literal("it's"))
	assert.Equal(t, "12.5", pg.Literal(decimal.RequireFromString("12.50")))
	id := uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	assert.Equal(t, "'6ba7b810-9dad-11d1-80b4-00c04fd430c8'", pg.Literal(id))

	d, ok := dialect.For("postgres")
	require.True(t, ok)
	assert.Equal(t, 63, d.MaxIdentifierLength())
	_, ok = dialect.For("oracle")
	assert.False(t, ok)
}

func brandTable() *schema.Table {
	return &schema.Table{
		Name: "brand",
		Columns: []schema.Column{
			{Name: "id", Type: "integer", PrimaryKey: true, AutoIncrement: true},
			{Name: "name", Type: "text"},
		},
		PrimaryKey: []string{"id"},
		Constraints: []schema.Constraint{
			{Name: "brand_name_unique", Kind: schema.KindUnique, Columns: []string{"name"}},
		},
	}
}

func TestRender(t *testing.T) {
	create := schema.Operation{Kind: schema.OpCreateTable, Table: "brand", Def: brandTable()}

	t.Run("sqlite create table", func(t *testing.T) {
		stmts, err := dialect.SQLite{}.Render(create)
		require.NoError(t, err)
		assert.Equal(t, []string{
			`CREATE TABLE "brand" ("id" integer NOT NULL PRIMARY KEY AUTOINCREMENT, "name" text NOT NULL)`,
			`CREATE UNIQUE INDEX "brand_name_unique" ON "brand" ("name")`,
		}, stmts)
	})

	t.Run("postgres create table", func(t *testing.T) {
		def := brandTable()
		def.Columns[0].Type = "bigserial"
		stmts, err := dialect.Postgres{}.Render(schema.Operation{Kind: schema.OpCreateTable, Table: "brand", Def: def})
		require.NoError(t, err)
		assert.Equal(t, []string{
			`CREATE TABLE "brand" ("id" bigserial NOT NULL, "name" text NOT NULL, PRIMARY KEY ("id"), CONSTRAINT "brand_name_unique" UNIQUE ("name"))`,
		}, stmts)
	})

	fk := schema.Constraint{
		Name:       "product_brand_id_foreign",
		Kind:       schema.KindForeignKey,
		Columns:    []string{"brand_id"},
		RefTable:   "brand",
		RefColumns: []string{"id"},
		OnDelete:   "cascade",
	}

	t.Run("postgres foreign key", func(t *testing.T) {
		stmts, err := dialect.Postgres{}.Render(schema.Operation{Kind: schema.OpAddConstraint, Table: "product", Constraint: &fk})
		require.NoError(t, err)
		assert.Equal(t, []string{
			`ALTER TABLE "product" ADD CONSTRAINT "product_brand_id_foreign" FOREIGN KEY ("brand_id") REFERENCES "brand" ("id") ON DELETE CASCADE`,
		}, stmts)
	})

	t.Run("sqlite cannot add a foreign key", func(t *testing.T) {
		_, err := dialect.SQLite{}.Render(schema.Operation{Kind: schema.OpAddConstraint, Table: "product", Constraint: &fk})
		assert.ErrorIs(t, err, orm.ErrMigrationDivergence)
	})

	t.Run("postgres alter column", func(t *testing.T) {
		def := "0"
		stmts, err := dialect.Postgres{}.Render(schema.Operation{
			Kind:   schema.OpAlterColumn,
			Table:  "product",
			Column: &schema.Column{Name: "stock", Type: "bigint", Default: &def},
			Prior:  &schema.Column{Name: "stock", Type: "bigint", Nullable: true},
		})
		require.NoError(t, err)
		assert.Equal(t, []string{
			`ALTER TABLE "product" ALTER COLUMN "stock" SET NOT NULL`,
			`ALTER TABLE "product" ALTER COLUMN "stock" SET DEFAULT 0`,
		}, stmts)
	})

	t.Run("sqlite cannot alter a column", func(t *testing.T) {
		_, err := dialect.SQLite{}.Render(schema.Operation{
			Kind:   schema.OpAlterColumn,
			Table:  "product",
			Column: &schema.Column{Name: "stock", Type: "integer"},
			Prior:  &schema.Column{Name: "stock", Type: "text"},
		})
		assert.ErrorIs(t, err, orm.ErrMigrationDivergence)
	})

	t.Run("postgres unique stored as index", func(t *testing.T) {
		c := schema.Constraint{Name: "brand_name_unique", Kind: schema.KindUnique, Columns: []string{"name"}, AsIndex: true}
		stmts, err := dialect.Postgres{}.Render(schema.Operation{Kind: schema.OpAddConstraint, Table: "brand", Constraint: &c})
		require.NoError(t, err)
		assert.Equal(t, []string{`CREATE UNIQUE INDEX "brand_name_unique" ON "brand" ("name")`}, stmts)

		stmts, err = dialect.Postgres{}.Render(schema.Operation{Kind: schema.OpDropConstraint, Table: "brand", Constraint: &c})
		require.NoError(t, err)
		assert.Equal(t, []string{`DROP INDEX "brand_name_unique"`}, stmts)
	})
}
