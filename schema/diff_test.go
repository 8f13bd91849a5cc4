package schema_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tinywasm/orm/v2"
	"github.com/tinywasm/orm/v2/dialect"
	"github.com/tinywasm/orm/v2/schema"
)

// shop declares Brand 1-n Product. The second version adds a column, a
// composite unique, an index, a table and tightens a column.
func shop(t *testing.T, v2 bool) *orm.Registry {
	t.Helper()
	b := orm.NewRegistryBuilder()
	brand := b.Entity("Brand").
		PrimaryKey("id", orm.TypeInt64, orm.AutoIncrement()).
		Field("name", orm.TypeText, orm.NotNull(), orm.Unique())
	product := b.Entity("Product").
		PrimaryKey("id", orm.TypeInt64, orm.AutoIncrement())
	if v2 {
		brand.Field("slug", orm.TypeText)
		product.Field("name", orm.TypeText, orm.NotNull()).
			ManyToOne("brand", "Brand", orm.Nullable(), orm.Indexed()).
			Unique("name", "brand")
		b.Entity("Tag").
			PrimaryKey("id", orm.TypeInt64, orm.AutoIncrement()).
			Field("label", orm.TypeText, orm.NotNull())
	} else {
		product.Field("name", orm.TypeText).
			ManyToOne("brand", "Brand", orm.Nullable())
	}
	reg, err := b.Build()
	require.NoError(t, err)
	return reg
}

func kinds(ops []schema.Operation) []schema.OpKind {
	out := make([]schema.OpKind, len(ops))
	for i, op := range ops {
		out[i] = op.Kind
	}
	return out
}

func TestCompare_Deterministic(t *testing.T) {
	pg := dialect.Postgres{}
	declared := schema.FromRegistry(shop(t, true), pg)

	diff, err := schema.Compare(declared, declared, pg)
	require.NoError(t, err)
	assert.True(t, diff.Empty())

	created, err := schema.Compare(&schema.Schema{}, declared, pg)
	require.NoError(t, err)
	live, err := schema.Apply(&schema.Schema{}, created.Up)
	require.NoError(t, err)

	again, err := schema.Compare(live, declared, pg)
	require.NoError(t, err)
	assert.True(t, again.Empty(), "%v", kinds(again.Up))
}

func TestCompare_Symmetric(t *testing.T) {
	pg := dialect.Postgres{}
	v1 := schema.FromRegistry(shop(t, false), pg)
	v2 := schema.FromRegistry(shop(t, true), pg)

	diff, err := schema.Compare(v1, v2, pg)
	require.NoError(t, err)
	assert.Equal(t, []schema.OpKind{
		schema.OpCreateTable,
		schema.OpAddColumn,
		schema.OpAlterColumn,
		schema.OpAddConstraint,
		schema.OpAddIndex,
	}, kinds(diff.Up))

	forward, err := schema.Apply(v1, diff.Up)
	require.NoError(t, err)
	rest, err := schema.Compare(forward, v2, pg)
	require.NoError(t, err)
	assert.True(t, rest.Empty(), "%v", kinds(rest.Up))

	backward, err := schema.Apply(forward, diff.Down())
	require.NoError(t, err)
	rest, err = schema.Compare(backward, v1, pg)
	require.NoError(t, err)
	assert.True(t, rest.Empty(), "%v", kinds(rest.Up))

	up, down, err := diff.Render(pg)
	require.NoError(t, err)
	assert.Contains(t, up, `ALTER TABLE "brand" ADD COLUMN "slug" text`)
	assert.Contains(t, up, `ALTER TABLE "product" ALTER COLUMN "name" SET NOT NULL`)
	assert.Contains(t, up, `CREATE INDEX "product_brand_id_index" ON "product" ("brand_id")`)
	assert.Equal(t, `DROP INDEX "product_brand_id_index"`, down[0])
	assert.Equal(t, `DROP TABLE "tag"`, down[len(down)-1])
}

func TestCompare_CreateOrderFollowsReferences(t *testing.T) {
	b := orm.NewRegistryBuilder()
	b.Entity("Item").Table("a_item").
		PrimaryKey("id", orm.TypeInt64).
		ManyToOne("owner", "Owner")
	b.Entity("Owner").Table("z_owner").
		PrimaryKey("id", orm.TypeInt64)
	reg, err := b.Build()
	require.NoError(t, err)

	pg := dialect.Postgres{}
	diff, err := schema.Compare(&schema.Schema{}, schema.FromRegistry(reg, pg), pg)
	require.NoError(t, err)
	require.Len(t, diff.Up, 2)
	assert.Equal(t, "z_owner", diff.Up[0].Table)
	assert.Equal(t, "a_item", diff.Up[1].Table)

	down := diff.Down()
	assert.Equal(t, schema.OpDropTable, down[0].Kind)
	assert.Equal(t, "a_item", down[0].Table)
}

func TestCompare_LongIdentifiers(t *testing.T) {
	b := orm.NewRegistryBuilder()
	b.Entity("Center").PrimaryKey("id", orm.TypeInt64)
	b.Entity("Snapshot").Table("warehouse_inventory_reservation_allocation_snapshots").
		PrimaryKey("id", orm.TypeInt64).
		ManyToOne("preferred_distribution_center", "Center")
	reg, err := b.Build()
	require.NoError(t, err)

	pg := dialect.Postgres{}
	declared := schema.FromRegistry(reg, pg)
	created, err := schema.Compare(&schema.Schema{}, declared, pg)
	require.NoError(t, err)
	live, err := schema.Apply(&schema.Schema{}, created.Up)
	require.NoError(t, err)

	snap, ok := live.Table("warehouse_inventory_reservation_allocation_snapshots")
	require.True(t, ok)
	require.Len(t, snap.Constraints, 1)
	assert.Len(t, snap.Constraints[0].Name, 63)

	diff, err := schema.Compare(live, declared, pg)
	require.NoError(t, err)
	assert.True(t, diff.Empty())
}

func uniqueTable(cols ...string) *schema.Schema {
	return &schema.Schema{Tables: []schema.Table{{
		Name: "pair",
		Columns: []schema.Column{
			{Name: "id", Type: "bigint", PrimaryKey: true},
			{Name: "a", Type: "text", Nullable: true},
			{Name: "b", Type: "text", Nullable: true},
		},
		PrimaryKey:  []string{"id"},
		Constraints: []schema.Constraint{{Name: "pair_ab_unique", Kind: schema.KindUnique, Columns: cols}},
	}}}
}

func TestCompare_UniqueColumnOrder(t *testing.T) {
	pg := dialect.Postgres{}
	diff, err := schema.Compare(uniqueTable("a", "b"), uniqueTable("b", "a"), pg)
	require.NoError(t, err)
	assert.Equal(t, []schema.OpKind{schema.OpDropConstraint, schema.OpAddConstraint}, kinds(diff.Up))
	assert.Equal(t, []string{"b", "a"}, diff.Up[1].Constraint.Columns)
}

func TestCompare_UniqueStoredAsIndex(t *testing.T) {
	pg := dialect.Postgres{}
	live := uniqueTable("a", "b")
	live.Tables[0].Constraints[0].AsIndex = true
	declared := uniqueTable("a", "b")

	diff, err := schema.Compare(live, declared, pg)
	require.NoError(t, err)
	assert.True(t, diff.Empty())

	declared.Tables[0].Constraints = nil
	diff, err = schema.Compare(live, declared, pg)
	require.NoError(t, err)
	up, down, err := diff.Render(pg)
	require.NoError(t, err)
	assert.Equal(t, []string{`DROP INDEX "pair_ab_unique"`}, up)
	assert.Equal(t, []string{`CREATE UNIQUE INDEX "pair_ab_unique" ON "pair" ("a", "b")`}, down)
}

func TestCompare_Divergence(t *testing.T) {
	pg, lite := dialect.Postgres{}, dialect.SQLite{}

	t.Run("primary key change", func(t *testing.T) {
		declared := uniqueTable("a", "b")
		declared.Tables[0].PrimaryKey = []string{"id", "a"}
		_, err := schema.Compare(uniqueTable("a", "b"), declared, pg)
		assert.ErrorIs(t, err, orm.ErrMigrationDivergence)
	})

	t.Run("undeclared foreign key target", func(t *testing.T) {
		declared := uniqueTable("a", "b")
		declared.Tables[0].Constraints = append(declared.Tables[0].Constraints, schema.Constraint{
			Name: "pair_a_foreign", Kind: schema.KindForeignKey, Columns: []string{"a"}, RefTable: "ghost", RefColumns: []string{"id"},
		})
		_, err := schema.Compare(&schema.Schema{}, declared, pg)
		var div *orm.MigrationDivergenceError
		require.ErrorAs(t, err, &div)
		assert.Equal(t, "pair_a_foreign", div.Object)
	})

	t.Run("sqlite foreign key on an existing table", func(t *testing.T) {
		v1 := schema.FromRegistry(shop(t, false), lite)
		v1.Tables[1].Constraints = nil
		_, err := schema.Compare(v1, schema.FromRegistry(shop(t, false), lite), lite)
		assert.ErrorIs(t, err, orm.ErrMigrationDivergence)
	})

	t.Run("sqlite column change", func(t *testing.T) {
		_, err := schema.Compare(schema.FromRegistry(shop(t, false), lite), schema.FromRegistry(shop(t, true), lite), lite)
		assert.ErrorIs(t, err, orm.ErrMigrationDivergence)
	})
}

func TestApply_Preconditions(t *testing.T) {
	s := uniqueTable("a", "b")
	_, err := schema.Apply(s, []schema.Operation{{Kind: schema.OpDropIndex, Table: "pair", Index: &schema.Index{Name: "nope"}}})
	assert.ErrorIs(t, err, orm.ErrMigrationDivergence)

	col := schema.Column{Name: "a", Type: "text"}
	_, err = schema.Apply(s, []schema.Operation{{Kind: schema.OpAddColumn, Table: "pair", Column: &col}})
	assert.ErrorIs(t, err, orm.ErrMigrationDivergence)
	assert.Len(t, s.Tables[0].Columns, 3)
}
