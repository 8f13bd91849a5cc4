package orm_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tinywasm/orm/v2"
)

type invoice struct{}

func (invoice) TableName() string { return "invoices" }

func (invoice) Schema() []orm.Field {
	return []orm.Field{
		{Name: "id", Type: orm.TypeUUID, Constraints: orm.ConstraintPK},
		{Name: "total", Type: orm.TypeDecimal, Constraints: orm.ConstraintNotNull},
		{Name: "customer_id", Type: orm.TypeInt64, Ref: "Customer"},
	}
}

func TestRegistryBuilder(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		reg := shopRegistry(t)
		product, err := reg.Entity("Product")
		require.NoError(t, err)
		assert.Equal(t, "product", product.Table())
		assert.Equal(t, "id", product.PrimaryKey().Name)
		assert.Equal(t, []string{"id", "name", "note", "brand"}, product.Properties())

		rel, ok := product.Relation("brand")
		require.True(t, ok)
		assert.Equal(t, "brand_id", rel.Column)
		assert.Equal(t, "Brand", rel.TargetEntity().Name())

		doc, _ := reg.Entity("Doc")
		assert.Equal(t, "version", doc.VersionField())
	})

	t.Run("model declaration", func(t *testing.T) {
		b := orm.NewRegistryBuilder()
		b.Entity("Customer").PrimaryKey("id", orm.TypeInt64)
		b.Entity("Invoice").Model(invoice{}).Unique("customer", "total").Index("total")
		reg, err := b.Build()
		require.NoError(t, err)

		inv, err := reg.Entity("Invoice")
		require.NoError(t, err)
		assert.Equal(t, "invoices", inv.Table())
		rel, ok := inv.Relation("customer")
		require.True(t, ok)
		assert.Equal(t, "customer_id", rel.Column)
		assert.True(t, rel.Nullable)
		assert.Equal(t, "invoices_customer_id_total_unique", inv.Uniques()[0].Name)
		assert.Equal(t, "invoices_total_index", inv.Indexes()[0].Name)
	})

	t.Run("invalid declarations", func(t *testing.T) {
		cases := map[string]func(b *orm.RegistryBuilder){
			"missing primary key": func(b *orm.RegistryBuilder) {
				b.Entity("A").Field("x", orm.TypeText)
			},
			"duplicate field": func(b *orm.RegistryBuilder) {
				b.Entity("A").PrimaryKey("id", orm.TypeInt64).Field("id", orm.TypeText)
			},
			"unknown target": func(b *orm.RegistryBuilder) {
				b.Entity("A").PrimaryKey("id", orm.TypeInt64).ManyToOne("b", "B")
			},
			"bad mappedBy": func(b *orm.RegistryBuilder) {
				b.Entity("A").PrimaryKey("id", orm.TypeInt64).OneToMany("bs", "B", "a")
				b.Entity("B").PrimaryKey("id", orm.TypeInt64)
			},
			"float key": func(b *orm.RegistryBuilder) {
				b.Entity("A").PrimaryKey("id", orm.TypeFloat64)
			},
			"unique on unknown field": func(b *orm.RegistryBuilder) {
				b.Entity("A").PrimaryKey("id", orm.TypeInt64).Unique("nope")
			},
		}
		for name, declare := range cases {
			t.Run(name, func(t *testing.T) {
				b := orm.NewRegistryBuilder()
				declare(b)
				_, err := b.Build()
				assert.ErrorIs(t, err, orm.ErrInvalidMetadata)
			})
		}
	})
}
