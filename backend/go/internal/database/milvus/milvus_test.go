package milvus

import (
	"Neurologix/backend/go/internal/config"
	"testing"

	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuoteList(t *testing.T) {
	assert.Equal(t, `["LSU_TIGERS","DEMO_TEAM"]`, QuoteList([]string{"LSU_TIGERS", "DEMO_TEAM"}))
	assert.Equal(t, `["a\"b"]`, QuoteList([]string{`a"b`}))
	assert.Equal(t, `[]`, QuoteList(nil))
}

func TestBuildIndexFromConfig(t *testing.T) {
	c := &MilvusClient{Config: &config.MilvusConfig{Schema: config.SchemaConfig{
		Index: config.IndexConfig{FieldName: "embedding", IndexType: "IVF_FLAT", MetricType: "L2", Params: map[string]interface{}{"nlist": 64}},
	}}}
	idx, err := c.buildIndexFromConfig()
	require.NoError(t, err)
	assert.Equal(t, entity.IvfFlat, idx.IndexType())

	c.Config.Schema.Index.MetricType = "IP"
	_, err = c.buildIndexFromConfig()
	assert.Error(t, err)
}

func TestBuildField(t *testing.T) {
	f, err := buildField(config.FieldConfig{Name: "team_id", DataType: "VarChar"})
	require.NoError(t, err)
	assert.Equal(t, entity.FieldTypeVarChar, f.DataType)
	assert.Equal(t, "256", f.TypeParams["max_length"])

	_, err = buildField(config.FieldConfig{Name: "x", DataType: "JSON"})
	assert.Error(t, err)
}
