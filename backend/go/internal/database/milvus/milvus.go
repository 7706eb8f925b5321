package milvus

import (
	"Neurologix/backend/go/internal/config"
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
)

var (
	instance *MilvusClient
	once     sync.Once
	initErr  error
)

// MilvusClient 包含了 Milvus 客户端实例和相关配置。
type MilvusClient struct {
	Client client.Client        // Milvus 客户端实例。
	Config *config.MilvusConfig // Milvus 配置。
}

// GetClient 使用单例模式创建并返回一个 Milvus 客户端实例。
func GetClient(ctx context.Context, cfg *config.MilvusConfig) (*MilvusClient, error) {
	once.Do(func() {
		c, err := client.NewClient(ctx, client.Config{Address: cfg.Address})
		if err != nil {
			initErr = fmt.Errorf("无法连接到 Milvus: %w", err)
			return
		}
		log.Println("✅ 成功连接到 Milvus!")
		instance = &MilvusClient{Client: c, Config: cfg}
	})
	return instance, initErr
}

// Close 安全地关闭与 Milvus 的连接。
func (c *MilvusClient) Close() {
	if c != nil && c.Client != nil {
		c.Client.Close()
		log.Println("ℹ️ 已安全关闭 Milvus 连接。")
	}
}

// HealthCheck 检查 Milvus 连接的健康状况。
func (c *MilvusClient) HealthCheck(ctx context.Context) error {
	if c == nil || c.Client == nil {
		return fmt.Errorf("Milvus client is nil")
	}
	if _, err := c.Client.ListCollections(ctx); err != nil {
		return fmt.Errorf("Milvus health check failed: %w", err)
	}
	return nil
}

// Dimension 返回集合向量字段的维度。
func (c *MilvusClient) Dimension() int {
	return c.Config.Dimension()
}

// Insert 将一批列写入集合的默认分区。
func (c *MilvusClient) Insert(ctx context.Context, columns ...entity.Column) error {
	collName := c.Config.Schema.CollectionName
	if _, err := c.Client.Insert(ctx, collName, "", columns...); err != nil {
		return fmt.Errorf("向集合 '%s' 写入数据失败: %w", collName, err)
	}
	return nil
}

// Search 在整个集合中执行带过滤表达式的 L2 向量检索。
// 返回结果中的分数是平方 L2 距离，越小越相似。
func (c *MilvusClient) Search(ctx context.Context, expr string, outputFields []string, vector []float32, topK int) ([]client.SearchResult, error) {
	collName := c.Config.Schema.CollectionName
	sp, err := c.searchParam()
	if err != nil {
		return nil, err
	}
	results, err := c.Client.Search(
		ctx,
		collName,
		nil,
		expr,
		outputFields,
		[]entity.Vector{entity.FloatVector(vector)},
		c.Config.Schema.VectorField,
		entity.L2,
		topK,
		sp,
	)
	if err != nil {
		return nil, fmt.Errorf("在集合 '%s' 中搜索失败: %w", collName, err)
	}
	return results, nil
}

// DeleteByIDs 按主键删除记录，供重新索引同一文档时使用。
func (c *MilvusClient) DeleteByIDs(ctx context.Context, idField string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	collName := c.Config.Schema.CollectionName
	expr := fmt.Sprintf("%s in %s", idField, QuoteList(ids))
	if err := c.Client.Delete(ctx, collName, "", expr); err != nil {
		return fmt.Errorf("从集合 '%s' 删除数据失败: %w", collName, err)
	}
	return nil
}

// FlushCollection 手动触发一次刷新操作，将内存中的数据写入磁盘。
func (c *MilvusClient) FlushCollection(ctx context.Context) error {
	collName := c.Config.Schema.CollectionName
	log.Printf("⏳ 正在手动刷新集合 '%s'…", collName)
	if err := c.Client.Flush(ctx, collName, false); err != nil {
		return fmt.Errorf("刷新集合 '%s' 失败: %w", collName, err)
	}
	log.Printf("✅ 集合 '%s' 刷新成功！", collName)
	return nil
}

// EnsureCollection 确保 Milvus 集合存在并已加载。集合不存在时根据配置创建 Schema 和索引。
func (c *MilvusClient) EnsureCollection(ctx context.Context) error {
	collName := c.Config.Schema.CollectionName
	exists, err := c.Client.HasCollection(ctx, collName)
	if err != nil {
		return fmt.Errorf("检查集合是否存在时出错: %w", err)
	}
	if !exists {
		schema := entity.NewSchema().
			WithName(collName).
			WithDescription(c.Config.Schema.Description)
		for _, fieldCfg := range c.Config.Schema.Fields {
			field, err := buildField(fieldCfg)
			if err != nil {
				return err
			}
			schema = schema.WithField(field)
		}

		if err := c.Client.CreateCollection(ctx, schema, entity.DefaultShardNumber); err != nil {
			return fmt.Errorf("创建集合失败: %w", err)
		}
		idx, err := c.buildIndexFromConfig()
		if err != nil {
			return err
		}
		if err := c.Client.CreateIndex(ctx, collName, c.Config.Schema.Index.FieldName, idx, false); err != nil {
			return fmt.Errorf("为字段 '%s' 创建索引失败: %w", c.Config.Schema.Index.FieldName, err)
		}
		log.Printf("✅ 已创建集合 '%s'", collName)
	}

	if err := c.Client.LoadCollection(ctx, collName, false); err != nil {
		return fmt.Errorf("加载 Milvus 集合 '%s' 失败: %w", collName, err)
	}
	return nil
}

func buildField(fieldCfg config.FieldConfig) (*entity.Field, error) {
	field := entity.NewField().WithName(fieldCfg.Name)
	if fieldCfg.IsPrimaryKey {
		field = field.WithIsPrimaryKey(true)
	}
	if fieldCfg.IsAutoID {
		field = field.WithIsAutoID(true)
	}

	switch fieldCfg.DataType {
	case "Int64":
		field = field.WithDataType(entity.FieldTypeInt64)
	case "VarChar":
		maxLength := fieldCfg.MaxLength
		if maxLength <= 0 {
			maxLength = 256
		}
		field = field.WithDataType(entity.FieldTypeVarChar).WithMaxLength(int64(maxLength))
	case "FloatVector":
		field = field.WithDataType(entity.FieldTypeFloatVector).WithDim(int64(fieldCfg.Dim))
	case "Float":
		field = field.WithDataType(entity.FieldTypeFloat)
	case "Double":
		field = field.WithDataType(entity.FieldTypeDouble)
	case "Bool":
		field = field.WithDataType(entity.FieldTypeBool)
	default:
		return nil, fmt.Errorf("不支持的数据类型: %s", fieldCfg.DataType)
	}
	return field, nil
}

// buildIndexFromConfig 是一个辅助函数，用于从配置构建索引实体。
// 检索分数按 L2 距离换算，因此这里不接受其他度量类型。
func (c *MilvusClient) buildIndexFromConfig() (entity.Index, error) {
	indexCfg := c.Config.Schema.Index
	if indexCfg.MetricType != "" && indexCfg.MetricType != string(entity.L2) {
		return nil, fmt.Errorf("不支持的度量类型: %s (仅支持 L2)", indexCfg.MetricType)
	}

	switch indexCfg.IndexType {
	case "IVF_FLAT":
		return entity.NewIndexIvfFlat(entity.L2, intParam(indexCfg.Params, "nlist", 128))
	case "HNSW":
		return entity.NewIndexHNSW(entity.L2, intParam(indexCfg.Params, "M", 8), intParam(indexCfg.Params, "efConstruction", 96))
	case "IVF_SQ8":
		return entity.NewIndexIvfSQ8(entity.L2, intParam(indexCfg.Params, "nlist", 128))
	case "", "AUTOINDEX":
		return entity.NewIndexAUTOINDEX(entity.L2)
	default:
		return nil, fmt.Errorf("不支持的索引类型: %s", indexCfg.IndexType)
	}
}

// searchParam 根据索引类型构建对应的检索参数。
func (c *MilvusClient) searchParam() (entity.SearchParam, error) {
	indexCfg := c.Config.Schema.Index
	switch indexCfg.IndexType {
	case "IVF_FLAT", "IVF_SQ8":
		nprobe := c.Config.NProbe
		if nprobe <= 0 {
			nprobe = 10
		}
		return entity.NewIndexIvfFlatSearchParam(nprobe)
	case "HNSW":
		return entity.NewIndexHNSWSearchParam(intParam(indexCfg.Params, "ef", 64))
	default:
		return entity.NewIndexAUTOINDEXSearchParam(1)
	}
}

func intParam(params map[string]interface{}, key string, fallback int) int {
	if v, ok := params[key].(int); ok && v > 0 {
		return v
	}
	return fallback
}

// QuoteList 把字符串列表渲染为 Milvus 过滤表达式中的数组字面量，例如 ["a","b"]。
func QuoteList(values []string) string {
	out := make([]byte, 0, len(values)*8+2)
	out = append(out, '[')
	for i, v := range values {
		if i > 0 {
			out = append(out, ',')
		}
		out = append(out, '"')
		for _, r := range v {
			if r == '"' || r == '\\' {
				out = append(out, '\\')
			}
			out = append(out, string(r)...)
		}
		out = append(out, '"')
	}
	return string(append(out, ']'))
}
