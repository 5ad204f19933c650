// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"clinic-agent-go/internal/config"
	"clinic-agent-go/internal/model"
	"clinic-agent-go/pkg/embedding"
	"clinic-agent-go/pkg/es"
	"clinic-agent-go/pkg/log"
	"clinic-agent-go/pkg/storage"
)

// KnowledgeService 定义了 FAQ 知识索引的操作接口。
type KnowledgeService interface {
	// AddDocuments 向量化并写入文档；ids 为空时按 doc_<count+i> 顺序编号；空输入为 no-op。
	AddDocuments(ctx context.Context, documents []string, metadatas []model.FaqMetadata, ids []string) error
	// Query 返回与查询文本最相近的至多 k 条结果，按余弦距离升序排列。
	Query(ctx context.Context, text string, k int) ([]model.RetrievalResult, error)
	Count(ctx context.Context) (int, error)
	// InitializeFromSource 从知识源初始化索引，幂等：索引非空时直接跳过。
	InitializeFromSource(ctx context.Context) error
	// Reset 删除并重建索引，然后从知识源重新导入。
	Reset(ctx context.Context) error
}

// FaqIndex 抽象了知识服务依赖的向量索引操作。
type FaqIndex interface {
	Count(ctx context.Context, indexName string) (int, error)
	Index(ctx context.Context, indexName string, doc model.FaqDocument) error
	Search(ctx context.Context, indexName string, vector []float32, k int) ([]es.KnnResult, error)
	Delete(ctx context.Context, indexName string) error
	Ensure(indexName string, dims int) error
}

// elasticFaqIndex 把 FaqIndex 委托给 pkg/es 的 Elasticsearch 客户端。
type elasticFaqIndex struct{}

// NewElasticFaqIndex 返回基于 Elasticsearch 的 FaqIndex 实现。
func NewElasticFaqIndex() FaqIndex { return elasticFaqIndex{} }

func (elasticFaqIndex) Count(ctx context.Context, indexName string) (int, error) {
	return es.CountDocuments(ctx, indexName)
}

func (elasticFaqIndex) Index(ctx context.Context, indexName string, doc model.FaqDocument) error {
	return es.IndexDocument(ctx, indexName, doc)
}

func (elasticFaqIndex) Search(ctx context.Context, indexName string, vector []float32, k int) ([]es.KnnResult, error) {
	return es.KnnSearch(ctx, indexName, vector, k)
}

func (elasticFaqIndex) Delete(ctx context.Context, indexName string) error {
	return es.DeleteIndex(ctx, indexName)
}

func (elasticFaqIndex) Ensure(indexName string, dims int) error {
	return es.EnsureIndex(indexName, dims)
}

type knowledgeService struct {
	index           FaqIndex
	embeddingClient embedding.Client
	indexName       string
	modelVersion    string
	knowledgeCfg    config.KnowledgeConfig
	minioBucket     string
}

// NewKnowledgeService 创建一个新的 KnowledgeService 实例。
func NewKnowledgeService(index FaqIndex, embeddingClient embedding.Client, esCfg config.ElasticsearchConfig, embCfg config.EmbeddingConfig, knowledgeCfg config.KnowledgeConfig, minioCfg config.MinIOConfig) KnowledgeService {
	return &knowledgeService{
		index:           index,
		embeddingClient: embeddingClient,
		indexName:       esCfg.IndexName,
		modelVersion:    embCfg.Model,
		knowledgeCfg:    knowledgeCfg,
		minioBucket:     minioCfg.BucketName,
	}
}

// AddDocuments 将文档批量向量化后写入 Elasticsearch。
func (s *knowledgeService) AddDocuments(ctx context.Context, documents []string, metadatas []model.FaqMetadata, ids []string) error {
	if len(documents) == 0 {
		return nil
	}
	if len(metadatas) != len(documents) {
		return fmt.Errorf("metadata count %d does not match document count %d", len(metadatas), len(documents))
	}

	vectors := s.embeddingClient.CreateEmbeddings(ctx, documents)

	if len(ids) == 0 {
		existing, err := s.index.Count(ctx, s.indexName)
		if err != nil {
			return fmt.Errorf("failed to count documents: %w", err)
		}
		ids = make([]string, len(documents))
		for i := range documents {
			ids[i] = fmt.Sprintf("doc_%d", existing+i)
		}
	}

	for i, doc := range documents {
		esDoc := model.FaqDocument{
			FaqID:        ids[i],
			Content:      doc,
			Question:     metadatas[i].Question,
			Answer:       metadatas[i].Answer,
			Category:     metadatas[i].Category,
			Vector:       vectors[i],
			ModelVersion: s.modelVersion,
		}
		if err := s.index.Index(ctx, s.indexName, esDoc); err != nil {
			return fmt.Errorf("failed to index document '%s': %w", ids[i], err)
		}
	}

	log.Infof("[KnowledgeService] 已向知识索引写入 %d 条文档", len(documents))
	return nil
}

// Query 向量化查询文本并执行 knn 检索。
func (s *knowledgeService) Query(ctx context.Context, text string, k int) ([]model.RetrievalResult, error) {
	count, err := s.index.Count(ctx, s.indexName)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return []model.RetrievalResult{}, nil
	}

	vector := s.embeddingClient.CreateEmbedding(ctx, text)
	hits, err := s.index.Search(ctx, s.indexName, vector, k)
	if err != nil {
		return nil, err
	}

	results := make([]model.RetrievalResult, 0, len(hits))
	for _, hit := range hits {
		results = append(results, model.RetrievalResult{
			ID:       hit.Doc.FaqID,
			Document: hit.Doc.Content,
			Metadata: model.FaqMetadata{
				Question: hit.Doc.Question,
				Answer:   hit.Doc.Answer,
				Category: hit.Doc.Category,
			},
			Distance: hit.Distance,
		})
	}
	return results, nil
}

// Count 返回知识索引中的文档数。
func (s *knowledgeService) Count(ctx context.Context) (int, error) {
	return s.index.Count(ctx, s.indexName)
}

// Reset 删除并重建索引，然后从知识源重新导入全部 FAQ。运维入口。
func (s *knowledgeService) Reset(ctx context.Context) error {
	if err := s.index.Delete(ctx, s.indexName); err != nil {
		return fmt.Errorf("failed to delete knowledge index: %w", err)
	}
	if err := s.index.Ensure(s.indexName, s.embeddingClient.Dimensions()); err != nil {
		return fmt.Errorf("failed to recreate knowledge index: %w", err)
	}
	log.Infof("[KnowledgeService] 知识索引已重建，开始重新导入")
	return s.InitializeFromSource(ctx)
}

// InitializeFromSource 从 MinIO 或本地文件加载诊所知识库并建立索引。
func (s *knowledgeService) InitializeFromSource(ctx context.Context) error {
	count, err := s.index.Count(ctx, s.indexName)
	if err != nil {
		return fmt.Errorf("failed to count documents: %w", err)
	}
	if count > 0 {
		log.Infof("[KnowledgeService] 知识索引已有 %d 条文档，跳过初始化导入", count)
		return nil
	}

	data := s.loadSource(ctx)
	if data == nil {
		// 找不到知识源不是错误，保持空索引即可
		log.Warnf("[KnowledgeService] 未找到知识源（object='%s', path='%s'），索引保持为空",
			s.knowledgeCfg.SourceObject, s.knowledgeCfg.SourcePath)
		return nil
	}

	entries, err := parseFaqSource(data)
	if err != nil {
		return fmt.Errorf("failed to parse knowledge source: %w", err)
	}
	if len(entries) == 0 {
		log.Warnf("[KnowledgeService] 知识源中没有有效的 FAQ 条目")
		return nil
	}

	documents := make([]string, 0, len(entries))
	ids := make([]string, 0, len(entries))
	for i, entry := range entries {
		documents = append(documents, fmt.Sprintf("Question: %s\nAnswer: %s", entry.Question, entry.Answer))
		ids = append(ids, fmt.Sprintf("faq_%d", i))
	}

	if err := s.AddDocuments(ctx, documents, entries, ids); err != nil {
		return err
	}
	log.Infof("[KnowledgeService] 知识索引初始化完成，共导入 %d 条 FAQ", len(entries))
	return nil
}

// loadSource 优先从 MinIO 获取知识源，失败后回退到本地文件。
func (s *knowledgeService) loadSource(ctx context.Context) []byte {
	if s.knowledgeCfg.SourceObject != "" && storage.MinioClient != nil {
		data, err := storage.FetchObject(ctx, s.minioBucket, s.knowledgeCfg.SourceObject)
		if err == nil {
			log.Infof("[KnowledgeService] 已从 MinIO 获取知识源对象 '%s'", s.knowledgeCfg.SourceObject)
			return data
		}
		log.Warnf("[KnowledgeService] 从 MinIO 获取知识源失败，尝试本地文件: %v", err)
	}

	if s.knowledgeCfg.SourcePath != "" {
		data, err := os.ReadFile(s.knowledgeCfg.SourcePath)
		if err == nil {
			log.Infof("[KnowledgeService] 已读取本地知识源文件 '%s'", s.knowledgeCfg.SourcePath)
			return data
		}
		log.Warnf("[KnowledgeService] 读取本地知识源文件失败: %v", err)
	}
	return nil
}

// parseFaqSource 解析知识源 JSON。
// 支持三种形态：带 faqs/questions 键的对象、扁平的 问题->答案 映射、裸条目数组。
func parseFaqSource(data []byte) ([]model.FaqMetadata, error) {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	switch v := raw.(type) {
	case map[string]interface{}:
		if faqs, ok := v["faqs"]; ok {
			return parseEntryList(faqs)
		}
		if questions, ok := v["questions"]; ok {
			return parseEntryList(questions)
		}
		// 扁平映射：每个键值对视为一条 FAQ，按键排序保证编号稳定
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		entries := make([]model.FaqMetadata, 0, len(keys))
		for _, k := range keys {
			answer, ok := v[k].(string)
			if !ok {
				continue
			}
			entries = append(entries, model.FaqMetadata{Question: k, Answer: answer, Category: "general"})
		}
		return entries, nil
	case []interface{}:
		return parseEntryList(v)
	}
	return nil, fmt.Errorf("unsupported knowledge source structure")
}

// parseEntryList 解析 {question, answer, category?} 条目数组。
func parseEntryList(raw interface{}) ([]model.FaqMetadata, error) {
	list, ok := raw.([]interface{})
	if !ok {
		return nil, fmt.Errorf("faq entries are not a list")
	}

	entries := make([]model.FaqMetadata, 0, len(list))
	for _, item := range list {
		m, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		entry := model.FaqMetadata{Category: "general"}
		if q, ok := m["question"].(string); ok {
			entry.Question = q
		}
		if a, ok := m["answer"].(string); ok {
			entry.Answer = a
		}
		if c, ok := m["category"].(string); ok && c != "" {
			entry.Category = c
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
