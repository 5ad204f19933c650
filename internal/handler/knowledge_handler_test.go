package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"clinic-agent-go/internal/model"
	"clinic-agent-go/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

// fakeKnowledgeService 记录 Reset 调用次数的 KnowledgeService。
type fakeKnowledgeService struct {
	resets   int
	count    int
	resetErr error
}

func (f *fakeKnowledgeService) AddDocuments(ctx context.Context, documents []string, metadatas []model.FaqMetadata, ids []string) error {
	return nil
}

func (f *fakeKnowledgeService) Query(ctx context.Context, text string, k int) ([]model.RetrievalResult, error) {
	return nil, nil
}

func (f *fakeKnowledgeService) Count(ctx context.Context) (int, error) {
	return f.count, nil
}

func (f *fakeKnowledgeService) InitializeFromSource(ctx context.Context) error {
	return nil
}

func (f *fakeKnowledgeService) Reset(ctx context.Context) error {
	f.resets++
	return f.resetErr
}

func newKnowledgeRouter(svc service.KnowledgeService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/api/v1/knowledge/reset", NewKnowledgeHandler(svc).Reset)
	return r
}

func TestKnowledgeReset(t *testing.T) {
	t.Run("successful reset reports document count", func(t *testing.T) {
		svc := &fakeKnowledgeService{count: 8}
		r := newKnowledgeRouter(svc)
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/v1/knowledge/reset", nil)
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, 1, svc.resets)
		assert.Contains(t, w.Body.String(), `"document_count":8`)
	})

	t.Run("reset failure maps to 500", func(t *testing.T) {
		svc := &fakeKnowledgeService{resetErr: errors.New("index unavailable")}
		r := newKnowledgeRouter(svc)
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/v1/knowledge/reset", nil)
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}
