package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/bartek5186/pricebridge/internal/apperr"
	"github.com/bartek5186/pricebridge/internal/dataset"
	"github.com/bartek5186/pricebridge/internal/draft"
	"github.com/bartek5186/pricebridge/internal/queue"
)

type fieldInfo struct {
	Name      string   `json:"name"`
	Kind      string   `json:"kind"`
	Required  bool     `json:"required"`
	Default   *int64   `json:"default,omitempty"`
	Rules     string   `json:"rules,omitempty"`
	Sensitive bool     `json:"sensitive"`
	Synonyms  []string `json:"synonyms"`
}

type datasetInfo struct {
	Type       string      `json:"type"`
	Table      string      `json:"table"`
	KeyColumns []string    `json:"key_columns"`
	Fields     []fieldInfo `json:"fields"`
}

func kindName(k dataset.FieldKind) string {
	switch k {
	case dataset.KindUpper:
		return "upper"
	case dataset.KindInt:
		return "int"
	case dataset.KindFlag:
		return "flag"
	default:
		return "text"
	}
}

func describe(s *dataset.Schema) datasetInfo {
	out := datasetInfo{Type: s.Type, Table: s.Table, KeyColumns: s.KeyColumns}
	for _, f := range s.Fields {
		out.Fields = append(out.Fields, fieldInfo{
			Name:      f.Name,
			Kind:      kindName(f.Kind),
			Required:  f.Required,
			Default:   f.Default,
			Rules:     f.Rules,
			Sensitive: s.IsSensitive(f.Name),
			Synonyms:  f.Synonyms,
		})
	}
	return out
}

func (s *Server) listDatasets(c *gin.Context) {
	out := []datasetInfo{}
	for _, t := range dataset.Types() {
		if schema, ok := dataset.Lookup(t); ok {
			out = append(out, describe(schema))
		}
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) getDataset(c *gin.Context) {
	schema, err := schemaParam(c)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, describe(schema))
}

func (s *Server) listBatches(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	user := c.GetString(ctxUserID)
	if c.GetString(ctxRole) == RoleAdmin && c.Query("all") == "1" {
		user = ""
	}
	out, err := s.batches.ListBatches(c.Request.Context(), user, limit)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// ownBatch: cudzy batch wygląda dla zwykłego użytkownika jak nieistniejący.
func (s *Server) ownBatch(c *gin.Context) (string, error) {
	id := c.Param("id")
	b, err := s.batches.GetBatch(c.Request.Context(), id)
	if err != nil {
		return "", err
	}
	if b.UserID != c.GetString(ctxUserID) && c.GetString(ctxRole) != RoleAdmin {
		return "", apperr.NotFound("import batch " + id + " not found")
	}
	c.Set("batch", b)
	return id, nil
}

func (s *Server) getBatch(c *gin.Context) {
	if _, err := s.ownBatch(c); err != nil {
		c.Error(err)
		return
	}
	b, _ := c.Get("batch")
	c.JSON(http.StatusOK, b)
}

func (s *Server) batchChanges(c *gin.Context) {
	id, err := s.ownBatch(c)
	if err != nil {
		c.Error(err)
		return
	}
	logs, err := s.batches.ChangeLogs(c.Request.Context(), id)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, logs)
}

func (s *Server) loadDraft(c *gin.Context) {
	schema, err := schemaParam(c)
	if err != nil {
		c.Error(err)
		return
	}
	snap, err := s.drafts.Load(c.Request.Context(), c.GetString(ctxUserID), schema.Type)
	if err != nil {
		c.Error(apperr.Persistence("load draft", err))
		return
	}
	if snap == nil {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (s *Server) saveDraft(c *gin.Context) {
	schema, err := schemaParam(c)
	if err != nil {
		c.Error(err)
		return
	}
	var snap draft.Snapshot
	if err := c.ShouldBindJSON(&snap); err != nil {
		c.Error(apperr.BadRequest("invalid draft body", err))
		return
	}
	snap.Dataset = schema.Type
	if err := snap.Resolutions.Validate(); err != nil {
		c.Error(apperr.BadRequest("invalid resolutions", err))
		return
	}
	if err := s.drafts.Save(c.Request.Context(), c.GetString(ctxUserID), &snap); err != nil {
		c.Error(apperr.Persistence("save draft", err))
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (s *Server) clearDraft(c *gin.Context) {
	schema, err := schemaParam(c)
	if err != nil {
		c.Error(err)
		return
	}
	if err := s.drafts.Clear(c.Request.Context(), c.GetString(ctxUserID), schema.Type); err != nil {
		c.Error(apperr.Persistence("clear draft", err))
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) processImport(c *gin.Context) {
	var m queue.Message
	if err := c.ShouldBindJSON(&m); err != nil {
		c.Error(apperr.BadRequest("invalid job body", err))
		return
	}
	out, err := s.processor.Run(c.Request.Context(), m)
	if err != nil {
		var ae *apperr.Error
		if errors.As(err, &ae) && ae.Kind == apperr.KindValidation && out != nil {
			c.JSON(ae.Code, gin.H{"error": ae.Message, "kind": ae.Kind, "outcome": out})
			return
		}
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, out)
}

type replaceBody struct {
	Rows []map[string]any `json:"rows"`
}

func (s *Server) replace(c *gin.Context, schema *dataset.Schema) {
	var body replaceBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.Error(apperr.BadRequest("invalid body, expected {\"rows\": [...]}", err))
		return
	}
	res, err := s.replacer.ReplaceAll(c.Request.Context(), schema, body.Rows, c.GetString(ctxUserID), "function:"+schema.Table)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) replaceClassifications(c *gin.Context) {
	s.replace(c, dataset.ClassificationSchema)
}

func (s *Server) replaceSegments(c *gin.Context) {
	s.replace(c, dataset.SegmentSchema)
}
