package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/bartek5186/pricebridge/internal/apperr"
	"github.com/bartek5186/pricebridge/internal/dataset"
	"github.com/bartek5186/pricebridge/internal/importer"
	"github.com/bartek5186/pricebridge/internal/reconcile"
	"github.com/bartek5186/pricebridge/internal/sheet"
)

type upload struct {
	schema  *dataset.Schema
	name    string
	content []byte
}

func schemaParam(c *gin.Context) (*dataset.Schema, error) {
	s, err := dataset.MustLookup(c.Param("type"))
	if err != nil {
		return nil, apperr.NotFound(err.Error())
	}
	return s, nil
}

// readUpload czyta pole multipart "file" z limitem rozmiaru.
func (s *Server) readUpload(c *gin.Context) (*upload, error) {
	schema, err := schemaParam(c)
	if err != nil {
		return nil, err
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.opt.MaxUploadBytes+1<<20)

	fh, err := c.FormFile("file")
	if err != nil {
		return nil, apperr.BadRequest("multipart field \"file\" is required", err)
	}
	if fh.Size > s.opt.MaxUploadBytes {
		return nil, apperr.BadRequest(fmt.Sprintf("file is larger than %d bytes", s.opt.MaxUploadBytes), nil)
	}
	f, err := fh.Open()
	if err != nil {
		return nil, apperr.BadRequest("cannot open uploaded file", err)
	}
	defer f.Close()
	content, err := io.ReadAll(io.LimitReader(f, s.opt.MaxUploadBytes+1))
	if err != nil {
		return nil, apperr.BadRequest("cannot read uploaded file", err)
	}
	if int64(len(content)) > s.opt.MaxUploadBytes {
		return nil, apperr.BadRequest(fmt.Sprintf("file is larger than %d bytes", s.opt.MaxUploadBytes), nil)
	}
	return &upload{schema: schema, name: fh.Filename, content: content}, nil
}

// formJSON dekoduje opcjonalne pole formularza zawierające JSON.
func formJSON(c *gin.Context, field string, dst any) error {
	raw := strings.TrimSpace(c.PostForm(field))
	if raw == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return apperr.BadRequest(fmt.Sprintf("field %q is not valid JSON", field), err)
	}
	return nil
}

func (s *Server) inspect(c *gin.Context) {
	up, err := s.readUpload(c)
	if err != nil {
		c.Error(err)
		return
	}
	table, err := sheet.Read(up.name, bytes.NewReader(up.content))
	if err != nil {
		c.Error(apperr.BadRequest("cannot read file "+up.name, err))
		return
	}
	sample := table.Raw()
	if len(sample) > 5 {
		sample = sample[:5]
	}
	c.JSON(http.StatusOK, gin.H{
		"dataset":   up.schema.Type,
		"file_name": up.name,
		"headers":   table.Headers,
		"mapping":   dataset.GuessMapping(table.Headers, up.schema),
		"rows":      len(table.Rows),
		"sample":    sample,
	})
}

func (s *Server) plan(c *gin.Context) {
	up, err := s.readUpload(c)
	if err != nil {
		c.Error(err)
		return
	}
	var mapping map[string]string
	if err := formJSON(c, "mapping", &mapping); err != nil {
		c.Error(err)
		return
	}
	table, err := sheet.Read(up.name, bytes.NewReader(up.content))
	if err != nil {
		c.Error(apperr.BadRequest("cannot read file "+up.name, err))
		return
	}
	plan, err := s.planner.Prepare(c.Request.Context(), up.schema, up.name, table, mapping)
	if err != nil {
		c.Error(err)
		return
	}

	if c.Query("format") == "csv" {
		var buf bytes.Buffer
		if err := dataset.WriteErrorsCSV(&buf, plan.Errors); err != nil {
			c.Error(apperr.Internal(err))
			return
		}
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", up.schema.Type+"-errors.csv"))
		c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"dataset":      plan.Dataset,
		"file_name":    plan.FileName,
		"headers":      plan.Headers,
		"mapping":      plan.Mapping,
		"total_lines":  plan.TotalLines,
		"valid":        len(plan.Valid),
		"errors":       plan.Errors.First(s.opt.MaxReportedErrors),
		"errors_total": len(plan.Errors),
		"counts":       plan.Diff.Counts,
		"items":        plan.Diff.Items,
	})
}

func (s *Server) request(c *gin.Context, up *upload) (importer.Request, error) {
	req := importer.Request{
		Dataset:  up.schema.Type,
		FileName: up.name,
		Content:  up.content,
		UserID:   c.GetString(ctxUserID),
	}
	if err := formJSON(c, "mapping", &req.Mapping); err != nil {
		return req, err
	}
	var res reconcile.Resolutions
	if err := formJSON(c, "resolutions", &res); err != nil {
		return req, err
	}
	req.Resolutions = res
	var bulk importer.BulkRule
	if err := formJSON(c, "bulk", &bulk); err != nil {
		return req, err
	}
	if bulk.Action != "" {
		req.Bulk = &bulk
	}
	if t := strings.TrimSpace(c.PostForm("template_id")); t != "" {
		req.TemplateID = &t
	}
	return req, nil
}

func (s *Server) applyImport(c *gin.Context) {
	up, err := s.readUpload(c)
	if err != nil {
		c.Error(err)
		return
	}
	req, err := s.request(c, up)
	if err != nil {
		c.Error(err)
		return
	}
	res, err := s.apply.Execute(c.Request.Context(), req)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) applyImportAsync(c *gin.Context) {
	if s.applyAsync == nil {
		c.Error(apperr.New(apperr.KindInternal, http.StatusServiceUnavailable, "deferred imports are not configured", nil))
		return
	}
	up, err := s.readUpload(c)
	if err != nil {
		c.Error(err)
		return
	}
	req, err := s.request(c, up)
	if err != nil {
		c.Error(err)
		return
	}
	res, err := s.applyAsync.Execute(c.Request.Context(), req)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusAccepted, res)
}
