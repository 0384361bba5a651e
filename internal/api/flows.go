package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"cropguide/backend/internal/auth"
	"cropguide/backend/internal/media"
	"cropguide/backend/internal/schema"
)

// FlowInfo describes a flow and its shapes as JSON Schema.
type FlowInfo struct {
	Name         string         `json:"name"`
	Description  string         `json:"description"`
	InputSchema  map[string]any `json:"input_schema"`
	OutputSchema map[string]any `json:"output_schema"`
}

// ListFlows returns every available flow
// (GET /api/v1/flows)
func (s *Server) ListFlows(c echo.Context) error {
	flows := s.Service.Flows()
	infos := make([]FlowInfo, 0, len(flows))
	for _, f := range flows {
		def := f.Definition()
		infos = append(infos, FlowInfo{
			Name:         def.Name,
			Description:  def.Description,
			InputSchema:  def.Input.JSONSchema(),
			OutputSchema: def.Output.JSONSchema(),
		})
	}
	return c.JSON(http.StatusOK, infos)
}

// RunFlow runs a flow with a JSON object or multipart form body. Uploaded
// files become data URIs
// (POST /api/v1/flows/{name})
func (s *Server) RunFlow(c echo.Context) error {
	ctx := c.Request().Context()
	name := c.Param("name")

	f, err := s.Service.Flow(name)
	if err != nil {
		return err
	}

	var input map[string]any
	if strings.HasPrefix(c.Request().Header.Get(echo.HeaderContentType), echo.MIMEMultipartForm) {
		input, err = s.bindMultipart(c, f.Definition().Input)
	} else {
		err = decodeJSON(c, &input)
	}
	if err != nil {
		return err
	}

	id, _ := auth.FarmerIDFromContext(ctx)
	out, err := s.Service.RunFlow(ctx, id, name, input)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, out)
}

func decodeJSON(c echo.Context, v any) error {
	dec := json.NewDecoder(c.Request().Body)
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return echo.ErrStatusRequestEntityTooLarge
		}
		return echo.NewHTTPError(http.StatusBadRequest, "request body must be a JSON object: "+err.Error())
	}
	return nil
}

func (s *Server) bindMultipart(c echo.Context, shape *schema.Shape) (map[string]any, error) {
	form, err := c.MultipartForm()
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid multipart form: "+err.Error())
	}

	input := make(map[string]any, len(shape.Fields))
	for _, field := range shape.Fields {
		if field.Format == schema.FormatImage || field.Format == schema.FormatDataURI {
			if files := form.File[field.Name]; len(files) > 0 {
				uri, err := s.readUpload(files[0])
				if err != nil {
					return nil, err
				}
				input[field.Name] = uri
				continue
			}
		}
		if values := form.Value[field.Name]; len(values) > 0 {
			input[field.Name] = formValue(field, values[0])
		}
	}
	return input, nil
}

func (s *Server) readUpload(fh *multipart.FileHeader) (string, error) {
	if fh.Size > s.MaxUpload {
		return "", echo.NewHTTPError(http.StatusRequestEntityTooLarge,
			fmt.Sprintf("file %s exceeds %d bytes", fh.Filename, s.MaxUpload))
	}
	file, err := fh.Open()
	if err != nil {
		return "", echo.NewHTTPError(http.StatusBadRequest, "failed to open upload: "+err.Error())
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, s.MaxUpload+1))
	if err != nil {
		return "", echo.NewHTTPError(http.StatusBadRequest, "failed to read upload: "+err.Error())
	}
	if int64(len(data)) > s.MaxUpload {
		return "", echo.NewHTTPError(http.StatusRequestEntityTooLarge,
			fmt.Sprintf("file %s exceeds %d bytes", fh.Filename, s.MaxUpload))
	}

	mimeType := fh.Header.Get(echo.HeaderContentType)
	if mimeType == "" || mimeType == echo.MIMEOctetStream {
		mimeType = http.DetectContentType(data)
	}
	return media.Encode(mimeType, data), nil
}

// formValue converts a form value to the field's kind. Values that do not
// parse are passed through and rejected by validation.
func formValue(field schema.Field, raw string) any {
	switch field.Kind {
	case schema.KindNumber, schema.KindInteger:
		if n, err := strconv.ParseFloat(strings.TrimSpace(raw), 64); err == nil {
			return n
		}
	case schema.KindBoolean:
		if b, err := strconv.ParseBool(strings.TrimSpace(raw)); err == nil {
			return b
		}
	}
	return raw
}
