package api

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"gopkg.in/yaml.v3"

	"cropguide/backend/internal/agronomy"
	"cropguide/backend/internal/flow"
	"cropguide/backend/internal/schema"
)

// OpenAPIInfo carries the values of the generated document that are not
// derived from the flows.
type OpenAPIInfo struct {
	Title   string
	Version string
	// Issuer is the OpenID Connect issuer; security schemes are omitted when empty.
	Issuer string
	Scopes []string
}

type openAPIDocument struct {
	OpenAPI    string                          `yaml:"openapi"`
	Info       openAPIMeta                     `yaml:"info"`
	Paths      map[string]map[string]operation `yaml:"paths"`
	Components components                      `yaml:"components"`
	Security   []map[string][]string           `yaml:"security,omitempty"`
}

type openAPIMeta struct {
	Title       string `yaml:"title"`
	Version     string `yaml:"version"`
	Description string `yaml:"description,omitempty"`
}

type operation struct {
	OperationID string              `yaml:"operationId"`
	Summary     string              `yaml:"summary"`
	Description string              `yaml:"description,omitempty"`
	Tags        []string            `yaml:"tags,omitempty"`
	Parameters  []parameter         `yaml:"parameters,omitempty"`
	RequestBody *requestBody        `yaml:"requestBody,omitempty"`
	Responses   map[string]response `yaml:"responses"`
	// Security overrides the document default; an empty list marks the operation public.
	Security *[]map[string][]string `yaml:"security,omitempty"`
}

type parameter struct {
	Name     string         `yaml:"name"`
	In       string         `yaml:"in"`
	Required bool           `yaml:"required,omitempty"`
	Schema   map[string]any `yaml:"schema"`
}

type requestBody struct {
	Required bool                 `yaml:"required"`
	Content  map[string]mediaType `yaml:"content"`
}

type response struct {
	Description string               `yaml:"description"`
	Content     map[string]mediaType `yaml:"content,omitempty"`
}

type mediaType struct {
	Schema map[string]any `yaml:"schema"`
}

type components struct {
	Schemas         map[string]map[string]any `yaml:"schemas"`
	SecuritySchemes map[string]map[string]any `yaml:"securitySchemes,omitempty"`
}

func ref(name string) map[string]any {
	return map[string]any{"$ref": "#/components/schemas/" + name}
}

func jsonContent(schema map[string]any) map[string]mediaType {
	return map[string]mediaType{echo.MIMEApplicationJSON: {Schema: schema}}
}

func problemResponses(codes ...int) map[string]response {
	out := make(map[string]response, len(codes))
	for _, code := range codes {
		out[fmt.Sprint(code)] = response{
			Description: http.StatusText(code),
			Content:     map[string]mediaType{MIMEProblemJSON: {Schema: ref("Problem")}},
		}
	}
	return out
}

func withOK(responses map[string]response, schema map[string]any) map[string]response {
	responses["200"] = response{Description: "OK", Content: jsonContent(schema)}
	return responses
}

// multipartSchema mirrors an input shape for form uploads: data URI fields
// become binary file parts.
func multipartSchema(shape *schema.Shape) map[string]any {
	s := shape.JSONSchema()
	props, _ := s["properties"].(map[string]any)
	for _, f := range shape.Fields {
		if f.Format == schema.FormatImage || f.Format == schema.FormatDataURI {
			props[f.Name] = map[string]any{"type": "string", "format": "binary", "description": f.Description}
		}
	}
	return s
}

func hasMedia(shape *schema.Shape) bool {
	for _, f := range shape.Fields {
		if f.Format == schema.FormatImage || f.Format == schema.FormatDataURI {
			return true
		}
	}
	return false
}

// BuildOpenAPI renders the OpenAPI 3 document of the HTTP API. Every flow
// gets its own path with its input and output schemas.
func BuildOpenAPI(flows []*flow.Flow, info OpenAPIInfo) ([]byte, error) {
	doc := openAPIDocument{
		OpenAPI: "3.0.3",
		Info: openAPIMeta{
			Title:       info.Title,
			Version:     info.Version,
			Description: "AI-generated agronomic guidance for farmers.",
		},
		Paths: map[string]map[string]operation{},
		Components: components{
			Schemas: map[string]map[string]any{
				"Problem": {
					"type": "object",
					"properties": map[string]any{
						"type":     map[string]any{"type": "string"},
						"title":    map[string]any{"type": "string"},
						"status":   map[string]any{"type": "integer"},
						"detail":   map[string]any{"type": "string"},
						"instance": map[string]any{"type": "string"},
						"flow":     map[string]any{"type": "string"},
						"stage":    map[string]any{"type": "string"},
						"violations": map[string]any{
							"type": "array",
							"items": map[string]any{
								"type": "object",
								"properties": map[string]any{
									"path":    map[string]any{"type": "string"},
									"rule":    map[string]any{"type": "string"},
									"message": map[string]any{"type": "string"},
								},
							},
						},
					},
				},
				"Farmer": {
					"type": "object",
					"properties": map[string]any{
						"id":         map[string]any{"type": "string", "format": "uuid"},
						"email":      map[string]any{"type": "string"},
						"name":       map[string]any{"type": "string"},
						"created_at": map[string]any{"type": "string", "format": "date-time"},
						"updated_at": map[string]any{"type": "string", "format": "date-time"},
					},
				},
				"HistoryEntry": {
					"type": "object",
					"properties": map[string]any{
						"id":         map[string]any{"type": "string", "format": "uuid"},
						"farmer_id":  map[string]any{"type": "string", "format": "uuid"},
						"flow":       map[string]any{"type": "string"},
						"request":    map[string]any{"type": "object"},
						"result":     map[string]any{"type": "object"},
						"created_at": map[string]any{"type": "string", "format": "date-time"},
					},
				},
				"FarmDetails": agronomy.FarmShape.JSONSchema(),
			},
		},
	}

	if info.Issuer != "" {
		doc.Components.SecuritySchemes = map[string]map[string]any{
			"oidc": {
				"type":             "openIdConnect",
				"openIdConnectUrl": info.Issuer + "/.well-known/openid-configuration",
			},
			"bearer": {"type": "http", "scheme": "bearer", "bearerFormat": "JWT"},
		}
		doc.Security = []map[string][]string{{"oidc": info.Scopes}, {"bearer": {}}}
	}

	doc.Paths["/health"] = map[string]operation{
		"get": {
			OperationID: "getHealth",
			Summary:     "Service health",
			Tags:        []string{"operations"},
			Responses: map[string]response{
				"200": {Description: "Healthy", Content: jsonContent(map[string]any{"type": "object"})},
				"503": {Description: "Degraded", Content: jsonContent(map[string]any{"type": "object"})},
			},
			Security: &[]map[string][]string{},
		},
	}

	doc.Paths["/api/v1/flows"] = map[string]operation{
		"get": {
			OperationID: "listFlows",
			Summary:     "List available flows",
			Tags:        []string{"flows"},
			Responses: withOK(problemResponses(http.StatusUnauthorized), map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"name":          map[string]any{"type": "string"},
						"description":   map[string]any{"type": "string"},
						"input_schema":  map[string]any{"type": "object"},
						"output_schema": map[string]any{"type": "object"},
					},
				},
			}),
		},
	}

	for _, f := range flows {
		def := f.Definition()
		inName := def.Input.Name
		outName := def.Output.Name
		doc.Components.Schemas[inName] = def.Input.JSONSchema()
		doc.Components.Schemas[outName] = def.Output.JSONSchema()

		body := &requestBody{Required: true, Content: jsonContent(ref(inName))}
		if hasMedia(def.Input) {
			body.Content[echo.MIMEMultipartForm] = mediaType{Schema: multipartSchema(def.Input)}
		}

		doc.Paths["/api/v1/flows/"+def.Name] = map[string]operation{
			"post": {
				OperationID: "run-" + def.Name,
				Summary:     def.Description,
				Tags:        []string{"flows"},
				RequestBody: body,
				Responses: withOK(problemResponses(
					http.StatusBadRequest, http.StatusUnauthorized, http.StatusUnprocessableEntity,
					http.StatusBadGateway, http.StatusGatewayTimeout,
				), ref(outName)),
			},
		}
	}

	doc.Paths["/api/v1/farm-analysis"] = map[string]operation{
		"post": {
			OperationID: "analyzeFarm",
			Summary:     "Analyze every crop of a farm and suggest crops for its land",
			Tags:        []string{"farm"},
			RequestBody: &requestBody{Required: true, Content: jsonContent(ref("FarmDetails"))},
			Responses: withOK(problemResponses(
				http.StatusBadRequest, http.StatusUnauthorized, http.StatusUnprocessableEntity,
			), map[string]any{"type": "object"}),
		},
	}

	doc.Paths["/api/v1/history"] = map[string]operation{
		"get": {
			OperationID: "listHistory",
			Summary:     "List past flow runs, newest first",
			Tags:        []string{"history"},
			Parameters: []parameter{
				{Name: "flow", In: "query", Schema: map[string]any{"type": "string"}},
				{Name: "limit", In: "query", Schema: map[string]any{"type": "integer", "minimum": 1}},
			},
			Responses: withOK(problemResponses(http.StatusBadRequest, http.StatusUnauthorized), map[string]any{
				"type": "object",
				"properties": map[string]any{
					"entries": map[string]any{"type": "array", "items": ref("HistoryEntry")},
				},
			}),
		},
		"delete": {
			OperationID: "clearHistory",
			Summary:     "Delete all past flow runs",
			Tags:        []string{"history"},
			Responses: withOK(problemResponses(http.StatusUnauthorized), map[string]any{
				"type":       "object",
				"properties": map[string]any{"deleted": map[string]any{"type": "integer"}},
			}),
		},
	}

	doc.Paths["/api/v1/profile"] = map[string]operation{
		"get": {
			OperationID: "getProfile",
			Summary:     "The caller's profile",
			Tags:        []string{"profile"},
			Responses:   withOK(problemResponses(http.StatusUnauthorized, http.StatusNotFound), ref("Farmer")),
		},
		"put": {
			OperationID: "updateProfile",
			Summary:     "Change the caller's display name",
			Tags:        []string{"profile"},
			RequestBody: &requestBody{Required: true, Content: jsonContent(map[string]any{
				"type":       "object",
				"required":   []string{"name"},
				"properties": map[string]any{"name": map[string]any{"type": "string", "minLength": 1, "maxLength": 100}},
			})},
			Responses: withOK(problemResponses(
				http.StatusBadRequest, http.StatusUnauthorized, http.StatusNotFound, http.StatusUnprocessableEntity,
			), ref("Farmer")),
		},
	}

	out, err := yaml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode OpenAPI document: %w", err)
	}
	return out, nil
}

// SpecHandler serves a pre-rendered OpenAPI document.
func SpecHandler(doc []byte) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.Blob(http.StatusOK, "application/yaml", doc)
	}
}
