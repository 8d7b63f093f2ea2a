package scim

import (
	"reflect"
	"strings"
	"sync"
	"time"
)

// Schema introspection derives the published /Schemas documents from the
// wire resource structs themselves, so the advertised schema can never
// drift from what the service actually serializes.

// SchemaAttribute describes one attribute of a published schema.
type SchemaAttribute struct {
	Name          string            `json:"name"`
	Type          string            `json:"type"`
	MultiValued   bool              `json:"multiValued"`
	Required      bool              `json:"required"`
	CaseExact     bool              `json:"caseExact"`
	Mutability    string            `json:"mutability"`
	Returned      string            `json:"returned"`
	Uniqueness    string            `json:"uniqueness"`
	SubAttributes []SchemaAttribute `json:"subAttributes,omitempty"`
}

// Schema is a published SCIM schema document.
type Schema struct {
	Schemas     []string          `json:"schemas"`
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Attributes  []SchemaAttribute `json:"attributes"`
	Meta        SchemaMeta        `json:"meta"`
}

// SchemaMeta is the meta block of a schema document.
type SchemaMeta struct {
	ResourceType string `json:"resourceType"`
	Location     string `json:"location,omitempty"`
}

// schemaSource binds a schema id to the Go type it is derived from.
type schemaSource struct {
	name        string
	description string
	goType      reflect.Type
}

var schemaSources = map[string]schemaSource{
	URNUser: {
		name:        "User",
		description: "User Account",
		goType:      reflect.TypeOf(UserResource{}),
	},
	URNGroup: {
		name:        "Group",
		description: "Group",
		goType:      reflect.TypeOf(GroupResource{}),
	},
}

// SchemaRegistry caches derived schemas for the life of the process.
// Served copies are rewritten per request; the cached documents are never
// mutated after derivation.
type SchemaRegistry struct {
	mu      sync.RWMutex
	schemas map[string]*Schema
}

// NewSchemaRegistry creates an empty registry. Schemas are derived lazily
// on first access.
func NewSchemaRegistry() *SchemaRegistry {
	return &SchemaRegistry{schemas: make(map[string]*Schema)}
}

// Schema returns the cached schema for id, deriving it on first access.
// The second return value is false for unknown ids.
func (r *SchemaRegistry) Schema(id string) (*Schema, bool) {
	r.mu.RLock()
	if s, ok := r.schemas[id]; ok {
		r.mu.RUnlock()
		return s, true
	}
	r.mu.RUnlock()

	src, ok := schemaSources[id]
	if !ok {
		return nil, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.schemas[id]; ok {
		return s, true
	}

	s := &Schema{
		Schemas:     []string{URNSchema},
		ID:          id,
		Name:        src.name,
		Description: src.description,
		Attributes:  deriveAttributes(src.goType),
		Meta:        SchemaMeta{ResourceType: "Schema"},
	}
	r.schemas[id] = s
	return s, true
}

// All returns the cached schemas for every known resource type, deriving
// any that have not been accessed yet. Order is Users first, then Groups.
func (r *SchemaRegistry) All() []*Schema {
	var out []*Schema
	for _, id := range []string{URNUser, URNGroup} {
		if s, ok := r.Schema(id); ok {
			out = append(out, s)
		}
	}
	return out
}

// Reset discards the cached schemas, forcing re-derivation on next access.
func (r *SchemaRegistry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.schemas = make(map[string]*Schema)
}

// Located returns a copy of the schema with meta.location set for the
// request base URL. The cached document is untouched.
func (r *SchemaRegistry) Located(s *Schema, baseURL string) *Schema {
	copied := *s
	copied.Meta.Location = baseURL + "/Schemas/" + s.ID
	return &copied
}

var timeType = reflect.TypeOf(time.Time{})

// deriveAttributes walks a wire struct and maps its exported fields to
// schema attributes. The envelope fields (schemas, id, meta) and
// write-only fields are excluded.
func deriveAttributes(t reflect.Type) []SchemaAttribute {
	var attrs []SchemaAttribute

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}

		tag := field.Tag.Get("json")
		if tag == "" || tag == "-" {
			continue
		}
		parts := strings.Split(tag, ",")
		name := parts[0]
		if name == "" {
			name = field.Name
		}

		switch name {
		case "schemas", "id", "meta", "password":
			continue
		}

		required := true
		for _, opt := range parts[1:] {
			if opt == "omitempty" {
				required = false
			}
		}

		attr := deriveAttribute(name, field.Type)
		attr.Required = required
		attrs = append(attrs, attr)
	}

	return attrs
}

func deriveAttribute(name string, t reflect.Type) SchemaAttribute {
	attr := SchemaAttribute{
		Name:       name,
		Mutability: "readWrite",
		Returned:   "default",
		Uniqueness: "none",
	}
	if name == "userName" {
		attr.Uniqueness = "server"
	}

	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	if t.Kind() == reflect.Slice || t.Kind() == reflect.Array {
		attr.MultiValued = true
		t = t.Elem()
		for t.Kind() == reflect.Ptr {
			t = t.Elem()
		}
	}

	attr.Type = scimTypeFor(t)
	if attr.Type == "complex" {
		attr.SubAttributes = deriveAttributes(t)
	}
	return attr
}

// scimTypeFor maps a Go type to a SCIM attribute type.
func scimTypeFor(t reflect.Type) string {
	if t == timeType {
		return "dateTime"
	}
	switch t.Kind() {
	case reflect.String:
		return "string"
	case reflect.Bool:
		return "boolean"
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return "integer"
	case reflect.Float32, reflect.Float64:
		return "decimal"
	case reflect.Struct:
		return "complex"
	default:
		return "string"
	}
}

// ResourceTypeDescriptor is a published /ResourceTypes entry.
type ResourceTypeDescriptor struct {
	Schemas     []string   `json:"schemas"`
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Endpoint    string     `json:"endpoint"`
	Description string     `json:"description"`
	Schema      string     `json:"schema"`
	Meta        SchemaMeta `json:"meta"`
}

// ResourceTypes returns the published resource type descriptors with
// locations built from baseURL.
func ResourceTypes(baseURL string) []ResourceTypeDescriptor {
	return []ResourceTypeDescriptor{
		{
			Schemas:     []string{URNResourceType},
			ID:          "User",
			Name:        "User",
			Endpoint:    "/Users",
			Description: "User Account",
			Schema:      URNUser,
			Meta:        SchemaMeta{ResourceType: "ResourceType", Location: baseURL + "/ResourceTypes/User"},
		},
		{
			Schemas:     []string{URNResourceType},
			ID:          "Group",
			Name:        "Group",
			Endpoint:    "/Groups",
			Description: "Group",
			Schema:      URNGroup,
			Meta:        SchemaMeta{ResourceType: "ResourceType", Location: baseURL + "/ResourceTypes/Group"},
		},
	}
}

// FeatureSupport is a supported-flag block of the provider config.
type FeatureSupport struct {
	Supported bool `json:"supported"`
}

// FilterSupport is the filter block of the provider config.
type FilterSupport struct {
	Supported  bool `json:"supported"`
	MaxResults int  `json:"maxResults"`
}

// AuthenticationScheme describes one accepted authentication mechanism.
type AuthenticationScheme struct {
	Type        string `json:"type"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ServiceProviderConfig is the published /ServiceProviderConfig document.
type ServiceProviderConfig struct {
	Schemas               []string               `json:"schemas"`
	DocumentationURI      string                 `json:"documentationUri,omitempty"`
	Patch                 FeatureSupport         `json:"patch"`
	Bulk                  FeatureSupport         `json:"bulk"`
	Filter                FilterSupport          `json:"filter"`
	ChangePassword        FeatureSupport         `json:"changePassword"`
	Sort                  FeatureSupport         `json:"sort"`
	ETag                  FeatureSupport         `json:"etag"`
	AuthenticationSchemes []AuthenticationScheme `json:"authenticationSchemes"`
	Meta                  SchemaMeta             `json:"meta"`
}

// ProviderConfig returns the published provider capabilities.
func ProviderConfig(baseURL string) *ServiceProviderConfig {
	return &ServiceProviderConfig{
		Schemas: []string{URNServiceProviderConfig},
		Patch:   FeatureSupport{Supported: true},
		Bulk:    FeatureSupport{Supported: false},
		Filter:  FilterSupport{Supported: true, MaxResults: DefaultPageSize},
		ChangePassword: FeatureSupport{
			Supported: false,
		},
		Sort: FeatureSupport{Supported: false},
		ETag: FeatureSupport{Supported: false},
		AuthenticationSchemes: []AuthenticationScheme{
			{
				Type:        "oauthbearertoken",
				Name:        "OAuth Bearer Token",
				Description: "Authentication scheme using the OAuth Bearer Token standard",
			},
		},
		Meta: SchemaMeta{ResourceType: "ServiceProviderConfig", Location: baseURL + "/ServiceProviderConfig"},
	}
}
