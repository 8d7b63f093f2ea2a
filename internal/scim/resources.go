// Package scim implements the SCIM 2.0 provisioning protocol over the
// user directory: resource mapping, list filtering, patch application,
// schema introspection, and the HTTP surface.
package scim

import (
	"time"
)

// SCIM 2.0 schema URNs.
const (
	URNUser                  = "urn:ietf:params:scim:schemas:core:2.0:User"
	URNGroup                 = "urn:ietf:params:scim:schemas:core:2.0:Group"
	URNListResponse          = "urn:ietf:params:scim:api:messages:2.0:ListResponse"
	URNPatchOp               = "urn:ietf:params:scim:api:messages:2.0:PatchOp"
	URNError                 = "urn:ietf:params:scim:api:messages:2.0:Error"
	URNServiceProviderConfig = "urn:ietf:params:scim:schemas:core:2.0:ServiceProviderConfig"
	URNResourceType          = "urn:ietf:params:scim:schemas:core:2.0:ResourceType"
	URNSchema                = "urn:ietf:params:scim:schemas:core:2.0:Schema"
)

// ContentType is the SCIM media type used for responses.
const ContentType = "application/scim+json"

// UserResource is a user in SCIM 2.0 wire format.
type UserResource struct {
	Schemas     []string     `json:"schemas"`
	ID          string       `json:"id,omitempty"`
	UserName    string       `json:"userName"`
	Name        NameResource `json:"name"`
	DisplayName string       `json:"displayName,omitempty"`
	Emails      []Email      `json:"emails,omitempty"`
	Active      bool         `json:"active"`
	// Password is accepted on create/replace and never emitted.
	Password string `json:"password,omitempty"`
	Meta     Meta   `json:"meta"`
}

// NameResource carries the name components of a user.
type NameResource struct {
	Formatted  string `json:"formatted,omitempty"`
	GivenName  string `json:"givenName,omitempty"`
	FamilyName string `json:"familyName,omitempty"`
}

// Email is a single email entry.
type Email struct {
	Value   string `json:"value"`
	Primary bool   `json:"primary,omitempty"`
}

// GroupResource is a group in SCIM 2.0 wire format.
type GroupResource struct {
	Schemas     []string `json:"schemas"`
	ID          string   `json:"id,omitempty"`
	DisplayName string   `json:"displayName"`
	Members     []Member `json:"members"`
	Meta        Meta     `json:"meta"`
}

// Member is a group membership entry. Value is the user id.
type Member struct {
	Value   string `json:"value"`
	Display string `json:"display,omitempty"`
}

// Meta contains metadata about a SCIM resource.
type Meta struct {
	ResourceType string    `json:"resourceType"`
	Created      time.Time `json:"created"`
	LastModified time.Time `json:"lastModified"`
	Location     string    `json:"location,omitempty"`
}

// ListResponse is the SCIM list envelope.
type ListResponse struct {
	Schemas      []string    `json:"schemas"`
	TotalResults int         `json:"totalResults"`
	StartIndex   int         `json:"startIndex"`
	ItemsPerPage int         `json:"itemsPerPage"`
	Resources    interface{} `json:"Resources"`
}

// NewListResponse builds a list envelope around a page of resources.
func NewListResponse(total, startIndex, itemsPerPage int, resources interface{}) *ListResponse {
	return &ListResponse{
		Schemas:      []string{URNListResponse},
		TotalResults: total,
		StartIndex:   startIndex,
		ItemsPerPage: itemsPerPage,
		Resources:    resources,
	}
}

// PatchRequest is a SCIM PATCH request body.
type PatchRequest struct {
	Schemas    []string         `json:"schemas"`
	Operations []PatchOperation `json:"Operations"`
}

// PatchOperation is a single raw patch operation before validation.
type PatchOperation struct {
	Op    string      `json:"op"`
	Path  string      `json:"path,omitempty"`
	Value interface{} `json:"value,omitempty"`
}
