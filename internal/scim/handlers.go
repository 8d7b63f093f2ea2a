package scim

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/scimgate/scimgate/internal/common/config"
)

// Handler exposes the SCIM service over HTTP.
type Handler struct {
	service  *Service
	registry *SchemaRegistry
	auth     *Authenticator
	cfg      *config.Config
	logger   *zap.Logger
}

// NewHandler creates the HTTP handler for the SCIM surface.
func NewHandler(service *Service, auth *Authenticator, cfg *config.Config, logger *zap.Logger) *Handler {
	return &Handler{
		service:  service,
		registry: NewSchemaRegistry(),
		auth:     auth,
		cfg:      cfg,
		logger:   logger,
	}
}

// RegisterRoutes mounts the SCIM 2.0 endpoints under /scim/v2.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	v2 := router.Group("/scim/v2")
	v2.Use(h.auth.Middleware())
	{
		v2.GET("/Users", h.listUsers)
		v2.POST("/Users", h.createUser)
		v2.GET("/Users/:id", h.getUser)
		v2.PUT("/Users/:id", h.replaceUser)
		v2.PATCH("/Users/:id", h.patchUser)
		v2.DELETE("/Users/:id", h.deleteUser)

		v2.GET("/Groups", h.listGroups)
		v2.POST("/Groups", h.createGroup)
		v2.GET("/Groups/:id", h.getGroup)
		v2.PUT("/Groups/:id", h.replaceGroup)
		v2.PATCH("/Groups/:id", h.patchGroup)
		v2.DELETE("/Groups/:id", h.deleteGroup)

		v2.GET("/ServiceProviderConfig", h.serviceProviderConfig)
		v2.GET("/ResourceTypes", h.resourceTypes)
		v2.GET("/ResourceTypes/:id", h.resourceType)
		v2.GET("/Schemas", h.schemas)
		v2.GET("/Schemas/:id", h.schema)
	}
}

// baseURL builds the absolute SCIM base for location fields. An explicit
// base URL in config wins over the request host.
func (h *Handler) baseURL(c *gin.Context) string {
	if h.cfg.BaseURL != "" {
		return strings.TrimSuffix(h.cfg.BaseURL, "/") + "/scim/v2"
	}
	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + c.Request.Host + "/scim/v2"
}

// writeSCIM renders a body with the SCIM media type.
func writeSCIM(c *gin.Context, status int, body interface{}) {
	c.Header("Content-Type", ContentType)
	c.JSON(status, body)
}

// writeError renders any error as a SCIM error body.
func writeError(c *gin.Context, err error) {
	scimErr := WrapError(err)
	c.Header("Content-Type", ContentType)
	c.JSON(scimErr.StatusCode(), scimErr)
}

// abortWithError renders a SCIM error and stops the handler chain.
func abortWithError(c *gin.Context, err error) {
	scimErr := WrapError(err)
	c.Header("Content-Type", ContentType)
	c.AbortWithStatusJSON(scimErr.StatusCode(), scimErr)
}

// rejectIfMatch fails conditional requests up front; ETags are not
// supported, so no precondition can ever hold.
func rejectIfMatch(c *gin.Context) bool {
	if c.GetHeader("If-Match") != "" {
		writeError(c, ErrPreconditionFailed("conditional requests are not supported"))
		return true
	}
	return false
}

func (h *Handler) locateUser(c *gin.Context, res *UserResource) {
	res.Meta.Location = h.baseURL(c) + "/Users/" + res.ID
}

func (h *Handler) locateGroup(c *gin.Context, res *GroupResource) {
	res.Meta.Location = h.baseURL(c) + "/Groups/" + res.ID
}

func (h *Handler) listUsers(c *gin.Context) {
	if err := RejectUnsupportedListParams(
		c.Query("sortBy"), c.Query("sortOrder"),
		c.Query("attributes"), c.Query("excludedAttributes"),
	); err != nil {
		writeError(c, err)
		return
	}

	filter, err := ParseFilter(c.Query("filter"), "userName")
	if err != nil {
		writeError(c, err)
		return
	}
	page, err := ParsePage(c.Query("startIndex"), c.Query("count"))
	if err != nil {
		writeError(c, err)
		return
	}

	list, err := h.service.ListUsers(c.Request.Context(), filter, page)
	if err != nil {
		writeError(c, err)
		return
	}
	for _, res := range list.Resources.([]*UserResource) {
		h.locateUser(c, res)
	}
	writeSCIM(c, http.StatusOK, list)
}

func (h *Handler) createUser(c *gin.Context) {
	var res UserResource
	if err := c.ShouldBindJSON(&res); err != nil {
		writeError(c, ErrInvalidValue("invalid request body"))
		return
	}

	created, err := h.service.CreateUser(c.Request.Context(), &res)
	if err != nil {
		writeError(c, err)
		return
	}

	h.locateUser(c, created)
	c.Header("Location", created.Meta.Location)
	writeSCIM(c, http.StatusCreated, created)
}

func (h *Handler) getUser(c *gin.Context) {
	res, err := h.service.GetUser(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	h.locateUser(c, res)
	writeSCIM(c, http.StatusOK, res)
}

func (h *Handler) replaceUser(c *gin.Context) {
	if rejectIfMatch(c) {
		return
	}

	var res UserResource
	if err := c.ShouldBindJSON(&res); err != nil {
		writeError(c, ErrInvalidValue("invalid request body"))
		return
	}

	updated, err := h.service.ReplaceUser(c.Request.Context(), c.Param("id"), &res)
	if err != nil {
		writeError(c, err)
		return
	}
	h.locateUser(c, updated)
	writeSCIM(c, http.StatusOK, updated)
}

func (h *Handler) patchUser(c *gin.Context) {
	if rejectIfMatch(c) {
		return
	}

	var req PatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, ErrInvalidValue("invalid request body"))
		return
	}

	updated, err := h.service.PatchUser(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		writeError(c, err)
		return
	}
	h.locateUser(c, updated)
	writeSCIM(c, http.StatusOK, updated)
}

func (h *Handler) deleteUser(c *gin.Context) {
	if rejectIfMatch(c) {
		return
	}

	if err := h.service.DeleteUser(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) listGroups(c *gin.Context) {
	if err := RejectUnsupportedListParams(
		c.Query("sortBy"), c.Query("sortOrder"),
		c.Query("attributes"), c.Query("excludedAttributes"),
	); err != nil {
		writeError(c, err)
		return
	}

	filter, err := ParseFilter(c.Query("filter"), "displayName")
	if err != nil {
		writeError(c, err)
		return
	}
	page, err := ParsePage(c.Query("startIndex"), c.Query("count"))
	if err != nil {
		writeError(c, err)
		return
	}

	list, err := h.service.ListGroups(c.Request.Context(), filter, page)
	if err != nil {
		writeError(c, err)
		return
	}
	for _, res := range list.Resources.([]*GroupResource) {
		h.locateGroup(c, res)
	}
	writeSCIM(c, http.StatusOK, list)
}

func (h *Handler) createGroup(c *gin.Context) {
	var res GroupResource
	if err := c.ShouldBindJSON(&res); err != nil {
		writeError(c, ErrInvalidValue("invalid request body"))
		return
	}

	created, err := h.service.CreateGroup(c.Request.Context(), &res)
	if err != nil {
		writeError(c, err)
		return
	}

	h.locateGroup(c, created)
	c.Header("Location", created.Meta.Location)
	writeSCIM(c, http.StatusCreated, created)
}

func (h *Handler) getGroup(c *gin.Context) {
	res, err := h.service.GetGroup(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	h.locateGroup(c, res)
	writeSCIM(c, http.StatusOK, res)
}

func (h *Handler) replaceGroup(c *gin.Context) {
	if rejectIfMatch(c) {
		return
	}

	var res GroupResource
	if err := c.ShouldBindJSON(&res); err != nil {
		writeError(c, ErrInvalidValue("invalid request body"))
		return
	}

	updated, err := h.service.ReplaceGroup(c.Request.Context(), c.Param("id"), &res)
	if err != nil {
		writeError(c, err)
		return
	}
	h.locateGroup(c, updated)
	writeSCIM(c, http.StatusOK, updated)
}

func (h *Handler) patchGroup(c *gin.Context) {
	if rejectIfMatch(c) {
		return
	}

	var req PatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, ErrInvalidValue("invalid request body"))
		return
	}

	updated, err := h.service.PatchGroup(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		writeError(c, err)
		return
	}
	h.locateGroup(c, updated)
	writeSCIM(c, http.StatusOK, updated)
}

func (h *Handler) deleteGroup(c *gin.Context) {
	if rejectIfMatch(c) {
		return
	}

	if err := h.service.DeleteGroup(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) serviceProviderConfig(c *gin.Context) {
	writeSCIM(c, http.StatusOK, ProviderConfig(h.baseURL(c)))
}

func (h *Handler) resourceTypes(c *gin.Context) {
	types := ResourceTypes(h.baseURL(c))
	writeSCIM(c, http.StatusOK, NewListResponse(len(types), 1, len(types), types))
}

func (h *Handler) resourceType(c *gin.Context) {
	for _, rt := range ResourceTypes(h.baseURL(c)) {
		if rt.ID == c.Param("id") {
			writeSCIM(c, http.StatusOK, rt)
			return
		}
	}
	writeError(c, ErrNotFound("resource type "+c.Param("id")+" not found"))
}

func (h *Handler) schemas(c *gin.Context) {
	base := h.baseURL(c)
	cached := h.registry.All()
	located := make([]*Schema, 0, len(cached))
	for _, s := range cached {
		located = append(located, h.registry.Located(s, base))
	}
	writeSCIM(c, http.StatusOK, NewListResponse(len(located), 1, len(located), located))
}

func (h *Handler) schema(c *gin.Context) {
	s, ok := h.registry.Schema(c.Param("id"))
	if !ok {
		writeError(c, ErrNotFound("schema "+c.Param("id")+" not found"))
		return
	}
	writeSCIM(c, http.StatusOK, h.registry.Located(s, h.baseURL(c)))
}
