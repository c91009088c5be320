// Package web provides HTTP handlers for the template authoring and
// instance execution API.
package web

import (
	"fmt"
	"strconv"
	"time"

	"github.com/clinicdesk/pathway/pkg/cache"
	"github.com/clinicdesk/pathway/pkg/identity"
	"github.com/clinicdesk/pathway/pkg/models"
	"github.com/clinicdesk/pathway/pkg/persistence"
	"github.com/clinicdesk/pathway/pkg/services"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

// Caller identity travels in headers; the portal's gateway authenticates the
// staff member and forwards the resolved user id.
const (
	UserHeader  = "X-User-ID"
	ScopeHeader = "X-Tenant-Scope"
)

// APIHandlers bundles the services behind the HTTP surface. The template
// cache is optional; a nil cache means every read hits persistence.
type APIHandlers struct {
	templates *services.Template
	graph     *services.Graph
	approvals *services.Approval
	instances *services.Instance
	transfer  *services.Transfer
	identity  identity.Resolver
	cache     cache.TemplateCache
	validator *validator.Validate
}

func NewAPIHandlers(
	templates *services.Template,
	graph *services.Graph,
	approvals *services.Approval,
	instances *services.Instance,
	transfer *services.Transfer,
	resolver identity.Resolver,
	templateCache cache.TemplateCache,
) *APIHandlers {
	return &APIHandlers{
		templates: templates,
		graph:     graph,
		approvals: approvals,
		instances: instances,
		transfer:  transfer,
		identity:  resolver,
		cache:     templateCache,
		validator: validator.New(),
	}
}

// caller extracts the acting user and the scope the request operates in.
func (h *APIHandlers) caller(c fiber.Ctx) (string, models.Scope, error) {
	userID := c.Get(UserHeader)
	if userID == "" {
		return "", models.Global, fmt.Errorf("missing %s header", UserHeader)
	}

	return userID, models.ParseScope(c.Get(ScopeHeader)), nil
}

// runnerTenant resolves the tenant an instance request acts for: the
// caller's home tenant, or the scope header when a superuser runs on a
// tenant's behalf.
func (h *APIHandlers) runnerTenant(c fiber.Ctx, userID string) (string, error) {
	grant, err := h.identity.Resolve(c.Context(), userID)
	if err != nil {
		return "", fmt.Errorf("%w: %w", services.ErrForbidden, err)
	}

	if grant.TenantID != "" {
		return grant.TenantID, nil
	}

	return models.ParseScope(c.Get(ScopeHeader)).TenantID(), nil
}

func queryVersion(c fiber.Ctx) (int64, error) {
	version, err := strconv.ParseInt(c.Query("version"), 10, 64)
	if err != nil || version < 1 {
		return 0, fmt.Errorf("version query parameter is required and must be a positive integer")
	}

	return version, nil
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	message, ok := h.templates.HealthCheck(c.Context())

	status := "healthy"
	httpStatus := fiber.StatusOK
	if !ok {
		status = "unhealthy"
		httpStatus = fiber.StatusServiceUnavailable
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

// --- Templates ---

func (h *APIHandlers) GetTemplates(c fiber.Ctx) error {
	userID, scope, err := h.caller(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	activeOnly := c.Query("active") == "true"

	templates, err := h.templates.List(c.Context(), userID, scope, activeOnly)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"templates": templates,
		"count":     len(templates),
	})
}

func (h *APIHandlers) CreateTemplate(c fiber.Ctx) error {
	userID, scope, err := h.caller(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	var req CreateTemplateRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "invalid JSON payload")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	template, err := h.templates.Create(c.Context(), userID, scope, services.CreateTemplateRequest{
		Name:        req.Name,
		Description: req.Description,
		Icon:        req.Icon,
		Color:       req.Color,
		Kind:        req.Kind,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(template)
}

func (h *APIHandlers) GetTemplate(c fiber.Ctx) error {
	userID, scope, err := h.caller(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	id := c.Params("id")
	if id == "" {
		return badRequest(c, "template id is required")
	}

	if h.cache != nil {
		grant, err := h.identity.Resolve(c.Context(), userID)
		if err == nil && grant.CanManage(scope) {
			if template, ok := h.cache.Get(c.Context(), scope.String(), id); ok {
				return c.JSON(template)
			}
		}
	}

	template, err := h.templates.Get(c.Context(), userID, scope, id)
	if err != nil {
		return handleServiceError(c, err)
	}

	if h.cache != nil {
		h.cache.Set(c.Context(), template)
	}

	return c.JSON(template)
}

func (h *APIHandlers) UpdateTemplate(c fiber.Ctx) error {
	userID, scope, err := h.caller(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	id := c.Params("id")
	if id == "" {
		return badRequest(c, "template id is required")
	}

	var req UpdateTemplateRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "invalid JSON payload")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	template, err := h.templates.UpdateMeta(c.Context(), userID, scope, id, req.Version, services.UpdateTemplateRequest{
		Name:        req.Name,
		Description: req.Description,
		Icon:        req.Icon,
		Color:       req.Color,
		Kind:        req.Kind,
		Active:      req.Active,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(template)
}

func (h *APIHandlers) DeleteTemplate(c fiber.Ctx) error {
	userID, scope, err := h.caller(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	id := c.Params("id")
	if id == "" {
		return badRequest(c, "template id is required")
	}

	version, err := queryVersion(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	if err := h.templates.Delete(c.Context(), userID, scope, id, version); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// --- Approval lifecycle ---

func (h *APIHandlers) lifecycleRequest(c fiber.Ctx) (string, models.Scope, string, int64, error) {
	userID, scope, err := h.caller(c)
	if err != nil {
		return "", models.Global, "", 0, err
	}

	id := c.Params("id")
	if id == "" {
		return "", models.Global, "", 0, fmt.Errorf("template id is required")
	}

	var req LifecycleRequest
	if err := c.Bind().JSON(&req); err != nil {
		return "", models.Global, "", 0, fmt.Errorf("invalid JSON payload")
	}

	if err := h.validator.Struct(req); err != nil {
		return "", models.Global, "", 0, err
	}

	return userID, scope, id, req.Version, nil
}

func (h *APIHandlers) SubmitTemplate(c fiber.Ctx) error {
	userID, scope, id, version, err := h.lifecycleRequest(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	template, err := h.approvals.SubmitForReview(c.Context(), userID, scope, id, version)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(template)
}

func (h *APIHandlers) ApproveTemplate(c fiber.Ctx) error {
	userID, scope, id, version, err := h.lifecycleRequest(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	template, err := h.approvals.Approve(c.Context(), userID, scope, id, version)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(template)
}

func (h *APIHandlers) RequestChanges(c fiber.Ctx) error {
	userID, scope, err := h.caller(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	id := c.Params("id")
	if id == "" {
		return badRequest(c, "template id is required")
	}

	var req RequestChangesRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "invalid JSON payload")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	template, err := h.approvals.RequestChanges(c.Context(), userID, scope, id, req.Version, req.Note)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(template)
}

func (h *APIHandlers) ReopenTemplate(c fiber.Ctx) error {
	userID, scope, id, version, err := h.lifecycleRequest(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	template, err := h.approvals.ReopenForEditing(c.Context(), userID, scope, id, version)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(template)
}

func (h *APIHandlers) CloneTemplate(c fiber.Ctx) error {
	userID, scope, err := h.caller(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	id := c.Params("id")
	if id == "" {
		return badRequest(c, "template id is required")
	}

	var req CloneTemplateRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "invalid JSON payload")
		}
	}

	destScope := scope
	if req.DestScope != "" {
		destScope = models.ParseScope(req.DestScope)
	}

	clone, err := h.approvals.Clone(c.Context(), userID, scope, id, destScope)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(clone)
}

// --- Export / import ---

func (h *APIHandlers) ExportTemplate(c fiber.Ctx) error {
	userID, scope, err := h.caller(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	id := c.Params("id")
	if id == "" {
		return badRequest(c, "template id is required")
	}

	doc, err := h.transfer.Export(c.Context(), userID, scope, id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(doc)
}

func (h *APIHandlers) ImportTemplate(c fiber.Ctx) error {
	userID, scope, err := h.caller(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	template, err := h.transfer.Import(c.Context(), userID, scope, c.Body())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(template)
}

// --- Graph: nodes ---

func (h *APIHandlers) CreateNode(c fiber.Ctx) error {
	userID, scope, err := h.caller(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	id := c.Params("id")
	if id == "" {
		return badRequest(c, "template id is required")
	}

	var req CreateNodeRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "invalid JSON payload")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	nodeType := models.NodeType(req.Type)
	if !nodeType.Valid() {
		return badRequest(c, fmt.Sprintf("unknown node type %q", req.Type))
	}

	node, err := h.graph.CreateNode(c.Context(), userID, scope, id, req.Version, services.CreateNodeRequest{
		Type:  nodeType,
		Title: req.Title,
		Body:  req.Body,
		Entry: req.Entry,
		Style: req.Style,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(node)
}

func (h *APIHandlers) UpdateNode(c fiber.Ctx) error {
	userID, scope, err := h.caller(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	id := c.Params("id")
	nodeID := c.Params("nodeId")
	if id == "" || nodeID == "" {
		return badRequest(c, "template id and node id are required")
	}

	var req UpdateNodeRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "invalid JSON payload")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	serviceReq := services.UpdateNodeRequest{
		Title:      req.Title,
		Body:       req.Body,
		Entry:      req.Entry,
		Style:      req.Style,
		ClearStyle: req.ClearStyle,
	}

	if req.Type != nil {
		nodeType := models.NodeType(*req.Type)
		if !nodeType.Valid() {
			return badRequest(c, fmt.Sprintf("unknown node type %q", *req.Type))
		}

		serviceReq.Type = &nodeType
	}

	node, err := h.graph.UpdateNode(c.Context(), userID, scope, id, req.Version, nodeID, serviceReq)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(node)
}

func (h *APIHandlers) DeleteNode(c fiber.Ctx) error {
	userID, scope, err := h.caller(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	id := c.Params("id")
	nodeID := c.Params("nodeId")
	if id == "" || nodeID == "" {
		return badRequest(c, "template id and node id are required")
	}

	version, err := queryVersion(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	if err := h.graph.DeleteNode(c.Context(), userID, scope, id, version, nodeID); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) RepositionNodes(c fiber.Ctx) error {
	userID, scope, err := h.caller(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	id := c.Params("id")
	if id == "" {
		return badRequest(c, "template id is required")
	}

	var req RepositionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "invalid JSON payload")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	if err := h.graph.RepositionNodes(c.Context(), userID, scope, id, req.Version, req.Positions); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// --- Graph: options ---

func (h *APIHandlers) CreateOption(c fiber.Ctx) error {
	userID, scope, err := h.caller(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	id := c.Params("id")
	if id == "" {
		return badRequest(c, "template id is required")
	}

	var req CreateOptionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "invalid JSON payload")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	option, err := h.graph.CreateOption(c.Context(), userID, scope, id, req.Version, services.OptionRequest{
		SourceNodeID: req.SourceNodeID,
		Label:        req.Label,
		TargetNodeID: req.TargetNodeID,
		ActionKey:    req.ActionKey,
		SourceHandle: req.SourceHandle,
		TargetHandle: req.TargetHandle,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(option)
}

func (h *APIHandlers) UpdateOption(c fiber.Ctx) error {
	userID, scope, err := h.caller(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	id := c.Params("id")
	optionID := c.Params("optionId")
	if id == "" || optionID == "" {
		return badRequest(c, "template id and option id are required")
	}

	var req UpdateOptionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "invalid JSON payload")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	option, err := h.graph.UpdateOption(c.Context(), userID, scope, id, req.Version, optionID, services.UpdateOptionRequest{
		Label:        req.Label,
		TargetNodeID: req.TargetNodeID,
		ClearTarget:  req.ClearTarget,
		ActionKey:    req.ActionKey,
		SourceHandle: req.SourceHandle,
		TargetHandle: req.TargetHandle,
		SortOrder:    req.SortOrder,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(option)
}

func (h *APIHandlers) DeleteOption(c fiber.Ctx) error {
	userID, scope, err := h.caller(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	id := c.Params("id")
	optionID := c.Params("optionId")
	if id == "" || optionID == "" {
		return badRequest(c, "template id and option id are required")
	}

	version, err := queryVersion(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	if err := h.graph.DeleteOption(c.Context(), userID, scope, id, version, optionID); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// --- Graph: links ---

func (h *APIHandlers) CreateLink(c fiber.Ctx) error {
	userID, scope, err := h.caller(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	id := c.Params("id")
	if id == "" {
		return badRequest(c, "template id is required")
	}

	var req CreateLinkRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "invalid JSON payload")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	link, err := h.graph.CreateLink(c.Context(), userID, scope, id, req.Version, services.CreateLinkRequest{
		SourceNodeID:     req.SourceNodeID,
		TargetTemplateID: req.TargetTemplateID,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(link)
}

func (h *APIHandlers) DeleteLink(c fiber.Ctx) error {
	userID, scope, err := h.caller(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	id := c.Params("id")
	linkID := c.Params("linkId")
	if id == "" || linkID == "" {
		return badRequest(c, "template id and link id are required")
	}

	version, err := queryVersion(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	if err := h.graph.DeleteLink(c.Context(), userID, scope, id, version, linkID); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// --- Graph: styles ---

func (h *APIHandlers) UpsertStyle(c fiber.Ctx) error {
	userID, scope, err := h.caller(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	id := c.Params("id")
	if id == "" {
		return badRequest(c, "template id is required")
	}

	nodeType := models.NodeType(c.Params("nodeType"))
	if !nodeType.Valid() {
		return badRequest(c, fmt.Sprintf("unknown node type %q", nodeType))
	}

	var req StyleRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "invalid JSON payload")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	err = h.graph.UpsertStyle(c.Context(), userID, scope, id, req.Version, services.StyleRequest{
		NodeType:   nodeType,
		Background: req.Background,
		Text:       req.Text,
		Border:     req.Border,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) DeleteStyle(c fiber.Ctx) error {
	userID, scope, err := h.caller(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	id := c.Params("id")
	if id == "" {
		return badRequest(c, "template id is required")
	}

	nodeType := models.NodeType(c.Params("nodeType"))
	if !nodeType.Valid() {
		return badRequest(c, fmt.Sprintf("unknown node type %q", nodeType))
	}

	version, err := queryVersion(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	if err := h.graph.DeleteStyle(c.Context(), userID, scope, id, version, nodeType); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) CopyStyles(c fiber.Ctx) error {
	userID, scope, err := h.caller(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	id := c.Params("id")
	if id == "" {
		return badRequest(c, "template id is required")
	}

	var req CopyStylesRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "invalid JSON payload")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	err = h.graph.CopyStyles(c.Context(), userID, scope, id, req.Version, req.SourceTemplateID, req.Overwrite)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// --- Instances ---

func (h *APIHandlers) StartInstance(c fiber.Ctx) error {
	userID, _, err := h.caller(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	tenantID, err := h.runnerTenant(c, userID)
	if err != nil {
		return handleServiceError(c, err)
	}

	var req StartInstanceRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "invalid JSON payload")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	instance, err := h.instances.Start(c.Context(), userID, tenantID, services.StartInstanceRequest{
		TemplateID: req.TemplateID,
		Reference:  req.Reference,
		Category:   req.Category,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(instance)
}

func (h *APIHandlers) GetInstances(c fiber.Ctx) error {
	userID, _, err := h.caller(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	tenantID, err := h.runnerTenant(c, userID)
	if err != nil {
		return handleServiceError(c, err)
	}

	var opts persistence.ListInstancesOptions

	if statusStr := c.Query("status"); statusStr != "" {
		status := models.InstanceStatus(statusStr)
		switch status {
		case models.InstanceStatusInProgress, models.InstanceStatusCompleted, models.InstanceStatusAbandoned:
			opts.Status = &status
		default:
			return badRequest(c, fmt.Sprintf("unknown instance status %q", statusStr))
		}
	}

	if limitStr := c.Query("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 1 {
			return badRequest(c, "limit must be a positive integer")
		}

		opts.Limit = limit
	}

	if offsetStr := c.Query("offset"); offsetStr != "" {
		offset, err := strconv.Atoi(offsetStr)
		if err != nil || offset < 0 {
			return badRequest(c, "offset must be a non-negative integer")
		}

		opts.Offset = offset
	}

	instances, err := h.instances.List(c.Context(), userID, tenantID, opts)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"instances": instances,
		"count":     len(instances),
	})
}

func (h *APIHandlers) GetInstance(c fiber.Ctx) error {
	userID, _, err := h.caller(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	tenantID, err := h.runnerTenant(c, userID)
	if err != nil {
		return handleServiceError(c, err)
	}

	id := c.Params("id")
	if id == "" {
		return badRequest(c, "instance id is required")
	}

	instance, err := h.instances.Get(c.Context(), userID, tenantID, id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(instance)
}

func (h *APIHandlers) AdvanceInstance(c fiber.Ctx) error {
	userID, _, err := h.caller(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	tenantID, err := h.runnerTenant(c, userID)
	if err != nil {
		return handleServiceError(c, err)
	}

	id := c.Params("id")
	if id == "" {
		return badRequest(c, "instance id is required")
	}

	var req AdvanceInstanceRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "invalid JSON payload")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	instance, err := h.instances.Advance(c.Context(), userID, tenantID, id, req.ChoiceID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(instance)
}

func (h *APIHandlers) AbandonInstance(c fiber.Ctx) error {
	userID, _, err := h.caller(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	tenantID, err := h.runnerTenant(c, userID)
	if err != nil {
		return handleServiceError(c, err)
	}

	id := c.Params("id")
	if id == "" {
		return badRequest(c, "instance id is required")
	}

	instance, err := h.instances.Abandon(c.Context(), userID, tenantID, id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(instance)
}
