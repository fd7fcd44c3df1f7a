package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/gs1oliot/oliot-ons-2.0.1/internal/ons/graph"
	"github.com/gs1oliot/oliot-ons-2.0.1/internal/ons/registry"
	recsync "github.com/gs1oliot/oliot-ons-2.0.1/internal/ons/sync"
	apperrors "github.com/gs1oliot/oliot-ons-2.0.1/internal/platform/errors"
)

type recordPayload struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Type    string `json:"type"`
	Content string `json:"content"`
	TTL     int    `json:"ttl"`
}

func (p recordPayload) input() recsync.RecordInput {
	return recsync.RecordInput{
		ID:      p.ID,
		Name:    p.Name,
		Type:    p.Type,
		Content: p.Content,
		TTL:     p.TTL,
	}
}

func badRequest(field string) error {
	return apperrors.WithMetadata(apperrors.CodeValidation,
		"malformed request body", map[string]string{"Field": field})
}

func (a *API) handleMyOrganizations(c *gin.Context) {
	orgs, err := a.registry.OrganizationsOf(c.Request.Context(), c.GetString(principalKey))
	if err != nil {
		a.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"organizations": orgs})
}

func (a *API) handleCreateOrganization(c *gin.Context) {
	var req struct {
		Name string `json:"name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		a.renderError(c, badRequest("name"))
		return
	}
	if err := a.registry.CreateOrganization(c.Request.Context(), c.GetString(principalKey), req.Name); err != nil {
		a.renderError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"name": req.Name})
}

func (a *API) handleListOrganizations(c *gin.Context) {
	orgs, err := a.registry.ListOrganizations(c.Request.Context())
	if err != nil {
		a.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"organizations": orgs})
}

func (a *API) handleRequestMembership(c *gin.Context) {
	err := a.registry.RequestMembership(c.Request.Context(), c.GetString(principalKey), c.Param("org"))
	if err != nil {
		a.renderError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"organization": c.Param("org")})
}

func (a *API) handleAffiliations(c *gin.Context) {
	aff, err := a.registry.Affiliations(c.Request.Context(), c.GetString(principalKey), c.Param("org"))
	if err != nil {
		a.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"employees":      aff.Employees,
		"administrators": aff.Administrators,
		"requests":       aff.Requests,
		"others":         aff.Others,
	})
}

func (a *API) handleApproveMembership(c *gin.Context) {
	var req struct {
		Principal string `json:"principal"`
		Role      string `json:"role"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		a.renderError(c, badRequest("principal"))
		return
	}
	err := a.registry.ApproveMembership(c.Request.Context(),
		c.GetString(principalKey), c.Param("org"), req.Principal, registry.Role(req.Role))
	if err != nil {
		a.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"principal": req.Principal, "role": req.Role})
}

func (a *API) handleOwnedDomains(c *gin.Context) {
	domains, err := a.registry.OwnedDomains(c.Request.Context(), c.Param("org"))
	if err != nil {
		a.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"domains": domains})
}

func (a *API) handleAdministeredHosts(c *gin.Context) {
	hosts, err := a.registry.AdministeredHosts(c.Request.Context(), c.Param("org"))
	if err != nil {
		a.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"hosts": hosts})
}

func (a *API) handleDelegatedHosts(c *gin.Context) {
	hosts, err := a.registry.DelegatedHosts(c.Request.Context(), c.Param("org"))
	if err != nil {
		a.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"hosts": hosts})
}

func (a *API) handleRegisterHost(c *gin.Context) {
	var req struct {
		Address       string `json:"address"`
		StoreUsername string `json:"storeUsername"`
		StorePassword string `json:"storePassword"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		a.renderError(c, badRequest("address"))
		return
	}
	host := graph.RecordHost{
		Address:       req.Address,
		StoreUsername: req.StoreUsername,
		StorePassword: req.StorePassword,
	}
	if err := a.registry.RegisterHost(c.Request.Context(), c.Param("org"), host); err != nil {
		a.renderError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"address": req.Address})
}

func (a *API) handleRemoveHost(c *gin.Context) {
	if err := a.registry.RemoveHost(c.Request.Context(), c.Param("org"), c.Param("address")); err != nil {
		a.renderError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (a *API) handleListHostDomains(c *gin.Context) {
	domains, err := a.sync.ListHostDomains(c.Request.Context(), c.Param("org"), c.Param("address"))
	if err != nil {
		a.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"domains": domains})
}

func (a *API) handleCreateDomain(c *gin.Context) {
	var req struct {
		Name string `json:"name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		a.renderError(c, badRequest("name"))
		return
	}
	if err := a.sync.CreateDomain(c.Request.Context(), c.Param("org"), c.Param("address"), req.Name); err != nil {
		a.renderError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"name": req.Name})
}

func (a *API) handleRemoveDomain(c *gin.Context) {
	if err := a.sync.RemoveDomain(c.Request.Context(), c.Param("org"), c.Param("domain")); err != nil {
		a.renderError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (a *API) handleAuthority(c *gin.Context) {
	res, err := a.resolver.ResolveDomain(c.Request.Context(), c.Param("org"), c.Param("domain"))
	if err != nil {
		a.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tier": string(res.Tier), "bound": res.Bound})
}

func (a *API) handleListRecords(c *gin.Context) {
	records, err := a.sync.ListRecords(c.Request.Context(), c.Param("org"), c.Param("domain"))
	if err != nil {
		a.renderError(c, err)
		return
	}
	out := make([]recordPayload, 0, len(records))
	for _, r := range records {
		out = append(out, recordPayload{ID: r.ID, Name: r.Name, Type: r.Type, Content: r.Content, TTL: r.TTL})
	}
	c.JSON(http.StatusOK, gin.H{"records": out})
}

func (a *API) handleCreateRecord(c *gin.Context) {
	var req recordPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		a.renderError(c, badRequest("record"))
		return
	}
	record, err := a.sync.CreateRecord(c.Request.Context(), c.Param("org"), c.Param("domain"), req.input())
	if err != nil {
		a.renderError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"record": record.Name})
}

func (a *API) handleEditRecords(c *gin.Context) {
	var req struct {
		Records []recordPayload `json:"records"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		a.renderError(c, badRequest("records"))
		return
	}
	inputs := make([]recsync.RecordInput, 0, len(req.Records))
	for _, r := range req.Records {
		inputs = append(inputs, r.input())
	}
	if err := a.sync.EditRecords(c.Request.Context(), c.Param("org"), c.Param("domain"), inputs); err != nil {
		a.renderError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (a *API) handleRemoveAllRecords(c *gin.Context) {
	if err := a.sync.RemoveAllRecords(c.Request.Context(), c.Param("org"), c.Param("domain")); err != nil {
		a.renderError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (a *API) handleRemoveRecord(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		a.renderError(c, badRequest("id"))
		return
	}
	var req recordPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		a.renderError(c, badRequest("record"))
		return
	}
	req.ID = id
	if err := a.sync.RemoveRecord(c.Request.Context(), c.Param("org"), c.Param("domain"), req.input()); err != nil {
		a.renderError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (a *API) handleDelegatees(c *gin.Context) {
	list, err := a.delegation.Delegatees(c.Request.Context(), c.Param("org"), c.Param("domain"))
	if err != nil {
		a.renderError(c, err)
		return
	}
	out := make([]gin.H, 0, len(list))
	for _, d := range list {
		out = append(out, gin.H{"organization": d.Organization, "bound": d.Bound})
	}
	c.JSON(http.StatusOK, gin.H{"delegations": out})
}

func (a *API) handleDelegate(c *gin.Context) {
	var req struct {
		Organization string `json:"organization"`
		Bound        int64  `json:"bound"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		a.renderError(c, badRequest("organization"))
		return
	}
	err := a.delegation.Delegate(c.Request.Context(), c.Param("org"), c.Param("domain"), req.Organization, req.Bound)
	if err != nil {
		a.renderError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"organization": req.Organization, "bound": req.Bound})
}

func (a *API) handleUndelegate(c *gin.Context) {
	err := a.delegation.Undelegate(c.Request.Context(), c.Param("org"), c.Param("domain"), c.Param("delegatee"))
	if err != nil {
		a.renderError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
