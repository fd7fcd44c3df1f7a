// Package api exposes the ONS core over HTTP. It adapts gin to the
// domain services; no domain package imports anything from here.
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gs1oliot/oliot-ons-2.0.1/internal/ons/authority"
	"github.com/gs1oliot/oliot-ons-2.0.1/internal/ons/delegation"
	"github.com/gs1oliot/oliot-ons-2.0.1/internal/ons/identity"
	"github.com/gs1oliot/oliot-ons-2.0.1/internal/ons/registry"
	recsync "github.com/gs1oliot/oliot-ons-2.0.1/internal/ons/sync"
	apperrors "github.com/gs1oliot/oliot-ons-2.0.1/internal/platform/errors"
)

const (
	principalKey = "ons.principal"
	requestIDKey = "ons.request_id"
)

// API holds the HTTP handlers and their dependencies.
type API struct {
	verifier   *identity.Verifier
	registry   *registry.Registry
	sync       *recsync.Synchronizer
	delegation *delegation.Manager
	resolver   *authority.Resolver
	log        *zap.Logger
}

// New returns an API over the given services.
func New(verifier *identity.Verifier, reg *registry.Registry, sync *recsync.Synchronizer, del *delegation.Manager, resolver *authority.Resolver, log *zap.Logger) *API {
	if log == nil {
		log = zap.NewNop()
	}
	return &API{
		verifier:   verifier,
		registry:   reg,
		sync:       sync,
		delegation: del,
		resolver:   resolver,
		log:        log,
	}
}

// Router builds the gin engine with all routes registered.
func (a *API) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), a.requestID())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	auth := r.Group("/", a.authenticate())
	{
		auth.GET("/me/organizations", a.handleMyOrganizations)

		auth.POST("/organizations", a.handleCreateOrganization)
		auth.GET("/organizations", a.handleListOrganizations)
		auth.POST("/organizations/:org/join", a.handleRequestMembership)

		org := auth.Group("/organizations/:org", a.requireOrgAdmin())
		{
			org.GET("/members", a.handleAffiliations)
			org.POST("/members", a.handleApproveMembership)

			org.GET("/domains", a.handleOwnedDomains)
			org.GET("/hosts", a.handleAdministeredHosts)
			org.GET("/delegated-hosts", a.handleDelegatedHosts)
			org.POST("/hosts", a.handleRegisterHost)
			org.DELETE("/hosts/:address", a.handleRemoveHost)
			org.GET("/hosts/:address/domains", a.handleListHostDomains)
			org.POST("/hosts/:address/domains", a.handleCreateDomain)

			org.DELETE("/domains/:domain", a.handleRemoveDomain)
			org.GET("/domains/:domain/authority", a.handleAuthority)

			org.GET("/domains/:domain/records", a.handleListRecords)
			org.POST("/domains/:domain/records", a.handleCreateRecord)
			org.PUT("/domains/:domain/records", a.handleEditRecords)
			org.DELETE("/domains/:domain/records", a.handleRemoveAllRecords)
			org.DELETE("/domains/:domain/records/:id", a.handleRemoveRecord)

			org.GET("/domains/:domain/delegations", a.handleDelegatees)
			org.POST("/domains/:domain/delegations", a.handleDelegate)
			org.DELETE("/domains/:domain/delegations/:delegatee", a.handleUndelegate)
		}
	}
	return r
}

// requestID tags every request with an id for log correlation.
func (a *API) requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header("X-Request-Id", id)
		c.Next()
	}
}

// authenticate resolves the bearer token to a principal and makes sure
// the principal node exists.
func (a *API) authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := a.verifier.FromAuthorization(c.GetHeader("Authorization"))
		if err != nil {
			a.renderError(c, err)
			c.Abort()
			return
		}
		if err := a.registry.EnsurePrincipal(c.Request.Context(), claims.Principal); err != nil {
			a.renderError(c, err)
			c.Abort()
			return
		}
		c.Set(principalKey, claims.Principal)
		c.Next()
	}
}

// requireOrgAdmin checks that the authenticated principal administers
// the organization named in the path.
func (a *API) requireOrgAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		principal := c.GetString(principalKey)
		org := c.Param("org")
		orgs, err := a.registry.OrganizationsOf(c.Request.Context(), principal)
		if err != nil {
			a.renderError(c, err)
			c.Abort()
			return
		}
		for _, name := range orgs {
			if name == org {
				c.Next()
				return
			}
		}
		a.renderError(c, apperrors.WithMetadata(
			apperrors.CodeUnauthorized,
			"principal does not administer the organization",
			map[string]string{"Principal": principal, "Organization": org},
		))
		c.Abort()
	}
}

func (a *API) renderError(c *gin.Context, err error) {
	code := apperrors.CodeOf(err)
	status := code.HTTPStatus()
	if status >= http.StatusInternalServerError {
		a.log.Error("request failed",
			zap.String("request_id", c.GetString(requestIDKey)),
			zap.String("path", c.FullPath()),
			zap.Error(err))
	}
	c.JSON(status, gin.H{
		"error": gin.H{
			"code":    string(code),
			"message": err.Error(),
		},
	})
}
