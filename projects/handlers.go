package projects

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"bitbucket.org/onpointdev/ops_backend/utils"
)

// ListAssignableProjectsHandler lists project-flagged customers with
// their assignment summaries. ?q= filters by name, ?include_inactive=true
// widens past active customers.
func ListAssignableProjectsHandler(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		activeOnly := c.Query("include_inactive") != "true"
		rows, err := svc.ListAssignableProjects(c.Request.Context(), c.Query("q"), activeOnly)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, rows)
	}
}

// AssignmentBundleHandler returns the full editing state for one customer.
func AssignmentBundleHandler(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid customer id"})
			return
		}
		bundle, err := svc.GetAssignmentBundle(c.Request.Context(), id)
		if err != nil {
			if errors.Is(err, ErrCustomerNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, bundle)
	}
}

// SaveAssignmentHandler applies one desired assignment state. The path
// id names the customer; a body carrying a different qbo_customer_id is
// rejected rather than silently saving another project.
func SaveAssignmentHandler(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid customer id"})
			return
		}
		var input SaveAssignmentInput
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		if input.QboCustomerId != 0 && input.QboCustomerId != id {
			c.JSON(http.StatusBadRequest, gin.H{"error": "qbo_customer_id does not match the request path"})
			return
		}
		input.QboCustomerId = id
		actorUserId, ok := utils.GetUserIdFromContext(c.Request.Context())
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		bundle, err := svc.SaveAssignment(c.Request.Context(), input, actorUserId)
		if err != nil {
			switch {
			case errors.Is(err, ErrCustomerNotFound):
				c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			case errors.Is(err, ErrNotProject),
				errors.Is(err, ErrInvalidStatus),
				errors.Is(err, ErrInvalidDate),
				errors.Is(err, ErrEndBeforeStart),
				errors.Is(err, ErrPrimaryNotInSet),
				errors.Is(err, ErrUnknownManager),
				errors.Is(err, ErrUnknownCrew):
				c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
			default:
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			}
			return
		}
		c.JSON(http.StatusOK, bundle)
	}
}

// ProjectEventsHandler returns the audit trail for one customer's project.
func ProjectEventsHandler(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid customer id"})
			return
		}
		events, err := svc.ListProjectEvents(c.Request.Context(), id)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, events)
	}
}
