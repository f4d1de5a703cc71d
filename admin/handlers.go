// Package admin exposes the management surface: login, users, project
// managers and work crews. All mutation endpoints sit behind the admin
// guard; the catalog listings are readable by any authenticated user.
package admin

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"bitbucket.org/onpointdev/ops_backend/models"
	"bitbucket.org/onpointdev/ops_backend/utils"
)

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

func LoginHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req loginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "email and password are required"})
			return
		}
		user, token, err := models.Login(c.Request.Context(), req.Email, req.Password)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"token": token, "user": user})
	}
}

func MeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userId, ok := utils.GetUserIdFromContext(c.Request.Context())
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		user, err := models.GetUser(c.Request.Context(), userId)
		if err != nil {
			respondModelError(c, err)
			return
		}
		c.JSON(http.StatusOK, user)
	}
}

func ListUsersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		users, err := models.GetUsers(c.Request.Context())
		if err != nil {
			respondModelError(c, err)
			return
		}
		c.JSON(http.StatusOK, users)
	}
}

func CreateUserHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewUser
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		user, err := models.CreateUser(c.Request.Context(), &input)
		if err != nil {
			respondModelError(c, err)
			return
		}
		c.JSON(http.StatusCreated, user)
	}
}

func UpdateUserHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		var input models.UpdateUserInput
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		user, err := models.UpdateUser(c.Request.Context(), id, &input)
		if err != nil {
			respondModelError(c, err)
			return
		}
		c.JSON(http.StatusOK, user)
	}
}

func DeactivateUserHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		if err := models.DeactivateUser(c.Request.Context(), id); err != nil {
			respondModelError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func ListProjectManagersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		activeOnly := c.Query("include_inactive") != "true"
		pms, err := models.GetProjectManagers(c.Request.Context(), activeOnly)
		if err != nil {
			respondModelError(c, err)
			return
		}
		c.JSON(http.StatusOK, pms)
	}
}

func CreateProjectManagerHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewProjectManager
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		pm, err := models.CreateProjectManager(c.Request.Context(), &input)
		if err != nil {
			respondModelError(c, err)
			return
		}
		c.JSON(http.StatusCreated, pm)
	}
}

func UpdateProjectManagerHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		var input models.NewProjectManager
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		pm, err := models.UpdateProjectManager(c.Request.Context(), id, &input)
		if err != nil {
			respondModelError(c, err)
			return
		}
		c.JSON(http.StatusOK, pm)
	}
}

func DeactivateProjectManagerHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		if err := models.DeactivateProjectManager(c.Request.Context(), id); err != nil {
			respondModelError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func ListWorkCrewsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		activeOnly := c.Query("include_inactive") != "true"
		crews, err := models.GetWorkCrews(c.Request.Context(), activeOnly)
		if err != nil {
			respondModelError(c, err)
			return
		}
		c.JSON(http.StatusOK, crews)
	}
}

func CreateWorkCrewHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewWorkCrew
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		crew, err := models.CreateWorkCrew(c.Request.Context(), &input)
		if err != nil {
			respondModelError(c, err)
			return
		}
		c.JSON(http.StatusCreated, crew)
	}
}

func UpdateWorkCrewHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		var input models.NewWorkCrew
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		crew, err := models.UpdateWorkCrew(c.Request.Context(), id, &input)
		if err != nil {
			respondModelError(c, err)
			return
		}
		c.JSON(http.StatusOK, crew)
	}
}

func DeactivateWorkCrewHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		if err := models.DeactivateWorkCrew(c.Request.Context(), id); err != nil {
			respondModelError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func pathId(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

func respondModelError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, utils.ErrorRecordNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrInvalidRole),
		errors.Is(err, models.ErrInvalidEmail),
		errors.Is(err, models.ErrParentCrewNotFound),
		errors.Is(err, models.ErrCrewOwnParent),
		errors.Is(err, models.ErrCrewHasActiveSubs):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
