package server

import (
	"net/http"

	"github.com/MarcoPoloResearchLab/studynotes/backend/internal/subjects"
	"github.com/MarcoPoloResearchLab/studynotes/backend/internal/users"
	"github.com/gin-gonic/gin"
)

type createSubjectPayload struct {
	Name        string  `json:"name"`
	Code        string  `json:"code"`
	Branch      string  `json:"branch"`
	Semester    flexInt `json:"semester"`
	Credits     *int    `json:"credits"`
	Description *string `json:"description"`
}

type profilePayload struct {
	StudentID string  `json:"studentId"`
	Branch    string  `json:"branch"`
	Semester  flexInt `json:"semester"`
}

func (h *httpHandler) handleListSubjects(c *gin.Context) {
	semester, err := parseSemester(c.Query("semester"))
	if err != nil {
		badRequest(c, "semester must be a number")
		return
	}
	listed, err := h.subjects.ListSubjects(c.Request.Context(), subjects.ListFilter{
		Branch:   queryValue(c.Query("branch")),
		Semester: semester,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, listed)
}

func (h *httpHandler) handleCreateSubject(c *gin.Context) {
	var payload createSubjectPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		badRequest(c, "Missing required fields")
		return
	}
	created, err := h.subjects.CreateSubject(c.Request.Context(), subjects.CreateInput{
		Name:        payload.Name,
		Code:        payload.Code,
		Branch:      payload.Branch,
		Semester:    int(payload.Semester),
		Credits:     payload.Credits,
		Description: payload.Description,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (h *httpHandler) handleGetProfile(c *gin.Context) {
	userID, ok := h.currentUser(c)
	if !ok {
		return
	}
	profile, err := h.users.GetProfile(c.Request.Context(), userID.String())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"profile": profile})
}

func (h *httpHandler) handleUpdateProfile(c *gin.Context) {
	userID, ok := h.currentUser(c)
	if !ok {
		return
	}
	var payload profilePayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		badRequest(c, "Validation failed")
		return
	}
	profile, err := h.users.UpdateProfile(c.Request.Context(), userID.String(), users.ProfileInput{
		StudentID: payload.StudentID,
		Branch:    payload.Branch,
		Semester:  int(payload.Semester),
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "profile": profile})
}
