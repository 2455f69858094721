package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestMilestoneHandler_Start_Unauthorized(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handler := &MilestoneHandler{}
	r.POST("/milestones/:id/start", handler.Start)

	milestoneID := uuid.New()
	req, _ := http.NewRequest("POST", "/milestones/"+milestoneID.String()+"/start", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestMilestoneHandler_Get_InvalidID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	userID := uuid.New()
	r.Use(func(c *gin.Context) {
		c.Set("userID", userID)
		c.Next()
	})
	handler := &MilestoneHandler{}
	r.GET("/milestones/:id", handler.Get)

	req, _ := http.NewRequest("GET", "/milestones/invalid-uuid", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMilestoneHandler_Submit_Unauthorized(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handler := &MilestoneHandler{}
	r.POST("/milestones/:id/submit", handler.Submit)

	milestoneID := uuid.New()
	body := strings.NewReader(`{"note":"готово"}`)
	req, _ := http.NewRequest("POST", "/milestones/"+milestoneID.String()+"/submit", body)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestMilestoneHandler_RequestChanges_InvalidBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	userID := uuid.New()
	r.Use(func(c *gin.Context) {
		c.Set("userID", userID)
		c.Next()
	})
	handler := &MilestoneHandler{}
	r.POST("/milestones/:id/request-changes", handler.RequestChanges)

	milestoneID := uuid.New()
	// Пустое тело: причина обязательна на уровне биндинга.
	body := strings.NewReader(`{}`)
	req, _ := http.NewRequest("POST", "/milestones/"+milestoneID.String()+"/request-changes", body)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
