package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"residence/internal/service"
)

const SessionCookie = "session_token"

type AuthHandler struct {
	svc service.AuthService
	log *zap.Logger
}

func NewAuthHandler(s service.AuthService, log *zap.Logger) *AuthHandler {
	return &AuthHandler{svc: s, log: log}
}

type creds struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
	Name     string `json:"name"`
}

func (h *AuthHandler) Register(c *gin.Context) {
	var in creds
	if err := c.ShouldBindJSON(&in); err != nil {
		badJSON(c, err)
		return
	}
	id, err := h.svc.Register(c.Request.Context(), in.Email, in.Name, in.Password)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"status": "registered", "id": id})
}

func (h *AuthHandler) Login(c *gin.Context) {
	var in creds
	if err := c.ShouldBindJSON(&in); err != nil {
		badJSON(c, err)
		return
	}
	sess, err := h.svc.Login(c.Request.Context(), in.Email, in.Password)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	maxAge := int(time.Until(sess.Expires).Seconds())
	c.SetCookie(SessionCookie, sess.Token, maxAge, "/", "", false, true) // set Secure:true behind HTTPS
	c.JSON(http.StatusOK, gin.H{"status": "logged_in", "accessToken": sess.AccessToken, "expiresAt": sess.Expires})
}

func (h *AuthHandler) Logout(c *gin.Context) {
	if tok, err := c.Cookie(SessionCookie); err == nil {
		if err := h.svc.Logout(c.Request.Context(), tok); err != nil {
			h.log.Warn("logout", zap.Error(err))
		}
	}
	c.SetCookie(SessionCookie, "", -1, "/", "", false, true)
	c.JSON(http.StatusOK, gin.H{"status": "logged_out"})
}

func (h *AuthHandler) Me(c *gin.Context) {
	c.JSON(http.StatusOK, currentUser(c))
}
