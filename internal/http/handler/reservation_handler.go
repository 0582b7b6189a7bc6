package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"residence/internal/service"
)

type ReservationHandler struct {
	svc service.ReservationService
	log *zap.Logger
}

func NewReservationHandler(s service.ReservationService, log *zap.Logger) *ReservationHandler {
	return &ReservationHandler{svc: s, log: log}
}

// reservationIn is decoded loosely; the service reports missing or
// malformed fields with its own messages.
type reservationIn struct {
	HouseholdID    string `json:"householdId"`
	StartTime      string `json:"startTime"`
	EndTime        string `json:"endTime"`
	TimezoneOffset int    `json:"timezoneOffset"`
	Purpose        string `json:"purpose"`
	Notes          string `json:"notes"`
	NumberOfPeople *int   `json:"numberOfPeople"`
}

func (h *ReservationHandler) Create(c *gin.Context) {
	u := currentUser(c)
	var in reservationIn
	if err := c.ShouldBindJSON(&in); err != nil {
		badJSON(c, err)
		return
	}
	res, err := h.svc.Create(c.Request.Context(), service.CreateInput{
		FacilityID:     c.Param("id"),
		HouseholdID:    in.HouseholdID,
		RequestedBy:    u.ID,
		StartTime:      in.StartTime,
		EndTime:        in.EndTime,
		TimezoneOffset: in.TimezoneOffset,
		NumberOfPeople: in.NumberOfPeople,
		Purpose:        in.Purpose,
		Notes:          in.Notes,
	})
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	if rej := res.Rejection(); rej != nil {
		body := gin.H{
			"success":               false,
			"error":                 rej.Reason,
			"errorCode":             rej.Code,
			"reservation":           res.Reservation,
			"conflict":              rej.Conflict,
			"allowFrontDeskMessage": true,
		}
		if rej.NextAvailable != nil {
			body["nextAvailable"] = rej.NextAvailable
		}
		c.JSON(http.StatusConflict, body)
		return
	}

	msg := "Reservation submitted and awaiting approval"
	if res.AutoApproved() {
		msg = "Reservation approved"
	}
	c.JSON(http.StatusCreated, gin.H{
		"success":      true,
		"message":      msg,
		"data":         res.Reservation,
		"autoApproved": res.AutoApproved(),
	})
}

func (h *ReservationHandler) Get(c *gin.Context) {
	r, err := h.svc.Get(c.Request.Context(), currentUser(c), c.Param("id"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

func (h *ReservationHandler) AccessCode(c *gin.Context) {
	png, err := h.svc.AccessCodePNG(c.Request.Context(), currentUser(c), c.Param("id"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.Header("Cache-Control", "private, no-store")
	c.Data(http.StatusOK, "image/png", png)
}
