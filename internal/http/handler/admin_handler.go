package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"residence/internal/models"
	"residence/internal/service"
)

type AdminHandler struct {
	svc service.FacilityService
	log *zap.Logger
}

func NewAdminHandler(s service.FacilityService, log *zap.Logger) *AdminHandler {
	return &AdminHandler{svc: s, log: log}
}

type dayHoursIn struct {
	Day       int    `json:"day" binding:"weekday"`
	OpenTime  string `json:"openTime" binding:"omitempty,hhmm"`
	CloseTime string `json:"closeTime" binding:"omitempty,hhmm"`
	IsClosed  bool   `json:"isClosed"`
}

func toDayHours(in []dayHoursIn) []models.DayHours {
	out := make([]models.DayHours, 0, len(in))
	for _, d := range in {
		out = append(out, models.DayHours{Day: d.Day, OpenTime: d.OpenTime, CloseTime: d.CloseTime, IsClosed: d.IsClosed})
	}
	return out
}

type facilityIn struct {
	BuildingID     string       `json:"buildingId" binding:"required"`
	Name           string       `json:"name" binding:"required"`
	Capacity       *int         `json:"capacity"`
	OperatingHours []dayHoursIn `json:"operatingHours" binding:"dive"`
}

type hoursIn struct {
	OperatingHours []dayHoursIn `json:"operatingHours" binding:"dive"`
}

type householdIn struct {
	BuildingID string   `json:"buildingId" binding:"required"`
	Name       string   `json:"name" binding:"required"`
	Apartment  string   `json:"apartment"`
	MemberIDs  []string `json:"memberIds"`
}

type memberIn struct {
	UserID string `json:"userId" binding:"required"`
}

func (h *AdminHandler) CreateFacility(c *gin.Context) {
	var in facilityIn
	if err := c.ShouldBindJSON(&in); err != nil {
		badJSON(c, err)
		return
	}
	f := &models.Facility{
		BuildingID:     in.BuildingID,
		Name:           in.Name,
		Capacity:       in.Capacity,
		OperatingHours: toDayHours(in.OperatingHours),
	}
	id, err := h.svc.CreateFacility(c.Request.Context(), f)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

func (h *AdminHandler) ListFacilities(c *gin.Context) {
	fs, err := h.svc.ListFacilities(c.Request.Context(), c.Query("buildingId"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	if fs == nil {
		fs = []models.Facility{}
	}
	c.JSON(http.StatusOK, fs)
}

func (h *AdminHandler) SetOperatingHours(c *gin.Context) {
	var in hoursIn
	if err := c.ShouldBindJSON(&in); err != nil {
		badJSON(c, err)
		return
	}
	if err := h.svc.SetOperatingHours(c.Request.Context(), c.Param("id"), toDayHours(in.OperatingHours)); err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *AdminHandler) CreateHousehold(c *gin.Context) {
	var in householdIn
	if err := c.ShouldBindJSON(&in); err != nil {
		badJSON(c, err)
		return
	}
	id, err := h.svc.CreateHousehold(c.Request.Context(), &models.Household{
		BuildingID: in.BuildingID,
		Name:       in.Name,
		Apartment:  in.Apartment,
		MemberIDs:  in.MemberIDs,
	})
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

func (h *AdminHandler) AddMember(c *gin.Context) {
	var in memberIn
	if err := c.ShouldBindJSON(&in); err != nil {
		badJSON(c, err)
		return
	}
	if err := h.svc.AddMember(c.Request.Context(), c.Param("id"), in.UserID); err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
