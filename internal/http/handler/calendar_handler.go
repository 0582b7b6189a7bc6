package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"residence/internal/models"
	"residence/internal/service"
)

type CalendarHandler struct {
	svc service.CalendarService
	log *zap.Logger
}

func NewCalendarHandler(s service.CalendarService, log *zap.Logger) *CalendarHandler {
	return &CalendarHandler{svc: s, log: log}
}

// ListReservations serves GET /facilities/:id/reservations?from=&to=.
func (h *CalendarHandler) ListReservations(c *gin.Context) {
	from, err := queryTime(c, "from")
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	to, err := queryTime(c, "to")
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	rs, err := h.svc.ListReservations(c.Request.Context(), c.Param("id"), from, to)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	if rs == nil {
		rs = []models.Reservation{}
	}
	c.JSON(http.StatusOK, rs)
}

// Availability serves GET /availability?buildingId=&start=&end=&people=&timezoneOffset=.
func (h *CalendarHandler) Availability(c *gin.Context) {
	q := service.AvailabilityQuery{BuildingID: c.Query("buildingId")}
	var err error
	if q.Start, err = queryTime(c, "start"); err != nil {
		respondError(c, h.log, err)
		return
	}
	if q.End, err = queryTime(c, "end"); err != nil {
		respondError(c, h.log, err)
		return
	}
	if q.People, err = queryInt(c, "people", 1); err != nil {
		respondError(c, h.log, err)
		return
	}
	if q.TimezoneOffset, err = queryInt(c, "timezoneOffset", 0); err != nil {
		respondError(c, h.log, err)
		return
	}
	res, err := h.svc.FindAvailable(c.Request.Context(), q)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
