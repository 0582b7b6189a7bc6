package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	handlers "residence/internal/http/handler"
	"residence/internal/http/middleware"
	"residence/internal/notify"
	"residence/internal/service"
)

type Deps struct {
	Auth         service.AuthService
	Reservations service.ReservationService
	Facilities   service.FacilityService
	Calendar     service.CalendarService
	Hub          *notify.Hub // nil disables /notifications/ws
	Limiter      *middleware.RateLimiter
	Origins      []string
	Log          *zap.Logger
	// Info is merged into the GET / response.
	Info gin.H
}

// New builds the gin engine with every route of the service.
func New(d Deps) (*gin.Engine, error) {
	if err := handlers.RegisterValidators(); err != nil {
		return nil, err
	}
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.Limiter == nil {
		d.Limiter = middleware.NewRateLimiter(5, 10)
	}

	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLog(d.Log))

	info := gin.H{"ok": true}
	for k, v := range d.Info {
		info[k] = v
	}
	r.GET("/", func(c *gin.Context) { c.JSON(http.StatusOK, info) })

	authH := handlers.NewAuthHandler(d.Auth, d.Log)
	adminH := handlers.NewAdminHandler(d.Facilities, d.Log)
	resH := handlers.NewReservationHandler(d.Reservations, d.Log)
	calH := handlers.NewCalendarHandler(d.Calendar, d.Log)
	auth := middleware.Auth(d.Auth)

	r.POST("/register", authH.Register)
	r.POST("/login", authH.Login)
	r.POST("/logout", authH.Logout)
	r.GET("/me", auth, authH.Me)

	r.POST("/facilities/:id/reservations", auth, d.Limiter.Limit(), resH.Create)
	r.GET("/facilities/:id/reservations", auth, calH.ListReservations)
	r.GET("/availability", auth, calH.Availability)
	r.GET("/reservations/:id", auth, resH.Get)
	r.GET("/reservations/:id/access-code.png", auth, resH.AccessCode)

	if d.Hub != nil {
		wsH := handlers.NewNotificationHandler(d.Hub, d.Origins, d.Log)
		r.GET("/notifications/ws", auth, wsH.Serve)
	}

	admin := r.Group("/admin", auth, middleware.Admin())
	{
		admin.POST("/facilities", adminH.CreateFacility)
		admin.GET("/facilities", adminH.ListFacilities)
		admin.PUT("/facilities/:id/hours", adminH.SetOperatingHours)
		admin.POST("/households", adminH.CreateHousehold)
		admin.POST("/households/:id/members", adminH.AddMember)
	}
	return r, nil
}
