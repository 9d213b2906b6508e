package handlers

import (
	"github.com/carebridge/carebridge-api/internal/middleware"
	"github.com/carebridge/carebridge-api/internal/models"
	"github.com/gin-gonic/gin"
)

// Routes mounts the API on r.
func (h *Handler) Routes(r gin.IRouter) {
	r.GET("/healthz", h.Health)

	api := r.Group("/api")
	api.GET("/ws", h.ServeWS)

	authRoutes := api.Group("/auth")
	{
		authRoutes.POST("/register", h.RegisterUser)
		authRoutes.POST("/login", h.Login)
	}

	staffOrDoctor := middleware.RequireRoles(models.RoleStaff, models.RoleDoctor)

	protected := api.Group("")
	protected.Use(middleware.Auth(h.Tokens))
	{
		protected.GET("/users/me", h.GetCurrentUser)
		protected.PUT("/users/me", h.UpdateCurrentUser)

		protected.GET("/hospitals", h.ListHospitals)
		protected.POST("/hospitals", middleware.RequireRoles(models.RoleStaff), h.CreateHospital)
		protected.GET("/hospitals/near", h.NearbyHospitals)
		protected.GET("/hospitals/:id", h.GetHospital)
		protected.PUT("/hospitals/:id", middleware.RequireRoles(models.RoleStaff), h.UpdateHospital)
		protected.GET("/hospitals/:id/doctors", h.HospitalDoctors)

		doctorOnly := middleware.RequireRoles(models.RoleDoctor)
		protected.GET("/doctors/profile", doctorOnly, h.GetDoctorProfile)
		protected.PUT("/doctors/profile", doctorOnly, h.UpdateDoctorProfile)
		protected.POST("/doctors/profile/qualifications", doctorOnly, h.AddQualification)
		protected.GET("/doctors/search", h.SearchDoctors)
		protected.GET("/doctors/near", h.NearbyDoctors)
		protected.GET("/doctors/:id/availability", h.DoctorAvailability)

		protected.POST("/appointments", middleware.RequireRoles(models.RolePatient), h.BookAppointment)
		protected.GET("/appointments", h.ListAppointments)
		protected.GET("/appointments/queue/:doctorId", staffOrDoctor, h.DoctorDayQueue)
		protected.GET("/appointments/:id", h.GetAppointment)
		protected.PATCH("/appointments/:id/status", staffOrDoctor, h.UpdateAppointmentStatus)
		protected.DELETE("/appointments/:id", h.CancelAppointment)

		protected.POST("/queues", staffOrDoctor, h.CreateQueue)
		protected.GET("/queues/doctor/:doctorId", h.DoctorQueues)
		protected.GET("/queues/hospital/:hospitalId", h.HospitalQueues)
		protected.GET("/queues/patient/:patientId", h.PatientQueues)
		protected.GET("/queues/:id", h.GetQueue)
		protected.PUT("/queues/:id/status", staffOrDoctor, h.SetQueueStatus)
		protected.POST("/queues/:id/patients", h.JoinQueue)
		protected.PUT("/queues/:id/patients/:entryId", staffOrDoctor, h.UpdateQueueEntry)
		protected.DELETE("/queues/:id/patients/:entryId", h.LeaveQueue)

		protected.POST("/chat", h.HandleChat)
		protected.POST("/chat/analyze-report", h.AnalyzeReport)

		protected.GET("/predict/symptoms", h.PredictionSymptoms)
		protected.POST("/predict", h.PredictDisease)
	}
}
