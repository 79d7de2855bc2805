package router

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	echoSwagger "github.com/swaggo/echo-swagger"

	"counselpay/internal/config"
	"counselpay/internal/handler"
)

// Register wires routes and middleware.
func Register(
	e *echo.Echo,
	cfg *config.Config,
	paymentHandler *handler.PaymentHandler,
	statisticsHandler *handler.StatisticsHandler,
) {
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	// Add validator
	e.Validator = &CustomValidator{validator: validator.New()}

	e.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	e.GET("/swagger/*", echoSwagger.WrapHandler)

	api := e.Group("/api")

	// Webhook is provider-facing: authenticated by HMAC signature, not JWT.
	api.POST("/payments/webhook", paymentHandler.HandleWebhook)

	// Everything else requires a token issued by the back-office auth
	// service (shared signing secret; this service never mints tokens).
	secured := api.Group("", echojwt.WithConfig(echojwt.Config{
		SigningKey:  []byte(cfg.JWTSecret),
		TokenLookup: "header:" + echo.HeaderAuthorization,
		NewClaimsFunc: func(c echo.Context) jwt.Claims {
			return jwt.MapClaims{}
		},
	}))

	secured.POST("/payments", paymentHandler.CreatePayment)
	secured.GET("/payments", paymentHandler.ListPayments)
	secured.POST("/payments/process-expired", paymentHandler.ProcessExpired)

	secured.GET("/payments/statistics", statisticsHandler.Summary)
	secured.GET("/payments/statistics/method", statisticsHandler.ByMethod)
	secured.GET("/payments/statistics/provider", statisticsHandler.ByProvider)
	secured.GET("/payments/statistics/monthly", statisticsHandler.Monthly)
	secured.GET("/payments/statistics/branch/:branchId", statisticsHandler.ByBranch)
	secured.GET("/payments/statistics/payer/:payerId", statisticsHandler.ByPayer)

	secured.GET("/payments/:paymentId", paymentHandler.GetPayment)
	secured.POST("/payments/:paymentId/approve", paymentHandler.ApprovePayment)
	secured.POST("/payments/:paymentId/cancel", paymentHandler.CancelPayment)
	secured.POST("/payments/:paymentId/refund", paymentHandler.RefundPayment)
	secured.POST("/payments/:paymentId/verify", paymentHandler.VerifyPayment)
}

// CustomValidator wraps validator for Echo.
type CustomValidator struct {
	validator *validator.Validate
}

// Validate implements echo.Validator interface.
func (cv *CustomValidator) Validate(i interface{}) error {
	return cv.validator.Struct(i)
}
