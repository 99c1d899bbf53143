package routes

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/samber/do"
	"gorm.io/gorm"
)

// RegisterMisc exposes the liveness endpoint. It answers degraded when the
// state database is unreachable, since every slipway operation depends on
// it.
func RegisterMisc(injector *do.Injector, e *echo.Echo) {
	e.GET("/api/health", func(c echo.Context) error {
		type response struct {
			Status string `json:"status"`
			Error  string `json:"error,omitempty"`
		}

		db := do.MustInvoke[*gorm.DB](injector)
		sqlDB, err := db.DB()
		if err == nil {
			err = sqlDB.PingContext(c.Request().Context())
		}
		if err != nil {
			return c.JSON(http.StatusServiceUnavailable, &response{Status: "degraded", Error: err.Error()})
		}
		return c.JSON(http.StatusOK, &response{Status: "ok"})
	})
}
