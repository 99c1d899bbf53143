package routes

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/samber/do"
	"github.com/slipway-sh/slipway/internal/entity"
	"github.com/slipway-sh/slipway/internal/usecase"
)

// RegisterStatusAPI exposes the read-only reporting projections. Nothing
// here mutates deployment state; mutation happens only through the CLI
// commands holding the deployment lock.
func RegisterStatusAPI(injector *do.Injector, e *echo.Echo) {
	g := e.Group("/api")

	g.GET("/locks", func(c echo.Context) error {
		usecase := do.MustInvoke[usecase.ListLocksUsecase](injector)
		locks, err := usecase.Execute(c.Request().Context())
		if err != nil {
			return c.NoContent(http.StatusInternalServerError)
		}

		type lockView struct {
			Stage     string    `json:"stage"`
			CreatedAt time.Time `json:"created_at"`
			ExpiresAt time.Time `json:"expires_at"`
			Stale     bool      `json:"stale"`
		}
		type response struct {
			Locks []lockView `json:"locks"`
		}

		now := time.Now()
		result := &response{Locks: make([]lockView, len(locks))}
		for i, lock := range locks {
			result.Locks[i] = lockView{
				Stage:     lock.Stage,
				CreatedAt: lock.CreatedAt,
				ExpiresAt: lock.ExpiresAt,
				Stale:     lock.IsExpired(now),
			}
		}
		return c.JSON(http.StatusOK, result)
	})

	g.GET("/deployments/:id/traffic", func(c echo.Context) error {
		usecase := do.MustInvoke[usecase.GetTrafficStatusUsecase](injector)
		summary, err := usecase.Execute(c.Request().Context(), c.Param("id"))
		if err != nil {
			if errors.Is(err, entity.ErrNotFound) {
				return c.NoContent(http.StatusNotFound)
			}
			return c.NoContent(http.StatusInternalServerError)
		}
		return c.JSON(http.StatusOK, summary)
	})

	g.GET("/deployments/:id/canary", func(c echo.Context) error {
		usecase := do.MustInvoke[usecase.GetCanaryStatusUsecase](injector)
		summary, err := usecase.Execute(c.Request().Context(), c.Param("id"))
		if err != nil {
			if errors.Is(err, entity.ErrNotFound) {
				return c.NoContent(http.StatusNotFound)
			}
			return c.NoContent(http.StatusInternalServerError)
		}
		return c.JSON(http.StatusOK, summary)
	})
}
