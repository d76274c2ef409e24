package api

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"taskboard-api/domain"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origin policy matches the wide-open CORS configuration.
	CheckOrigin: func(*http.Request) bool { return true },
}

// Register wires all routes onto the echo instance.
func Register(e *echo.Echo, hub *Hub, tasks TaskMutator, store Pinger, logger *log.Logger) {
	e.GET("/ws", serveWS(hub, logger))
	e.GET("/api/tasks", getTasks(tasks, logger))
	e.GET("/api/users", getUsers(hub))
	e.POST("/api/columns/:column/rebalance", rebalanceColumn(hub, tasks, logger))
	e.GET("/healthz", healthz(store))
}

func serveWS(hub *Hub, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
		if err != nil {
			logger.Errorf("websocket upgrade: %v", err)
			return err
		}
		hub.HandleConnection(conn)
		return nil
	}
}

func getTasks(tasks TaskMutator, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		list, err := tasks.GetAll(c.Request().Context())
		if err != nil {
			logger.Errorf("list tasks: %v", err)
			return c.String(http.StatusInternalServerError, "failed to load tasks")
		}
		if list == nil {
			list = []domain.Task{}
		}
		return c.JSON(http.StatusOK, list)
	}
}

func getUsers(hub *Hub) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, hub.Users())
	}
}

type rebalanceResponse struct {
	Rebalanced bool `json:"rebalanced"`
}

// rebalanceColumn compacts a column's ordering keys when subdivision has
// exhausted the gaps. On change every participant gets a fresh snapshot,
// since rebalancing rewrites orders and versions across the column.
func rebalanceColumn(hub *Hub, tasks TaskMutator, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		column := domain.Column(c.Param("column"))
		if !column.Valid() {
			return c.String(http.StatusBadRequest, "unknown column: "+c.Param("column"))
		}

		ctx := c.Request().Context()
		changed, err := tasks.RebalanceColumn(ctx, column)
		if err != nil {
			logger.Errorf("rebalance column %s: %v", column, err)
			return c.String(http.StatusInternalServerError, "rebalance failed")
		}
		if changed {
			snapshot, err := tasks.GetAll(ctx)
			if err != nil {
				logger.Errorf("snapshot after rebalance: %v", err)
			} else {
				hub.broadcastAll(msgTasksLoaded, tasksLoadedPayload{Tasks: snapshot})
			}
		}
		return c.JSON(http.StatusOK, rebalanceResponse{Rebalanced: changed})
	}
}

func healthz(store Pinger) echo.HandlerFunc {
	return func(c echo.Context) error {
		if err := store.Ping(c.Request().Context()); err != nil {
			return c.String(http.StatusServiceUnavailable, err.Error())
		}
		return c.NoContent(http.StatusOK)
	}
}
