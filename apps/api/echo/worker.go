package echoapi

import (
	"context"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/swcache/core"
	"github.com/trezcool/swcache/core/cache"
	clientsvc "github.com/trezcool/swcache/services/clients"
)

const maxPushPayload = 64 << 10

type (
	workerApi struct {
		version  string
		reg      *cache.Registration
		store    cache.Store
		notifier cache.Notifier
		hub      *clientsvc.Hub
		update   func(ctx context.Context) error
	}

	StateResponse struct {
		Version       string      `json:"version"`
		ActiveVersion string      `json:"active_version,omitempty"`
		State         cache.State `json:"state"`
		UpToDate      bool        `json:"up_to_date"`
	}

	GenerationResponse struct {
		Name    string `json:"name"`
		Current bool   `json:"current"`
		Entries int    `json:"entries"`
	}
)

func registerWorkerAPI(g *echo.Group, jwt echo.MiddlewareFunc, api *workerApi) {
	sg := g.Group("/_sw")

	// un-authed endpoints: used by the pages themselves
	sg.GET("/notifications", api.listNotifications)
	sg.POST("/notifications/:id/click", api.clickNotification)
	sg.GET("/clients/ws", api.attachClient)

	// authed endpoints
	ag := sg.Group("", jwt)
	ag.POST("/push", api.push, roleMiddleware(RolePush))
	ag.GET("/state", api.state, roleMiddleware())
	ag.POST("/update", api.runUpdate, roleMiddleware())
	ag.GET("/generations", api.generations, roleMiddleware())
}

// Handlers

func (api *workerApi) state(ctx echo.Context) error {
	res := StateResponse{Version: api.version, State: cache.StateUninstalled}
	if m := api.reg.Active(); m != nil {
		res.ActiveVersion = m.Version()
		res.State = m.State()
		res.UpToDate = m.Version() == api.version
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *workerApi) runUpdate(ctx echo.Context) error {
	if err := api.update(ctx.Request().Context()); err != nil {
		if errors.Cause(err) == cache.ErrInvalidTransition {
			// the registration is out of sync with its managers: restart the host
			return core.NewShutdownError(err.Error())
		}
		return errors.Wrap(err, "updating registration")
	}
	return api.state(ctx)
}

func (api *workerApi) generations(ctx echo.Context) error {
	c := ctx.Request().Context()
	names, err := api.store.Names(c)
	if err != nil {
		return errors.Wrap(err, "listing generations")
	}

	active := ""
	if m := api.reg.Active(); m != nil {
		active = m.Version()
	}
	res := make([]GenerationResponse, 0, len(names))
	for _, name := range names {
		gen, ok, err := api.store.Lookup(c, name)
		if err != nil {
			return errors.Wrapf(err, "opening generation %s", name)
		}
		if !ok { // deleted since listed
			continue
		}
		keys, err := gen.Keys(c)
		if err != nil {
			return errors.Wrapf(err, "listing keys of %s", name)
		}
		res = append(res, GenerationResponse{Name: name, Current: name == active, Entries: len(keys)})
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *workerApi) push(ctx echo.Context) error {
	data, err := io.ReadAll(io.LimitReader(ctx.Request().Body, maxPushPayload))
	if err != nil {
		return errors.Wrap(err, "reading payload")
	}
	n, err := api.reg.Push(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "pushing notification")
	}
	return ctx.JSON(http.StatusCreated, n)
}

func (api *workerApi) listNotifications(ctx echo.Context) error {
	list, err := api.notifier.List(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "listing notifications")
	}
	return ctx.JSON(http.StatusOK, list)
}

func (api *workerApi) clickNotification(ctx echo.Context) error {
	c := ctx.Request().Context()
	n, err := api.notifier.Get(c, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting notification")
	}
	client, err := api.reg.NotificationClick(c, n)
	if err != nil {
		return errors.Wrap(err, "handling notification click")
	}
	return ctx.JSON(http.StatusOK, client)
}

func (api *workerApi) attachClient(ctx echo.Context) error {
	return api.hub.ServeWS(ctx.Response(), ctx.Request())
}
