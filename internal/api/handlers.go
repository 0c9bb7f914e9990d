package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/cory-johannsen/encounters/internal/catalog"
	"github.com/cory-johannsen/encounters/internal/encounter"
)

// PreviewRequest is the body of POST /tables/preview.
type PreviewRequest struct {
	DieSize int             `json:"die_size"`
	Filters catalog.Filters `json:"filters"`
}

// PreviewResponse lists generated but unsaved entries.
type PreviewResponse struct {
	DieSize int               `json:"die_size"`
	Entries []encounter.Entry `json:"entries"`
}

// ShareRequest is the body of PATCH /tables/:id/share.
type ShareRequest struct {
	IsPublic *bool `json:"is_public"`
}

func bindError(err error) error {
	return fmt.Errorf("%w: malformed request body: %v", encounter.ErrInvalidArgument, err)
}

// queryInt parses an optional integer query parameter; absent yields 0.
func queryInt(ctx echo.Context, name string) (int, error) {
	raw := ctx.QueryParam(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", encounter.ErrInvalidArgument, name)
	}
	return n, nil
}

// ListTables handles GET /tables?page=&limit=.
func (c *Controller) ListTables(ctx echo.Context) error {
	page, err := queryInt(ctx, "page")
	if err != nil {
		return c.fail(ctx, err)
	}
	limit, err := queryInt(ctx, "limit")
	if err != nil {
		return c.fail(ctx, err)
	}
	res, err := c.svc.List(ctx.Request().Context(), callerFrom(ctx), encounter.Page{Page: page, Limit: limit})
	if err != nil {
		return c.fail(ctx, err)
	}
	return ctx.JSON(http.StatusOK, res)
}

// CreateTable handles POST /tables.
func (c *Controller) CreateTable(ctx echo.Context) error {
	var in encounter.CreateInput
	if err := ctx.Bind(&in); err != nil {
		return c.fail(ctx, bindError(err))
	}
	t, err := c.svc.Create(ctx.Request().Context(), callerFrom(ctx), in)
	if err != nil {
		return c.fail(ctx, err)
	}
	return ctx.JSON(http.StatusCreated, t)
}

// PreviewTable handles POST /tables/preview.
func (c *Controller) PreviewTable(ctx echo.Context) error {
	var in PreviewRequest
	if err := ctx.Bind(&in); err != nil {
		return c.fail(ctx, bindError(err))
	}
	entries, err := c.svc.Preview(ctx.Request().Context(), callerFrom(ctx), in.DieSize, in.Filters)
	if err != nil {
		return c.fail(ctx, err)
	}
	return ctx.JSON(http.StatusOK, PreviewResponse{DieSize: in.DieSize, Entries: entries})
}

// GetTable handles GET /tables/:id.
func (c *Controller) GetTable(ctx echo.Context) error {
	t, err := c.svc.Get(ctx.Request().Context(), ctx.Param("id"), callerFrom(ctx))
	if err != nil {
		return c.fail(ctx, err)
	}
	return ctx.JSON(http.StatusOK, t)
}

// UpdateTable handles PATCH /tables/:id.
func (c *Controller) UpdateTable(ctx echo.Context) error {
	var in encounter.UpdateInput
	if err := ctx.Bind(&in); err != nil {
		return c.fail(ctx, bindError(err))
	}
	t, err := c.svc.Update(ctx.Request().Context(), ctx.Param("id"), callerFrom(ctx), in)
	if err != nil {
		return c.fail(ctx, err)
	}
	return ctx.JSON(http.StatusOK, t)
}

// DeleteTable handles DELETE /tables/:id.
func (c *Controller) DeleteTable(ctx echo.Context) error {
	if err := c.svc.Delete(ctx.Request().Context(), ctx.Param("id"), callerFrom(ctx)); err != nil {
		return c.fail(ctx, err)
	}
	return ctx.NoContent(http.StatusNoContent)
}

// RegenerateTable handles POST /tables/:id/generate.
func (c *Controller) RegenerateTable(ctx echo.Context) error {
	t, err := c.svc.Regenerate(ctx.Request().Context(), ctx.Param("id"), callerFrom(ctx))
	if err != nil {
		return c.fail(ctx, err)
	}
	return ctx.JSON(http.StatusOK, t)
}

// RollTable handles POST /tables/:id/roll.
func (c *Controller) RollTable(ctx echo.Context) error {
	res, err := c.svc.Roll(ctx.Request().Context(), ctx.Param("id"), callerFrom(ctx))
	if err != nil {
		return c.fail(ctx, err)
	}
	return ctx.JSON(http.StatusOK, res)
}

// ShareTable handles PATCH /tables/:id/share.
func (c *Controller) ShareTable(ctx echo.Context) error {
	var in ShareRequest
	if err := ctx.Bind(&in); err != nil {
		return c.fail(ctx, bindError(err))
	}
	if in.IsPublic == nil {
		return c.fail(ctx, fmt.Errorf("%w: is_public is required", encounter.ErrInvalidArgument))
	}
	sh, err := c.svc.SetPublic(ctx.Request().Context(), ctx.Param("id"), callerFrom(ctx), *in.IsPublic)
	if err != nil {
		return c.fail(ctx, err)
	}
	return ctx.JSON(http.StatusOK, sh)
}

// ReplaceEntry handles PATCH /tables/:id/entries/:roll.
func (c *Controller) ReplaceEntry(ctx echo.Context) error {
	roll, err := strconv.Atoi(ctx.Param("roll"))
	if err != nil {
		return c.fail(ctx, fmt.Errorf("%w: roll number must be an integer", encounter.ErrInvalidArgument))
	}
	var in encounter.ReplaceInput
	if err := ctx.Bind(&in); err != nil {
		return c.fail(ctx, bindError(err))
	}
	e, err := c.svc.ReplaceEntry(ctx.Request().Context(), ctx.Param("id"), callerFrom(ctx), roll, in)
	if err != nil {
		return c.fail(ctx, err)
	}
	return ctx.JSON(http.StatusOK, e)
}

// GetPublicTable handles GET /public/:slug.
func (c *Controller) GetPublicTable(ctx echo.Context) error {
	t, err := c.svc.GetPublic(ctx.Request().Context(), ctx.Param("slug"))
	if err != nil {
		return c.fail(ctx, err)
	}
	return ctx.JSON(http.StatusOK, t)
}

// RollPublicTable handles POST /public/:slug/roll.
func (c *Controller) RollPublicTable(ctx echo.Context) error {
	res, err := c.svc.RollPublic(ctx.Request().Context(), ctx.Param("slug"))
	if err != nil {
		return c.fail(ctx, err)
	}
	return ctx.JSON(http.StatusOK, res)
}

// CopyPublicTable handles POST /public/:slug/copy.
func (c *Controller) CopyPublicTable(ctx echo.Context) error {
	t, err := c.svc.Copy(ctx.Request().Context(), ctx.Param("slug"), callerFrom(ctx))
	if err != nil {
		return c.fail(ctx, err)
	}
	return ctx.JSON(http.StatusCreated, t)
}
