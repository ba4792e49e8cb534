package echoapi

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/databayt/hogwarts-sub013/core"
	exportsvc "github.com/databayt/hogwarts-sub013/services/export"
)

// sendExport writes the table as an attachment in the format picked by ?format= (csv by default).
func sendExport(ctx echo.Context, t exportsvc.Table) error {
	format, err := exportsvc.ParseFormat(ctx.QueryParam("format"))
	if err != nil {
		return core.NewFieldError("format", "format must be one of "+strings.Join(exportsvc.Formats, ", "))
	}

	var buf bytes.Buffer
	if err := exportsvc.Write(&buf, format, t); err != nil {
		return errors.Wrapf(err, "writing %s export", format)
	}
	name := exportsvc.FileName(t, format, core.Today().Format(core.DateLayout))
	ctx.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", name))
	return ctx.Blob(http.StatusOK, exportsvc.ContentType(format), buf.Bytes())
}
