package handler

import (
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/faciam-dev/gcdisk/internal/audit"
	"github.com/faciam-dev/gcdisk/internal/disk"
	"github.com/faciam-dev/gcdisk/internal/rbac"
	"github.com/faciam-dev/gcdisk/pkg/validation"
)

// unprocessable turns field errors into a 422 with one detail per message.
func unprocessable(verrs validation.Errors) error {
	var details []error
	for _, f := range verrs.Fields() {
		for _, msg := range verrs[f] {
			details = append(details, &huma.ErrorDetail{Location: "body." + f, Message: msg})
		}
	}
	return huma.NewError(http.StatusUnprocessableEntity, "The given data was invalid.", details...)
}

func mapErr(err error) error {
	var verrs validation.Errors
	switch {
	case err == nil:
		return nil
	case errors.As(err, &verrs):
		return unprocessable(verrs)
	case errors.Is(err, disk.ErrNotFound), errors.Is(err, rbac.ErrNotFound), errors.Is(err, audit.ErrNotFound):
		return huma.Error404NotFound("not found")
	case errors.Is(err, disk.ErrTypeNotFound):
		return huma.Error404NotFound("disk type not found")
	}
	return err
}
