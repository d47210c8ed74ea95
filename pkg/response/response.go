package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	appErrors "github.com/brewstore/brewstore-server/pkg/errors"
)

// MessageBody is the flat body shape the storefront client expects on every
// non-payload response.
type MessageBody struct {
	Msg string `json:"msg"`
}

// Message writes a flat {"msg": ...} JSON body with the given status.
func Message(c *gin.Context, statusCode int, msg string) {
	c.JSON(statusCode, MessageBody{Msg: msg})
}

// JSON writes an arbitrary success payload. Kept as a named helper so handlers
// never reach for c.JSON directly and the boundary stays greppable.
func JSON(c *gin.Context, statusCode int, payload any) {
	c.JSON(statusCode, payload)
}

// Error renders an AppError as the flat {"msg": ...} body, hiding any internal
// detail. Unknown errors collapse to a generic 500.
func Error(c *gin.Context, err error) {
	if err == nil {
		err = appErrors.ErrInternalServer
	}

	appErr := appErrors.FromError(err)
	status := appErr.StatusCode
	if status == 0 {
		status = http.StatusInternalServerError
	}

	c.JSON(status, MessageBody{Msg: appErr.Message})
}
