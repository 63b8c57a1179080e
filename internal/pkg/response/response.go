package response

import (
	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/webapi/proxyutil"
)

// codeErr satisfies the webapi error contract so the failure code lands
// in the response envelope instead of the HTTP status line.
type codeErr struct {
	code uint32
	msg  string
}

func (e codeErr) Error() string {
	return e.msg
}

func (e codeErr) Code() uint32 {
	return e.code
}

func Success(c *gin.Context, data interface{}) {
	proxyutil.SuccessJson(c, data)
}

// Error responds with HTTP 200 and the errcode in the body; callers
// distinguish failures by code, not status.
func Error(c *gin.Context, code int, message string) {
	proxyutil.FailJson(c, 200, codeErr{code: uint32(code), msg: message})
}

// ErrorWithData is Error with a payload attached, for failures that
// still carry something the caller should show (FailJson drops data).
func ErrorWithData(c *gin.Context, code int, message string, data interface{}) {
	c.AbortWithStatusJSON(200, &proxyutil.CommonResponse{
		Code:    uint32(code),
		Message: message,
		Data:    data,
	})
}
