package routers

import (
	"claude-invocation/internal/ctx"
	"claude-invocation/internal/handlers/invocation"
	"claude-invocation/internal/shared"

	"github.com/labstack/echo/v4"
)

type InvocationRouter struct {
	ih *invocation.InvocationHandler
}

func RegisterInvocationRoutes(e *echo.Group, ih *invocation.InvocationHandler) {
	ir := InvocationRouter{ih: ih}

	v1 := e.Group("/v1")
	v1.POST("/invoke", ir.Invoke)
}

// Invoke adapts an HTTP request into an inbound event and writes back the
// pipeline's response as is.
func (ir *InvocationRouter) Invoke(cc echo.Context) error {
	c := cc.(*ctx.Context)
	body, err := readRequestBody(c)
	if err != nil {
		c.LogValues.AddError(err)
		return writeResponse(c, invocation.Failure(err))
	}

	res := ir.ih.Invoke(invocation.InvocationInput{
		Ctx:       c.Request().Context(),
		RequestID: c.Reqid,
		Log:       c.Log,
		Event: shared.InboundEvent{
			Body:    string(body),
			Headers: flattenHeaders(c.Request().Header),
		},
	})
	return writeResponse(c, res)
}
