package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/databayt/hogwarts-sub013/core/messaging"
)

type messagingApi struct {
	svc *messaging.Service
}

func registerMessagingAPI(g *echo.Group, jwt, auth echo.MiddlewareFunc, svc *messaging.Service) {
	api := messagingApi{svc: svc}

	cg := g.Group("/conversations", jwt, auth)
	cg.GET("", api.query)
	cg.POST("", api.start)
	cg.GET("/:id", api.retrieve)
	cg.GET("/:id/messages", api.messages)
	cg.POST("/:id/messages", api.send)
	cg.POST("/:id/read", api.markRead)
}

// start opens a conversation between the context user and the participants with a first message.
func (api *messagingApi) start(ctx echo.Context) error {
	var data messaging.NewConversation
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewConversation")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	conv, err := api.svc.Start(ctx.Request().Context(), contextUser(ctx), data)
	if err != nil {
		return errors.Wrap(err, "starting conversation")
	}
	return created(ctx, conv)
}

func (api *messagingApi) query(ctx echo.Context) error {
	convs, err := api.svc.ListForUser(ctx.Request().Context(), contextUser(ctx))
	if err != nil {
		return errors.Wrap(err, "querying conversations")
	}
	if convs == nil {
		convs = []messaging.Conversation{}
	}
	return ok(ctx, convs)
}

func (api *messagingApi) retrieve(ctx echo.Context) error {
	conv, err := api.svc.Get(ctx.Request().Context(), contextUser(ctx), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding conversation")
	}
	return ok(ctx, conv)
}

func (api *messagingApi) messages(ctx echo.Context) error {
	msgs, err := api.svc.Messages(ctx.Request().Context(), contextUser(ctx), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "querying messages")
	}
	if msgs == nil {
		msgs = []messaging.Message{}
	}
	return ok(ctx, msgs)
}

func (api *messagingApi) send(ctx echo.Context) error {
	var data messaging.NewMessage
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewMessage")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	msg, err := api.svc.Send(ctx.Request().Context(), contextUser(ctx), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "sending message")
	}
	return created(ctx, msg)
}

func (api *messagingApi) markRead(ctx echo.Context) error {
	if err := api.svc.MarkRead(ctx.Request().Context(), contextUser(ctx), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "marking conversation as read")
	}
	return ctx.NoContent(http.StatusNoContent)
}
