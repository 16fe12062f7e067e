package utils

import (
	"context"

	"bitbucket.org/mmdatafocus/contracts_backend/appctx"
)

// Alias the shared context key type so existing code keeps working.
type contextKey = appctx.ContextKey

var (
	ContextKeyToken         = appctx.ContextKeyToken
	ContextKeyBusinessId    = appctx.ContextKeyBusinessId
	ContextKeyUserId        = appctx.ContextKeyUserId
	ContextKeyUserName      = appctx.ContextKeyUserName
	ContextKeyCorrelationId = appctx.ContextKeyCorrelationId

	ContextKeyIsAdmin = appctx.ContextKeyIsAdmin
)

func GetBusinessIdFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyBusinessId)
}

func GetUserIdFromContext(ctx context.Context) (int, bool) {
	return appctx.GetInt(ctx, ContextKeyUserId)
}

func GetUserNameFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyUserName)
}

func GetCorrelationIdFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyCorrelationId)
}

func SetTokenInContext(ctx context.Context, token string) context.Context {
	return appctx.Set(ctx, ContextKeyToken, token)
}

func SetBusinessIdInContext(ctx context.Context, businessId string) context.Context {
	return appctx.Set(ctx, ContextKeyBusinessId, businessId)
}

func SetUserIdInContext(ctx context.Context, userId int) context.Context {
	return appctx.Set(ctx, ContextKeyUserId, userId)
}

func SetUserNameInContext(ctx context.Context, userName string) context.Context {
	return appctx.Set(ctx, ContextKeyUserName, userName)
}

func SetCorrelationIdInContext(ctx context.Context, correlationId string) context.Context {
	return appctx.Set(ctx, ContextKeyCorrelationId, correlationId)
}

func GetIsAdminFromContext(ctx context.Context) (bool, bool) {
	return appctx.GetBool(ctx, ContextKeyIsAdmin)
}

func SetIsAdminInContext(ctx context.Context, isAdmin bool) context.Context {
	return appctx.Set(ctx, ContextKeyIsAdmin, isAdmin)
}
