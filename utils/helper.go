package utils

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/contracts_backend/config"
	"github.com/bsm/redislock"
	"github.com/go-playground/validator/v10"
)

func ProcessValidationErrors(err error) map[string]string {

	validationErrors := err.(validator.ValidationErrors)

	errorResponse := make(map[string]string)

	for _, ve := range validationErrors {
		errorResponse[ve.Field()] = ve.Tag()
	}

	return errorResponse
}

func NewTrue() *bool {
	b := true
	return &b
}

func UniqueSlice[T comparable](slice []T) []T {
	keys := make(map[T]bool)
	list := []T{}
	for _, entry := range slice {
		if _, value := keys[entry]; !value {
			keys[entry] = true
			list = append(list, entry)
		}
	}
	return list
}

func DereferencePtr[T any](ptr *T, defaults ...T) T {
	if ptr != nil {
		return *ptr
	}
	if len(defaults) > 0 {
		return defaults[0]
	}
	var zero T
	return zero
}

func NilIfEmpty[T comparable](v T) *T {
	var zero T
	if v == zero {
		return nil
	}
	return &v
}

func BusinessLock(ctx context.Context, businessId string, lockType string, moduleName string, functionName string) error {
	logger := config.GetLogger()
	locker := config.GetRedisLock()
	if locker == nil {
		// Avoid nil-pointer panics when Redis lock isn't initialized yet.
		config.LogError(logger, moduleName, functionName, "Redis lock not initialized", businessId, errors.New("redis lock is nil"))
		return errors.New("service not ready (redis lock not initialized)")
	}
	// Try to obtain a lock for the businessID
	lockKey := fmt.Sprintf("%s:%s", lockType, businessId)
	lock, err := locker.Obtain(ctx, lockKey, 30*time.Second, nil)
	if err == redislock.ErrNotObtained {
		// Handle the case where the lock could not be obtained
		config.LogError(logger, moduleName, functionName, "Could not obtain lock for businessID", businessId, err)
		return errors.New("could not obtain lock for businessID")
	} else if err != nil {
		// Handle other errors in obtaining the lock
		config.LogError(logger, moduleName, functionName, "Error obtaining lock for businessID", businessId, err)
		return err
	}
	defer func() {
		_ = lock.Release(ctx)
	}()

	return nil
}
