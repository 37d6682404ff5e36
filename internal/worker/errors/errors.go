package errors

import sterrors "errors"

var (
	ErrConsumerRequired    = sterrors.New("routeflow: consumer is required")
	ErrRouterRequired      = sterrors.New("routeflow: router is required")
	ErrHandlerRequired     = sterrors.New("routeflow: handler function is required")
	ErrMessageTypeRequired = sterrors.New("routeflow: message type is required")
	ErrValidatorRequired   = sterrors.New("routeflow: content validator is required")
	ErrTopicRequired       = sterrors.New("routeflow: topic is required")
	ErrSubscriberRequired  = sterrors.New("routeflow: subscriber is required")
	ErrLoggerRequired      = sterrors.New("routeflow: logger is required")
	ErrConfigRequired      = sterrors.New("routeflow: config is required")
)
