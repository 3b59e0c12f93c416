package constants

import (
	"github.com/go-playground/validator/v10"
)

type ContextKey string

const (
	PoolKey   ContextKey = "pool"
	TxKey     ContextKey = "tx"
	LoggerKey ContextKey = "logger"
	ActorKey  ContextKey = "actor"
)

var Validate = validator.New(validator.WithRequiredStructEnabled())
