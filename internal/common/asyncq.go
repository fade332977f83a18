package common

import (
	"log"

	"github.com/hibiken/asynq"

	"github.com/climatequery/engine/internal/config"
)

// client is the global asynq client instance.
var client *asynq.Client

// InitAsyncq initializes the asynq client and starts its worker server in
// a goroutine. Handlers registered via RegisterHandlerFunc before this
// call is made are picked up by the worker; handlers registered after are
// not, so InitAsyncq must run last in the wiring order.
func InitAsyncq(cfg *config.Config) error {
	opt := asynq.RedisClientOpt{
		Addr:         cfg.Asynq.Addr,
		Username:     cfg.Asynq.Username,
		Password:     cfg.Asynq.Password,
		ReadTimeout:  cfg.Asynq.ReadTimeout,
		WriteTimeout: cfg.Asynq.WriteTimeout,
	}
	client = asynq.NewClient(opt)
	go run(opt, cfg.Asynq.Concurrency)
	return nil
}

// GetAsyncqClient returns the global asynq client instance.
func GetAsyncqClient() *asynq.Client {
	return client
}

// handleFunc stores registered task handlers, keyed by task type name.
var handleFunc = map[string]asynq.HandlerFunc{}

// RegisterHandlerFunc registers a handler function for a specific task type.
func RegisterHandlerFunc(taskType string, handlerFunc asynq.HandlerFunc) {
	handleFunc[taskType] = handlerFunc
}

// run starts the asynq worker server with every handler registered so far.
func run(opt asynq.RedisClientOpt, concurrency int) {
	srv := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			"default": 3,
			"low":     1,
		},
	})

	mux := asynq.NewServeMux()
	for typ, handler := range handleFunc {
		mux.HandleFunc(typ, handler)
	}

	if err := srv.Run(mux); err != nil {
		log.Fatalf("asynq worker server stopped: %v", err)
	}
}
