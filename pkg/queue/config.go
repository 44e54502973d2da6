package queue

import "time"

type Config struct {
	PollInterval       time.Duration `env:"QUEUE_POLL_INTERVAL" envDefault:"2s"`
	LockTimeout        time.Duration `env:"QUEUE_LOCK_TIMEOUT" envDefault:"5m"`
	ShutdownTimeout    time.Duration `env:"QUEUE_SHUTDOWN_TIMEOUT" envDefault:"30s"`
	MaxConcurrentTasks int           `env:"QUEUE_MAX_CONCURRENT_TASKS" envDefault:"4"`
	SchedulerInterval  time.Duration `env:"QUEUE_SCHEDULER_INTERVAL" envDefault:"30s"`
}

// WorkerOptions maps the config onto worker options.
func (c Config) WorkerOptions() []WorkerOption {
	return []WorkerOption{
		WithPullInterval(c.PollInterval),
		WithLockTimeout(c.LockTimeout),
		WithMaxConcurrentTasks(c.MaxConcurrentTasks),
	}
}
