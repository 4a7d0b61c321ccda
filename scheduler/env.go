package scheduler

import (
	"github.com/kelseyhightower/envconfig"
)

// ArrayEnv is the environment a scheduler provides to an array element. It
// is decoded once at the unit entry point and immediately converted into
// explicit arguments; nothing downstream reads ambient process state.
type ArrayEnv struct {
	TaskID int    `envconfig:"SLURM_ARRAY_TASK_ID" default:"-1"`
	JobID  string `envconfig:"SLURM_ARRAY_JOB_ID"`
}

// ReadArrayEnv decodes the scheduler-provided environment. TaskID is -1
// when the process is not running as an array element.
func ReadArrayEnv() (ArrayEnv, error) {
	var env ArrayEnv
	err := envconfig.Process("", &env)
	return env, err
}
