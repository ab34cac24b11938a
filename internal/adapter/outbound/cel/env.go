package cel

import (
	gocel "github.com/google/cel-go/cel"
)

// NewPolicyEnvironment creates the CEL environment a Rule's optional
// Condition is compiled and evaluated against. The variable set is
// deliberately small: the structured {method, path-prefix} predicate
// already covers routing; Condition exists for the handful of policies
// that need the agent's source address or local time-of-day as well.
func NewPolicyEnvironment() (*gocel.Env, error) {
	return gocel.NewEnv(
		gocel.Variable("method", gocel.StringType),
		gocel.Variable("path", gocel.StringType),
		gocel.Variable("service", gocel.StringType),
		gocel.Variable("agent_address", gocel.StringType),
		gocel.Variable("hour_of_day", gocel.IntType),
		gocel.Variable("header", gocel.MapType(gocel.StringType, gocel.StringType)),
	)
}
