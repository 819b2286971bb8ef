package advice

import "github.com/google/cel-go/cel"

// Variables visible to rule expressions.
const (
	varScores      = "scores"
	varFinalScore  = "final_score"
	varSafetyScore = "safety_score"
	varTier        = "tier"
	varTrend       = "trend"
)

// NewEnv returns the CEL environment rules are compiled in. scores maps each
// present expert to its clamped score; missing experts have no key.
func NewEnv() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable(varScores, cel.MapType(cel.StringType, cel.DoubleType)),
		cel.Variable(varFinalScore, cel.DoubleType),
		cel.Variable(varSafetyScore, cel.DoubleType),
		cel.Variable(varTier, cel.StringType),
		cel.Variable(varTrend, cel.StringType),
	)
}
