// Package optimization turns return series, a strategy, and adaptor caps
// into a constrained target allocation.
package optimization

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat"

	"github.com/absfi/vaultd/internal/domain"
)

// Solver computes a weight vector from an aligned return matrix. Rows are
// time points, columns are assets, column order matches the caller's asset
// ordering. The returned weights sum to ~1.
type Solver interface {
	Solve(ctx context.Context, returns *mat.Dense, objective domain.Strategy) ([]float64, error)
}

// MVSolver is a mean-variance solver built on gonum's optimizers. The sum
// constraint is enforced with a quadratic penalty; bounds are handled by
// projecting iterates into [0,1].
type MVSolver struct{}

// NewMVSolver creates a new mean-variance solver.
func NewMVSolver() *MVSolver {
	return &MVSolver{}
}

const penaltyWeight = 1000.0

// Solve runs the optimization for the requested objective.
func (s *MVSolver) Solve(ctx context.Context, returns *mat.Dense, objective domain.Strategy) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rows, n := returns.Dims()
	if n == 0 {
		return nil, fmt.Errorf("empty return matrix")
	}
	if rows < 2 {
		return nil, fmt.Errorf("need at least 2 return rows, got %d", rows)
	}
	if n == 1 {
		return []float64{1.0}, nil
	}

	mu := make([]float64, n)
	for j := 0; j < n; j++ {
		col := mat.Col(nil, j, returns)
		mu[j] = stat.Mean(col, nil)
	}

	sigma := mat.NewSymDense(n, nil)
	stat.CovarianceMatrix(sigma, returns, nil)

	switch objective {
	case domain.StrategyMinRisk:
		return s.minimize(ctx, s.minVarianceProblem(mu, sigma, n), n)
	case domain.StrategyMaxSharpe:
		return s.minimize(ctx, s.maxSharpeProblem(mu, sigma, n), n)
	default:
		return nil, fmt.Errorf("unknown objective: %s", objective)
	}
}

// minVarianceProblem minimizes w'Σw subject to Σw = 1.
func (s *MVSolver) minVarianceProblem(mu []float64, sigma *mat.SymDense, n int) optimize.Problem {
	return optimize.Problem{
		Func: func(x []float64) float64 {
			xProj := projectToUnitBounds(x)

			var variance float64
			for i := 0; i < n; i++ {
				for j := 0; j < n; j++ {
					variance += xProj[i] * xProj[j] * sigma.At(i, j)
				}
			}

			sum := 0.0
			for i := 0; i < n; i++ {
				sum += xProj[i]
			}

			return variance + penaltyWeight*(sum-1.0)*(sum-1.0)
		},
		Grad: func(grad, x []float64) {
			xProj := projectToUnitBounds(x)

			for i := 0; i < n; i++ {
				grad[i] = 0
				for j := 0; j < n; j++ {
					grad[i] += 2 * sigma.At(i, j) * xProj[j]
				}
			}

			sum := 0.0
			for i := 0; i < n; i++ {
				sum += xProj[i]
			}
			for i := 0; i < n; i++ {
				grad[i] += 2 * penaltyWeight * (sum - 1.0)
			}
		},
	}
}

// maxSharpeProblem maximizes (μ'w) / sqrt(w'Σw) subject to Σw = 1, with a
// zero risk-free rate.
func (s *MVSolver) maxSharpeProblem(mu []float64, sigma *mat.SymDense, n int) optimize.Problem {
	return optimize.Problem{
		Func: func(x []float64) float64 {
			xProj := projectToUnitBounds(x)

			var returnVal, variance float64
			for i := 0; i < n; i++ {
				returnVal += mu[i] * xProj[i]
				for j := 0; j < n; j++ {
					variance += xProj[i] * xProj[j] * sigma.At(i, j)
				}
			}
			stdDev := math.Sqrt(math.Max(variance, 1e-10))

			sum := 0.0
			for i := 0; i < n; i++ {
				sum += xProj[i]
			}

			return -returnVal/stdDev + penaltyWeight*(sum-1.0)*(sum-1.0)
		},
		Grad: func(grad, x []float64) {
			xProj := projectToUnitBounds(x)

			var returnVal, variance float64
			for i := 0; i < n; i++ {
				returnVal += mu[i] * xProj[i]
				for j := 0; j < n; j++ {
					variance += xProj[i] * xProj[j] * sigma.At(i, j)
				}
			}
			stdDev := math.Sqrt(math.Max(variance, 1e-10))

			for i := 0; i < n; i++ {
				var dVariance float64
				for j := 0; j < n; j++ {
					dVariance += 2 * sigma.At(i, j) * xProj[j]
				}
				grad[i] = -mu[i]/stdDev + returnVal*dVariance/(2*stdDev*stdDev*stdDev)
			}

			sum := 0.0
			for i := 0; i < n; i++ {
				sum += xProj[i]
			}
			for i := 0; i < n; i++ {
				grad[i] += 2 * penaltyWeight * (sum - 1.0)
			}
		},
	}
}

// minimize runs BFGS with a NelderMead fallback and normalizes the solution.
func (s *MVSolver) minimize(ctx context.Context, problem optimize.Problem, n int) ([]float64, error) {
	initial := make([]float64, n)
	for i := range initial {
		initial[i] = 1.0 / float64(n)
	}

	result, err := optimize.Minimize(problem, initial, &optimize.Settings{}, &optimize.BFGS{})
	if err != nil || !converged(result.Status) {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		result, err = optimize.Minimize(problem, initial, &optimize.Settings{}, &optimize.NelderMead{})
		if err != nil {
			return nil, fmt.Errorf("optimization failed: %w", err)
		}
		if !converged(result.Status) {
			return nil, fmt.Errorf("optimization did not converge: status=%v", result.Status)
		}
	}

	xFinal := projectToUnitBounds(result.X)
	sum := 0.0
	for i := range xFinal {
		sum += xFinal[i]
	}

	weights := make([]float64, n)
	for i := range xFinal {
		weights[i] = math.Max(0.0, xFinal[i]/math.Max(sum, 1e-10))
	}

	sum = 0.0
	for _, w := range weights {
		sum += w
	}
	if sum <= 0 {
		return nil, fmt.Errorf("optimization produced degenerate weights")
	}
	for i := range weights {
		weights[i] /= sum
	}

	return weights, nil
}

func converged(status optimize.Status) bool {
	switch status {
	case optimize.Success, optimize.GradientThreshold, optimize.FunctionConvergence:
		return true
	default:
		return false
	}
}

func projectToUnitBounds(x []float64) []float64 {
	proj := make([]float64, len(x))
	for i := range x {
		proj[i] = math.Max(0.0, math.Min(1.0, x[i]))
	}
	return proj
}
