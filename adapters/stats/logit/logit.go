package logit

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	apperrors "abtest/internal/errors"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

const (
	defaultMaxIter = 35
	defaultTol     = 1e-8
)

// Coefficient is one fitted covariate
type Coefficient struct {
	Name     string  `json:"name"`
	Estimate float64 `json:"estimate"`
	StdErr   float64 `json:"std_err"`
	Z        float64 `json:"z"`
	PValue   float64 `json:"p_value"`
	CILower  float64 `json:"ci_lower"`
	CIUpper  float64 `json:"ci_upper"`
}

// Result is a fitted logistic regression
type Result struct {
	Coefficients  []Coefficient `json:"coefficients"`
	Observations  int           `json:"observations"`
	LogLikelihood float64       `json:"log_likelihood"`
	LLNull        float64       `json:"ll_null"`
	PseudoR2      float64       `json:"pseudo_r2"`
	LLRPValue     float64       `json:"llr_p_value"`
	Iterations    int           `json:"iterations"`
	Converged     bool          `json:"converged"`
}

// Coefficient looks up a covariate by name
func (r *Result) Coefficient(name string) (Coefficient, bool) {
	for _, c := range r.Coefficients {
		if c.Name == name {
			return c, true
		}
	}
	return Coefficient{}, false
}

// Fitter estimates logistic regressions by Newton-Raphson (IRLS)
type Fitter struct {
	maxIter int
	tol     float64
	logger  *slog.Logger
}

// FitterOption configures a Fitter
type FitterOption func(*Fitter)

// WithMaxIter caps the number of Newton steps
func WithMaxIter(n int) FitterOption {
	return func(f *Fitter) {
		if n > 0 {
			f.maxIter = n
		}
	}
}

// WithTolerance sets the convergence threshold on the largest step
func WithTolerance(tol float64) FitterOption {
	return func(f *Fitter) {
		if tol > 0 {
			f.tol = tol
		}
	}
}

// WithLogger sets the structured logger
func WithLogger(l *slog.Logger) FitterOption {
	return func(f *Fitter) {
		if l != nil {
			f.logger = l
		}
	}
}

// NewFitter creates a logistic regression fitter
func NewFitter(opts ...FitterOption) *Fitter {
	f := &Fitter{maxIter: defaultMaxIter, tol: defaultTol, logger: slog.Default()}
	for _, opt := range opts {
		opt(f)
	}
	f.logger = f.logger.With("component", "LogitFitter")
	return f
}

// Fit regresses the binary outcome y on the design. Results are deterministic
// for identical inputs.
func (f *Fitter) Fit(ctx context.Context, design *Design, y []bool) (*Result, error) {
	n, k := design.Dims()
	if len(y) != n {
		return nil, apperrors.InvalidInput(fmt.Sprintf("outcome has %d rows, design has %d", len(y), n))
	}
	if n <= k {
		return nil, apperrors.InsufficientData(fmt.Sprintf("%d rows cannot identify %d coefficients", n, k))
	}

	yv := make([]float64, n)
	positives := 0
	for i, v := range y {
		if v {
			yv[i] = 1
			positives++
		}
	}
	if positives == 0 || positives == n {
		return nil, apperrors.InsufficientData("outcome has no variation")
	}

	x := design.x
	if err := checkRank(x, design.names); err != nil {
		return nil, err
	}

	beta := mat.NewVecDense(k, nil)
	grad := mat.NewVecDense(k, nil)
	step := mat.NewVecDense(k, nil)
	hess := mat.NewSymDense(k, nil)
	var chol mat.Cholesky

	converged := false
	iter := 0
	for iter < f.maxIter {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		iter++

		accumulate(x, yv, beta, grad, hess)
		if ok := chol.Factorize(hess); !ok {
			return nil, apperrors.New(apperrors.CodeSingularDesign,
				fmt.Sprintf("information matrix is singular; check design columns %v for collinearity", design.names))
		}
		if err := chol.SolveVecTo(step, grad); err != nil {
			return nil, apperrors.New(apperrors.CodeSingularDesign, err.Error())
		}
		beta.AddVec(beta, step)

		if mat.Norm(step, math.Inf(1)) < f.tol {
			converged = true
			break
		}
	}
	if !converged {
		f.logger.Warn("logistic regression did not converge", "iterations", iter, "columns", design.names)
	}

	// covariance at the final estimate
	accumulate(x, yv, beta, grad, hess)
	if ok := chol.Factorize(hess); !ok {
		return nil, apperrors.New(apperrors.CodeSingularDesign, "information matrix is singular at the estimate")
	}
	var cov mat.SymDense
	if err := chol.InverseTo(&cov); err != nil {
		return nil, apperrors.New(apperrors.CodeSingularDesign, err.Error())
	}

	critical := distuv.UnitNormal.Quantile(0.975)
	coefs := make([]Coefficient, k)
	for j := 0; j < k; j++ {
		est := beta.AtVec(j)
		se := math.Sqrt(cov.At(j, j))
		z := est / se
		coefs[j] = Coefficient{
			Name:     design.names[j],
			Estimate: est,
			StdErr:   se,
			Z:        z,
			PValue:   2 * distuv.UnitNormal.Survival(math.Abs(z)),
			CILower:  est - critical*se,
			CIUpper:  est + critical*se,
		}
	}

	ll := logLikelihood(x, yv, beta)
	ybar := float64(positives) / float64(n)
	llNull := float64(n) * (ybar*math.Log(ybar) + (1-ybar)*math.Log(1-ybar))

	df := k
	if design.HasIntercept() {
		df--
	}
	llrP := 1.0
	if df > 0 {
		llrP = distuv.ChiSquared{K: float64(df)}.Survival(2 * (ll - llNull))
	}

	res := &Result{
		Coefficients:  coefs,
		Observations:  n,
		LogLikelihood: ll,
		LLNull:        llNull,
		PseudoR2:      1 - ll/llNull,
		LLRPValue:     llrP,
		Iterations:    iter,
		Converged:     converged,
	}

	f.logger.Debug("logistic regression fitted",
		"columns", design.names,
		"rows", n,
		"iterations", iter,
		"log_likelihood", ll)

	return res, nil
}

// accumulate fills the score vector Xᵀ(y−μ) and the information matrix XᵀWX at beta
func accumulate(x *mat.Dense, y []float64, beta, grad *mat.VecDense, hess *mat.SymDense) {
	n, k := x.Dims()
	b := beta.RawVector().Data
	g := make([]float64, k)
	h := make([]float64, k*k)

	for i := 0; i < n; i++ {
		row := x.RawRowView(i)
		mu := sigmoid(dot(row, b))
		w := mu * (1 - mu)
		r := y[i] - mu
		for a := 0; a < k; a++ {
			g[a] += row[a] * r
			wa := w * row[a]
			for c := a; c < k; c++ {
				h[a*k+c] += wa * row[c]
			}
		}
	}

	for a := 0; a < k; a++ {
		grad.SetVec(a, g[a])
		for c := a; c < k; c++ {
			hess.SetSym(a, c, h[a*k+c])
		}
	}
}

// rankTolerance bounds the smallest-to-largest eigenvalue ratio of XᵀX
const rankTolerance = 1e-10

// checkRank rejects designs whose columns are linearly dependent
func checkRank(x *mat.Dense, names []string) error {
	var gram mat.SymDense
	gram.SymOuterK(1, x.T())

	var eig mat.EigenSym
	if ok := eig.Factorize(&gram, false); !ok {
		return apperrors.New(apperrors.CodeSingularDesign, "eigen-decomposition of the design failed")
	}
	values := eig.Values(nil)
	lo, hi := values[0], values[len(values)-1]
	if hi <= 0 || lo <= hi*rankTolerance {
		return apperrors.New(apperrors.CodeSingularDesign,
			fmt.Sprintf("design columns %v are linearly dependent", names))
	}
	return nil
}

func dot(row, beta []float64) float64 {
	s := 0.0
	for j, v := range row {
		s += v * beta[j]
	}
	return s
}

func logLikelihood(x *mat.Dense, y []float64, beta *mat.VecDense) float64 {
	n, _ := x.Dims()
	b := beta.RawVector().Data
	ll := 0.0
	for i := 0; i < n; i++ {
		eta := dot(x.RawRowView(i), b)
		ll += y[i]*eta - softplus(eta)
	}
	return ll
}

func sigmoid(eta float64) float64 {
	if eta >= 0 {
		return 1 / (1 + math.Exp(-eta))
	}
	e := math.Exp(eta)
	return e / (1 + e)
}

// softplus is log(1 + e^eta) without overflow
func softplus(eta float64) float64 {
	return math.Max(eta, 0) + math.Log1p(math.Exp(-math.Abs(eta)))
}
