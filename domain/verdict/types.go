package verdict

// Decision is the outcome of comparing a p-value against a significance level
type Decision string

const (
	DecisionRejectNull   Decision = "reject_null"
	DecisionFailToReject Decision = "fail_to_reject_null"
)

// Decide applies the caller-level rule: reject iff pValue < alpha.
func Decide(pValue, alpha float64) Decision {
	if pValue < alpha {
		return DecisionRejectNull
	}
	return DecisionFailToReject
}

// Verdict records one test's decision
type Verdict struct {
	Test     string   `json:"test"`
	PValue   float64  `json:"p_value"`
	Alpha    float64  `json:"alpha"`
	Decision Decision `json:"decision"`
}

// NullDistributionSummary provides key statistics about a simulated null distribution
type NullDistributionSummary struct {
	Trials         int     `json:"trials"`
	Mean           float64 `json:"mean"`
	StdDev         float64 `json:"std_dev"`
	Min            float64 `json:"min"`
	Max            float64 `json:"max"`
	Percentile2_5  float64 `json:"percentile_2_5"`
	Median         float64 `json:"median"`
	Percentile95   float64 `json:"percentile_95"`
	Percentile97_5 float64 `json:"percentile_97_5"`
	Percentile99   float64 `json:"percentile_99"`
	Skewness       float64 `json:"skewness"`
	ExcessKurtosis float64 `json:"excess_kurtosis"`
}

// CrossCheck compares the simulated p-value with an analytic one
type CrossCheck struct {
	SimulatedPValue float64 `json:"simulated_p_value"`
	AnalyticPValue  float64 `json:"analytic_p_value"`
	Delta           float64 `json:"delta"`
	Tolerance       float64 `json:"tolerance"`
	Agrees          bool    `json:"agrees"`
}

// NewCrossCheck builds a CrossCheck; the two agree when |sim − analytic| <= tolerance.
func NewCrossCheck(simulated, analytic, tolerance float64) CrossCheck {
	delta := simulated - analytic
	if delta < 0 {
		delta = -delta
	}
	return CrossCheck{
		SimulatedPValue: simulated,
		AnalyticPValue:  analytic,
		Delta:           delta,
		Tolerance:       tolerance,
		Agrees:          delta <= tolerance,
	}
}
