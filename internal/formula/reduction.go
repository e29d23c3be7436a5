package formula

// ReductionKind identifies the combine rule collapsing the reduced axis.
type ReductionKind int

// Supported reductions.
const (
	SumReduction ReductionKind = iota
	MinReduction
	MaxReduction
	ArgMinReduction
	ArgMaxReduction
	LogSumExpReduction
)

// reductionNames maps reduction operator names in the formula grammar.
var reductionNames = map[string]ReductionKind{
	"Sum_Reduction":       SumReduction,
	"Min_Reduction":       MinReduction,
	"Max_Reduction":       MaxReduction,
	"ArgMin_Reduction":    ArgMinReduction,
	"ArgMax_Reduction":    ArgMaxReduction,
	"LogSumExp_Reduction": LogSumExpReduction,
}

// String returns the reduction's name in the formula grammar.
func (k ReductionKind) String() string {
	for name, kind := range reductionNames {
		if kind == k {
			return name
		}
	}
	return "Unknown_Reduction"
}

// IsArg reports whether the reduction outputs indices rather than values.
func (k ReductionKind) IsArg() bool {
	return k == ArgMinReduction || k == ArgMaxReduction
}

// Reduction describes how the formula output is collapsed.
// Axis 0 reduces over j (output indexed by i, M rows);
// axis 1 reduces over i (output indexed by j, N rows).
type Reduction struct {
	Kind ReductionKind
	Axis int
}

// OutputCategory returns the category of the surviving output axis.
func (r Reduction) OutputCategory() Category {
	if r.Axis == 0 {
		return Vi
	}
	return Vj
}

// ReducedCategory returns the category of the axis being collapsed.
func (r Reduction) ReducedCategory() Category {
	if r.Axis == 0 {
		return Vj
	}
	return Vi
}
