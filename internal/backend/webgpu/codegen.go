package webgpu

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/symkern-ml/symkern/internal/engine"
	"github.com/symkern-ml/symkern/internal/formula"
)

// workgroupSize is the number of threads per workgroup. Each thread owns
// one output row and walks the reduced axis sequentially, so results match
// the CPU path bit for bit in float32.
const workgroupSize = 64

// generateWGSL translates a compiled kernel into a WGSL compute shader.
// Bindings 0..len(args)-1 are the argument buffers in slot order, followed
// by the output buffer and a uniform with the axis lengths.
func generateWGSL(k *engine.Kernel) string {
	var w strings.Builder
	args := k.Formula.Args
	red := k.Formula.Red
	outerCat := red.OutputCategory()

	for _, b := range args.All() {
		fmt.Fprintf(&w, "@group(0) @binding(%d) var<storage, read> arg%d: array<f32>;\n", b.Slot, b.Slot)
	}
	outType := "f32"
	if red.Kind.IsArg() {
		outType = "i32"
	}
	fmt.Fprintf(&w, "@group(0) @binding(%d) var<storage, read_write> out: array<%s>;\n", args.Len(), outType)
	fmt.Fprintf(&w, "\nstruct Params {\n    outer: u32,\n    inner: u32,\n}\n")
	fmt.Fprintf(&w, "@group(0) @binding(%d) var<uniform> params: Params;\n", args.Len()+1)

	fmt.Fprintf(&w, "\n@compute @workgroup_size(%d)\n", workgroupSize)
	w.WriteString("fn main(@builtin(global_invocation_id) global_id: vec3<u32>) {\n")
	w.WriteString("    let i = global_id.x;\n")
	w.WriteString("    if (i >= params.outer) {\n        return;\n    }\n\n")

	p := k.Prog
	outDim := p.OutDim
	fmt.Fprintf(&w, "    var s: array<f32, %d>;\n", p.ScratchSize)

	// Accumulator state; var is zero-initialized in WGSL.
	switch red.Kind {
	case formula.SumReduction:
		fmt.Fprintf(&w, "    var acc: array<f32, %d>;\n", outDim)
	case formula.MinReduction, formula.MaxReduction:
		fmt.Fprintf(&w, "    var best: array<f32, %d>;\n", outDim)
	case formula.ArgMinReduction, formula.ArgMaxReduction:
		fmt.Fprintf(&w, "    var best: array<f32, %d>;\n", outDim)
		fmt.Fprintf(&w, "    var best_idx: array<i32, %d>;\n", outDim)
	case formula.LogSumExpReduction:
		w.WriteString("    var run_max: f32 = 0.0;\n")
		w.WriteString("    var run_sum: f32 = 0.0;\n")
	}

	w.WriteString("\n    for (var j: u32 = 0u; j < params.inner; j = j + 1u) {\n")
	for idx := range p.Instrs {
		emitInstr(&w, p, idx, args, outerCat)
	}
	emitFold(&w, p, red.Kind)
	w.WriteString("    }\n\n")

	emitWriteOut(&w, red.Kind, outDim)
	w.WriteString("}\n")
	return w.String()
}

// emitInstr writes the WGSL statements for one instruction. Register r
// element c lives at s[RegOffset[r] + c].
func emitInstr(w *strings.Builder, p *engine.Program, idx int, args *formula.ArgTable, outerCat formula.Category) {
	in := &p.Instrs[idx]
	d := p.RegOffset[in.Dst]
	a := p.RegOffset[in.A]
	b := p.RegOffset[in.B]

	// Operand element expressions with dim-1 broadcast.
	ea := func() string {
		if in.ADim == 1 {
			return fmt.Sprintf("s[%du]", a)
		}
		return fmt.Sprintf("s[%du + c]", a)
	}
	eb := func() string {
		if in.BDim == 1 {
			return fmt.Sprintf("s[%du]", b)
		}
		return fmt.Sprintf("s[%du + c]", b)
	}

	switch in.Op {
	case formula.OpVar:
		bind := args.At(in.Slot)
		var src string
		switch {
		case bind.Cat == formula.Pm:
			src = fmt.Sprintf("arg%d[c]", in.Slot)
		case bind.Cat == outerCat:
			src = fmt.Sprintf("arg%d[i * %du + c]", in.Slot, bind.Dim)
		default:
			src = fmt.Sprintf("arg%d[j * %du + c]", in.Slot, bind.Dim)
		}
		emitLoop(w, in.Dim, fmt.Sprintf("s[%du + c] = %s;", d, src))

	case formula.OpLit:
		fmt.Fprintf(w, "        s[%du] = %s;\n", d, wgslFloat(in.Lit))

	case formula.OpZero:
		emitLoop(w, in.Dim, fmt.Sprintf("s[%du + c] = 0.0;", d))

	case formula.OpAdd:
		emitLoop(w, in.Dim, fmt.Sprintf("s[%du + c] = %s + %s;", d, ea(), eb()))
	case formula.OpSub:
		emitLoop(w, in.Dim, fmt.Sprintf("s[%du + c] = %s - %s;", d, ea(), eb()))
	case formula.OpMul:
		emitLoop(w, in.Dim, fmt.Sprintf("s[%du + c] = %s * %s;", d, ea(), eb()))
	case formula.OpDiv:
		emitLoop(w, in.Dim, fmt.Sprintf("s[%du + c] = %s / %s;", d, ea(), eb()))

	case formula.OpMinus:
		emitLoop(w, in.Dim, fmt.Sprintf("s[%du + c] = -%s;", d, ea()))
	case formula.OpExp:
		emitLoop(w, in.Dim, fmt.Sprintf("s[%du + c] = exp(%s);", d, ea()))
	case formula.OpLog:
		emitLoop(w, in.Dim, fmt.Sprintf("s[%du + c] = log(%s);", d, ea()))
	case formula.OpSin:
		emitLoop(w, in.Dim, fmt.Sprintf("s[%du + c] = sin(%s);", d, ea()))
	case formula.OpCos:
		emitLoop(w, in.Dim, fmt.Sprintf("s[%du + c] = cos(%s);", d, ea()))
	case formula.OpSqrt:
		emitLoop(w, in.Dim, fmt.Sprintf("s[%du + c] = sqrt(%s);", d, ea()))
	case formula.OpSquare:
		emitLoop(w, in.Dim, fmt.Sprintf("s[%du + c] = %s * %s;", d, ea(), ea()))
	case formula.OpAbs:
		emitLoop(w, in.Dim, fmt.Sprintf("s[%du + c] = abs(%s);", d, ea()))
	case formula.OpSign:
		emitLoop(w, in.Dim, fmt.Sprintf("s[%du + c] = sign(%s);", d, ea()))
	case formula.OpPow:
		emitLoop(w, in.Dim, fmt.Sprintf("s[%du + c] = pow(%s, %s);", d, ea(), wgslFloat(float64(in.P0))))

	case formula.OpSum:
		emitReduceLoop(w, idx, in.ADim, fmt.Sprintf("t%d = t%d + s[%du + c];", idx, idx, a))
		fmt.Fprintf(w, "        s[%du] = t%d;\n", d, idx)
	case formula.OpSqNorm2:
		emitReduceLoop(w, idx, in.ADim, fmt.Sprintf("t%d = t%d + s[%du + c] * s[%du + c];", idx, idx, a, a))
		fmt.Fprintf(w, "        s[%du] = t%d;\n", d, idx)
	case formula.OpNorm2:
		emitReduceLoop(w, idx, in.ADim, fmt.Sprintf("t%d = t%d + s[%du + c] * s[%du + c];", idx, idx, a, a))
		fmt.Fprintf(w, "        s[%du] = sqrt(t%d);\n", d, idx)
	case formula.OpScalprod:
		emitReduceLoop(w, idx, in.ADim, fmt.Sprintf("t%d = t%d + s[%du + c] * s[%du + c];", idx, idx, a, b))
		fmt.Fprintf(w, "        s[%du] = t%d;\n", d, idx)

	case formula.OpSumT:
		emitLoop(w, in.Dim, fmt.Sprintf("s[%du + c] = s[%du];", d, a))

	case formula.OpConcat:
		emitLoop(w, in.ADim, fmt.Sprintf("s[%du + c] = s[%du + c];", d, a))
		emitLoop(w, in.BDim, fmt.Sprintf("s[%du + c] = s[%du + c];", d+in.ADim, b))
	case formula.OpExtract:
		emitLoop(w, in.Dim, fmt.Sprintf("s[%du + c] = s[%du + c];", d, a+in.P0))
	case formula.OpExtractT:
		emitLoop(w, in.Dim, fmt.Sprintf("s[%du + c] = 0.0;", d))
		emitLoop(w, in.ADim, fmt.Sprintf("s[%du + c] = s[%du + c];", d+in.P0, a))

	default:
		panic(fmt.Sprintf("webgpu: cannot lower %s to WGSL", in.Op))
	}
}

func emitFold(w *strings.Builder, p *engine.Program, kind formula.ReductionKind) {
	out := p.RegOffset[p.OutReg]
	switch kind {
	case formula.SumReduction:
		emitLoop(w, p.OutDim, fmt.Sprintf("acc[c] = acc[c] + s[%du + c];", out))

	case formula.MinReduction, formula.MaxReduction, formula.ArgMinReduction, formula.ArgMaxReduction:
		cmp := "<"
		if kind == formula.MaxReduction || kind == formula.ArgMaxReduction {
			cmp = ">"
		}
		fmt.Fprintf(w, "        for (var c: u32 = 0u; c < %du; c = c + 1u) {\n", p.OutDim)
		fmt.Fprintf(w, "            let v = s[%du + c];\n", out)
		fmt.Fprintf(w, "            if (j == 0u || v %s best[c]) {\n", cmp)
		w.WriteString("                best[c] = v;\n")
		if kind.IsArg() {
			w.WriteString("                best_idx[c] = i32(j);\n")
		}
		w.WriteString("            }\n")
		w.WriteString("        }\n")

	case formula.LogSumExpReduction:
		fmt.Fprintf(w, "        let v = s[%du];\n", out)
		w.WriteString("        if (j == 0u) {\n")
		w.WriteString("            run_max = v;\n")
		w.WriteString("            run_sum = 1.0;\n")
		w.WriteString("        } else if (v <= run_max) {\n")
		w.WriteString("            run_sum = run_sum + exp(v - run_max);\n")
		w.WriteString("        } else {\n")
		w.WriteString("            run_sum = run_sum * exp(run_max - v) + 1.0;\n")
		w.WriteString("            run_max = v;\n")
		w.WriteString("        }\n")
	}
}

func emitWriteOut(w *strings.Builder, kind formula.ReductionKind, outDim int) {
	switch {
	case kind == formula.LogSumExpReduction:
		w.WriteString("    out[i] = run_max + log(run_sum);\n")
	case kind.IsArg():
		fmt.Fprintf(w, "    for (var c: u32 = 0u; c < %du; c = c + 1u) {\n", outDim)
		fmt.Fprintf(w, "        out[i * %du + c] = best_idx[c];\n", outDim)
		w.WriteString("    }\n")
	case kind == formula.SumReduction:
		fmt.Fprintf(w, "    for (var c: u32 = 0u; c < %du; c = c + 1u) {\n", outDim)
		fmt.Fprintf(w, "        out[i * %du + c] = acc[c];\n", outDim)
		w.WriteString("    }\n")
	default:
		fmt.Fprintf(w, "    for (var c: u32 = 0u; c < %du; c = c + 1u) {\n", outDim)
		fmt.Fprintf(w, "        out[i * %du + c] = best[c];\n", outDim)
		w.WriteString("    }\n")
	}
}

// emitLoop writes a per-coordinate loop inside the j loop body.
func emitLoop(w *strings.Builder, dim int, body string) {
	fmt.Fprintf(w, "        for (var c: u32 = 0u; c < %du; c = c + 1u) {\n", dim)
	for _, line := range strings.Split(body, "\n") {
		fmt.Fprintf(w, "            %s\n", strings.TrimLeft(line, " "))
	}
	w.WriteString("        }\n")
}

// emitReduceLoop declares a scalar temp t<idx> and folds into it.
func emitReduceLoop(w *strings.Builder, idx, dim int, body string) {
	fmt.Fprintf(w, "        var t%d: f32 = 0.0;\n", idx)
	emitLoop(w, dim, body)
}

func wgslFloat(v float64) string {
	s := strconv.FormatFloat(v, 'g', -1, 32)
	if !strings.ContainsAny(s, ".e") {
		s += ".0"
	}
	return s
}
