// Package main provides the symkern CLI.
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"

	"github.com/symkern-ml/symkern/formula"
	"github.com/symkern-ml/symkern/kernel"
	"github.com/symkern-ml/symkern/tensor"
)

const version = "v0.1.0-dev"

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "version":
			fmt.Printf("symkern %s\n", version)
			return
		case "eval":
			if err := runEval(os.Args[2:]); err != nil {
				fmt.Fprintln(os.Stderr, "symkern:", err)
				os.Exit(1)
			}
			return
		}
	}

	fmt.Println("symkern - symbolic kernel reductions for Go")
	fmt.Printf("Version: %s\n\n", version)
	fmt.Println("Commands:")
	fmt.Println("  version                      Show version")
	fmt.Println("  eval FORMULA DECL...         Evaluate a formula on random data")
	fmt.Println("")
	fmt.Println("Example:")
	fmt.Println(`  symkern eval 'Sum_Reduction(Exp(-s*SqNorm2(x-y))*b, 0)' \`)
	fmt.Println(`      'x = Vi(3)' 'y = Vj(3)' 'b = Vj(6)' 's = Pm(1)'`)
}

func runEval(args []string) error {
	fs := flag.NewFlagSet("eval", flag.ExitOnError)
	m := fs.Int("m", 100, "rows of row-indexed (Vi) arguments")
	n := fs.Int("n", 150, "rows of column-indexed (Vj) arguments")
	backend := fs.String("backend", "auto", "execution backend: auto, cpu or gpu")
	seed := fs.Int64("seed", 42, "random data seed")
	if err := fs.Parse(args); err != nil {
		return err
	}
	rest := fs.Args()
	if len(rest) < 2 {
		return fmt.Errorf("usage: symkern eval [flags] FORMULA DECL...")
	}

	var mode kernel.Mode
	switch *backend {
	case "auto":
		mode = kernel.ModeAuto
	case "cpu":
		mode = kernel.ModeCPU
	case "gpu":
		mode = kernel.ModeGPU
	default:
		return fmt.Errorf("unknown backend %q", *backend)
	}

	src, decls := rest[0], rest[1:]
	op, err := kernel.Compile(src, decls, kernel.WithMode(mode))
	if err != nil {
		return err
	}

	bufs, err := randomArgs(decls, *m, *n, *seed)
	if err != nil {
		return err
	}

	out, err := op.Apply(bufs...)
	if err != nil {
		return err
	}

	fmt.Printf("backend:  %s\n", op.BackendName())
	fmt.Printf("formula:  %s\n", op)
	fmt.Printf("output:   %v %s\n", out.Shape(), out.DType())
	fmt.Printf("checksum: %g\n", checksum(out))
	return nil
}

// randomArgs allocates one uniform-random buffer per declaration.
func randomArgs(decls []string, m, n int, seed int64) ([]*tensor.RawTensor, error) {
	table, err := formula.ParseArgs(decls)
	if err != nil {
		return nil, err
	}
	rng := rand.New(rand.NewSource(seed))

	var bufs []*tensor.RawTensor
	for _, b := range table.All() {
		var shape tensor.Shape
		switch b.Cat {
		case formula.Vi:
			shape = tensor.Shape{m, b.Dim}
		case formula.Vj:
			shape = tensor.Shape{n, b.Dim}
		case formula.Pm:
			shape = tensor.Shape{b.Dim}
		}
		data := make([]float32, shape.NumElements())
		for i := range data {
			data[i] = rng.Float32()
		}
		buf, err := tensor.FromSlice(data, shape)
		if err != nil {
			return nil, err
		}
		bufs = append(bufs, buf)
	}
	return bufs, nil
}

func checksum(out *tensor.RawTensor) float64 {
	var sum float64
	switch out.DType() {
	case tensor.Float32:
		for _, v := range out.AsFloat32() {
			sum += float64(v)
		}
	case tensor.Float64:
		for _, v := range out.AsFloat64() {
			sum += v
		}
	case tensor.Int32:
		for _, v := range out.AsInt32() {
			sum += float64(v)
		}
	}
	return sum
}
