package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/symlift/symlift/pkg/amd64"
	"github.com/symlift/symlift/pkg/explore"
	"github.com/symlift/symlift/pkg/microcode"
	"github.com/symlift/symlift/pkg/solver"
	"github.com/symlift/symlift/pkg/symexec"
	"github.com/symlift/symlift/pkg/trace"
)

const defaultStart = 0x1000

func main() {
	rootCmd := &cobra.Command{
		Use:   "symlift",
		Short: "Lift amd64 instructions to microcode and symbolically execute them",
	}

	var startAddr uint64
	var maxSteps int

	liftCmd := &cobra.Command{
		Use:   "lift <hex-bytes>",
		Short: "Decode and encode one instruction, printing its microcode",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := hex.DecodeString(args[0])
			if err != nil {
				return fmt.Errorf("symlift: lift: %w", err)
			}
			inst, n, err := amd64.Decode(raw)
			if err != nil {
				return fmt.Errorf("symlift: lift: %w", err)
			}
			if n != len(raw) {
				return fmt.Errorf("symlift: lift: %d trailing byte(s) after one instruction", len(raw)-n)
			}
			enc := microcode.NewEncoder()
			if err := enc.Encode(inst); err != nil {
				return fmt.Errorf("symlift: lift: %w", err)
			}
			fmt.Println(enc.Finish().String())
			return nil
		},
	}

	runCmd := &cobra.Command{
		Use:   "run <hex-bytes>...",
		Short: "Encode a sequence of instructions and step a fresh state through it",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			instructions, err := decodeHexArgs(args)
			if err != nil {
				return fmt.Errorf("symlift: run: %w", err)
			}
			program, err := explore.NewProgram(startAddr, instructions)
			if err != nil {
				return fmt.Errorf("symlift: run: %w", err)
			}
			state := symexec.NewState(symexec.ConditionalTrees, solver.NewSolver())
			paths := explore.NewExplorer(program, maxSteps).Run(state, startAddr)
			for i, p := range paths {
				fmt.Printf("path %d (%s):\n", i, p.Stop)
				out, err := trace.ExportEvents(p.Events)
				if err != nil {
					return fmt.Errorf("symlift: run: %w", err)
				}
				fmt.Println(string(out))
			}
			return nil
		},
	}
	runCmd.Flags().Uint64Var(&startAddr, "start", defaultStart, "Address of the first instruction")
	runCmd.Flags().IntVar(&maxSteps, "max-steps", 0, "Block step limit per path (0 = default)")

	verifyCmd := &cobra.Command{
		Use:   "verify <hex-bytes-a> -- <hex-bytes-b>",
		Short: "Check whether two instruction sequences leave equivalent register state",
		Args:  cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			left, right, err := splitOnDashes(args)
			if err != nil {
				return fmt.Errorf("symlift: verify: %w", err)
			}
			equal, err := verifySequences(left, right, startAddr)
			if err != nil {
				return fmt.Errorf("symlift: verify: %w", err)
			}
			if equal {
				fmt.Println("equivalent")
			} else {
				fmt.Println("not equivalent")
			}
			return nil
		},
	}
	verifyCmd.Flags().Uint64Var(&startAddr, "start", defaultStart, "Address of the first instruction on each side")

	exploreCmd := &cobra.Command{
		Use:   "explore <hex-bytes>...",
		Short: "Fork every ambiguous jump in a sequence and report each terminal path",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			instructions, err := decodeHexArgs(args)
			if err != nil {
				return fmt.Errorf("symlift: explore: %w", err)
			}
			program, err := explore.NewProgram(startAddr, instructions)
			if err != nil {
				return fmt.Errorf("symlift: explore: %w", err)
			}
			state := symexec.NewState(symexec.ConditionalTrees, solver.NewSolver())
			paths := explore.NewExplorer(program, maxSteps).Run(state, startAddr)
			fmt.Printf("%d terminal path(s)\n", len(paths))
			for i, p := range paths {
				fmt.Printf("path %d: stop=%s trace=%s\n", i, p.Stop, formatTrace(p.Trace))
			}
			return nil
		},
	}
	exploreCmd.Flags().Uint64Var(&startAddr, "start", defaultStart, "Address of the first instruction")
	exploreCmd.Flags().IntVar(&maxSteps, "max-steps", 0, "Block step limit per path (0 = default)")

	rootCmd.AddCommand(liftCmd, runCmd, verifyCmd, exploreCmd)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// decodeHexArgs turns a list of hex-string CLI arguments into raw
// instruction byte slices, one per argument.
func decodeHexArgs(args []string) ([][]byte, error) {
	instructions := make([][]byte, len(args))
	for i, arg := range args {
		raw, err := hex.DecodeString(arg)
		if err != nil {
			return nil, fmt.Errorf("argument %d (%q): %w", i, arg, err)
		}
		instructions[i] = raw
	}
	return instructions, nil
}

// splitOnDashes splits args on a literal "--" separator into two
// non-empty groups, the shape verify's two-sided comparison needs.
func splitOnDashes(args []string) (left, right []string, err error) {
	for i, a := range args {
		if a == "--" {
			left, right = args[:i], args[i+1:]
			if len(left) == 0 || len(right) == 0 {
				return nil, nil, fmt.Errorf("both sides of -- must be non-empty")
			}
			return left, right, nil
		}
	}
	return nil, nil, fmt.Errorf("expected a -- separator between the two sequences")
}

// verifySequences lifts both sides from a shared starting address,
// runs each through its own fresh state, and asks the solver whether
// every named register holds equivalent expressions afterward (equal
// under every assignment the solver samples). Both
// sides start their default-symbol counters from zero, so an
// untouched register reads back as the same symbol on both sides and
// compares trivially equal.
func verifySequences(leftHex, rightHex []string, start uint64) (bool, error) {
	leftFinal, err := runToCompletion(leftHex, start)
	if err != nil {
		return false, fmt.Errorf("left side: %w", err)
	}
	rightFinal, err := runToCompletion(rightHex, start)
	if err != nil {
		return false, fmt.Errorf("right side: %w", err)
	}

	sv := solver.NewSolver()
	for _, reg := range amd64.GeneralRegisters {
		a := leftFinal.GetReg(reg)
		b := rightFinal.GetReg(reg)
		if sv.SimplifyCondition(solver.Eq(a, b)).Kind != solver.CondTrue {
			return false, nil
		}
	}
	return true, nil
}

// runToCompletion lifts and steps hexArgs from start, requiring the
// walk to settle on exactly one terminal path (verify only compares
// straight-line or concretely-resolved control flow).
func runToCompletion(hexArgs []string, start uint64) (*symexec.State, error) {
	instructions, err := decodeHexArgs(hexArgs)
	if err != nil {
		return nil, err
	}
	program, err := explore.NewProgram(start, instructions)
	if err != nil {
		return nil, err
	}
	state := symexec.NewState(symexec.ConditionalTrees, solver.NewSolver())
	paths := explore.NewExplorer(program, 0).Run(state, start)
	if len(paths) != 1 {
		return nil, fmt.Errorf("expected a single resolved path, got %d (ambiguous jump?)", len(paths))
	}
	return paths[0].State, nil
}

func formatTrace(trace []uint64) string {
	parts := make([]string, len(trace))
	for i, addr := range trace {
		parts[i] = fmt.Sprintf("%#x", addr)
	}
	return strings.Join(parts, "->")
}
