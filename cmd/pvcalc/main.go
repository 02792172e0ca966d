// Command pvcalc is an interactive shell for the calc expression engine.
// Expressions are compiled and evaluated against a 12-slot input vector;
// inputs A-L can be set between evaluations to explore how an expression
// behaves before wiring it into a display.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/peterh/liner"

	"github.com/rtsoliday/pvdisplay/pkg/calc"
)

const historyFile = ".pvcalc_history"

func main() {
	if len(os.Args) > 1 {
		// Non-interactive: evaluate each argument with zero inputs.
		var inputs [calc.NumInputs]float64
		for _, src := range os.Args[1:] {
			evalOnce(src, &inputs)
		}
		return
	}
	repl()
}

func evalOnce(src string, inputs *[calc.NumInputs]float64) {
	prog, err := calc.Compile(src)
	if err != nil {
		fmt.Fprintf(os.Stderr, "compile: %v\n", err)
		return
	}
	result, ok := prog.Eval(inputs)
	if !ok {
		fmt.Println("eval failed")
		return
	}
	fmt.Println(strconv.FormatFloat(result, 'g', -1, 64))
}

func repl() {
	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)

	histPath := historyPath()
	if f, err := os.Open(histPath); err == nil {
		_, _ = ln.ReadHistory(f)
		_ = f.Close()
	}
	defer func() {
		if f, err := os.Create(histPath); err == nil {
			_, _ = ln.WriteHistory(f)
			_ = f.Close()
		}
	}()

	var inputs [calc.NumInputs]float64
	fmt.Println("pvcalc: expressions use inputs A-L; \"set A 42\" assigns, \"inputs\" lists, \"quit\" exits")

	for {
		line, err := ln.Prompt("calc> ")
		if errors.Is(err, io.EOF) {
			fmt.Println()
			return
		}
		if err != nil {
			// Ctrl+C clears the current line.
			continue
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		ln.AppendHistory(line)

		switch {
		case line == "quit" || line == "exit":
			return
		case line == "inputs":
			printInputs(&inputs)
		case strings.HasPrefix(line, "set "):
			if err := setInput(&inputs, line[len("set "):]); err != nil {
				fmt.Fprintln(os.Stderr, err)
			}
		default:
			evalOnce(line, &inputs)
		}
	}
}

func historyPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return historyFile
	}
	return filepath.Join(home, historyFile)
}

func printInputs(inputs *[calc.NumInputs]float64) {
	for i, v := range inputs {
		if v == 0 {
			continue
		}
		fmt.Printf("%c = %s\n", 'A'+i, strconv.FormatFloat(v, 'g', -1, 64))
	}
}

func setInput(inputs *[calc.NumInputs]float64, arg string) error {
	fields := strings.Fields(arg)
	if len(fields) != 2 {
		return fmt.Errorf("usage: set <A-L> <number>")
	}
	name := strings.ToUpper(fields[0])
	if len(name) != 1 || name[0] < 'A' || name[0] > 'L' {
		return fmt.Errorf("input must be a letter A-L")
	}
	v, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return fmt.Errorf("bad number %q", fields[1])
	}
	inputs[name[0]-'A'] = v
	return nil
}
